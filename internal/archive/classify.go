package archive

import (
	"path"
	"regexp"
	"slices"
	"strings"
)

// Target is where a package's server binaries belong.
type Target string

const (
	TargetAuto       Target = ""
	TargetComponents Target = "components"
	TargetPlugins    Target = "plugins"
)

// ParseTarget accepts "", "components" or "plugins" in any case.
func ParseTarget(s string) (Target, bool) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case TargetAuto:
		return TargetAuto, true
	case TargetComponents:
		return TargetComponents, true
	case TargetPlugins:
		return TargetPlugins, true
	}
	return "", false
}

// Files groups package files by destination. Paths are relative to the
// directory that was classified, in slash form.
type Files struct {
	Includes   []string
	Root       []string
	Components []string
	Plugins    []string
}

// Empty reports whether nothing was classified.
func (f Files) Empty() bool {
	return len(f.Includes) == 0 && len(f.Root) == 0 && len(f.Components) == 0 && len(f.Plugins) == 0
}

var (
	includeRe = regexp.MustCompile(`(?i)\.inc$`)
	binaryRe  = regexp.MustCompile(`(?i)\.(dll|so|dylib)$`)
	rootLibRe = regexp.MustCompile(`(?i)amx|lib|log-core`)
)

// IsInclude reports whether name is a Pawn include file.
func IsInclude(name string) bool { return includeRe.MatchString(name) }

// IsBinary reports whether name is a shared library.
func IsBinary(name string) bool { return binaryRe.MatchString(name) }

// ClassifyFor sorts files as they would be installed on goos.
func ClassifyFor(files []string, target Target, goos string) Files {
	var (
		out      Files
		includes []string
		binaries []string
	)
	for _, f := range files {
		name := path.Base(f)
		switch {
		case IsInclude(name):
			includes = append(includes, f)
		case IsBinary(name) && binaryForPlatform(name, goos):
			binaries = append(binaries, f)
		}
	}

	out.Includes = preferredIncludes(includes, target)

	hasComponents := anyUnder(binaries, "components", "component")
	hasPlugins := anyUnder(binaries, "plugins", "plugin")
	for _, f := range binaries {
		name := path.Base(f)
		if rootLibRe.MatchString(name) {
			out.Root = append(out.Root, f)
			continue
		}
		switch target {
		case TargetComponents:
			if !hasComponents || under(f, "components", "component") {
				out.Components = append(out.Components, f)
			}
		case TargetPlugins:
			if !hasPlugins || under(f, "plugins", "plugin") {
				out.Plugins = append(out.Plugins, f)
			}
		default:
			switch {
			case under(f, "components", "component"):
				out.Components = append(out.Components, f)
			case under(f, "plugins", "plugin"):
				out.Plugins = append(out.Plugins, f)
			case looksLikeComponent(name):
				out.Components = append(out.Components, f)
			default:
				out.Plugins = append(out.Plugins, f)
			}
		}
	}

	out.Includes = sortedUnique(out.Includes)
	out.Root = sortedUnique(out.Root)
	out.Components = sortedUnique(out.Components)
	out.Plugins = sortedUnique(out.Plugins)
	return out
}

// preferredIncludes keeps only the includes inside the editor include folder
// for the target when the archive ships one: qawno for open.mp components,
// pawno for legacy plugins, either when the target is unknown.
func preferredIncludes(includes []string, target Target) []string {
	var folders []string
	switch target {
	case TargetComponents:
		folders = []string{"qawno"}
	case TargetPlugins:
		folders = []string{"pawno"}
	default:
		folders = []string{"qawno", "pawno"}
	}
	if !anyUnder(includes, folders...) {
		return includes
	}
	var kept []string
	for _, f := range includes {
		if under(f, folders...) {
			kept = append(kept, f)
		}
	}
	return kept
}

func binaryForPlatform(name, goos string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".dll"):
		return goos == "windows"
	case strings.HasSuffix(lower, ".so"):
		return goos != "windows"
	case strings.HasSuffix(lower, ".dylib"):
		return goos == "darwin"
	}
	return false
}

func looksLikeComponent(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "omp") || strings.Contains(lower, "component")
}

// under reports whether any directory segment of file equals one of dirs.
func under(file string, dirs ...string) bool {
	segments := strings.Split(strings.ToLower(path.Dir(file)), "/")
	for _, seg := range segments {
		if slices.Contains(dirs, seg) {
			return true
		}
	}
	return false
}

func anyUnder(files []string, dirs ...string) bool {
	for _, f := range files {
		if under(f, dirs...) {
			return true
		}
	}
	return false
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	slices.Sort(in)
	return slices.Compact(in)
}
