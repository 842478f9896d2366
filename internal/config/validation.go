package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"opencli/internal/archive"
	"opencli/internal/resolve"
	"opencli/internal/version"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Validate returns the first error-level finding of ValidateStrict without
// touching the filesystem.
func (c Config) Validate() error {
	var msgs []string
	for _, r := range c.validateBuild() {
		if r.Level == "error" {
			msgs = append(msgs, r.Message)
		}
	}
	for _, r := range c.validatePackages() {
		if r.Level == "error" {
			msgs = append(msgs, r.Message)
		}
	}
	if len(msgs) > 0 {
		return errors.New("invalid manifest: " + strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateStrict runs every manifest check, including the ones that look at
// the project directory, and returns structured results.
func (c Config) ValidateStrict(projectRoot string) []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateBuild()...)
	results = append(results, c.validatePackages()...)
	results = append(results, c.validateProjectFiles(projectRoot)...)
	return results
}

func (c Config) validateBuild() []ValidationResult {
	var results []ValidationResult
	if strings.TrimSpace(c.Build.EntryFile) == "" {
		results = append(results, errorf("build.entry_file cannot be empty"))
	}
	if strings.TrimSpace(c.Build.OutputFile) == "" {
		results = append(results, errorf("build.output_file cannot be empty"))
	}
	if strings.TrimSpace(c.Build.CompilerVersion) == "" {
		results = append(results, errorf("build.compiler_version cannot be empty"))
	} else if _, err := version.Parse(c.Build.CompilerVersion); err != nil {
		results = append(results, errorf("build.compiler_version: %v", err))
	}
	for i, p := range c.Build.Includes.Paths {
		if strings.TrimSpace(p) == "" {
			results = append(results, errorf("build.includes.paths[%d] is empty", i))
		}
	}
	return results
}

func (c Config) validatePackages() []ValidationResult {
	var results []ValidationResult
	for _, name := range c.PackageNames() {
		spec := c.Packages[name]
		if _, _, err := resolve.ParseRef(name); err != nil {
			results = append(results, errorf("packages: %v", err))
			continue
		}
		if _, err := version.Parse(spec.Constraint()); err != nil {
			results = append(results, errorf("packages.%q: %v", name, err))
		}
		if _, ok := archive.ParseTarget(string(spec.Target)); !ok {
			results = append(results, errorf("packages.%q: target must be components or plugins, got %q", name, spec.Target))
		}
	}
	return results
}

func (c Config) validateProjectFiles(projectRoot string) []ValidationResult {
	var results []ValidationResult
	entry := c.Build.EntryFile
	if entry != "" {
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(projectRoot, entry)
		}
		if _, err := os.Stat(entry); err != nil {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("entry file %q not found", c.Build.EntryFile),
			})
		}
	}
	for _, p := range c.Build.Includes.Paths {
		resolved := p
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(projectRoot, resolved)
		}
		if info, err := os.Stat(resolved); err != nil || !info.IsDir() {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("include path %q does not exist", p),
			})
		}
	}
	return results
}

// PackageRefs converts [packages] into resolver references ordered by
// identity.
func (c Config) PackageRefs() ([]resolve.PackageRef, error) {
	refs := make([]resolve.PackageRef, 0, len(c.Packages))
	for _, name := range c.PackageNames() {
		ref, err := c.PackageRef(name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// PackageRef converts one [packages] entry.
func (c Config) PackageRef(name string) (resolve.PackageRef, error) {
	spec, ok := c.Packages[name]
	if !ok {
		return resolve.PackageRef{}, fmt.Errorf("package %s is not in the manifest", name)
	}
	ref, err := resolve.ParseSpec(name + "=" + spec.Constraint())
	if err != nil {
		return resolve.PackageRef{}, err
	}
	target, ok := archive.ParseTarget(string(spec.Target))
	if !ok {
		return resolve.PackageRef{}, fmt.Errorf("package %s: invalid target %q", name, spec.Target)
	}
	ref.Target = target
	return ref, nil
}

func errorf(format string, args ...any) ValidationResult {
	return ValidationResult{Level: "error", Message: fmt.Sprintf(format, args...)}
}
