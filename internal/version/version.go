package version

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Version is a release identifier ordered by (major, minor, patch). A suffix
// starting with "-" marks a prerelease; any suffix only breaks ties.
type Version struct {
	Major  uint64
	Minor  uint64
	Patch  uint64
	Suffix string
}

var versionPattern = regexp.MustCompile(`^[vVrR]?([0-9]+)(?:\.([0-9]+))?(?:\.([0-9]+))?([-+][0-9A-Za-z.+-]*)?$`)

// ParseVersion parses a release tag such as "2.13.8", "v2.13.8" or
// "r1.0-rc1". Missing minor and patch components default to zero.
func ParseVersion(raw string) (Version, error) {
	text := strings.TrimSpace(raw)
	m := versionPattern.FindStringSubmatch(text)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q", raw)
	}

	var v Version
	var err error
	if v.Major, err = strconv.ParseUint(m[1], 10, 64); err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	if m[2] != "" {
		if v.Minor, err = strconv.ParseUint(m[2], 10, 64); err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", raw, err)
		}
	}
	if m[3] != "" {
		if v.Patch, err = strconv.ParseUint(m[3], 10, 64); err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", raw, err)
		}
	}
	v.Suffix = m[4]
	return v, nil
}

// MustParseVersion is ParseVersion for literals known to be valid.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version without a prefix.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d%s", v.Major, v.Minor, v.Patch, v.Suffix)
}

// Compare returns -1, 0 or 1. Components are compared numerically.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpUint(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpUint(v.Minor, o.Minor)
	default:
		return cmpUint(v.Patch, o.Patch)
	}
}

// Prerelease reports whether the suffix marks a prerelease such as "-rc1".
func (v Version) Prerelease() bool {
	return strings.HasPrefix(v.Suffix, "-")
}

// Same reports whether both versions have the same triple and suffix.
func (v Version) Same(o Version) bool {
	return v.Compare(o) == 0 && v.Suffix == o.Suffix
}

// Precedence orders like Compare and breaks triple ties: a prerelease sorts
// before the release, other suffixes compare as strings.
func Precedence(a, b Version) int {
	if c := a.Compare(b); c != 0 {
		return c
	}
	switch ap, bp := a.Prerelease(), b.Prerelease(); {
	case ap && !bp:
		return -1
	case !ap && bp:
		return 1
	}
	return strings.Compare(a.Suffix, b.Suffix)
}

// Equal reports whether both versions name the same triple.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Sort orders versions ascending in place.
func Sort(versions []Version) {
	slices.SortStableFunc(versions, Precedence)
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
