package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"opencli/internal/archive"
	"opencli/internal/version"
)

var repoRe = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)$`)

// PackageRef is one requested package: a GitHub repository, the constraint
// its version must satisfy, and where its binaries go.
type PackageRef struct {
	Owner      string
	Repo       string
	Constraint version.Constraint
	Target     archive.Target
}

// Identity is the ledger and cache key, "owner/repo".
func (r PackageRef) Identity() string { return r.Owner + "/" + r.Repo }

func (r PackageRef) String() string {
	return r.Identity() + "=" + r.Constraint.String()
}

// ParseRef splits "owner/repo".
func ParseRef(s string) (owner, repo string, err error) {
	m := repoRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || m[1] == "." || m[1] == ".." || m[2] == "." || m[2] == ".." {
		return "", "", fmt.Errorf("invalid package %q: expected owner/repo", s)
	}
	return m[1], m[2], nil
}

// ParseSpec parses "owner/repo", "owner/repo=<constraint>" or
// "owner/repo@<constraint>". A missing constraint means latest.
func ParseSpec(s string) (PackageRef, error) {
	s = strings.TrimSpace(s)
	name, constraint := s, ""
	if i := strings.IndexAny(s, "=@"); i >= 0 {
		name, constraint = s[:i], s[i+1:]
	}
	owner, repo, err := ParseRef(name)
	if err != nil {
		return PackageRef{}, err
	}
	c := version.Latest()
	if strings.TrimSpace(constraint) != "" {
		c, err = version.Parse(constraint)
		if err != nil {
			return PackageRef{}, fmt.Errorf("package %s: %w", name, err)
		}
	}
	return PackageRef{Owner: owner, Repo: repo, Constraint: c}, nil
}
