package version

import (
	"strings"
)

// Kind tags the variant held by a Constraint.
type Kind int

const (
	KindLatest Kind = iota
	KindExact
	KindCaret
	KindTilde
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindCaret:
		return "caret"
	case KindTilde:
		return "tilde"
	case KindRange:
		return "range"
	default:
		return "latest"
	}
}

// Bound is one side of a range. A zero Bound (Set == false) is unbounded.
type Bound struct {
	Version   Version
	Inclusive bool
	Set       bool
}

// Constraint is an immutable rule over versions. The zero value is Latest.
type Constraint struct {
	kind  Kind
	base  Version
	lower Bound
	upper Bound
}

// Latest returns the unconstrained constraint.
func Latest() Constraint { return Constraint{} }

// ExactOf pins a single version.
func ExactOf(v Version) Constraint { return Constraint{kind: KindExact, base: v} }

// CaretOf accepts compatible updates of v.
func CaretOf(v Version) Constraint { return Constraint{kind: KindCaret, base: v} }

// TildeOf accepts patch updates of v.
func TildeOf(v Version) Constraint { return Constraint{kind: KindTilde, base: v} }

// Kind reports the variant.
func (c Constraint) Kind() Kind { return c.kind }

// Version returns the operand of Exact, Caret and Tilde constraints.
func (c Constraint) Version() Version { return c.base }

// Bounds returns the range bounds of a Range constraint.
func (c Constraint) Bounds() (lower, upper Bound) { return c.lower, c.upper }

// IsExact reports whether the constraint names a single version.
func (c Constraint) IsExact() bool { return c.kind == KindExact }

// String renders the constraint in the grammar accepted by Parse.
func (c Constraint) String() string {
	switch c.kind {
	case KindExact:
		return c.base.String()
	case KindCaret:
		return "^" + c.base.String()
	case KindTilde:
		return "~" + c.base.String()
	case KindRange:
		var parts []string
		if c.lower.Set {
			op := ">"
			if c.lower.Inclusive {
				op = ">="
			}
			parts = append(parts, op+c.lower.Version.String())
		}
		if c.upper.Set {
			op := "<"
			if c.upper.Inclusive {
				op = "<="
			}
			parts = append(parts, op+c.upper.Version.String())
		}
		return strings.Join(parts, ", ")
	default:
		return "latest"
	}
}

// Parse reads a constraint expression: "x.y.z", "^x.y.z", "~x.y.z",
// ">=x.y.z, <a.b.c" (or a single comparison), "latest" or "*".
func Parse(text string) (Constraint, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: "empty"}
	}
	if strings.EqualFold(input, "latest") || input == "*" {
		return Latest(), nil
	}
	if strings.Contains(input, ",") {
		return parseRange(text, strings.Split(input, ","))
	}

	switch input[0] {
	case '^', '~':
		v, err := ParseVersion(input[1:])
		if err != nil {
			return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: err.Error()}
		}
		if input[0] == '^' {
			return CaretOf(v), nil
		}
		return TildeOf(v), nil
	case '>', '<':
		return parseRange(text, []string{input})
	case '=':
		v, err := ParseVersion(input[1:])
		if err != nil {
			return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: err.Error()}
		}
		return ExactOf(v), nil
	}

	v, err := ParseVersion(input)
	if err != nil {
		return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: err.Error()}
	}
	return ExactOf(v), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(text string) Constraint {
	c, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return c
}

func parseRange(text string, parts []string) (Constraint, error) {
	if len(parts) > 2 {
		return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: "at most two comparisons"}
	}

	c := Constraint{kind: KindRange}
	for _, part := range parts {
		op, b, err := parseComparison(strings.TrimSpace(part))
		if err != nil {
			return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: err.Error()}
		}
		switch op {
		case ">", ">=":
			if c.lower.Set {
				return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: "duplicate lower bound"}
			}
			c.lower = b
		case "<", "<=":
			if c.upper.Set {
				return Constraint{}, &ParseError{Kind: Malformed, Input: text, Reason: "duplicate upper bound"}
			}
			c.upper = b
		}
	}

	if c.lower.Set && c.upper.Set {
		switch cmp := c.lower.Version.Compare(c.upper.Version); {
		case cmp > 0:
			return Constraint{}, &ParseError{Kind: InvalidRange, Input: text, Reason: "lower bound exceeds upper bound"}
		case cmp == 0 && !(c.lower.Inclusive && c.upper.Inclusive):
			return Constraint{}, &ParseError{Kind: InvalidRange, Input: text, Reason: "range is empty"}
		}
	}
	return c, nil
}

func parseComparison(part string) (string, Bound, error) {
	var op string
	for _, candidate := range []string{">=", "<=", ">", "<"} {
		if strings.HasPrefix(part, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return "", Bound{}, &ParseError{Kind: Malformed, Input: part, Reason: "expected comparison operator"}
	}
	v, err := ParseVersion(strings.TrimSpace(part[len(op):]))
	if err != nil {
		return "", Bound{}, err
	}
	return op, Bound{Version: v, Inclusive: op == ">=" || op == "<=", Set: true}, nil
}

// Matches reports whether v satisfies c.
func Matches(c Constraint, v Version) bool {
	return c.Matches(v)
}

// Matches reports whether v satisfies the constraint. A prerelease only
// matches a constraint whose operand is itself a prerelease.
func (c Constraint) Matches(v Version) bool {
	if v.Prerelease() && !c.allowsPrerelease() {
		return false
	}
	switch c.kind {
	case KindExact:
		if c.base.Prerelease() {
			return v.Same(c.base)
		}
		return v.Equal(c.base)
	case KindCaret:
		if v.Less(c.base) {
			return false
		}
		if c.base.Major > 0 {
			return v.Major == c.base.Major
		}
		return v.Major == 0 && v.Minor == c.base.Minor
	case KindTilde:
		return !v.Less(c.base) && v.Major == c.base.Major && v.Minor == c.base.Minor
	case KindRange:
		if c.lower.Set {
			cmp := v.Compare(c.lower.Version)
			if cmp < 0 || (cmp == 0 && !c.lower.Inclusive) {
				return false
			}
		}
		if c.upper.Set {
			cmp := v.Compare(c.upper.Version)
			if cmp > 0 || (cmp == 0 && !c.upper.Inclusive) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (c Constraint) allowsPrerelease() bool {
	switch c.kind {
	case KindExact, KindCaret, KindTilde:
		return c.base.Prerelease()
	case KindRange:
		return (c.lower.Set && c.lower.Version.Prerelease()) ||
			(c.upper.Set && c.upper.Version.Prerelease())
	default:
		return false
	}
}

// SelectBest returns the greatest candidate that satisfies c. Of two
// candidates with the same triple the release wins over the prerelease.
func SelectBest(c Constraint, candidates []Version) (Version, error) {
	var (
		best  Version
		found bool
	)
	for _, v := range candidates {
		if !c.Matches(v) {
			continue
		}
		if !found || Precedence(best, v) < 0 {
			best = v
			found = true
		}
	}
	if !found {
		return Version{}, &NoMatchError{Constraint: c.String(), Candidates: len(candidates)}
	}
	return best, nil
}
