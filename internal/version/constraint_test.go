package version

import (
	"errors"
	"testing"
)

func versions(raw ...string) []Version {
	out := make([]Version, 0, len(raw))
	for _, r := range raw {
		out = append(out, MustParseVersion(r))
	}
	return out
}

func TestParseKinds(t *testing.T) {
	cases := []struct {
		input string
		kind  Kind
		str   string
	}{
		{"2.13.7", KindExact, "2.13.7"},
		{"v2.13.7", KindExact, "2.13.7"},
		{"=1.0.0", KindExact, "1.0.0"},
		{"^2.13.7", KindCaret, "^2.13.7"},
		{"~2.13.7", KindTilde, "~2.13.7"},
		{">=1.0.0, <2.0.0", KindRange, ">=1.0.0, <2.0.0"},
		{"<2.0.0,>1.0.0", KindRange, ">1.0.0, <2.0.0"},
		{">=1.2.0", KindRange, ">=1.2.0"},
		{"latest", KindLatest, "latest"},
		{"LATEST", KindLatest, "latest"},
		{"*", KindLatest, "latest"},
	}
	for _, tc := range cases {
		c, err := Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.input, err)
		}
		if c.Kind() != tc.kind {
			t.Fatalf("Parse(%q) kind = %s, want %s", tc.input, c.Kind(), tc.kind)
		}
		if c.String() != tc.str {
			t.Fatalf("Parse(%q).String() = %q, want %q", tc.input, c.String(), tc.str)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{"", "abc", "^", "~x.y", ">=1.0.0, >=1.1.0", "1.0.0, 2.0.0", "=>1.0", ">=1.0.0,<2.0.0,<3.0.0"} {
		_, err := Parse(input)
		if err == nil {
			t.Fatalf("Parse(%q) expected error", input)
		}
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q) error = %v, want ErrMalformed", input, err)
		}
		var perr *ParseError
		if !errors.As(err, &perr) || perr.Input != input {
			t.Fatalf("Parse(%q) error does not carry input: %v", input, err)
		}
	}
}

func TestParseInvertedRange(t *testing.T) {
	for _, input := range []string{">=2.0.0, <1.0.0", ">1.0.0, <1.0.0", ">=1.0.0, <1.0.0"} {
		_, err := Parse(input)
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("Parse(%q) error = %v, want ErrInvalidRange", input, err)
		}
	}
	if _, err := Parse(">=1.0.0, <=1.0.0"); err != nil {
		t.Fatalf("single-point inclusive range should parse: %v", err)
	}
}

func TestCaretMatching(t *testing.T) {
	c := MustParse("^2.13.7")
	for _, v := range []string{"2.13.7", "2.13.8", "2.14.0", "2.99.99"} {
		if !c.Matches(MustParseVersion(v)) {
			t.Fatalf("^2.13.7 should match %s", v)
		}
	}
	for _, v := range []string{"2.13.6", "3.0.0", "1.99.0"} {
		if c.Matches(MustParseVersion(v)) {
			t.Fatalf("^2.13.7 should not match %s", v)
		}
	}

	zero := MustParse("^0.4.2")
	if !zero.Matches(MustParseVersion("0.4.9")) {
		t.Fatal("^0.4.2 should match 0.4.9")
	}
	if zero.Matches(MustParseVersion("0.5.0")) {
		t.Fatal("^0.4.2 should not match 0.5.0")
	}
	if zero.Matches(MustParseVersion("1.4.2")) {
		t.Fatal("^0.4.2 should not match 1.4.2")
	}
}

func TestCaretNeverCrossesMajor(t *testing.T) {
	for major := uint64(1); major < 4; major++ {
		base := Version{Major: major, Minor: 2, Patch: 3}
		c := CaretOf(base)
		for other := uint64(0); other < 5; other++ {
			v := Version{Major: other, Minor: 9, Patch: 9}
			if other != major && c.Matches(v) {
				t.Fatalf("%s matched %s", c, v)
			}
		}
	}
}

func TestTildeMatching(t *testing.T) {
	c := MustParse("~2.13.7")
	if !c.Matches(MustParseVersion("2.13.9")) {
		t.Fatal("~2.13.7 should match 2.13.9")
	}
	if c.Matches(MustParseVersion("2.14.0")) {
		t.Fatal("~2.13.7 should not match 2.14.0")
	}
	if c.Matches(MustParseVersion("2.13.6")) {
		t.Fatal("~2.13.7 should not match 2.13.6")
	}
}

func TestRangeMatching(t *testing.T) {
	c := MustParse(">=1.0.0, <2.0.0")
	cases := map[string]bool{
		"0.9.9": false,
		"1.0.0": true,
		"1.9.9": true,
		"2.0.0": false,
	}
	for raw, want := range cases {
		if got := c.Matches(MustParseVersion(raw)); got != want {
			t.Fatalf("%s matches %s = %v, want %v", c, raw, got, want)
		}
	}

	inclusive := MustParse(">1.0.0, <=2.0.0")
	if inclusive.Matches(MustParseVersion("1.0.0")) || !inclusive.Matches(MustParseVersion("2.0.0")) {
		t.Fatal("bound inclusivity not honoured")
	}
}

func TestSelectBest(t *testing.T) {
	candidates := versions("2.13.7", "2.14.0", "2.13.8")

	got, err := SelectBest(MustParse("^2.13.7"), candidates)
	if err != nil {
		t.Fatalf("SelectBest caret: %v", err)
	}
	if got.String() != "2.14.0" {
		t.Fatalf("caret selected %s, want 2.14.0", got)
	}

	got, err = SelectBest(MustParse("~2.13.7"), candidates)
	if err != nil {
		t.Fatalf("SelectBest tilde: %v", err)
	}
	if got.String() != "2.13.8" {
		t.Fatalf("tilde selected %s, want 2.13.8", got)
	}

	got, err = SelectBest(Latest(), candidates)
	if err != nil || got.String() != "2.14.0" {
		t.Fatalf("latest selected %s (%v), want 2.14.0", got, err)
	}
}

func TestPrereleaseOnlyMatchesPrereleaseOperand(t *testing.T) {
	candidates := versions("2.13.8", "2.14.0-rc1")

	got, err := SelectBest(MustParse("^2.13.7"), candidates)
	if err != nil || got.String() != "2.13.8" {
		t.Fatalf("caret selected %s (%v), want 2.13.8", got, err)
	}
	got, err = SelectBest(Latest(), candidates)
	if err != nil || got.String() != "2.13.8" {
		t.Fatalf("latest selected %s (%v), want 2.13.8", got, err)
	}

	got, err = SelectBest(MustParse("^2.14.0-rc1"), candidates)
	if err != nil || got.String() != "2.14.0-rc1" {
		t.Fatalf("prerelease caret selected %s (%v)", got, err)
	}
	if !MustParse("2.14.0-rc1").Matches(MustParseVersion("2.14.0-rc1")) ||
		MustParse("2.14.0-rc1").Matches(MustParseVersion("2.14.0-rc2")) {
		t.Fatal("exact prerelease must match its own suffix only")
	}
}

func TestSelectBestPrefersReleaseOnTie(t *testing.T) {
	for _, order := range [][]string{{"2.14.0-rc1", "2.14.0"}, {"2.14.0", "2.14.0-rc1"}} {
		got, err := SelectBest(MustParse(">=2.14.0-rc1"), versions(order...))
		if err != nil {
			t.Fatal(err)
		}
		if got.String() != "2.14.0" {
			t.Fatalf("candidates %v: selected %s, want 2.14.0", order, got)
		}
	}
}

func TestSelectBestNumericOrdering(t *testing.T) {
	got, err := SelectBest(Latest(), versions("1.9.0", "1.10.0", "1.2.0"))
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "1.10.0" {
		t.Fatalf("selected %s, want 1.10.0", got)
	}
}

func TestSelectBestNoMatch(t *testing.T) {
	_, err := SelectBest(MustParse("^3.0.0"), versions("2.13.6", "2.13.7", "2.13.8"))
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	var nm *NoMatchError
	if !errors.As(err, &nm) {
		t.Fatalf("expected *NoMatchError, got %T", err)
	}
	if nm.Constraint != "^3.0.0" || nm.Candidates != 3 {
		t.Fatalf("unexpected error detail: %+v", nm)
	}

	if _, err := SelectBest(Latest(), nil); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("empty candidates should not match latest, got %v", err)
	}
}
