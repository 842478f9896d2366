package version

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		input string
		want  Version
	}{
		{"2.13.8", Version{Major: 2, Minor: 13, Patch: 8}},
		{"v2.13.8", Version{Major: 2, Minor: 13, Patch: 8}},
		{"r1.4", Version{Major: 1, Minor: 4}},
		{"3", Version{Major: 3}},
		{"v3.10.11-rc1", Version{Major: 3, Minor: 10, Patch: 11, Suffix: "-rc1"}},
	}
	for _, tc := range cases {
		got, err := ParseVersion(tc.input)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseVersion(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
	}

	for _, bad := range []string{"", "latest", "1.2.3.4", "x1.2", "1.2.3abc"} {
		if _, err := ParseVersion(bad); err == nil {
			t.Fatalf("ParseVersion(%q) expected error", bad)
		}
	}
}

func TestSortAndSuffixOrdering(t *testing.T) {
	vs := versions("1.10.0", "1.2.0", "1.9.3", "0.1.0")
	Sort(vs)
	want := []string{"0.1.0", "1.2.0", "1.9.3", "1.10.0"}
	for i, v := range vs {
		if v.String() != want[i] {
			t.Fatalf("Sort()[%d] = %s, want %s", i, v, want[i])
		}
	}

	if !MustParseVersion("1.0.0-rc1").Equal(MustParseVersion("1.0.0")) {
		t.Fatal("suffix must not participate in Compare")
	}

	tied := versions("1.0.0", "1.0.0-rc1", "0.9.0")
	Sort(tied)
	if tied[1].String() != "1.0.0-rc1" || tied[2].String() != "1.0.0" {
		t.Fatalf("prerelease should sort before its release: %v", tied)
	}
}
