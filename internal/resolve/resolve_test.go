package resolve

import (
	"context"
	"errors"
	"testing"

	"opencli/internal/ledger"
	"opencli/internal/version"
)

type fakeLister struct {
	versions []version.Version
	err      error
	calls    int
}

func (f *fakeLister) Versions(context.Context, string, string) ([]version.Version, error) {
	f.calls++
	return f.versions, f.err
}

func remote(raw ...string) []version.Version {
	out := make([]version.Version, 0, len(raw))
	for _, r := range raw {
		out = append(out, version.MustParseVersion(r))
	}
	return out
}

func mustSpec(t *testing.T, s string) PackageRef {
	t.Helper()
	ref, err := ParseSpec(s)
	if err != nil {
		t.Fatalf("ParseSpec(%q): %v", s, err)
	}
	return ref
}

func always(ok bool) HealthFunc {
	return func(ledger.Record) (bool, error) { return ok, nil }
}

func TestParseSpec(t *testing.T) {
	cases := []struct {
		in         string
		identity   string
		constraint string
	}{
		{"Y-Less/sscanf", "Y-Less/sscanf", "latest"},
		{"Y-Less/sscanf=^2.13.7", "Y-Less/sscanf", "^2.13.7"},
		{"katursis/Pawn.RakNet@~1.6.0", "katursis/Pawn.RakNet", "~1.6.0"},
		{"pawn-lang/samp-stdlib=>=0.3.7, <0.4.0", "pawn-lang/samp-stdlib", ">=0.3.7, <0.4.0"},
	}
	for _, tc := range cases {
		ref := mustSpec(t, tc.in)
		if ref.Identity() != tc.identity || ref.Constraint.String() != tc.constraint {
			t.Fatalf("ParseSpec(%q) = %s %s", tc.in, ref.Identity(), ref.Constraint)
		}
	}
}

func TestParseSpecErrors(t *testing.T) {
	for _, in := range []string{"sscanf", "a/b/c", "../x", "a/b=^x.y"} {
		if _, err := ParseSpec(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if _, err := ParseSpec("a/b=>=2.0.0, <1.0.0"); !errors.Is(err, version.ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestResolvePure(t *testing.T) {
	ref := mustSpec(t, "Y-Less/sscanf=^2.13.7")
	versions := remote("2.13.6", "2.13.7", "2.13.8")

	act, err := Resolve(ref, versions, nil, false)
	if err != nil || act.Kind != NeedsInstall || act.To.String() != "2.13.8" {
		t.Fatalf("fresh install = %+v, %v", act, err)
	}

	rec := &ledger.Record{Identity: "Y-Less/sscanf", Version: "2.13.8"}
	act, err = Resolve(ref, versions, rec, true)
	if err != nil || act.Kind != AlreadySatisfied {
		t.Fatalf("satisfied = %+v, %v", act, err)
	}

	rec.Version = "2.13.7"
	act, err = Resolve(ref, versions, rec, true)
	if err != nil || act.Kind != NeedsUpdate || act.From != "2.13.7" || act.To.String() != "2.13.8" {
		t.Fatalf("update = %+v, %v", act, err)
	}

	act, err = Resolve(ref, versions, rec, false)
	if err != nil || act.Kind != NeedsInstall {
		t.Fatalf("corrupt record should reinstall: %+v, %v", act, err)
	}

	_, err = Resolve(mustSpec(t, "Y-Less/sscanf=^3.0.0"), versions, nil, false)
	var nm *version.NoMatchError
	if !errors.As(err, &nm) || nm.Candidates != 3 {
		t.Fatalf("expected NoMatchError, got %v", err)
	}
}

func TestPlanExactHealthySkipsListing(t *testing.T) {
	lister := &fakeLister{versions: remote("2.13.8")}
	r := &Resolver{Lister: lister, Healthy: always(true)}
	rec := &ledger.Record{Identity: "Y-Less/sscanf", Version: "2.13.7"}

	act, err := r.Plan(context.Background(), mustSpec(t, "Y-Less/sscanf=2.13.7"), rec, ModeUpdate, false)
	if err != nil || act.Kind != AlreadySatisfied {
		t.Fatalf("Plan = %+v, %v", act, err)
	}
	if lister.calls != 0 {
		t.Fatalf("exact healthy record must not list remote, calls=%d", lister.calls)
	}
}

func TestPlanInstallModeKeepsMatchingRecord(t *testing.T) {
	lister := &fakeLister{versions: remote("2.13.9")}
	r := &Resolver{Lister: lister, Healthy: always(true)}
	rec := &ledger.Record{Identity: "Y-Less/sscanf", Version: "2.13.8"}

	act, err := r.Plan(context.Background(), mustSpec(t, "Y-Less/sscanf=^2.13.7"), rec, ModeInstall, false)
	if err != nil || act.Kind != AlreadySatisfied || lister.calls != 0 {
		t.Fatalf("Plan = %+v, %v, calls=%d", act, err, lister.calls)
	}

	act, err = r.Plan(context.Background(), mustSpec(t, "Y-Less/sscanf=^2.13.7"), rec, ModeUpdate, false)
	if err != nil || act.Kind != NeedsUpdate || act.To.String() != "2.13.9" || lister.calls != 1 {
		t.Fatalf("update Plan = %+v, %v, calls=%d", act, err, lister.calls)
	}
}

func TestPlanInstallModeConstraintChanged(t *testing.T) {
	lister := &fakeLister{versions: remote("2.13.8", "3.0.0")}
	r := &Resolver{Lister: lister, Healthy: always(true)}
	rec := &ledger.Record{Identity: "Y-Less/sscanf", Version: "2.13.8"}

	act, err := r.Plan(context.Background(), mustSpec(t, "Y-Less/sscanf=^3.0.0"), rec, ModeInstall, false)
	if err != nil || act.Kind != NeedsUpdate || act.To.String() != "3.0.0" {
		t.Fatalf("Plan = %+v, %v", act, err)
	}
}

func TestPlanUnhealthyRecordReinstalls(t *testing.T) {
	lister := &fakeLister{versions: remote("2.13.8")}
	r := &Resolver{Lister: lister, Healthy: always(false)}
	rec := &ledger.Record{Identity: "Y-Less/sscanf", Version: "2.13.8"}

	act, err := r.Plan(context.Background(), mustSpec(t, "Y-Less/sscanf=2.13.8"), rec, ModeInstall, false)
	if err != nil || act.Kind != NeedsInstall || act.From != "2.13.8" {
		t.Fatalf("Plan = %+v, %v", act, err)
	}
	if lister.calls != 1 {
		t.Fatalf("expected remote listing, calls=%d", lister.calls)
	}
}

func TestPlanForceSkipsShortCircuits(t *testing.T) {
	healthChecks := 0
	lister := &fakeLister{versions: remote("2.13.8")}
	r := &Resolver{Lister: lister, Healthy: func(ledger.Record) (bool, error) {
		healthChecks++
		return true, nil
	}}
	rec := &ledger.Record{Identity: "Y-Less/sscanf", Version: "2.13.8"}

	act, err := r.Plan(context.Background(), mustSpec(t, "Y-Less/sscanf=2.13.8"), rec, ModeInstall, true)
	if err != nil || act.Kind != NeedsInstall || lister.calls != 1 {
		t.Fatalf("forced Plan = %+v, %v, calls=%d", act, err, lister.calls)
	}
	if healthChecks != 0 {
		t.Fatalf("force should not verify the record, checks=%d", healthChecks)
	}
}

func TestPlanListerError(t *testing.T) {
	boom := errors.New("offline")
	r := &Resolver{Lister: &fakeLister{err: boom}}
	if _, err := r.Plan(context.Background(), mustSpec(t, "a/b"), nil, ModeInstall, false); !errors.Is(err, boom) {
		t.Fatalf("expected lister error, got %v", err)
	}
}

func TestPlanRemoval(t *testing.T) {
	l := ledger.New("")
	l.Record(ledger.Record{Identity: "a/b", InstallPath: "/cache/a/b/1.0.0"})
	l.Record(ledger.Record{Identity: "c/d", InstallPath: "/cache/shared"})
	l.Record(ledger.Record{Identity: "e/f", InstallPath: "/cache/shared"})

	rm, ok := PlanRemoval(l, "a/b")
	if !ok || !rm.DeleteSlot {
		t.Fatalf("sole reference should delete slot: %+v %v", rm, ok)
	}
	rm, ok = PlanRemoval(l, "c/d")
	if !ok || rm.DeleteSlot {
		t.Fatalf("shared slot must be kept: %+v %v", rm, ok)
	}
	if _, ok := PlanRemoval(l, "x/y"); ok {
		t.Fatal("unknown identity should report false")
	}
}
