// Package resolve decides, per package, whether the installed state already
// satisfies the requested constraint or which version must be fetched.
package resolve

import (
	"context"
	"fmt"

	"opencli/internal/ledger"
	"opencli/internal/version"
)

// ActionKind is the outcome of resolving one package.
type ActionKind int

const (
	AlreadySatisfied ActionKind = iota
	NeedsInstall
	NeedsUpdate
)

func (k ActionKind) String() string {
	switch k {
	case NeedsInstall:
		return "install"
	case NeedsUpdate:
		return "update"
	default:
		return "satisfied"
	}
}

// Action describes what has to happen for one package. From is the
// installed version, empty when nothing usable is installed.
type Action struct {
	Kind ActionKind
	From string
	To   version.Version
}

// Mode selects how eagerly the remote is consulted.
type Mode int

const (
	// ModeInstall keeps a healthy record that still satisfies the constraint.
	ModeInstall Mode = iota
	// ModeUpdate always looks for the best remote version.
	ModeUpdate
)

// Resolve is the pure decision: pick the best remote version and compare it
// with a healthy record. An unhealthy record counts as absent.
func Resolve(ref PackageRef, remote []version.Version, rec *ledger.Record, healthy bool) (Action, error) {
	best, err := version.SelectBest(ref.Constraint, remote)
	if err != nil {
		return Action{}, fmt.Errorf("%s: %w", ref.Identity(), err)
	}
	if rec == nil || !healthy {
		return Action{Kind: NeedsInstall, To: best}, nil
	}
	installed, err := version.ParseVersion(rec.Version)
	if err != nil {
		return Action{Kind: NeedsInstall, To: best}, nil
	}
	if installed.Same(best) {
		return Action{Kind: AlreadySatisfied, From: rec.Version, To: installed}, nil
	}
	return Action{Kind: NeedsUpdate, From: rec.Version, To: best}, nil
}

// Lister returns the versions published for a repository.
type Lister interface {
	Versions(ctx context.Context, owner, repo string) ([]version.Version, error)
}

// HealthFunc reports whether an installed record still verifies.
type HealthFunc func(rec ledger.Record) (bool, error)

// Logger is the subset of the log sink the resolver needs.
type Logger interface {
	Printf(format string, v ...any)
}

// Resolver combines the remote listing with the installed record.
type Resolver struct {
	Lister  Lister
	Healthy HealthFunc
	Logger  Logger
}

func (r *Resolver) logf(format string, v ...any) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Printf(format, v...)
}

// Plan resolves ref against rec (nil when not installed).
//
// Without force, a healthy record short-circuits the remote listing when the
// constraint is exact and pins the installed version, or in ModeInstall when
// the installed version still matches. Everything else lists the remote.
func (r *Resolver) Plan(ctx context.Context, ref PackageRef, rec *ledger.Record, mode Mode, force bool) (Action, error) {
	healthy := false
	if rec != nil && !force && r.Healthy != nil {
		ok, err := r.Healthy(*rec)
		if err != nil {
			r.logf("verify %s %s: %v", rec.Identity, rec.Version, err)
		}
		healthy = ok && err == nil
		if !healthy {
			r.logf("%s %s failed verification, treating as not installed", rec.Identity, rec.Version)
		}
	}

	if healthy {
		if installed, err := version.ParseVersion(rec.Version); err == nil {
			c := ref.Constraint
			if c.IsExact() && c.Matches(installed) {
				return Action{Kind: AlreadySatisfied, From: rec.Version, To: installed}, nil
			}
			if mode == ModeInstall && c.Matches(installed) {
				return Action{Kind: AlreadySatisfied, From: rec.Version, To: installed}, nil
			}
		}
	}

	remote, err := r.Lister.Versions(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return Action{}, fmt.Errorf("list versions of %s: %w", ref.Identity(), err)
	}
	act, err := Resolve(ref, remote, rec, healthy)
	if err != nil {
		return Action{}, err
	}
	if rec != nil && act.From == "" {
		act.From = rec.Version
	}
	return act, nil
}

// Removal is the effect of removing one identity from a ledger.
type Removal struct {
	Record ledger.Record
	// DeleteSlot is true when no other record shares the cache slot.
	DeleteSlot bool
}

// PlanRemoval finds the record for identity and whether its cache slot
// becomes unreferenced once it is gone. It does not modify l.
func PlanRemoval(l *ledger.Ledger, identity string) (Removal, bool) {
	rec, ok := l.Get(identity)
	if !ok {
		return Removal{}, false
	}
	others := l.References(rec.InstallPath) - 1
	return Removal{Record: rec, DeleteSlot: others <= 0}, true
}
