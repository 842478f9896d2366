package pkgmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"opencli/internal/archive"
	"opencli/internal/cache"
	"opencli/internal/config"
	"opencli/internal/ledger"
	"opencli/internal/resolve"
	"opencli/internal/version"
)

// ErrNotInstalled is returned for packages that are neither in the manifest
// nor in the ledger.
var ErrNotInstalled = errors.New("package is not installed")

// Options tune Install.
type Options struct {
	// Force skips the installed-state short cut and re-downloads.
	Force bool
}

// Outcome is the result of one package task.
type Outcome struct {
	Ref     resolve.PackageRef
	Action  resolve.Action
	Version string
	// Files are the placed files, relative to the project root.
	Files []string
	Err   error

	// mutated is set when the task changed the ledger.
	mutated bool
	// dropped are files of the previous version that are gone now.
	dropped []string
}

// Install brings every ref to a version that satisfies its constraint. With
// no refs the manifest's [packages] are installed; otherwise successful refs
// are added to the manifest. Failures of one package do not stop the others.
//
// The ledger is saved once after all tasks finish, with the successful
// changes only. If ctx is cancelled nothing is saved and ctx.Err() is
// returned.
func (s *Session) Install(ctx context.Context, refs []resolve.PackageRef, opts Options) ([]Outcome, error) {
	fromManifest := len(refs) == 0
	if fromManifest {
		var err error
		refs, err = s.Manifest.PackageRefs()
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			s.logf("manifest declares no packages")
			return nil, nil
		}
	}

	outcomes := s.run(ctx, refs, resolve.ModeInstall, opts.Force)
	if err := ctx.Err(); err != nil {
		s.logf("install interrupted, nothing saved")
		return outcomes, err
	}

	if !fromManifest {
		added := false
		for _, o := range outcomes {
			if o.Err != nil {
				continue
			}
			s.Manifest.SetPackage(o.Ref.Identity(), manifestSpec(o))
			added = true
		}
		if added {
			if err := s.Manifest.Save(s.Paths.ManifestFile); err != nil {
				return outcomes, err
			}
		}
	}
	return outcomes, s.commit(outcomes)
}

// Update moves the named packages, or every manifest package when names is
// empty, to the best version their constraint allows.
func (s *Session) Update(ctx context.Context, names []string) ([]Outcome, error) {
	refs, err := s.UpdateRefs(names)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}

	outcomes := s.run(ctx, refs, resolve.ModeUpdate, false)
	if err := ctx.Err(); err != nil {
		s.logf("update interrupted, nothing saved")
		return outcomes, err
	}
	return outcomes, s.commit(outcomes)
}

// UpdateRefs resolves the packages Update would work on. A name matches the
// manifest first and the ledger second, without regard to case.
func (s *Session) UpdateRefs(names []string) ([]resolve.PackageRef, error) {
	if len(names) == 0 {
		return s.Manifest.PackageRefs()
	}
	refs := make([]resolve.PackageRef, 0, len(names))
	for _, name := range names {
		ref, err := s.updateRef(name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (s *Session) updateRef(name string) (resolve.PackageRef, error) {
	if key, ok := s.Manifest.LookupPackage(name); ok {
		return s.Manifest.PackageRef(key)
	}
	rec, ok := s.findRecord(name)
	if !ok {
		return resolve.PackageRef{}, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	requested := rec.Requested
	if requested == "" {
		requested = "latest"
	}
	ref, err := resolve.ParseSpec(rec.Identity + "=" + requested)
	if err != nil {
		return resolve.PackageRef{}, err
	}
	ref.Target, _ = archive.ParseTarget(rec.Target)
	return ref, nil
}

// run executes one task per ref. A single ref runs inline; several run on a
// bounded set of goroutines and are collected by index.
func (s *Session) run(ctx context.Context, refs []resolve.PackageRef, mode resolve.Mode, force bool) []Outcome {
	outcomes := make([]Outcome, len(refs))
	if len(refs) == 1 {
		s.start(refs[0])
		outcomes[0] = s.installOne(ctx, refs[0], mode, force)
		s.complete(outcomes[0])
		return outcomes
	}

	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, concurrency)
	)
	for i, ref := range refs {
		s.start(ref)
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			o := s.installOne(ctx, ref, mode, force)
			outcomes[i] = o
			s.complete(o)
		}()
	}
	wg.Wait()
	return outcomes
}

func (s *Session) start(ref resolve.PackageRef) {
	if s.Reporter != nil {
		s.Reporter.Start(ref)
	}
}

func (s *Session) complete(o Outcome) {
	if s.Reporter != nil {
		s.Reporter.Complete(o)
	}
}

func (s *Session) installOne(ctx context.Context, ref resolve.PackageRef, mode resolve.Mode, force bool) Outcome {
	out := Outcome{Ref: ref}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	var prev *ledger.Record
	if rec, ok := s.record(ref.Identity()); ok {
		prev = &rec
	}

	act, err := s.Resolver.Plan(ctx, ref, prev, mode, force)
	if err != nil {
		out.Err = err
		return out
	}
	out.Action = act
	out.Version = act.To.String()

	if act.Kind == resolve.AlreadySatisfied {
		missing := s.missingFiles(prev.Files)
		if len(missing) == 0 {
			out.Files = prev.Files
			s.logf("%s %s already satisfies %s", ref.Identity(), prev.Version, ref.Constraint)
			return out
		}
		s.logf("%s %s: %d placed files missing, restoring from cache", ref.Identity(), prev.Version, len(missing))
		files, err := s.place(prev.InstallPath, ref.Target)
		if err != nil {
			out.Err = fmt.Errorf("%s: %w", ref.Identity(), err)
			return out
		}
		out.Files = files
		return out
	}

	opts := cache.FetchOptions{Force: force}
	if !force && prev != nil && prev.Version == out.Version {
		opts.Expect = prev.ContentHash
	}
	res, err := s.Store.FetchOrGet(ctx, cache.Identity(ref.Identity()), out.Version, s.fetcher(ref, act.To), opts)
	if err != nil {
		out.Err = err
		return out
	}

	files, err := s.place(res.Entry.Path, ref.Target)
	if err != nil {
		out.Err = fmt.Errorf("%s %s: %w", ref.Identity(), out.Version, err)
		return out
	}
	out.Files = files

	if prev != nil {
		out.dropped = subtract(prev.Files, files)
		if err := s.removeFiles(out.dropped); err != nil {
			s.logf("%s: remove files of %s: %v", ref.Identity(), prev.Version, err)
		}
	}

	s.store(ledger.Record{
		Identity:    ref.Identity(),
		Version:     out.Version,
		Requested:   ref.Constraint.String(),
		InstallPath: res.Entry.Path,
		ContentHash: res.Entry.Digest,
		InstalledAt: nowFunc().UTC(),
		Target:      string(ref.Target),
		Files:       files,
	})
	out.mutated = true
	s.logf("%s: %s %s (%d files)", ref.Identity(), act.Kind, out.Version, len(files))
	return out
}

// fetcher looks the release up lazily so a cache hit needs no listing.
func (s *Session) fetcher(ref resolve.PackageRef, v version.Version) cache.Fetcher {
	return cache.FetcherFunc(func(ctx context.Context, dir string) (string, error) {
		rel, err := s.Source.ReleaseFor(ctx, ref.Owner, ref.Repo, v)
		if err != nil {
			return "", err
		}
		return s.Source.PackageFetcher(ref.Owner, ref.Repo, rel).Fetch(ctx, dir)
	})
}

// commit persists the ledger and the legacy plugin list when any task
// changed something.
func (s *Session) commit(outcomes []Outcome) error {
	var add, drop []string
	changed := false
	for _, o := range outcomes {
		if o.Err != nil || !o.mutated {
			continue
		}
		changed = true
		add = append(add, o.Files...)
		drop = append(drop, o.dropped...)
	}
	if changed {
		if err := s.Ledger.Save(); err != nil {
			return err
		}
	}
	if err := s.retainSlots(outcomes); err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.syncLegacyPlugins(add, drop)
}

// retainSlots registers the project ledger as a user of every slot its
// successful outcomes point at, and releases the slot an update moved away
// from. The old slot itself stays cached.
func (s *Session) retainSlots(outcomes []Outcome) error {
	owner := s.Ledger.Path()
	for _, o := range outcomes {
		if o.Err != nil || o.Version == "" {
			continue
		}
		id := cache.Identity(o.Ref.Identity())
		if err := s.Store.Retain(id, o.Version, owner); err != nil {
			return err
		}
		if o.mutated && o.Action.From != "" && o.Action.From != o.Version {
			if _, err := s.Store.Release(id, o.Action.From, owner); err != nil {
				return err
			}
		}
	}
	return nil
}

// manifestSpec is what an install by name writes to [packages]. An
// unconstrained request is pinned to the compatible range of what was
// installed.
func manifestSpec(o Outcome) config.PackageSpec {
	constraint := o.Ref.Constraint.String()
	if o.Ref.Constraint.Kind() == version.KindLatest && o.Version != "" {
		constraint = "^" + o.Version
	}
	return config.PackageSpec{Version: constraint, Target: o.Ref.Target}
}

// findRecord matches identity against the ledger without regard to case.
func (s *Session) findRecord(identity string) (ledger.Record, bool) {
	if rec, ok := s.record(identity); ok {
		return rec, true
	}
	for _, rec := range s.List() {
		if strings.EqualFold(rec.Identity, identity) {
			return rec, true
		}
	}
	return ledger.Record{}, false
}

func subtract(from, minus []string) []string {
	var out []string
	for _, f := range from {
		if !slices.Contains(minus, f) {
			out = append(out, f)
		}
	}
	return out
}
