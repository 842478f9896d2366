package pkgmgr

import (
	"context"
	"fmt"

	"opencli/internal/cache"
	"opencli/internal/ledger"
	"opencli/internal/resolve"
)

// Removal reports what Remove did.
type Removal struct {
	Identity string
	// Record is the ledger record that was dropped, zero when the package
	// was only declared in the manifest.
	Record      ledger.Record
	Installed   bool
	SlotDeleted bool
	FilesLeft   []string
}

// Remove uninstalls identity: its placed files are deleted, its record and
// manifest entry dropped, and its cache slot invalidated when no other
// record of this project and no other project's ledger uses it.
func (s *Session) Remove(ctx context.Context, identity string) (Removal, error) {
	if _, _, err := resolve.ParseRef(identity); err != nil {
		return Removal{}, err
	}
	if err := ctx.Err(); err != nil {
		return Removal{}, err
	}

	out := Removal{Identity: identity}
	declared := s.Manifest.RemovePackage(identity)
	rec, installed := s.findRecord(identity)
	if !installed && !declared {
		return out, fmt.Errorf("%s: %w", identity, ErrNotInstalled)
	}

	if installed {
		out.Identity = rec.Identity
		out.Record = rec
		out.Installed = true

		s.mu.Lock()
		plan, _ := resolve.PlanRemoval(s.Ledger, rec.Identity)
		s.Ledger.Remove(rec.Identity)
		s.mu.Unlock()

		if err := s.removeFiles(rec.Files); err != nil {
			s.logf("%s: %v", rec.Identity, err)
			out.FilesLeft = s.existingFiles(rec.Files)
		}
		others, err := s.Store.Release(cache.Identity(rec.Identity), rec.Version, s.Ledger.Path())
		if err != nil {
			s.logf("%s: %v", rec.Identity, err)
			others = 1
		}
		if plan.DeleteSlot && others == 0 {
			if err := s.Store.Invalidate(cache.Identity(rec.Identity), rec.Version); err != nil {
				s.logf("%s: %v", rec.Identity, err)
			} else {
				out.SlotDeleted = true
			}
		}
		if err := s.Ledger.Save(); err != nil {
			return out, err
		}
		if err := s.syncLegacyPlugins(nil, rec.Files); err != nil {
			return out, err
		}
	}

	if declared {
		if err := s.Manifest.Save(s.Paths.ManifestFile); err != nil {
			return out, err
		}
	}
	s.logf("removed %s (installed=%t, slot deleted=%t)", out.Identity, out.Installed, out.SlotDeleted)
	return out, nil
}

func (s *Session) existingFiles(files []string) []string {
	missing := s.missingFiles(files)
	return subtract(files, missing)
}
