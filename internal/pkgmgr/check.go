package pkgmgr

import (
	"context"

	"opencli/internal/ledger"
)

// CheckResult is the verification state of one installed record.
type CheckResult struct {
	Record ledger.Record
	// Valid is true when the cache slot still matches the recorded digest.
	Valid bool
	// Missing lists placed files that are gone from the project.
	Missing []string
	Err     error
}

// OK reports whether the record needs no attention.
func (r CheckResult) OK() bool {
	return r.Err == nil && r.Valid && len(r.Missing) == 0
}

// Check recomputes the digest of every installed record and looks for
// placed files that were deleted. It stops early only when ctx is done.
func (s *Session) Check(ctx context.Context) ([]CheckResult, error) {
	records := s.List()
	results := make([]CheckResult, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := CheckResult{Record: rec}
		res.Valid, res.Err = healthy(rec)
		res.Missing = s.missingFiles(rec.Files)
		if !res.OK() {
			s.logf("check %s %s: valid=%t missing=%d err=%v", rec.Identity, rec.Version, res.Valid, len(res.Missing), res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Failed returns the results that need attention.
func Failed(results []CheckResult) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
