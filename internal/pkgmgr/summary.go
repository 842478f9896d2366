package pkgmgr

import (
	"errors"
	"fmt"

	"opencli/internal/cache"
	"opencli/internal/resolve"
	"opencli/internal/retry"
	"opencli/internal/version"
)

// Summary counts the outcomes of one command. Err is the most severe
// failure, nil when every package succeeded.
type Summary struct {
	Installed int
	Updated   int
	Satisfied int
	Failed    int
	Err       error
}

// Summarize folds outcomes into a Summary.
func Summarize(outcomes []Outcome) Summary {
	var (
		sum   Summary
		worst Outcome
	)
	for _, o := range outcomes {
		if o.Err != nil {
			sum.Failed++
			if worst.Err == nil || Severity(o.Err) > Severity(worst.Err) {
				worst = o
			}
			continue
		}
		switch o.Action.Kind {
		case resolve.NeedsInstall:
			sum.Installed++
		case resolve.NeedsUpdate:
			sum.Updated++
		default:
			sum.Satisfied++
		}
	}
	switch {
	case sum.Failed == 1:
		sum.Err = worst.Err
	case sum.Failed > 1:
		sum.Err = fmt.Errorf("%d of %d packages failed, first by severity %s: %w",
			sum.Failed, len(outcomes), worst.Ref.Identity(), worst.Err)
	}
	return sum
}

// Severity ranks failures: integrity above download above resolution above
// anything else.
func Severity(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, cache.ErrIntegrity):
		return 4
	case errors.Is(err, cache.ErrFetch), errors.Is(err, retry.ErrUnreachable):
		return 3
	case errors.Is(err, version.ErrNoMatch), errors.Is(err, version.ErrMalformed), errors.Is(err, version.ErrInvalidRange):
		return 2
	default:
		return 1
	}
}
