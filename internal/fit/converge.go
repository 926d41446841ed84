// Public domain.

package fit

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultMaxPasses is the usual limit on outlier rejection passes.
const DefaultMaxPasses = 20

var (
	// ErrFitFailed is returned by Converge when a minimization fails.
	ErrFitFailed = errors.New("fit failed")
	// ErrUnexpectedResult is returned by Converge for an unknown Result.
	ErrUnexpectedResult = errors.New("unexpected result from minimize")
)

// Minimizer is the part of a fit Converge drives.
type Minimizer interface {
	Minimize(whatToFit string, nSigmaCut float64) Result
	ComputeChi2() Chi2
}

// Outcome summarizes a Converge run.
type Outcome struct {
	Converged bool
	Passes    int
	Chi2      Chi2
}

// Converge calls Minimize with outlier rejection until it converges, up to
// maxPasses times.  After convergence one more pass is made.  Running out
// of passes is not an error; Outcome.Converged is false and the last chi2
// is reported.
func Converge(m Minimizer, log zerolog.Logger, whatToFit string, nSigmaCut float64, maxPasses int) (Outcome, error) {
	var o Outcome
	for o.Passes < maxPasses {
		r := m.Minimize(whatToFit, nSigmaCut)
		o.Passes++
		o.Chi2 = m.ComputeChi2()
		log.Info().Int("pass", o.Passes).Stringer("result", r).Stringer("chi2", o.Chi2).
			Msg(whatToFit)
		switch r {
		case Converged:
			log.Debug().Msg("fit has converged, no more outliers; one more minimization")
			r = m.Minimize(whatToFit, nSigmaCut)
			o.Chi2 = m.ComputeChi2()
			if r == Failed {
				return o, fmt.Errorf("%s: %w", whatToFit, ErrFitFailed)
			}
			o.Converged = true
			return o, nil
		case ChiSquareIncreased:
			log.Warn().Msg("still some outliers but chi2 increases, retry")
		case Failed:
			return o, fmt.Errorf("%s: %w", whatToFit, ErrFitFailed)
		default:
			return o, fmt.Errorf("%s: %w %v", whatToFit, ErrUnexpectedResult, r)
		}
	}
	log.Warn().Int("passes", o.Passes).Stringer("chi2", o.Chi2).
		Msg("fit did not converge")
	return o, nil
}
