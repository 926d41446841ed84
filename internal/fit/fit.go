// Public domain.

// Package fit solves for model parameters and star positions or fluxes by
// iterated least squares with outlier rejection.
package fit

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/soniakeys/jointcal/internal/model"
	"github.com/soniakeys/jointcal/internal/star"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Result is the outcome of one Minimize call.
type Result int

const (
	// Converged means no outliers were found, or rejection was off.
	Converged Result = iota
	// ChiSquareIncreased means outliers were rejected but chi2 rose.
	ChiSquareIncreased
	// Failed means the normal equations could not be solved.
	Failed
)

func (r Result) String() string {
	switch r {
	case Converged:
		return "Converged"
	case ChiSquareIncreased:
		return "ChiSquareIncreased"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Chi2 is a chi square and its degrees of freedom.
type Chi2 struct {
	Chi2 float64
	Ndof int
}

// Ratio returns chi2/ndof.
func (c Chi2) Ratio() float64 { return c.Chi2 / float64(c.Ndof) }

func (c Chi2) String() string {
	return fmt.Sprintf("chi2/ndof : %g/%d=%g", c.Chi2, c.Ndof, c.Ratio())
}

// term is one chi2 contribution: a measurement, or a fitted star compared
// to its reference.
type term struct {
	n    int // residual dimension, 1 or 2
	r    [2]float64
	w    [2][2]float64 // inverse covariance
	d    model.Derivs  // of r, by global parameter index
	ms   *star.MeasuredStar
	fs   *star.FittedStar
	chi2 float64
}

func (t *term) setChi2() {
	if t.n == 1 {
		t.chi2 = t.r[0] * t.r[0] * t.w[0][0]
		return
	}
	t.chi2 = t.r[0]*(t.w[0][0]*t.r[0]+t.w[0][1]*t.r[1]) +
		t.r[1]*(t.w[1][0]*t.r[0]+t.w[1][1]*t.r[1])
}

// invert2 sets w to the inverse of the symmetric covariance vxx, vyy, vxy.
func (t *term) invert2(vxx, vyy, vxy float64) bool {
	det := vxx*vyy - vxy*vxy
	if !(det > 0) {
		return false
	}
	t.w = [2][2]float64{{vyy / det, -vxy / det}, {-vxy / det, vxx / det}}
	return true
}

// problem is what a Fitter needs from an astrometric or photometric fit.
type problem interface {
	params() *model.ParamTable
	// starStart is the first star parameter index.  Star parameters come
	// in blocks of starBlock, one block per fitted star.
	starStart() int
	starBlock() int
	// terms calls fn for each active chi2 term.  Derivatives are filled
	// only when derivs is true.  t is reused between calls.
	terms(derivs bool, fn func(t *term))
	offsetParams(delta []float64)
	// reject removes t from the fit.
	reject(t *term)
}

// Fitter runs minimization passes on a problem.
type Fitter struct {
	p       problem
	log     zerolog.Logger
	nParTot int // active parameters of the last selection
}

// ComputeChi2 returns the total chi2 of the active terms and its degrees
// of freedom.  It does not change any state.
func (f *Fitter) ComputeChi2() Chi2 {
	var c Chi2
	f.p.terms(false, func(t *term) {
		c.Chi2 += t.chi2
		c.Ndof += t.n
	})
	c.Ndof -= f.nParTot
	return c
}

// selectParams activates the blocks named in whatToFit.
func (f *Fitter) selectParams(whatToFit string) error {
	t := f.p.params()
	if err := t.Select(whatToFit); err != nil {
		return err
	}
	f.nParTot = t.NActive()
	return nil
}

// Minimize solves for the parameter blocks named in whatToFit, for
// example "Distortions Positions".
//
// With nSigmaCut > 0, terms whose chi2 exceeds the mean by more than
// nSigmaCut standard deviations are rejected after each solution, and the
// system is rebuilt and solved again until no term is rejected.
func (f *Fitter) Minimize(whatToFit string, nSigmaCut float64) Result {
	if err := f.selectParams(whatToFit); err != nil {
		f.log.Error().Err(err).Str("whatToFit", whatToFit).Msg("minimize")
		return Failed
	}
	delta, err := f.solve()
	if err != nil {
		f.log.Error().Err(err).Msg("minimize: factorization failed")
		return Failed
	}
	result := Converged
	totalMeas, totalRef := 0, 0
	oldChi2 := f.ComputeChi2().Chi2
	for {
		f.p.offsetParams(delta)
		cur := f.ComputeChi2()
		f.log.Debug().Stringer("chi2", cur).Msg("minimize")
		if math.IsNaN(cur.Chi2) || math.IsInf(cur.Chi2, 0) {
			f.log.Error().Msg("minimize: non-finite chi2")
			return Failed
		}
		if cur.Chi2 > oldChi2 && totalMeas+totalRef != 0 {
			f.log.Warn().Msg("chi2 went up, skipping outlier rejection loop")
			result = ChiSquareIncreased
			break
		}
		oldChi2 = cur.Chi2
		if nSigmaCut == 0 {
			break
		}
		meas, ref := f.findOutliers(nSigmaCut)
		if len(meas)+len(ref) == 0 {
			break
		}
		totalMeas += len(meas)
		totalRef += len(ref)
		for _, t := range meas {
			f.p.reject(t)
		}
		for _, t := range ref {
			f.p.reject(t)
		}
		if delta, err = f.solve(); err != nil {
			f.log.Error().Err(err).Msg("minimize: factorization failed")
			return Failed
		}
	}
	if nSigmaCut != 0 {
		f.log.Info().Int("measured", totalMeas).Int("reference", totalRef).
			Int("total", totalMeas+totalRef).Msg("outliers")
	}
	return result
}

// collect returns copies of all active terms.
func (f *Fitter) collect(derivs bool) []*term {
	var ts []*term
	f.p.terms(derivs, func(t *term) {
		c := *t
		c.d = model.Derivs{
			Index: append([]int(nil), t.d.Index...),
			DX:    append([]float64(nil), t.d.DX...),
			DY:    append([]float64(nil), t.d.DY...),
		}
		ts = append(ts, &c)
	})
	return ts
}

// findOutliers returns the measurement and reference terms to reject.
//
// Terms are taken strongest first.  A term is skipped when a stronger
// rejected term already constrains one of its active parameters, and
// when it is the only constraint on a fitted star.
func (f *Fitter) findOutliers(nSigmaCut float64) (meas, ref []*term) {
	ts := f.collect(true)
	if len(ts) == 0 {
		return
	}
	chi2 := make([]float64, len(ts))
	for i, t := range ts {
		chi2[i] = t.chi2
	}
	mean, sigma := stat.MeanStdDev(chi2, nil)
	cut := mean + nSigmaCut*sigma
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].chi2 > ts[j].chi2 })
	f.log.Debug().Float64("mean", mean).Float64("sigma", sigma).Float64("cut", cut).
		Msg("outlier chi2 statistics")

	params := f.p.params()
	affected := make(map[int]bool)
	for _, t := range ts {
		if t.chi2 < cut {
			break
		}
		if t.ms == nil {
			if t.fs.MeasurementCount == 0 {
				f.log.Warn().Int("fittedStar", t.fs.Index).
					Msg("fitted star with no measurements found as an outlier")
				continue
			}
		} else if t.fs.MeasurementCount == 1 && t.fs.Ref == nil {
			f.log.Warn().Int("fittedStar", t.fs.Index).
				Msg("fitted star with 1 measurement and no reference found as an outlier")
			continue
		}
		var idx []int
		for _, i := range t.d.Index {
			if params.Active(i) {
				idx = append(idx, i)
			}
		}
		drop := true
		for _, i := range idx {
			if affected[i] {
				drop = false
				break
			}
		}
		if !drop {
			continue
		}
		for _, i := range idx {
			affected[i] = true
		}
		if t.ms == nil {
			ref = append(ref, t)
		} else {
			meas = append(meas, t)
		}
	}
	f.log.Info().Int("measured", len(meas)).Int("reference", len(ref)).
		Msg("findOutliers")
	return
}

// starBlock accumulates the normal equation rows of one fitted star.
type starBlock struct {
	c    [2][2]float64
	g    [2]float64
	bIdx []int        // compact model indices coupled to the star
	b    [][2]float64 // H[model][star]
	pos  map[int]int  // compact model index to position in bIdx
}

func (s *starBlock) addB(m, k int, v float64) {
	p, ok := s.pos[m]
	if !ok {
		p = len(s.bIdx)
		s.pos[m] = p
		s.bIdx = append(s.bIdx, m)
		s.b = append(s.b, [2]float64{})
	}
	s.b[p][k] += v
}

// inverse returns the inverse of the n x n star block.
func (s *starBlock) inverse(n int) ([2][2]float64, bool) {
	if n == 1 {
		if !(s.c[0][0] > 0) {
			return [2][2]float64{}, false
		}
		return [2][2]float64{{1 / s.c[0][0]}}, true
	}
	det := s.c[0][0]*s.c[1][1] - s.c[0][1]*s.c[1][0]
	if !(det > 0) {
		return [2][2]float64{}, false
	}
	return [2][2]float64{
		{s.c[1][1] / det, -s.c[0][1] / det},
		{-s.c[1][0] / det, s.c[0][0] / det},
	}, true
}

// solve builds the normal equations of the active parameters at the
// current state and returns the full length update.
//
// Star blocks are eliminated by Schur complement.  The reduced system over
// model parameters is solved by Cholesky factorization.
func (f *Fitter) solve() ([]float64, error) {
	params := f.p.params()
	ss, bs := f.p.starStart(), f.p.starBlock()
	ts := f.collect(true)

	// compact indices of active model parameters that appear in a term
	compact := make(map[int]int)
	var modelIdx []int
	for _, t := range ts {
		for _, i := range t.d.Index {
			if i < ss && params.Active(i) {
				if _, ok := compact[i]; !ok {
					compact[i] = -1
					modelIdx = append(modelIdx, i)
				}
			}
		}
	}
	sort.Ints(modelIdx)
	for k, i := range modelIdx {
		compact[i] = k
	}
	nm := len(modelIdx)
	a := make([]float64, nm*nm)
	gm := make([]float64, nm)
	stars := make([]*starBlock, (params.Len()-ss)/bs)

	var wa [2]float64
	for _, t := range ts {
		d := &t.d
		for ia, i := range d.Index {
			if !params.Active(i) {
				continue
			}
			da := [2]float64{d.DX[ia], d.DY[ia]}
			wa[0] = t.w[0][0]*da[0] + t.w[0][1]*da[1]
			wa[1] = t.w[1][0]*da[0] + t.w[1][1]*da[1]
			if t.n == 1 {
				wa[0], wa[1] = t.w[0][0]*da[0], 0
			}
			gi := wa[0]*t.r[0] + wa[1]*t.r[1]
			var sb *starBlock
			var ki int
			if i >= ss {
				s := (i - ss) / bs
				ki = (i - ss) % bs
				if stars[s] == nil {
					stars[s] = &starBlock{pos: map[int]int{}}
				}
				sb = stars[s]
				sb.g[ki] += gi
			} else {
				gm[compact[i]] += gi
			}
			for ib, j := range d.Index {
				if !params.Active(j) {
					continue
				}
				h := wa[0]*d.DX[ib] + wa[1]*d.DY[ib]
				switch {
				case i < ss && j < ss:
					ci, cj := compact[i], compact[j]
					if ci <= cj {
						a[ci*nm+cj] += h
					}
				case i < ss && j >= ss:
					s := (j - ss) / bs
					if stars[s] == nil {
						stars[s] = &starBlock{pos: map[int]int{}}
					}
					stars[s].addB(compact[i], (j-ss)%bs, h)
				case i >= ss && j >= ss:
					if (j-ss)/bs == (i-ss)/bs {
						sb.c[ki][(j-ss)%bs] += h
					}
				}
			}
		}
	}

	// eliminate star blocks
	inv := make([][2][2]float64, len(stars))
	for s, sb := range stars {
		if sb == nil {
			continue
		}
		ci, ok := sb.inverse(bs)
		if !ok {
			return nil, fmt.Errorf("singular block for fitted star %d", s)
		}
		inv[s] = ci
		// e = C⁻¹ bᵀ for each coupled model parameter
		e := make([][2]float64, len(sb.b))
		for p, b := range sb.b {
			e[p] = [2]float64{
				ci[0][0]*b[0] + ci[0][1]*b[1],
				ci[1][0]*b[0] + ci[1][1]*b[1],
			}
		}
		cg := [2]float64{
			ci[0][0]*sb.g[0] + ci[0][1]*sb.g[1],
			ci[1][0]*sb.g[0] + ci[1][1]*sb.g[1],
		}
		for p, mi := range sb.bIdx {
			b := sb.b[p]
			gm[mi] -= b[0]*cg[0] + b[1]*cg[1]
			for q, mj := range sb.bIdx {
				if mi <= mj {
					a[mi*nm+mj] -= b[0]*e[q][0] + b[1]*e[q][1]
				}
			}
		}
	}

	delta := make([]float64, params.Len())
	dm := make([]float64, nm)
	if nm > 0 {
		var ch mat.Cholesky
		if ok := ch.Factorize(mat.NewSymDense(nm, a)); !ok {
			return nil, fmt.Errorf("normal equations not positive definite (%d parameters)", nm)
		}
		rhs := make([]float64, nm)
		for k, g := range gm {
			rhs[k] = -g
		}
		var x mat.VecDense
		if err := ch.SolveVecTo(&x, mat.NewVecDense(nm, rhs)); err != nil {
			return nil, err
		}
		for k, i := range modelIdx {
			dm[k] = x.AtVec(k)
			delta[i] = dm[k]
		}
	}
	for s, sb := range stars {
		if sb == nil {
			continue
		}
		r := [2]float64{-sb.g[0], -sb.g[1]}
		for p, mi := range sb.bIdx {
			r[0] -= sb.b[p][0] * dm[mi]
			r[1] -= sb.b[p][1] * dm[mi]
		}
		ci := inv[s]
		base := ss + s*bs
		delta[base] = ci[0][0]*r[0] + ci[0][1]*r[1]
		if bs == 2 {
			delta[base+1] = ci[1][0]*r[0] + ci[1][1]*r[1]
		}
	}
	if s := floats.Sum(delta); math.IsNaN(s) || math.IsInf(s, 0) {
		return nil, fmt.Errorf("non-finite parameter update")
	}
	return delta, nil
}
