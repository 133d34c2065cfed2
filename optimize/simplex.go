package optimize

import (
	"math"
	"sort"
)

// Nelder-Mead coefficients and the initial-simplex offsets.
const (
	reflectCoeff  = 1
	expandCoeff   = 2
	contractCoeff = 0.5
	shrinkCoeff   = 0.5

	usualDelta    = 0.05
	zeroTermDelta = 0.00025
)

// Simplex is a downhill-simplex minimizer. It refines a simplex of
// n+1 candidate vectors with reflection, expansion, contraction and
// shrink moves until both the positional spread drops below TolX and
// the value spread drops below TolF, or MaxIter iterations pass.
type Simplex struct {
	TolX    float64
	TolF    float64
	MaxIter int
	// ReportPeriod controls debug trace frequency.
	ReportPeriod int
}

// NewSimplex creates a simplex minimizer with the default tolerances.
func NewSimplex() *Simplex {
	return &Simplex{
		TolX:         1e-6,
		TolF:         1e-6,
		MaxIter:      10000,
		ReportPeriod: 50,
	}
}

// Run minimizes f starting from start. The starting vector is not
// modified; the returned result owns its vector. Run keeps no state
// between calls, so one Simplex can drive many independent searches.
func (s *Simplex) Run(f Objective, start []float64) *Result {
	n := len(start)
	res := &Result{}

	eval := func(x []float64) float64 {
		res.Calls++
		return f(x)
	}

	// Initial simplex: the start point plus one vertex per
	// dimension, offset along that dimension.
	points := make([][]float64, n+1)
	values := make([]float64, n+1)
	points[0] = append([]float64(nil), start...)
	values[0] = eval(points[0])
	for i := 1; i <= n; i++ {
		points[i] = append([]float64(nil), start...)
		if points[i][i-1] != 0 {
			points[i][i-1] *= 1 + usualDelta
		} else {
			points[i][i-1] = zeroTermDelta
		}
		values[i] = eval(points[i])
	}

	order := make([]int, n+1)
	centroid := make([]float64, n)
	trial := make([]float64, n)

	for res.Iters = 1; res.Iters <= s.MaxIter; res.Iters++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return less(values[order[a]], values[order[b]])
		})
		best, worst := order[0], order[n]

		if s.ReportPeriod > 0 && res.Iters%s.ReportPeriod == 0 {
			log.Debugf("%d: f=%v (spread %v)", res.Iters, values[best], values[worst]-values[best])
		}

		if s.spreadConverged(points, values, order) {
			res.Converged = true
			break
		}

		// Centroid of all vertices but the worst.
		for j := range centroid {
			centroid[j] = 0
		}
		for _, i := range order[:n] {
			for j, v := range points[i] {
				centroid[j] += v / float64(n)
			}
		}

		// Reflection.
		for j := range trial {
			trial[j] = centroid[j] + reflectCoeff*(centroid[j]-points[worst][j])
		}
		fr := eval(trial)

		switch {
		case less(fr, values[best]):
			// Expansion.
			expanded := make([]float64, n)
			for j := range expanded {
				expanded[j] = centroid[j] + expandCoeff*(centroid[j]-points[worst][j])
			}
			fe := eval(expanded)
			if less(fe, fr) {
				copy(points[worst], expanded)
				values[worst] = fe
			} else {
				copy(points[worst], trial)
				values[worst] = fr
			}
		case less(fr, values[order[n-1]]):
			copy(points[worst], trial)
			values[worst] = fr
		default:
			// Contraction, outside or inside of the worst
			// vertex depending on the reflected value.
			contracted := make([]float64, n)
			if less(fr, values[worst]) {
				for j := range contracted {
					contracted[j] = centroid[j] + contractCoeff*(centroid[j]-points[worst][j])
				}
				fc := eval(contracted)
				if !less(fr, fc) {
					copy(points[worst], contracted)
					values[worst] = fc
					continue
				}
			} else {
				for j := range contracted {
					contracted[j] = centroid[j] - contractCoeff*(centroid[j]-points[worst][j])
				}
				fc := eval(contracted)
				if less(fc, values[worst]) {
					copy(points[worst], contracted)
					values[worst] = fc
					continue
				}
			}
			// Shrink towards the best vertex.
			for _, i := range order[1:] {
				for j := range points[i] {
					points[i][j] = points[best][j] + shrinkCoeff*(points[i][j]-points[best][j])
				}
				values[i] = eval(points[i])
			}
		}
	}
	if res.Iters > s.MaxIter {
		res.Iters = s.MaxIter
		log.Warningf("Iterations exceeded (%d)", s.MaxIter)
	}

	best := 0
	for i := 1; i <= n; i++ {
		if less(values[i], values[best]) {
			best = i
		}
	}
	res.X = append([]float64(nil), points[best]...)
	res.F = values[best]
	log.Infof("Finished downhill simplex: f=%v after %d iterations (%d calls)", res.F, res.Iters, res.Calls)
	return res
}

// spreadConverged reports whether the positional spread is below TolX
// and the value spread is below TolF. Infinite values never converge.
func (s *Simplex) spreadConverged(points [][]float64, values []float64, order []int) bool {
	best := order[0]
	if math.IsInf(values[best], 0) || math.IsNaN(values[best]) {
		return false
	}
	maxX := 0.0
	maxF := 0.0
	for _, i := range order[1:] {
		for j := range points[i] {
			if d := math.Abs(points[i][j] - points[best][j]); d > maxX {
				maxX = d
			}
		}
		if d := math.Abs(values[i] - values[best]); d > maxF || math.IsNaN(d) {
			maxF = d
		}
	}
	return maxX < s.TolX && maxF < s.TolF
}

// less orders objective values treating NaN as worse than anything.
func less(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}
