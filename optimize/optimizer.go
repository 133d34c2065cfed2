// Package optimize provides derivative-free minimization of black-box
// objectives over real parameter vectors.
package optimize

import (
	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("optimize")

// Objective is a scalar function to minimize. It may return +Inf to
// reject a point; no smoothness is assumed.
type Objective func(x []float64) float64

// Result is the outcome of one minimization.
type Result struct {
	// X is the best vector found.
	X []float64
	// F is the objective value at X.
	F float64
	// Iters is the number of iterations performed.
	Iters int
	// Calls is the number of objective evaluations.
	Calls int
	// Converged reports whether a tolerance was met before the
	// iteration budget ran out.
	Converged bool
}

// Minimizer is a derivative-free scalar-objective minimizer.
type Minimizer interface {
	Run(f Objective, start []float64) *Result
}
