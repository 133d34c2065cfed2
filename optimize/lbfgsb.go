package optimize

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB minimizes an objective with the bounded limited-memory BFGS
// method. Gradients are estimated with central differences, so the
// objective is evaluated 2n extra times per gradient.
type LBFGSB struct {
	// Bounds holds per-dimension [min, max] pairs; nil means
	// unbounded.
	Bounds [][2]float64
	FTol   float64
	GTol   float64
	// DH is the step of the numerical gradient.
	DH float64
}

// NewLBFGSB creates an LBFGS-B minimizer with default tolerances.
func NewLBFGSB() *LBFGSB {
	return &LBFGSB{
		FTol: 1e-9,
		GTol: 1e-9,
		DH:   1e-6,
	}
}

// lbfgsbObjective adapts an Objective to the go-lbfgsb callback
// interface.
type lbfgsbObjective struct {
	f     Objective
	dh    float64
	grad  []float64
	calls int
}

func (o *lbfgsbObjective) EvaluateFunction(x []float64) float64 {
	o.calls++
	return o.f(x)
}

func (o *lbfgsbObjective) EvaluateGradient(x []float64) []float64 {
	if o.grad == nil {
		o.grad = make([]float64, len(x))
	}
	point := append([]float64(nil), x...)
	for i := range x {
		point[i] = x[i] - o.dh
		f1 := o.f(point)
		point[i] = x[i] + o.dh
		f2 := o.f(point)
		point[i] = x[i]
		o.calls += 2
		o.grad[i] = (f2 - f1) / (2 * o.dh)
	}
	return o.grad
}

// Run minimizes f starting from start.
func (l *LBFGSB) Run(f Objective, start []float64) *Result {
	res := &Result{}

	bounds := l.Bounds
	if bounds == nil {
		bounds = make([][2]float64, len(start))
		for i := range bounds {
			bounds[i][0] = math.Inf(-1)
			bounds[i][1] = math.Inf(+1)
		}
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(l.FTol)
	opt.SetGTolerance(l.GTol)
	opt.SetBounds(bounds)
	opt.SetLogger(func(info *lbfgsb.OptimizationIterationInformation) {
		res.Iters = info.Iteration
		log.Debugf("%d: f=%v", info.Iteration, info.F)
	})

	obj := &lbfgsbObjective{f: f, dh: l.DH}
	minimum, exitStatus := opt.Minimize(obj, start)
	log.Infof("LBFGSB exit status: %v", exitStatus)

	res.X = minimum.X
	res.F = minimum.F
	res.Calls = obj.calls
	res.Converged = exitStatus.Code == lbfgsb.SUCCESS ||
		exitStatus.Code == lbfgsb.APPROXIMATE
	return res
}
