// Package prior estimates the root family size prior: a Poisson
// distribution shifted by one, fitted to the observed leaf sizes by
// maximum likelihood.
package prior

import (
	"errors"
	"math"
	"math/rand"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bucongfan/CAFE/family"
	"github.com/bucongfan/CAFE/optimize"
)

// log is the global logging variable.
var log = logging.MustGetLogger("prior")

// FitPoisson finds the Poisson rate maximizing the likelihood of the
// shifted leaf sizes (observed count minus one, zero counts excluded).
// The search starts from a uniform random point in (0, 1).
func FitPoisson(sizes []int, opt optimize.Minimizer, rnd *rand.Rand) (float64, error) {
	if len(sizes) == 0 {
		return 0, errors.New("no nonzero leaf counts to fit the root size prior")
	}

	f := func(x []float64) float64 {
		if x[0] <= 0 {
			return math.Inf(+1)
		}
		pois := distuv.Poisson{Lambda: x[0]}
		score := 0.0
		for _, s := range sizes {
			p := pois.Prob(float64(s))
			if math.IsNaN(p) {
				p = 0
			}
			score -= math.Log(p)
		}
		return score
	}

	start := rnd.Float64()
	res := opt.Run(f, []float64{start})
	if math.IsInf(res.F, 0) || math.IsNaN(res.F) {
		return 0, errors.New("failed to fit the root size prior")
	}
	log.Infof("Empirical Prior Estimation Result: (%d iterations) Poisson lambda: %v & Score: %v",
		res.Iters, res.X[0], res.F)
	return res.X[0], nil
}

// RootSizePrior fits the Poisson rate and tabulates the shifted mass
// over the probing window. Index i holds the mass of root size
// rng.RootMin+i, which is the Poisson probability of rng.RootMin-1+i.
func RootSizePrior(fams *family.Table, rng family.SizeRange, opt optimize.Minimizer, rnd *rand.Rand) ([]float64, error) {
	lambda, err := FitPoisson(fams.LeafSizes(), opt, rnd)
	if err != nil {
		return nil, err
	}
	return Tabulate(lambda, rng), nil
}

// Tabulate evaluates the shifted Poisson mass for every candidate root
// size of the window.
func Tabulate(lambda float64, rng family.SizeRange) []float64 {
	pois := distuv.Poisson{Lambda: lambda}
	prior := make([]float64, family.SizeMax)
	for i := range prior {
		prior[i] = pois.Prob(float64(rng.RootMin - 1 + i))
	}
	return prior
}
