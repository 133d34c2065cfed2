package lambda

import (
	"math"
	"math/rand"
	"testing"
)

func TestLayoutNumParams(tst *testing.T) {
	cases := []struct {
		l    Layout
		want int
	}{
		{Layout{NumRates: 1}, 1},
		{Layout{NumRates: 3}, 3},
		{Layout{NumRates: 1, K: 1}, 1},
		{Layout{NumRates: 2, K: 3}, 8},
		{Layout{NumRates: 2, K: 3, FixCluster0: true}, 6},
	}
	for _, c := range cases {
		if got := c.l.NumParams(); got != c.want {
			tst.Error("Layout", c.l, ": expected", c.want, "params, got", got)
		}
	}
	l := Layout{NumRates: 2}
	if err := l.Validate([]float64{0.1}); err == nil {
		tst.Error("Expected a parameter-count error")
	}
	if err := l.Validate([]float64{0.1, 0.2}); err != nil {
		tst.Error("Unexpected error:", err)
	}
}

func TestLayoutRatesAndWeights(tst *testing.T) {
	l := Layout{NumRates: 2, K: 3, FixCluster0: true}
	// Two free clusters of two rates, then two free weights.
	params := []float64{0.1, 0.2, 0.3, 0.4, 0.25, 0.35}

	for i, r := range l.Rates(params, 0) {
		if r != 0 {
			tst.Error("Fixed cluster rate", i, "is", r)
		}
	}
	r1 := l.Rates(params, 1)
	if r1[0] != 0.1 || r1[1] != 0.2 {
		tst.Error("Unexpected cluster 1 rates:", r1)
	}
	r2 := l.Rates(params, 2)
	if r2[0] != 0.3 || r2[1] != 0.4 {
		tst.Error("Unexpected cluster 2 rates:", r2)
	}

	w := l.Weights(params)
	if w[0] != 0.25 || w[1] != 0.35 || math.Abs(w[2]-0.4) > 1e-12 {
		tst.Error("Unexpected weights:", w)
	}
	if l.FirstWeightIndex() != 4 {
		tst.Error("Unexpected first weight index:", l.FirstWeightIndex())
	}
}

func TestLayoutRandomize(tst *testing.T) {
	l := Layout{NumRates: 2, K: 3}
	rnd := rand.New(rand.NewSource(1))
	maxBr := 2.0
	for trial := 0; trial < 10; trial++ {
		params := l.Randomize(rnd, maxBr)
		if len(params) != l.NumParams() {
			tst.Fatal("Expected", l.NumParams(), "params, got", len(params))
		}
		for i := 0; i < l.FirstWeightIndex(); i++ {
			if params[i] < 0 || params[i]*maxBr >= 1 {
				tst.Error("Rate outside the validity bound:", params[i])
			}
		}
		for _, w := range l.Weights(params) {
			if w < 0 || w > 1 {
				tst.Error("Weight outside [0,1]:", w)
			}
		}
	}
}

func TestLayoutStart(tst *testing.T) {
	l := Layout{NumRates: 1, K: 2}
	params := l.Start(2.0)
	if params[0] != 0.25 {
		tst.Error("Expected starting rate 0.25, got", params[0])
	}
	if params[l.FirstWeightIndex()] != 0.5 {
		tst.Error("Expected starting weight 0.5, got", params[l.FirstWeightIndex()])
	}
}
