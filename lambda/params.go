package lambda

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Layout describes the flat parameter vector of one search: the rate
// values of every free cluster, one per rate class, followed by the
// free mixture weights (the last weight is implied by sum-to-one).
type Layout struct {
	// NumRates is the number of rate classes of the partition.
	NumRates int
	// K is the mixture cluster count; zero or one disables
	// clustering.
	K int
	// FixCluster0 pins the first cluster's rates at zero, removing
	// them from the vector.
	FixCluster0 bool
}

func (l Layout) clusters() int {
	if l.K > 1 {
		return l.K
	}
	return 1
}

// freeClusters returns the number of clusters with rates in the
// vector.
func (l Layout) freeClusters() int {
	k := l.clusters()
	if l.K > 1 && l.FixCluster0 {
		k--
	}
	return k
}

// NumParams returns the length of the parameter vector.
func (l Layout) NumParams() int {
	n := l.NumRates * l.freeClusters()
	if l.K > 1 {
		n += l.K - 1
	}
	return n
}

// Validate checks the vector length against the layout. A mismatch is
// fatal to the command and is reported before any search work starts.
func (l Layout) Validate(params []float64) error {
	if len(params) != l.NumParams() {
		return fmt.Errorf("%d parameters given, the model needs %d", len(params), l.NumParams())
	}
	return nil
}

// Rates returns the rate values of one cluster, indexed by rate class
// minus one. A fixed first cluster yields zeros.
func (l Layout) Rates(params []float64, cluster int) []float64 {
	if l.K <= 1 {
		return params[:l.NumRates]
	}
	if l.FixCluster0 {
		if cluster == 0 {
			return make([]float64, l.NumRates)
		}
		cluster--
	}
	return params[cluster*l.NumRates : (cluster+1)*l.NumRates]
}

// Weights expands the free mixture weights into all K cluster weights;
// the last one absorbs the remainder.
func (l Layout) Weights(params []float64) []float64 {
	if l.K <= 1 {
		return []float64{1}
	}
	weights := make([]float64, l.K)
	sum := 0.0
	for c := 0; c < l.K-1; c++ {
		weights[c] = params[l.FirstWeightIndex()+c]
		sum += weights[c]
	}
	weights[l.K-1] = 1 - sum
	return weights
}

// FirstWeightIndex returns the position of the first free mixture
// weight in the vector.
func (l Layout) FirstWeightIndex() int {
	return l.NumRates * l.freeClusters()
}

// Start builds the deterministic starting vector: every rate at
// 0.5/maxBrLen, every free weight at 1/K.
func (l Layout) Start(maxBrLen float64) []float64 {
	params := make([]float64, l.NumParams())
	for i := 0; i < l.FirstWeightIndex(); i++ {
		params[i] = 0.5 / maxBrLen
	}
	if l.K > 1 {
		for c := 0; c < l.K-1; c++ {
			params[l.FirstWeightIndex()+c] = 1 / float64(l.K)
		}
	}
	return params
}

// Randomize builds a random starting vector: rates uniform below the
// validity bound 1/maxBrLen, weights uniform and renormalized.
func (l Layout) Randomize(rnd *rand.Rand, maxBrLen float64) []float64 {
	params := make([]float64, l.NumParams())
	for i := 0; i < l.FirstWeightIndex(); i++ {
		params[i] = rnd.Float64() / maxBrLen
	}
	if l.K > 1 {
		raw := make([]float64, l.K)
		sum := 0.0
		for c := range raw {
			raw[c] = rnd.Float64()
			sum += raw[c]
		}
		for c := 0; c < l.K-1; c++ {
			params[l.FirstWeightIndex()+c] = raw[c] / sum
		}
	}
	return params
}

// RatesString formats every cluster's rates for the log, fixed zeros
// included.
func (l Layout) RatesString(params []float64) string {
	var all []float64
	for c := 0; c < l.clusters(); c++ {
		all = append(all, l.Rates(params, c)...)
	}
	return joinFloats(all)
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', 6, 64)
	}
	return strings.Join(parts, ",")
}
