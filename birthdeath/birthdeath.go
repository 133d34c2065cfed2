// Package birthdeath computes birth-death transition probabilities
// for gene-family sizes and caches them per candidate parameter
// vector.
package birthdeath

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"
)

// Probability returns the probability that a family of size s becomes
// size c over a branch of length t under a linear birth-death process
// with birth rate lam and death rate mu. When lam*t approaches one the
// process coefficient leaves (0,1) and the probability collapses to
// zero; callers observe this as a degenerate (zero-likelihood) family.
func Probability(s, c int, t, lam, mu float64) float64 {
	if s == 0 {
		if c == 0 {
			return 1
		}
		return 0
	}
	if t == 0 || (lam == 0 && mu == 0) {
		if s == c {
			return 1
		}
		return 0
	}

	var alpha, beta float64
	if lam == mu {
		alpha = lam * t / (1 + lam*t)
		beta = alpha
	} else {
		e := math.Exp((lam - mu) * t)
		denom := lam*e - mu
		alpha = mu * (e - 1) / denom
		beta = lam * (e - 1) / denom
	}
	coeff := 1 - alpha - beta
	if coeff <= 0 {
		return 0
	}

	lnAlpha := math.Log(alpha)
	lnBeta := math.Log(beta)
	lnCoeff := math.Log(coeff)

	n := s
	if c < n {
		n = c
	}
	p := 0.0
	for j := 0; j <= n; j++ {
		term := combin.LogGeneralizedBinomial(float64(s), float64(j)) +
			combin.LogGeneralizedBinomial(float64(s+c-j-1), float64(s-1)) +
			xlogy(s-j, lnAlpha) +
			xlogy(c-j, lnBeta) +
			xlogy(j, lnCoeff)
		if !math.IsNaN(term) {
			p += math.Exp(term)
		}
	}
	if p > 1 {
		p = 1
	}
	return p
}

// xlogy returns x*logy treating a zero x as zero even for an infinite
// logarithm.
func xlogy(x int, logy float64) float64 {
	if x == 0 {
		return 0
	}
	return float64(x) * logy
}

// Matrix holds transition probabilities for one (branch length, rate)
// combination, indexed by parent and child size up to Size.
type Matrix struct {
	Size   int
	values []float64
}

// NewMatrix computes all transition probabilities up to maxSize.
func NewMatrix(maxSize int, t, lam, mu float64) *Matrix {
	m := &Matrix{
		Size:   maxSize,
		values: make([]float64, (maxSize+1)*(maxSize+1)),
	}
	for s := 0; s <= maxSize; s++ {
		for c := 0; c <= maxSize; c++ {
			m.values[s*(maxSize+1)+c] = Probability(s, c, t, lam, mu)
		}
	}
	return m
}

// Get returns the transition probability from parent size s to child
// size c.
func (m *Matrix) Get(s, c int) float64 {
	return m.values[s*(m.Size+1)+c]
}
