package lambda

import (
	"math"
	"math/rand"

	"github.com/bucongfan/CAFE/birthdeath"
	"github.com/bucongfan/CAFE/family"
	"github.com/bucongfan/CAFE/likelihood"
	"github.com/bucongfan/CAFE/optimize"
	"github.com/bucongfan/CAFE/tree"
)

// maxRuns bounds the convergence loop.
const maxRuns = 10

// RunSaver persists per-run search results; see the checkpoint
// package.
type RunSaver interface {
	SaveRun(run int, params []float64, score float64, converged, final bool) error
}

// Searcher holds everything one rate search needs: the data, the prior,
// the parameter layout and the minimizer. It is built once per command
// invocation and owns the mixture membership matrix in clustered mode.
type Searcher struct {
	Tree   *tree.Tree
	Fams   *family.Table
	Range  family.SizeRange
	Prior  []float64
	Layout Layout

	Opt optimize.Minimizer
	Rnd *rand.Rand
	// TolX and TolF mirror the minimizer's tolerances; the
	// convergence loop and the mixture outer loop read them.
	TolX, TolF float64
	// CheckConv enables the multi-run convergence loop.
	CheckConv bool

	// Membership is the per-family, per-cluster soft membership
	// matrix. It is rewritten only between minimizer calls.
	Membership [][]float64

	// Saver, when set, records every run and the final result.
	Saver RunSaver
}

// Objective is the function the minimizer runs on: the negated total
// posterior score of a candidate vector. A vector with a negative rate
// is rejected with the worst value before any cache is built; a family
// with zero maximum likelihood is logged and rejected the same way.
func (s *Searcher) Objective(params []float64) float64 {
	score := s.Evaluate(params)
	log.Debugf("Lambda : %s & Score: %f", s.Layout.RatesString(params), score)
	return -score
}

// Evaluate computes the total posterior score at one point.
func (s *Searcher) Evaluate(params []float64) float64 {
	for _, r := range params[:s.Layout.FirstWeightIndex()] {
		if r < 0 {
			return math.Inf(-1)
		}
	}
	if s.Layout.K > 1 {
		return s.clusterScore(params)
	}

	cache, err := birthdeath.Rebuild(s.Tree, s.Layout.Rates(params, 0), nil, s.Range.Max)
	if err != nil {
		log.Warningf("WARNING: %v", err)
		return math.Inf(-1)
	}
	defer cache.Release()
	score, err := likelihood.Score(s.Tree, s.Fams, cache, s.Prior, s.Range)
	if err != nil {
		log.Warningf("WARNING: %v", err)
		return math.Inf(-1)
	}
	return score
}

// clusterScore computes the mixture score: every family contributes
// the log of its weight-averaged maximum posterior over clusters.
func (s *Searcher) clusterScore(params []float64) float64 {
	weights := s.Layout.Weights(params)
	for _, w := range weights {
		if w < 0 || w > 1 {
			return math.Inf(-1)
		}
	}
	posts, err := s.clusterPosteriors(params)
	if err != nil {
		log.Warningf("WARNING: %v", err)
		return math.Inf(-1)
	}
	score := 0.0
	for i, fam := range s.Fams.Families {
		famScore := 0.0
		for c := 0; c < s.Layout.K; c++ {
			famScore += weights[c] * posts[c][i].MaxPosterior
		}
		// Zero mass under one cluster is normal in a mixture;
		// only a family no cluster covers is degenerate.
		if famScore == 0 {
			log.Warningf("WARNING: %v", &likelihood.ZeroLikelihoodError{FamilyID: fam.ID})
			return math.Inf(-1)
		}
		score += math.Log(famScore)
	}
	if math.IsNaN(score) {
		return math.Inf(-1)
	}
	return score
}

// clusterPosteriors scores every family under every cluster's rates.
func (s *Searcher) clusterPosteriors(params []float64) ([][]likelihood.Posterior, error) {
	posts := make([][]likelihood.Posterior, s.Layout.K)
	for c := 0; c < s.Layout.K; c++ {
		cache, err := birthdeath.Rebuild(s.Tree, s.Layout.Rates(params, c), nil, s.Range.Max)
		if err != nil {
			return nil, err
		}
		posts[c] = likelihood.FamilyPosteriors(s.Tree, s.Fams, cache, s.Prior, s.Range)
		cache.Release()
	}
	return posts, nil
}

// UpdateMembership recomputes the soft membership matrix at one point:
// every family's row is proportional to cluster weight times its
// maximum posterior under that cluster, normalized to sum to one. A
// family with zero mass under every cluster gets a uniform row.
func (s *Searcher) UpdateMembership(params []float64) error {
	weights := s.Layout.Weights(params)
	posts, err := s.clusterPosteriors(params)
	if err != nil {
		return err
	}
	if s.Membership == nil {
		s.Membership = make([][]float64, len(s.Fams.Families))
		for i := range s.Membership {
			s.Membership[i] = make([]float64, s.Layout.K)
		}
	}
	for i := range s.Fams.Families {
		row := s.Membership[i]
		total := 0.0
		for c := 0; c < s.Layout.K; c++ {
			row[c] = weights[c] * posts[c][i].MaxPosterior
			total += row[c]
		}
		for c := range row {
			if total > 0 {
				row[c] /= total
			} else {
				row[c] = 1 / float64(s.Layout.K)
			}
		}
	}
	return nil
}

// runOnce performs one full optimization from one starting vector. In
// clustered mode it alternates: minimize the vector, recompute the
// membership matrix at the optimum, re-estimate the free weights as
// mean memberships, and minimize again, until the first free weight
// stops growing by more than the x-tolerance.
func (s *Searcher) runOnce(start []float64) *optimize.Result {
	res := s.Opt.Run(s.Objective, start)
	if s.Layout.K <= 1 {
		return res
	}

	wi := s.Layout.FirstWeightIndex()
	currentP := res.X[wi]
	for {
		if err := s.UpdateMembership(res.X); err != nil {
			log.Warningf("WARNING: %v", err)
			break
		}
		for c := 0; c < s.Layout.K-1; c++ {
			sum := 0.0
			for i := range s.Membership {
				sum += s.Membership[i][c]
			}
			res.X[wi+c] = sum / float64(len(s.Membership))
		}

		res = s.Opt.Run(s.Objective, res.X)

		prevP := currentP
		currentP = res.X[wi]
		if currentP-prevP <= s.TolX {
			break
		}
	}
	return res
}

// Search runs the convergence loop: up to maxRuns independent
// optimizations, each from a fresh random vector. A run converges when
// its value is within ten f-tolerances of the best previous run. The
// best result over all runs is returned even on non-convergence.
// Without CheckConv a single run is performed from start (or a random
// vector when start is nil).
func (s *Searcher) Search(start []float64) *optimize.Result {
	var best *optimize.Result
	var scores []float64
	converged := false
	runs := 0

	for {
		x0 := start
		if x0 == nil || runs > 0 || s.CheckConv {
			x0 = s.Layout.Randomize(s.Rnd, s.Tree.MaxBranchLength())
		}

		res := s.runOnce(x0)
		s.logRun(res)

		if runs > 0 && math.Abs(minFloat(scores)-res.F) < 10*s.TolF {
			converged = true
		}
		scores = append(scores, res.F)
		if best == nil || res.F < best.F {
			best = res
		}
		if s.Saver != nil {
			if err := s.Saver.SaveRun(runs, res.X, -res.F, converged, false); err != nil {
				log.Warningf("WARNING: %v", err)
			}
		}
		runs++
		if !s.CheckConv || converged || runs >= maxRuns {
			break
		}
	}

	if s.CheckConv {
		if converged {
			log.Noticef("score converged in %d runs.", runs)
		} else {
			log.Noticef("score failed to converge in %d runs.", maxRuns)
		}
	}
	if s.Saver != nil {
		if err := s.Saver.SaveRun(runs, best.X, -best.F, converged, true); err != nil {
			log.Warningf("WARNING: %v", err)
		}
	}
	return best
}

func (s *Searcher) logRun(res *optimize.Result) {
	log.Noticef("Lambda Search Result: %d", res.Iters)
	if s.Layout.K > 1 {
		log.Noticef("Lambda : %s", s.Layout.RatesString(res.X))
		log.Noticef("p : %s", joinFloats(s.Layout.Weights(res.X)))
		log.Noticef("p0 : %f", res.X[s.Layout.FirstWeightIndex()])
		log.Noticef("Score: %f", -res.F)
	} else {
		log.Noticef("Lambda : %s & Score: %f", s.Layout.RatesString(res.X), -res.F)
	}
}

// LogMembership prints each family's cluster membership row.
func (s *Searcher) LogMembership() {
	if s.Membership == nil {
		return
	}
	for i, fam := range s.Fams.Families {
		log.Noticef("family %s: %s", fam.ID, joinFloats(s.Membership[i]))
	}
}

func minFloat(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
