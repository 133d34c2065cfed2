// Package likelihood computes per-family likelihood vectors over a
// phylogenetic tree and combines them with a root-size prior into the
// posterior score driving rate optimization.
package likelihood

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/op/go-logging"

	"github.com/bucongfan/CAFE/birthdeath"
	"github.com/bucongfan/CAFE/family"
	"github.com/bucongfan/CAFE/tree"
)

// log is the global logging variable.
var log = logging.MustGetLogger("likelihood")

// ZeroLikelihoodError signals a family whose maximum likelihood is
// exactly zero: a degenerate parameter point or malformed data.
// Objective functions convert it into a worst-score rejection instead
// of aborting the search.
type ZeroLikelihoodError struct {
	FamilyID string
}

func (e *ZeroLikelihoodError) Error() string {
	return fmt.Sprintf("calculated posterior probability for family %s = 0", e.FamilyID)
}

// Posterior is the scoring result for one family.
type Posterior struct {
	// MaxLikelihood is the largest root-conditioned likelihood.
	MaxLikelihood float64
	// MaxPosterior is the largest prior-weighted likelihood; its
	// logarithm is the family's score contribution.
	MaxPosterior float64
	// BestRoot is the root family size with the maximum
	// likelihood.
	BestRoot int
}

// FamilyVector computes the likelihood vector of one family, indexed
// by candidate root size (rng.RootMin plus index). Leaves are unit
// vectors at the observed count; internal nodes combine their
// children's vectors through the cache's transition probabilities in
// post-order. plh is per-caller scratch with one row of rng.Max+1
// values per node id; pass nil to allocate.
func FamilyVector(t *tree.Tree, counts []int, cache *birthdeath.Cache, rng family.SizeRange, plh [][]float64) []float64 {
	if plh == nil {
		plh = NewScratch(t, rng)
	}

	for node := range t.Terminals() {
		row := plh[node.ID]
		for i := range row {
			row[i] = 0
		}
		row[counts[node.LeafID]] = 1
	}

	nodeL := func(node *tree.Node, s int) float64 {
		l := 1.0
		for _, child := range node.ChildNodes() {
			cplh := plh[child.ID]
			sum := 0.0
			for c := rng.Min; c <= rng.Max; c++ {
				sum += cache.Prob(child, s, c) * cplh[c]
			}
			l *= sum
		}
		return l
	}

	var result []float64
	for _, node := range t.NodeOrder() {
		if node.IsRoot() {
			result = make([]float64, rng.NRoots())
			for s := rng.RootMin; s <= rng.RootMax; s++ {
				result[s-rng.RootMin] = nodeL(node, s)
			}
			break
		}
		// Internal rows are indexed by absolute size.
		row := plh[node.ID]
		for s := rng.Min; s <= rng.Max; s++ {
			row[s] = nodeL(node, s)
		}
	}
	return result
}

// NewScratch allocates per-node likelihood rows for FamilyVector.
func NewScratch(t *tree.Tree, rng family.SizeRange) [][]float64 {
	plh := make([][]float64, t.NNodes())
	for i := range plh {
		plh[i] = make([]float64, rng.Max+1)
	}
	return plh
}

// ComputePosterior combines a family's likelihood vector with the
// root-size prior. Index j of both vectors corresponds to root size
// rng.RootMin+j; the prior value there is the shifted-Poisson mass of
// that size.
func ComputePosterior(lik, prior []float64, rng family.SizeRange) Posterior {
	p := Posterior{BestRoot: -1}
	for j, l := range lik {
		if l > p.MaxLikelihood {
			p.MaxLikelihood = l
			p.BestRoot = rng.RootMin + j
		}
		if j < len(prior) {
			if post := l * prior[j]; post > p.MaxPosterior {
				p.MaxPosterior = post
			}
		}
	}
	return p
}

// FamilyPosteriors scores every family of the table against one cache
// handle. Canonical families are evaluated in parallel over worker
// goroutines, each with its own scratch rows; duplicate families copy
// the canonical result, which is bit-identical to recomputing.
// Families with zero maximum likelihood keep zero posteriors; whether
// that is degenerate depends on the caller (see Degenerate): a mixture
// tolerates zero mass under one cluster as long as another cluster
// covers the family.
func FamilyPosteriors(t *tree.Tree, fams *family.Table, cache *birthdeath.Cache, prior []float64, rng family.SizeRange) []Posterior {
	posts := make([]Posterior, len(fams.Families))

	nWorkers := runtime.GOMAXPROCS(0)
	tasks := make(chan int, len(fams.Families))
	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			plh := NewScratch(t, rng)
			for i := range tasks {
				fam := fams.Families[i]
				lik := FamilyVector(t, fam.Counts, cache, rng, plh)
				posts[i] = ComputePosterior(lik, prior, rng)
			}
		}()
	}
	for i, fam := range fams.Families {
		if fam.Ref < 0 || fam.Ref == i {
			tasks <- i
		}
	}
	close(tasks)
	wg.Wait()

	for i, fam := range fams.Families {
		if fam.Ref >= 0 && fam.Ref != i {
			posts[i] = posts[fam.Ref]
		}
		if fam.BestRoot < 0 {
			fam.BestRoot = posts[i].BestRoot
		}
	}
	return posts
}

// Degenerate returns a ZeroLikelihoodError for the first family whose
// maximum likelihood is zero under a single model.
func Degenerate(fams *family.Table, posts []Posterior) error {
	for i, fam := range fams.Families {
		if posts[i].MaxLikelihood == 0 {
			return &ZeroLikelihoodError{FamilyID: fam.ID}
		}
	}
	return nil
}

// Score sums the log maximum posterior over all families: the
// objective the rate search maximizes. A zero-likelihood family is
// degenerate here, since a single model covers every family.
func Score(t *tree.Tree, fams *family.Table, cache *birthdeath.Cache, prior []float64, rng family.SizeRange) (float64, error) {
	posts := FamilyPosteriors(t, fams, cache, prior, rng)
	if err := Degenerate(fams, posts); err != nil {
		return math.Inf(-1), err
	}
	score := 0.0
	for _, p := range posts {
		score += math.Log(p.MaxPosterior)
	}
	if math.IsNaN(score) {
		score = math.Inf(-1)
	}
	log.Debugf("L=%v", score)
	return score, nil
}
