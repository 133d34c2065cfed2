package lambda

import (
	"math"

	"github.com/bucongfan/CAFE/birthdeath"
	"github.com/bucongfan/CAFE/family"
	"github.com/bucongfan/CAFE/likelihood"
)

// boundaryTol flags fitted rates within this distance of the validity
// threshold rate*maxBrLen = 0.5.
const boundaryTol = 1e-3

// SearchEach fits an independent rate vector to every canonical
// family, maximizing the family's own likelihood without the root
// prior over a size range narrowed to that family. Duplicate families
// inherit the canonical fit without re-optimizing. One minimizer
// serves all families; it carries no state between calls.
func (s *Searcher) SearchEach() {
	maxBr := s.Tree.MaxBranchLength()
	start := make([]float64, s.Layout.NumRates)
	for i := range start {
		start[i] = 0.5 / maxBr
	}

	for i, fam := range s.Fams.Families {
		if fam.Ref >= 0 && fam.Ref != i {
			fam.Lambda = s.Fams.Families[fam.Ref].Lambda
			continue
		}
		rng := family.FamilyRange(fam)
		counts := fam.Counts

		obj := func(params []float64) float64 {
			for _, r := range params {
				if r < 0 {
					return math.Inf(+1)
				}
			}
			cache, err := birthdeath.Rebuild(s.Tree, params, nil, rng.Max)
			if err != nil {
				return math.Inf(+1)
			}
			lik := likelihood.FamilyVector(s.Tree, counts, cache, rng, nil)
			cache.Release()
			maxLik := 0.0
			for _, l := range lik {
				if l > maxLik {
					maxLik = l
				}
			}
			if maxLik == 0 {
				return math.Inf(+1)
			}
			return -math.Log(maxLik)
		}

		res := s.Opt.Run(obj, start)
		fam.Lambda = res.X
		log.Noticef("Family %s: Lambda : %s & Score: %f", fam.ID, joinFloats(res.X), -res.F)
		if NearBoundary(res.X, maxBr) {
			log.Warningf("WARNING: family %s lambda is at the instability boundary", fam.ID)
		}
	}
}

// NearBoundary reports whether any rate is at or within boundaryTol of
// the validity threshold.
func NearBoundary(rates []float64, maxBrLen float64) bool {
	for _, r := range rates {
		a := r * maxBrLen
		if a >= 0.5 || math.Abs(a-0.5) < boundaryTol {
			return true
		}
	}
	return false
}
