package lambda

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/bucongfan/CAFE/family"
	"github.com/bucongfan/CAFE/optimize"
	"github.com/bucongfan/CAFE/tree"
)

func newSearcher(tst *testing.T, tableData string) *Searcher {
	t, err := tree.ParseNewickString("(a:1,b:1);")
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	fams, err := family.ParseTable(strings.NewReader(tableData))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if err = fams.AlignTo(t); err != nil {
		tst.Fatal("Error: ", err)
	}
	rng := family.NewSizeRange(fams.MaxSize)
	prior := make([]float64, family.SizeMax)
	for i := range prior {
		prior[i] = 1
	}
	UniformPartition(t)
	opt := optimize.NewSimplex()
	return &Searcher{
		Tree:   t,
		Fams:   fams,
		Range:  rng,
		Prior:  prior,
		Layout: Layout{NumRates: 1},
		Opt:    opt,
		Rnd:    rand.New(rand.NewSource(1)),
		TolX:   opt.TolX,
		TolF:   opt.TolF,
	}
}

func TestNegativeRateRejected(tst *testing.T) {
	// A negative rate is rejected before any likelihood machinery
	// runs; the searcher needs no data at all.
	s := &Searcher{Layout: Layout{NumRates: 1}}
	if score := s.Evaluate([]float64{-0.1}); !math.IsInf(score, -1) {
		tst.Error("Expected the worst score, got", score)
	}
	if obj := s.Objective([]float64{-0.1}); !math.IsInf(obj, +1) {
		tst.Error("Expected the worst objective, got", obj)
	}
}

func TestGlobalSearch(tst *testing.T) {
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\n")
	res := s.Search(s.Layout.Start(s.Tree.MaxBranchLength()))
	if !res.Converged {
		tst.Error("Expected convergence")
	}
	if res.X[0] <= 0 || res.X[0] >= 1 {
		tst.Error("Fitted rate outside the valid region:", res.X)
	}
	score := -res.F
	if math.IsInf(score, 0) || math.IsNaN(score) {
		tst.Fatal("Expected a finite score, got", score)
	}
	// The reported score must match direct evaluation at the
	// returned vector.
	if math.Abs(s.Evaluate(res.X)-score) > 1e-12 {
		tst.Error("Score mismatch:", s.Evaluate(res.X), score)
	}
}

func TestClusterScoreMatchesGlobal(tst *testing.T) {
	// With a single cluster the mixture score reduces to the plain
	// posterior score.
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\ny\tF2\t1\t2\n")
	s.Layout.K = 1
	params := []float64{0.12}
	if diff := math.Abs(s.clusterScore(params) - s.Evaluate(params)); diff > 1e-12 {
		tst.Error("Cluster score differs from the global score by", diff)
	}
}

func TestClusteredSearch(tst *testing.T) {
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\ny\tF2\t1\t2\nz\tF3\t6\t5\n")
	s.Layout.K = 2
	opt := optimize.NewSimplex()
	opt.TolX = 1e-5
	opt.TolF = 1e-5
	s.Opt = opt
	s.TolX = opt.TolX
	s.TolF = opt.TolF

	res := s.runOnce(s.Layout.Start(s.Tree.MaxBranchLength()))
	if math.IsInf(res.F, 0) {
		tst.Fatal("Expected a finite objective, got", res.F)
	}
	if s.Membership == nil {
		tst.Fatal("Expected a membership matrix after a clustered run")
	}
	for i, row := range s.Membership {
		sum := 0.0
		for _, z := range row {
			if z < 0 || z > 1 {
				tst.Error("Membership outside [0,1]:", z)
			}
			sum += z
		}
		if math.Abs(sum-1) > 1e-9 {
			tst.Error("Membership row", i, "sums to", sum)
		}
	}
	weights := s.Layout.Weights(res.X)
	wsum := 0.0
	for _, w := range weights {
		if w < 0 || w > 1 {
			tst.Error("Weight outside [0,1]:", w)
		}
		wsum += w
	}
	if math.Abs(wsum-1) > 1e-9 {
		tst.Error("Weights sum to", wsum)
	}
}

func TestFixedClusterMixture(tst *testing.T) {
	// With the first cluster pinned at rate zero, a family whose
	// counts change along the tree has zero mass under that cluster.
	// The mixture must absorb this through the other cluster instead
	// of rejecting the whole vector.
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\ny\tF2\t1\t2\n")
	s.Layout.K = 2
	s.Layout.FixCluster0 = true

	params := []float64{0.1, 0.5}
	score := s.Evaluate(params)
	if math.IsInf(score, 0) || math.IsNaN(score) {
		tst.Fatal("Expected a finite mixture score, got", score)
	}

	if err := s.UpdateMembership(params); err != nil {
		tst.Fatal("Error: ", err)
	}
	for i, row := range s.Membership {
		sum := 0.0
		for _, z := range row {
			sum += z
		}
		if math.Abs(sum-1) > 1e-9 {
			tst.Error("Membership row", i, "sums to", sum)
		}
	}
	// F2 cannot keep its size under the zero-rate cluster.
	if s.Membership[1][0] != 0 || s.Membership[1][1] != 1 {
		tst.Error("Expected F2 fully in the free cluster, got", s.Membership[1])
	}
}

// runCounter records every saved run for the convergence-loop tests.
type runCounter struct {
	runs   int
	final  []float64
	scores []float64
}

func (c *runCounter) SaveRun(run int, params []float64, score float64, converged, final bool) error {
	if final {
		c.final = append([]float64(nil), params...)
		return nil
	}
	c.runs++
	c.scores = append(c.scores, score)
	return nil
}

func TestConvergenceLoop(tst *testing.T) {
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\n")
	s.CheckConv = true
	counter := &runCounter{}
	s.Saver = counter

	res := s.Search(nil)

	if counter.runs < 1 || counter.runs > maxRuns {
		tst.Fatal("Expected between 1 and", maxRuns, "runs, got", counter.runs)
	}
	best := counter.scores[0]
	for _, sc := range counter.scores {
		if sc > best {
			best = sc
		}
	}
	if -res.F != best {
		tst.Error("Expected the best score over runs", best, "got", -res.F)
	}
	if counter.final == nil || counter.final[0] != res.X[0] {
		tst.Error("Final checkpoint does not hold the best vector")
	}
}

// startRecorder wraps a minimizer and records every starting vector.
type startRecorder struct {
	opt    optimize.Minimizer
	starts [][]float64
}

func (r *startRecorder) Run(f optimize.Objective, start []float64) *optimize.Result {
	r.starts = append(r.starts, append([]float64(nil), start...))
	return r.opt.Run(f, start)
}

func TestConvergenceRandomizesFirstRun(tst *testing.T) {
	// Every run of the convergence loop starts from a fresh random
	// vector, the first one included; otherwise ten runs from the
	// same deterministic start would measure nothing.
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\n")
	s.CheckConv = true
	rec := &startRecorder{opt: s.Opt}
	s.Opt = rec

	s.Search([]float64{0.25})

	if len(rec.starts) < 2 {
		tst.Fatal("Expected at least 2 runs, got", len(rec.starts))
	}
	if rec.starts[0][0] == 0.25 {
		tst.Error("First run reused the supplied start:", rec.starts[0])
	}
	if rec.starts[0][0] == rec.starts[1][0] {
		tst.Error("Runs started from the same vector:", rec.starts[0], rec.starts[1])
	}
}

func TestSearchEach(tst *testing.T) {
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\ny\tF2\t1\t2\nz\tF3\t3\t3\n")
	s.SearchEach()
	for _, fam := range s.Fams.Families {
		if len(fam.Lambda) != 1 {
			tst.Fatal("Family", fam.ID, "has no fitted rate")
		}
		if fam.Lambda[0] < 0 {
			tst.Error("Family", fam.ID, "has a negative rate:", fam.Lambda[0])
		}
	}
	// F3 duplicates F1 and must inherit the same fitted vector.
	if s.Fams.Families[2].Lambda[0] != s.Fams.Families[0].Lambda[0] {
		tst.Error("Duplicate family did not inherit the canonical fit")
	}
}

func TestWriteReport(tst *testing.T) {
	s := newSearcher(tst, "Desc\tID\ta\tb\nx\tF1\t3\t3\ny\tF2\t1\t2\n")
	s.Fams.Families[0].Lambda = []float64{0.1}
	s.Fams.Families[1].Lambda = []float64{0.7}

	var b strings.Builder
	if err := WriteReport(&b, s.Tree, s.Fams); err != nil {
		tst.Fatal("Error: ", err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 2 {
		tst.Fatal("Expected 2 lines, got", len(lines))
	}
	if strings.HasPrefix(lines[0], "@@ ") {
		tst.Error("Unexpected boundary marker:", lines[0])
	}
	if !strings.HasPrefix(lines[1], "@@ ") {
		tst.Error("Expected a boundary marker:", lines[1])
	}
	if !strings.Contains(lines[0], "F1\t(a_3:0.1,b_3:0.1);") {
		tst.Error("Unexpected report line:", lines[0])
	}

	var h strings.Builder
	if err := WriteHTML(&h, s.Tree, s.Fams, "run"); err != nil {
		tst.Fatal("Error: ", err)
	}
	if !strings.Contains(h.String(), "<td>x</td>") {
		tst.Error("Expected the description in the table:", h.String())
	}
}
