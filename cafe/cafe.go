/*

Cafe estimates evolutionary rates ("lambda") of gene-family size
change over a phylogenetic tree under a birth-death model.

The basic usage looks like this:

	cafe -s families.tab tree.nwk

, this will search for the single rate maximizing the total posterior
score of the family table.

Branches can share rates through a partition given in newick form with
rate-class indices in the branch-length positions:

	cafe -s -t "((a:1,b:1):1,c:2)" families.tab tree.nwk

Instead of searching, rates can be set and scored directly:

	cafe -l "0.002 0.004" -t "((a:1,b:1):1,c:2)" --score families.tab tree.nwk

To see all the options run:

	cafe -h

*/
package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/bucongfan/CAFE/checkpoint"
	"github.com/bucongfan/CAFE/family"
	"github.com/bucongfan/CAFE/lambda"
	"github.com/bucongfan/CAFE/optimize"
	"github.com/bucongfan/CAFE/prior"
	"github.com/bucongfan/CAFE/tree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("cafe")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("cafe", "gene-family evolutionary rate estimation under a birth-death model").Version(version)

	// input family table and tree
	familyFileName = app.Arg("families", "gene-family size table (tab-separated)").Required().ExistingFile()
	treeFileName   = app.Arg("tree", "phylogenetic tree with branch lengths").Required().ExistingFile()

	// search mode
	search    = app.Flag("search", "search for the rates maximizing the posterior score").Short('s').Bool()
	lambdas   = app.Flag("lambda", "whitespace-separated rate values to set instead of searching").Short('l').String()
	value     = app.Flag("value", "single rate value shared by every branch").Short('v').Default("-1").Float64()
	structure = app.Flag("lambdatree", "rate partition in newick form, rate-class indices in the branch-length positions").Short('t').String()
	ranges    = app.Flag("range", "rate range start:step:end per rate class; evaluates the score over the grid").Short('r').Strings()
	each      = app.Flag("each", "fit an independent rate vector to every family").Short('e').Bool()
	checkConv = app.Flag("checkconv", "rerun the search from random starting points until the score converges").Bool()
	scoreOnly = app.Flag("score", "evaluate the posterior score at the supplied rates").Bool()

	// mixture parameters
	clusters    = app.Flag("clusters", "mixture cluster count").Short('k').Int()
	weights     = app.Flag("weights", "starting mixture weights (first k-1 free)").Short('p').String()
	fixCluster0 = app.Flag("fixcluster0", "pin the first cluster's rates at zero").Short('f').Bool()

	// optimizer parameters
	method = app.Flag("method", "optimization method to use "+
		"(simplex: downhill simplex, "+
		"lbfgsb: limited-memory Broyden-Fletcher-Goldfarb-Shanno with bounding constraints"+
		")").Default("simplex").Enum("simplex", "lbfgsb")

	// technical
	nThreads = app.Flag("nt", "number of threads to use").Int()
	seed     = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()

	// input/output
	outF        = app.Flag("out", "output prefix for the .lambda and .html reports; in range mode the grid output file").Short('o').String()
	checkpointF = app.Flag("checkpoint", "bolt database file for per-run search checkpoints; a finished search is reported from the file instead of rerunning").String()
	outLogF     = app.Flag("log", "write log to a file").String()
	logLevel    = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
)

// loadData reads and aligns the tree and the family table.
func loadData() (*tree.Tree, *family.Table, error) {
	treeFile, err := os.Open(*treeFileName)
	if err != nil {
		return nil, nil, err
	}
	defer treeFile.Close()
	t, err := tree.ParseNewick(treeFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing tree: %v", err)
	}

	familyFile, err := os.Open(*familyFileName)
	if err != nil {
		return nil, nil, err
	}
	defer familyFile.Close()
	fams, err := family.ParseTable(familyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing family table: %v", err)
	}
	if err := fams.AlignTo(t); err != nil {
		return nil, nil, err
	}
	return t, fams, nil
}

// getOptimizerFromString returns a minimizer from a string.
func getOptimizerFromString(method string, tolx, tolf float64) optimize.Minimizer {
	switch method {
	case "lbfgsb":
		opt := optimize.NewLBFGSB()
		opt.FTol = tolf
		return opt
	default:
		opt := optimize.NewSimplex()
		opt.TolX = tolx
		opt.TolF = tolf
		return opt
	}
}

// startingVector builds the initial parameter vector, honoring -l, -v
// and -p.
func startingVector(layout lambda.Layout, maxBrLen float64) ([]float64, error) {
	params := layout.Start(maxBrLen)
	if *value >= 0 {
		for i := 0; i < layout.FirstWeightIndex(); i++ {
			params[i] = *value
		}
	}
	if *lambdas != "" {
		rates, err := optimize.ReadFloats(*lambdas)
		if err != nil {
			return nil, fmt.Errorf("bad -l value: %v", err)
		}
		if len(rates) != layout.FirstWeightIndex() {
			return nil, fmt.Errorf("%d rates given, the model needs %d", len(rates), layout.FirstWeightIndex())
		}
		copy(params, rates)
	}
	if *weights != "" {
		w, err := optimize.ReadFloats(*weights)
		if err != nil {
			return nil, fmt.Errorf("bad -p value: %v", err)
		}
		if len(w) != *clusters-1 {
			return nil, fmt.Errorf("%d weights given, the model needs %d free weights", len(w), *clusters-1)
		}
		copy(params[layout.FirstWeightIndex():], w)
	}
	return params, nil
}

func run() error {
	t, fams, err := loadData()
	if err != nil {
		return err
	}
	log.Infof("Tree: %d leaves, %d nodes, max branch length %v", t.NLeaves(), t.NNodes(), t.MaxBranchLength())
	log.Infof("Families: %d (%d species), max size %d", len(fams.Families), len(fams.Species), fams.MaxSize)

	var numRates int
	if *structure != "" {
		if *value >= 0 {
			return fmt.Errorf("-v sets a single shared rate and cannot be combined with -t")
		}
		numRates, err = lambda.ParsePartition(*structure, t)
	} else {
		numRates, err = lambda.NumClasses(t)
	}
	if err != nil {
		return err
	}
	log.Infof("Rate classes: %d", numRates)

	layout := lambda.Layout{
		NumRates:    numRates,
		K:           *clusters,
		FixCluster0: *fixCluster0,
	}
	if layout.K > 1 && *each {
		return fmt.Errorf("-e cannot be combined with -k")
	}

	rng := family.NewSizeRange(fams.MaxSize)
	rnd := rand.New(rand.NewSource(*seed))

	rootPrior, err := prior.RootSizePrior(fams, rng, optimize.NewSimplex(), rnd)
	if err != nil {
		return err
	}

	tolx, tolf := 1e-6, 1e-6
	if layout.K > 1 {
		tolx, tolf = 1e-5, 1e-5
	}
	s := &lambda.Searcher{
		Tree:   t,
		Fams:   fams,
		Range:  rng,
		Prior:  rootPrior,
		Layout: layout,
		Opt:    getOptimizerFromString(*method, tolx, tolf),
		Rnd:    rnd,
		TolX:   tolx,
		TolF:   tolf,

		CheckConv: *checkConv,
	}

	var saver *checkpoint.RunSaver
	if *checkpointF != "" {
		db, err := bolt.Open(*checkpointF, 0644, nil)
		if err != nil {
			return fmt.Errorf("error opening checkpoint file: %v", err)
		}
		defer db.Close()
		saver = checkpoint.NewRunSaver(db, []byte(strings.Join(os.Args[1:], " ")))
		s.Saver = saver
	}

	switch {
	case len(*ranges) > 0:
		return runGrid(s)
	case *each:
		s.SearchEach()
		return writeReports(s)
	case *search:
		start, err := startingVector(layout, t.MaxBranchLength())
		if err != nil {
			return err
		}
		if saver != nil {
			data, err := saver.Last()
			if err != nil {
				return err
			}
			if data != nil && data.Final && len(data.Lambda) == len(start) {
				// The same invocation already finished; report
				// the stored result instead of searching again.
				log.Noticef("Lambda : %s & Score: %f", s.Layout.RatesString(data.Lambda), data.Score)
				log.Noticef("DONE: Lambda Search, score %f", data.Score)
				return nil
			}
		}
		res := s.Search(start)
		if layout.K > 1 {
			s.LogMembership()
		}
		log.Noticef("DONE: Lambda Search, score %f", -res.F)
		return nil
	default:
		return runSet(s)
	}
}

// runGrid evaluates the score over the Cartesian grid of -r ranges.
func runGrid(s *lambda.Searcher) error {
	rs := make([]lambda.Range, len(*ranges))
	for i, text := range *ranges {
		r, err := lambda.ParseRange(text)
		if err != nil {
			return err
		}
		rs[i] = r
	}

	w := os.Stdout
	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			return fmt.Errorf("cannot open file: %s", *outF)
		}
		defer f.Close()
		w = f
	}
	return s.EvalGrid(rs, w)
}

// runSet installs user-supplied rates without searching and optionally
// scores them.
func runSet(s *lambda.Searcher) error {
	if *lambdas == "" && *value < 0 {
		return fmt.Errorf("nothing to do: give -s, -e, -r, -l or -v")
	}
	params, err := startingVector(s.Layout, s.Tree.MaxBranchLength())
	if err != nil {
		return err
	}
	if err := s.Layout.Validate(params); err != nil {
		return err
	}
	log.Noticef("Lambda : %s", s.Layout.RatesString(params))
	if *scoreOnly {
		score := s.Evaluate(params)
		log.Noticef("Score: %f", score)
	}
	for _, fam := range s.Fams.Families {
		fam.Lambda = s.Layout.Rates(params, 0)
	}
	if *outF != "" {
		return writeReports(s)
	}
	return nil
}

// writeReports writes the <out>.lambda and <out>.html reports.
func writeReports(s *lambda.Searcher) error {
	if *outF == "" {
		return lambda.WriteReport(os.Stdout, s.Tree, s.Fams)
	}

	name := *outF + ".lambda"
	fpout, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("cannot open file: %s", name)
	}
	defer fpout.Close()
	if err = lambda.WriteReport(fpout, s.Tree, s.Fams); err != nil {
		return err
	}

	name = *outF + ".html"
	fhttp, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("cannot open file: %s", name)
	}
	defer fhttp.Close()
	return lambda.WriteHTML(fhttp, s.Tree, s.Fams, *outF)
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "cafe")
	logging.SetLevel(level, "lambda")
	logging.SetLevel(level, "likelihood")
	logging.SetLevel(level, "prior")
	logging.SetLevel(level, "optimize")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	log.Infof("Using threads: %d.", runtime.GOMAXPROCS(0))

	if err := run(); err != nil {
		log.Fatal(err)
	}
	log.Notice("DONE")
}
