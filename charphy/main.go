/*

Charphy infers phylogenetic trees from discrete (mostly binary)
characters. It computes Hamming distances, neighbor joining trees,
maximum parsimony trees with the parsimony ratchet and maximum
likelihood trees under a two-state substitution model.

The basic usage of charphy looks like this:

	charphy pars characters.fst

, this will run the parsimony ratchet starting from the neighbor
joining tree and print the best tree.

A likelihood search with gamma rate variation and ascertainment
correction:

	charphy ml --ncat 4 --asc characters.fst

To see all the options run:

	charphy --help

*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/charphy/config"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("charphy")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules with loggers
var logModules = []string{"charphy", "config", "checkpoint", "distance", "nj", "parsimony", "bmodel", "optimize"}

// userSet holds the names of flags given on the command line; they
// override the settings file.
var userSet = make(map[string]bool)

type flagger interface {
	Flag(name, help string) *kingpin.FlagClause
}

// tracked declares a flag which overrides a settings file value.
func tracked(f flagger, name, help string) *kingpin.FlagClause {
	return f.Flag(name, help).Action(func(*kingpin.ParseContext) error {
		userSet[name] = true
		return nil
	})
}

// command-line options
var (
	// application
	app = kingpin.New("charphy", "phylogenetic inference from discrete characters").Version(version)

	// data
	symbols = tracked(app, "symbols", "state symbols").Default("01").String()
	missing = tracked(app, "missing", "missing data symbol").Default("?").String()

	// search
	seed       = tracked(app, "seed", "random generator seed, -1 for time based").Default("1").Int64()
	iterations = tracked(app, "iter", "maximum number of ratchet iterations or likelihood cycles").Int()
	maxTime    = tracked(app, "time", "maximum search time, e.g. 10m").Duration()
	configF    = app.Flag("config", "YAML settings file").ExistingFile()
	checkF     = app.Flag("checkpoint", "checkpoint database, the search is resumed if it exists").String()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write the result to a file instead of stdout").String()
	jsonF    = app.Flag("json", "write json summary to a file").String()
	plotF    = app.Flag("plot", "plot search trajectory to a file (png, svg or pdf)").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")

	// dist
	distCmd = app.Command("dist", "print the Hamming distance matrix")
	distAli = distCmd.Arg("alignment", "character matrix in fasta format").Required().ExistingFile()

	// nj
	njCmd = app.Command("nj", "neighbor joining tree of Hamming distances")
	njAli = njCmd.Arg("alignment", "character matrix in fasta format").Required().ExistingFile()

	// pars
	parsCmd   = app.Command("pars", "maximum parsimony search with the parsimony ratchet")
	parsAli   = parsCmd.Arg("alignment", "character matrix in fasta format").Required().ExistingFile()
	parsStart = parsCmd.Flag("start", "starting tree, neighbor joining by default").ExistingFile()
	acctran   = parsCmd.Flag("acctran", "set branch lengths to the number of changes (ACCTRAN)").Bool()
	collapse  = parsCmd.Flag("collapse", "collapse internal branches without changes (implies --acctran)").Bool()
	moves     = tracked(parsCmd, "moves", "local search moves (nni or spr)").Enum("nni", "spr")
	perturb   = tracked(parsCmd, "perturb", "ratchet reweighting (bootstrap or upweight)").Enum("bootstrap", "upweight")

	// ml
	mlCmd    = app.Command("ml", "maximum likelihood search")
	mlAli    = mlCmd.Arg("alignment", "character matrix in fasta format").Required().ExistingFile()
	mlStart  = mlCmd.Flag("start", "starting tree, neighbor joining by default").ExistingFile()
	ncat     = tracked(mlCmd, "ncat", "number of gamma rate categories (no variation by default)").Int()
	alpha    = tracked(mlCmd, "alpha", "starting gamma shape parameter").Float64()
	asc      = tracked(mlCmd, "asc", "correct for unobserved constant characters").Bool()
	freq     = tracked(mlCmd, "freq", "optimize state frequencies").Bool()
	fixAlpha = tracked(mlCmd, "fixalpha", "don't optimize gamma shape").Bool()
	method   = tracked(mlCmd, "method", "model parameter optimization method "+
		"(lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints, "+
		"simplex: downhill simplex, "+
		"bfgs: BFGS from gonum, "+
		"none: keep starting values)").Enum("lbfgsb", "simplex", "bfgs", "none")
	noTopo = tracked(mlCmd, "notopo", "keep the starting topology").Bool()

	// score
	scoreCmd  = app.Command("score", "parsimony score and log-likelihood of a fixed tree")
	scoreAli  = scoreCmd.Arg("alignment", "character matrix in fasta format").Required().ExistingFile()
	scoreTree = scoreCmd.Arg("tree", "tree in newick format").Required().ExistingFile()
)

// loadConfig reads the settings file and applies command-line
// overrides.
func loadConfig() (config.Config, error) {
	c, err := config.Load(*configF)
	if err != nil {
		return c, err
	}
	if userSet["symbols"] {
		c.Alphabet.Symbols = *symbols
	}
	if userSet["missing"] {
		c.Alphabet.Missing = *missing
	}
	if userSet["seed"] {
		c.Seed = *seed
	}
	if userSet["iter"] {
		c.Ratchet.Iterations = *iterations
		c.Likelihood.MaxCycles = *iterations
	}
	if userSet["time"] {
		c.Ratchet.MaxTime = *maxTime
		c.Likelihood.MaxTime = *maxTime
	}
	if userSet["moves"] {
		c.Ratchet.Moves = *moves
	}
	if userSet["perturb"] {
		c.Ratchet.Perturbation = *perturb
	}
	if userSet["ncat"] {
		c.Likelihood.NCat = *ncat
	}
	if userSet["alpha"] {
		c.Likelihood.Alpha = *alpha
	}
	if userSet["asc"] {
		c.Likelihood.Ascertainment = *asc
	}
	if userSet["freq"] {
		c.Likelihood.OptimizeFreq = *freq
	}
	if userSet["fixalpha"] {
		c.Likelihood.FixAlpha = *fixAlpha
	}
	if userSet["method"] {
		c.Likelihood.Method = *method
	}
	if userSet["notopo"] {
		c.Likelihood.Topology = !*noTopo
	}
	if *nThreads > 0 {
		c.Threads = *nThreads
	}
	if *checkF != "" {
		c.Checkpoint.File = *checkF
	}
	if c.Seed == -1 {
		c.Seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid settings: %w", err)
	}
	return c, nil
}

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	startTime := time.Now()

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
	for _, module := range logModules {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Random seed=%v", cfg.Seed)

	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Searches stop at the next iteration boundary on a signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner{
		ctx: ctx,
		cfg: cfg,
		summary: &RunSummary{
			Command: command,
		},
	}
	switch command {
	case distCmd.FullCommand():
		err = r.dist(*distAli)
	case njCmd.FullCommand():
		err = r.nj(*njAli)
	case parsCmd.FullCommand():
		err = r.pars(*parsAli, *parsStart)
	case mlCmd.FullCommand():
		err = r.ml(*mlAli, *mlStart)
	case scoreCmd.FullCommand():
		err = r.score(*scoreAli, *scoreTree)
	case treeCmd.FullCommand():
		err = r.tree(*treeIn)
	}
	if err != nil {
		log.Fatal(err)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)

	summary := r.summary
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = cfg.Seed
	summary.NThreads = effectiveNThreads
	summary.TotalTime = deltaT.Seconds()

	// output summary in json format
	if *jsonF != "" {
		if err := summary.write(*jsonF); err != nil {
			log.Error("Error writing json output file:", err)
		}
	}
}
