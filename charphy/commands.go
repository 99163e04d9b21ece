package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/charphy/bio"
	"bitbucket.org/Davydov/charphy/bmodel"
	"bitbucket.org/Davydov/charphy/chars"
	"bitbucket.org/Davydov/charphy/checkpoint"
	"bitbucket.org/Davydov/charphy/config"
	"bitbucket.org/Davydov/charphy/distance"
	"bitbucket.org/Davydov/charphy/nj"
	"bitbucket.org/Davydov/charphy/parsimony"
	"bitbucket.org/Davydov/charphy/tree"
)

// runner executes a single command.
type runner struct {
	ctx     context.Context
	cfg     config.Config
	summary *RunSummary
}

// readMatrix reads a character matrix from a fasta file.
func readMatrix(fn string, alphabet chars.Alphabet) (*chars.Matrix, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seqs, err := bio.ParseFasta(f)
	if err != nil {
		return nil, err
	}
	return chars.FromSequences(alphabet, seqs)
}

// readTree reads a newick tree; an empty file name gives a nil tree.
func readTree(fn string) (*tree.Tree, error) {
	if fn == "" {
		return nil, nil
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tree.ParseNewick(f)
}

func (r *runner) matrix(fn string) (*chars.Matrix, error) {
	alphabet, err := r.cfg.CharAlphabet()
	if err != nil {
		return nil, err
	}
	m, err := readMatrix(fn, alphabet)
	if err != nil {
		return nil, err
	}
	if m.NSites() == 0 {
		return nil, fmt.Errorf("%s: zero length alignment", fn)
	}
	log.Infof("Read %d taxa, %d characters, %d patterns", m.NTaxa(), m.NSites(), m.Patterns().Len())
	r.summary.NTaxa = m.NTaxa()
	r.summary.NSites = m.NSites()
	r.summary.NPatterns = m.Patterns().Len()
	return m, nil
}

// output writes the command result to --out or stdout.
func output(s string) error {
	var w io.Writer = os.Stdout
	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := io.WriteString(w, s)
	return err
}

// openCheckpoint opens the checkpoint database if one is configured. The
// returned function closes it.
func (r *runner) openCheckpoint(key string) (*checkpoint.CheckpointIO, func(), error) {
	fn := r.cfg.Checkpoint.File
	if fn == "" {
		return nil, func() {}, nil
	}
	db, err := bolt.Open(fn, 0666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("opening checkpoint %s: %w", fn, err)
	}
	log.Infof("Using checkpoint database %s", fn)
	cio := checkpoint.NewCheckpointIO(db, []byte(key), r.cfg.Checkpoint.Seconds)
	return cio, func() { db.Close() }, nil
}

// resume returns the checkpoint tree and data if there is one.
func resume(cio *checkpoint.CheckpointIO) (*tree.Tree, *checkpoint.CheckpointData, error) {
	if cio == nil {
		return nil, nil, nil
	}
	data, err := cio.Load()
	if err != nil || data == nil {
		return nil, nil, err
	}
	t, err := tree.ParseNewickString(data.Tree)
	if err != nil {
		return nil, nil, fmt.Errorf("checkpoint tree: %w", err)
	}
	return t, data, nil
}

func (r *runner) dist(fn string) error {
	m, err := r.matrix(fn)
	if err != nil {
		return err
	}
	dm, err := distance.Hamming(m)
	if err != nil {
		return err
	}
	return output(dm.String())
}

func (r *runner) nj(fn string) error {
	m, err := r.matrix(fn)
	if err != nil {
		return err
	}
	dm, err := distance.Hamming(m)
	if err != nil {
		return err
	}
	t, err := nj.NeighborJoining(dm)
	if err != nil {
		return err
	}
	r.summary.FinalTree = t.Newick()
	r.summary.ScoreKind = t.Score.Kind.String()
	r.summary.Score = t.Score.Value
	return output(t.String() + "\n")
}

func (r *runner) pars(fn, startFn string) error {
	m, err := r.matrix(fn)
	if err != nil {
		return err
	}
	data := parsimony.NewData(m)
	start, err := readTree(startFn)
	if err != nil {
		return err
	}

	cio, closeDB, err := r.openCheckpoint("pars")
	if err != nil {
		return err
	}
	defer closeDB()
	if t, _, err := resume(cio); err != nil {
		return err
	} else if t != nil {
		start = t
		r.summary.Resumed = true
	}
	if start != nil {
		r.summary.StartingTree = start.Newick()
	}

	s := r.cfg.RatchetSettings()
	log.Infof("Ratchet: %d iterations, %v reweighting, %v moves", s.Iterations, s.Perturbation, s.Moves)
	s.OnIteration = func(it parsimony.Iteration) {
		r.summary.Trajectory = append(r.summary.Trajectory, float64(it.BestScore))
		r.summary.Iterations = it.N
		log.Infof("iteration %d: score=%d, best=%d", it.N, it.Score, it.BestScore)
		if cio != nil && cio.Old() {
			cio.Save(&checkpoint.CheckpointData{
				Kind:  tree.Parsimony.String(),
				Tree:  it.Best.Newick(),
				Score: float64(it.BestScore),
				Iter:  it.N,
			})
		}
	}

	began := time.Now()
	best, score, err := parsimony.Ratchet(r.ctx, data, start, s)
	if err != nil {
		return err
	}
	r.summary.Time = time.Since(began).Seconds()
	log.Noticef("Parsimony score: %d", score)

	if cio != nil {
		cio.Save(&checkpoint.CheckpointData{
			Kind:  tree.Parsimony.String(),
			Tree:  best.Newick(),
			Score: float64(score),
			Iter:  r.summary.Iterations,
			Final: true,
		})
	}

	res := best
	if *acctran || *collapse {
		rec, err := data.Acctran(best)
		if err != nil {
			return err
		}
		log.Infof("ACCTRAN length: %d", rec.Length)
		res = rec.Tree
		if *collapse {
			res = rec.Collapse()
		}
	}

	r.summary.FinalTree = res.Newick()
	r.summary.ScoreKind = tree.Parsimony.String()
	r.summary.Score = float64(score)
	if *plotF != "" {
		if err := plotTrajectory(*plotF, "parsimony ratchet", "best score", r.summary.Trajectory); err != nil {
			log.Error("Error plotting trajectory:", err)
		}
	}
	return output(res.String() + "\n")
}

func (r *runner) ml(fn, startFn string) error {
	m, err := r.matrix(fn)
	if err != nil {
		return err
	}
	data, err := bmodel.NewData(m)
	if err != nil {
		return err
	}
	start, err := readTree(startFn)
	if err != nil {
		return err
	}
	if start != nil && start.IsRooted() {
		log.Warning("Tree is rooted. Will unroot.")
	}
	subst := r.cfg.Substitution()

	cio, closeDB, err := r.openCheckpoint("ml")
	if err != nil {
		return err
	}
	defer closeDB()
	if t, cp, err := resume(cio); err != nil {
		return err
	} else if t != nil {
		start = t
		if v, ok := cp.Parameters["pi1"]; ok {
			subst.Pi1 = v
		}
		if v, ok := cp.Parameters["alpha"]; ok && subst.NCat > 1 {
			subst.Alpha = v
		}
		r.summary.Resumed = true
	}
	if start != nil {
		r.summary.StartingTree = start.Newick()
	}
	log.Infof("Model: %s", subst)

	s := r.cfg.LikelihoodSettings()
	log.Infof("Using %s optimization.", s.Method)
	s.OnCycle = func(c bmodel.Cycle) {
		log.Infof("cycle %d: lnL=%f", c.N, c.LnL)
		if cio != nil && cio.Old() {
			cio.Save(&checkpoint.CheckpointData{
				Kind:       tree.LogLikelihood.String(),
				Tree:       c.Tree.Newick(),
				Score:      c.LnL,
				Parameters: c.Model.Parameters(),
				Iter:       c.N,
			})
		}
	}

	began := time.Now()
	res, err := bmodel.Optimize(r.ctx, data, start, subst, s)
	if err != nil {
		return err
	}
	r.summary.Time = time.Since(began).Seconds()
	log.Noticef("lnL=%f", res.LnL)
	for name, v := range res.Model.Parameters() {
		log.Noticef("%s=%v", name, v)
	}

	if cio != nil {
		cio.Save(&checkpoint.CheckpointData{
			Kind:       tree.LogLikelihood.String(),
			Tree:       res.Tree.Newick(),
			Score:      res.LnL,
			Parameters: res.Model.Parameters(),
			Iter:       res.Cycles,
			Final:      true,
		})
	}

	r.summary.FinalTree = res.Tree.Newick()
	r.summary.ScoreKind = tree.LogLikelihood.String()
	r.summary.Score = res.LnL
	r.summary.Parameters = res.Model.Parameters()
	r.summary.Iterations = res.Cycles
	r.summary.Trajectory = res.Trajectory
	if *plotF != "" {
		if err := plotTrajectory(*plotF, "likelihood optimization", "lnL", res.Trajectory); err != nil {
			log.Error("Error plotting trajectory:", err)
		}
	}
	return output(res.Tree.String() + "\n")
}

func (r *runner) score(fn, treeFn string) error {
	m, err := r.matrix(fn)
	if err != nil {
		return err
	}
	t, err := readTree(treeFn)
	if err != nil {
		return err
	}
	r.summary.StartingTree = t.Newick()

	score, err := parsimony.NewData(m).Score(t)
	if err != nil {
		return err
	}
	r.summary.ScoreKind = tree.Parsimony.String()
	r.summary.Score = float64(score)
	out := fmt.Sprintf("parsimony\t%d\n", score)

	data, err := bmodel.NewData(m)
	if err != nil {
		log.Warningf("Skipping likelihood: %v", err)
		return output(out)
	}
	subst := r.cfg.Substitution()
	lnL, err := bmodel.LogLikelihood(data, t, subst)
	if err != nil {
		return err
	}
	r.summary.LnL = lnL
	r.summary.Parameters = subst.Parameters()
	return output(out + fmt.Sprintf("lnL\t%f\n", lnL))
}
