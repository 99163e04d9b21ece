package parsimony

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"bitbucket.org/Davydov/charphy/distance"
	"bitbucket.org/Davydov/charphy/nj"
	"bitbucket.org/Davydov/charphy/tree"
)

// Perturbation is the site reweighting scheme of the ratchet.
type Perturbation int

const (
	// Bootstrap resamples sites with replacement.
	Bootstrap Perturbation = iota
	// Upweight multiplies the weight of a random subset of sites.
	Upweight
)

func (p Perturbation) String() string {
	if p == Upweight {
		return "upweight"
	}
	return "bootstrap"
}

// Iteration describes a finished ratchet iteration.
type Iteration struct {
	N int
	// Score is the unweighted score reached in this iteration.
	Score int
	// BestScore and Best are the best so far.
	BestScore int
	Best      *tree.Tree
	Elapsed   time.Duration
}

// Settings control the ratchet. Zero Iterations, MaxNoImprovement or
// MaxTime disable the corresponding stopping rule.
type Settings struct {
	Iterations       int
	MaxNoImprovement int
	MaxTime          time.Duration
	Perturbation     Perturbation
	// UpweightFraction is the probability of a site to be upweighted.
	UpweightFraction float64
	// UpweightFactor multiplies weights of upweighted sites.
	UpweightFactor int
	Moves          MoveKind
	Workers        int
	Seed           int64
	// OnIteration is called after every iteration.
	OnIteration func(Iteration)
}

// DefaultSettings returns the default ratchet settings.
func DefaultSettings() Settings {
	return Settings{
		Iterations:       100,
		MaxNoImprovement: 10,
		Perturbation:     Bootstrap,
		UpweightFraction: 0.25,
		UpweightFactor:   2,
		Moves:            NNI,
		Seed:             1,
	}
}

// perturb returns new pattern weights.
func (d *Data) perturb(rng *rand.Rand, s *Settings) []int {
	w := make([]int, len(d.weights))
	nSites := len(d.sitePattern)
	switch s.Perturbation {
	case Upweight:
		for _, pat := range d.sitePattern {
			if rng.Float64() < s.UpweightFraction {
				w[pat] += s.UpweightFactor
			} else {
				w[pat]++
			}
		}
	default:
		for i := 0; i < nSites; i++ {
			w[d.sitePattern[rng.Intn(nSites)]]++
		}
	}
	return w
}

// startTree returns an unrooted copy of start or the neighbor joining
// tree of Hamming distances if start is nil.
func (d *Data) startTree(start *tree.Tree) (*tree.Tree, error) {
	if start == nil {
		dm, err := distance.Hamming(d.matrix)
		if err != nil {
			return nil, err
		}
		return nj.NeighborJoining(dm)
	}
	if err := start.CheckTaxa(d.matrix.Taxa()); err != nil {
		return nil, err
	}
	t := start.Copy()
	if t.IsRooted() && t.NLeaves() > 2 {
		if _, err := t.Unroot(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func zeroLengths(t *tree.Tree) {
	for _, node := range t.Nodes() {
		node.BranchLength = 0
	}
}

// Ratchet searches for the most parsimonious tree with the parsimony
// ratchet. Each iteration searches under perturbed site weights, then
// under the original weights, and the result replaces the best tree if
// its score is not worse. The search stops on the iteration limit,
// after MaxNoImprovement iterations without a better score, when
// MaxTime elapses or when ctx is cancelled; a cancelled or timed out
// iteration is discarded. The returned tree has zero branch lengths and
// carries a Parsimony score.
func Ratchet(ctx context.Context, data *Data, start *tree.Tree, s Settings) (*tree.Tree, int, error) {
	t, err := data.startTree(start)
	if err != nil {
		return nil, 0, fmt.Errorf("ratchet: %w", err)
	}
	if s.Perturbation == Upweight && (s.UpweightFactor < 1 || s.UpweightFraction < 0 || s.UpweightFraction > 1) {
		return nil, 0, fmt.Errorf("ratchet: bad upweighting (fraction %v, factor %d)", s.UpweightFraction, s.UpweightFactor)
	}
	began := time.Now()
	if s.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.MaxTime)
		defer cancel()
	}
	rng := rand.New(rand.NewSource(s.Seed))

	best, bestScore, err := data.Search(ctx, t, nil, s.Moves, s.Workers)
	if err != nil {
		log.Warningf("initial search interrupted: %v", err)
	}
	log.Infof("ratchet start score: %d", bestScore)

	noImprovement := 0
	for iter := 1; s.Iterations <= 0 || iter <= s.Iterations; iter++ {
		if ctx.Err() != nil {
			log.Noticef("ratchet stopped before iteration %d: %v", iter, ctx.Err())
			break
		}
		w := data.perturb(rng, &s)
		perturbed, _, err := data.Search(ctx, best, w, s.Moves, s.Workers)
		if err != nil {
			log.Noticef("ratchet iteration %d interrupted: %v", iter, err)
			break
		}
		cand, score, err := data.Search(ctx, perturbed, nil, s.Moves, s.Workers)
		if err != nil {
			log.Noticef("ratchet iteration %d interrupted: %v", iter, err)
			break
		}

		if score < bestScore {
			noImprovement = 0
		} else {
			noImprovement++
		}
		if score <= bestScore {
			best, bestScore = cand, score
		}
		log.Debugf("ratchet iteration %d: score %d, best %d", iter, score, bestScore)
		if s.OnIteration != nil {
			s.OnIteration(Iteration{
				N:         iter,
				Score:     score,
				BestScore: bestScore,
				Best:      best,
				Elapsed:   time.Since(began),
			})
		}
		if s.MaxNoImprovement > 0 && noImprovement >= s.MaxNoImprovement {
			log.Infof("no improvement in %d iterations", noImprovement)
			break
		}
	}

	res := best.Copy()
	zeroLengths(res)
	res.Score = &tree.Score{Kind: tree.Parsimony, Value: float64(bestScore)}
	log.Noticef("ratchet finished, best score: %d", bestScore)
	return res, bestScore, nil
}
