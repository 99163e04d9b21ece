package parsimony

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/charphy/chars"
	"bitbucket.org/Davydov/charphy/distance"
	"bitbucket.org/Davydov/charphy/nj"
	"bitbucket.org/Davydov/charphy/tree"
)

func mustMatrix(t *testing.T, data map[string]string) *chars.Matrix {
	m, err := chars.FromMap(chars.Binary, data)
	require.NoError(t, err)
	return m
}

func mustTree(t *testing.T, s string) *tree.Tree {
	tr, err := tree.ParseNewickString(s)
	require.NoError(t, err)
	return tr
}

var seven = map[string]string{
	"t1": "0101100111010",
	"t2": "11?1100011011",
	"t3": "0000000001100",
	"t4": "1111111111111",
	"t5": "0?0?0?0?0?0?0",
	"t6": "1010101010101",
	"t7": "0110011001100",
}

// Characters compatible with ((((A,B),C),D),E,F).
var compatible = map[string]string{
	"A": "1101",
	"B": "1100",
	"C": "0100",
	"D": "0000",
	"E": "0010",
	"F": "0010",
}

func njTree(t *testing.T, m *chars.Matrix) *tree.Tree {
	d, err := distance.Hamming(m)
	require.NoError(t, err)
	tr, err := nj.NeighborJoining(d)
	require.NoError(t, err)
	return tr
}

func TestScoreHand(t *testing.T) {
	d := NewData(mustMatrix(t, map[string]string{
		"A": "00?",
		"B": "011",
		"C": "100",
		"D": "11?",
	}))
	// every tree needs two changes at one of the first two sites
	s, err := d.Score(mustTree(t, "(A,B,(C,D));"))
	require.NoError(t, err)
	assert.Equal(t, 4, s)

	s, err = d.Score(mustTree(t, "(A,C,(B,D));"))
	require.NoError(t, err)
	assert.Equal(t, 4, s)

	s, err = d.Score(mustTree(t, "((A,B),(C,D));"))
	require.NoError(t, err)
	assert.Equal(t, 4, s)

	s, err = d.ScoreWeighted(mustTree(t, "(A,B,(C,D));"), []int{2, 0, 5})
	require.NoError(t, err)
	assert.Equal(t, 7, s)
}

func TestPolytomy(t *testing.T) {
	d := NewData(mustMatrix(t, map[string]string{
		"A": "1",
		"B": "1",
		"C": "0",
	}))
	s, err := d.Score(mustTree(t, "(A,B,C);"))
	require.NoError(t, err)
	assert.Equal(t, 1, s)

	d = NewData(mustMatrix(t, map[string]string{
		"A": "1", "B": "0", "C": "1", "D": "0", "E": "0",
	}))
	s, err = d.Score(mustTree(t, "(A,B,C,D,E);"))
	require.NoError(t, err)
	assert.Equal(t, 2, s)
}

func TestScoreInvariance(t *testing.T) {
	m := mustMatrix(t, seven)
	d := NewData(m)
	tr := njTree(t, m)
	s, err := d.Score(tr)
	require.NoError(t, err)

	for _, name := range m.Taxa() {
		for _, resolve := range []bool{false, true} {
			r, err := tr.Reroot(name, resolve)
			require.NoError(t, err)
			rs, err := d.Score(r)
			require.NoError(t, err)
			assert.Equal(t, s, rs, "rerooted at %s", name)
		}
	}
	ls, err := d.Score(tr.Ladderize())
	require.NoError(t, err)
	assert.Equal(t, s, ls)
}

func TestScoreMismatch(t *testing.T) {
	d := NewData(mustMatrix(t, compatible))
	_, err := d.Score(mustTree(t, "(A,B,(C,D));"))
	var merr *tree.MismatchError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "E", merr.Taxon)

	_, err = d.ScoreWeighted(mustTree(t, "(A,B,(C,D),(E,F));"), []int{1})
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	d := NewData(mustMatrix(t, compatible))
	start := mustTree(t, "(A,E,(C,(F,(B,D))));")
	startScore, err := d.Score(start)
	require.NoError(t, err)

	for _, kind := range []MoveKind{NNI, SPR} {
		got, s, err := d.Search(context.Background(), start, nil, kind, 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, s, startScore)
		check, err := d.Score(got)
		require.NoError(t, err)
		assert.Equal(t, s, check)
	}

	got, s, err := d.Search(context.Background(), start, nil, SPR, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, s)
	assert.True(t, tree.EqualTopology(got, mustTree(t, "((((A,B),C),D),E,F);")), "got %s", got)
}

func TestSearchInvalid(t *testing.T) {
	d := NewData(mustMatrix(t, compatible))
	ctx := context.Background()

	_, _, err := d.Search(ctx, mustTree(t, "(A,X,(C,(B,D)));"), nil, NNI, 1)
	var merr *tree.MismatchError
	require.True(t, errors.As(err, &merr), "got %v", err)
	assert.Equal(t, "X", merr.Taxon)

	_, _, err = d.Search(ctx, mustTree(t, "(A,B,(C,D));"), nil, NNI, 1)
	require.True(t, errors.As(err, &merr), "got %v", err)
	assert.Equal(t, "E", merr.Taxon)

	_, _, err = d.Search(ctx, mustTree(t, "(A,B,(C,D),(E,F));"), []int{1}, SPR, 1)
	assert.Error(t, err)
}

func TestRatchet(t *testing.T) {
	d := NewData(mustMatrix(t, compatible))
	start := mustTree(t, "(A,E,(C,(F,(B,D))));")

	settings := DefaultSettings()
	settings.Iterations = 5
	settings.MaxNoImprovement = 0
	iterations := 0
	settings.OnIteration = func(it Iteration) {
		iterations++
		assert.Equal(t, iterations, it.N)
		assert.LessOrEqual(t, it.BestScore, it.Score)
	}
	got, s, err := Ratchet(context.Background(), d, start, settings)
	require.NoError(t, err)
	assert.Equal(t, 5, iterations)
	assert.Equal(t, 4, s)
	assert.True(t, tree.EqualTopology(got, mustTree(t, "((((A,B),C),D),E,F);")), "got %s", got)
	require.NotNil(t, got.Score)
	assert.Equal(t, tree.Parsimony, got.Score.Kind)
	assert.Equal(t, 4.0, got.Score.Value)
	for _, node := range got.Nodes() {
		assert.Zero(t, node.BranchLength)
	}
}

func TestRatchetDeterministic(t *testing.T) {
	m := mustMatrix(t, seven)
	d := NewData(m)
	for _, p := range []Perturbation{Bootstrap, Upweight} {
		settings := DefaultSettings()
		settings.Iterations = 8
		settings.Perturbation = p
		settings.Moves = SPR
		settings.Seed = 42
		a, sa, err := Ratchet(context.Background(), d, nil, settings)
		require.NoError(t, err)
		settings.Workers = 1
		b, sb, err := Ratchet(context.Background(), d, nil, settings)
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
		assert.Equal(t, a.Newick(), b.Newick())

		njScore, err := d.Score(njTree(t, m))
		require.NoError(t, err)
		assert.LessOrEqual(t, sa, njScore)
	}
}

func TestRatchetCancelled(t *testing.T) {
	d := NewData(mustMatrix(t, compatible))
	start := mustTree(t, "(A,E,(C,(F,(B,D))));")
	startScore, err := d.Score(start)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	settings := DefaultSettings()
	settings.OnIteration = func(Iteration) { called = true }
	got, s, err := Ratchet(ctx, d, start, settings)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, startScore, s)
	assert.True(t, tree.EqualTopology(start, got))
}

func TestPerturb(t *testing.T) {
	m := mustMatrix(t, seven)
	d := NewData(m)
	s := DefaultSettings()
	rng := rand.New(rand.NewSource(3))

	w := d.perturb(rng, &s)
	assert.Equal(t, m.NSites(), sum(w))

	s.Perturbation = Upweight
	s.UpweightFactor = 3
	w = d.perturb(rng, &s)
	assert.GreaterOrEqual(t, sum(w), m.NSites())
	assert.LessOrEqual(t, sum(w), 3*m.NSites())
	for i, v := range w {
		assert.GreaterOrEqual(t, v, d.weights[i])
	}
}

func sum(w []int) (s int) {
	for _, v := range w {
		s += v
	}
	return
}

func pathLength(a, b *tree.Node) float64 {
	up := make(map[*tree.Node]float64)
	l := 0.0
	for n := a; n != nil; n = n.Parent {
		up[n] = l
		l += n.BranchLength
	}
	l = 0
	for n := b; n != nil; n = n.Parent {
		if la, ok := up[n]; ok {
			return l + la
		}
		l += n.BranchLength
	}
	panic("nodes are not in the same tree")
}

func TestAcctran(t *testing.T) {
	m := mustMatrix(t, seven)
	d := NewData(m)
	tr := njTree(t, m)
	score, err := d.Score(tr)
	require.NoError(t, err)

	r, err := d.Acctran(tr)
	require.NoError(t, err)
	assert.Equal(t, score, r.Length)
	assert.InDelta(t, float64(score), r.Tree.TotalLength(), 1e-9)

	leaves := r.Tree.Leaves()
	for _, a := range leaves {
		ra, _ := m.Index(a.Name)
		states := d.SiteStates(r, a.Id)
		for site, s := range m.Row(ra) {
			if s != chars.Missing {
				assert.Equal(t, s, states[site])
			}
		}
		for _, b := range leaves {
			rb, _ := m.Index(b.Name)
			diff := 0
			for site := 0; site < m.NSites(); site++ {
				sa, sb := m.At(ra, site), m.At(rb, site)
				if sa != chars.Missing && sb != chars.Missing && sa != sb {
					diff++
				}
			}
			assert.GreaterOrEqual(t, pathLength(a, b), float64(diff), "%s-%s", a.Name, b.Name)
		}
	}

	// the input tree is not modified
	assert.Equal(t, njTree(t, m).Newick(), tr.Newick())
}

func TestAcctranCollapse(t *testing.T) {
	d := NewData(mustMatrix(t, map[string]string{
		"A": "11",
		"B": "11",
		"C": "00",
		"D": "00",
		"E": "00",
	}))
	tr := mustTree(t, "(A,B,(C,(D,E)));")
	r, err := d.Acctran(tr)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Length)

	c := r.Collapse()
	assert.Less(t, c.NNodes(), r.Tree.NNodes())
	assert.InDelta(t, 2.0, c.TotalLength(), 1e-12)
	s, err := d.Score(c)
	require.NoError(t, err)
	assert.Equal(t, 2, s)
}
