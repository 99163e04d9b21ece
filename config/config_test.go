package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/charphy/bmodel"
	"bitbucket.org/Davydov/charphy/parsimony"
)

func writeConfig(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "charphy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, parsimony.DefaultSettings().Iterations, c.RatchetSettings().Iterations)
	assert.Equal(t, bmodel.DefaultSubstitution(), c.Substitution())

	set := c.LikelihoodSettings()
	def := bmodel.DefaultSettings()
	assert.Equal(t, def.Method, set.Method)
	assert.Equal(t, def.Topology, set.Topology)
	assert.Equal(t, def.Tolerance, set.Tolerance)

	ab, err := c.CharAlphabet()
	require.NoError(t, err)
	assert.Equal(t, "01", ab.Symbols())
	assert.Equal(t, byte('?'), ab.MissingSymbol())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
seed: 7
threads: 2
ratchet:
  iterations: 20
  perturbation: upweight
  moves: spr
  max_time: 90s
likelihood:
  ncat: 4
  alpha: 0.5
  ascertainment: true
  method: simplex
  topology: false
`)
	c, err := Load(path)
	require.NoError(t, err)

	r := c.RatchetSettings()
	assert.Equal(t, 20, r.Iterations)
	assert.Equal(t, parsimony.Upweight, r.Perturbation)
	assert.Equal(t, parsimony.SPR, r.Moves)
	assert.Equal(t, 90*time.Second, r.MaxTime)
	assert.Equal(t, int64(7), r.Seed)
	assert.Equal(t, 2, r.Workers)
	// untouched fields keep defaults
	assert.Equal(t, parsimony.DefaultSettings().MaxNoImprovement, r.MaxNoImprovement)

	s := c.Substitution()
	assert.Equal(t, 4, s.NCat)
	assert.Equal(t, 0.5, s.Alpha)
	assert.True(t, s.Ascertainment)
	require.NoError(t, s.Validate())

	l := c.LikelihoodSettings()
	assert.Equal(t, bmodel.Simplex, l.Method)
	assert.False(t, l.Topology)
}

func TestInvalid(t *testing.T) {
	for _, text := range []string{
		"ratchet:\n  perturbation: jackknife\n",
		"likelihood:\n  pi1: 1.5\n",
		"likelihood:\n  method: newton\n",
		"alphabet:\n  missing: \"??\"\n",
		"threads: -1\n",
		"seed: [1\n",
	} {
		_, err := Load(writeConfig(t, text))
		assert.Error(t, err, text)
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
