package distance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/charphy/chars"
)

func TestHammingHand(t *testing.T) {
	m, err := chars.New(chars.Binary,
		[]string{"A", "B", "C"},
		[]string{"10100", "11110", "100?1"})
	require.NoError(t, err)

	d, err := Hamming(m)
	require.NoError(t, err)

	ab, err := d.Dist("A", "B")
	require.NoError(t, err)
	assert.InDelta(t, 2.0/5.0, ab, 1e-12)

	// site 3 is missing in C: A=1010, C=1001 over four sites
	ac, err := d.Dist("A", "C")
	require.NoError(t, err)
	assert.InDelta(t, 2.0/4.0, ac, 1e-12)

	// B=1110, C=1001 over four sites
	bc, err := d.Dist("B", "C")
	require.NoError(t, err)
	assert.InDelta(t, 3.0/4.0, bc, 1e-12)

	ba, err := d.Dist("B", "A")
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestHammingSymmetric(t *testing.T) {
	m, err := chars.FromMap(chars.Binary, map[string]string{
		"t1": "0101100?11",
		"t2": "11?1100011",
		"t3": "0000000000",
		"t4": "1111111111",
		"t5": "0?0?0?0?0?",
	})
	require.NoError(t, err)
	d, err := Hamming(m)
	require.NoError(t, err)

	for i := 0; i < d.Len(); i++ {
		assert.Zero(t, d.At(i, i))
		for j := 0; j < d.Len(); j++ {
			assert.Equal(t, d.At(i, j), d.At(j, i))
			assert.GreaterOrEqual(t, d.At(i, j), 0.0)
			assert.LessOrEqual(t, d.At(i, j), 1.0)
		}
	}
	v, err := d.Dist("t3", "t4")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestInsufficientOverlap(t *testing.T) {
	m, err := chars.New(chars.Binary,
		[]string{"a", "b", "c"},
		[]string{"01??", "??10", "0110"})
	require.NoError(t, err)

	_, err = Hamming(m)
	var oerr *InsufficientOverlapError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, "a", oerr.A)
	assert.Equal(t, "b", oerr.B)
}

func TestNewValidation(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]float64{{0, 1}, {2, 0}})
	assert.Error(t, err)
	_, err = New([]string{"a", "b"}, [][]float64{{0, -1}, {-1, 0}})
	assert.Error(t, err)
	_, err = New([]string{"a", "b"}, [][]float64{{1, 1}, {1, 0}})
	assert.Error(t, err)

	d, err := New([]string{"a", "b"}, [][]float64{{0, 0.5}, {0.5, 0}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0.5}, {0.5, 0}}, d.Values())
	assert.Equal(t, "2\na\t0.000000\t0.500000\nb\t0.500000\t0.000000\n", d.String())
}
