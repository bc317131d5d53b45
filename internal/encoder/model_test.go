package encoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testConfig() Config {
	return Config{
		VocabSize:        50,
		HiddenSize:       16,
		NumLayers:        3,
		NumHeads:         4,
		IntermediateSize: 32,
		MaxPositions:     8,
		Seed:             42,
	}
}

func TestModelForward(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	ids := []int{1, 5, 7, 9, 2}
	hidden, attentions, err := m.Forward(ids)
	require.NoError(t, err)

	r, c := hidden.Dims()
	require.Equal(t, len(ids), r)
	require.Equal(t, 16, c)

	require.Len(t, attentions, 3)
	for l, heads := range attentions {
		require.Len(t, heads, 4, "layer %d", l)
		for h, p := range heads {
			pr, pc := p.Dims()
			require.Equal(t, len(ids), pr)
			require.Equal(t, len(ids), pc)
			for i := 0; i < pr; i++ {
				assert.InDelta(t, 1.0, mat.Sum(p.RowView(i)), 1e-9, "layer %d head %d row %d", l, h, i)
			}
		}
	}

	for _, v := range hidden.RawMatrix().Data {
		require.False(t, math.IsNaN(v), "hidden state contains NaN")
	}
}

func TestModelDeterministic(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	b, err := New(testConfig())
	require.NoError(t, err)

	ids := []int{3, 4, 5}
	_, attA, err := a.Forward(ids)
	require.NoError(t, err)
	_, attB, err := b.Forward(ids)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(attA[2][1], attB[2][1], 1e-12))
}

func TestModelForwardErrors(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	_, _, err = m.Forward(nil)
	assert.Error(t, err)

	_, _, err = m.Forward([]int{1, 50})
	assert.Error(t, err)
}

func TestModelLongSequenceClampsPositions(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	ids := make([]int, 12) // longer than MaxPositions
	_, attentions, err := m.Forward(ids)
	require.NoError(t, err)
	r, _ := attentions[0][0].Dims()
	assert.Equal(t, 12, r)
}

func TestConfig(t *testing.T) {
	cfg, err := ConfigByName("bert-tiny")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NumLayers)

	cfg, err = ConfigByName("base")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.NumLayers)

	_, err = ConfigByName("t5-xxl")
	assert.Error(t, err)

	bad := testConfig()
	bad.NumHeads = 5
	assert.Error(t, bad.Validate())

	_, err = New(bad)
	assert.Error(t, err)
}
