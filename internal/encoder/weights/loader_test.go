package weights

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/23skdu/longbow-lens/internal/encoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smallConfig(seed int64) encoder.Config {
	return encoder.Config{
		VocabSize:        10,
		HiddenSize:       4,
		NumLayers:        2,
		NumHeads:         2,
		IntermediateSize: 8,
		MaxPositions:     6,
		Seed:             seed,
	}
}

func TestLoader_WriteThenLoad(t *testing.T) {
	src, err := encoder.New(smallConfig(1))
	require.NoError(t, err)
	dst, err := encoder.New(smallConfig(2))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "weights.bin")
	require.NoError(t, NewLoader(src).WriteRawBinary(path))
	require.NoError(t, NewLoader(dst).LoadFromRawBinary(path))

	// float32 on disk
	assert.True(t, mat.EqualApprox(src.Layers[1].Attention.Key.Weight, dst.Layers[1].Attention.Key.Weight, 1e-6))
	assert.InDeltaSlice(t, src.Layers[0].Output.Bias, dst.Layers[0].Output.Bias, 1e-6)

	ids := []int{1, 2, 3}
	_, a, err := src.Forward(ids)
	require.NoError(t, err)
	_, b, err := dst.Forward(ids)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a[1][0], b[1][0], 1e-4))
}

func TestLoader_Errors(t *testing.T) {
	m, err := encoder.New(smallConfig(1))
	require.NoError(t, err)
	loader := NewLoader(m)

	t.Run("MissingFile", func(t *testing.T) {
		assert.Error(t, loader.LoadFromRawBinary(filepath.Join(t.TempDir(), "missing.bin")))
	})

	t.Run("TruncatedFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.bin")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, binary.Write(f, binary.LittleEndian, []float32{1, 2, 3}))
		require.NoError(t, f.Close())

		err = loader.LoadFromRawBinary(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embeddings.word")
	})
}

func TestLoader_Summaries(t *testing.T) {
	m, err := encoder.New(smallConfig(1))
	require.NoError(t, err)

	sums := NewLoader(m).Summaries()
	// 5 embedding tensors plus 16 per layer.
	require.Len(t, sums, 5+2*16)
	assert.Equal(t, "embeddings.word", sums[0].Name)
	assert.Equal(t, 10*4, sums[0].Size)
	assert.Len(t, sums[0].FirstFew, 5)
	assert.Equal(t, "layer.1.output.layer_norm.beta", sums[len(sums)-1].Name)
	assert.Len(t, sums[len(sums)-1].LastFew, 4)
}
