package results

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-lens/internal/analysis"
)

func rec(id int, t analysis.InputType, layer int, h, r float64) Record {
	return Record{
		ProblemID: id,
		InputType: t,
		Layer:     layer,
		Tokens:    []string{"[CLS]", "x", "[SEP]"},
		Result:    analysis.Result{AttentionEntropy: h, KeywordAttentionRatio: r},
	}
}

func TestFileName(t *testing.T) {
	name := FileName(3, analysis.Verbal, 12)
	assert.Equal(t, "problem_3_verbal_layer_12_analysis.cbor", name)

	id, typ, layer, ok := ParseFileName(name)
	require.True(t, ok)
	assert.Equal(t, 3, id)
	assert.Equal(t, analysis.Verbal, typ)
	assert.Equal(t, 12, layer)

	for _, bad := range []string{"problem_x_verbal_layer_1_analysis.cbor", "notes.cbor", "problem_1_verbal_layer_1_analysis.pkl"} {
		_, _, _, ok := ParseFileName(bad)
		assert.False(t, ok, bad)
	}
}

func TestStoreSaveLoad(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "results"))
	want := rec(1, analysis.Symbolic, 6, 1.25, 0.4)

	path, err := s.Save(want)
	require.NoError(t, err)
	assert.Equal(t, "problem_1_symbolic_layer_6_analysis.cbor", filepath.Base(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoreCollect(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	for _, r := range []Record{
		rec(2, analysis.Verbal, 7, 2.0, 0.1),
		rec(1, analysis.Verbal, 6, 1.5, 0.2),
		rec(1, analysis.Symbolic, 7, 1.0, 0.3),
		rec(1, analysis.Symbolic, 6, 0.5, 0.4),
	} {
		_, err := s.Save(r)
		require.NoError(t, err)
	}
	// Ignored: wrong extension, unparseable name, directory.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.csv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.cbor"), []byte{0xa0}, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "plots"), 0o755))

	records, err := s.Collect()
	require.NoError(t, err)
	require.Len(t, records, 4)

	type key struct {
		layer, id int
		t         analysis.InputType
	}
	var order []key
	for _, r := range records {
		order = append(order, key{r.Layer, r.ProblemID, r.InputType})
	}
	assert.Equal(t, []key{
		{6, 1, analysis.Symbolic},
		{6, 1, analysis.Verbal},
		{7, 1, analysis.Symbolic},
		{7, 2, analysis.Verbal},
	}, order)
	assert.Equal(t, 0.5, records[0].AttentionEntropy)
}

func TestStoreCollectIdentityFromName(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	path, err := s.Save(rec(1, analysis.Symbolic, 6, 1, 0))
	require.NoError(t, err)
	require.NoError(t, os.Rename(path, filepath.Join(dir, FileName(9, analysis.Verbal, 11))))

	records, err := s.Collect()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 9, records[0].ProblemID)
	assert.Equal(t, analysis.Verbal, records[0].InputType)
	assert.Equal(t, 11, records[0].Layer)
}

func TestStoreCollectErrors(t *testing.T) {
	t.Run("MissingDir", func(t *testing.T) {
		records, err := NewStore(filepath.Join(t.TempDir(), "none")).Collect()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("CorruptFile", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(1, analysis.Verbal, 1)), []byte{0xff, 0x00}, 0o644))
		_, err := NewStore(dir).Collect()
		assert.Error(t, err)
	})
}
