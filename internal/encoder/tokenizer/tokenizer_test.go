package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizer(t *testing.T) {
	vocabContent := []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
		"hello", "world", "hi", "how", "are", "you",
		"##lo", "##ld", "##i",
	}
	vocabPath := filepath.Join(t.TempDir(), "vocab.txt")
	f, err := os.Create(vocabPath)
	require.NoError(t, err)
	for _, v := range vocabContent {
		_, _ = f.WriteString(v + "\n")
	}
	require.NoError(t, f.Close())

	tk, err := NewWordPieceTokenizer(vocabPath)
	require.NoError(t, err)
	require.Equal(t, 14, tk.VocabSize())

	t.Run("BasicTokenize", func(t *testing.T) {
		tokens, ids := tk.Tokenize("Hello world")
		require.Equal(t, []string{"hello", "world"}, tokens)
		require.Equal(t, []int{5, 6}, ids)
	})

	t.Run("WordPieceSplit", func(t *testing.T) {
		tokens, ids := tk.Tokenize("hellold")
		require.Equal(t, []string{"hello", "##ld"}, tokens)
		require.Equal(t, []int{5, 12}, ids)
	})

	t.Run("UNKHandling", func(t *testing.T) {
		tokens, ids := tk.Tokenize("unknownword")
		require.Equal(t, []string{"[UNK]"}, tokens)
		require.Equal(t, []int{1}, ids)
	})

	t.Run("Normalization", func(t *testing.T) {
		tokens, ids := tk.Tokenize("Héllo")
		require.Equal(t, []string{"hello"}, tokens)
		require.Equal(t, []int{5}, ids)
	})

	t.Run("SpecialTokens", func(t *testing.T) {
		tokens, _ := tk.Tokenize("[CLS] hi [SEP]")
		require.Equal(t, []string{"[CLS]", "hi", "[SEP]"}, tokens)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := NewWordPieceTokenizer(filepath.Join(t.TempDir(), "missing.txt"))
		require.Error(t, err)
	})
}

func TestBuildVocab(t *testing.T) {
	texts := []string{"求 x+y=3", "加上 A"}
	vocab := BuildVocab(texts)

	require.Equal(t, SpecialTokens, vocab[:len(SpecialTokens)])
	require.Contains(t, vocab, "求")
	require.Contains(t, vocab, "加")
	require.Contains(t, vocab, "上")
	require.Contains(t, vocab, "+")
	require.Contains(t, vocab, "a")
	require.NotContains(t, vocab, "A")

	tk := FromTokens(vocab)
	tokens, ids := tk.Tokenize("求 x+y=3")
	require.Equal(t, []string{"求", "x", "+", "y", "=", "3"}, tokens)
	for _, id := range ids {
		require.NotEqual(t, 1, id, "no token should map to [UNK]")
	}

	clsID, ok := tk.ID(ClsToken)
	require.True(t, ok)
	require.Equal(t, 2, clsID)
}

func TestCaseSensitive(t *testing.T) {
	vocab := BuildVocab([]string{"H → W A"}, WithCaseSensitive())
	tk := FromTokens(vocab, WithCaseSensitive())

	tokens, _ := tk.Tokenize("H → A")
	require.Equal(t, []string{"H", "→", "A"}, tokens)
}

func TestIdeographsSplit(t *testing.T) {
	tk := FromTokens(BuildVocab([]string{"求等于"}))
	tokens, _ := tk.Tokenize("求等于")
	require.Equal(t, []string{"求", "等", "于"}, tokens)
}
