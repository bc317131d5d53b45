package analysis

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Result holds the two diagnostics computed for one attention matrix.
type Result struct {
	AttentionEntropy      float64 `cbor:"attention_entropy" json:"attention_entropy"`
	KeywordAttentionRatio float64 `cbor:"keyword_attention_ratio" json:"keyword_attention_ratio"`
}

// Analyze computes entropy and keyword attention ratio for a raw attention
// matrix whose axes are aligned with tokens. The matrix is not normalized
// beforehand; AttentionEntropy normalizes internally.
func Analyze(m mat.Matrix, tokens []string, t InputType) Result {
	start := time.Now()
	defer func() {
		analysisDuration.Observe(time.Since(start).Seconds())
	}()

	entropy := AttentionEntropy(m)
	keywords := LocateKeywords(tokens, t)
	ratio := KeywordAttentionRatio(m, keywords)

	analysesTotal.WithLabelValues(string(t)).Inc()
	keywordsFound.Observe(float64(len(keywords)))

	return Result{
		AttentionEntropy:      entropy,
		KeywordAttentionRatio: ratio,
	}
}
