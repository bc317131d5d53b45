package encoder

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/23skdu/longbow-lens/internal/simd"
	"gonum.org/v1/gonum/mat"
)

const layerNormEps = 1e-12

// Model is a BERT-style encoder that exposes its attention probabilities.
type Model struct {
	Config     Config
	Embeddings *Embeddings
	Layers     []*Layer
}

// New creates an encoder with Xavier-initialized weights drawn from
// cfg.Seed, so two models built from the same config are identical.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		Config:     cfg,
		Embeddings: newEmbeddings(cfg),
		Layers:     make([]*Layer, cfg.NumLayers),
	}
	for i := range m.Layers {
		m.Layers[i] = newLayer(cfg)
	}
	m.initWeights(rand.New(rand.NewSource(cfg.Seed)))
	return m, nil
}

// initWeights applies Xavier initialization to all weight matrices.
func (m *Model) initWeights(rng *rand.Rand) {
	xavierInit(rng, m.Embeddings.Word)
	xavierInit(rng, m.Embeddings.Position)
	xavierInit(rng, m.Embeddings.TokenType)

	for _, layer := range m.Layers {
		xavierInit(rng, layer.Attention.Query.Weight)
		xavierInit(rng, layer.Attention.Key.Weight)
		xavierInit(rng, layer.Attention.Value.Weight)
		xavierInit(rng, layer.Attention.Output.Weight)
		xavierInit(rng, layer.Intermediate.Weight)
		xavierInit(rng, layer.Output.Weight)
	}
}

// xavierInit fills a matrix with Xavier/Glorot uniform values.
func xavierInit(rng *rand.Rand, d *mat.Dense) {
	r, c := d.Dims()
	limit := math.Sqrt(6.0 / float64(r+c))
	raw := d.RawMatrix().Data
	for i := range raw {
		raw[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Forward runs one sequence of token ids through the encoder and returns the
// final hidden states together with the attention probabilities, indexed
// [layer][head]. Every attention row sums to one.
func (m *Model) Forward(ids []int) (*mat.Dense, [][]*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("empty input sequence")
	}
	for i, id := range ids {
		if id < 0 || id >= m.Config.VocabSize {
			return nil, nil, fmt.Errorf("token id %d at position %d outside vocabulary of %d", id, i, m.Config.VocabSize)
		}
	}
	tokensEncoded.Add(float64(len(ids)))

	start := time.Now()
	hidden := m.Embeddings.Forward(ids)
	LayerDuration.WithLabelValues("embeddings").Observe(time.Since(start).Seconds())

	attentions := make([][]*mat.Dense, len(m.Layers))
	for i, layer := range m.Layers {
		start = time.Now()
		hidden, attentions[i] = layer.Forward(hidden)
		LayerDuration.WithLabelValues("layer").Observe(time.Since(start).Seconds())
	}
	return hidden, attentions, nil
}

// Embeddings handles word, position, and token type embeddings.
type Embeddings struct {
	Word      *mat.Dense
	Position  *mat.Dense
	TokenType *mat.Dense
	LayerNorm *LayerNorm
}

func newEmbeddings(cfg Config) *Embeddings {
	return &Embeddings{
		Word:      mat.NewDense(cfg.VocabSize, cfg.HiddenSize, nil),
		Position:  mat.NewDense(cfg.MaxPositions, cfg.HiddenSize, nil),
		TokenType: mat.NewDense(2, cfg.HiddenSize, nil), // 2 types: A and B
		LayerNorm: newLayerNorm(cfg.HiddenSize),
	}
}

func (e *Embeddings) Forward(ids []int) *mat.Dense {
	_, hiddenSize := e.Word.Dims()
	maxPos, _ := e.Position.Dims()

	out := mat.NewDense(len(ids), hiddenSize, nil)
	for i, id := range ids {
		row := out.RawRowView(i)
		copy(row, e.Word.RawRowView(id))

		pos := i
		if pos >= maxPos {
			pos = maxPos - 1
		}
		simd.VecAdd(row, e.Position.RawRowView(pos))
		// Single segment input, token type 0.
		simd.VecAdd(row, e.TokenType.RawRowView(0))
	}
	e.LayerNorm.Forward(out)
	return out
}

// Linear is a dense projection x*W + b with W stored as (in, out).
type Linear struct {
	Weight *mat.Dense
	Bias   []float64
}

func newLinear(in, out int) *Linear {
	return &Linear{
		Weight: mat.NewDense(in, out, nil),
		Bias:   make([]float64, out),
	}
}

func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	_, c := l.Weight.Dims()

	out := mat.NewDense(r, c, nil)
	out.Mul(x, l.Weight)
	for i := 0; i < r; i++ {
		simd.VecAdd(out.RawRowView(i), l.Bias)
	}
	return out
}

// LayerNorm implements Layer Normalization over each row.
type LayerNorm struct {
	Gamma []float64
	Beta  []float64
	Eps   float64
}

func newLayerNorm(size int) *LayerNorm {
	gamma := make([]float64, size)
	for i := range gamma {
		gamma[i] = 1.0
	}
	return &LayerNorm{
		Gamma: gamma,
		Beta:  make([]float64, size),
		Eps:   layerNormEps,
	}
}

// Forward performs LayerNorm in-place.
func (l *LayerNorm) Forward(x *mat.Dense) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		simd.LayerNorm(x.RawRowView(i), l.Gamma, l.Beta, l.Eps)
	}
}

// SelfAttention is multi-head self-attention with its output projection,
// residual connection and LayerNorm.
type SelfAttention struct {
	NumHeads int
	HeadSize int

	Query     *Linear
	Key       *Linear
	Value     *Linear
	Output    *Linear
	LayerNorm *LayerNorm
}

func newSelfAttention(cfg Config) *SelfAttention {
	return &SelfAttention{
		NumHeads:  cfg.NumHeads,
		HeadSize:  cfg.HiddenSize / cfg.NumHeads,
		Query:     newLinear(cfg.HiddenSize, cfg.HiddenSize),
		Key:       newLinear(cfg.HiddenSize, cfg.HiddenSize),
		Value:     newLinear(cfg.HiddenSize, cfg.HiddenSize),
		Output:    newLinear(cfg.HiddenSize, cfg.HiddenSize),
		LayerNorm: newLayerNorm(cfg.HiddenSize),
	}
}

// Forward returns the attention block output and one seqLen x seqLen
// probability matrix per head.
func (s *SelfAttention) Forward(x *mat.Dense) (*mat.Dense, []*mat.Dense) {
	n, hiddenSize := x.Dims()

	q := s.Query.Forward(x)
	k := s.Key.Forward(x)
	v := s.Value.Forward(x)

	contextLayer := mat.NewDense(n, hiddenSize, nil)
	probs := make([]*mat.Dense, s.NumHeads)
	scale := 1.0 / math.Sqrt(float64(s.HeadSize))

	// Heads write disjoint column blocks of contextLayer.
	var wg sync.WaitGroup
	for h := 0; h < s.NumHeads; h++ {
		wg.Add(1)
		go func(h int) {
			defer wg.Done()
			lo, hi := h*s.HeadSize, (h+1)*s.HeadSize

			scores := mat.NewDense(n, n, nil)
			scores.Mul(q.Slice(0, n, lo, hi), k.Slice(0, n, lo, hi).T())
			scores.Scale(scale, scores)
			for i := 0; i < n; i++ {
				simd.Softmax(scores.RawRowView(i))
			}

			headContext := mat.NewDense(n, s.HeadSize, nil)
			headContext.Mul(scores, v.Slice(0, n, lo, hi))
			contextLayer.Slice(0, n, lo, hi).(*mat.Dense).Copy(headContext)

			probs[h] = scores
		}(h)
	}
	wg.Wait()

	out := s.Output.Forward(contextLayer)
	out.Add(out, x)
	s.LayerNorm.Forward(out)
	return out, probs
}

// Layer is a single Transformer block.
type Layer struct {
	Attention    *SelfAttention
	Intermediate *Linear
	Output       *Linear
	OutputNorm   *LayerNorm
}

func newLayer(cfg Config) *Layer {
	return &Layer{
		Attention:    newSelfAttention(cfg),
		Intermediate: newLinear(cfg.HiddenSize, cfg.IntermediateSize),
		Output:       newLinear(cfg.IntermediateSize, cfg.HiddenSize),
		OutputNorm:   newLayerNorm(cfg.HiddenSize),
	}
}

func (l *Layer) Forward(x *mat.Dense) (*mat.Dense, []*mat.Dense) {
	attended, probs := l.Attention.Forward(x)

	inter := l.Intermediate.Forward(attended)
	r, _ := inter.Dims()
	for i := 0; i < r; i++ {
		simd.GeluFast(inter.RawRowView(i))
	}

	out := l.Output.Forward(inter)
	out.Add(out, attended)
	l.OutputNorm.Forward(out)
	return out, probs
}
