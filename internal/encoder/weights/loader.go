package weights

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/23skdu/longbow-lens/internal/encoder"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Loader handles loading model weights from binary files.
type Loader struct {
	Model *encoder.Model
}

// NewLoader creates a new weight loader for the given model.
func NewLoader(m *encoder.Model) *Loader {
	return &Loader{Model: m}
}

// tensor is one named parameter in file order.
type tensor struct {
	name string
	data []float64
}

// tensors lists every parameter in the order it appears on disk: embeddings,
// embedding LayerNorm, then per layer Q, bq, K, bk, V, bv, attention output
// W, b, LayerNorm, intermediate W, b, output W, b, LayerNorm. Matrices are
// stored row-major as (in, out).
func (l *Loader) tensors() []tensor {
	m := l.Model
	out := []tensor{
		{"embeddings.word", raw(m.Embeddings.Word)},
		{"embeddings.position", raw(m.Embeddings.Position)},
		{"embeddings.token_type", raw(m.Embeddings.TokenType)},
		{"embeddings.layer_norm.gamma", m.Embeddings.LayerNorm.Gamma},
		{"embeddings.layer_norm.beta", m.Embeddings.LayerNorm.Beta},
	}
	for i, layer := range m.Layers {
		p := fmt.Sprintf("layer.%d.", i)
		a := layer.Attention
		out = append(out,
			tensor{p + "attention.query.weight", raw(a.Query.Weight)},
			tensor{p + "attention.query.bias", a.Query.Bias},
			tensor{p + "attention.key.weight", raw(a.Key.Weight)},
			tensor{p + "attention.key.bias", a.Key.Bias},
			tensor{p + "attention.value.weight", raw(a.Value.Weight)},
			tensor{p + "attention.value.bias", a.Value.Bias},
			tensor{p + "attention.output.weight", raw(a.Output.Weight)},
			tensor{p + "attention.output.bias", a.Output.Bias},
			tensor{p + "attention.layer_norm.gamma", a.LayerNorm.Gamma},
			tensor{p + "attention.layer_norm.beta", a.LayerNorm.Beta},
			tensor{p + "intermediate.weight", raw(layer.Intermediate.Weight)},
			tensor{p + "intermediate.bias", layer.Intermediate.Bias},
			tensor{p + "output.weight", raw(layer.Output.Weight)},
			tensor{p + "output.bias", layer.Output.Bias},
			tensor{p + "output.layer_norm.gamma", layer.OutputNorm.Gamma},
			tensor{p + "output.layer_norm.beta", layer.OutputNorm.Beta},
		)
	}
	return out
}

func raw(d *mat.Dense) []float64 {
	return d.RawMatrix().Data
}

// LoadFromRawBinary loads weights from a raw binary file of little-endian
// float32 values laid out as described on tensors.
func (l *Loader) LoadFromRawBinary(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	for _, t := range l.tensors() {
		if err := readFloat32s(r, t.data); err != nil {
			return fmt.Errorf("failed to load %s: %w", t.name, err)
		}
	}
	return nil
}

// WriteRawBinary writes the model weights in the layout LoadFromRawBinary reads.
func (l *Loader) WriteRawBinary(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)
	for _, t := range l.tensors() {
		f32s := make([]float32, len(t.data))
		for i, v := range t.data {
			f32s[i] = float32(v)
		}
		if err := binary.Write(w, binary.LittleEndian, f32s); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to write %s: %w", t.name, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// readFloat32s fills dst from float32 values on disk.
func readFloat32s(r io.Reader, dst []float64) error {
	f32s := make([]float32, len(dst))
	if err := binary.Read(r, binary.LittleEndian, f32s); err != nil {
		return err
	}
	for i, v := range f32s {
		dst[i] = float64(v)
	}
	return nil
}

// Summary describes one loaded tensor for quick comparison against a
// reference checkpoint.
type Summary struct {
	Name     string    `json:"name"`
	Size     int       `json:"size"`
	Sum      float64   `json:"sum"`
	FirstFew []float64 `json:"first_few"`
	LastFew  []float64 `json:"last_few"`
}

func (l *Loader) Summaries() []Summary {
	ts := l.tensors()
	out := make([]Summary, len(ts))
	for i, t := range ts {
		n := min(5, len(t.data))
		out[i] = Summary{
			Name:     t.name,
			Size:     len(t.data),
			Sum:      floats.Sum(t.data),
			FirstFew: t.data[:n],
			LastFew:  t.data[len(t.data)-n:],
		}
	}
	return out
}
