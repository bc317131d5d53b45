package attention

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a head matrix does not match the stack's
// sequence length or head count.
var ErrShapeMismatch = errors.New("attention shape mismatch")

// Stack holds the attention probabilities of one forward pass, indexed
// [layer][head], each a seqLen x seqLen matrix (rows are queries, columns keys).
type Stack struct {
	layers [][]*mat.Dense
	heads  int
	seqLen int
}

// NewStack creates an empty stack for sequences of seqLen tokens with the
// given number of heads per layer.
func NewStack(heads, seqLen int) *Stack {
	return &Stack{heads: heads, seqLen: seqLen}
}

// AddLayer appends one layer worth of head matrices.
func (s *Stack) AddLayer(heads []*mat.Dense) error {
	if len(heads) != s.heads {
		return fmt.Errorf("%w: layer %d has %d heads, want %d", ErrShapeMismatch, len(s.layers), len(heads), s.heads)
	}
	for h, m := range heads {
		r, c := m.Dims()
		if r != s.seqLen || c != s.seqLen {
			return fmt.Errorf("%w: layer %d head %d is %dx%d, want %dx%d",
				ErrShapeMismatch, len(s.layers), h, r, c, s.seqLen, s.seqLen)
		}
	}
	s.layers = append(s.layers, heads)
	return nil
}

func (s *Stack) Layers() int { return len(s.layers) }
func (s *Stack) Heads() int  { return s.heads }
func (s *Stack) SeqLen() int { return s.seqLen }

// Head returns the attention matrix of one head. The matrix is shared with the
// stack and must not be modified.
func (s *Stack) Head(layer, head int) *mat.Dense {
	return s.layers[layer][head]
}

// Average returns the element-wise mean over all heads of a layer.
func (s *Stack) Average(layer int) *mat.Dense {
	avg := mat.NewDense(s.seqLen, s.seqLen, nil)
	for _, h := range s.layers[layer] {
		avg.Add(avg, h)
	}
	avg.Scale(1/float64(s.heads), avg)
	return avg
}

// Capture is the output of running one text through an encoder. Tokens are
// aligned with both axes of every matrix in Stack.
type Capture struct {
	Text   string
	Tokens []string
	Stack  *Stack
}
