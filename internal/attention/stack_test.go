package attention

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStack(t *testing.T) {
	s := NewStack(2, 2)

	err := s.AddLayer([]*mat.Dense{
		mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		mat.NewDense(2, 2, []float64{0, 1, 1, 0}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Layers())
	assert.Equal(t, 2, s.Heads())
	assert.Equal(t, 2, s.SeqLen())

	t.Run("Average", func(t *testing.T) {
		avg := s.Average(0)
		assert.True(t, mat.EqualApprox(avg, mat.NewDense(2, 2, []float64{0.5, 0.5, 0.5, 0.5}), 1e-12))
		// Heads are untouched.
		assert.Equal(t, 1.0, s.Head(0, 0).At(0, 0))
	})

	t.Run("WrongHeadCount", func(t *testing.T) {
		err := s.AddLayer([]*mat.Dense{mat.NewDense(2, 2, nil)})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("WrongShape", func(t *testing.T) {
		err := s.AddLayer([]*mat.Dense{mat.NewDense(2, 2, nil), mat.NewDense(3, 3, nil)})
		assert.ErrorIs(t, err, ErrShapeMismatch)
		assert.Equal(t, 1, s.Layers())
	})
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, text string) (*Capture, error) {
	args := m.Called(ctx, text)
	c, _ := args.Get(0).(*Capture)
	return c, args.Error(1)
}

func (m *mockExtractor) Layers() int {
	return 12
}

func TestCachingExtractor(t *testing.T) {
	me := &mockExtractor{}
	capture := &Capture{Text: "x = 1", Tokens: []string{"x", "=", "1"}, Stack: NewStack(1, 3)}
	me.On("Extract", mock.Anything, "x = 1").Return(capture, nil).Once()
	me.On("Extract", mock.Anything, "bad").Return(nil, assert.AnError)

	cache := NewMapCache()
	e := NewCachingExtractor(me, cache)
	ctx := context.Background()

	got, err := e.Extract(ctx, "x = 1")
	require.NoError(t, err)
	assert.Same(t, capture, got)

	got, err = e.Extract(ctx, "x = 1")
	require.NoError(t, err)
	assert.Same(t, capture, got)
	assert.Equal(t, 1, cache.Size())

	_, err = e.Extract(ctx, "bad")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, cache.Size())

	assert.Equal(t, 12, e.Layers())
	me.AssertExpectations(t)
}
