package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-lens/internal/attention"
	"github.com/23skdu/longbow-lens/internal/encoder/tokenizer"
)

// ONNXConfig describes an exported encoder graph that returns attentions.
type ONNXConfig struct {
	ModelPath string `yaml:"model_path"`
	Layers    int    `yaml:"layers"`
	Heads     int    `yaml:"heads"`
	MaxLen    int    `yaml:"max_len"`
	// OutputPattern formats the output name of a layer, e.g. "attentions.%d".
	OutputPattern string `yaml:"output_pattern"`
}

// ONNX runs an exported encoder through onnxruntime. The graph must take
// int64 input_ids and attention_mask of shape (1, seq) and produce one
// float32 (1, heads, seq, seq) output per layer.
type ONNX struct {
	cfg   ONNXConfig
	tok   *tokenizer.WordPieceTokenizer
	clsID int
	sepID int

	// onnxruntime sessions are created per call since sequence length varies;
	// runs are serialized to bound native memory.
	mu sync.Mutex
}

var _ attention.Extractor = (*ONNX)(nil)

// NewONNX initializes the onnxruntime environment and validates the model path.
func NewONNX(cfg ONNXConfig, tok *tokenizer.WordPieceTokenizer) (*ONNX, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx model path is empty")
	}
	if cfg.Layers <= 0 || cfg.Heads <= 0 {
		return nil, fmt.Errorf("onnx model needs layers and heads, got %d and %d", cfg.Layers, cfg.Heads)
	}
	if cfg.OutputPattern == "" {
		cfg.OutputPattern = "attentions.%d"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 512
	}

	clsID, ok := tok.ID(tokenizer.ClsToken)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", tokenizer.ClsToken)
	}
	sepID, ok := tok.ID(tokenizer.SepToken)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", tokenizer.SepToken)
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", cfg.ModelPath, err)
	}

	libPath := resolveSharedLibraryPath(filepath.Dir(cfg.ModelPath))
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	return &ONNX{cfg: cfg, tok: tok, clsID: clsID, sepID: sepID}, nil
}

func (o *ONNX) Layers() int {
	return o.cfg.Layers
}

func (o *ONNX) Extract(ctx context.Context, text string) (*attention.Capture, error) {
	_, span := tracer.Start(ctx, "onnx.Extract")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens, ids := wrapSpecial(o.tok, text, o.cfg.MaxLen, o.clsID, o.sepID)
	seqLen := len(ids)
	span.SetAttributes(attribute.Int("seq_len", seqLen))

	idData := make([]int64, seqLen)
	maskData := make([]int64, seqLen)
	for i, id := range ids {
		idData[i] = int64(id)
		maskData[i] = 1
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewTensor(inputShape, idData)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(inputShape, maskData)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()

	outputShape := ort.NewShape(1, int64(o.cfg.Heads), int64(seqLen), int64(seqLen))
	outputs := make([]*ort.Tensor[float32], o.cfg.Layers)
	outputValues := make([]ort.Value, o.cfg.Layers)
	outputNames := make([]string, o.cfg.Layers)
	for l := range outputs {
		t, err := ort.NewEmptyTensor[float32](outputShape)
		if err != nil {
			return nil, fmt.Errorf("allocate attention tensor for layer %d: %w", l, err)
		}
		defer t.Destroy()
		outputs[l] = t
		outputValues[l] = t
		outputNames[l] = fmt.Sprintf(o.cfg.OutputPattern, l)
	}

	session, err := ort.NewAdvancedSession(
		o.cfg.ModelPath,
		[]string{"input_ids", "attention_mask"},
		outputNames,
		[]ort.Value{inputIDs, attnMask},
		outputValues,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	stack := attention.NewStack(o.cfg.Heads, seqLen)
	for l, t := range outputs {
		if err := stack.AddLayer(splitHeads(t.GetData(), o.cfg.Heads, seqLen)); err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
	}
	return &attention.Capture{Text: text, Tokens: tokens, Stack: stack}, nil
}

// splitHeads converts a flat (heads, seq, seq) float32 buffer into one matrix per head.
func splitHeads(data []float32, heads, seqLen int) []*mat.Dense {
	size := seqLen * seqLen
	out := make([]*mat.Dense, heads)
	for h := 0; h < heads; h++ {
		vals := make([]float64, size)
		for i, v := range data[h*size : (h+1)*size] {
			vals[i] = float64(v)
		}
		out[h] = mat.NewDense(seqLen, seqLen, vals)
	}
	return out
}

// resolveSharedLibraryPath attempts to locate a platform-specific onnxruntime shared library.
// If ONNXRUNTIME_SHARED_LIBRARY_PATH is set, it wins; otherwise we probe common names/locations.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
