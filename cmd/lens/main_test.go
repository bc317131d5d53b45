package main

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-lens/internal/analysis"
	"github.com/23skdu/longbow-lens/internal/config"
	"github.com/23skdu/longbow-lens/internal/dataset"
	"github.com/23skdu/longbow-lens/internal/results"
)

func TestParseIntList(t *testing.T) {
	got, err := parseIntList("6, 7,8,")
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7, 8}, got)

	_, err = parseIntList("6,x")
	assert.Error(t, err)
}

func TestAnalyzeCmd(t *testing.T) {
	in := bytes.NewReader(mustCBOR(t, analyzeRequest{
		Matrix:    [][]float64{{0.2, 0.8}, {0.6, 0.4}},
		Tokens:    []string{"求", "p"},
		InputType: "verbal",
	}))
	var out bytes.Buffer
	require.NoError(t, analyzeCmd(nil, in, &out))

	var res analysis.Result
	require.NoError(t, cbor.Unmarshal(out.Bytes(), &res))
	assert.InDelta(t, 0.4, res.KeywordAttentionRatio, 1e-9)

	err := analyzeCmd(nil, bytes.NewReader(mustCBOR(t, analyzeRequest{Matrix: [][]float64{{1}}})), &out)
	assert.Error(t, err)
}

func TestLayersCmd(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")

	var out bytes.Buffer
	require.NoError(t, layersCmd([]string{"-config", cfgPath, "-model", "base"}, &out))
	assert.Equal(t, "model \"base\" has 12 encoder layers\n", out.String())

	out.Reset()
	require.NoError(t, layersCmd([]string{"-config", cfgPath, "-model", "tiny"}, &out))
	assert.Contains(t, out.String(), "2 encoder layers")

	assert.Error(t, layersCmd([]string{"-config", cfgPath, "-model", "gpt"}, &out))
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("layers", "", "")
	fs.String("plots", "", "")
	bind := func(c *config.Config) map[string]func(string) error {
		return map[string]func(string) error{
			"layers": setInts(&c.Experiment.Layers),
			"plots":  setString(&c.Output.Plots),
		}
	}

	args := []string{"-config", filepath.Join(t.TempDir(), "lens.yaml"), "-layers", "1,3", "-plots", ""}
	cfg, err := loadConfig(fs, args, bind)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, cfg.ZeroBasedLayers())
	assert.Empty(t, cfg.Output.Plots)
	assert.Equal(t, "results", cfg.Output.Results)
}

func TestRunExperimentTinyModel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Model.Name = "tiny"
	cfg.Experiment.Layers = []int{1, 2}
	cfg.Output.Results = filepath.Join(dir, "results")
	cfg.Output.Plots = ""

	require.NoError(t, runExperiment(context.Background(), cfg))

	records, err := results.NewStore(cfg.Output.Results).Collect()
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, r := range records {
		assert.Equal(t, "[CLS]", r.Tokens[0])
		assert.Greater(t, r.AttentionEntropy, 0.0)
		assert.GreaterOrEqual(t, r.KeywordAttentionRatio, 0.0)
		assert.LessOrEqual(t, r.KeywordAttentionRatio, 1.0)
	}

	cfg.Experiment.Layers = []int{3}
	assert.Error(t, runExperiment(context.Background(), cfg), "tiny model has only two layers")
}

func TestBuildExtractorCaching(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Name = "tiny"
	cfg.Experiment.Cache = true

	ext, err := buildExtractor(cfg, dataset.Builtin())
	require.NoError(t, err)
	assert.Equal(t, 2, ext.Layers())

	a, err := ext.Extract(context.Background(), "求 x")
	require.NoError(t, err)
	b, err := ext.Extract(context.Background(), "求 x")
	require.NoError(t, err)
	assert.Same(t, a, b)
}
