package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-lens/internal/attention"
	"github.com/23skdu/longbow-lens/internal/config"
	"github.com/23skdu/longbow-lens/internal/dataset"
	"github.com/23skdu/longbow-lens/internal/encoder"
	"github.com/23skdu/longbow-lens/internal/encoder/tokenizer"
	"github.com/23skdu/longbow-lens/internal/encoder/weights"
	"github.com/23skdu/longbow-lens/internal/experiment"
	"github.com/23skdu/longbow-lens/internal/extract"
	"github.com/23skdu/longbow-lens/internal/publish"
	"github.com/23skdu/longbow-lens/internal/results"
)

// loadConfig parses args into fs, loads the -config file and lets every
// explicitly set flag override the file.
func loadConfig(fs *flag.FlagSet, args []string, bind func(*config.Config) map[string]func(string) error) (*config.Config, error) {
	configPath := fs.String("config", "lens.yaml", "Path to YAML config file")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	setters := bind(cfg)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if set, ok := setters[f.Name]; ok && setErr == nil {
			setErr = set(f.Value.String())
		}
	})
	if setErr != nil {
		return nil, setErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, setLogLevel(cfg.Logging.Level)
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInts(dst *[]int) func(string) error {
	return func(v string) error {
		list, err := parseIntList(v)
		if err != nil {
			return err
		}
		*dst = list
		return nil
	}
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.String("problems", "", "YAML problem set (default: builtin problem)")
	fs.String("vocab", "", "Path to vocab file (default: built from problem texts)")
	fs.String("weights", "", "Path to raw float32 weights file")
	fs.String("onnx", "", "Path to an ONNX encoder exporting attentions")
	fs.String("model", "", "Native model config (tiny, base)")
	fs.String("layers", "", "Comma separated 1-based layers to analyze")
	fs.String("heads", "", "Comma separated heads to plot")
	fs.String("results", "", "Directory for per-layer result files")
	fs.String("plots", "", "Directory for heatmaps (empty string disables)")
	fs.Int("workers", 0, "Problems processed concurrently")
	fs.String("server", "", "Longbow server address to publish the summary to")
	fs.String("dataset", "", "Target dataset name on server")
	enableOTel := fs.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")

	cfg, err := loadConfig(fs, args, func(c *config.Config) map[string]func(string) error {
		return map[string]func(string) error{
			"problems": setString(&c.Experiment.Problems),
			"vocab":    setString(&c.Model.Vocab),
			"weights":  setString(&c.Model.Weights),
			"onnx":     setString(&c.Model.ONNX.ModelPath),
			"model":    setString(&c.Model.Name),
			"layers":   setInts(&c.Experiment.Layers),
			"heads":    setInts(&c.Experiment.Heads),
			"results":  setString(&c.Output.Results),
			"plots":    setString(&c.Output.Plots),
			"server":   setString(&c.Publish.Server),
			"dataset":  setString(&c.Publish.Dataset),
			"workers": func(v string) error {
				list, err := parseIntList(v)
				if err != nil || len(list) != 1 {
					return fmt.Errorf("invalid -workers %q", v)
				}
				c.Experiment.Workers = list[0]
				return nil
			},
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return withTracing(*enableOTel, func() error {
		return runExperiment(ctx, cfg)
	})
}

func loadProblems(cfg *config.Config) ([]dataset.Problem, error) {
	if cfg.Experiment.Problems == "" {
		return dataset.Builtin(), nil
	}
	return dataset.Load(cfg.Experiment.Problems)
}

func runExperiment(ctx context.Context, cfg *config.Config) error {
	problems, err := loadProblems(cfg)
	if err != nil {
		return err
	}

	ext, err := buildExtractor(cfg, problems)
	if err != nil {
		return err
	}

	store := results.NewStore(cfg.Output.Results)
	runner := &experiment.Runner{
		Extractor: ext,
		Store:     store,
		Problems:  problems,
		Layers:    cfg.ZeroBasedLayers(),
		Heads:     cfg.Experiment.Heads,
		PlotDir:   cfg.Output.Plots,
		Workers:   cfg.Experiment.Workers,
	}

	log.Info().
		Int("problems", len(problems)).
		Ints("layers", cfg.Experiment.Layers).
		Int("model_layers", ext.Layers()).
		Msg("Starting attention analysis")

	records, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("records", len(records)).Str("dir", cfg.Output.Results).Msg("Analysis complete")

	if cfg.Publish.Server == "" {
		return nil
	}
	return publishRecords(ctx, cfg, records)
}

func publishRecords(ctx context.Context, cfg *config.Config, records []results.Record) error {
	fc, err := publish.NewFlightClient(cfg.Publish.Server)
	if err != nil {
		return fmt.Errorf("connect to Longbow: %w", err)
	}
	defer func() {
		if err := fc.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close flight client")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.Publish.Timeout)
	defer cancel()

	p := &publish.Publisher{
		Client:  fc,
		Breaker: publish.NewCircuitBreaker(cfg.Publish.MaxFailures, cfg.Publish.Cooldown),
		Dataset: cfg.Publish.Dataset,
	}
	// One attempt past MaxFailures lets the shared breaker trip and report open.
	return p.PublishWithRetry(ctx, records, cfg.Publish.MaxFailures+1, cfg.Publish.Backoff)
}

func problemTexts(problems []dataset.Problem) []string {
	var texts []string
	for _, p := range problems {
		texts = append(texts, p.Symbolic, p.Verbal)
	}
	return texts
}

func buildTokenizer(cfg *config.Config, problems []dataset.Problem) (*tokenizer.WordPieceTokenizer, error) {
	if cfg.Model.Vocab != "" {
		return tokenizer.NewWordPieceTokenizer(cfg.Model.Vocab)
	}
	log.Warn().Msg("No vocab file given, building vocabulary from problem texts")
	return tokenizer.FromTokens(tokenizer.BuildVocab(problemTexts(problems))), nil
}

func buildExtractor(cfg *config.Config, problems []dataset.Problem) (attention.Extractor, error) {
	tok, err := buildTokenizer(cfg, problems)
	if err != nil {
		return nil, err
	}

	var ext attention.Extractor
	if cfg.Model.ONNX.ModelPath != "" {
		ext, err = extract.NewONNX(cfg.Model.ONNX, tok)
		if err != nil {
			return nil, err
		}
		log.Info().Str("model", cfg.Model.ONNX.ModelPath).Msg("Using ONNX extractor")
	} else {
		ext, err = buildNative(cfg, tok)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Experiment.Cache {
		ext = attention.NewCachingExtractor(ext, attention.NewMapCache())
	}
	return ext, nil
}

func buildNative(cfg *config.Config, tok *tokenizer.WordPieceTokenizer) (*extract.Native, error) {
	encCfg, err := encoder.ConfigByName(cfg.Model.Name)
	if err != nil {
		return nil, err
	}
	if cfg.Model.Seed != 0 {
		encCfg.Seed = cfg.Model.Seed
	}
	if cfg.Model.Weights == "" {
		// Without pretrained weights the embedding table only needs to cover the vocabulary.
		encCfg.VocabSize = tok.VocabSize()
		log.Warn().Msg("No weights file given, using seeded random initialization")
	}

	model, err := encoder.New(encCfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model.Weights != "" {
		if err := weights.NewLoader(model).LoadFromRawBinary(cfg.Model.Weights); err != nil {
			return nil, err
		}
	}
	log.Info().Str("model", cfg.Model.Name).Int("layers", encCfg.NumLayers).Int("heads", encCfg.NumHeads).Msg("Using native encoder")
	return extract.NewNative(tok, model)
}

func summarizeCmd(args []string) error {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	fs.String("results", "", "Directory of per-layer result files")
	fs.String("plots", "", "Directory for bar charts")
	fs.String("csv", "", "Path of the CSV summary")
	arrowPath := fs.String("arrow", "", "Also write the summary as an Arrow IPC stream to this path")

	cfg, err := loadConfig(fs, args, func(c *config.Config) map[string]func(string) error {
		return map[string]func(string) error{
			"results": setString(&c.Output.Results),
			"plots":   setString(&c.Output.Plots),
			"csv":     setString(&c.Output.CSV),
		}
	})
	if err != nil {
		return err
	}

	records, err := experiment.Summarize(context.Background(), results.NewStore(cfg.Output.Results), cfg.Output.Plots, cfg.Output.CSV)
	if errors.Is(err, experiment.ErrNoResults) {
		log.Warn().Str("dir", cfg.Output.Results).Msg("No analysis results found")
		return nil
	}
	if err != nil {
		return err
	}

	if *arrowPath != "" {
		f, err := os.Create(*arrowPath)
		if err != nil {
			return err
		}
		if err := results.WriteIPC(f, records); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Info().Str("path", *arrowPath).Msg("Saved Arrow summary")
	}
	return nil
}

func layersCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("layers", flag.ContinueOnError)
	fs.String("model", "", "Native model config (tiny, base)")
	cfg, err := loadConfig(fs, args, func(c *config.Config) map[string]func(string) error {
		return map[string]func(string) error{"model": setString(&c.Model.Name)}
	})
	if err != nil {
		return err
	}

	if cfg.Model.ONNX.ModelPath != "" && cfg.Model.ONNX.Layers > 0 {
		_, err = fmt.Fprintf(out, "model %q has %d encoder layers\n", cfg.Model.ONNX.ModelPath, cfg.Model.ONNX.Layers)
		return err
	}
	encCfg, err := encoder.ConfigByName(cfg.Model.Name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "model %q has %d encoder layers\n", cfg.Model.Name, encCfg.NumLayers)
	return err
}
