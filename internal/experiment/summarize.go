package experiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-lens/internal/report"
	"github.com/23skdu/longbow-lens/internal/results"
)

// ErrNoResults is returned by Summarize when the store holds no records.
var ErrNoResults = errors.New("no analysis results found")

// Summarize collects all stored records, draws per-layer bar charts for both
// metrics into plotDir and writes a CSV summary to csvPath. Either output is
// skipped when its path is empty.
func Summarize(ctx context.Context, store *results.Store, plotDir, csvPath string) ([]results.Record, error) {
	_, span := tracer.Start(ctx, "experiment.Summarize")
	defer span.End()

	records, err := store.Collect()
	if err != nil {
		return nil, fmt.Errorf("collect results: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoResults
	}

	if plotDir != "" {
		for _, g := range results.ByLayer(records) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			entropyPath := filepath.Join(plotDir, fmt.Sprintf("attention_entropy_layer_%d.png", g.Layer))
			title := fmt.Sprintf("Attention Entropy by Problem and Input Type (Layer %d)", g.Layer)
			if err := report.MetricBars(g.Records, report.MetricEntropy, title, "Attention Entropy", entropyPath); err != nil {
				return nil, err
			}
			log.Info().Str("path", entropyPath).Msg("Saved attention entropy chart")

			ratioPath := filepath.Join(plotDir, fmt.Sprintf("keyword_attention_ratio_layer_%d.png", g.Layer))
			title = fmt.Sprintf("Keyword Attention Ratio by Problem and Input Type (Layer %d)", g.Layer)
			if err := report.MetricBars(g.Records, report.MetricKeywordRatio, title, "Keyword Attention Ratio", ratioPath); err != nil {
				return nil, err
			}
			log.Info().Str("path", ratioPath).Msg("Saved keyword attention ratio chart")
			plotsRendered.WithLabelValues("summary").Add(2)
		}
	}

	if csvPath != "" {
		if err := writeCSVFile(csvPath, records); err != nil {
			return nil, err
		}
		log.Info().Str("path", csvPath).Int("records", len(records)).Msg("Saved analysis summary")
	}
	return records, nil
}

func writeCSVFile(path string, records []results.Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := results.WriteCSV(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
