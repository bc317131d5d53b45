package experiment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/23skdu/longbow-lens/internal/analysis"
	"github.com/23skdu/longbow-lens/internal/attention"
	"github.com/23skdu/longbow-lens/internal/dataset"
	"github.com/23skdu/longbow-lens/internal/report"
	"github.com/23skdu/longbow-lens/internal/results"
)

var tracer = otel.Tracer("lens-experiment")

// DefaultLayers are layers 6 through 12 of a 12-layer encoder, 0-based.
var DefaultLayers = []int{5, 6, 7, 8, 9, 10, 11}

// DefaultHeads are the heads drawn in the per-layer head grid.
var DefaultHeads = []int{0, 1, 2, 3}

// Runner analyzes every problem phrasing at the selected layers.
type Runner struct {
	Extractor attention.Extractor
	Store     *results.Store
	Problems  []dataset.Problem
	// Layers are 0-based; records and titles use layer+1.
	Layers []int
	Heads  []int
	// PlotDir receives heatmaps when non-empty.
	PlotDir string
	Workers int
}

func (r *Runner) validate() error {
	if r.Extractor == nil {
		return errors.New("no extractor configured")
	}
	if r.Store == nil {
		return errors.New("no result store configured")
	}
	if len(r.Problems) == 0 {
		return errors.New("no problems to run")
	}
	if len(r.Layers) == 0 {
		return errors.New("no layers selected")
	}
	depth := r.Extractor.Layers()
	for _, l := range r.Layers {
		if l < 0 || l >= depth {
			return fmt.Errorf("layer %d out of range: model has %d layers", l+1, depth)
		}
	}
	return nil
}

// Run extracts attention for each problem and input type, analyzes the
// head-averaged matrix of every selected layer and saves one record per
// layer. The first error cancels outstanding work.
func (r *Runner) Run(ctx context.Context) ([]results.Record, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		records []results.Record
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range r.Problems {
		p := p
		g.Go(func() error {
			log.Info().Int("problem_id", p.ID).Msg("Processing problem")
			for _, t := range analysis.InputTypes {
				recs, err := r.runOne(ctx, p, t)
				if err != nil {
					return fmt.Errorf("problem %d %s: %w", p.ID, t, err)
				}
				mu.Lock()
				records = append(records, recs...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.ProblemID != b.ProblemID {
			return a.ProblemID < b.ProblemID
		}
		return a.InputType < b.InputType
	})
	return records, nil
}

func (r *Runner) runOne(ctx context.Context, p dataset.Problem, t analysis.InputType) ([]results.Record, error) {
	ctx, span := tracer.Start(ctx, "experiment.runOne", trace.WithAttributes(
		attribute.Int("problem_id", p.ID),
		attribute.String("input_type", string(t)),
	))
	defer span.End()

	start := time.Now()
	capture, err := r.Extractor.Extract(ctx, p.Text(t))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	captureDuration.Observe(time.Since(start).Seconds())
	capturesTotal.WithLabelValues(string(t)).Inc()

	if capture.Stack.Layers() < r.Extractor.Layers() {
		return nil, fmt.Errorf("%w: capture has %d layers, extractor reports %d",
			attention.ErrShapeMismatch, capture.Stack.Layers(), r.Extractor.Layers())
	}

	out := make([]results.Record, 0, len(r.Layers))
	for _, layer := range r.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.PlotDir != "" {
			if err := r.plotLayer(p.ID, t, capture, layer); err != nil {
				return nil, err
			}
		}

		res := analysis.Analyze(capture.Stack.Average(layer), capture.Tokens, t)
		log.Info().
			Int("problem_id", p.ID).
			Str("input_type", string(t)).
			Int("layer", layer+1).
			Str("attention_entropy", fmt.Sprintf("%.4f", res.AttentionEntropy)).
			Str("keyword_attention_ratio", fmt.Sprintf("%.4f", res.KeywordAttentionRatio)).
			Msg("Layer analyzed")

		rec := results.Record{
			ProblemID: p.ID,
			InputType: t,
			Layer:     layer + 1,
			Tokens:    capture.Tokens,
			Result:    res,
		}
		if _, err := r.Store.Save(rec); err != nil {
			return nil, fmt.Errorf("save layer %d: %w", layer+1, err)
		}
		recordsSaved.Inc()
		out = append(out, rec)
	}
	return out, nil
}

func displayType(t analysis.InputType) string {
	return cases.Title(language.Und).String(string(t))
}

// plotLayer writes the single-head heatmap, the head grid and the
// head-averaged heatmap for one layer.
func (r *Runner) plotLayer(problemID int, t analysis.InputType, c *attention.Capture, layer int) error {
	heads := r.Heads
	if len(heads) == 0 {
		return nil
	}
	var selected []int
	for _, h := range heads {
		if h >= 0 && h < c.Stack.Heads() {
			selected = append(selected, h)
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("none of heads %v exist in a %d-head model", heads, c.Stack.Heads())
	}

	prefix := fmt.Sprintf("Problem %d - %s Input", problemID, displayType(t))
	base := filepath.Join(r.PlotDir, fmt.Sprintf("problem_%d_%s_layer_%d", problemID, t, layer+1))

	head := selected[0]
	title := fmt.Sprintf("%s\nLayer %d, Head %d", prefix, layer+1, head)
	if err := report.Heatmap(c.Stack.Head(layer, head), c.Tokens, title, fmt.Sprintf("%s_head_%d.png", base, head)); err != nil {
		return err
	}
	plotsRendered.WithLabelValues("head").Inc()

	if err := report.HeadGrid(c.Stack, layer, selected, prefix+" Attention Heads Comparison", base+"_heads.png"); err != nil {
		return err
	}
	plotsRendered.WithLabelValues("head_grid").Inc()

	title = fmt.Sprintf("%s\nLayer %d Average Attention", prefix, layer+1)
	if err := report.Heatmap(c.Stack.Average(layer), c.Tokens, title, base+"_average.png"); err != nil {
		return err
	}
	plotsRendered.WithLabelValues("average").Inc()
	return nil
}
