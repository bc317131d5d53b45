package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/23skdu/longbow-lens/internal/analysis"
	"github.com/23skdu/longbow-lens/internal/results"
)

// Metric selects which value of a record a bar chart shows.
type Metric string

const (
	MetricEntropy      Metric = "attention_entropy"
	MetricKeywordRatio Metric = "keyword_attention_ratio"
)

func (m Metric) value(r results.Record) (float64, error) {
	switch m {
	case MetricEntropy:
		return r.AttentionEntropy, nil
	case MetricKeywordRatio:
		return r.KeywordAttentionRatio, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", m)
	}
}

const barWidth = 20 // points

// inputTypesOf returns the input types present in records, known types first.
func inputTypesOf(records []results.Record) []analysis.InputType {
	present := make(map[analysis.InputType]bool)
	for _, r := range records {
		present[r.InputType] = true
	}
	var types []analysis.InputType
	for _, t := range analysis.InputTypes {
		if present[t] {
			types = append(types, t)
			delete(present, t)
		}
	}
	var rest []analysis.InputType
	for t := range present {
		rest = append(rest, t)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(types, rest...)
}

// MetricBars draws one bar group per problem id with one bar per input type,
// each labelled with its value to four decimals.
func MetricBars(records []results.Record, metric Metric, title, ylabel, path string) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to plot")
	}

	idSet := make(map[int]struct{})
	values := make(map[analysis.InputType]map[int]float64)
	for _, r := range records {
		v, err := metric.value(r)
		if err != nil {
			return err
		}
		idSet[r.ProblemID] = struct{}{}
		if values[r.InputType] == nil {
			values[r.InputType] = make(map[int]float64)
		}
		values[r.InputType][r.ProblemID] = v
	}
	ids := make([]int, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel
	p.X.Label.Text = "Problem ID"
	p.Legend.Top = true

	types := inputTypesOf(records)
	w := vg.Points(barWidth)
	for i, t := range types {
		vals := make(plotter.Values, len(ids))
		xys := make(plotter.XYs, len(ids))
		labels := make([]string, len(ids))
		for j, id := range ids {
			vals[j] = values[t][id]
			xys[j] = plotter.XY{X: float64(j), Y: vals[j]}
			labels[j] = strconv.FormatFloat(vals[j], 'f', 4, 64)
		}

		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return fmt.Errorf("bars for %s: %w", t, err)
		}
		bars.LineStyle.Width = 0
		bars.Color = plotutil.Color(i)
		bars.Offset = vg.Length(float64(i)-float64(len(types)-1)/2) * w

		valueLabels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
		if err != nil {
			return fmt.Errorf("labels for %s: %w", t, err)
		}
		valueLabels.Offset = vg.Point{X: bars.Offset - w/4, Y: vg.Points(5)}

		p.Add(bars, valueLabels)
		p.Legend.Add(string(t), bars)
	}

	names := make([]string, len(ids))
	for j, id := range ids {
		names[j] = strconv.Itoa(id)
	}
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save bar chart %s: %w", path, err)
	}
	return nil
}
