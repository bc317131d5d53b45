package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/23skdu/longbow-lens/internal/attention"
)

const (
	heatmapWidth  = 10 * vg.Inch
	heatmapHeight = 8 * vg.Inch
	headCellSize  = 5 * vg.Inch
	paletteSize   = 64
)

// matrixGrid adapts an attention matrix to plotter.GridXYZ. Columns are key
// tokens, rows are query tokens with row 0 drawn at the top.
type matrixGrid struct {
	m mat.Matrix
}

func (g matrixGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g matrixGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g matrixGrid) X(c int) float64 { return float64(c) }
func (g matrixGrid) Y(r int) float64 { return float64(r) }

func tokenTicks(tokens []string, reversed bool) plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, len(tokens))
	for i, tok := range tokens {
		pos := i
		if reversed {
			pos = len(tokens) - 1 - i
		}
		ticks[i] = plot.Tick{Value: float64(pos), Label: tok}
	}
	return ticks
}

// heatmapPlot builds the plot for one attention matrix. Token tick labels are
// omitted when tokens is nil.
func heatmapPlot(m mat.Matrix, tokens []string, title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Key Tokens"
	p.Y.Label.Text = "Query Tokens"

	hm := plotter.NewHeatMap(matrixGrid{m: m}, palette.Heat(paletteSize, 1))
	if hm.Max == hm.Min {
		// A constant matrix would otherwise divide by a zero range.
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	if tokens != nil {
		p.X.Tick.Marker = tokenTicks(tokens, false)
		p.Y.Tick.Marker = tokenTicks(tokens, true)
		p.X.Tick.Label.Rotation = math.Pi / 2
		p.X.Tick.Label.XAlign = draw.XRight
		p.X.Tick.Label.YAlign = draw.YCenter
	}
	return p
}

// Heatmap renders one attention matrix to path. The image format follows the
// file extension.
func Heatmap(m mat.Matrix, tokens []string, title, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	p := heatmapPlot(m, tokens, title)
	if err := p.Save(heatmapWidth, heatmapHeight, path); err != nil {
		return fmt.Errorf("save heatmap %s: %w", path, err)
	}
	return nil
}

// HeadGrid renders the selected heads of one layer side by side as a PNG.
// layer and heads are 0-based; titles show layer+1.
func HeadGrid(stack *attention.Stack, layer int, heads []int, title, path string) error {
	if len(heads) == 0 {
		return fmt.Errorf("no heads selected")
	}
	for _, h := range heads {
		if h < 0 || h >= stack.Heads() {
			return fmt.Errorf("head %d out of range [0,%d)", h, stack.Heads())
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	plots := [][]*plot.Plot{make([]*plot.Plot, len(heads))}
	for i, h := range heads {
		plots[0][i] = heatmapPlot(stack.Head(layer, h), nil, fmt.Sprintf("%s\nLayer %d, Head %d", title, layer+1, h))
	}

	img := vgimg.New(vg.Length(len(heads))*headCellSize, headCellSize)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: len(heads),
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i, p := range plots[0] {
		p.Draw(canvases[0][i])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write head grid %s: %w", path, err)
	}
	return f.Close()
}
