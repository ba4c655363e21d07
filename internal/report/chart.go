package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	chartWidth      = 10 * vg.Inch
	chartTileHeight = 4 * vg.Inch
)

var chartColors = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
}

// writeChart draws one tile per section, stacked vertically, into a single
// PNG. Bar sections plot Labels against Values; the summary plots the
// average-speed trend per tick.
func writeChart(w io.Writer, f Filter, sections []Section) error {
	tiles := make([][]*plot.Plot, 0, len(sections))
	for i, sec := range sections {
		p, err := sectionPlot(sec, f, chartColors[i%len(chartColors)])
		if err != nil {
			return fmt.Errorf("failed to plot %s: %w", sec.Kind, err)
		}
		tiles = append(tiles, []*plot.Plot{p})
	}

	img := vgimg.New(chartWidth, chartTileHeight*vg.Length(len(tiles)))
	dc := draw.New(img)
	t := draw.Tiles{
		Rows:      len(tiles),
		Cols:      1,
		PadX:      vg.Millimeter,
		PadY:      5 * vg.Millimeter,
		PadTop:    3 * vg.Millimeter,
		PadBottom: 3 * vg.Millimeter,
		PadLeft:   3 * vg.Millimeter,
		PadRight:  3 * vg.Millimeter,
	}
	canvases := plot.Align(tiles, t, dc)
	for j := range tiles {
		tiles[j][0].Draw(canvases[j][0])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return nil
}

func sectionPlot(sec Section, f Filter, c color.RGBA) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = sec.Kind.Title()
	if sec.Kind != Summary && !f.IsEmpty() {
		p.Title.Text += " (filter: " + f.String() + ")"
	}
	p.Y.Label.Text = sec.ValueName

	if sec.Kind == Summary {
		p.X.Label.Text = "Tick"
		if len(sec.Trend) == 0 {
			return p, nil
		}
		pts := make(plotter.XYs, len(sec.Trend))
		for i, v := range sec.Trend {
			pts[i] = plotter.XY{X: float64(i + 1), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = c
		line.Width = vg.Points(1)
		p.Add(line, plotter.NewGrid())
		return p, nil
	}

	if sec.Empty() {
		p.X.Label.Text = NoResultsLine
		return p, nil
	}
	bars, err := plotter.NewBarChart(plotter.Values(sec.Values), vg.Points(18))
	if err != nil {
		return nil, err
	}
	bars.Color = c
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalX(sec.Labels...)
	return p, nil
}
