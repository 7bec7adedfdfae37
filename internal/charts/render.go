package charts

import (
	"fmt"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
)

const (
	imageWidth  = 800
	imageHeight = 450
	barWidth    = 40
	barSpacing  = 16
	noDataLabel = "no data"
)

// RenderPNG draws c as a PNG image. A chart without points is drawn as a flat
// placeholder so every report keeps the same set of images.
func RenderPNG(c Chart, w io.Writer) error {
	var err error
	switch c.Kind {
	case Bar, Histogram:
		err = renderBars(c, w)
	case Pie:
		err = renderPie(c, w)
	case Scatter:
		err = renderScatter(c, w)
	default:
		return fmt.Errorf("unknown chart kind %q", c.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to render chart %s: %w", c.ID, err)
	}
	return nil
}

func renderBars(c Chart, w io.Writer) error {
	bars := make([]chart.Value, 0, len(c.Points))
	maxY := 0.0
	for _, p := range c.Points {
		bars = append(bars, chart.Value{Label: p.Label, Value: p.Y})
		maxY = math.Max(maxY, p.Y)
	}
	if len(bars) == 0 {
		bars = append(bars, chart.Value{Label: noDataLabel, Value: 0})
	}

	width := imageWidth
	if needed := len(bars)*(barWidth+barSpacing) + 160; needed > width {
		width = needed
	}

	graph := chart.BarChart{
		Title:      c.Title,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		Width:      width,
		Height:     imageHeight,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis: chart.YAxis{
			Name:  c.YLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: niceMax(maxY)},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}

func renderPie(c Chart, w io.Writer) error {
	values := make([]chart.Value, 0, len(c.Points))
	for _, p := range c.Points {
		if p.Y > 0 {
			values = append(values, chart.Value{Label: p.Label, Value: p.Y})
		}
	}
	if len(values) == 0 {
		values = append(values, chart.Value{Label: noDataLabel, Value: 1})
	}

	graph := chart.PieChart{
		Title:  c.Title,
		Width:  imageHeight,
		Height: imageHeight,
		Values: values,
	}
	return graph.Render(chart.PNG, w)
}

func renderScatter(c Chart, w io.Writer) error {
	xs := make([]float64, 0, len(c.Points))
	ys := make([]float64, 0, len(c.Points))
	maxX, maxY := 0.0, 0.0
	for _, p := range c.Points {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	if len(xs) == 0 {
		xs, ys = []float64{0}, []float64{0}
	}

	graph := chart.Chart{
		Title:      c.Title,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		Width:      imageWidth,
		Height:     imageHeight,
		XAxis: chart.XAxis{
			Name:  c.XLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: niceMax(maxX)},
		},
		YAxis: chart.YAxis{
			Name:  c.YLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: niceMax(maxY)},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    5,
				},
				XValues: xs,
				YValues: ys,
			},
		},
	}
	return graph.Render(chart.PNG, w)
}

// niceMax pads the largest value so axes never collapse to a zero span.
func niceMax(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return math.Ceil(v * 1.1)
}
