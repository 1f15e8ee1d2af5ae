package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var ErrNoPoints = errors.New("chart needs at least one timestamped row")

const (
	chartTitle  = "311 Call Wait Times Over Time"
	xAxisName   = "Timestamp"
	yAxisName   = "Wait Time (Seconds)"
	xTickFormat = "2006-01-02 15:04"

	// singlePointPad widens the x axis around a lone timestamp.
	singlePointPad = 12 * time.Hour
)

// RenderChart draws the wait time line chart as a PNG.
func RenderChart(frame Frame, width, height int) ([]byte, error) {
	xs, ys := frame.Plottable()
	if len(xs) == 0 {
		return nil, ErrNoPoints
	}

	ch := chart.Chart{
		Title:      chartTitle,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           xAxisName,
			ValueFormatter: chart.TimeValueFormatterWithFormat(xTickFormat),
		},
		YAxis: chart.YAxis{
			Name:  yAxisName,
			Range: yRange(ys),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "wait_time_seconds",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("1f77b4"),
					StrokeWidth: 2,
					DotColor:    drawing.ColorFromHex("1f77b4"),
					DotWidth:    3,
				},
			},
		},
	}
	if first, last := xs[0], xs[len(xs)-1]; !first.Before(last) {
		ch.XAxis.Range = &chart.ContinuousRange{
			Min: chart.TimeToFloat64(first.Add(-singlePointPad)),
			Max: chart.TimeToFloat64(last.Add(singlePointPad)),
		}
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// yRange pads a flat series so the axis never has a zero delta.
func yRange(ys []float64) *chart.ContinuousRange {
	lo, hi := ys[0], ys[0]
	for _, y := range ys[1:] {
		lo = min(lo, y)
		hi = max(hi, y)
	}
	if lo == hi {
		return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	return &chart.ContinuousRange{Min: min(0, lo), Max: hi}
}
