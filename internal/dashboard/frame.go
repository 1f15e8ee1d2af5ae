package dashboard

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const missingText = "N/A"

// Columns is the projection applied to every feed record, in table order.
var Columns = []string{"timestamp", "wait_time", "talk_time", "wait_time_seconds", "talk_time_seconds"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Row is one cleaned feed record. A nil Timestamp means the source value was
// missing or unparseable; the row is still kept.
type Row struct {
	Timestamp       *time.Time `json:"timestamp"`
	WaitTime        string     `json:"wait_time"`
	TalkTime        string     `json:"talk_time"`
	WaitTimeSeconds float64    `json:"wait_time_seconds"`
	TalkTimeSeconds float64    `json:"talk_time_seconds"`
}

type Frame struct {
	Rows []Row
}

// Point is one chart sample: x is the row timestamp, y its wait time.
type Point struct {
	Timestamp       *time.Time
	WaitTimeSeconds float64
}

// BuildFrame projects and coerces raw feed records. Every record yields
// exactly one row, in input order.
func BuildFrame(records []map[string]any) Frame {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{
			Timestamp:       coerceTimestamp(rec["timestamp"]),
			WaitTime:        coerceText(rec["wait_time"]),
			TalkTime:        coerceText(rec["talk_time"]),
			WaitTimeSeconds: coerceNumber(rec["wait_time_seconds"]),
			TalkTimeSeconds: coerceNumber(rec["talk_time_seconds"]),
		})
	}
	return Frame{Rows: rows}
}

func (f Frame) Series() []Point {
	points := make([]Point, 0, len(f.Rows))
	for _, row := range f.Rows {
		points = append(points, Point{Timestamp: row.Timestamp, WaitTimeSeconds: row.WaitTimeSeconds})
	}
	return points
}

// Plottable returns the points with a timestamp, sorted by time.
func (f Frame) Plottable() ([]time.Time, []float64) {
	points := make([]Point, 0, len(f.Rows))
	for _, p := range f.Series() {
		if p.Timestamp != nil {
			points = append(points, p)
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(*points[j].Timestamp)
	})

	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = *p.Timestamp
		ys[i] = p.WaitTimeSeconds
	}
	return xs, ys
}

func (f Frame) NullTimestamps() int {
	n := 0
	for _, row := range f.Rows {
		if row.Timestamp == nil {
			n++
		}
	}
	return n
}

func coerceTimestamp(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

func coerceText(v any) string {
	switch t := v.(type) {
	case nil:
		return missingText
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return missingText
		}
		return string(b)
	}
}

func coerceNumber(v any) float64 {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
