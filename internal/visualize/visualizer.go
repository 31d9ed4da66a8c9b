// Package visualize renders time-series bar charts from validated
// observation frames. Chart generation is best-effort: malformed input
// that the flattening layer would reject hard is logged and skipped
// here instead of surfaced as an error.
package visualize

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/fhirtab/fhirtab/internal/flatten"
)

const dateLayout = "2006-01-02"

const (
	defaultYLower = 50.0
	defaultYUpper = 1000.0
	defaultDPI    = 300.0
)

// Options configures chart generation.
type Options struct {
	StartDate *time.Time // inclusive; nil = unbounded
	EndDate   *time.Time // inclusive; nil = unbounded
	UserIDs   []string   // nil = all distinct UserId values present
	YLower    *float64   // nil = default 50; zero is a valid bound
	YUpper    *float64   // nil = default 1000
	Combine   *bool      // nil = default true (one chart for all users)
	DPI       float64    // 0 = default 300
}

func (o *Options) applyDefaults() {
	if o.YLower == nil {
		v := defaultYLower
		o.YLower = &v
	}
	if o.YUpper == nil {
		v := defaultYUpper
		o.YUpper = &v
	}
	if o.DPI == 0 {
		o.DPI = defaultDPI
	}
}

func (o *Options) combined() bool {
	if o.Combine == nil {
		return true
	}
	return *o.Combine
}

// Chart is one rendered bar chart. UserID is empty for combined charts.
type Chart struct {
	UserID string `json:"user_id,omitempty"`
	Title  string `json:"title"`
	PNG    []byte `json:"png"`
}

// Visualizer turns observation frames into bar charts.
type Visualizer struct {
	logger zerolog.Logger
	opts   Options
}

// New creates a visualizer with the given options.
func New(logger zerolog.Logger, opts Options) *Visualizer {
	opts.applyDefaults()
	return &Visualizer{logger: logger, opts: opts}
}

// CreateStaticPlot renders bar charts of daily QuantityValue sums per
// user, either combined onto one chart or one chart per user. It
// returns (nil, nil) after logging a message when the frame's first
// EffectiveDateTime cell is not a date or when the frame holds more
// than one distinct LoincCode; schema violations found by
// ValidateColumns propagate as errors.
func (v *Visualizer) CreateStaticPlot(frame *flatten.Frame) ([]Chart, error) {
	table := frame.Table()
	if table.NumRows() == 0 {
		v.logger.Info().Msg("no rows to plot")
		return nil, nil
	}

	first, _ := table.Cell(0, flatten.ColEffectiveDateTime)
	if _, ok := first.(time.Time); !ok {
		v.logger.Warn().Msg("first EffectiveDateTime cell is not a date; skipping plot")
		return nil, nil
	}

	if n := distinctLoincCodes(table); n != 1 {
		v.logger.Warn().Int("loinc_codes", n).
			Msg("each plot requires exactly one distinct LoincCode; skipping plot")
		return nil, nil
	}

	if err := frame.ValidateColumns(); err != nil {
		return nil, err
	}

	series := aggregate(frame, v.opts.StartDate, v.opts.EndDate, v.opts.UserIDs)
	if len(series) == 0 {
		v.logger.Info().Msg("no series match the configured filters")
		return nil, nil
	}

	name := firstString(table, flatten.ColQuantityName)
	unit := firstString(table, flatten.ColQuantityUnit)

	if v.opts.combined() {
		title := fmt.Sprintf("%s from %s to %s", name, v.rangeStart(), v.rangeEnd())
		png, err := v.renderChart(title, name, unit, series)
		if err != nil {
			return nil, err
		}
		return []Chart{{Title: title, PNG: png}}, nil
	}

	charts := make([]Chart, 0, len(series))
	for _, s := range series {
		title := fmt.Sprintf("%s for User %s from %s to %s", name, s.userID, v.rangeStart(), v.rangeEnd())
		png, err := v.renderChart(title, name, unit, []userSeries{s})
		if err != nil {
			return nil, err
		}
		charts = append(charts, Chart{UserID: s.userID, Title: title, PNG: png})
	}
	return charts, nil
}

// renderChart draws one bar chart with a bar series per user, grouped
// side by side on a shared date axis.
func (v *Visualizer) renderChart(title, name, unit string, series []userSeries) ([]byte, error) {
	dates := seriesDates(series)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = fmt.Sprintf("%s (%s)", name, unit)
	p.Y.Min = *v.opts.YLower
	p.Y.Max = *v.opts.YUpper
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	barWidth := vg.Points(18 / float64(len(series)))
	for i, s := range series {
		values := make(plotter.Values, len(dates))
		for j, d := range dates {
			values[j] = s.totals[d]
		}
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return nil, fmt.Errorf("bar chart for user %s: %w", s.userID, err)
		}
		bars.LineStyle.Width = vg.Points(1.5)
		bars.Color = plotutil.Color(i)
		bars.Offset = barWidth * vg.Length(i-len(series)/2)
		p.Add(bars)
		p.Legend.Add("User "+s.userID, bars)
	}

	labels := make([]string, len(dates))
	for i, d := range dates {
		labels[i] = d.Format(dateLayout)
	}
	p.NominalX(labels...)

	canvas := vgimg.NewWith(
		vgimg.UseWH(10*vg.Inch, 6*vg.Inch),
		vgimg.UseDPI(int(v.opts.DPI)),
	)
	p.Draw(draw.New(canvas))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (v *Visualizer) rangeStart() string {
	if v.opts.StartDate == nil {
		return "start"
	}
	return v.opts.StartDate.Format(dateLayout)
}

func (v *Visualizer) rangeEnd() string {
	if v.opts.EndDate == nil {
		return "end"
	}
	return v.opts.EndDate.Format(dateLayout)
}

func distinctLoincCodes(table *flatten.Table) int {
	vals, ok := table.ColumnValues(flatten.ColLoincCode)
	if !ok {
		return 0
	}
	seen := make(map[string]bool)
	for _, v := range vals {
		if s, ok := v.(string); ok {
			seen[s] = true
		}
	}
	return len(seen)
}

func firstString(table *flatten.Table, c flatten.Column) string {
	cell, _ := table.Cell(0, c)
	s, _ := cell.(string)
	return s
}
