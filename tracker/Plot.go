package tracker

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot buffers selected fields over frames and renders them as
// training curves when the run closes.
type Plot struct {
	path   string
	fields []string
	series map[string]plotter.XYs
}

// NewPlot creates a plotting sink that tracks the named fields and
// writes the figure to path on Close.
func NewPlot(path string, fields ...string) *Plot {
	return &Plot{
		path:   path,
		fields: fields,
		series: make(map[string]plotter.XYs, len(fields)),
	}
}

// Track buffers the tracked fields of one record
func (p *Plot) Track(r Record) error {
	for _, field := range p.fields {
		v, ok := r.Fields[field]
		if !ok {
			continue
		}
		p.series[field] = append(p.series[field],
			plotter.XY{X: float64(r.Frames), Y: v})
	}
	return nil
}

// Close renders the buffered curves. A run that produced no points
// writes no figure.
func (p *Plot) Close() error {
	if len(p.series) == 0 {
		return nil
	}

	fig := plot.New()
	fig.X.Label.Text = "frames"
	fig.Legend.Top = true

	var args []interface{}
	for _, field := range p.fields {
		xys, ok := p.series[field]
		if !ok {
			continue
		}
		args = append(args, field, xys)
	}
	if err := plotutil.AddLines(fig, args...); err != nil {
		return fmt.Errorf("close: could not add curves: %w", err)
	}

	if err := fig.Save(8*vg.Inch, 6*vg.Inch, p.path); err != nil {
		return fmt.Errorf("close: could not save %v: %w", p.path, err)
	}
	return nil
}
