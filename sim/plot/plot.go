// Package plot draws time series figures of summarized flows.
package plot

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gopkg.in/go-playground/colors.v1"

	"github.com/isr-ifi/dpmfa/sim/summary"
)

// ValidFormats lists the accepted figure formats.
var ValidFormats = []string{"pdf", "png", "svg"}

// Palette of a time series figure, as hex colors.
const (
	rangeColor    = "#ffebcd"
	meanColor     = "#8b0000"
	quantileColor = "#ff0000"
)

// Options controls figure output.
type Options struct {
	StartYear int
	Format    string // pdf (default), png or svg
	Width     vg.Length
	Height    vg.Length
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = "pdf"
	}
	if o.Width == 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 5 * vg.Inch
	}
	return o
}

func validFormat(f string) bool {
	for _, v := range ValidFormats {
		if v == f {
			return true
		}
	}
	return false
}

func parseColor(hex string) (color.Color, error) {
	c, err := colors.ParseHEX(hex)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse colour %s", hex)
	}
	rgba := c.ToRGBA()
	return color.NRGBA{R: rgba.R, G: rgba.G, B: rgba.B, A: uint8(rgba.A * 255)}, nil
}

// FileName returns the figure file name of a flow.
func FileName(f summary.Flow, format string) string {
	clean := func(s string) string { return strings.ReplaceAll(s, string(filepath.Separator), "_") }
	return "TimeSeries_" + clean(f.Source) + "_to_" + clean(f.Target) + "." + format
}

// TimeSeries builds the figure of one flow: the min-max range as a band,
// the mean as a solid line and the quartiles as dashed lines.
func TimeSeries(f summary.Flow, startYear int) (*plot.Plot, error) {
	n := len(f.Periods)
	if n == 0 {
		return nil, errors.Errorf("flow %s -> %s has no periods", f.Source, f.Target)
	}
	mean := make(plotter.XYs, n)
	q25 := make(plotter.XYs, n)
	q75 := make(plotter.XYs, n)
	band := make(plotter.XYs, 0, 2*n)
	for i, ps := range f.Periods {
		x := float64(startYear + i)
		mean[i] = plotter.XY{X: x, Y: ps.Mean}
		q25[i] = plotter.XY{X: x, Y: ps.Q25}
		q75[i] = plotter.XY{X: x, Y: ps.Q75}
		band = append(band, plotter.XY{X: x, Y: ps.Max})
	}
	for i := n - 1; i >= 0; i-- {
		band = append(band, plotter.XY{X: float64(startYear + i), Y: f.Periods[i].Min})
	}

	rangeFill, err := parseColor(rangeColor)
	if err != nil {
		return nil, err
	}
	meanStroke, err := parseColor(meanColor)
	if err != nil {
		return nil, err
	}
	quantileStroke, err := parseColor(quantileColor)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = "Flow from " + f.Source + " to " + f.Target
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Flow mass (t)"
	p.X.Min = float64(startYear) - 0.5
	p.X.Max = float64(startYear+n) - 0.5
	p.Legend.Top = true
	p.Legend.Left = true

	poly, err := plotter.NewPolygon(band)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build range band")
	}
	poly.Color = rangeFill
	poly.LineStyle.Width = 0

	meanLine, err := plotter.NewLine(mean)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build mean line")
	}
	meanLine.LineStyle.Color = meanStroke
	meanLine.LineStyle.Width = vg.Points(2)

	lower, err := plotter.NewLine(q25)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build quantile line")
	}
	upper, err := plotter.NewLine(q75)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build quantile line")
	}
	for _, l := range []*plotter.Line{lower, upper} {
		l.LineStyle.Color = quantileStroke
		l.LineStyle.Width = vg.Points(1.5)
		l.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
	}

	p.Add(poly, meanLine, lower, upper)
	p.Legend.Add("Range", poly)
	p.Legend.Add("Mean Value", meanLine)
	p.Legend.Add("25% Quantile", lower)
	p.Legend.Add("75% Quantile", upper)
	return p, nil
}

// WriteTimeSeries saves one figure per logged outflow into dir and returns
// the file names.
func WriteTimeSeries(dir string, sum *summary.Summary, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	if !validFormat(opts.Format) {
		return nil, errors.Errorf("unknown plot format %q; valid: %s", opts.Format, strings.Join(ValidFormats, ", "))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", dir)
	}

	var files []string
	for _, f := range sum.Outflows {
		p, err := TimeSeries(f, opts.StartYear)
		if err != nil {
			return files, err
		}
		name := FileName(f, opts.Format)
		if err := p.Save(opts.Width, opts.Height, filepath.Join(dir, name)); err != nil {
			return files, errors.Wrapf(err, "saving %s", name)
		}
		files = append(files, name)
		logrus.Debugf("Saved %s", name)
	}
	return files, nil
}
