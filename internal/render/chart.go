package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gopkg.in/yaml.v3"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// Chart kinds.
const (
	ChartBar     = "bar"
	ChartLine    = "line"
	ChartScatter = "scatter"
)

// ChartSpec is the YAML description of one chart.
type ChartSpec struct {
	Kind     string        `yaml:"kind"`
	Title    string        `yaml:"title"`
	Subtitle string        `yaml:"subtitle"`
	Unit     string        `yaml:"unit"`
	Source   string        `yaml:"source"`
	X        []string      `yaml:"x"`
	Series   []ChartSeries `yaml:"series"`
}

// ChartSeries is one named value row aligned with the x labels.
type ChartSeries struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

// LoadChartSpec reads and validates a chart spec file.
func LoadChartSpec(path string) (*ChartSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chart spec: %w", err)
	}
	var spec ChartSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse chart spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("chart spec %s: %w", path, err)
	}
	return &spec, nil
}

// Validate checks the spec is renderable.
func (s *ChartSpec) Validate() error {
	switch s.Kind {
	case ChartBar, ChartLine, ChartScatter:
	default:
		return fmt.Errorf("unknown chart kind %q (bar, line or scatter)", s.Kind)
	}
	if s.Title == "" {
		return errors.New("chart needs a title")
	}
	if len(s.X) == 0 {
		return errors.New("chart needs x labels")
	}
	if len(s.Series) == 0 {
		return errors.New("chart needs at least one series")
	}
	for _, series := range s.Series {
		if len(series.Values) != len(s.X) {
			return fmt.Errorf("series %q has %d values for %d x labels",
				series.Name, len(series.Values), len(s.X))
		}
	}
	return nil
}

// Chart renders a spec to a standalone HTML file, and optionally drives the
// headless browser for a PNG of it. Both files join one asset row.
func (r *Renderer) Chart(ctx context.Context, spec *ChartSpec, draftID string, png bool) (*Output, error) {
	if spec == nil {
		return nil, errors.New("nil chart spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	chart, err := buildChart(spec, r.cfg.Render)
	if err != nil {
		return nil, err
	}

	dir, err := r.ensureDir(slugFor(spec.Title, draftID))
	if err != nil {
		return nil, err
	}
	htmlPath := filepath.Join(dir, "chart.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", htmlPath, err)
	}
	if err := chart.Render(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("render chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write %s: %w", htmlPath, err)
	}

	out := &Output{Kind: library.AssetChart, Dir: dir, Paths: []string{htmlPath}}
	if png {
		pngPath := filepath.Join(dir, "chart.png")
		abs, err := filepath.Abs(htmlPath)
		if err != nil {
			abs = htmlPath
		}
		if err := r.Shot(ctx, "file://"+abs, pngPath); err != nil {
			return nil, fmt.Errorf("chart screenshot: %w", err)
		}
		out.Paths = append(out.Paths, pngPath)
	}

	meta := map[string]interface{}{
		"chart_kind": spec.Kind,
		"series":     len(spec.Series),
		"files":      out.Paths,
	}
	if err := r.record(out, draftID, htmlPath, meta); err != nil {
		return nil, err
	}
	logging.Render("Chart %q (%s, %d series) -> %s", spec.Title, spec.Kind, len(spec.Series), dir)
	return out, nil
}

// echart is the slice of the go-echarts chart API the renderer needs.
type echart interface {
	Render(w io.Writer) error
}

func buildChart(spec *ChartSpec, rc config.RenderConfig) (echart, error) {
	globals := chartGlobals(spec, rc)
	switch spec.Kind {
	case ChartBar:
		bar := charts.NewBar()
		bar.SetGlobalOptions(globals...)
		bar.SetXAxis(spec.X)
		for _, s := range spec.Series {
			data := make([]opts.BarData, len(s.Values))
			for i, v := range s.Values {
				data[i] = opts.BarData{Value: v}
			}
			bar.AddSeries(s.Name, data)
		}
		return bar, nil

	case ChartLine:
		line := charts.NewLine()
		line.SetGlobalOptions(globals...)
		line.SetXAxis(spec.X)
		for _, s := range spec.Series {
			data := make([]opts.LineData, len(s.Values))
			for i, v := range s.Values {
				data[i] = opts.LineData{Value: v}
			}
			line.AddSeries(s.Name, data)
		}
		return line, nil

	case ChartScatter:
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(globals...)
		scatter.SetXAxis(spec.X)
		for _, s := range spec.Series {
			data := make([]opts.ScatterData, len(s.Values))
			for i, v := range s.Values {
				data[i] = opts.ScatterData{Value: v, SymbolSize: 12}
			}
			scatter.AddSeries(s.Name, data)
		}
		return scatter, nil
	}
	return nil, fmt.Errorf("unknown chart kind %q", spec.Kind)
}

func chartGlobals(spec *ChartSpec, rc config.RenderConfig) []charts.GlobalOpts {
	subtitle := spec.Subtitle
	if spec.Source != "" {
		if subtitle != "" {
			subtitle += "\n"
		}
		subtitle += "Source: " + spec.Source
	}
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: spec.Title,
			Theme:     rc.ChartTheme,
			Width:     "960px",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    spec.Title,
			Subtitle: subtitle,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: spec.Unit,
		}),
	}
}
