package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pulsepress/internal/library"
)

func barSpec() *ChartSpec {
	return &ChartSpec{
		Kind:   ChartBar,
		Title:  "HbA1c reduction by arm",
		Unit:   "%",
		Source: "SURPASS-2, 2025",
		X:      []string{"Placebo", "5 mg", "10 mg", "15 mg"},
		Series: []ChartSeries{
			{Name: "Mean reduction", Values: []float64{0.2, 1.1, 1.7, 2.1}},
		},
	}
}

func TestChart_WritesHTMLAndRecordsAsset(t *testing.T) {
	r, lib := testRenderer(t)

	out, err := r.Chart(context.Background(), barSpec(), "", false)
	if err != nil {
		t.Fatalf("Chart() error: %v", err)
	}
	if len(out.Paths) != 1 {
		t.Fatalf("Paths = %v, want one HTML file", out.Paths)
	}
	if filepath.Base(out.Paths[0]) != "chart.html" {
		t.Errorf("unexpected file name %s", out.Paths[0])
	}
	if filepath.Base(out.Dir) != "hba1c-reduction-by-arm" {
		t.Errorf("slug dir = %s", filepath.Base(out.Dir))
	}

	html, err := os.ReadFile(out.Paths[0])
	if err != nil {
		t.Fatalf("read rendered chart: %v", err)
	}
	for _, want := range []string{"echarts", "HbA1c reduction by arm", "Source: SURPASS-2, 2025"} {
		if !strings.Contains(string(html), want) {
			t.Errorf("chart HTML missing %q", want)
		}
	}

	assets, err := lib.ListAssets("")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("got %d assets, want 1", len(assets))
	}
	if assets[0].Kind != library.AssetChart {
		t.Errorf("asset kind = %s, want %s", assets[0].Kind, library.AssetChart)
	}
	if assets[0].ID != out.AssetID {
		t.Errorf("asset id = %s, want %s", assets[0].ID, out.AssetID)
	}
	if assets[0].Path != out.Paths[0] {
		t.Errorf("asset path = %s, want %s", assets[0].Path, out.Paths[0])
	}
}

func TestChart_LineMultiSeries(t *testing.T) {
	r, _ := testRenderer(t)

	spec := &ChartSpec{
		Kind:  ChartLine,
		Title: "Weekly prescriptions",
		Unit:  "scripts",
		X:     []string{"W1", "W2", "W3"},
		Series: []ChartSeries{
			{Name: "Semaglutide", Values: []float64{410, 460, 520}},
			{Name: "Tirzepatide", Values: []float64{280, 350, 430}},
		},
	}
	out, err := r.Chart(context.Background(), spec, "", false)
	if err != nil {
		t.Fatalf("Chart() error: %v", err)
	}

	html, err := os.ReadFile(out.Paths[0])
	if err != nil {
		t.Fatalf("read rendered chart: %v", err)
	}
	for _, want := range []string{"Semaglutide", "Tirzepatide"} {
		if !strings.Contains(string(html), want) {
			t.Errorf("chart HTML missing series %q", want)
		}
	}
}

func TestChart_Scatter(t *testing.T) {
	r, _ := testRenderer(t)

	spec := &ChartSpec{
		Kind:  ChartScatter,
		Title: "Dose versus weight change",
		X:     []string{"2.5", "5", "10", "15"},
		Series: []ChartSeries{
			{Name: "Percent change", Values: []float64{-3.2, -7.8, -13.4, -17.8}},
		},
	}
	if _, err := r.Chart(context.Background(), spec, "", false); err != nil {
		t.Fatalf("Chart() error: %v", err)
	}
}

func TestChartSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChartSpec)
		wantErr string
	}{
		{"unknown kind", func(s *ChartSpec) { s.Kind = "pie" }, "unknown chart kind"},
		{"no title", func(s *ChartSpec) { s.Title = "" }, "needs a title"},
		{"no labels", func(s *ChartSpec) { s.X = nil }, "x labels"},
		{"no series", func(s *ChartSpec) { s.Series = nil }, "at least one series"},
		{"ragged series", func(s *ChartSpec) { s.Series[0].Values = s.Series[0].Values[:2] }, "has 2 values for 4 x labels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := barSpec()
			tt.mutate(spec)
			err := spec.Validate()
			if err == nil {
				t.Fatal("Validate() passed, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadChartSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.yaml")
	specYAML := `kind: line
title: Weekly step counts
unit: steps
x: [Mon, Tue, Wed]
series:
  - name: Cohort A
    values: [4200, 5100, 4800]
  - name: Cohort B
    values: [3900, 4000, 4450]
`
	if err := os.WriteFile(path, []byte(specYAML), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	spec, err := LoadChartSpec(path)
	if err != nil {
		t.Fatalf("LoadChartSpec() error: %v", err)
	}
	if spec.Kind != ChartLine {
		t.Errorf("kind = %s, want line", spec.Kind)
	}
	if len(spec.Series) != 2 {
		t.Fatalf("got %d series, want 2", len(spec.Series))
	}
	if spec.Series[1].Values[2] != 4450 {
		t.Errorf("series value = %v, want 4450", spec.Series[1].Values[2])
	}
}

func TestLoadChartSpec_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.yaml")
	if err := os.WriteFile(path, []byte("kind: pie\ntitle: Nope\n"), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	if _, err := LoadChartSpec(path); err == nil {
		t.Fatal("LoadChartSpec() accepted an invalid spec")
	}
}

func TestLoadChartSpec_Missing(t *testing.T) {
	if _, err := LoadChartSpec(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadChartSpec() passed for a missing file")
	}
}
