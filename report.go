package qrecover

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// WriteCounts prints a titled block of outcome counts in key order.
func WriteCounts(w io.Writer, title string, d Distribution) error {
	if _, err := fmt.Fprintf(w, "=== %s ===\n", title); err != nil {
		return err
	}
	for _, key := range d.SortedKeys() {
		if _, err := fmt.Fprintf(w, "%s: %d\n", key, d[key]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

/*
WriteSummary renders the analysis as a table with one row per variant: total variation
distance of raw and recovered outcomes, and the mass held by the top N states.
*/
func WriteSummary(w io.Writer, a *Analysis) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			return cellStyle
		}).
		Headers(
			"variant", "shots", "trials", "attempts",
			"TVD raw", "TVD recovered",
			fmt.Sprintf("top-%d raw %%", a.TopN), fmt.Sprintf("top-%d recovered %%", a.TopN),
		)

	for _, v := range a.Variants {
		t.Row(
			v.Mode.String(),
			fmt.Sprint(v.Shots),
			fmt.Sprint(v.Trials),
			fmt.Sprint(v.Attempts),
			fmt.Sprintf("%.4f", v.RawTVD),
			fmt.Sprintf("%.4f", v.RecoveredTVD),
			fmt.Sprintf("%.2f", v.RawDominant),
			fmt.Sprintf("%.2f", v.RecoveredDominant),
		)
	}

	title := titleStyle.Render(fmt.Sprintf("=== Analysis Results: %s ===", a.Name))
	_, err := fmt.Fprintf(w, "%s\n%s\n", title, t.String())
	return err
}

type chartBar struct {
	X, Y, Width, Height float64
	Label               string
	Value               string
	Fill                string
}

type chartPanel struct {
	Title    string
	X        float64
	Bars     []chartBar
	Legend   []chartBar
	Baseline float64
}

type chartData struct {
	Title  string
	Width  float64
	Height float64
	Panels []chartPanel
}

var chartTemplate = template.Must(template.New("chart").Funcs(template.FuncMap{
	"half":   func(v float64) float64 { return v / 2 },
	"center": func(b chartBar) float64 { return b.X + b.Width/2 },
	"above":  func(b chartBar) float64 { return b.Y - 4 },
}).Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" font-family="sans-serif" font-size="12">
<rect width="100%" height="100%" fill="white"/>
<text x="{{printf "%.0f" (half .Width)}}" y="24" text-anchor="middle" font-size="16">{{.Title}}</text>
{{- range .Panels}}
<g transform="translate({{.X}},0)">
<text x="170" y="52" text-anchor="middle" font-size="14">{{.Title}}</text>
<line x1="20" y1="{{.Baseline}}" x2="330" y2="{{.Baseline}}" stroke="black"/>
{{- range .Bars}}
<rect x="{{printf "%.1f" .X}}" y="{{printf "%.1f" .Y}}" width="{{printf "%.1f" .Width}}" height="{{printf "%.1f" .Height}}" fill="{{.Fill}}"/>
<text x="{{printf "%.1f" (center .)}}" y="{{printf "%.1f" (above .)}}" text-anchor="middle">{{.Value}}</text>
{{- end}}
{{- range .Legend}}
<text x="{{printf "%.1f" .X}}" y="{{printf "%.1f" .Y}}" text-anchor="middle">{{.Label}}</text>
{{- end}}
</g>
{{- end}}
</svg>
`))

var variantFill = map[Mode][2]string{
	Baseline: {"#9ecae1", "#3182bd"},
	Static:   {"#a1d99b", "#31a354"},
	Dynamic:  {"#fdae6b", "#e6550d"},
}

/*
WriteChart writes an SVG with two bar panels: total variation distance and top-N dominant
mass, each showing raw and recovered bars per variant.
*/
func WriteChart(path string, a *Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := RenderChart(f, a); err != nil {
		return fmt.Errorf("chart %s: %w", path, err)
	}
	return f.Close()
}

// RenderChart writes the SVG chart of a to w.
func RenderChart(w io.Writer, a *Analysis) error {
	const (
		panelWidth = 360.0
		plotTop    = 70.0
		plotHeight = 220.0
		barWidth   = 28.0
		groupSpace = 100.0
	)

	baseline := plotTop + plotHeight
	data := chartData{
		Title:  fmt.Sprintf("Obfuscation analysis: %s", escapeLabel(a.Name)),
		Width:  panelWidth * 2,
		Height: baseline + 50,
	}

	panels := []struct {
		title  string
		max    float64
		value  func(Variant) (float64, float64)
		format string
	}{
		{"Total variation distance", 1, func(v Variant) (float64, float64) { return v.RawTVD, v.RecoveredTVD }, "%.3f"},
		{fmt.Sprintf("Top-%d dominant mass (%%)", a.TopN), 100, func(v Variant) (float64, float64) {
			return v.RawDominant, v.RecoveredDominant
		}, "%.1f"},
	}

	for i, p := range panels {
		panel := chartPanel{Title: p.title, X: float64(i) * panelWidth, Baseline: baseline}

		for j, v := range a.Variants {
			raw, recovered := p.value(v)
			fills := variantFill[v.Mode]
			x := 40 + float64(j)*groupSpace

			for k, value := range []float64{raw, recovered} {
				height := value / p.max * plotHeight
				panel.Bars = append(panel.Bars, chartBar{
					X:      x + float64(k)*(barWidth+4),
					Y:      baseline - height,
					Width:  barWidth,
					Height: height,
					Value:  fmt.Sprintf(p.format, value),
					Fill:   fills[k],
				})
			}

			panel.Legend = append(panel.Legend, chartBar{
				X:     x + barWidth + 2,
				Y:     baseline + 18,
				Label: v.Mode.String() + " raw/rec",
			})
		}

		data.Panels = append(data.Panels, panel)
	}

	return chartTemplate.Execute(w, data)
}

// escapeLabel keeps gate names safe inside SVG text nodes.
func escapeLabel(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
