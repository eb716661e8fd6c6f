package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Line renders a responsive SVG trend chart for the given series and labels.
func Line(width, height int, series []float64, labels []string, opts LineOpts) (template.HTML, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("svg: series required")
	}
	if len(series) != len(labels) {
		return "", fmt.Errorf("svg: labels length must match series")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	padding := opts.Padding
	if padding <= 0 {
		padding = DefaultPadding
	}
	tickCount := opts.TickCount
	if tickCount <= 0 {
		tickCount = DefaultTicks
	}
	strokeColor := fallback(opts.StrokeColor, "#2563eb")
	fillColor := fallback(opts.FillColor, "rgba(37,99,235,0.12)")
	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#cbd5f5")

	// Extra room on the left for tick labels and the axis title.
	left := padding * 2
	chartWidth := float64(width) - left - padding
	chartHeight := float64(height) - 2*padding
	if chartWidth <= 0 || chartHeight <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	minVal, maxVal := bounds(series)
	if minVal > 0 {
		minVal = 0
	}
	if maxVal < 0 {
		maxVal = 0
	}
	if almostEqual(maxVal, minVal) {
		maxVal = minVal + 1
	}
	scale := chartHeight / (maxVal - minVal)

	xAt := func(i int) float64 {
		if len(series) == 1 {
			return left + chartWidth/2
		}
		return left + float64(i)*chartWidth/float64(len(series)-1)
	}
	yAt := func(v float64) float64 {
		return padding + chartHeight - (v-minVal)*scale
	}

	var path strings.Builder
	for i, value := range series {
		if i == 0 {
			fmt.Fprintf(&path, "M%.2f %.2f", xAt(i), yAt(value))
			continue
		}
		fmt.Fprintf(&path, " L%.2f %.2f", xAt(i), yAt(value))
	}

	titleID := makeID(opts.Title, "line-title")
	descID := makeID(opts.Title, "line-desc")

	var b strings.Builder
	fmt.Fprintf(&b, "<svg xmlns=\"http://www.w3.org/2000/svg\" viewBox=\"0 0 %d %d\" role=\"img\" aria-labelledby=\"%s %s\" data-shape=\"line\">", width, height, titleID, descID)
	fmt.Fprintf(&b, "<title id=\"%s\">%s</title>", titleID, template.HTMLEscapeString(fallback(opts.Title, "Line chart")))
	fmt.Fprintf(&b, "<desc id=\"%s\">%s</desc>", descID, template.HTMLEscapeString(fallback(opts.Description, "Trend data")))

	writeGrid(&b, left, padding, chartWidth, chartHeight, minVal, maxVal, tickCount, axisColor, gridColor)
	writeAxes(&b, left, padding, chartWidth, chartHeight, padding+chartHeight, axisColor)

	if fillColor != "" {
		base := padding + chartHeight
		area := fmt.Sprintf("%s L%.2f %.2f L%.2f %.2f Z", path.String(), xAt(len(series)-1), base, xAt(0), base)
		fmt.Fprintf(&b, "<path d=\"%s\" fill=\"%s\" stroke=\"none\" aria-hidden=\"true\"></path>", area, fillColor)
	}
	fmt.Fprintf(&b, "<path d=\"%s\" fill=\"none\" stroke=\"%s\" stroke-width=\"2\" stroke-linejoin=\"round\" stroke-linecap=\"round\"></path>", path.String(), strokeColor)

	if opts.ShowDots {
		for i, value := range series {
			fmt.Fprintf(&b, "<circle cx=\"%.2f\" cy=\"%.2f\" r=\"3\" fill=\"%s\"><title>%s: %s</title></circle>", xAt(i), yAt(value), strokeColor,
				template.HTMLEscapeString(labels[i]), template.HTMLEscapeString(formatTick(value)))
		}
	}

	stride := labelStride(len(labels), opts.MaxLabels)
	for i, label := range labels {
		if i%stride != 0 && i != len(labels)-1 {
			continue
		}
		fmt.Fprintf(&b, "<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"10\" text-anchor=\"middle\">%s</text>", xAt(i), padding+chartHeight+14, axisColor, template.HTMLEscapeString(label))
	}
	writeAxisTitles(&b, width, height, padding+chartHeight/2, opts.AxisTitle, opts.XAxisTitle, axisColor)

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func writeGrid(b *strings.Builder, left, top, chartWidth, chartHeight, minVal, maxVal float64, ticks int, axisColor, gridColor string) {
	for i := 0; i <= ticks; i++ {
		ratio := float64(i) / float64(ticks)
		y := top + chartHeight - ratio*chartHeight
		value := minVal + (maxVal-minVal)*ratio
		fmt.Fprintf(b, "<line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke=\"%s\" stroke-width=\"0.5\" stroke-dasharray=\"2,4\" aria-hidden=\"true\"></line>", left, y, left+chartWidth, y, gridColor)
		fmt.Fprintf(b, "<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"10\" text-anchor=\"end\">%s</text>", left-6, y+4, axisColor, template.HTMLEscapeString(formatTick(value)))
	}
}

func writeAxes(b *strings.Builder, left, top, chartWidth, chartHeight, baseY float64, axisColor string) {
	fmt.Fprintf(b, "<g stroke=\"%s\" aria-label=\"Eixos\">", axisColor)
	fmt.Fprintf(b, "<line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke-width=\"1\"></line>", left, top, left, top+chartHeight)
	fmt.Fprintf(b, "<line x1=\"%.2f\" y1=\"%.2f\" x2=\"%.2f\" y2=\"%.2f\" stroke-width=\"1\"></line>", left, baseY, left+chartWidth, baseY)
	b.WriteString("</g>")
}

func writeAxisTitles(b *strings.Builder, width, height int, midY float64, yTitle, xTitle, color string) {
	if strings.TrimSpace(yTitle) != "" {
		fmt.Fprintf(b, "<text x=\"12\" y=\"%.2f\" fill=\"%s\" font-size=\"11\" text-anchor=\"middle\" transform=\"rotate(-90 12 %.2f)\">%s</text>", midY, color, midY, template.HTMLEscapeString(yTitle))
	}
	if strings.TrimSpace(xTitle) != "" {
		fmt.Fprintf(b, "<text x=\"%d\" y=\"%d\" fill=\"%s\" font-size=\"11\" text-anchor=\"middle\">%s</text>", width/2, height-2, color, template.HTMLEscapeString(xTitle))
	}
}

// labelStride returns the step between rendered x labels so at most limit are
// drawn.
func labelStride(n, limit int) int {
	if limit <= 0 {
		limit = DefaultMaxLabels
	}
	if n <= limit {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(limit)))
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}

func bounds(series []float64) (float64, float64) {
	minVal := series[0]
	maxVal := series[0]
	for _, v := range series[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func makeID(base, suffix string) string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(base)))
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "chart"
	}
	return cleaned + "-" + suffix
}

func formatTick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	default:
		if almostEqual(v, math.Round(v)) {
			return fmt.Sprintf("%.0f", v)
		}
		return fmt.Sprintf("%.2f", v)
	}
}
