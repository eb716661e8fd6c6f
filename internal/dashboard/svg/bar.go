package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Bars renders one series as discrete daily bars.
func Bars(width, height int, series []float64, labels []string, opts BarOpts) (template.HTML, error) {
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
	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#cbd5f5")
	color := fallback(opts.Color, "#0ea5e9")

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
	zeroY := padding + chartHeight - (0-minVal)*scale
	chartBottom := padding + chartHeight

	slot := chartWidth / float64(len(series))
	barWidth := slot * 0.8
	if barWidth < 0.5 {
		barWidth = 0.5
	}

	titleID := makeID(opts.Title, "bar-title")
	descID := makeID(opts.Title, "bar-desc")

	var b strings.Builder
	fmt.Fprintf(&b, "<svg xmlns=\"http://www.w3.org/2000/svg\" viewBox=\"0 0 %d %d\" role=\"img\" aria-labelledby=\"%s %s\" data-shape=\"bars\">", width, height, titleID, descID)
	fmt.Fprintf(&b, "<title id=\"%s\">%s</title>", titleID, template.HTMLEscapeString(fallback(opts.Title, "Bar chart")))
	fmt.Fprintf(&b, "<desc id=\"%s\">%s</desc>", descID, template.HTMLEscapeString(fallback(opts.Description, "Daily values")))

	writeGrid(&b, left, padding, chartWidth, chartHeight, minVal, maxVal, tickCount, axisColor, gridColor)
	writeAxes(&b, left, padding, chartWidth, chartHeight, zeroY, axisColor)

	for i, value := range series {
		x := left + float64(i)*slot + (slot-barWidth)/2
		y, h := barPosition(value, scale, zeroY, padding, chartBottom)
		fmt.Fprintf(&b, "<rect x=\"%.2f\" y=\"%.2f\" width=\"%.2f\" height=\"%.2f\" fill=\"%s\"><title>%s: %s</title></rect>", x, y, barWidth, h, color,
			template.HTMLEscapeString(labels[i]), template.HTMLEscapeString(formatTick(value)))
	}

	stride := labelStride(len(labels), opts.MaxLabels)
	for i, label := range labels {
		if i%stride != 0 && i != len(labels)-1 {
			continue
		}
		center := left + float64(i)*slot + slot/2
		fmt.Fprintf(&b, "<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"10\" text-anchor=\"middle\">%s</text>", center, chartBottom+14, axisColor, template.HTMLEscapeString(label))
	}
	writeAxisTitles(&b, width, height, padding+chartHeight/2, opts.AxisTitle, opts.XAxisTitle, axisColor)

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func barPosition(value, scale, zeroY, padding, bottom float64) (float64, float64) {
	if value >= 0 {
		height := value * scale
		y := zeroY - height
		if y < padding {
			height -= padding - y
			y = padding
		}
		if height < 0 {
			height = 0
		}
		return y, height
	}
	height := math.Abs(value * scale)
	y := zeroY
	if y+height > bottom {
		height = bottom - y
	}
	if height < 0 {
		height = 0
	}
	return y, height
}
