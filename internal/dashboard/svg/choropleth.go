package svg

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strings"

	svgo "github.com/ajstarks/svgo"
)

// Choropleth renders clickable regions colored by value. Each area is emitted
// as a <g data-region="ID"> with a <title> carrying its hover text, followed by
// a horizontal color legend.
func Choropleth(width, height int, areas []MapArea, opts MapOpts) (template.HTML, error) {
	if len(areas) == 0 {
		return "", fmt.Errorf("svg: areas required")
	}
	if width <= 0 {
		width = DefaultMapWidth
	}
	if height <= 0 {
		height = DefaultMapHeight
	}
	padding := opts.Padding
	if padding <= 0 {
		padding = DefaultPadding
	}
	palette := opts.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	emptyColor := fallback(opts.EmptyColor, "#e2e8f0")
	strokeColor := fallback(opts.StrokeColor, "#ffffff")
	activeColor := fallback(opts.ActiveColor, "#0f172a")
	format := opts.FormatValue
	if format == nil {
		format = formatTick
	}

	legendHeight := 36.0
	plotWidth := float64(width) - 2*padding
	plotHeight := float64(height) - 2*padding - legendHeight
	if plotWidth <= 0 || plotHeight <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	proj, ok := fitProjection(areas, padding, padding, plotWidth, plotHeight)
	if !ok {
		return "", fmt.Errorf("svg: areas have no coordinates")
	}

	var buf bytes.Buffer
	canvas := svgo.New(&buf)
	canvas.Start(width, height,
		fmt.Sprintf(`viewBox="0 0 %d %d"`, width, height),
		`role="img"`,
		`class="choropleth"`,
	)
	canvas.Title(fallback(opts.Title, "Map"))
	canvas.Desc(fallback(opts.Description, "Regional values"))

	for _, area := range areas {
		d := proj.path(area.Rings)
		if d == "" {
			continue
		}
		fill := emptyColor
		if area.HasValue {
			fill = colorFor(area.Value, opts.Min, opts.Max, palette)
		}
		stroke, strokeWidth := strokeColor, "0.8"
		if area.Active {
			stroke, strokeWidth = activeColor, "2"
		}
		attrs := []string{
			fmt.Sprintf(`data-region="%s"`, template.HTMLEscapeString(area.ID)),
			`class="map-region"`,
		}
		if area.Active {
			attrs = append(attrs, `aria-current="true"`)
		}
		canvas.Group(attrs...)
		canvas.Title(area.Hover)
		canvas.Path(d,
			fmt.Sprintf(`fill="%s"`, fill),
			fmt.Sprintf(`stroke="%s"`, stroke),
			fmt.Sprintf(`stroke-width="%s"`, strokeWidth),
			`fill-rule="evenodd"`,
		)
		canvas.Gend()
	}

	writeLegend(canvas, width, height, padding, legendHeight, palette, opts, format)
	canvas.End()

	out := buf.String()
	// Inline SVG must not carry an XML prolog.
	if idx := strings.Index(out, "<svg"); idx > 0 {
		out = out[idx:]
	}
	return template.HTML(out), nil
}

func writeLegend(canvas *svgo.SVG, width, height int, padding, legendHeight float64, palette []string, opts MapOpts, format func(float64) string) {
	top := int(float64(height) - padding - legendHeight + 8)
	left := int(padding)
	barWidth := int(float64(width)-2*padding) / 2
	step := barWidth / len(palette)
	if step < 1 {
		step = 1
	}
	canvas.Group(`class="map-legend"`)
	for i, color := range palette {
		canvas.Rect(left+i*step, top, step, 10, fmt.Sprintf(`fill="%s"`, color))
	}
	canvas.Text(left, top+24, format(opts.Min), `font-size="10"`, `fill="#475569"`, `text-anchor="start"`)
	canvas.Text(left+step*len(palette), top+24, format(opts.Max), `font-size="10"`, `fill="#475569"`, `text-anchor="end"`)
	if strings.TrimSpace(opts.ScaleTitle) != "" {
		canvas.Text(left+step*len(palette)+12, top+9, opts.ScaleTitle, `font-size="11"`, `fill="#0f172a"`, `text-anchor="start"`)
	}
	canvas.Gend()
}

// colorFor buckets value into the palette over [min, max].
func colorFor(value, minVal, maxVal float64, palette []string) string {
	if len(palette) == 1 || maxVal <= minVal || almostEqual(maxVal, minVal) {
		return palette[len(palette)-1]
	}
	ratio := (value - minVal) / (maxVal - minVal)
	ratio = math.Max(0, math.Min(1, ratio))
	idx := int(math.Round(ratio * float64(len(palette)-1)))
	return palette[idx]
}

// projection maps lon/lat onto the plot box with an equirectangular fit that
// preserves aspect ratio. Latitude grows upwards, so y is flipped.
type projection struct {
	minX, maxY float64
	scale      float64
	offX, offY float64
}

func fitProjection(areas []MapArea, left, top, w, h float64) (projection, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, area := range areas {
		for _, ring := range area.Rings {
			for _, pt := range ring {
				minX = math.Min(minX, pt[0])
				maxX = math.Max(maxX, pt[0])
				minY = math.Min(minY, pt[1])
				maxY = math.Max(maxY, pt[1])
			}
		}
	}
	if math.IsInf(minX, 1) {
		return projection{}, false
	}
	spanX := math.Max(maxX-minX, 1e-9)
	spanY := math.Max(maxY-minY, 1e-9)
	scale := math.Min(w/spanX, h/spanY)
	return projection{
		minX:  minX,
		maxY:  maxY,
		scale: scale,
		offX:  left + (w-spanX*scale)/2,
		offY:  top + (h-spanY*scale)/2,
	}, true
}

func (p projection) point(pt [2]float64) (float64, float64) {
	return p.offX + (pt[0]-p.minX)*p.scale, p.offY + (p.maxY-pt[1])*p.scale
}

func (p projection) path(rings []Ring) string {
	var d strings.Builder
	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		for i, pt := range ring {
			x, y := p.point(pt)
			if i == 0 {
				fmt.Fprintf(&d, "M%.1f %.1f", x, y)
				continue
			}
			fmt.Fprintf(&d, "L%.1f %.1f", x, y)
		}
		d.WriteString("Z")
	}
	return d.String()
}
