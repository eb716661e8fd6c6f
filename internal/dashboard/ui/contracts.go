package ui

import (
	"html/template"

	"github.com/covidboard/covidboard/internal/dashboard/svg"
)

// NationalLabel is shown on the region control while the national aggregate
// is selected.
const NationalLabel = "BRASIL"

// MetricOption is one entry of the metric selector.
type MetricOption struct {
	Key      string
	Label    string
	Selected bool
}

// Card is one headline figure. Value is already formatted.
type Card struct {
	Key   string
	Label string
	Value string
}

// CardGroup pairs the two figures shown on one card.
type CardGroup struct {
	Primary   Card
	Secondary Card
}

// DateControl feeds the date input.
type DateControl struct {
	Value string
	Label string
	Min   string
	Max   string
}

// RegionControl is the region label that doubles as the reset button.
type RegionControl struct {
	Label      string
	Code       string
	Name       string
	IsNational bool
}

// ChartPanel carries the rendered time-series chart.
type ChartPanel struct {
	Shape string
	Title string
	SVG   template.HTML
	Empty bool
}

// PageViewModel combines everything the dashboard template renders.
type PageViewModel struct {
	Date    DateControl
	Metrics []MetricOption
	Region  RegionControl
	Cards   []CardGroup
	Map     template.HTML
	Chart   ChartPanel
}

// LineRenderer abstracts SVG trend chart rendering.
type LineRenderer interface {
	Line(width, height int, series []float64, labels []string, opts svg.LineOpts) (template.HTML, error)
}

// BarRenderer abstracts SVG bar chart rendering.
type BarRenderer interface {
	Bars(width, height int, series []float64, labels []string, opts svg.BarOpts) (template.HTML, error)
}

// MapRenderer abstracts SVG choropleth rendering.
type MapRenderer interface {
	Choropleth(width, height int, areas []svg.MapArea, opts svg.MapOpts) (template.HTML, error)
}

// Renderers bundles the chart renderers. The zero value renders with the svg
// package.
type Renderers struct {
	Line LineRenderer
	Bars BarRenderer
	Map  MapRenderer
}

type svgRenderer struct{}

func (svgRenderer) Line(width, height int, series []float64, labels []string, opts svg.LineOpts) (template.HTML, error) {
	return svg.Line(width, height, series, labels, opts)
}

func (svgRenderer) Bars(width, height int, series []float64, labels []string, opts svg.BarOpts) (template.HTML, error) {
	return svg.Bars(width, height, series, labels, opts)
}

func (svgRenderer) Choropleth(width, height int, areas []svg.MapArea, opts svg.MapOpts) (template.HTML, error) {
	return svg.Choropleth(width, height, areas, opts)
}

func (r Renderers) withDefaults() Renderers {
	if r.Line == nil {
		r.Line = svgRenderer{}
	}
	if r.Bars == nil {
		r.Bars = svgRenderer{}
	}
	if r.Map == nil {
		r.Map = svgRenderer{}
	}
	return r
}
