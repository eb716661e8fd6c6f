package ui

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/covidboard/covidboard/internal/dashboard"
	"github.com/covidboard/covidboard/internal/dashboard/svg"
)

// Options sizes the rendered charts.
type Options struct {
	ChartWidth  int
	ChartHeight int
	MapWidth    int
	MapHeight   int
	Renderers   Renderers
}

// BuildPage turns a derived view into the page view-model. It only formats;
// every figure comes from vm.
func BuildPage(ds *dashboard.Dataset, vm dashboard.ViewModel, opts Options) (PageViewModel, error) {
	renderers := opts.Renderers.withDefaults()
	sel := vm.Selection
	span := ds.DateRange()

	page := PageViewModel{
		Date: DateControl{
			Value: sel.Date.Format(dashboard.DateLayout),
			Label: FormatDate(sel.Date),
			Min:   span.Min.Format(dashboard.DateLayout),
			Max:   span.Max.Format(dashboard.DateLayout),
		},
		Region: regionControl(ds, sel.Region),
		Cards:  cardGroups(vm.Cards),
	}
	for _, m := range dashboard.MetricKinds() {
		page.Metrics = append(page.Metrics, MetricOption{Key: m.Key(), Label: MetricOptionLabel(m), Selected: m == sel.Metric})
	}

	mapSVG, err := renderMap(ds, vm, opts, renderers.Map)
	if err != nil {
		return PageViewModel{}, fmt.Errorf("ui: render map: %w", err)
	}
	page.Map = mapSVG

	chart, err := renderChart(vm.Series, page.Region, opts, renderers)
	if err != nil {
		return PageViewModel{}, fmt.Errorf("ui: render chart: %w", err)
	}
	page.Chart = chart
	return page, nil
}

func regionControl(ds *dashboard.Dataset, region dashboard.RegionSelector) RegionControl {
	if region.IsNational() {
		return RegionControl{Label: NationalLabel, Name: NationalLabel, IsNational: true}
	}
	code := region.Code()
	return RegionControl{Label: string(code), Code: string(code), Name: ds.RegionName(code)}
}

func cardGroups(c dashboard.Cards) []CardGroup {
	return []CardGroup{
		{
			Primary:   Card{Key: "recovered", Label: "Casos recuperados", Value: FormatAmount(c.RecoveredCumulative)},
			Secondary: Card{Key: "follow_up", Label: "Em acompanhamento", Value: FormatAmount(c.ActiveFollowUp)},
		},
		{
			Primary:   Card{Key: "cases", Label: "Casos confirmados", Value: FormatAmount(c.CasesCumulative)},
			Secondary: Card{Key: "cases_new", Label: "Novos casos na data", Value: FormatAmount(c.CasesNewOnDate)},
		},
		{
			Primary:   Card{Key: "deaths", Label: "Óbitos totais", Value: FormatAmount(c.DeathsCumulative)},
			Secondary: Card{Key: "deaths_new", Label: "Novos óbitos na data", Value: FormatAmount(c.DeathsNewOnDate)},
		},
	}
}

func renderMap(ds *dashboard.Dataset, vm dashboard.ViewModel, opts Options, r MapRenderer) (template.HTML, error) {
	if len(vm.Map.Cells) == 0 {
		return "", nil
	}
	geometry := ds.Geometry()
	areas := make([]svg.MapArea, 0, len(vm.Map.Cells))
	for _, cell := range vm.Map.Cells {
		var rings []svg.Ring
		for _, poly := range geometry[cell.Region] {
			for _, ring := range poly {
				out := make(svg.Ring, len(ring))
				for i, pt := range ring {
					out[i] = [2]float64(pt)
				}
				rings = append(rings, out)
			}
		}
		areas = append(areas, svg.MapArea{
			ID:       string(cell.Region),
			Rings:    rings,
			Value:    float64(cell.Value.Value),
			HasValue: cell.Value.Valid,
			Hover:    hoverText(cell.Hover),
			Active:   !vm.Selection.Region.IsNational() && vm.Selection.Region.Code() == cell.Region,
		})
	}
	scale := vm.Map.Scale
	return r.Choropleth(opts.MapWidth, opts.MapHeight, areas, svg.MapOpts{
		Title:       "Mapa por estado",
		Description: fmt.Sprintf("%s em %s", scale.Title, FormatDate(vm.Map.Date)),
		ScaleTitle:  scale.Title,
		Min:         float64(scale.Min),
		Max:         float64(scale.Max),
		FormatValue: func(v float64) string { return FormatCount(int64(v)) },
	})
}

func hoverText(h dashboard.HoverFields) string {
	lines := []string{
		fmt.Sprintf("%s (%s)", h.Name, FormatDate(h.Date)),
		"Casos Acumulados: " + FormatAmount(h.CasesCumulative),
		"Casos Novos: " + FormatAmount(h.CasesNew),
		"Óbitos Acumulados: " + FormatAmount(h.DeathsCumulative),
		"Óbitos Novos: " + FormatAmount(h.DeathsNew),
	}
	return strings.Join(lines, "\n")
}

func renderChart(series dashboard.Series, region RegionControl, opts Options, r Renderers) (ChartPanel, error) {
	panel := ChartPanel{
		Shape: series.Shape.String(),
		Title: fmt.Sprintf("%s: %s", series.AxisTitle, region.Label),
	}
	if len(series.Points) == 0 {
		panel.Empty = true
		return panel, nil
	}
	values := make([]float64, len(series.Points))
	labels := make([]string, len(series.Points))
	for i, p := range series.Points {
		values[i] = float64(p.Value)
		labels[i] = FormatDate(p.Date)
	}

	var (
		out template.HTML
		err error
	)
	switch series.Shape {
	case dashboard.ShapeLine:
		out, err = r.Line.Line(opts.ChartWidth, opts.ChartHeight, values, labels, svg.LineOpts{
			Title:      panel.Title,
			AxisTitle:  series.AxisTitle,
			XAxisTitle: "Data",
		})
	case dashboard.ShapeBars:
		out, err = r.Bars.Bars(opts.ChartWidth, opts.ChartHeight, values, labels, svg.BarOpts{
			Title:      panel.Title,
			AxisTitle:  series.AxisTitle,
			XAxisTitle: "Data",
		})
	default:
		return ChartPanel{}, fmt.Errorf("unknown chart shape %v", series.Shape)
	}
	if err != nil {
		return ChartPanel{}, err
	}
	panel.SVG = out
	return panel, nil
}
