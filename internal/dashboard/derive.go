package dashboard

import (
	"sort"
	"time"
)

// HoverFields are shown when pointing at a region on the map.
type HoverFields struct {
	Name             string    `json:"name"`
	Date             time.Time `json:"date"`
	CasesCumulative  Amount    `json:"cases_cumulative"`
	CasesNew         Amount    `json:"cases_new"`
	DeathsCumulative Amount    `json:"deaths_cumulative"`
	DeathsNew        Amount    `json:"deaths_new"`
}

// MapCell is one region on the choropleth. Value is NotApplicable when the
// region has no record on the selected date.
type MapCell struct {
	Region RegionCode  `json:"region"`
	Value  Amount      `json:"value"`
	Hover  HoverFields `json:"hover"`
}

// ColorScale binds the map colors to the selected metric.
type ColorScale struct {
	Metric MetricKind `json:"metric"`
	Title  string     `json:"title"`
	Min    int64      `json:"min"`
	Max    int64      `json:"max"`
	Empty  bool       `json:"empty"`
}

// MapLayer is the choropleth for the selected date and metric.
type MapLayer struct {
	Date  time.Time  `json:"date"`
	Scale ColorScale `json:"scale"`
	Cells []MapCell  `json:"cells"`
}

// SeriesPoint is one day of the time-series chart.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value int64     `json:"value"`
}

// Series is the chart for the active region or the national aggregate.
type Series struct {
	Region    RegionSelector `json:"region"`
	Metric    MetricKind     `json:"metric"`
	Shape     ChartShape     `json:"shape"`
	AxisTitle string         `json:"axis_title"`
	Points    []SeriesPoint  `json:"points"`
}

// Cards are the six summary scalars for the selected region and date.
type Cards struct {
	RecoveredCumulative Amount `json:"recovered_cumulative"`
	ActiveFollowUp      Amount `json:"active_follow_up"`
	CasesCumulative     Amount `json:"cases_cumulative"`
	CasesNewOnDate      Amount `json:"cases_new_on_date"`
	DeathsCumulative    Amount `json:"deaths_cumulative"`
	DeathsNewOnDate     Amount `json:"deaths_new_on_date"`
}

// ViewModel is everything the presentation layer renders for one selection.
// It is rebuilt from scratch on every cycle and must not be mutated.
type ViewModel struct {
	Selection SelectionState `json:"selection"`
	Map       MapLayer       `json:"map"`
	Series    Series         `json:"series"`
	Cards     Cards          `json:"cards"`
}

// DeriveView computes the view for a selection. It has no hidden state: the
// same dataset and selection always yield an identical ViewModel.
func DeriveView(ds *Dataset, sel SelectionState) ViewModel {
	day := Day(sel.Date)
	sel.Date = day
	return ViewModel{
		Selection: sel,
		Map:       deriveMap(ds, day, sel.Metric),
		Series:    deriveSeries(ds, sel),
		Cards:     deriveCards(ds, sel.Region, day),
	}
}

func deriveMap(ds *Dataset, day time.Time, metric MetricKind) MapLayer {
	layer := MapLayer{
		Date:  day,
		Scale: ColorScale{Metric: metric, Title: metric.Label(), Empty: true},
		Cells: make([]MapCell, 0, len(ds.MapRegions())),
	}
	for _, code := range ds.MapRegions() {
		cell := MapCell{
			Region: code,
			Value:  NotApplicable,
			Hover:  HoverFields{Name: ds.RegionName(code), Date: day},
		}
		if rec, ok := ds.RegionRecord(code, day); ok {
			v := metric.Of(rec)
			cell.Value = Some(v)
			cell.Hover.CasesCumulative = Some(rec.CasesCumulative)
			cell.Hover.CasesNew = Some(rec.CasesNew)
			cell.Hover.DeathsCumulative = Some(rec.DeathsCumulative)
			cell.Hover.DeathsNew = Some(rec.DeathsNew)
			if layer.Scale.Empty || v < layer.Scale.Min {
				layer.Scale.Min = v
			}
			if layer.Scale.Empty || v > layer.Scale.Max {
				layer.Scale.Max = v
			}
			layer.Scale.Empty = false
		}
		layer.Cells = append(layer.Cells, cell)
	}
	return layer
}

func deriveSeries(ds *Dataset, sel SelectionState) Series {
	rows := ds.seriesFor(sel.Region)
	sorted := make([]Record, 0, len(rows))
	for _, rec := range rows {
		if rec.Date.After(sel.Date) {
			continue
		}
		sorted = append(sorted, rec)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	points := make([]SeriesPoint, len(sorted))
	for i, rec := range sorted {
		points[i] = SeriesPoint{Date: rec.Date, Value: sel.Metric.Of(rec)}
	}
	return Series{
		Region:    sel.Region,
		Metric:    sel.Metric,
		Shape:     sel.Metric.Shape(),
		AxisTitle: sel.Metric.Label(),
		Points:    points,
	}
}

func deriveCards(ds *Dataset, region RegionSelector, day time.Time) Cards {
	cards := Cards{}
	rec, ok := ds.lookup(region, day)
	if !ok {
		return cards
	}
	if region.IsNational() {
		cards.RecoveredCumulative = rec.RecoveredNew
		cards.ActiveFollowUp = rec.ActiveFollowUp
	}
	cards.CasesCumulative = Some(rec.CasesCumulative)
	cards.CasesNewOnDate = Some(rec.CasesNew)
	cards.DeathsCumulative = Some(rec.DeathsCumulative)
	cards.DeathsNewOnDate = Some(rec.DeathsNew)
	return cards
}
