package dashboard

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Point is a longitude/latitude pair.
type Point [2]float64

// Ring is a closed polygon ring.
type Ring []Point

// Polygon is an outer ring followed by optional holes.
type Polygon []Ring

// Boundary is the full outline of a region, possibly several polygons.
type Boundary []Polygon

// Geometry maps region codes to their boundary. It is never mutated after load.
type Geometry map[RegionCode]Boundary

// DateRange is an inclusive span of days.
type DateRange struct {
	Min time.Time
	Max time.Time
}

// Contains reports whether d lies within the span.
func (r DateRange) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(r.Min) && !d.After(r.Max)
}

// Clamp moves d into the span. Only used to pick a starting date.
func (r DateRange) Clamp(d time.Time) time.Time {
	d = Day(d)
	if d.Before(r.Min) {
		return r.Min
	}
	if d.After(r.Max) {
		return r.Max
	}
	return d
}

// Dataset is the immutable in-memory table the dashboard reads from. The two
// series are kept apart: national rows are never recomputed from regions.
type Dataset struct {
	byRegion       map[RegionCode][]Record
	regionByDate   map[RegionCode]map[time.Time]Record
	national       []Record
	nationalByDate map[time.Time]Record
	geometry       Geometry
	names          map[RegionCode]string
	regions        []RegionCode
	mapRegions     []RegionCode
	dates          []time.Time
	span           DateRange
	version        string
}

// NewDataset validates the loaded tables and builds lookup indexes. Records are
// stored in the order given.
func NewDataset(byRegion, national []Record, geometry Geometry, names map[RegionCode]string) (*Dataset, error) {
	if len(national) == 0 {
		return nil, fmt.Errorf("%w: national series is empty", ErrDatasetInvariant)
	}
	ds := &Dataset{
		byRegion:       make(map[RegionCode][]Record),
		regionByDate:   make(map[RegionCode]map[time.Time]Record),
		nationalByDate: make(map[time.Time]Record, len(national)),
		geometry:       geometry,
		names:          make(map[RegionCode]string, len(names)),
	}
	if ds.geometry == nil {
		ds.geometry = Geometry{}
	}
	for code, name := range names {
		ds.names[code] = name
	}

	dateSet := make(map[time.Time]struct{})
	for _, rec := range national {
		rec.Date = Day(rec.Date)
		rec.Region = NationalCode
		if _, dup := ds.nationalByDate[rec.Date]; dup {
			return nil, fmt.Errorf("%w: duplicate national record for %s", ErrDatasetInvariant, rec.Date.Format(DateLayout))
		}
		ds.nationalByDate[rec.Date] = rec
		ds.national = append(ds.national, rec)
		dateSet[rec.Date] = struct{}{}
	}

	for _, rec := range byRegion {
		if rec.Region == NationalCode {
			return nil, fmt.Errorf("%w: regional record without region code", ErrDatasetInvariant)
		}
		rec.Date = Day(rec.Date)
		// Per-region recovered/follow-up figures do not exist.
		rec.RecoveredNew = NotApplicable
		rec.ActiveFollowUp = NotApplicable
		days, ok := ds.regionByDate[rec.Region]
		if !ok {
			days = make(map[time.Time]Record)
			ds.regionByDate[rec.Region] = days
		}
		if _, dup := days[rec.Date]; dup {
			return nil, fmt.Errorf("%w: duplicate record for %s on %s", ErrDatasetInvariant, rec.Region, rec.Date.Format(DateLayout))
		}
		if _, ok := ds.nationalByDate[rec.Date]; !ok {
			return nil, fmt.Errorf("%w: %s has no national record", ErrDatasetInvariant, rec.Date.Format(DateLayout))
		}
		days[rec.Date] = rec
		ds.byRegion[rec.Region] = append(ds.byRegion[rec.Region], rec)
	}

	for code := range ds.byRegion {
		ds.regions = append(ds.regions, code)
	}
	sort.Slice(ds.regions, func(i, j int) bool { return ds.regions[i] < ds.regions[j] })
	for code := range ds.geometry {
		ds.mapRegions = append(ds.mapRegions, code)
	}
	sort.Slice(ds.mapRegions, func(i, j int) bool { return ds.mapRegions[i] < ds.mapRegions[j] })

	for d := range dateSet {
		ds.dates = append(ds.dates, d)
	}
	sort.Slice(ds.dates, func(i, j int) bool { return ds.dates[i].Before(ds.dates[j]) })
	ds.span = DateRange{Min: ds.dates[0], Max: ds.dates[len(ds.dates)-1]}
	ds.version = ds.fingerprint()
	return ds, nil
}

// DateRange returns the inclusive span of known dates.
func (d *Dataset) DateRange() DateRange { return d.span }

// Dates returns the sorted distinct dates. The slice must not be modified.
func (d *Dataset) Dates() []time.Time { return d.dates }

// Regions returns the sorted region codes present in the regional series.
func (d *Dataset) Regions() []RegionCode { return d.regions }

// MapRegions returns the sorted region codes present in the geometry.
func (d *Dataset) MapRegions() []RegionCode { return d.mapRegions }

// Geometry returns the read-only region boundaries.
func (d *Dataset) Geometry() Geometry { return d.geometry }

// HasGeometry reports whether the code has a boundary on the map.
func (d *Dataset) HasGeometry(code RegionCode) bool {
	_, ok := d.geometry[code]
	return ok
}

// RegionName returns a display name, falling back to the code.
func (d *Dataset) RegionName(code RegionCode) string {
	if name, ok := d.names[code]; ok && name != "" {
		return name
	}
	return string(code)
}

// Version is a content fingerprint used to scope cache keys.
func (d *Dataset) Version() string { return d.version }

// RegionRecord looks up the record for a region on a day.
func (d *Dataset) RegionRecord(code RegionCode, day time.Time) (Record, bool) {
	rec, ok := d.regionByDate[code][Day(day)]
	return rec, ok
}

// NationalRecord looks up the national aggregate on a day.
func (d *Dataset) NationalRecord(day time.Time) (Record, bool) {
	rec, ok := d.nationalByDate[Day(day)]
	return rec, ok
}

// lookup resolves the record for the selector on a day.
func (d *Dataset) lookup(sel RegionSelector, day time.Time) (Record, bool) {
	if sel.IsNational() {
		return d.NationalRecord(day)
	}
	return d.RegionRecord(sel.Code(), day)
}

// seriesFor returns the raw rows for the selector in storage order.
func (d *Dataset) seriesFor(sel RegionSelector) []Record {
	if sel.IsNational() {
		return d.national
	}
	return d.byRegion[sel.Code()]
}

func (d *Dataset) fingerprint() string {
	h := xxhash.New()
	write := func(rec Record) {
		_, _ = h.WriteString(string(rec.Region))
		_, _ = h.WriteString(rec.Date.Format(DateLayout))
		for _, v := range []int64{rec.CasesNew, rec.CasesCumulative, rec.DeathsNew, rec.DeathsCumulative} {
			_, _ = h.WriteString(strconv.FormatInt(v, 36))
			_, _ = h.WriteString("|")
		}
		for _, a := range []Amount{rec.RecoveredNew, rec.ActiveFollowUp} {
			if a.IsNotApplicable() {
				_, _ = h.WriteString("~|")
				continue
			}
			_, _ = h.WriteString(strconv.FormatInt(a.Value, 36))
			_, _ = h.WriteString("|")
		}
	}
	for _, day := range d.dates {
		if rec, ok := d.nationalByDate[day]; ok {
			write(rec)
		}
	}
	for _, code := range d.regions {
		days := d.regionByDate[code]
		for _, day := range d.dates {
			if rec, ok := days[day]; ok {
				write(rec)
			}
		}
	}
	for _, code := range d.mapRegions {
		_, _ = h.WriteString("geo:" + string(code) + ":" + d.RegionName(code))
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
