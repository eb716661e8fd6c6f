package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for dashboard dates.
const DateLayout = "2006-01-02"

// RegionCode identifies a first-level administrative region (e.g. "SP").
type RegionCode string

// NationalCode is the sentinel region carried by national aggregate records.
const NationalCode RegionCode = ""

// RegionSelector is either the national aggregate or a single region. The zero
// value selects the national aggregate.
type RegionSelector struct {
	code RegionCode
}

// National selects the national aggregate series.
func National() RegionSelector {
	return RegionSelector{}
}

// Region selects a single region.
func Region(code RegionCode) RegionSelector {
	return RegionSelector{code: code}
}

// IsNational reports whether the selector points at the national aggregate.
func (s RegionSelector) IsNational() bool {
	return s.code == NationalCode
}

// Code returns the selected region code, empty for the national aggregate.
func (s RegionSelector) Code() RegionCode {
	return s.code
}

// String implements fmt.Stringer.
func (s RegionSelector) String() string {
	if s.IsNational() {
		return "national"
	}
	return string(s.code)
}

// MarshalJSON encodes the selector as null (national) or the region code.
func (s RegionSelector) MarshalJSON() ([]byte, error) {
	if s.IsNational() {
		return []byte("null"), nil
	}
	return json.Marshal(string(s.code))
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (s *RegionSelector) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = National()
		return nil
	}
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	*s = Region(RegionCode(code))
	return nil
}

// MetricKind is one of the four selectable quantities.
type MetricKind int

// Supported metric kinds.
const (
	NewCases MetricKind = iota
	CumulativeCases
	NewDeaths
	CumulativeDeaths
)

// ChartShape is the rendering hint attached to the series.
type ChartShape int

// Chart shapes.
const (
	ShapeBars ChartShape = iota
	ShapeLine
)

func (s ChartShape) String() string {
	if s == ShapeLine {
		return "line"
	}
	return "bars"
}

// MarshalJSON encodes the shape by name.
func (s ChartShape) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a shape name.
func (s *ChartShape) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "line":
		*s = ShapeLine
	case "bars":
		*s = ShapeBars
	default:
		return fmt.Errorf("dashboard: unknown chart shape %q", name)
	}
	return nil
}

type metricSpec struct {
	key   string
	label string
	shape ChartShape
	value func(Record) int64
}

// metricSpecs is indexed by MetricKind; every kind has exactly one entry.
var metricSpecs = [...]metricSpec{
	NewCases: {
		key:   "new_cases",
		label: "Casos Novos",
		shape: ShapeBars,
		value: func(r Record) int64 { return r.CasesNew },
	},
	CumulativeCases: {
		key:   "cumulative_cases",
		label: "Casos Acumulados",
		shape: ShapeLine,
		value: func(r Record) int64 { return r.CasesCumulative },
	},
	NewDeaths: {
		key:   "new_deaths",
		label: "Óbitos Novos",
		shape: ShapeBars,
		value: func(r Record) int64 { return r.DeathsNew },
	},
	CumulativeDeaths: {
		key:   "cumulative_deaths",
		label: "Óbitos Acumulados",
		shape: ShapeLine,
		value: func(r Record) int64 { return r.DeathsCumulative },
	},
}

// MetricKinds lists every metric in display order.
func MetricKinds() []MetricKind {
	return []MetricKind{NewCases, CumulativeCases, NewDeaths, CumulativeDeaths}
}

// ParseMetric resolves a metric key such as "cumulative_cases".
func ParseMetric(key string) (MetricKind, error) {
	key = strings.TrimSpace(key)
	for i, spec := range metricSpecs {
		if spec.key == key {
			return MetricKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, key)
}

// Valid reports whether m is one of the declared kinds.
func (m MetricKind) Valid() bool {
	return m >= 0 && int(m) < len(metricSpecs)
}

func (m MetricKind) spec() metricSpec {
	if !m.Valid() {
		panic(fmt.Sprintf("dashboard: invalid metric kind %d", int(m)))
	}
	return metricSpecs[m]
}

// Key returns the stable identifier used in forms and cache keys.
func (m MetricKind) Key() string { return m.spec().key }

// Label returns the human title used for axes and the color bar.
func (m MetricKind) Label() string { return m.spec().label }

// Shape returns the chart shape policy: cumulative kinds trend as a line,
// per-day kinds render as discrete bars.
func (m MetricKind) Shape() ChartShape { return m.spec().shape }

// Cumulative reports whether the metric is a running total.
func (m MetricKind) Cumulative() bool { return m.Shape() == ShapeLine }

// Of extracts the metric value from a record.
func (m MetricKind) Of(r Record) int64 { return m.spec().value(r) }

func (m MetricKind) String() string {
	if !m.Valid() {
		return "metric(" + strconv.Itoa(int(m)) + ")"
	}
	return m.Key()
}

// MarshalJSON encodes the metric by key.
func (m MetricKind) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMetric, int(m))
	}
	return json.Marshal(m.Key())
}

// UnmarshalJSON decodes a metric key.
func (m *MetricKind) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err != nil {
		return err
	}
	parsed, err := ParseMetric(key)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Amount is a count that may be intentionally absent. The zero value is the
// not-applicable sentinel.
type Amount struct {
	Value int64
	Valid bool
}

// NotApplicable marks a field that has no value for the current selection.
var NotApplicable = Amount{}

// Some wraps a present value.
func Some(v int64) Amount {
	return Amount{Value: v, Valid: true}
}

// IsNotApplicable reports whether a is the sentinel.
func (a Amount) IsNotApplicable() bool {
	return !a.Valid
}

// MarshalJSON encodes the sentinel as null.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(a.Value, 10)), nil
}

// UnmarshalJSON decodes null as the sentinel.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = NotApplicable
		return nil
	}
	v, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return err
	}
	*a = Some(v)
	return nil
}

// Record is one row of the daily series.
type Record struct {
	Region           RegionCode `json:"region"`
	Date             time.Time  `json:"date"`
	CasesNew         int64      `json:"cases_new"`
	CasesCumulative  int64      `json:"cases_cumulative"`
	DeathsNew        int64      `json:"deaths_new"`
	DeathsCumulative int64      `json:"deaths_cumulative"`
	// RecoveredNew and ActiveFollowUp are only published on national rows.
	RecoveredNew   Amount `json:"recovered_new"`
	ActiveFollowUp Amount `json:"active_follow_up"`
}

// Day truncates t to a UTC calendar day so it can be used as a map key.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a DateLayout string into a UTC day.
func ParseDay(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}
