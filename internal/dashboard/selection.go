package dashboard

import (
	"fmt"
	"time"
)

// SelectionState holds the three selection axes of one dashboard session.
type SelectionState struct {
	Date   time.Time      `json:"date"`
	Metric MetricKind     `json:"metric"`
	Region RegionSelector `json:"region"`
}

// NewSelection builds the initial state: the given date moved into the dataset
// span, the given metric and the national aggregate.
func NewSelection(ds *Dataset, date time.Time, metric MetricKind) (SelectionState, error) {
	if !metric.Valid() {
		return SelectionState{}, fmt.Errorf("%w: %d", ErrUnknownMetric, int(metric))
	}
	return SelectionState{
		Date:   ds.DateRange().Clamp(date),
		Metric: metric,
		Region: National(),
	}, nil
}

// Event is a user interaction emitted by the presentation layer. Only the
// payload field matching Cause is read.
type Event struct {
	Cause  Cause
	Date   time.Time
	Metric MetricKind
	Region RegionCode
}

// DateChanged builds a date selection event.
func DateChanged(d time.Time) Event { return Event{Cause: CauseDate, Date: Day(d)} }

// MetricChanged builds a metric selection event.
func MetricChanged(m MetricKind) Event { return Event{Cause: CauseMetric, Metric: m} }

// MapClicked builds a map click event.
func MapClicked(code RegionCode) Event { return Event{Cause: CauseMap, Region: code} }

// ResetClicked builds a reset event from the region label control.
func ResetClicked() Event { return Event{Cause: CauseReset} }

// Cycle records the event as the single cause of an evaluation pass.
func (e Event) Cycle() Cycle {
	cycle := Cycle{Triggered: []Cause{e.Cause}}
	if e.Cause == CauseMap {
		code := e.Region
		cycle.Click = &code
	}
	return cycle
}

// Apply produces the next state from the current one and an event. On error
// the returned state is the unchanged input.
func Apply(ds *Dataset, state SelectionState, ev Event) (SelectionState, error) {
	next := state
	switch ev.Cause {
	case CauseDate:
		if ev.Date.IsZero() {
			return state, fmt.Errorf("%w: date event without date", ErrInvalidEvent)
		}
		span := ds.DateRange()
		if !span.Contains(ev.Date) {
			return state, fmt.Errorf("%w: %s not in [%s, %s]", ErrOutOfRangeDate,
				ev.Date.Format(DateLayout), span.Min.Format(DateLayout), span.Max.Format(DateLayout))
		}
		next.Date = Day(ev.Date)
	case CauseMetric:
		if !ev.Metric.Valid() {
			return state, fmt.Errorf("%w: %d", ErrUnknownMetric, int(ev.Metric))
		}
		next.Metric = ev.Metric
	case CauseMap:
		if ev.Region == NationalCode {
			return state, fmt.Errorf("%w: map click without region", ErrInvalidEvent)
		}
		if !ds.HasGeometry(ev.Region) {
			return state, fmt.Errorf("%w: %s", ErrUnknownRegion, ev.Region)
		}
	case CauseReset:
	default:
		return state, fmt.Errorf("%w: cause %q", ErrInvalidEvent, ev.Cause)
	}

	cycle := ev.Cycle()
	if cycle.touchesRegion() {
		next.Region = ResolveRegion(cycle)
	}
	return next, nil
}
