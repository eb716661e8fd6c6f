package dashboard

// Cause identifies which control fired an evaluation cycle.
type Cause string

// Causes emitted by the presentation layer.
const (
	CauseDate   Cause = "date"
	CauseMetric Cause = "metric"
	CauseMap    Cause = "map"
	CauseReset  Cause = "reset"
)

// Valid reports whether c is a known cause.
func (c Cause) Valid() bool {
	switch c {
	case CauseDate, CauseMetric, CauseMap, CauseReset:
		return true
	}
	return false
}

// Cycle is the explicit record of one evaluation pass: the ordered causes that
// fired it and the map click payload, if any. Event.Cycle, used by the HTTP
// event intake and the session loop, always records exactly one cause per
// cycle. Triggered stays a list so ResolveRegion has a defined answer when a
// caller batches several controls into one pass: the first cause decides.
type Cycle struct {
	Triggered []Cause
	Click     *RegionCode
}

// Primary returns the first recorded cause.
func (c Cycle) Primary() (Cause, bool) {
	if len(c.Triggered) == 0 {
		return "", false
	}
	return c.Triggered[0], true
}

// ResolveRegion decides the next region for a cycle that involves the region
// controls. A click wins unless the reset control itself fired the cycle;
// every other case falls back to the national aggregate. The decision is made
// on the recorded cause only, so repeated clicks on the same region still
// count as clicks.
func ResolveRegion(cycle Cycle) RegionSelector {
	primary, _ := cycle.Primary()
	if cycle.Click != nil && primary != CauseReset {
		return Region(*cycle.Click)
	}
	return National()
}

// touchesRegion reports whether any recorded cause feeds the region controls.
func (c Cycle) touchesRegion() bool {
	for _, cause := range c.Triggered {
		if cause == CauseMap || cause == CauseReset {
			return true
		}
	}
	return false
}
