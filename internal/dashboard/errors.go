package dashboard

import "errors"

var (
	// ErrOutOfRangeDate rejects a date outside the dataset span.
	ErrOutOfRangeDate = errors.New("dashboard: date out of range")
	// ErrUnknownRegion marks a map click on a code absent from the geometry.
	ErrUnknownRegion = errors.New("dashboard: unknown region")
	// ErrUnknownMetric rejects a metric key that is not declared.
	ErrUnknownMetric = errors.New("dashboard: unknown metric")
	// ErrInvalidEvent rejects an event whose payload does not match its cause.
	ErrInvalidEvent = errors.New("dashboard: invalid event")
	// ErrDatasetInvariant reports a dataset that violates its load contract.
	ErrDatasetInvariant = errors.New("dashboard: dataset invariant violated")
	// ErrSessionClosed is returned when dispatching to a closed session.
	ErrSessionClosed = errors.New("dashboard: session closed")
)
