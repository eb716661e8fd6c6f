package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service answers stateless view queries, backed by the versioned cache.
// Concurrent identical queries share one derivation.
type Service struct {
	ds      *Dataset
	cache   *Cache
	metrics *Metrics
	group   singleflight.Group
}

// NewService wires a dataset with an optional cache and metrics.
func NewService(ds *Dataset, cache *Cache, metrics *Metrics) *Service {
	return &Service{ds: ds, cache: cache, metrics: metrics}
}

// Dataset returns the dataset served by the service.
func (s *Service) Dataset() *Dataset { return s.ds }

// Validate checks a selection against the dataset.
func (s *Service) Validate(sel SelectionState) error {
	if !sel.Metric.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMetric, int(sel.Metric))
	}
	span := s.ds.DateRange()
	if !span.Contains(sel.Date) {
		return fmt.Errorf("%w: %s", ErrOutOfRangeDate, sel.Date.Format(DateLayout))
	}
	if !sel.Region.IsNational() && !s.ds.HasGeometry(sel.Region.Code()) {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, sel.Region.Code())
	}
	return nil
}

// View returns the derived view for a selection.
func (s *Service) View(ctx context.Context, sel SelectionState) (ViewModel, error) {
	sel.Date = Day(sel.Date)
	if err := s.Validate(sel); err != nil {
		return ViewModel{}, err
	}

	key := keyView(s.ds.Version(), sel)
	res, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.fetch(ctx, key, sel)
	})
	if err != nil {
		return ViewModel{}, err
	}
	return res.(ViewModel), nil
}

func (s *Service) fetch(ctx context.Context, base string, sel SelectionState) (ViewModel, error) {
	loader := func(context.Context) (interface{}, error) {
		start := time.Now()
		vm := DeriveView(s.ds, sel)
		s.metrics.observeBuild(time.Since(start))
		return vm, nil
	}
	if s.cache == nil {
		value, _ := loader(ctx)
		return value.(ViewModel), nil
	}
	key, err := s.cache.BuildKey(ctx, base)
	if err != nil {
		return ViewModel{}, err
	}
	var vm ViewModel
	hit, err := s.cache.FetchJSON(ctx, key, &vm, loader)
	if err != nil {
		return ViewModel{}, err
	}
	if hit {
		s.metrics.recordCacheHit(sel.Metric)
	} else {
		s.metrics.recordCacheMiss(sel.Metric)
	}
	return vm, nil
}

// Warm derives and caches every metric for the national aggregate and each
// selectable region with data on one date. It returns the number of views
// touched.
func (s *Service) Warm(ctx context.Context, day time.Time) (int, error) {
	selectors := []RegionSelector{National()}
	for _, code := range s.ds.Regions() {
		if s.ds.HasGeometry(code) {
			selectors = append(selectors, Region(code))
		}
	}
	warmed := 0
	for _, region := range selectors {
		for _, metric := range MetricKinds() {
			if err := ctx.Err(); err != nil {
				return warmed, err
			}
			if _, err := s.View(ctx, SelectionState{Date: day, Metric: metric, Region: region}); err != nil {
				return warmed, err
			}
			warmed++
		}
	}
	return warmed, nil
}
