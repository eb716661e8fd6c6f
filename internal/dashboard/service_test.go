package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	metrics, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	svc := NewService(smallDataset(t), NewCache(client, time.Minute), metrics)
	return svc, mr, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestServiceViewCaches(t *testing.T) {
	svc, mr, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	sel := SelectionState{Date: day("2021-03-04"), Metric: CumulativeCases, Region: Region("SP")}
	vm, err := svc.View(ctx, sel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := DeriveView(svc.Dataset(), sel); vm.Cards != want.Cards {
		t.Fatalf("expected cards %+v got %+v", want.Cards, vm.Cards)
	}
	if misses := testutil.ToFloat64(svc.metrics.cacheMisses.WithLabelValues(CumulativeCases.Key())); misses != 1 {
		t.Fatalf("expected 1 miss got %.0f", misses)
	}

	// Second call should hit cache and decode to the same view.
	cached, err := svc.View(ctx, sel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits := testutil.ToFloat64(svc.metrics.cacheHits.WithLabelValues(CumulativeCases.Key())); hits != 1 {
		t.Fatalf("expected 1 hit got %.0f", hits)
	}
	if len(cached.Series.Points) != len(vm.Series.Points) || cached.Selection != vm.Selection {
		t.Fatalf("cached view differs: %+v", cached.Selection)
	}
	if len(mr.Keys()) < 2 {
		t.Fatalf("expected version and view keys, got %v", mr.Keys())
	}

	// Bumping the cache should force a rebuild.
	if _, err := svc.cache.Bump(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	if _, err := svc.View(ctx, sel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if misses := testutil.ToFloat64(svc.metrics.cacheMisses.WithLabelValues(CumulativeCases.Key())); misses != 2 {
		t.Fatalf("expected rebuild after bump, misses %.0f", misses)
	}
}

func TestServiceViewValidates(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.View(ctx, SelectionState{Date: day("2030-01-01"), Metric: NewCases})
	if !errors.Is(err, ErrOutOfRangeDate) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	_, err = svc.View(ctx, SelectionState{Date: day("2021-03-02"), Metric: NewCases, Region: Region("ZZ")})
	if !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("expected unknown region error, got %v", err)
	}
	_, err = svc.View(ctx, SelectionState{Date: day("2021-03-02"), Metric: MetricKind(8)})
	if !errors.Is(err, ErrUnknownMetric) {
		t.Fatalf("expected unknown metric error, got %v", err)
	}
}

func TestServiceRejectsRegionsOffTheMap(t *testing.T) {
	f := newFixture(day("2021-03-01"), day("2021-03-10"), day("2021-03-05"))
	delete(f.geometry, "AM")
	ds := f.build(t)
	svc := NewService(ds, nil, nil)
	ctx := context.Background()

	sel := SelectionState{Date: day("2021-03-02"), Metric: NewCases, Region: Region("AM")}
	if _, err := svc.View(ctx, sel); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("expected unknown region for AM without boundary, got %v", err)
	}
	initial := SelectionState{Date: day("2021-03-02"), Metric: NewCases, Region: National()}
	if _, err := Apply(ds, initial, MapClicked("AM")); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("expected the session rule to agree, got %v", err)
	}

	// DF has a boundary but no records: reachable by a click, so viewable too.
	sel.Region = Region("DF")
	if _, err := svc.View(ctx, sel); err != nil {
		t.Fatalf("expected DF view, got %v", err)
	}

	warmed, err := svc.Warm(ctx, day("2021-03-05"))
	if err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	// national + RJ, SP for each of the four metrics
	if warmed != 12 {
		t.Fatalf("expected 12 views warmed got %d", warmed)
	}
}

func TestServiceWithoutCache(t *testing.T) {
	svc := NewService(smallDataset(t), nil, nil)
	sel := SelectionState{Date: day("2021-03-02"), Metric: NewDeaths}
	vm, err := svc.View(context.Background(), sel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vm.Series.Shape != ShapeBars {
		t.Fatalf("expected bars got %v", vm.Series.Shape)
	}
}

func TestServiceWarm(t *testing.T) {
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	warmed, err := svc.Warm(context.Background(), day("2021-03-05"))
	if err != nil {
		t.Fatalf("warm failed: %v", err)
	}
	// national + AM, RJ, SP for each of the four metrics
	if warmed != 16 {
		t.Fatalf("expected 16 views warmed got %d", warmed)
	}
	if misses := testutil.ToFloat64(svc.metrics.cacheMisses.WithLabelValues(NewCases.Key())); misses != 4 {
		t.Fatalf("expected 4 new case misses got %.0f", misses)
	}
}

func TestCacheListenForInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bumps := make(chan int64, 4)
	if err := cache.ListenForInvalidation(ctx, "", func(v int64) { bumps <- v }); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, err := cache.Version(ctx); err != nil {
		t.Fatalf("version: %v", err)
	}
	ver, err := cache.Bump(ctx)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	select {
	case got := <-bumps:
		if got != ver {
			t.Fatalf("expected version %d got %d", ver, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation received")
	}
}

func TestNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	second.ObserveCycle(CauseMap, OutcomeApplied, time.Millisecond)
	if got := testutil.ToFloat64(first.cycles.WithLabelValues("map", OutcomeApplied)); got != 1 {
		t.Fatalf("expected shared counter, got %.0f", got)
	}
}
