package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/covidboard/covidboard/internal/dashboard"
	jobmetrics "github.com/covidboard/covidboard/internal/jobs"
)

func testDataset(t *testing.T) *dashboard.Dataset {
	t.Helper()
	d1 := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	ds, err := dashboard.NewDataset(
		[]dashboard.Record{
			{Region: "SP", Date: d1, CasesNew: 10, CasesCumulative: 10},
			{Region: "SP", Date: d2, CasesNew: 5, CasesCumulative: 15},
			{Region: "RJ", Date: d2, CasesNew: 3, CasesCumulative: 3},
		},
		[]dashboard.Record{
			{Date: d1, CasesNew: 10, CasesCumulative: 10},
			{Date: d2, CasesNew: 8, CasesCumulative: 18},
		},
		nil, nil,
	)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	return ds
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestViewWarmupJobWarmsLatestDay(t *testing.T) {
	mr, client := newRedis(t)
	service := dashboard.NewService(testDataset(t), dashboard.NewCache(client, time.Minute), nil)
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewViewWarmupJob(service, nil, metrics)

	task, err := NewViewWarmupTask("")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	// national + SP + RJ, four metrics each, plus the version key
	keys := mr.Keys()
	if len(keys) != 13 {
		t.Fatalf("expected 12 cached views and the version key, got %d: %v", len(keys), keys)
	}
}

func TestViewWarmupJobRejectsBadPayload(t *testing.T) {
	service := dashboard.NewService(testDataset(t), nil, nil)
	job := NewViewWarmupJob(service, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskViewWarmup, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for bad json, got %v", err)
	}

	task, _ := NewViewWarmupTask("2030-01-01")
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for out-of-range date, got %v", err)
	}

	task, _ = NewViewWarmupTask("01/03/2021")
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for malformed date, got %v", err)
	}
}

func TestViewWarmupJobNotConfigured(t *testing.T) {
	var job *ViewWarmupJob
	if err := job.Handle(context.Background(), asynq.NewTask(TaskViewWarmup, nil)); err == nil {
		t.Fatalf("expected error for nil job")
	}
}

func TestCacheBumpJob(t *testing.T) {
	_, client := newRedis(t)
	cache := dashboard.NewCache(client, time.Minute)
	before, err := cache.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	job := NewCacheBumpJob(cache, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, _ := NewCacheBumpTask("dataset reloaded")
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("bump: %v", err)
	}
	after, err := cache.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if after != before+1 {
		t.Fatalf("expected version %d, got %d", before+1, after)
	}
}

type failingBumper struct{}

func (failingBumper) Bump(context.Context) (int64, error) { return 0, errors.New("redis down") }

func TestCacheBumpJobPropagatesError(t *testing.T) {
	job := NewCacheBumpJob(failingBumper{}, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	if err := job.Handle(context.Background(), asynq.NewTask(TaskCacheBump, nil)); err == nil {
		t.Fatalf("expected bump error")
	}
}

func TestTaskPayloads(t *testing.T) {
	task, err := NewViewWarmupTask("2021-03-02")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != TaskViewWarmup {
		t.Fatalf("unexpected type %s", task.Type())
	}
	var payload ViewWarmupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.Date != "2021-03-02" {
		t.Fatalf("unexpected payload %s", task.Payload())
	}
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{"no inspector", nil, http.StatusOK, `{"queue":"default","pending":0}`},
		{"pending", stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 7}}, http.StatusOK, `{"queue":"default","pending":7}`},
		{"redis down", stubInspector{err: errors.New("down")}, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if tc.body != "" && rr.Body.String() != tc.body {
				t.Fatalf("unexpected body %s", rr.Body.String())
			}
		})
	}
}

func TestNewServeMuxSkipsIncompleteHandlers(t *testing.T) {
	called := false
	mux := newServeMux([]TaskHandler{
		{Type: "", Handler: func(context.Context, *asynq.Task) error { return nil }},
		{Type: TaskCacheBump},
		{Type: TaskViewWarmup, Handler: func(context.Context, *asynq.Task) error { called = true; return nil }},
	})
	if err := mux.ProcessTask(context.Background(), asynq.NewTask(TaskViewWarmup, nil)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !called {
		t.Fatalf("registered handler not invoked")
	}
}
