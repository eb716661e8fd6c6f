package dashboardhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/covidboard/covidboard/internal/dashboard"
	"github.com/covidboard/covidboard/internal/dashboard/ui"
	"github.com/covidboard/covidboard/internal/platform/httpx"
	"github.com/covidboard/covidboard/internal/view"
)

const testSecret = "test-secret"

func testDataset(t *testing.T) *dashboard.Dataset {
	t.Helper()
	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	square := func(x float64) dashboard.Boundary {
		return dashboard.Boundary{dashboard.Polygon{dashboard.Ring{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}}}
	}
	var regional, national []dashboard.Record
	var spTotal, rjTotal int64
	for i := 0; i < 5; i++ {
		day := start.AddDate(0, 0, i)
		sp, rj := int64(100+i), int64(40+i)
		spTotal += sp
		rjTotal += rj
		regional = append(regional,
			dashboard.Record{Region: "SP", Date: day, CasesNew: sp, CasesCumulative: spTotal, DeathsNew: 2, DeathsCumulative: int64(2 * (i + 1))},
			dashboard.Record{Region: "RJ", Date: day, CasesNew: rj, CasesCumulative: rjTotal, DeathsNew: 1, DeathsCumulative: int64(i + 1)},
		)
		national = append(national, dashboard.Record{
			Date:             day,
			CasesNew:         sp + rj,
			CasesCumulative:  spTotal + rjTotal,
			DeathsNew:        3,
			DeathsCumulative: int64(3 * (i + 1)),
			RecoveredNew:     dashboard.Some(10),
			ActiveFollowUp:   dashboard.Some(int64(50 + i)),
		})
	}
	ds, err := dashboard.NewDataset(regional, national,
		dashboard.Geometry{"SP": square(0), "RJ": square(1), "DF": square(2)},
		map[dashboard.RegionCode]string{"SP": "São Paulo", "RJ": "Rio de Janeiro"})
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	return ds
}

type testEnv struct {
	handler  *Handler
	registry *dashboard.Registry
	router   chi.Router
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	ds := testDataset(t)
	registry := dashboard.NewRegistry(ds, dashboard.RegistryConfig{
		DefaultDate:   time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		DefaultMetric: dashboard.CumulativeCases,
	})
	t.Cleanup(func() {
		registry.Sweep(time.Now().Add(24 * time.Hour))
	})
	service := dashboard.NewService(ds, nil, nil)
	handler := NewHandler(nil, registry, service, templates, ui.Options{}, CookieConfig{Name: "sid"}, testSecret)
	handler.WithNow(func() time.Time { return time.Date(2021, 3, 5, 12, 0, 0, 0, time.UTC) })
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return testEnv{handler: handler, registry: registry, router: router}
}

// open performs the first page load and returns the session cookie.
func (e testEnv) open(t *testing.T) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func (e testEnv) post(t *testing.T, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	if form.Get(csrfFormField) == "" {
		form.Set(csrfFormField, e.handler.csrf.token(cookie.Value))
	}
	req := httptest.NewRequest(http.MethodPost, "/dashboard/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e testEnv) current(t *testing.T, cookie *http.Cookie) dashboard.SelectionState {
	t.Helper()
	sess, ok := e.registry.Get(cookie.Value)
	if !ok {
		t.Fatalf("session %s missing", cookie.Value)
	}
	return sess.Current()
}

func TestDashboardRendersNationalDefaults(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"BRASIL", `data-region="SP"`, `data-region="DF"`, `value="2021-03-05"`, `data-shape="line"`, "Casos confirmados"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in page", want)
		}
	}
	if env.registry.Len() != 1 {
		t.Fatalf("expected one session, got %d", env.registry.Len())
	}
}

func TestDashboardReusesSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("existing session must not issue a new cookie")
	}
	if env.registry.Len() != 1 {
		t.Fatalf("expected one session, got %d", env.registry.Len())
	}
}

func TestEventMetricChangeRedirects(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	rr := env.post(t, cookie, url.Values{"cause": {"metric"}, "metric": {"new_deaths"}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %s", rr.Code, rr.Header().Get("Location"))
	}
	if got := env.current(t, cookie).Metric; got != dashboard.NewDeaths {
		t.Fatalf("expected new deaths, got %v", got)
	}
}

func TestEventOutOfRangeDateKeepsState(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	before := env.current(t, cookie)

	rr := env.post(t, cookie, url.Values{"cause": {"date"}, "date": {"2030-01-01"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "notice="+noticeOutOfRange) {
		t.Fatalf("expected out-of-range notice, got %s", loc)
	}
	if after := env.current(t, cookie); !after.Date.Equal(before.Date) {
		t.Fatalf("state changed on rejected date")
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard?notice="+noticeOutOfRange, nil)
	req.AddCookie(cookie)
	page := httptest.NewRecorder()
	env.router.ServeHTTP(page, req)
	if !strings.Contains(page.Body.String(), "Data fora do intervalo") || !strings.Contains(page.Body.String(), "01/03/2021") {
		t.Fatalf("expected notice on page")
	}
}

func TestEventMapClickAndReset(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)

	env.post(t, cookie, url.Values{"cause": {"map"}, "region": {"sp"}})
	if got := env.current(t, cookie).Region; got != dashboard.Region("SP") {
		t.Fatalf("expected SP, got %v", got)
	}

	env.post(t, cookie, url.Values{"cause": {"map"}, "region": {"ZZ"}})
	if got := env.current(t, cookie).Region; got != dashboard.Region("SP") {
		t.Fatalf("unknown region must be ignored, got %v", got)
	}

	env.post(t, cookie, url.Values{"cause": {"reset"}})
	if got := env.current(t, cookie).Region; !got.IsNational() {
		t.Fatalf("expected national after reset, got %v", got)
	}
}

func TestEventRejectsBadCSRF(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	rr := env.post(t, cookie, url.Values{"cause": {"reset"}, csrfFormField: {"forged"}})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestEventInvalidForm(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	for _, form := range []url.Values{
		{"cause": {"zoom"}},
		{"cause": {"date"}},
		{"cause": {"date"}, "date": {"01/03/2021"}},
		{"cause": {"metric"}, "metric": {"recovered"}},
		{"cause": {"map"}, "region": {"S P"}},
	} {
		rr := env.post(t, cookie, form)
		if loc := rr.Header().Get("Location"); !strings.Contains(loc, "notice="+noticeInvalid) {
			t.Fatalf("form %v: expected invalid notice, got %d %s", form, rr.Code, loc)
		}
	}
}

func TestEventWithoutSessionStartsOver(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/dashboard/events", strings.NewReader("cause=reset"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther || len(rr.Result().Cookies()) == 0 {
		t.Fatalf("expected redirect with a fresh cookie, got %d", rr.Code)
	}
}

func TestViewJSON(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/view?metric=new_cases&region=rj&date=2021-03-03", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var vm dashboard.ViewModel
	if err := json.Unmarshal(rr.Body.Bytes(), &vm); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if vm.Selection.Region != dashboard.Region("RJ") || vm.Series.Shape != dashboard.ShapeBars {
		t.Fatalf("unexpected selection %+v", vm.Selection)
	}
	if len(vm.Series.Points) != 3 || vm.Cards.CasesNewOnDate.Value != 42 {
		t.Fatalf("unexpected series/cards %+v %+v", vm.Series.Points, vm.Cards)
	}
	if !env.current(t, cookie).Region.IsNational() {
		t.Fatalf("query must not mutate the session selection")
	}
}

func TestViewJSONErrors(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	cases := map[string]int{
		"/api/dashboard/view?date=2030-01-01": http.StatusUnprocessableEntity,
		"/api/dashboard/view?region=ZZ":       http.StatusUnprocessableEntity,
		"/api/dashboard/view?metric=foo":      http.StatusBadRequest,
		"/api/dashboard/view?date=yesterday":  http.StatusBadRequest,
	}
	for target, status := range cases {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		if rr.Code != status {
			t.Fatalf("%s: expected %d, got %d", target, status, rr.Code)
		}
		var problem httpx.ProblemDetail
		if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil || problem.Status != status {
			t.Fatalf("%s: expected problem body, got %s", target, rr.Body.String())
		}
	}
}

func TestCSVExport(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	req := httptest.NewRequest(http.MethodGet, "/dashboard/export.csv?region=SP", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "covid_SP_cumulative_cases_2021-03-05.csv") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	if !strings.Contains(rr.Body.String(), "region,SP") {
		t.Fatalf("expected region row in csv")
	}
}

func TestCSVExportRateLimited(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.open(t)
	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/export.csv", nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the limit, got %d", last)
	}
}

func TestRootRedirects(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
}
