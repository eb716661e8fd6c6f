package dashboardhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/covidboard/covidboard/internal/dashboard"
	"github.com/covidboard/covidboard/internal/dashboard/export"
	"github.com/covidboard/covidboard/internal/dashboard/ui"
	"github.com/covidboard/covidboard/internal/platform/httpx"
	"github.com/covidboard/covidboard/internal/view"
)

const requestTimeout = 2 * time.Second

// Notices carried across the post/redirect/get cycle.
const (
	noticeOutOfRange = "date_out_of_range"
	noticeInvalid    = "invalid_event"
)

// SessionStore resolves the dashboard session bound to a cookie value.
type SessionStore interface {
	GetOrCreate(id string) (*dashboard.Session, bool, error)
}

// ViewService answers stateless view queries.
type ViewService interface {
	View(ctx context.Context, sel dashboard.SelectionState) (dashboard.ViewModel, error)
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// Handler serves the dashboard page, event intake, JSON view and CSV export.
type Handler struct {
	logger    *slog.Logger
	sessions  SessionStore
	service   ViewService
	templates *view.Engine
	page      ui.Options
	cookie    CookieConfig
	csrf      *csrfSigner
	validate  *validator.Validate
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the dashboard HTTP handler.
func NewHandler(logger *slog.Logger, sessions SessionStore, service ViewService, templates *view.Engine, page ui.Options, cookie CookieConfig, csrfSecret string) *Handler {
	if cookie.Name == "" {
		cookie.Name = "covidboard_session"
	}
	if cookie.TTL <= 0 {
		cookie.TTL = 30 * time.Minute
	}
	h := &Handler{
		logger:    logger,
		sessions:  sessions,
		service:   service,
		templates: templates,
		page:      page,
		cookie:    cookie,
		csrf:      newCSRFSigner(csrfSecret),
		validate:  validator.New(),
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(w, r)
	if err != nil {
		h.handleServerError(w, "resolve session", err)
		return
	}

	page, err := ui.BuildPage(sess.Dataset(), sess.View(), h.page)
	if err != nil {
		h.handleServerError(w, "render charts", err)
		return
	}

	viewData := view.TemplateData{
		Title:       "Painel",
		Flash:       noticeFlash(r.URL.Query().Get("notice"), sess.Dataset().DateRange()),
		CSRFToken:   h.csrf.token(sess.ID()),
		CurrentPath: r.URL.Path,
		Data:        page,
	}
	if err := h.templates.Render(w, "pages/dashboard.html", viewData); err != nil {
		h.handleServerError(w, "render dashboard", err)
	}
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, created, err := h.resolveSession(w, r)
	if err != nil {
		h.handleServerError(w, "resolve session", err)
		return
	}
	if created {
		h.redirectDashboard(w, r, "")
		return
	}
	if err := h.csrf.verify(sess.ID(), r.PostFormValue(csrfFormField)); err != nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	form := eventForm{
		Cause:  strings.TrimSpace(r.PostFormValue("cause")),
		Date:   strings.TrimSpace(r.PostFormValue("date")),
		Metric: strings.TrimSpace(r.PostFormValue("metric")),
		Region: strings.ToUpper(strings.TrimSpace(r.PostFormValue("region"))),
	}
	ev, err := h.parseEvent(form)
	if err != nil {
		if h.logger != nil {
			h.logger.Debug("event rejected", slog.Any("error", err))
		}
		h.redirectDashboard(w, r, noticeInvalid)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	outcome, err := sess.Dispatch(ctx, ev)
	switch {
	case err == nil:
		if outcome.Ignored && h.logger != nil {
			h.logger.Debug("map click ignored", slog.String("region", string(ev.Region)), slog.String("session", sess.ID()))
		}
		h.redirectDashboard(w, r, "")
	case errors.Is(err, dashboard.ErrOutOfRangeDate):
		if h.logger != nil {
			h.logger.Info("date rejected", slog.String("date", form.Date), slog.String("session", sess.ID()))
		}
		h.redirectDashboard(w, r, noticeOutOfRange)
	case errors.Is(err, dashboard.ErrInvalidEvent), errors.Is(err, dashboard.ErrUnknownMetric):
		h.redirectDashboard(w, r, noticeInvalid)
	default:
		h.handleServerError(w, "dispatch event", err)
	}
}

func (h *Handler) handleViewJSON(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(w, r)
	if err != nil {
		h.handleServerError(w, "resolve session", err)
		return
	}
	sel, err := h.selectionFromQuery(r.URL.Query(), sess.Current())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vm, err := h.service.View(ctx, sel)
	if err != nil {
		h.respondViewError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vm)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(w, r)
	if err != nil {
		h.handleServerError(w, "resolve session", err)
		return
	}
	sel, err := h.selectionFromQuery(r.URL.Query(), sess.Current())
	if err != nil {
		http.Error(w, "Parâmetro inválido", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	vm, err := h.service.View(ctx, sel)
	if err != nil {
		if errors.Is(err, dashboard.ErrOutOfRangeDate) || errors.Is(err, dashboard.ErrUnknownRegion) {
			http.Error(w, "Seleção fora do conjunto de dados", http.StatusUnprocessableEntity)
			return
		}
		h.handleServerError(w, "load view", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteViewCSV(buf, vm); err != nil {
		h.handleServerError(w, "write view csv", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", export.Filename(vm)))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, error) {
	sess, _, err := h.resolveSession(w, r)
	return sess, err
}

// resolveSession returns the caller's dashboard session, issuing a cookie when
// a new one is created.
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool, error) {
	id := ""
	if cookie, err := r.Cookie(h.cookie.Name); err == nil {
		id = cookie.Value
	}
	sess, created, err := h.sessions.GetOrCreate(id)
	if err != nil {
		return nil, false, err
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.Name,
			Value:    sess.ID(),
			Path:     "/",
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  h.now().Add(h.cookie.TTL),
		})
	}
	return sess, created, nil
}

func (h *Handler) redirectDashboard(w http.ResponseWriter, r *http.Request, notice string) {
	target := "/dashboard"
	if notice != "" {
		target += "?notice=" + url.QueryEscape(notice)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) respondViewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrOutOfRangeDate), errors.Is(err, dashboard.ErrUnknownRegion):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err))
	case errors.Is(err, dashboard.ErrUnknownMetric):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
	case errors.Is(err, context.DeadlineExceeded):
		h.logError("load view", err)
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logError("load view", err)
		httpx.RespondError(w, err)
	}
}

func noticeFlash(notice string, span dashboard.DateRange) *view.Flash {
	switch notice {
	case noticeOutOfRange:
		return &view.Flash{
			Kind: "warning",
			Message: fmt.Sprintf("Data fora do intervalo disponível (%s a %s). A seleção anterior foi mantida.",
				ui.FormatDate(span.Min), ui.FormatDate(span.Max)),
		}
	case noticeInvalid:
		return &view.Flash{Kind: "error", Message: "Não foi possível aplicar a seleção."}
	}
	return nil
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

// HandleDashboardForTest exposes the dashboard page handler for tests.
func (h *Handler) HandleDashboardForTest(w http.ResponseWriter, r *http.Request) {
	h.handleDashboard(w, r)
}

// HandleEventForTest exposes the event handler for tests.
func (h *Handler) HandleEventForTest(w http.ResponseWriter, r *http.Request) { h.handleEvent(w, r) }

// HandleViewJSONForTest exposes the JSON view handler for tests.
func (h *Handler) HandleViewJSONForTest(w http.ResponseWriter, r *http.Request) {
	h.handleViewJSON(w, r)
}

// HandleCSVForTest exposes the CSV handler for tests.
func (h *Handler) HandleCSVForTest(w http.ResponseWriter, r *http.Request) { h.handleCSV(w, r) }
