package dashboardhttp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// eventForm is the payload posted by the dashboard controls.
type eventForm struct {
	Cause  string `validate:"required,oneof=date metric map reset"`
	Date   string `validate:"required_if=Cause date,omitempty,datetime=2006-01-02"`
	Metric string `validate:"required_if=Cause metric,omitempty,oneof=new_cases cumulative_cases new_deaths cumulative_deaths"`
	Region string `validate:"required_if=Cause map,omitempty,alphanum,max=16"`
}

const nationalParam = "national"

func (h *Handler) parseEvent(form eventForm) (dashboard.Event, error) {
	if err := h.validate.Struct(form); err != nil {
		return dashboard.Event{}, fieldErrors(err)
	}
	switch dashboard.Cause(form.Cause) {
	case dashboard.CauseDate:
		day, err := dashboard.ParseDay(form.Date)
		if err != nil {
			return dashboard.Event{}, validationError{field: "date"}
		}
		return dashboard.DateChanged(day), nil
	case dashboard.CauseMetric:
		metric, err := dashboard.ParseMetric(form.Metric)
		if err != nil {
			return dashboard.Event{}, validationError{field: "metric"}
		}
		return dashboard.MetricChanged(metric), nil
	case dashboard.CauseMap:
		return dashboard.MapClicked(dashboard.RegionCode(form.Region)), nil
	case dashboard.CauseReset:
		return dashboard.ResetClicked(), nil
	}
	return dashboard.Event{}, validationError{field: "cause"}
}

// selectionFromQuery overlays the date, metric and region query parameters on
// the session's current selection. Absent parameters keep the current value.
func (h *Handler) selectionFromQuery(q url.Values, current dashboard.SelectionState) (dashboard.SelectionState, error) {
	sel := current
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		day, err := dashboard.ParseDay(raw)
		if err != nil {
			return dashboard.SelectionState{}, validationError{field: "date"}
		}
		sel.Date = day
	}
	if raw := strings.TrimSpace(q.Get("metric")); raw != "" {
		metric, err := dashboard.ParseMetric(raw)
		if err != nil {
			return dashboard.SelectionState{}, validationError{field: "metric"}
		}
		sel.Metric = metric
	}
	if raw := strings.TrimSpace(q.Get("region")); raw != "" {
		if strings.EqualFold(raw, nationalParam) {
			sel.Region = dashboard.National()
		} else {
			code := strings.ToUpper(raw)
			if err := h.validate.Var(code, "alphanum,max=16"); err != nil {
				return dashboard.SelectionState{}, validationError{field: "region"}
			}
			sel.Region = dashboard.Region(dashboard.RegionCode(code))
		}
	}
	return sel, nil
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return fmt.Sprintf("invalid %s", v.field)
}

func fieldErrors(err error) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err
	}
	fields := make([]string, 0, len(vErrs))
	for _, fieldErr := range vErrs {
		fields = append(fields, strings.ToLower(fieldErr.Field()))
	}
	return validationError{field: strings.Join(fields, ",")}
}
