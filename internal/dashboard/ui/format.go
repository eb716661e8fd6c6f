package ui

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// Placeholder is rendered for not-applicable values.
const Placeholder = "-"

// DisplayDateLayout is the dd/mm/yyyy layout used on screen.
const DisplayDateLayout = "02/01/2006"

var printer = message.NewPrinter(language.BrazilianPortuguese)

// FormatCount formats an integer with pt-BR digit grouping.
func FormatCount(v int64) string {
	return printer.Sprintf("%d", v)
}

// FormatAmount formats a value or returns the placeholder for the sentinel.
func FormatAmount(a dashboard.Amount) string {
	if a.IsNotApplicable() {
		return Placeholder
	}
	return FormatCount(a.Value)
}

// FormatDate renders a day as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.Format(DisplayDateLayout)
}

// MetricOptionLabel is the selector wording for a metric.
func MetricOptionLabel(m dashboard.MetricKind) string {
	switch m {
	case dashboard.NewCases:
		return "Novos casos"
	case dashboard.CumulativeCases:
		return "Casos Acumulados"
	case dashboard.NewDeaths:
		return "Novos óbitos"
	case dashboard.CumulativeDeaths:
		return "Óbitos Acumulados"
	}
	return m.Label()
}
