package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// Filename suggests a download name for a view.
func Filename(vm dashboard.ViewModel) string {
	return "covid_" + vm.Selection.Region.String() + "_" + vm.Selection.Metric.Key() + "_" + vm.Selection.Date.Format(dashboard.DateLayout) + ".csv"
}

// WriteSeriesCSV emits the active series as date,value rows.
func WriteSeriesCSV(w io.Writer, series dashboard.Series) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"date", series.Metric.Key()}); err != nil {
		return err
	}
	for _, point := range series.Points {
		if err := writer.Write([]string{point.Date.Format(dashboard.DateLayout), strconv.FormatInt(point.Value, 10)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCardsCSV prints the summary cards. Not-applicable values are left empty.
func WriteCardsCSV(w io.Writer, vm dashboard.ViewModel) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"field", "value"}); err != nil {
		return err
	}
	c := vm.Cards
	records := [][]string{
		{"date", vm.Selection.Date.Format(dashboard.DateLayout)},
		{"region", vm.Selection.Region.String()},
		{"recovered", formatAmount(c.RecoveredCumulative)},
		{"active_follow_up", formatAmount(c.ActiveFollowUp)},
		{"cases_cumulative", formatAmount(c.CasesCumulative)},
		{"cases_new", formatAmount(c.CasesNewOnDate)},
		{"deaths_cumulative", formatAmount(c.DeathsCumulative)},
		{"deaths_new", formatAmount(c.DeathsNewOnDate)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteViewCSV writes the cards followed by a blank line and the series.
func WriteViewCSV(w io.Writer, vm dashboard.ViewModel) error {
	if err := WriteCardsCSV(w, vm); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return WriteSeriesCSV(w, vm.Series)
}

func formatAmount(a dashboard.Amount) string {
	if a.IsNotApplicable() {
		return ""
	}
	return strconv.FormatInt(a.Value, 10)
}
