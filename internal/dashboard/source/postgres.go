package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// Querier is the subset of pgxpool.Pool used by the Postgres source.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const selectDaily = `
SELECT region_code, day, cases_new, cases_cumulative, deaths_new, deaths_cumulative,
       recovered_new, active_follow_up
FROM covid_daily
ORDER BY region_code, day`

// LoadPostgres reads both series from the covid_daily table. The national
// aggregate is stored with an empty region_code.
func LoadPostgres(ctx context.Context, db Querier) (Tables, error) {
	rows, err := db.Query(ctx, selectDaily)
	if err != nil {
		return Tables{}, fmt.Errorf("source: query covid_daily: %w", err)
	}
	defer rows.Close()

	var out Tables
	for rows.Next() {
		var (
			code      string
			day       time.Time
			rec       dashboard.Record
			recovered pgtype.Int8
			followUp  pgtype.Int8
		)
		if err := rows.Scan(&code, &day, &rec.CasesNew, &rec.CasesCumulative, &rec.DeathsNew, &rec.DeathsCumulative, &recovered, &followUp); err != nil {
			return Tables{}, fmt.Errorf("source: scan covid_daily: %w", err)
		}
		rec.Date = dashboard.Day(day)
		if code == "" {
			rec.RecoveredNew = amountFrom(recovered)
			rec.ActiveFollowUp = amountFrom(followUp)
			out.National = append(out.National, rec)
			continue
		}
		rec.Region = dashboard.RegionCode(code)
		out.Regional = append(out.Regional, rec)
	}
	if err := rows.Err(); err != nil {
		return Tables{}, fmt.Errorf("source: iterate covid_daily: %w", err)
	}
	return out, nil
}

func amountFrom(v pgtype.Int8) dashboard.Amount {
	if !v.Valid {
		return dashboard.NotApplicable
	}
	return dashboard.Some(v.Int64)
}

// Schema creates the covid_daily table read by LoadPostgres.
const Schema = `
CREATE TABLE IF NOT EXISTS covid_daily (
    region_code       TEXT    NOT NULL DEFAULT '',
    day               DATE    NOT NULL,
    cases_new         BIGINT  NOT NULL DEFAULT 0,
    cases_cumulative  BIGINT  NOT NULL DEFAULT 0,
    deaths_new        BIGINT  NOT NULL DEFAULT 0,
    deaths_cumulative BIGINT  NOT NULL DEFAULT 0,
    recovered_new     BIGINT,
    active_follow_up  BIGINT,
    PRIMARY KEY (region_code, day)
)`

// Copier is the subset of pgx used to bulk load rows.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// StorePostgres bulk copies both series into covid_daily and returns the row
// count.
func StorePostgres(ctx context.Context, db Copier, tables Tables) (int64, error) {
	rows := make([][]any, 0, len(tables.National)+len(tables.Regional))
	for _, rec := range tables.National {
		rows = append(rows, copyRow("", rec, nullable(rec.RecoveredNew), nullable(rec.ActiveFollowUp)))
	}
	for _, rec := range tables.Regional {
		rows = append(rows, copyRow(string(rec.Region), rec, nil, nil))
	}
	n, err := db.CopyFrom(ctx, pgx.Identifier{"covid_daily"}, []string{
		"region_code", "day", "cases_new", "cases_cumulative", "deaths_new", "deaths_cumulative",
		"recovered_new", "active_follow_up",
	}, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("source: copy covid_daily: %w", err)
	}
	return n, nil
}

func copyRow(code string, rec dashboard.Record, recovered, followUp any) []any {
	return []any{code, rec.Date, rec.CasesNew, rec.CasesCumulative, rec.DeathsNew, rec.DeathsCumulative, recovered, followUp}
}

func nullable(a dashboard.Amount) any {
	if a.IsNotApplicable() {
		return nil
	}
	return a.Value
}
