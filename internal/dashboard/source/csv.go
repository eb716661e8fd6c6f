package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// Column names of the daily bulletin files.
const (
	colRegion       = "regiao"
	colState        = "estado"
	colMunicipality = "municipio"
	colMunCode      = "codmun"
	colDate         = "data"
	colCasesNew     = "casosNovos"
	colCasesCum     = "casosAcumulado"
	colDeathsNew    = "obitosNovos"
	colDeathsCum    = "obitosAcumulado"
	colRecovered    = "Recuperadosnovos"
	colFollowUp     = "emAcompanhamentoNovos"
)

var requiredColumns = []string{
	colRegion, colState, colMunicipality, colMunCode, colDate,
	colCasesNew, colCasesCum, colDeathsNew, colDeathsCum,
}

// ErrMalformedRow reports a row that cannot be parsed.
var ErrMalformedRow = errors.New("source: malformed row")

// Tables holds the two series read from the bulletin files.
type Tables struct {
	Regional []dashboard.Record
	National []dashboard.Record
}

// CSVOptions controls row classification.
type CSVOptions struct {
	// NationalLabel is the regiao value of national aggregate rows.
	NationalLabel string
	// Limit caps the number of files parsed concurrently.
	Limit int
}

// LoadCSVDir reads every *.csv file in dir. Files are parsed concurrently and
// merged in file name order.
func LoadCSVDir(ctx context.Context, dir string, opts CSVOptions) (Tables, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return Tables{}, fmt.Errorf("source: glob %s: %w", dir, err)
	}
	if len(files) == 0 {
		return Tables{}, fmt.Errorf("source: no csv files in %s", dir)
	}
	sort.Strings(files)

	parts := make([]Tables, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}
	for i, path := range files {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("source: open %s: %w", path, err)
			}
			defer f.Close()
			tables, err := ReadCSV(ctx, f, opts)
			if err != nil {
				return fmt.Errorf("source: %s: %w", filepath.Base(path), err)
			}
			parts[i] = tables
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Tables{}, err
	}

	var merged Tables
	for _, part := range parts {
		merged.Regional = append(merged.Regional, part.Regional...)
		merged.National = append(merged.National, part.National...)
	}
	return merged, nil
}

// ReadCSV parses one semicolon separated bulletin. Municipality rows are
// skipped; extra columns are ignored.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (Tables, error) {
	national := strings.TrimSpace(opts.NationalLabel)
	if national == "" {
		national = "Brasil"
	}
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return Tables{}, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return Tables{}, fmt.Errorf("missing column %q", name)
		}
	}

	var out Tables
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Tables{}, fmt.Errorf("line %d: %w", line, err)
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Tables{}, err
			}
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		isNational := field(colRegion) == national
		if !isNational && (field(colMunicipality) != "" || field(colMunCode) != "") {
			continue
		}
		rec, err := parseRecord(field, isNational)
		if err != nil {
			return Tables{}, fmt.Errorf("line %d: %w", line, err)
		}
		if isNational {
			out.National = append(out.National, rec)
			continue
		}
		out.Regional = append(out.Regional, rec)
	}
	return out, nil
}

func parseRecord(field func(string) string, national bool) (dashboard.Record, error) {
	date, err := dashboard.ParseDay(field(colDate))
	if err != nil {
		return dashboard.Record{}, fmt.Errorf("%w: date %q", ErrMalformedRow, field(colDate))
	}
	rec := dashboard.Record{Date: date}
	if !national {
		rec.Region = dashboard.RegionCode(field(colState))
		if rec.Region == dashboard.NationalCode {
			return dashboard.Record{}, fmt.Errorf("%w: empty %s", ErrMalformedRow, colState)
		}
	}
	counts := []struct {
		column string
		dest   *int64
	}{
		{colCasesNew, &rec.CasesNew},
		{colCasesCum, &rec.CasesCumulative},
		{colDeathsNew, &rec.DeathsNew},
		{colDeathsCum, &rec.DeathsCumulative},
	}
	for _, c := range counts {
		v, ok, err := parseCount(field(c.column))
		if err != nil {
			return dashboard.Record{}, fmt.Errorf("%w: %s: %v", ErrMalformedRow, c.column, err)
		}
		if ok {
			*c.dest = v
		}
	}
	if national {
		for _, opt := range []struct {
			column string
			dest   *dashboard.Amount
		}{
			{colRecovered, &rec.RecoveredNew},
			{colFollowUp, &rec.ActiveFollowUp},
		} {
			v, ok, err := parseCount(field(opt.column))
			if err != nil {
				return dashboard.Record{}, fmt.Errorf("%w: %s: %v", ErrMalformedRow, opt.column, err)
			}
			if ok {
				*opt.dest = dashboard.Some(v)
			}
		}
	}
	return rec, nil
}

// parseCount accepts integers and integral floats such as "12.0"; an empty
// cell reports ok=false.
func parseCount(raw string) (int64, bool, error) {
	if raw == "" {
		return 0, false, nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, true, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false, fmt.Errorf("non integral value %q", raw)
	}
	return int64(f), true, nil
}
