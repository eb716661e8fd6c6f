package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// Kinds of record sources.
const (
	KindCSV      = "csv"
	KindPostgres = "postgres"
)

// Config selects where the dataset comes from.
type Config struct {
	Kind          string
	Dir           string
	NationalLabel string
	GeometryPath  string
	CodeProperty  string
	CatalogPath   string
	DB            Querier
	Logger        *slog.Logger
}

// Load reads the records and geometry and builds the immutable dataset.
func Load(ctx context.Context, cfg Config) (*dashboard.Dataset, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	var (
		tables Tables
		err    error
	)
	switch cfg.Kind {
	case KindCSV, "":
		tables, err = LoadCSVDir(ctx, cfg.Dir, CSVOptions{NationalLabel: cfg.NationalLabel})
	case KindPostgres:
		if cfg.DB == nil {
			return nil, fmt.Errorf("source: postgres source needs a database")
		}
		tables, err = LoadPostgres(ctx, cfg.DB)
	default:
		return nil, fmt.Errorf("source: unknown kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	var geo GeometryResult
	if cfg.GeometryPath != "" {
		geo, err = LoadGeometryFile(cfg.GeometryPath, cfg.CodeProperty)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("no geometry configured, map clicks will be ignored")
	}

	var catalog Catalog
	if cfg.CatalogPath != "" {
		catalog, err = LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
	}

	ds, err := Build(tables, geo, catalog)
	if err != nil {
		return nil, err
	}
	span := ds.DateRange()
	logger.Info("dataset loaded",
		slog.String("source", cfg.Kind),
		slog.Int("regions", len(ds.Regions())),
		slog.Int("map_regions", len(ds.MapRegions())),
		slog.String("from", span.Min.Format(dashboard.DateLayout)),
		slog.String("to", span.Max.Format(dashboard.DateLayout)),
		slog.String("version", ds.Version()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return ds, nil
}

// Build applies the catalog to records and geometry and constructs the
// dataset. Catalog names take precedence over names found on features.
func Build(tables Tables, geo GeometryResult, catalog Catalog) (*dashboard.Dataset, error) {
	regional := make([]dashboard.Record, len(tables.Regional))
	for i, rec := range tables.Regional {
		rec.Region = catalog.Canonical(rec.Region)
		regional[i] = rec
	}

	var geometry dashboard.Geometry
	if geo.Geometry != nil {
		geometry = make(dashboard.Geometry, len(geo.Geometry))
		for code, boundary := range geo.Geometry {
			canonical := catalog.Canonical(code)
			geometry[canonical] = append(geometry[canonical], boundary...)
		}
	}

	names := make(map[dashboard.RegionCode]string)
	for code, name := range geo.Names {
		names[catalog.Canonical(code)] = name
	}
	for code, name := range catalog.Names() {
		names[code] = name
	}
	return dashboard.NewDataset(regional, tables.National, geometry, names)
}
