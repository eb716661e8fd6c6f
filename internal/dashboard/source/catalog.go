package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// CatalogEntry names one region. Aliases map alternative codes found in the
// data files (for example numeric IBGE codes) onto Code.
type CatalogEntry struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Catalog is the optional region list loaded from YAML.
type Catalog struct {
	Regions []CatalogEntry `yaml:"regions"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("source: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalog{}, fmt.Errorf("source: parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(cat.Regions))
	for i, entry := range cat.Regions {
		if entry.Code == "" {
			return Catalog{}, fmt.Errorf("source: catalog entry %d has no code", i)
		}
		if _, dup := seen[entry.Code]; dup {
			return Catalog{}, fmt.Errorf("source: catalog code %s repeated", entry.Code)
		}
		seen[entry.Code] = struct{}{}
	}
	return cat, nil
}

// Names returns the display names keyed by code.
func (c Catalog) Names() map[dashboard.RegionCode]string {
	names := make(map[dashboard.RegionCode]string, len(c.Regions))
	for _, entry := range c.Regions {
		if entry.Name != "" {
			names[dashboard.RegionCode(entry.Code)] = entry.Name
		}
	}
	return names
}

// Canonical maps a code or alias onto the catalog code. Unknown codes are
// returned unchanged.
func (c Catalog) Canonical(code dashboard.RegionCode) dashboard.RegionCode {
	for _, entry := range c.Regions {
		if entry.Code == string(code) {
			return code
		}
		for _, alias := range entry.Aliases {
			if alias == string(code) {
				return dashboard.RegionCode(entry.Code)
			}
		}
	}
	return code
}
