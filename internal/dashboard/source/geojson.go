package source

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/covidboard/covidboard/internal/dashboard"
)

// DefaultCodeProperty is the feature property holding the region code.
const DefaultCodeProperty = "UF_05"

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Geometry   *rawGeometry               `json:"geometry"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// GeometryResult is the decoded boundary set plus any names found on the
// features.
type GeometryResult struct {
	Geometry dashboard.Geometry
	Names    map[dashboard.RegionCode]string
}

// LoadGeometryFile decodes a GeoJSON FeatureCollection from path.
func LoadGeometryFile(path, codeProperty string) (GeometryResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return GeometryResult{}, fmt.Errorf("source: open geometry: %w", err)
	}
	defer f.Close()
	return ReadGeometry(f, codeProperty)
}

// ReadGeometry decodes Polygon and MultiPolygon features keyed by the
// codeProperty value. Features of other types are skipped.
func ReadGeometry(r io.Reader, codeProperty string) (GeometryResult, error) {
	if strings.TrimSpace(codeProperty) == "" {
		codeProperty = DefaultCodeProperty
	}
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return GeometryResult{}, fmt.Errorf("source: decode geometry: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return GeometryResult{}, fmt.Errorf("source: expected FeatureCollection, got %q", fc.Type)
	}

	res := GeometryResult{
		Geometry: dashboard.Geometry{},
		Names:    map[dashboard.RegionCode]string{},
	}
	for i, feat := range fc.Features {
		if feat.Geometry == nil {
			continue
		}
		code, err := propertyString(feat.Properties, codeProperty)
		if err != nil {
			return GeometryResult{}, fmt.Errorf("source: feature %d: %w", i, err)
		}
		if code == "" {
			return GeometryResult{}, fmt.Errorf("source: feature %d: empty %s", i, codeProperty)
		}

		var boundary dashboard.Boundary
		switch feat.Geometry.Type {
		case "Polygon":
			var poly dashboard.Polygon
			if err := decodeRings(feat.Geometry.Coordinates, &poly); err != nil {
				return GeometryResult{}, fmt.Errorf("source: feature %s: %w", code, err)
			}
			boundary = dashboard.Boundary{poly}
		case "MultiPolygon":
			if err := decodeRings(feat.Geometry.Coordinates, &boundary); err != nil {
				return GeometryResult{}, fmt.Errorf("source: feature %s: %w", code, err)
			}
		default:
			continue
		}

		regionCode := dashboard.RegionCode(code)
		res.Geometry[regionCode] = append(res.Geometry[regionCode], boundary...)
		for _, key := range []string{"name", "NOME", "nome"} {
			if name, _ := propertyString(feat.Properties, key); name != "" {
				res.Names[regionCode] = name
				break
			}
		}
	}
	if len(res.Geometry) == 0 {
		return GeometryResult{}, fmt.Errorf("source: geometry has no polygon features")
	}
	return res, nil
}

// decodeRings unmarshals coordinates, dropping any altitude component.
func decodeRings(raw json.RawMessage, dest interface{}) error {
	switch d := dest.(type) {
	case *dashboard.Polygon:
		var coords [][][]float64
		if err := json.Unmarshal(raw, &coords); err != nil {
			return err
		}
		poly, err := toPolygon(coords)
		if err != nil {
			return err
		}
		*d = poly
	case *dashboard.Boundary:
		var coords [][][][]float64
		if err := json.Unmarshal(raw, &coords); err != nil {
			return err
		}
		for _, p := range coords {
			poly, err := toPolygon(p)
			if err != nil {
				return err
			}
			*d = append(*d, poly)
		}
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}

func toPolygon(coords [][][]float64) (dashboard.Polygon, error) {
	poly := make(dashboard.Polygon, 0, len(coords))
	for _, ring := range coords {
		out := make(dashboard.Ring, 0, len(ring))
		for _, pt := range ring {
			if len(pt) < 2 {
				return nil, fmt.Errorf("position with %d values", len(pt))
			}
			out = append(out, dashboard.Point{pt[0], pt[1]})
		}
		poly = append(poly, out)
	}
	return poly, nil
}

// propertyString reads a string or numeric property as text.
func propertyString(props map[string]json.RawMessage, key string) (string, error) {
	raw, ok := props[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("property %s is not a string or number", key)
}
