package svg

// LineOpts customises the trend chart renderer.
type LineOpts struct {
	Title       string
	Description string
	AxisTitle   string
	XAxisTitle  string
	StrokeColor string
	FillColor   string
	AxisColor   string
	GridColor   string
	Padding     float64
	ShowDots    bool
	TickCount   int
	MaxLabels   int
}

// BarOpts customises the discrete bar chart renderer.
type BarOpts struct {
	Title       string
	Description string
	AxisTitle   string
	XAxisTitle  string
	Color       string
	AxisColor   string
	GridColor   string
	Padding     float64
	TickCount   int
	MaxLabels   int
}

// MapOpts customises the choropleth renderer.
type MapOpts struct {
	Title       string
	Description string
	ScaleTitle  string
	Min         float64
	Max         float64
	Palette     []string
	EmptyColor  string
	StrokeColor string
	ActiveColor string
	Padding     float64
	// FormatValue renders the legend bounds; formatTick is used when nil.
	FormatValue func(float64) string
}

// Ring is a closed sequence of lon/lat points.
type Ring [][2]float64

// MapArea is one clickable region on the choropleth. All rings of an area are
// drawn as a single even-odd path so holes stay empty.
type MapArea struct {
	ID       string
	Rings    []Ring
	Value    float64
	HasValue bool
	Hover    string
	Active   bool
}

// Defaults for the dashboard charts.
const (
	DefaultWidth     = 720
	DefaultHeight    = 240
	DefaultMapWidth  = 560
	DefaultMapHeight = 560
	DefaultPadding   = 24.0
	DefaultTicks     = 6
	DefaultMaxLabels = 8
)

// DefaultPalette is a sequential yellow to red ramp.
var DefaultPalette = []string{"#ffffcc", "#ffeda0", "#fed976", "#feb24c", "#fd8d3c", "#fc4e2a", "#e31a1c", "#b10026"}
