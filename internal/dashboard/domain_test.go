package dashboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricKindsHaveTotalShapePolicy(t *testing.T) {
	want := map[MetricKind]ChartShape{
		NewCases:         ShapeBars,
		CumulativeCases:  ShapeLine,
		NewDeaths:        ShapeBars,
		CumulativeDeaths: ShapeLine,
	}
	for _, m := range MetricKinds() {
		assert.Equal(t, want[m], m.Shape(), m.Key())
		assert.Equal(t, m.Shape() == ShapeLine, m.Cumulative())
		assert.NotEmpty(t, m.Label())

		parsed, err := ParseMetric(m.Key())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
}

func TestParseMetricRejectsUnknown(t *testing.T) {
	_, err := ParseMetric("casosAcumuladoX")
	require.ErrorIs(t, err, ErrUnknownMetric)
	assert.False(t, MetricKind(17).Valid())
}

func TestMetricOfReadsMatchingField(t *testing.T) {
	rec := Record{CasesNew: 1, CasesCumulative: 2, DeathsNew: 3, DeathsCumulative: 4}
	assert.EqualValues(t, 1, NewCases.Of(rec))
	assert.EqualValues(t, 2, CumulativeCases.Of(rec))
	assert.EqualValues(t, 3, NewDeaths.Of(rec))
	assert.EqualValues(t, 4, CumulativeDeaths.Of(rec))
}

func TestAmountJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}{A: Some(0), B: NotApplicable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0,"b":null}`, string(raw))

	var decoded struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, Some(0), decoded.A)
	assert.True(t, decoded.B.IsNotApplicable())
}

func TestRegionSelectorZeroValueIsNational(t *testing.T) {
	var sel RegionSelector
	assert.True(t, sel.IsNational())
	assert.Equal(t, National(), sel)
	assert.False(t, Region("SP").IsNational())
	assert.Equal(t, RegionCode("SP"), Region("SP").Code())
}
