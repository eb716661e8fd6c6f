package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(value string) time.Time {
	d, err := ParseDay(value)
	if err != nil {
		panic(err)
	}
	return d
}

func square(x, y float64) Boundary {
	return Boundary{Polygon{Ring{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}}
}

type fixture struct {
	byRegion []Record
	national []Record
	geometry Geometry
	names    map[RegionCode]string
}

// newFixture builds a synthetic dataset spanning from..to. SP and RJ report
// every day, AM stops reporting after amUntil, and DF has a boundary but no
// records at all.
func newFixture(from, to, amUntil time.Time) fixture {
	f := fixture{
		geometry: Geometry{
			"SP": square(0, 0),
			"RJ": square(1, 0),
			"AM": square(0, 1),
			"DF": square(1, 1),
		},
		names: map[RegionCode]string{"SP": "São Paulo", "RJ": "Rio de Janeiro", "AM": "Amazonas"},
	}
	weights := map[RegionCode]int64{"SP": 5, "RJ": 3, "AM": 2}
	cumCases := map[RegionCode]int64{}
	cumDeaths := map[RegionCode]int64{}
	var nationalCases, nationalDeaths, recovered int64
	i := int64(0)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		i++
		var dayCases, dayDeaths int64
		for _, code := range []RegionCode{"SP", "RJ", "AM"} {
			if code == "AM" && d.After(amUntil) {
				continue
			}
			w := weights[code]
			cases := w*10 + i%7
			deaths := w + i%3
			cumCases[code] += cases
			cumDeaths[code] += deaths
			dayCases += cases
			dayDeaths += deaths
			f.byRegion = append(f.byRegion, Record{
				Region:           code,
				Date:             d,
				CasesNew:         cases,
				CasesCumulative:  cumCases[code],
				DeathsNew:        deaths,
				DeathsCumulative: cumDeaths[code],
			})
		}
		nationalCases += dayCases
		nationalDeaths += dayDeaths
		recovered += dayCases / 2
		f.national = append(f.national, Record{
			Date:             d,
			CasesNew:         dayCases,
			CasesCumulative:  nationalCases,
			DeathsNew:        dayDeaths,
			DeathsCumulative: nationalDeaths,
			RecoveredNew:     Some(recovered),
			ActiveFollowUp:   Some(dayCases - dayDeaths),
		})
	}
	return f
}

func (f fixture) build(t *testing.T) *Dataset {
	t.Helper()
	ds, err := NewDataset(f.byRegion, f.national, f.geometry, f.names)
	require.NoError(t, err)
	return ds
}

func smallDataset(t *testing.T) *Dataset {
	t.Helper()
	return newFixture(day("2021-03-01"), day("2021-03-10"), day("2021-03-05")).build(t)
}

func fullDataset(t *testing.T) *Dataset {
	t.Helper()
	return newFixture(day("2020-01-01"), day("2022-12-31"), day("2022-06-30")).build(t)
}
