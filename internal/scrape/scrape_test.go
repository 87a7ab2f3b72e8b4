package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keibalab/keiba-collector/internal/racing"
)

const calendarFixture = `<html><body>
<table class="race-calendar">
<tbody>
<tr class="race" data-date="2000-01-05">
  <td class="venue">Nakayama</td>
  <td class="race-number">9</td>
  <td class="race-name">Junior Cup</td>
  <td class="race-class">OP</td>
  <td class="distance">1600</td>
  <td class="track-type">turf</td>
</tr>
<tr class="race" data-date="2000-01-05">
  <td class="venue">Kyoto</td>
  <td class="race-number">10</td>
  <td class="race-name">Sports Nippon Sho Shinzan Kinen</td>
  <td class="race-class">G3</td>
  <td class="distance">1600</td>
  <td class="track-type">turf</td>
</tr>
<tr class="race" data-date="2000-01-05">
  <td class="venue">Nakayama</td>
  <td class="race-number">11</td>
  <td class="race-name">Nikkan Sports Sho Nakayama Kimpai</td>
  <td class="race-class">G3</td>
  <td class="distance">2000</td>
  <td class="track-type">turf</td>
</tr>
</tbody>
</table>
</body></html>`

func TestParseCalendar(t *testing.T) {
	rows, err := Parse(racing.RaceCalendar, strings.NewReader(calendarFixture))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for _, row := range rows {
		require.Equal(t, "2000-01-05", row["date"])
		require.NotEmpty(t, row["venue"])
		require.NotEmpty(t, row["race_name"])
	}
	require.Equal(t, "Kyoto", rows[1]["venue"])
	require.Equal(t, "2000", rows[2]["distance"])
}

func TestParseCalendarEmptyPage(t *testing.T) {
	// A well-formed month with no race days is an empty sequence, not an
	// error.
	page := `<html><body><table class="race-calendar"><tbody></tbody></table></body></html>`
	rows, err := Parse(racing.RaceCalendar, strings.NewReader(page))
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestParseCalendarMissingAnchor(t *testing.T) {
	page := `<html><body><p>maintenance</p></body></html>`
	_, err := Parse(racing.RaceCalendar, strings.NewReader(page))
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, racing.RaceCalendar, perr.PageType)
	require.Contains(t, perr.Reason, "race-calendar")
}

func TestParseResults(t *testing.T) {
	page := `<html><body>
<table class="race-results">
<tr class="result" data-race-id="200006010511" data-horse-id="1996101234">
  <td class="date">2000-01-05</td>
  <td class="venue">Nakayama</td>
  <td class="race-number">11</td>
  <td class="race-name">Nakayama Kimpai</td>
  <td class="horse-name">Air Shakur</td>
  <td class="jockey">Y. Take</td>
  <td class="trainer">S. Ito</td>
  <td class="finish-position">1</td>
  <td class="finish-time">2:00.5</td>
  <td class="odds">3.2</td>
  <td class="weight">478</td>
</tr>
<tr class="result" data-race-id="200006010511" data-horse-id="1995109876">
  <td class="date">2000-01-05</td>
  <td class="venue">Nakayama</td>
  <td class="race-number">11</td>
  <td class="race-name">Nakayama Kimpai</td>
  <td class="horse-name">Meisho Doto</td>
  <td class="jockey">T. Yasuda</td>
  <td class="trainer">K. Yasuda</td>
  <td class="finish-position">2</td>
  <td class="finish-time">2:00.7</td>
  <td class="odds"></td>
  <td class="weight">502</td>
</tr>
</table>
</body></html>`

	rows, err := Parse(racing.RaceResults, strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "200006010511", rows[0]["race_id"])
	require.Equal(t, "1996101234", rows[0]["horse_id"])
	require.Equal(t, "1", rows[0]["finish_position"])
	// Missing optional field stays empty rather than failing the page.
	require.Equal(t, "", rows[1]["odds"])
}

func TestParseHorses(t *testing.T) {
	page := `<html><body>
<table class="horse-list">
<tr class="horse" data-horse-id="1996101234">
  <td class="horse-name">Air Shakur</td>
  <td class="birth-year">1996</td>
  <td class="sex">M</td>
  <td class="color">bay</td>
  <td class="sire">Sunday Silence</td>
  <td class="dam">Air Dublin</td>
  <td class="owner">Lucky Field</td>
  <td class="trainer">S. Ito</td>
  <td class="stable">Ritto</td>
</tr>
</table>
</body></html>`

	rows, err := Parse(racing.HorseData, strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "1996101234", rows[0]["horse_id"])
	require.Equal(t, "Sunday Silence", rows[0]["sire"])
}

func TestParseConditions(t *testing.T) {
	page := `<html><body>
<table class="track-conditions">
<tr class="condition" data-date="2000-01-05">
  <td class="venue">Nakayama</td>
  <td class="track-type">turf</td>
  <td class="condition">good</td>
  <td class="weather">sunny</td>
  <td class="temperature">4.5</td>
  <td class="humidity">38</td>
  <td class="rainfall">0</td>
</tr>
</table>
</body></html>`

	rows, err := Parse(racing.TrackCondition, strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "good", rows[0]["condition"])
	require.Equal(t, "2000-01-05", rows[0]["date"])
}
