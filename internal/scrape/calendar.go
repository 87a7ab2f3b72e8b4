package scrape

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// parseCalendar extracts race calendar entries from a monthly calendar page.
// The calendar table is the required anchor; a month without race days
// produces an empty table and no rows.
func parseCalendar(doc *goquery.Document) ([]racing.Row, error) {
	table, err := anchor(doc, racing.RaceCalendar, "table.race-calendar")
	if err != nil {
		return nil, err
	}

	var rows []racing.Row
	table.Find("tr.race").Each(func(_ int, tr *goquery.Selection) {
		date := tr.AttrOr("data-date", "")
		if date == "" {
			date = cell(tr, "date")
		}

		rows = append(rows, racing.Row{
			"date":        date,
			"venue":       cell(tr, "venue"),
			"race_number": cell(tr, "race-number"),
			"race_name":   cell(tr, "race-name"),
			"race_class":  cell(tr, "race-class"),
			"distance":    cell(tr, "distance"),
			"track_type":  cell(tr, "track-type"),
		})
	})

	return rows, nil
}
