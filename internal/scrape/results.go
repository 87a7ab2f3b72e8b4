package scrape

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// parseResults extracts per-horse finishing records from a monthly results
// page. One table row corresponds to one horse in one race; the race and
// horse identifiers ride on data attributes.
func parseResults(doc *goquery.Document) ([]racing.Row, error) {
	table, err := anchor(doc, racing.RaceResults, "table.race-results")
	if err != nil {
		return nil, err
	}

	var rows []racing.Row
	table.Find("tr.result").Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, racing.Row{
			"race_id":         tr.AttrOr("data-race-id", ""),
			"horse_id":        tr.AttrOr("data-horse-id", ""),
			"date":            cell(tr, "date"),
			"venue":           cell(tr, "venue"),
			"race_number":     cell(tr, "race-number"),
			"race_name":       cell(tr, "race-name"),
			"horse_name":      cell(tr, "horse-name"),
			"jockey":          cell(tr, "jockey"),
			"trainer":         cell(tr, "trainer"),
			"finish_position": cell(tr, "finish-position"),
			"finish_time":     cell(tr, "finish-time"),
			"odds":            cell(tr, "odds"),
			"weight":          cell(tr, "weight"),
		})
	})

	return rows, nil
}
