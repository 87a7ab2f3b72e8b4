package scrape

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// parseConditions extracts per-day track condition reports from a monthly
// track condition page.
func parseConditions(doc *goquery.Document) ([]racing.Row, error) {
	table, err := anchor(doc, racing.TrackCondition, "table.track-conditions")
	if err != nil {
		return nil, err
	}

	var rows []racing.Row
	table.Find("tr.condition").Each(func(_ int, tr *goquery.Selection) {
		date := tr.AttrOr("data-date", "")
		if date == "" {
			date = cell(tr, "date")
		}

		rows = append(rows, racing.Row{
			"date":        date,
			"venue":       cell(tr, "venue"),
			"track_type":  cell(tr, "track-type"),
			"condition":   cell(tr, "condition"),
			"weather":     cell(tr, "weather"),
			"temperature": cell(tr, "temperature"),
			"humidity":    cell(tr, "humidity"),
			"rainfall":    cell(tr, "rainfall"),
		})
	})

	return rows, nil
}
