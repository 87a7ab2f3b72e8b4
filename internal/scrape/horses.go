package scrape

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// parseHorses extracts horse profiles from a page of the yearly horse index.
func parseHorses(doc *goquery.Document) ([]racing.Row, error) {
	table, err := anchor(doc, racing.HorseData, "table.horse-list")
	if err != nil {
		return nil, err
	}

	var rows []racing.Row
	table.Find("tr.horse").Each(func(_ int, tr *goquery.Selection) {
		rows = append(rows, racing.Row{
			"horse_id":   tr.AttrOr("data-horse-id", ""),
			"horse_name": cell(tr, "horse-name"),
			"birth_year": cell(tr, "birth-year"),
			"sex":        cell(tr, "sex"),
			"color":      cell(tr, "color"),
			"sire":       cell(tr, "sire"),
			"dam":        cell(tr, "dam"),
			"owner":      cell(tr, "owner"),
			"trainer":    cell(tr, "trainer"),
			"stable":     cell(tr, "stable"),
		})
	})

	return rows, nil
}
