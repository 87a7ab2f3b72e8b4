// Package scrape extracts structured rows from the racing site's HTML
// pages. Each page type declares a required structural anchor: a missing
// anchor means the layout changed or the URL was wrong and is reported as an
// Error, while a present-but-empty anchor is a normal empty page.
package scrape

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/keibalab/keiba-collector/internal/racing"
)

// Error reports a structural mismatch on a page, distinct from "no data for
// this period".
type Error struct {
	PageType racing.DataType
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse %s page: %s", e.PageType, e.Reason)
}

type parseFunc func(*goquery.Document) ([]racing.Row, error)

var parsers = map[racing.DataType]parseFunc{
	racing.RaceCalendar:   parseCalendar,
	racing.RaceResults:    parseResults,
	racing.HorseData:      parseHorses,
	racing.TrackCondition: parseConditions,
}

// Parse extracts the rows for the given page type from raw HTML.
func Parse(pageType racing.DataType, r io.Reader) ([]racing.Row, error) {
	fn, ok := parsers[pageType]
	if !ok {
		return nil, &Error{PageType: pageType, Reason: "no parser registered"}
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &Error{PageType: pageType, Reason: fmt.Sprintf("malformed html: %v", err)}
	}

	return fn(doc)
}

// anchor returns the page's required table, or an Error when it is absent.
func anchor(doc *goquery.Document, pageType racing.DataType, selector string) (*goquery.Selection, error) {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, &Error{
			PageType: pageType,
			Reason:   fmt.Sprintf("required anchor %q not found", selector),
		}
	}
	return sel, nil
}

// cell returns the trimmed text of the row's td with the given class, empty
// when the cell is absent.
func cell(tr *goquery.Selection, class string) string {
	return strings.TrimSpace(tr.Find("td." + class).Text())
}
