// Package racing defines the domain model shared by the collector pipeline:
// data types, work units, rows, and the per-type column schemas.
package racing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDataType is returned when a data type name doesn't match any
// known type.
var ErrUnknownDataType = errors.New("unknown data type")

// DataType identifies one of the scraped datasets.
type DataType string

const (
	RaceCalendar   DataType = "race_calendar"
	RaceResults    DataType = "race_results"
	HorseData      DataType = "horse_data"
	TrackCondition DataType = "track_condition"
)

// AllDataTypes lists every data type in its declared processing order.
// The orchestrator relies on this order when sorting work units.
var AllDataTypes = []DataType{RaceCalendar, RaceResults, HorseData, TrackCondition}

// ParseDataType converts a CLI/config string into a DataType.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDataTypes {
		if dt == known {
			return dt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDataType, s)
}

// Order returns the declared position of the data type, used as a sort key.
func (dt DataType) Order() int {
	for i, known := range AllDataTypes {
		if dt == known {
			return i
		}
	}
	return len(AllDataTypes)
}

func (dt DataType) String() string { return string(dt) }

// WorkUnit is one (year, data type) scrape-and-persist task. It is the unit
// of retry, resumability, and output file.
type WorkUnit struct {
	Year int      `json:"year"`
	Type DataType `json:"data_type"`
}

func (u WorkUnit) String() string {
	return fmt.Sprintf("%s/%d", u.Type, u.Year)
}

// FileStem is the base name (without extension) of the unit's output file,
// e.g. "race_calendar_2000".
func (u WorkUnit) FileStem() string {
	return fmt.Sprintf("%s_%d", u.Type, u.Year)
}

// Row is one scraped record. Values are always strings; numeric fields keep
// the site's textual representation. Missing optional fields are empty.
type Row map[string]string

// Schema describes the columns and the natural key of a data type.
type Schema struct {
	Columns    []string
	NaturalKey []string
}

var schemas = map[DataType]Schema{
	RaceCalendar: {
		Columns: []string{
			"date", "venue", "race_number", "race_name",
			"race_class", "distance", "track_type",
		},
		NaturalKey: []string{"date", "venue", "race_number"},
	},
	RaceResults: {
		Columns: []string{
			"race_id", "horse_id", "date", "venue", "race_number", "race_name",
			"horse_name", "jockey", "trainer", "finish_position",
			"finish_time", "odds", "weight",
		},
		NaturalKey: []string{"race_id", "horse_id"},
	},
	HorseData: {
		Columns: []string{
			"horse_id", "horse_name", "birth_year", "sex", "color",
			"sire", "dam", "owner", "trainer", "stable",
		},
		NaturalKey: []string{"horse_id"},
	},
	TrackCondition: {
		Columns: []string{
			"date", "venue", "track_type", "condition",
			"weather", "temperature", "humidity", "rainfall",
		},
		NaturalKey: []string{"date", "venue", "track_type"},
	},
}

// SchemaFor returns the schema of a data type. It panics on an unknown type;
// callers always hold a validated DataType.
func SchemaFor(dt DataType) Schema {
	s, ok := schemas[dt]
	if !ok {
		panic(fmt.Sprintf("no schema for data type %q", dt))
	}
	return s
}

// Key computes the row's natural key under the given schema. Key components
// are joined with a separator that cannot appear inside csv-parsed fields
// used as keys (dates, venues, numeric ids).
func (r Row) Key(s Schema) string {
	parts := make([]string, len(s.NaturalKey))
	for i, col := range s.NaturalKey {
		parts[i] = r[col]
	}
	return strings.Join(parts, "\x1f")
}

// Record flattens the row into schema column order for csv writing.
func (r Row) Record(s Schema) []string {
	rec := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		rec[i] = r[col]
	}
	return rec
}

// RowFromRecord rebuilds a Row from a csv record previously produced by
// Record. Short records (from older schema revisions) leave trailing columns
// empty.
func RowFromRecord(s Schema, rec []string) Row {
	row := make(Row, len(s.Columns))
	for i, col := range s.Columns {
		if i < len(rec) {
			row[col] = rec[i]
		} else {
			row[col] = ""
		}
	}
	return row
}
