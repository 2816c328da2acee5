// Package export reads and writes the interchange formats for record
// collections. Both formats share the record package's time normalization, so
// a file that round-trips through export and import is byte-identical.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wenqian/expense-scanner/internal/record"
)

// bom is the UTF-8 byte-order mark prepended to CSV exports so spreadsheet
// applications detect the encoding and render Chinese category labels.
const bom = "\uFEFF"

// JSON renders the records grouped by "YYYY-MM" month, each month's records
// sorted by time descending, pretty-printed.
func JSON(records []record.Record) ([]byte, error) {
	sorted := record.SortByTimeDesc(records)
	grouped := make(map[string][]record.Record)
	for _, r := range sorted {
		grouped[monthKey(r.Time)] = append(grouped[monthKey(r.Time)], r)
	}
	data, err := json.MarshalIndent(grouped, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling records: %w", err)
	}
	return data, nil
}

// CSV renders the records as "Time,Type,Amount" rows sorted by time
// descending, with a leading BOM.
func CSV(records []record.Record) []byte {
	sorted := record.SortByTimeDesc(records)
	var b strings.Builder
	b.WriteString(bom)
	b.WriteString("Time,Type,Amount\n")
	for _, r := range sorted {
		b.WriteString(r.Time)
		b.WriteByte(',')
		b.WriteString(r.Category.String())
		b.WriteByte(',')
		b.WriteString(r.Amount.String())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func monthKey(timeKey string) string {
	if len(timeKey) < 7 {
		return timeKey
	}
	return timeKey[:7]
}
