package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wenqian/expense-scanner/internal/record"
)

// csvDatePattern accepts the same date tolerance as live extraction: four
// digit year, - or / separators, single- or double-digit month and day.
var csvDatePattern = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}`)

// importItem mirrors the record wire form but keeps the amount raw so a
// missing amount is distinguishable from zero.
type importItem struct {
	Time   string          `json:"time"`
	Type   string          `json:"type"`
	Amount json.RawMessage `json:"amount"`
}

// ImportJSON parses a backup file in either the flat-array or the
// grouped-by-month object form. Items without a time or amount are dropped;
// a malformed document is a single failure for the whole file, never a
// partial import.
func ImportJSON(content []byte) ([]record.Record, error) {
	trimmed := strings.TrimSpace(string(content))
	var items []importItem
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(content, &items); err != nil {
			return nil, fmt.Errorf("parsing JSON import: %w", err)
		}
	} else {
		var grouped map[string][]importItem
		if err := json.Unmarshal(content, &grouped); err != nil {
			return nil, fmt.Errorf("parsing JSON import: %w", err)
		}
		for _, monthItems := range grouped {
			items = append(items, monthItems...)
		}
	}

	var records []record.Record
	for _, item := range items {
		if item.Time == "" || len(item.Amount) == 0 {
			continue
		}
		amount, err := parseRawAmount(item.Amount)
		if err != nil {
			continue
		}
		records = append(records, record.Record{
			Time:     record.NormalizeTime(item.Time),
			Category: record.ParseCategory(item.Type),
			Amount:   amount,
		})
	}
	return records, nil
}

// ImportCSV parses exported CSV content. Rows are accepted independently: a
// row needs at least three fields, a time field matching the date pattern,
// and a parseable amount; everything else (the header line included) is
// skipped. Line endings may be \r\n, \n or \r, fields may be quoted, and the
// amount may use a comma as its decimal separator.
func ImportCSV(content []byte) []record.Record {
	text := strings.TrimPrefix(string(content), bom)

	var records []record.Record
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		for i, p := range parts {
			parts[i] = trimQuotes(strings.TrimSpace(p))
		}

		timeField := parts[0]
		if !csvDatePattern.MatchString(timeField) {
			continue
		}

		// A comma decimal separator splits the amount across fields, so the
		// trailing fields are rejoined with a dot before parsing.
		amountStr := strings.ReplaceAll(strings.Join(parts[2:], "."), ",", ".")
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			continue
		}

		records = append(records, record.Record{
			Time:     record.NormalizeTime(timeField),
			Category: record.ParseCategory(parts[1]),
			Amount:   amount,
		})
	}
	return records
}

func parseRawAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	}
	return decimal.NewFromString(string(raw))
}

func trimQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimPrefix(s, "'")
	return strings.TrimSuffix(s, "'")
}
