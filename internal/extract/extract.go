// Package extract turns noisy recognized text into typed expense records.
//
// Recognized transaction logs interleave timestamp, category and amount
// across adjacent lines inconsistently, so a timestamp line is resolved
// against a small backward context window instead of the line alone.
package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wenqian/expense-scanner/internal/record"
)

var (
	// Tolerant of - and / date separators and single-digit month, day,
	// hour, minute and second fields.
	timePattern = regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}\s+\d{1,2}:\d{1,2}:\d{1,2}`)

	// Transaction amounts appear as negative decimals; the magnitude is
	// captured. Lines without one (balance displays and the like) are not
	// transactions.
	amountPattern = regexp.MustCompile(`-(\d+\.\d+)`)

	categoryPattern = regexp.MustCompile(`饮水|洗浴|吹风|洗衣|消费|购物`)
)

// Records scans recognized text for record-shaped substrings and returns the
// new records it accepts. Every accepted time key is added to known, so a
// later call sharing the set cannot emit a duplicate, even from a different
// worker's chunk.
func Records(text string, known *record.TimeSet) []record.Record {
	lines := splitLines(text)
	var records []record.Record

	for i, line := range lines {
		match := timePattern.FindString(line)
		if match == "" {
			continue
		}
		key := record.NormalizeTime(match)
		if known.Contains(key) {
			continue
		}

		// Context window: the matching line plus up to two lines above it.
		context := line
		if i > 0 {
			context += " " + lines[i-1]
		}
		if i > 1 {
			context += " " + lines[i-2]
		}

		amountMatch := amountPattern.FindStringSubmatch(context)
		if amountMatch == nil {
			continue
		}
		amount, err := decimal.NewFromString(amountMatch[1])
		if err != nil {
			continue
		}

		category := record.Other
		if kw := categoryPattern.FindString(context); kw != "" {
			category = record.ParseCategory(kw)
		}

		// AddIfAbsent is the authoritative claim on the key; the earlier
		// Contains check only short-circuits the common duplicate case.
		if !known.AddIfAbsent(key) {
			continue
		}
		records = append(records, record.Record{Time: key, Category: category, Amount: amount})
	}

	return records
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
