package record

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Record is one expense entry. Time is the normalized
// "YYYY-MM-DD HH:MM:SS" string and is the unique key across the whole
// collection: the domain assumes at most one transaction per second.
type Record struct {
	Time     string
	Category Category
	Amount   decimal.Decimal
}

type recordJSON struct {
	Time     string          `json:"time"`
	Category Category        `json:"type"`
	Amount   json.RawMessage `json:"amount"`
}

// MarshalJSON emits the wire form {"time","type","amount"} with the amount as
// a bare JSON number.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Time:     r.Time,
		Category: r.Category,
		Amount:   json.RawMessage(r.Amount.String()),
	})
}

// UnmarshalJSON accepts the amount as either a JSON number or a quoted
// decimal string. A missing amount decodes as zero; import-level filtering of
// records without an amount happens before this point.
func (r *Record) UnmarshalJSON(data []byte) error {
	var aux recordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("unmarshaling record: %w", err)
	}
	r.Time = aux.Time
	r.Category = aux.Category
	r.Amount = decimal.Zero
	if len(aux.Amount) > 0 {
		amt, err := parseAmountJSON(aux.Amount)
		if err != nil {
			return fmt.Errorf("unmarshaling record amount: %w", err)
		}
		r.Amount = amt
	}
	return nil
}

func parseAmountJSON(raw json.RawMessage) (decimal.Decimal, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	return decimal.NewFromString(string(raw))
}

// SortByTimeDesc returns a copy sorted newest first. Normalized time keys
// order lexicographically, so a plain string sort is a chronological sort.
func SortByTimeDesc(records []Record) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time > sorted[j].Time })
	return sorted
}

// Merge appends incoming records to existing. Incoming must already be
// duplicate-free against existing's time keys; merge never rewrites or drops
// an existing record.
func Merge(existing, incoming []Record) []Record {
	if len(incoming) == 0 {
		return existing
	}
	merged := make([]Record, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	merged = append(merged, incoming...)
	return merged
}

// Keys collects the time keys of records into a TimeSet, seeding the live
// dedup set for a batch.
func Keys(records []Record) *TimeSet {
	set := NewTimeSet()
	for _, r := range records {
		set.Add(r.Time)
	}
	return set
}
