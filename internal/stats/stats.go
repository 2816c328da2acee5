// Package stats computes the aggregations the charts and summary cards are
// driven by. Chart rendering itself is a client concern; this package only
// prepares the numbers, all of it in exact decimal arithmetic.
package stats

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wenqian/expense-scanner/internal/record"
)

// HourlyMode selects how hourly buckets aggregate records.
type HourlyMode string

const (
	HourlyCount   HourlyMode = "count"
	HourlyAmount  HourlyMode = "amount"
	HourlyAverage HourlyMode = "average"
)

// HeatmapDay is one cell of the spending heatmap.
type HeatmapDay struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// TopCategoryResult names the most frequent category and its share of all
// records.
type TopCategoryResult struct {
	Category record.Category `json:"category"`
	Percent  int             `json:"percent"`
}

// Total sums all record amounts.
func Total(records []record.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// DailyTotals sums amounts per "YYYY-MM-DD" day.
func DailyTotals(records []record.Record) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, r := range records {
		day := dayKey(r.Time)
		totals[day] = totals[day].Add(r.Amount)
	}
	return totals
}

// MaxDaily returns the largest single-day total, zero when there are no
// records.
func MaxDaily(records []record.Record) decimal.Decimal {
	max := decimal.Zero
	for _, total := range DailyTotals(records) {
		if total.GreaterThan(max) {
			max = total
		}
	}
	return max
}

// MonthlyTotals sums amounts per "YYYY-MM" month.
func MonthlyTotals(records []record.Record) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, r := range records {
		month := monthKey(r.Time)
		totals[month] = totals[month].Add(r.Amount)
	}
	return totals
}

// Months returns the distinct "YYYY-MM" months, sorted ascending.
func Months(records []record.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[monthKey(r.Time)] = struct{}{}
	}
	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

// MonthlyAverage divides the grand total across the distinct months, rounded
// to cents.
func MonthlyAverage(records []record.Record) decimal.Decimal {
	months := Months(records)
	if len(months) == 0 {
		return decimal.Zero
	}
	return Total(records).Div(decimal.NewFromInt(int64(len(months)))).Round(2)
}

// TopCategory returns the category with the most records and its share,
// rounded to whole percent. ok is false for an empty collection.
func TopCategory(records []record.Record) (TopCategoryResult, bool) {
	if len(records) == 0 {
		return TopCategoryResult{}, false
	}
	counts := make(map[record.Category]int)
	for _, r := range records {
		counts[r.Category]++
	}
	// Ties resolve to the category seen first in the collection.
	top := records[0].Category
	for _, r := range records {
		if counts[r.Category] > counts[top] {
			top = r.Category
		}
	}
	percent := int(float64(counts[top])/float64(len(records))*100 + 0.5)
	return TopCategoryResult{Category: top, Percent: percent}, true
}

// CategoryTotals sums amounts across the five display categories; records
// outside them count as Other.
func CategoryTotals(records []record.Record) map[record.Category]decimal.Decimal {
	totals := make(map[record.Category]decimal.Decimal, len(record.DisplayCategories()))
	for _, c := range record.DisplayCategories() {
		totals[c] = decimal.Zero
	}
	for _, r := range records {
		c := r.Category.Display()
		totals[c] = totals[c].Add(r.Amount)
	}
	return totals
}

// HourlyBuckets distributes records over the 24 hours of the day per display
// category. Count mode counts records, amount mode sums amounts, average mode
// divides each bucket's sum by its count.
func HourlyBuckets(records []record.Record, mode HourlyMode) map[record.Category][24]decimal.Decimal {
	sums := make(map[record.Category]*[24]decimal.Decimal)
	counts := make(map[record.Category]*[24]int)
	for _, c := range record.DisplayCategories() {
		sums[c] = &[24]decimal.Decimal{}
		counts[c] = &[24]int{}
	}

	for _, r := range records {
		hour, ok := hourOf(r.Time)
		if !ok {
			continue
		}
		c := r.Category.Display()
		counts[c][hour]++
		if mode == HourlyCount {
			sums[c][hour] = sums[c][hour].Add(decimal.NewFromInt(1))
		} else {
			sums[c][hour] = sums[c][hour].Add(r.Amount)
		}
	}

	if mode == HourlyAverage {
		for c, bucket := range sums {
			for h := 0; h < 24; h++ {
				if n := counts[c][h]; n > 0 {
					bucket[h] = bucket[h].Div(decimal.NewFromInt(int64(n))).Round(2)
				}
			}
		}
	}

	result := make(map[record.Category][24]decimal.Decimal, len(sums))
	for c, bucket := range sums {
		result[c] = *bucket
	}
	return result
}

// HeatmapDays produces one entry per day for the days leading up to and
// including now, oldest first.
func HeatmapDays(records []record.Record, now time.Time, days int) []HeatmapDay {
	totals := DailyTotals(records)
	result := make([]HeatmapDay, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		result = append(result, HeatmapDay{Date: date, Amount: totals[date]})
	}
	return result
}

func dayKey(timeKey string) string {
	if len(timeKey) < 10 {
		return timeKey
	}
	return timeKey[:10]
}

func monthKey(timeKey string) string {
	if len(timeKey) < 7 {
		return timeKey
	}
	return timeKey[:7]
}

func hourOf(timeKey string) (int, bool) {
	if len(timeKey) < 13 {
		return 0, false
	}
	hour, err := strconv.Atoi(timeKey[11:13])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}
