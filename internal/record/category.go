package record

import (
	"encoding/json"
	"fmt"
)

// Category is the closed set of expense categories the extractor recognizes.
// Unknown keywords always fall back to Other.
type Category int

const (
	Water Category = iota
	Bath
	Dryer
	Laundry
	Spending
	Shopping
	Other
)

var categoryLabels = [...]string{"饮水", "洗浴", "吹风", "洗衣", "消费", "购物", "其他"}

// String returns the canonical label for the category. The label is what the
// recognizer sees in source images and what export files carry.
func (c Category) String() string {
	if c < Water || c > Other {
		return categoryLabels[Other]
	}
	return categoryLabels[c]
}

// ParseCategory maps a label back to its Category, falling back to Other for
// anything outside the closed set.
func ParseCategory(label string) Category {
	for i, l := range categoryLabels {
		if l == label {
			return Category(i)
		}
	}
	return Other
}

// Display folds the category onto the five chart categories. Spending and
// Shopping have no chart slot of their own and count as Other.
func (c Category) Display() Category {
	switch c {
	case Water, Bath, Dryer, Laundry:
		return c
	default:
		return Other
	}
}

// DisplayCategories lists the chart categories in presentation order.
func DisplayCategories() []Category {
	return []Category{Water, Bath, Dryer, Laundry, Other}
}

// MarshalJSON encodes the category as its label string.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a label string, falling back to Other for unknown values.
func (c *Category) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("unmarshaling category: %w", err)
	}
	*c = ParseCategory(label)
	return nil
}
