package record

// FilterNew returns the items whose time keys are absent from existing,
// claiming each accepted key as it goes: when the input itself repeats a key,
// the first occurrence wins. existing is mutated.
func FilterNew(items []Record, existing *TimeSet) []Record {
	var fresh []Record
	for _, item := range items {
		if existing.AddIfAbsent(item.Time) {
			fresh = append(fresh, item)
		}
	}
	return fresh
}
