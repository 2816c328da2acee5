package record

import "strings"

// NormalizeTime rewrites a recognized or imported timestamp into the canonical
// time-key form "YYYY-MM-DD HH:MM:SS": slashes become dashes and single-digit
// month, day and hour fields are zero-padded. Strings that do not look like a
// date are returned with only the slash replacement applied.
func NormalizeTime(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "-")

	parts := strings.SplitN(s, " ", 2)
	dateParts := strings.Split(parts[0], "-")
	if len(dateParts) == 3 {
		dateParts[1] = padTwo(dateParts[1])
		dateParts[2] = padTwo(dateParts[2])
		parts[0] = strings.Join(dateParts, "-")
	}

	if len(parts) == 2 {
		parts[1] = strings.TrimSpace(parts[1])
		clockParts := strings.Split(parts[1], ":")
		if len(clockParts) == 3 {
			for i, p := range clockParts {
				clockParts[i] = padTwo(p)
			}
			parts[1] = strings.Join(clockParts, ":")
		}
	}

	return strings.Join(parts, " ")
}

func padTwo(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
