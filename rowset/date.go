package rowset

import (
	"strconv"
	"time"
)

// ParseDate parses the exporter's six-component date-time text
// (year month day hour minute second, separated by runs of whitespace,
// slashes or colons, e.g. "2024/03/01 08:00:00"). It never fails loudly:
// malformed input, too few components or an impossible calendar date all
// report ok=false, which callers treat as "skip this row".
func ParseDate(s string) (time.Time, bool) {
	parts := splitDate(s)
	if len(parts) < 6 {
		return time.Time{}, false
	}

	nums := make([]int, 6)
	for i := 0; i < 6; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	year, month, day := nums[0], nums[1], nums[2]
	hour, min, sec := nums[3], nums[4], nums[5]

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.Local)
	// time.Date normalises out-of-range days (Feb 30 becomes Mar 1); an
	// altered day means the date never existed.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}

func splitDate(s string) []string {
	var parts []string
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if !isDateSep(r) {
			return nil
		}
		if start >= 0 {
			parts = append(parts, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		parts = append(parts, s[start:])
	}
	return parts
}

func isDateSep(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '/', ':':
		return true
	}
	return false
}
