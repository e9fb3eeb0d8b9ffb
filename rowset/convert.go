package rowset

import "sort"

// FromMaps converts decoded JSON records into Rows. JSON objects carry no
// column order, so columns are fixed in sorted header order to keep fuzzy
// lookups deterministic across runs. Numbers (and bools) become numeric
// values, strings become text, anything else is absent.
func FromMaps(records []map[string]any) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		cols := make([]string, 0, len(rec))
		for col := range rec {
			cols = append(cols, col)
		}
		sort.Strings(cols)

		var row Row
		for _, col := range cols {
			row.Set(col, valueOf(rec[col]))
		}
		rows = append(rows, row)
	}
	return rows
}

func valueOf(raw any) Value {
	switch v := raw.(type) {
	case float64:
		return Num(v)
	case int:
		return Num(float64(v))
	case string:
		return Str(v)
	case bool:
		if v {
			return Num(1)
		}
		return Num(0)
	}
	return None()
}
