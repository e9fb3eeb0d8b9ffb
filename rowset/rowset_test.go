package rowset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Time", "Time"},
		{"  Time ", "Time"},
		{"\ufeffTime", "Time"},
		{"\ufeff  Cell volt.N+1 ", "Cell volt.N+1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanKey(tt.in))
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"slash and colon", "2024/03/01 08:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local), true},
		{"all spaces", "2024 03 01 08 00 00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local), true},
		{"mixed separators", "2024/03/01/08:00:05", time.Date(2024, 3, 1, 8, 0, 5, 0, time.Local), true},
		{"five components", "2024/03/01 08:00", time.Time{}, false},
		{"month 13", "2024/13/01 08:00:00", time.Time{}, false},
		{"day overflow", "2024/02/30 08:00:00", time.Time{}, false},
		{"trailing junk", "2024/03/01 08:00:00 PM", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValueFloat(t *testing.T) {
	v, ok := Num(3.5).Float()
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)

	v, ok = Str(" 81.2 ").Float()
	assert.True(t, ok)
	assert.Equal(t, 81.2, v)

	_, ok = Str("Close").Float()
	assert.False(t, ok)

	_, ok = None().Float()
	assert.False(t, ok)
}

func TestValPriorityAndFuzzyMatch(t *testing.T) {
	var row Row
	row.Set("\ufeffShown SOC（%）", Num(55))
	row.Set("Real SOC（%）", Num(57))
	row.Set("Current(A)", Num(-12.5))

	v, ok := row.Val("Shown SOC", "SOC")
	require.True(t, ok)
	f, _ := v.Float()
	assert.Equal(t, 55.0, f)

	// Substring containment matches "Real SOC（%）".
	v, ok = row.Val("Real SOC")
	require.True(t, ok)
	f, _ = v.Float()
	assert.Equal(t, 57.0, f)

	_, ok = row.Val("SOH")
	assert.False(t, ok)
}

func TestValSkipsSentinels(t *testing.T) {
	var row Row
	row.Set("Max temp", Str("Invalid"))
	row.Set("Highest temp", Num(31))

	// The first candidate hits a sentinel column; the lookup keeps going
	// and lands on the later usable column.
	v, ok := row.Val("Max temp", "Highest temp")
	require.True(t, ok)
	f, _ := v.Float()
	assert.Equal(t, 31.0, f)

	var empty Row
	empty.Set("Max temp", Str(""))
	_, ok = empty.Val("Max temp")
	assert.False(t, ok)
}

func TestFindSheet(t *testing.T) {
	sheets := map[string][]Row{
		"Voltages 0x9A":     make([]Row, 3),
		"Temperatures 0x09": make([]Row, 2),
		"System state 0x93": make([]Row, 1),
	}

	assert.Len(t, FindSheet(sheets, "voltage", "0x9a"), 3)
	assert.Len(t, FindSheet(sheets, "0x09"), 2)
	// First term misses, second hits.
	assert.Len(t, FindSheet(sheets, "nope", "system state"), 1)
	// A miss is an empty slice, safe to range over.
	assert.Empty(t, FindSheet(sheets, "alarm"))
}

func TestFromMaps(t *testing.T) {
	rows := FromMaps([]map[string]any{
		{"Time": "2024/03/01 08:00:00", "SOC": 55.0, "Relay 1": "Close", "spare": nil},
	})
	require.Len(t, rows, 1)

	v, ok := rows[0].Val("SOC")
	require.True(t, ok)
	f, _ := v.Float()
	assert.Equal(t, 55.0, f)
	assert.Equal(t, "Close", rows[0].Get("Relay 1").Text())
	assert.Equal(t, Absent, rows[0].Get("spare").Kind())
}
