package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectExactTotalCells(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name        string
		cellCount   int
		packVoltage float64
		wantKey     string
	}{
		{"1P24S", 24, 81.2, "hv80-1p24s"},
		{"2P24S", 48, 79.5, "hv80-2p24s"},
		{"1P32S", 32, 102.0, "hv96-1p32s"},
		{"2P32S", 64, 98.0, "hv96-2p32s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := catalog.Detect(tt.cellCount, tt.packVoltage)
			require.NotNil(t, spec)
			assert.Equal(t, tt.wantKey, spec.Key)
		})
	}
}

func TestDetectNoMatch(t *testing.T) {
	assert.Nil(t, DefaultCatalog().Detect(16, 51.2))
	assert.Nil(t, DefaultCatalog().Detect(0, 0))
}

// A 2P24S pack has 48 cells but only 24 in series. Per-cell limits must
// come from the series count: dividing the pack range by 48 would halve
// every threshold.
func TestCellLimitsUseSeriesCount(t *testing.T) {
	spec := DefaultCatalog().Detect(48, 80.0)
	require.NotNil(t, spec)
	assert.Equal(t, 24, spec.SeriesCellCount)
	assert.Equal(t, 48, spec.TotalCells)

	assert.InDelta(t, 2500.0, spec.CellVoltageMinMV(), 0.01) // 60.0 / 24
	assert.InDelta(t, 3650.0, spec.CellVoltageMaxMV(), 0.01) // 87.6 / 24
}

func TestMatchesPackVoltage(t *testing.T) {
	spec := DefaultCatalog().Detect(24, 81.2)
	require.NotNil(t, spec)

	// 3383 mV * 24 / 1000 = 81.2 V expected.
	assert.True(t, spec.MatchesPackVoltage(3383, 81.2))
	assert.True(t, spec.MatchesPackVoltage(3383, 84.0)) // within 5%
	assert.False(t, spec.MatchesPackVoltage(3383, 40.6))
	assert.False(t, spec.MatchesPackVoltage(3383, 120.0))
}

func TestExpectedPackVoltage(t *testing.T) {
	spec := DefaultCatalog().Detect(32, 100.0)
	require.NotNil(t, spec)
	assert.InDelta(t, 108.8, spec.ExpectedPackVoltage(3400), 0.01)
}

func TestClassForVoltage(t *testing.T) {
	assert.Equal(t, 80, ClassForVoltage(81.2))
	assert.Equal(t, 96, ClassForVoltage(102.0))
	assert.Equal(t, 96, ClassForVoltage(90.0))
}
