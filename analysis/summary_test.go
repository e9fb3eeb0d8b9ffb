package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

func TestExtractDeviceInfo(t *testing.T) {
	info := extractDeviceInfo(
		[]rowset.Row{mkrow(
			"Release name", "R4.2",
			"Firmware version", "1.0.17",
			"Burn ID", "7",
		)},
		[]rowset.Row{mkrow(
			"Firmware ID", "3a5f91bc",
			"Hardware ID", "deadbeef01",
		)},
	)

	assert.Equal(t, "R4.2", info.ReleaseName)
	assert.Equal(t, "1.0.17", info.FirmwareVersion)
	assert.Equal(t, "3a5f91bc", info.FirmwareID)
	assert.Equal(t, "deadbeef01", info.HardwareID)
	assert.Equal(t, "7", info.BurnID)
}

func TestExtractDeviceInfoHexFallback(t *testing.T) {
	// Headers drifted beyond every alias; the hex values are still picked
	// up as firmware then hardware ID.
	info := extractDeviceInfo([]rowset.Row{mkrow(
		"col1", "3a5f91bc",
		"col2", "deadbeef01",
		"col3", "notahexvalue",
	)}, nil)

	assert.Equal(t, "3a5f91bc", info.FirmwareID)
	assert.Equal(t, "deadbeef01", info.HardwareID)
	assert.Equal(t, unknownField, info.ReleaseName)
}

func TestExtractDeviceInfoAbsentSheets(t *testing.T) {
	info := extractDeviceInfo(nil, nil)
	assert.Equal(t, unknownField, info.ReleaseName)
	assert.Equal(t, unknownField, info.FirmwareID)
	assert.Equal(t, unknownField, info.HardwareID)
	assert.Equal(t, unknownField, info.FirmwareVersion)
	assert.Equal(t, unknownField, info.BurnID)
}

func TestLooksLikeHexID(t *testing.T) {
	assert.True(t, looksLikeHexID("deadbeef"))
	assert.True(t, looksLikeHexID("3A5F91BC00"))
	assert.False(t, looksLikeHexID("12345678"), "digits alone are likely a serial number")
	assert.False(t, looksLikeHexID("deadbe"))
	assert.False(t, looksLikeHexID("not hex!"))
}

func summaryTestSeries() []*Sample {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)
	mk := func(minute int) *Sample {
		ts := start.Add(time.Duration(minute) * time.Minute)
		return &Sample{
			Time:      ts,
			Timestamp: ts.UnixMilli(),
			DateKey:   ts.Format("2006-01-02"),
			Cells:     map[int]float64{1: 3380, 2: 3390},
		}
	}

	s0 := mk(0)
	s0.PackVoltage = fptr(81.0)
	s0.SOC = fptr(60.0)
	s0.SOH = fptr(93.0)
	s0.ChargedEnergy = fptr(100.0)
	s0.DischargedEnergy = fptr(80.0)
	s0.Balancing = map[int]bool{1: true}

	s1 := mk(10)
	s1.PackVoltage = fptr(82.4)
	s1.Current = fptr(15.0)
	s1.Temps = map[int]float64{1: 24, 2: 29}
	s1.Balancing = map[int]bool{1: true, 2: true}

	s2 := mk(20)
	s2.SOC = fptr(55.0)
	s2.SOH = fptr(92.0)
	s2.ChargedEnergy = fptr(110.0)
	s2.DischargedEnergy = fptr(88.0)

	return []*Sample{s0, s1, s2}
}

func TestComputeSessionStats(t *testing.T) {
	st := ComputeSessionStats(summaryTestSeries(), nil, nil, "")

	assert.Equal(t, 3, st.SampleCount)
	require.NotNil(t, st.DurationMinutes)
	assert.Equal(t, 20.0, *st.DurationMinutes)

	require.NotNil(t, st.PackVoltage)
	assert.Equal(t, 81.0, st.PackVoltage.Min)
	assert.Equal(t, 82.4, st.PackVoltage.Max)

	require.NotNil(t, st.CellVoltage)
	assert.Equal(t, 3380.0, st.CellVoltage.Min)
	assert.Equal(t, 3390.0, st.CellVoltage.Max)
	require.NotNil(t, st.CellVoltageSpread)
	assert.Equal(t, 10.0, *st.CellVoltageSpread)

	require.NotNil(t, st.Temperature)
	assert.Equal(t, 24.0, st.Temperature.Min)
	assert.Equal(t, 29.0, st.Temperature.Max)

	require.NotNil(t, st.SOCStart)
	assert.Equal(t, 60.0, *st.SOCStart)
	require.NotNil(t, st.SOCEnd)
	assert.Equal(t, 55.0, *st.SOCEnd)
	require.NotNil(t, st.SOHCurrent)
	assert.Equal(t, 92.0, *st.SOHCurrent)

	require.NotNil(t, st.EnergyCharged)
	assert.Equal(t, 10.0, *st.EnergyCharged)
	require.NotNil(t, st.EnergyDischarged)
	assert.Equal(t, 8.0, *st.EnergyDischarged)
	require.NotNil(t, st.RoundTripEfficiency)
	assert.InDelta(t, 0.8, *st.RoundTripEfficiency, 0.001)

	assert.Equal(t, 2, st.BalancedCellCount)
}

func TestComputeSessionStatsIndependentOptionals(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)
	series := []*Sample{{Time: ts, Timestamp: ts.UnixMilli(), DateKey: "2024-03-01"}}

	st := ComputeSessionStats(series, nil, nil, "")
	assert.Equal(t, 1, st.SampleCount)
	assert.Nil(t, st.PackVoltage)
	assert.Nil(t, st.Temperature)
	assert.Nil(t, st.SOCStart)
	assert.Nil(t, st.EnergyCharged)
	assert.Nil(t, st.RoundTripEfficiency)
	assert.Zero(t, st.BalancedCellCount)
}

func TestComputeSessionStatsDayFilter(t *testing.T) {
	series := summaryTestSeries()
	// Move the last sample to the next day.
	next := time.Date(2024, 3, 2, 8, 0, 0, 0, time.Local)
	series[2].Time = next
	series[2].Timestamp = next.UnixMilli()
	series[2].DateKey = "2024-03-02"

	anomalies := []Anomaly{
		{Type: AnomalyImbalance, Time: series[0].Time},
		{Type: AnomalyImbalance, Time: next},
	}
	events := []*FaultEvent{{Code: "CellOV", StartTime: next}}

	st := ComputeSessionStats(series, events, anomalies, "2024-03-01")
	assert.Equal(t, 2, st.SampleCount)
	assert.Equal(t, 1, st.AnomalyCount)
	assert.Equal(t, 0, st.FaultCount)
	// The day's last SOC reading is the 08:00 one.
	require.NotNil(t, st.SOCEnd)
	assert.Equal(t, 60.0, *st.SOCEnd)
}
