package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

func TestSeverityFromLabel(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"Lvl 1 Alarm", 1},
		{"Lvl 2 Alarm", 2},
		{"Lvl 3 Alarm", 3},
		{"level 2", 2},
		{"Normal", 0},
		{"", 0},
		{"Lvl 9 Alarm", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severityFromLabel(tt.in), tt.in)
	}
}

// buildSeries fuses a sample every minute over [start, start+n).
func buildSeries(start time.Time, n int) []*Sample {
	f := newFusion()
	var rows []rowset.Row
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute).Format("2006/01/02 15:04:05")
		rows = append(rows, voltageRow(ts, 4, 3300+float64(i), 0, 13.2))
	}
	f.addVoltages(rows)
	return f.series()
}

func TestFaultIntervalClosure(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)
	series := buildSeries(start, 20)

	alarms := []rowset.Row{
		mkrow("Time", "2024/03/01 08:00:00", "CellOV", ""),
		mkrow("Time", "2024/03/01 08:05:00", "CellOV", "Lvl 2 Alarm"),
		mkrow("Time", "2024/03/01 08:15:00", "CellOV", ""),
	}

	events := reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "CellOV", ev.Code)
	assert.Equal(t, "Cell overvoltage", ev.Name)
	assert.Equal(t, 2, ev.Severity)
	assert.Equal(t, "Lvl 2 Alarm", ev.SeverityLabel)
	assert.Equal(t, start.Add(5*time.Minute), ev.StartTime)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, start.Add(15*time.Minute), *ev.EndTime)
	require.NotNil(t, ev.DurationMinutes)
	assert.Equal(t, 10.0, *ev.DurationMinutes)
	assert.False(t, ev.Ongoing)

	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, start.Add(5*time.Minute), ev.Snapshot.Time)

	// Stats cover minutes 5 through 15 inclusive: cell voltages 3305..3315.
	require.NotNil(t, ev.Stats)
	require.NotNil(t, ev.Stats.CellVoltage)
	assert.Equal(t, 3305.0, ev.Stats.CellVoltage.Min)
	assert.Equal(t, 3315.0, ev.Stats.CellVoltage.Max)
	assert.Equal(t, 11*4, ev.Stats.CellVoltage.Count)
	assert.Nil(t, ev.Stats.Temperature, "channel with no readings stays nil")
	assert.Nil(t, ev.Stats.InsulationSystem)
}

func TestFaultSeverityUpdateInPlace(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)
	series := buildSeries(start, 20)

	alarms := []rowset.Row{
		mkrow("Time", "2024/03/01 08:01:00", "DsgOC", "Lvl 1 Alarm"),
		mkrow("Time", "2024/03/01 08:05:00", "DsgOC", "Lvl 3 Alarm"),
		mkrow("Time", "2024/03/01 08:10:00", "DsgOC", ""),
	}

	events := reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 1, "a severity change must not open a second event")
	assert.Equal(t, 3, events[0].Severity)
	assert.Equal(t, start.Add(1*time.Minute), events[0].StartTime)
}

func TestOngoingFault(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)
	series := buildSeries(start, 10) // last sample at 08:09:00

	alarms := []rowset.Row{
		mkrow("Time", "2024/03/01 08:02:00", "ChgOT", "Lvl 1 Alarm"),
	}

	events := reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 1)

	ev := events[0]
	assert.True(t, ev.Ongoing)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, start.Add(9*time.Minute), *ev.EndTime)
	require.NotNil(t, ev.DurationMinutes)
	assert.Equal(t, 7.0, *ev.DurationMinutes)
}

func TestStickingRelayEnrichesRelayFault(t *testing.T) {
	f := newFusion()
	f.addSystemState([]rowset.Row{mkrow(
		"Time", "2024/03/01 08:05:00",
		"Relay 3", "Sticking",
	)})
	series := f.series()

	alarms := []rowset.Row{
		mkrow("Time", "2024/03/01 08:05:00", "RelayFault", "Lvl 2 Alarm"),
	}

	events := reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 1)
	assert.Equal(t, []int{2}, events[0].StickingRelays)
	assert.Equal(t, "Relay fault (relay 3 sticking)", events[0].Name)
}

func TestSnapshotTolerance(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)
	series := buildSeries(start, 2) // samples at 08:00:00 and 08:01:00

	// One second after a sample: within tolerance, snapshots the nearest.
	alarms := []rowset.Row{
		mkrow("Time", "2024/03/01 08:00:01", "PackUV", "Lvl 1 Alarm"),
	}
	events := reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Snapshot)
	assert.Equal(t, start, events[0].Snapshot.Time)

	// 30 s from both samples: outside tolerance, no snapshot.
	alarms = []rowset.Row{
		mkrow("Time", "2024/03/01 08:00:30", "PackOV", "Lvl 1 Alarm"),
	}
	events = reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Snapshot)
}

func TestFaultEventsSortedDescending(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)
	series := buildSeries(start, 30)

	alarms := []rowset.Row{
		mkrow("Time", "2024/03/01 08:01:00", "CellUV", "Lvl 1 Alarm"),
		mkrow("Time", "2024/03/01 08:02:00", "CellUV", ""),
		mkrow("Time", "2024/03/01 08:10:00", "SOCLow", "Lvl 2 Alarm"),
		mkrow("Time", "2024/03/01 08:12:00", "SOCLow", ""),
		mkrow("Time", "2024/03/01 08:05:00", "TempDiff", "Lvl 1 Alarm"),
		mkrow("Time", "2024/03/01 08:06:00", "TempDiff", ""),
	}

	events := reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i-1].StartTime.Before(events[i].StartTime),
			"fault events must be sorted most recent first")
	}
	assert.Equal(t, "SOCLow", events[0].Code)
	assert.Equal(t, "CellUV", events[2].Code)
}

func TestUnknownCodeFallsBackToRawName(t *testing.T) {
	series := buildSeries(time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local), 5)
	alarms := []rowset.Row{
		mkrow("Time", "2024/03/01 08:01:00", "MysteryFault", "Lvl 1 Alarm"),
	}
	events := reconstructFaults(alarms, series, DefaultAlarmNames())
	require.Len(t, events, 1)
	assert.Equal(t, "MysteryFault", events[0].Name)
}
