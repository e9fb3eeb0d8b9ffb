package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

// snapshotToleranceMS bounds how far from a fault's start time the nearest
// fused sample may sit and still serve as its snapshot.
const snapshotToleranceMS = 2000

// ChannelStats is one channel's reduction over a fault interval.
type ChannelStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// FaultStats aggregates the monitored channels over a closed fault's
// interval. A channel with no valid reading in the interval stays nil.
type FaultStats struct {
	CellVoltage        *ChannelStats `json:"cellVoltage,omitempty"`
	Temperature        *ChannelStats `json:"temperature,omitempty"`
	InsulationSystem   *ChannelStats `json:"insulationSystem,omitempty"`
	InsulationPositive *ChannelStats `json:"insulationPositive,omitempty"`
	InsulationNegative *ChannelStats `json:"insulationNegative,omitempty"`
}

// FaultEvent is one reconstructed alarm interval: opened when a code's
// severity rises from 0, closed when it returns to 0 or the data ends.
type FaultEvent struct {
	Code            string      `json:"code"`
	Name            string      `json:"name"`
	Severity        int         `json:"severity"`
	SeverityLabel   string      `json:"severityLabel"`
	StartTime       time.Time   `json:"startTime"`
	EndTime         *time.Time  `json:"endTime,omitempty"`
	DurationMinutes *float64    `json:"durationMinutes,omitempty"`
	Ongoing         bool        `json:"ongoing"`
	Snapshot        *Sample     `json:"snapshot,omitempty"`
	Stats           *FaultStats `json:"stats,omitempty"`
	StickingRelays  []int       `json:"stickingRelays,omitempty"`
}

var severityLabelPattern = regexp.MustCompile(`(?i)l(?:vl|evel)\.?\s*(\d)`)

// severityFromLabel maps an alarm cell's text ("Lvl 2 Alarm") to 1-3.
// Empty or unrecognised text reads as 0, cleared.
func severityFromLabel(text string) int {
	m := severityLabelPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n := atoiDigits(m[1])
	if n < 1 || n > 3 {
		return 0
	}
	return n
}

// alarmReading is one (time, code, label) observation from the alarm sheet.
type alarmReading struct {
	t     time.Time
	code  string
	label string
}

// flattenAlarms turns the alarm rows into per-code observations in time
// order. Every non-time column is a fault code; the cell text is its
// severity label, absent meaning cleared.
func flattenAlarms(rows []rowset.Row) []alarmReading {
	var out []alarmReading
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		for _, col := range row.Columns() {
			code := rowset.CleanKey(col)
			if code == "" || containsFold(code, "time") || containsFold(code, "date") {
				continue
			}
			out = append(out, alarmReading{t: t, code: code, label: row.Get(col).Text()})
		}
	}
	// Rows usually arrive in time order already; the stable sort keeps
	// same-timestamp observations in column order.
	mergeSort(out, func(a, b alarmReading) bool { return a.t.Before(b.t) })
	return out
}

// reconstructFaults replays the sparse alarm log against the completed
// fused series. Severity transitions drive the event lifecycle: 0 to n
// opens, n to 0 closes, n to m only updates the open event's severity.
func reconstructFaults(alarmRows []rowset.Row, series []*Sample, names map[string]string) []*FaultEvent {
	readings := flattenAlarms(alarmRows)

	lastSeverity := make(map[string]int)
	open := make(map[string]*FaultEvent)
	var events []*FaultEvent

	for _, r := range readings {
		sev := severityFromLabel(r.label)
		if sev == lastSeverity[r.code] {
			continue
		}

		switch {
		case lastSeverity[r.code] == 0: // 0 -> n, open
			ev := &FaultEvent{
				Code:          r.code,
				Name:          faultName(r.code, names),
				Severity:      sev,
				SeverityLabel: r.label,
				StartTime:     r.t,
				Snapshot:      nearestSample(series, r.t.UnixMilli()),
			}
			if ev.Snapshot != nil {
				if sticking := ev.Snapshot.StickingRelays(); len(sticking) > 0 {
					ev.StickingRelays = sticking
					if isRelayCode(r.code) {
						ev.Name = relayFaultName(ev.Name, sticking)
					}
				}
			}
			open[r.code] = ev
			events = append(events, ev)

		case sev == 0: // n -> 0, close
			if ev := open[r.code]; ev != nil {
				closeFault(ev, r.t, series)
				delete(open, r.code)
			}

		default: // n -> m, severity change on an already open fault
			if ev := open[r.code]; ev != nil {
				ev.Severity = sev
				ev.SeverityLabel = r.label
			}
		}
		lastSeverity[r.code] = sev
	}

	// Codes never cleared are ongoing: pin the end to the last sample so
	// every event leaves with a defined end and duration.
	if len(open) > 0 {
		end := lastKnownTime(series, readings)
		for _, ev := range open {
			ev.Ongoing = true
			closeFault(ev, end, series)
		}
	}

	mergeSort(events, func(a, b *FaultEvent) bool { return a.StartTime.After(b.StartTime) })
	return events
}

// closeFault stamps the end time, duration and interval statistics.
func closeFault(ev *FaultEvent, end time.Time, series []*Sample) {
	t := end
	ev.EndTime = &t
	ev.DurationMinutes = fptr(float64(end.UnixMilli()-ev.StartTime.UnixMilli()) / 60000.0)
	ev.Stats = intervalStats(series, ev.StartTime.UnixMilli(), end.UnixMilli())
}

func lastKnownTime(series []*Sample, readings []alarmReading) time.Time {
	if len(series) > 0 {
		return series[len(series)-1].Time
	}
	return readings[len(readings)-1].t
}

func faultName(code string, names map[string]string) string {
	if name, ok := names[code]; ok {
		return name
	}
	return code
}

func isRelayCode(code string) bool {
	return containsFold(code, "relay")
}

func relayFaultName(base string, sticking []int) string {
	labels := make([]string, len(sticking))
	for i, ch := range sticking {
		labels[i] = fmt.Sprintf("relay %d", ch+1)
	}
	return fmt.Sprintf("%s (%s sticking)", base, strings.Join(labels, ", "))
}

// nearestSample finds the fused sample closest to the target millisecond
// timestamp, within the snapshot tolerance, by binary search over the
// ascending series.
func nearestSample(series []*Sample, target int64) *Sample {
	if len(series) == 0 {
		return nil
	}
	lo, hi := 0, len(series)
	for lo < hi {
		mid := (lo + hi) / 2
		if series[mid].Timestamp < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	// lo is the first sample at or after target; its predecessor is the
	// other candidate.
	best := -1
	if lo < len(series) {
		best = lo
	}
	if lo > 0 {
		if best < 0 || target-series[lo-1].Timestamp < series[best].Timestamp-target {
			best = lo - 1
		}
	}
	d := series[best].Timestamp - target
	if d < 0 {
		d = -d
	}
	if d > snapshotToleranceMS {
		return nil
	}
	return series[best]
}

// accum is a loop-driven min/max/avg reduction, nil-safe to finalise.
type accum struct {
	min, max, sum float64
	n             int
}

func (a *accum) add(v float64) {
	if a.n == 0 || v < a.min {
		a.min = v
	}
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

func (a *accum) finish() *ChannelStats {
	if a.n == 0 {
		return nil
	}
	return &ChannelStats{Min: a.min, Max: a.max, Avg: a.sum / float64(a.n), Count: a.n}
}

// intervalStats reduces every sample with start <= timestamp <= end.
func intervalStats(series []*Sample, start, end int64) *FaultStats {
	var cells, temps, insSys, insPos, insNeg accum
	for _, s := range series {
		if s.Timestamp < start {
			continue
		}
		if s.Timestamp > end {
			break
		}
		for _, v := range s.Cells {
			cells.add(v)
		}
		for _, v := range s.Temps {
			temps.add(v)
		}
		if s.InsulationSystem != nil {
			insSys.add(*s.InsulationSystem)
		}
		if s.InsulationPositive != nil {
			insPos.add(*s.InsulationPositive)
		}
		if s.InsulationNegative != nil {
			insNeg.add(*s.InsulationNegative)
		}
	}
	return &FaultStats{
		CellVoltage:        cells.finish(),
		Temperature:        temps.finish(),
		InsulationSystem:   insSys.finish(),
		InsulationPositive: insPos.finish(),
		InsulationNegative: insNeg.finish(),
	}
}
