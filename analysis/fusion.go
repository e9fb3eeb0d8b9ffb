package analysis

import (
	"regexp"
	"time"

	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

// fusion merges the independently sampled sheets into one map keyed by
// exact millisecond timestamp. Merging is strictly additive: a source only
// ever writes its own fields onto a sample, so the order sources are merged
// in cannot change the result for fields it does not own.
type fusion struct {
	samples map[int64]*Sample

	minCell, maxCell int
	cellsSeen        bool
}

func newFusion() *fusion {
	return &fusion{samples: make(map[int64]*Sample)}
}

// Column patterns per source. Headers drift between exporter versions but
// the digit suffix is stable, so patterns anchor on that.
var (
	cellVoltPattern  = regexp.MustCompile(`(?i)^cell\s*volt\D*(\d+)\s*$`)
	cellTempPattern  = regexp.MustCompile(`(?i)^cell\s*temp\D*(\d+)\s*$`)
	balancingPattern = regexp.MustCompile(`(?i)^balancing\s*state\D*(\d+)\s*$`)
	relayPattern     = regexp.MustCompile(`(?i)^relay\s*(\d+)$`)
	tempProbePattern = regexp.MustCompile(`(?i)^temp\D*(\d+)\s*$`)
)

// tempSanityFloor guards the tempDiff derivation: probe channels report
// large negative sentinels when disconnected.
const tempSanityFloor = -40.0

// rowTime extracts and parses a row's time column. A miss or malformed
// value means the row is silently dropped; bad timestamps are an expected
// property of these exports, not an anomaly.
func rowTime(row rowset.Row) (time.Time, bool) {
	v, ok := row.Val("Time", "timestamp", "date")
	if !ok {
		return time.Time{}, false
	}
	return rowset.ParseDate(v.Text())
}

// sampleAt looks up or creates the sample for a timestamp. The date key is
// derived once at creation so day filtering never re-walks the time value.
func (f *fusion) sampleAt(t time.Time) *Sample {
	ts := t.UnixMilli()
	if s, ok := f.samples[ts]; ok {
		return s
	}
	s := &Sample{
		Time:      t,
		Timestamp: ts,
		DateKey:   t.Format("2006-01-02"),
		Cells:     make(map[int]float64),
	}
	f.samples[ts] = s
	return s
}

func (f *fusion) trackCellIndex(idx int) {
	if !f.cellsSeen || idx < f.minCell {
		f.minCell = idx
	}
	if !f.cellsSeen || idx > f.maxCell {
		f.maxCell = idx
	}
	f.cellsSeen = true
}

// setFloat copies a numeric field from the row onto the sample if one of the
// candidate columns holds a parseable number. Parse failures leave the field
// unset rather than writing a zero.
func setFloat(dst **float64, row rowset.Row, candidates ...string) {
	if *dst != nil {
		return
	}
	v, ok := row.Val(candidates...)
	if !ok {
		return
	}
	if n, ok := v.Float(); ok {
		*dst = fptr(n)
	}
}

func setInt(dst **int, row rowset.Row, candidates ...string) {
	if *dst != nil {
		return
	}
	v, ok := row.Val(candidates...)
	if !ok {
		return
	}
	if n, ok := v.Float(); ok {
		*dst = iptr(int(n))
	}
}

// addVoltages merges the per-cell voltage source (sheet "Voltages 0x9A").
func (f *fusion) addVoltages(rows []rowset.Row) {
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		s := f.sampleAt(t)

		for _, col := range row.Columns() {
			m := cellVoltPattern.FindStringSubmatch(rowset.CleanKey(col))
			if m == nil {
				continue
			}
			idx := atoiDigits(m[1])
			if v, ok := row.Get(col).Float(); ok {
				s.Cells[idx] = v
				f.trackCellIndex(idx)
			}
		}

		setFloat(&s.PackVoltage, row, "Acc. voltage", "Pack voltage", "Total volt", "Power volt")
	}
}

// addTemperatures merges the temperature probe source (sheet
// "Temperatures 0x09").
func (f *fusion) addTemperatures(rows []rowset.Row) {
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		s := f.sampleAt(t)

		for _, col := range row.Columns() {
			key := rowset.CleanKey(col)
			m := cellTempPattern.FindStringSubmatch(key)
			if m == nil {
				m = tempProbePattern.FindStringSubmatch(key)
			}
			if m == nil {
				continue
			}
			idx := atoiDigits(m[1])
			if v, ok := row.Get(col).Float(); ok {
				if s.Temps == nil {
					s.Temps = make(map[int]float64)
				}
				s.Temps[idx] = v
			}
		}
	}
}

// addPeaks merges the peak statistics source (sheet "Peak data 0x9B") and
// derives cellDiff/tempDiff where both halves arrived together.
func (f *fusion) addPeaks(rows []rowset.Row) {
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		s := f.sampleAt(t)

		setFloat(&s.MaxCellV, row, "Max cell volt", "Highest cell volt", "Max volt")
		setInt(&s.MaxCellID, row, "Max cell volt No", "Max volt cell", "Max cell No")
		setFloat(&s.MinCellV, row, "Min cell volt", "Lowest cell volt", "Min volt")
		setInt(&s.MinCellID, row, "Min cell volt No", "Min volt cell", "Min cell No")

		setFloat(&s.MaxTemp, row, "Max temp", "Highest temp")
		setInt(&s.MaxTempID, row, "Max temp No", "Max temp probe")
		setFloat(&s.MinTemp, row, "Min temp", "Lowest temp")
		setInt(&s.MinTempID, row, "Min temp No", "Min temp probe")

		if s.CellDiff == nil && s.MaxCellV != nil && s.MinCellV != nil {
			s.CellDiff = fptr(*s.MaxCellV - *s.MinCellV)
		}
		if s.TempDiff == nil && s.MaxTemp != nil && s.MinTemp != nil &&
			*s.MaxTemp > tempSanityFloor && *s.MinTemp > tempSanityFloor {
			s.TempDiff = fptr(*s.MaxTemp - *s.MinTemp)
		}
	}
}

// relayStateFromValue maps the exporter's relay vocabulary onto the
// tri-state. Real logs have been seen with "Close", "ON" and bare 1 for a
// closed relay; anything unrecognised reads as off.
func relayStateFromValue(v rowset.Value) RelayState {
	text := v.Text()
	switch {
	case containsFold(text, "stick"):
		return RelaySticking
	case text == "Close" || text == "close" || text == "ON" || text == "on" || text == "1":
		return RelayOn
	}
	return RelayOff
}

// addSystemState merges the system state source (sheet "System state 0x93"):
// state label, current, SOC/SOH, insulation channels, relay and switch
// states.
func (f *fusion) addSystemState(rows []rowset.Row) {
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		s := f.sampleAt(t)

		if v, ok := row.Val("System state", "Sys state"); ok && s.SystemState == "" {
			s.SystemState = v.Text()
		}
		setFloat(&s.Current, row, "Current(A)", "Current")
		setFloat(&s.SOC, row, "Shown SOC", "SOC")
		setFloat(&s.RealSOC, row, "Real SOC")
		setFloat(&s.SOH, row, "SOH")
		setFloat(&s.InsulationSystem, row, "System insulation", "Insulation res")
		setFloat(&s.InsulationPositive, row, "Positive insulation", "Pos. insulation")
		setFloat(&s.InsulationNegative, row, "Negative insulation", "Neg. insulation")
		if s.PackVoltage == nil {
			setFloat(&s.PackVoltage, row, "Acc. voltage", "Pack voltage", "Power volt")
		}

		// The system-state source owns the relay channels: all six default
		// to off whenever it merges a timestamp, then observed columns
		// overwrite per channel.
		if s.Relays == nil {
			s.Relays = make([]RelayState, RelayCount)
		}
		for _, col := range row.Columns() {
			key := rowset.CleanKey(col)
			if m := relayPattern.FindStringSubmatch(key); m != nil {
				ch := atoiDigits(m[1]) - 1 // columns are "Relay 1".."Relay 6"
				if ch >= 0 && ch < RelayCount {
					s.Relays[ch] = relayStateFromValue(row.Get(col))
				}
				continue
			}
			if containsFold(key, "switch") || containsFold(key, "digital input") {
				if v := row.Get(col); v.Kind() != rowset.Absent {
					if s.DigitalInputs == nil {
						s.DigitalInputs = make(map[string]string)
					}
					s.DigitalInputs[key] = v.Text()
				}
			}
		}
	}
}

// addBalancing merges the balancing source (sheet "Balancing state 0x86").
// Idle cells report "No Balance".
func (f *fusion) addBalancing(rows []rowset.Row) {
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		s := f.sampleAt(t)

		for _, col := range row.Columns() {
			m := balancingPattern.FindStringSubmatch(rowset.CleanKey(col))
			if m == nil {
				continue
			}
			idx := atoiDigits(m[1])
			v := row.Get(col)
			if v.Kind() == rowset.Absent {
				continue
			}
			if s.Balancing == nil {
				s.Balancing = make(map[int]bool)
			}
			s.Balancing[idx] = balancingActive(v)
			f.trackCellIndex(idx)
		}
	}
}

func balancingActive(v rowset.Value) bool {
	text := v.Text()
	switch {
	case text == "" || text == "0":
		return false
	case containsFold(text, "no balance"), containsFold(text, "off"):
		return false
	}
	return true
}

// addEnergy merges the energy counter source (sheet
// "(Dis)charged energy 0x89").
func (f *fusion) addEnergy(rows []rowset.Row) {
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		s := f.sampleAt(t)
		setFloat(&s.ChargedEnergy, row, "Charged energy", "Charge energy")
		setFloat(&s.DischargedEnergy, row, "Discharged energy", "Discharge energy")
	}
}

// addCharging merges the charging session source (sheet "Charging 0x99").
func (f *fusion) addCharging(rows []rowset.Row) {
	for _, row := range rows {
		t, ok := rowTime(row)
		if !ok {
			continue
		}
		s := f.sampleAt(t)
		setFloat(&s.ChargerVoltage, row, "Charger voltage", "Charger volt")
		setFloat(&s.ChargerCurrent, row, "Charger current", "Charger curr")
		if v, ok := row.Val("Charge request", "Request"); ok && s.ChargeRequest == "" {
			s.ChargeRequest = v.Text()
		}
	}
}

// series returns every fused sample sorted ascending by timestamp.
// Timestamps are unique by construction (they are the map key), so the
// order is total.
func (f *fusion) series() []*Sample {
	out := make([]*Sample, 0, len(f.samples))
	for _, s := range f.samples {
		out = append(out, s)
	}
	mergeSort(out, func(a, b *Sample) bool { return a.Timestamp < b.Timestamp })
	return out
}

// cellIndexRange reports the observed index span, or nil when no cell
// column was ever seen.
func (f *fusion) cellIndexRange() *CellIndexRange {
	if !f.cellsSeen {
		return nil
	}
	return &CellIndexRange{
		Min:   f.minCell,
		Max:   f.maxCell,
		Count: f.maxCell - f.minCell + 1,
	}
}

func atoiDigits(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
