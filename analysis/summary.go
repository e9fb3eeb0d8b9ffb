package analysis

import (
	"time"

	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

// DeviceInfo is the flat identity record pulled from the device-info and
// device-list sheets. Fields the sheets never provided read "unknown".
type DeviceInfo struct {
	ReleaseName     string `json:"releaseName"`
	FirmwareID      string `json:"firmwareId"`
	HardwareID      string `json:"hardwareId"`
	FirmwareVersion string `json:"firmwareVersion"`
	BurnID          string `json:"burnId"`
}

const unknownField = "unknown"

// extractDeviceInfo reads identity fields from the first row of each
// identity sheet. Alias lookup first; the hex-string heuristic mops up ID
// fields whose column header drifted beyond recognition.
func extractDeviceInfo(infoRows, listRows []rowset.Row) DeviceInfo {
	info := DeviceInfo{
		ReleaseName:     unknownField,
		FirmwareID:      unknownField,
		HardwareID:      unknownField,
		FirmwareVersion: unknownField,
		BurnID:          unknownField,
	}

	rows := make([]rowset.Row, 0, 2)
	if len(infoRows) > 0 {
		rows = append(rows, infoRows[0])
	}
	if len(listRows) > 0 {
		rows = append(rows, listRows[0])
	}

	for _, row := range rows {
		setIdentity(&info.ReleaseName, row, "Release name", "Release", "Version name")
		setIdentity(&info.FirmwareVersion, row, "Firmware version", "FW version", "Software version")
		setIdentity(&info.FirmwareID, row, "Firmware ID", "FW ID")
		setIdentity(&info.HardwareID, row, "Hardware ID", "HW ID")
		setIdentity(&info.BurnID, row, "Burn ID", "Burn")
	}

	// Identity sheets from older export tools carry bare ID columns with
	// unrecognisable headers; a long hex value is assumed to be the
	// firmware ID, a second one the hardware ID.
	for _, row := range rows {
		for _, col := range row.Columns() {
			v := row.Get(col)
			if v.Kind() == rowset.Absent || !looksLikeHexID(v.Text()) {
				continue
			}
			switch {
			case info.FirmwareID == unknownField:
				info.FirmwareID = v.Text()
			case info.HardwareID == unknownField && v.Text() != info.FirmwareID:
				info.HardwareID = v.Text()
			}
		}
	}
	return info
}

func setIdentity(dst *string, row rowset.Row, candidates ...string) {
	if *dst != unknownField {
		return
	}
	if v, ok := row.Val(candidates...); ok {
		*dst = v.Text()
	}
}

// looksLikeHexID reports whether a value resembles a burned-in identifier:
// eight or more hex digits, at least one of them a letter.
func looksLikeHexID(s string) bool {
	if len(s) < 8 {
		return false
	}
	hasLetter := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			hasLetter = true
		default:
			return false
		}
	}
	return hasLetter
}

// Aggregate is an independently optional min/max pair: nil when the source
// channel was never populated.
type Aggregate struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SessionStats rolls the fused series up into session-level aggregates.
// Every field is independently optional: a log with no temperature probes
// still summarises cleanly with Temperature nil.
type SessionStats struct {
	SampleCount int        `json:"sampleCount"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	// Minutes between the first and last sample in scope.
	DurationMinutes *float64 `json:"durationMinutes,omitempty"`

	PackVoltage *Aggregate `json:"packVoltage,omitempty"` // V
	Current     *Aggregate `json:"current,omitempty"`     // A
	CellVoltage *Aggregate `json:"cellVoltage,omitempty"` // mV
	Temperature *Aggregate `json:"temperature,omitempty"` // °C

	CellVoltageSpread *float64 `json:"cellVoltageSpread,omitempty"` // mV
	TemperatureSpread *float64 `json:"temperatureSpread,omitempty"` // °C

	SOCStart *float64 `json:"socStart,omitempty"`
	SOCEnd   *float64 `json:"socEnd,omitempty"`
	SOC      *Aggregate `json:"soc,omitempty"`

	SOHCurrent *float64   `json:"sohCurrent,omitempty"`
	SOH        *Aggregate `json:"soh,omitempty"`

	EnergyCharged       *float64 `json:"energyCharged,omitempty"`    // kWh over the session
	EnergyDischarged    *float64 `json:"energyDischarged,omitempty"` // kWh over the session
	RoundTripEfficiency *float64 `json:"roundTripEfficiency,omitempty"`

	// Distinct cells observed actively balancing at any point.
	BalancedCellCount int `json:"balancedCellCount"`

	FaultCount   int `json:"faultCount"`
	AnomalyCount int `json:"anomalyCount"`

	// Day restriction applied, empty when the whole session was summarised.
	Day string `json:"day,omitempty"`
}

// ComputeSessionStats reduces the series, fault events and anomalies into
// one SessionStats. A non-empty day ("2006-01-02") restricts everything to
// that local calendar day.
func ComputeSessionStats(series []*Sample, events []*FaultEvent, anomalies []Anomaly, day string) *SessionStats {
	st := &SessionStats{Day: day}

	var pack, current, cellV, temp, soc, soh accum
	var firstSOC, lastSOC, lastSOH *float64
	var firstCharged, lastCharged, firstDischarged, lastDischarged *float64
	balanced := make(map[int]bool)

	for _, s := range series {
		if day != "" && s.DateKey != day {
			continue
		}
		st.SampleCount++
		if st.StartTime == nil {
			t := s.Time
			st.StartTime = &t
		}
		t := s.Time
		st.EndTime = &t

		if s.PackVoltage != nil {
			pack.add(*s.PackVoltage)
		}
		if s.Current != nil {
			current.add(*s.Current)
		}
		for _, v := range s.Cells {
			cellV.add(v)
		}
		for _, v := range s.Temps {
			temp.add(v)
		}
		if s.SOC != nil {
			soc.add(*s.SOC)
			if firstSOC == nil {
				firstSOC = s.SOC
			}
			lastSOC = s.SOC
		}
		if s.SOH != nil {
			soh.add(*s.SOH)
			lastSOH = s.SOH
		}
		if s.ChargedEnergy != nil {
			if firstCharged == nil {
				firstCharged = s.ChargedEnergy
			}
			lastCharged = s.ChargedEnergy
		}
		if s.DischargedEnergy != nil {
			if firstDischarged == nil {
				firstDischarged = s.DischargedEnergy
			}
			lastDischarged = s.DischargedEnergy
		}
		for idx, active := range s.Balancing {
			if active {
				balanced[idx] = true
			}
		}
	}

	if st.StartTime != nil && st.EndTime != nil {
		st.DurationMinutes = fptr(float64(st.EndTime.UnixMilli()-st.StartTime.UnixMilli()) / 60000.0)
	}

	st.PackVoltage = aggregateOf(pack)
	st.Current = aggregateOf(current)
	st.CellVoltage = aggregateOf(cellV)
	st.Temperature = aggregateOf(temp)
	st.SOC = aggregateOf(soc)
	st.SOH = aggregateOf(soh)
	if cellV.n > 0 {
		st.CellVoltageSpread = fptr(cellV.max - cellV.min)
	}
	if temp.n > 0 {
		st.TemperatureSpread = fptr(temp.max - temp.min)
	}
	st.SOCStart = firstSOC
	st.SOCEnd = lastSOC
	st.SOHCurrent = lastSOH

	// The exporter's energy counters are cumulative, so the session totals
	// are last minus first observed.
	if firstCharged != nil && lastCharged != nil {
		st.EnergyCharged = fptr(*lastCharged - *firstCharged)
	}
	if firstDischarged != nil && lastDischarged != nil {
		st.EnergyDischarged = fptr(*lastDischarged - *firstDischarged)
	}
	if st.EnergyCharged != nil && st.EnergyDischarged != nil && *st.EnergyCharged > 0 {
		st.RoundTripEfficiency = fptr(*st.EnergyDischarged / *st.EnergyCharged)
	}

	st.BalancedCellCount = len(balanced)

	for _, ev := range events {
		if day == "" || ev.StartTime.Format("2006-01-02") == day {
			st.FaultCount++
		}
	}
	for _, a := range anomalies {
		if day == "" || a.Time.Format("2006-01-02") == day {
			st.AnomalyCount++
		}
	}
	return st
}

func aggregateOf(a accum) *Aggregate {
	if a.n == 0 {
		return nil
	}
	return &Aggregate{Min: a.min, Max: a.max}
}
