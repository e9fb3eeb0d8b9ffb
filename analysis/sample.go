// Package analysis is the core of the BMS log analyzer: it fuses the
// independently sampled telemetry sheets into one time-indexed series, runs
// the anomaly rule engine over every fused sample, reconstructs discrete
// fault events from the sparse alarm log, and summarises the session.
package analysis

import (
	"strings"
	"time"
)

// RelayState is the tri-state reported for each of the six relay channels.
type RelayState int

const (
	RelayOff RelayState = iota
	RelayOn
	RelaySticking
)

// RelayCount is the number of relay channels the controller reports.
const RelayCount = 6

func (s RelayState) String() string {
	switch s {
	case RelayOn:
		return "on"
	case RelaySticking:
		return "sticking"
	}
	return "off"
}

// Sample is the unit of fusion: everything every source reported for one
// exact millisecond timestamp. Scalar fields are pointers because "no
// reading" and "reading of zero" must stay distinguishable; sources only
// ever add fields to a sample, never overwrite unrelated ones.
type Sample struct {
	Time      time.Time `json:"time"`
	Timestamp int64     `json:"timestamp"` // ms epoch, the fusion key
	DateKey   string    `json:"dateKey"`   // local YYYY-MM-DD, for day filtering

	// Cell-indexed readings. Indices come straight from the column headers
	// and are not guaranteed to start at zero.
	Cells     map[int]float64 `json:"cells,omitempty"` // millivolts
	Temps     map[int]float64 `json:"temps,omitempty"` // °C per numbered probe
	Balancing map[int]bool    `json:"balancing,omitempty"`

	PackVoltage *float64 `json:"packVoltage,omitempty"` // volts
	Current     *float64 `json:"current,omitempty"`     // amps, charge positive
	SOC         *float64 `json:"soc,omitempty"`         // shown SOC %
	RealSOC     *float64 `json:"realSoc,omitempty"`
	SOH         *float64 `json:"soh,omitempty"`

	InsulationSystem   *float64 `json:"insulationSystem,omitempty"` // kΩ
	InsulationPositive *float64 `json:"insulationPositive,omitempty"`
	InsulationNegative *float64 `json:"insulationNegative,omitempty"`

	MaxCellV  *float64 `json:"maxCellV,omitempty"` // millivolts
	MaxCellID *int     `json:"maxCellId,omitempty"`
	MinCellV  *float64 `json:"minCellV,omitempty"`
	MinCellID *int     `json:"minCellId,omitempty"`
	CellDiff  *float64 `json:"cellDiff,omitempty"` // mV, derived at fusion time

	MaxTemp   *float64 `json:"maxTemp,omitempty"` // °C
	MaxTempID *int     `json:"maxTempId,omitempty"`
	MinTemp   *float64 `json:"minTemp,omitempty"`
	MinTempID *int     `json:"minTempId,omitempty"`
	TempDiff  *float64 `json:"tempDiff,omitempty"` // °C, derived at fusion time

	SystemState   string            `json:"systemState,omitempty"`
	DigitalInputs map[string]string `json:"digitalInputs,omitempty"`

	// Relays is nil until the system-state source has merged this
	// timestamp; merging initialises all six channels to off first.
	Relays []RelayState `json:"relays,omitempty"`

	ChargedEnergy    *float64 `json:"chargedEnergy,omitempty"` // kWh counters
	DischargedEnergy *float64 `json:"dischargedEnergy,omitempty"`

	ChargerVoltage *float64 `json:"chargerVoltage,omitempty"`
	ChargerCurrent *float64 `json:"chargerCurrent,omitempty"`
	ChargeRequest  string   `json:"chargeRequest,omitempty"`
}

// Charging reports whether the pack looks to be charging at this instant,
// from the sign of the current (charge positive) or the system state label.
func (s *Sample) Charging() bool {
	if s.Current != nil && *s.Current > 0 {
		return true
	}
	return containsFold(s.SystemState, "charge") && !containsFold(s.SystemState, "discharge")
}

// StickingRelays returns the channels (zero-based) currently reported
// sticking, or nil.
func (s *Sample) StickingRelays() []int {
	var out []int
	for i, r := range s.Relays {
		if r == RelaySticking {
			out = append(out, i)
		}
	}
	return out
}

// CellIndexRange reports the span of cell indices seen anywhere in the
// ingested data.
type CellIndexRange struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count"`
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}
