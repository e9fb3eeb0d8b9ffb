// Package product holds the immutable catalog of known battery pack
// configurations and the logic that infers which one produced a log file.
// Per-cell voltage limits are always derived from the series cell count,
// never the total cell count: a 2P24S pack has 48 cells but its pack voltage
// divides across 24, and dividing by 48 silently halves every threshold.
package product

import (
	"math"
)

// Spec describes one catalog entry.
type Spec struct {
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	VoltageClass    int     `json:"voltageClass"`
	PackVoltageMin  float64 `json:"packVoltageMin"` // volts
	PackVoltageMax  float64 `json:"packVoltageMax"` // volts
	SeriesCellCount int     `json:"seriesCellCount"`
	ParallelStrings int     `json:"parallelStrings"`
	TotalCells      int     `json:"totalCells"`
}

// CellVoltageMinMV returns the derived per-cell lower limit in millivolts.
func (s Spec) CellVoltageMinMV() float64 {
	return s.PackVoltageMin / float64(s.SeriesCellCount) * 1000
}

// CellVoltageMaxMV returns the derived per-cell upper limit in millivolts.
func (s Spec) CellVoltageMaxMV() float64 {
	return s.PackVoltageMax / float64(s.SeriesCellCount) * 1000
}

// NominalPackVoltage is the midpoint of the pack voltage range, used to pick
// between catalog entries sharing a total cell count.
func (s Spec) NominalPackVoltage() float64 {
	return (s.PackVoltageMin + s.PackVoltageMax) / 2
}

// ExpectedPackVoltage scales a mean per-cell reading (mV) up through the
// series count.
func (s Spec) ExpectedPackVoltage(meanCellMV float64) float64 {
	return meanCellMV * float64(s.SeriesCellCount) / 1000
}

// MatchesPackVoltage checks a mean per-cell reading against the measured
// pack voltage with a 5% relative tolerance. A failure here means the
// declared series count cannot be right and every threshold derived from it
// is suspect.
func (s Spec) MatchesPackVoltage(meanCellMV, packVoltage float64) bool {
	expected := s.ExpectedPackVoltage(meanCellMV)
	if expected <= 0 {
		return false
	}
	return math.Abs(packVoltage-expected) <= expected*0.05
}

// Catalog is an ordered set of product specs.
type Catalog []Spec

// DefaultCatalog lists the shipped pack configurations. Treated as constant
// reference data; callers must not mutate it.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Key:             "hv80-1p24s",
			Name:            "80V 1P24S",
			VoltageClass:    80,
			PackVoltageMin:  60.0,
			PackVoltageMax:  87.6,
			SeriesCellCount: 24,
			ParallelStrings: 1,
			TotalCells:      24,
		},
		{
			Key:             "hv80-2p24s",
			Name:            "80V 2P24S",
			VoltageClass:    80,
			PackVoltageMin:  60.0,
			PackVoltageMax:  87.6,
			SeriesCellCount: 24,
			ParallelStrings: 2,
			TotalCells:      48,
		},
		{
			Key:             "hv96-1p32s",
			Name:            "96V 1P32S",
			VoltageClass:    96,
			PackVoltageMin:  80.0,
			PackVoltageMax:  116.8,
			SeriesCellCount: 32,
			ParallelStrings: 1,
			TotalCells:      32,
		},
		{
			Key:             "hv96-2p32s",
			Name:            "96V 2P32S",
			VoltageClass:    96,
			PackVoltageMin:  80.0,
			PackVoltageMax:  116.8,
			SeriesCellCount: 32,
			ParallelStrings: 2,
			TotalCells:      64,
		},
	}
}

// Detect picks the catalog entry for a dataset from the observed cell count
// and the pack voltage of the first sample. Exact total-cell matches win,
// disambiguated by nearest nominal pack voltage when several entries share a
// total. With no exact match two legacy fleets are recognised by raw count
// alone: 24 loose cells map to the smallest 80-class pack, 32 to the
// 96-class pack. Anything else returns nil and callers fall back to the
// generic per-voltage-class thresholds.
func (c Catalog) Detect(cellCount int, packVoltage float64) *Spec {
	var best *Spec
	bestDiff := math.MaxFloat64
	for i := range c {
		s := &c[i]
		if s.TotalCells != cellCount {
			continue
		}
		diff := math.Abs(packVoltage - s.NominalPackVoltage())
		if diff < bestDiff {
			bestDiff = diff
			best = s
		}
	}
	if best != nil {
		out := *best
		return &out
	}

	switch cellCount {
	case 24:
		return c.byKey("hv80-1p24s")
	case 32:
		return c.byKey("hv96-1p32s")
	}
	return nil
}

func (c Catalog) byKey(key string) *Spec {
	for i := range c {
		if c[i].Key == key {
			out := c[i]
			return &out
		}
	}
	return nil
}

// ClassForVoltage maps a measured pack voltage onto a legacy voltage class
// for the generic fallback thresholds.
func ClassForVoltage(packVoltage float64) int {
	if packVoltage >= 90 {
		return 96
	}
	return 80
}
