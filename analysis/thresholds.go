package analysis

// All numeric breakpoints used by the rule engine live here as plain
// configuration data. Nothing in rules.go hardcodes a limit: the engine is
// handed a RuleConfig once and treats it as immutable for the run. The
// defaults are the charge-aware rule generation; deployments can override
// individual values through the config package.

// Band holds a three-level breakpoint set. Direction (rising or falling)
// is decided by the detector using it.
type Band struct {
	Level1 float64 `mapstructure:"level-1" json:"level1"`
	Level2 float64 `mapstructure:"level-2" json:"level2"`
	Level3 float64 `mapstructure:"level-3" json:"level3"`
}

// classifyRising returns the severity for a value against a rising band
// (higher is worse), checking critical before warning before info.
func (b Band) classifyRising(v float64) int {
	switch {
	case v > b.Level3:
		return 3
	case v > b.Level2:
		return 2
	case v > b.Level1:
		return 1
	}
	return 0
}

// classifyFalling returns the severity for a value against a falling band
// (lower is worse).
func (b Band) classifyFalling(v float64) int {
	switch {
	case v < b.Level3:
		return 3
	case v < b.Level2:
		return 2
	case v < b.Level1:
		return 1
	}
	return 0
}

// RangeBand pairs a falling low band with a rising high band for
// parameters that can fault in both directions.
type RangeBand struct {
	Low  Band `mapstructure:"low" json:"low"`
	High Band `mapstructure:"high" json:"high"`
}

func (rb RangeBand) classify(v float64) int {
	if sev := rb.Low.classifyFalling(v); sev > 0 {
		return sev
	}
	return rb.High.classifyRising(v)
}

// OutlierTier is one rung of the hybrid statistical gate: the absolute
// deviation AND the z-score must both clear it. A zero ZScore means the
// tier is purely absolute.
type OutlierTier struct {
	Severity int     `mapstructure:"severity" json:"severity"`
	AbsMV    float64 `mapstructure:"abs-mv" json:"absMv"`
	ZScore   float64 `mapstructure:"z-score" json:"zScore"`
}

func (t OutlierTier) matches(absDev, z float64) bool {
	return absDev > t.AbsMV && z > t.ZScore
}

// RuleConfig carries every threshold the engine consults.
type RuleConfig struct {
	// Fixed deadband beyond the product spec's per-cell limits. Filters
	// normal charger CC/CV overshoot and sensor noise; a constant, not a
	// derived quantity.
	CellSpecHysteresisMV float64 `mapstructure:"cell-spec-hysteresis-mv" json:"cellSpecHysteresisMv"`

	// Plausibility window for a cell voltage reading, in mV. Readings
	// outside it are excluded from statistics.
	ValidCellMinMV float64 `mapstructure:"valid-cell-min-mv" json:"validCellMinMv"`
	ValidCellMaxMV float64 `mapstructure:"valid-cell-max-mv" json:"validCellMaxMv"`

	// Hybrid outlier tiers, evaluated in order, first match wins. The last
	// tier's absolute gate is the global floor: below it a cell is never
	// flagged no matter how inflated its z-score.
	OutlierTiers []OutlierTier `mapstructure:"outlier-tiers" json:"outlierTiers"`

	// Cell delta (imbalance) bands in mV, rising.
	Imbalance Band `mapstructure:"imbalance" json:"imbalance"`
	// Below this SOC a level-2 imbalance escalates straight to critical
	// (cell reversal risk under continued discharge).
	ImbalanceLowSOC float64 `mapstructure:"imbalance-low-soc" json:"imbalanceLowSoc"`

	// Generic pack voltage bands per legacy voltage class ("80", "96"),
	// used when no product was detected or its configuration is
	// mistrusted.
	PackVoltage map[string]RangeBand `mapstructure:"pack-voltage" json:"packVoltage"`

	// Temperature bands in °C, context-aware: charge and discharge carry
	// different limits.
	TempDischargeHigh Band `mapstructure:"temp-discharge-high" json:"tempDischargeHigh"`
	TempDischargeLow  Band `mapstructure:"temp-discharge-low" json:"tempDischargeLow"`
	TempChargeHigh    Band `mapstructure:"temp-charge-high" json:"tempChargeHigh"`
	TempChargeLow     Band `mapstructure:"temp-charge-low" json:"tempChargeLow"`

	// Probe spread band in °C, rising.
	TempImbalance Band `mapstructure:"temp-imbalance" json:"tempImbalance"`

	// Insulation resistance bands in kΩ, falling.
	Insulation Band `mapstructure:"insulation" json:"insulation"`

	// SOC/SOH bands in %, falling.
	SOCLow Band `mapstructure:"soc-low" json:"socLow"`
	SOHLow Band `mapstructure:"soh-low" json:"sohLow"`

	// Compound escalation inputs.
	HighSOC      float64 `mapstructure:"high-soc" json:"highSoc"`            // %, high temp + high SOC
	HighCurrentA float64 `mapstructure:"high-current-a" json:"highCurrentA"` // A, high temp + high current
}

// DefaultRuleConfig returns the shipped thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		CellSpecHysteresisMV: 50,
		ValidCellMinMV:       1000,
		ValidCellMaxMV:       5000,
		OutlierTiers: []OutlierTier{
			{Severity: 3, AbsMV: 300, ZScore: 0},
			{Severity: 3, AbsMV: 200, ZScore: 4.5},
			{Severity: 3, AbsMV: 200, ZScore: 3.0},
			{Severity: 2, AbsMV: 100, ZScore: 2.5},
			{Severity: 1, AbsMV: 80, ZScore: 2.0},
		},
		Imbalance:       Band{Level1: 30, Level2: 100, Level3: 200},
		ImbalanceLowSOC: 20,
		PackVoltage: map[string]RangeBand{
			"80": {
				Low:  Band{Level1: 68, Level2: 64, Level3: 60},
				High: Band{Level1: 84, Level2: 86, Level3: 88},
			},
			"96": {
				Low:  Band{Level1: 90, Level2: 85, Level3: 80},
				High: Band{Level1: 112, Level2: 115, Level3: 117},
			},
		},
		TempDischargeHigh: Band{Level1: 50, Level2: 55, Level3: 60},
		TempDischargeLow:  Band{Level1: -20, Level2: -25, Level3: -30},
		TempChargeHigh:    Band{Level1: 45, Level2: 50, Level3: 55},
		TempChargeLow:     Band{Level1: 0, Level2: -5, Level3: -10},
		TempImbalance:     Band{Level1: 8, Level2: 12, Level3: 15},
		Insulation:        Band{Level1: 1000, Level2: 500, Level3: 100},
		SOCLow:            Band{Level1: 20, Level2: 10, Level3: 5},
		SOHLow:            Band{Level1: 90, Level2: 80, Level3: 70},
		HighSOC:           90,
		HighCurrentA:      100,
	}
}
