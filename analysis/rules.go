package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/ericfowler-dev/bms-log-analyzer/product"
)

// Anomaly severities.
const (
	SeverityInfo     = 1
	SeverityWarning  = 2
	SeverityCritical = 3
)

// Anomaly type vocabulary. Consumers key on these strings.
const (
	AnomalyImbalance       = "imbalance"
	AnomalyVoltage         = "voltage"
	AnomalyCellVoltageSpec = "cell_voltage_spec"
	AnomalyVoltageOutlier  = "voltage_outlier"
	AnomalyPackVoltage     = "pack_voltage"
	AnomalyPackVoltageSpec = "pack_voltage_spec"
	AnomalyTemperature     = "temperature"
	AnomalyTempImbalance   = "temp_imbalance"
	AnomalyInsulation      = "insulation"
	AnomalySOC             = "soc"
	AnomalySOCDataFault    = "soc_data_fault"
	AnomalySOH             = "soh"
	AnomalyCompoundFault   = "compound_fault"
	AnomalyConfigMismatch  = "config_mismatch"
)

// Anomaly is one immutable detection record. Anomalies are append-only:
// never deduplicated, never mutated after creation.
type Anomaly struct {
	Type        string         `json:"type"`
	Time        time.Time      `json:"time"`
	Description string         `json:"description"`
	Severity    int            `json:"severity"`
	Cells       []CellEvidence `json:"cells,omitempty"`
}

// CellEvidence names a cell implicated in an anomaly together with the
// numbers that condemned it.
type CellEvidence struct {
	Index       int     `json:"index"`
	VoltageMV   float64 `json:"voltageMv"`
	DeviationMV float64 `json:"deviationMv,omitempty"`
	ZScore      float64 `json:"zScore,omitempty"`
}

// engine runs the detector passes over the completed fused series. The
// passes are independent: each sees the same finished series and none
// suppresses another's output, with the single exception of the
// configuration-mismatch guard disabling the spec-derived checks.
type engine struct {
	cfg         RuleConfig
	spec        *product.Spec
	specTrusted bool
	anomalies   []Anomaly
}

func (e *engine) emit(a Anomaly) {
	e.anomalies = append(e.anomalies, a)
}

// run scans every sample. A missing input field skips that check for that
// sample; detectors never fabricate a default reading.
func (e *engine) run(series []*Sample) {
	for _, s := range series {
		warnings := 0
		warnings += e.checkCellSpec(s)
		warnings += e.checkOutliers(s)
		warnings += e.checkImbalance(s)
		warnings += e.checkPackVoltage(s)
		warnings += e.checkTemperature(s)
		warnings += e.checkTempImbalance(s)
		warnings += e.checkInsulation(s)
		warnings += e.checkSOC(s)
		warnings += e.checkSOH(s)
		e.checkCompound(s, warnings)
	}
}

// checkCellSpec flags cells beyond the product spec's per-cell limits.
// The fixed hysteresis deadband sits outside the limit so that normal
// charger CC/CV overshoot does not fire it: a reading must be strictly
// beyond limit+deadband. Skipped entirely when the configuration is not
// trusted, since the limits would be derived from a wrong series count.
func (e *engine) checkCellSpec(s *Sample) int {
	if !e.specTrusted || e.spec == nil || len(s.Cells) == 0 {
		return 0
	}
	maxMV := e.spec.CellVoltageMaxMV() + e.cfg.CellSpecHysteresisMV
	minMV := e.spec.CellVoltageMinMV() - e.cfg.CellSpecHysteresisMV

	var over, under []CellEvidence
	for _, idx := range sortedCellIndices(s.Cells) {
		v := s.Cells[idx]
		if v > maxMV {
			over = append(over, CellEvidence{Index: idx, VoltageMV: v})
		} else if v < minMV {
			under = append(under, CellEvidence{Index: idx, VoltageMV: v})
		}
	}
	if len(over) > 0 {
		e.emit(Anomaly{
			Type:     AnomalyCellVoltageSpec,
			Time:     s.Time,
			Severity: SeverityCritical,
			Description: fmt.Sprintf("%d cell(s) above the %s per-cell limit of %.0f mV",
				len(over), e.spec.Name, e.spec.CellVoltageMaxMV()),
			Cells: over,
		})
	}
	if len(under) > 0 {
		e.emit(Anomaly{
			Type:     AnomalyCellVoltageSpec,
			Time:     s.Time,
			Severity: SeverityCritical,
			Description: fmt.Sprintf("%d cell(s) below the %s per-cell limit of %.0f mV",
				len(under), e.spec.Name, e.spec.CellVoltageMinMV()),
			Cells: under,
		})
	}
	return 0
}

// checkOutliers is the hybrid statistical detector: a cell is flagged only
// when its absolute deviation from the pack mean AND its z-score both clear
// a tier. The absolute floor on the lowest tier keeps tightly matched small
// packs from flagging trivial gaps with inflated z-scores.
func (e *engine) checkOutliers(s *Sample) int {
	type reading struct {
		idx int
		mv  float64
	}
	var valid []reading
	for _, idx := range sortedCellIndices(s.Cells) {
		v := s.Cells[idx]
		if v > e.cfg.ValidCellMinMV && v < e.cfg.ValidCellMaxMV {
			valid = append(valid, reading{idx, v})
		}
	}
	if len(valid) < 3 {
		return 0
	}

	var sum float64
	for _, r := range valid {
		sum += r.mv
	}
	mean := sum / float64(len(valid))

	var sumSq float64
	for _, r := range valid {
		d := r.mv - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(valid)))

	warnings := 0
	for _, r := range valid {
		dev := r.mv - mean
		absDev := math.Abs(dev)
		z := 0.0
		if std > 0 {
			z = absDev / std
		}
		for _, tier := range e.cfg.OutlierTiers {
			if !tier.matches(absDev, z) {
				continue
			}
			if tier.Severity == SeverityWarning {
				warnings++
			}
			e.emit(Anomaly{
				Type:     AnomalyVoltageOutlier,
				Time:     s.Time,
				Severity: tier.Severity,
				Description: fmt.Sprintf("cell %d deviates %.0f mV from pack mean %.0f mV (z=%.1f)",
					r.idx, dev, mean, z),
				Cells: []CellEvidence{{Index: r.idx, VoltageMV: r.mv, DeviationMV: dev, ZScore: z}},
			})
			break // highest tier wins, one finding per cell
		}
	}
	return warnings
}

// checkImbalance classifies the max-min cell delta. A level-2 spread on a
// nearly empty pack is already a cell reversal risk, so spread beyond the
// level-2 band with SOC under the floor is always critical.
func (e *engine) checkImbalance(s *Sample) int {
	if s.CellDiff == nil {
		return 0
	}
	d := *s.CellDiff
	sev := e.cfg.Imbalance.classifyRising(d)
	if sev == 0 {
		return 0
	}
	desc := fmt.Sprintf("cell voltage spread of %.0f mV", d)
	if d > e.cfg.Imbalance.Level2 && s.SOC != nil && *s.SOC < e.cfg.ImbalanceLowSOC {
		sev = SeverityCritical
		desc = fmt.Sprintf("cell voltage spread of %.0f mV at %.0f%% SOC, cell reversal risk", d, *s.SOC)
	}
	e.emit(Anomaly{Type: AnomalyImbalance, Time: s.Time, Severity: sev, Description: desc})
	if sev == SeverityWarning {
		return 1
	}
	return 0
}

// checkPackVoltage uses the trusted product spec's pack range when
// available, otherwise the generic per-voltage-class bands.
func (e *engine) checkPackVoltage(s *Sample) int {
	if s.PackVoltage == nil {
		return 0
	}
	v := *s.PackVoltage

	if e.specTrusted && e.spec != nil {
		if v < e.spec.PackVoltageMin || v > e.spec.PackVoltageMax {
			e.emit(Anomaly{
				Type:     AnomalyPackVoltageSpec,
				Time:     s.Time,
				Severity: SeverityCritical,
				Description: fmt.Sprintf("pack voltage %.1f V outside the %s range %.1f-%.1f V",
					v, e.spec.Name, e.spec.PackVoltageMin, e.spec.PackVoltageMax),
			})
		}
		return 0
	}

	class := fmt.Sprintf("%d", product.ClassForVoltage(v))
	band, ok := e.cfg.PackVoltage[class]
	if !ok {
		return 0
	}
	sev := band.classify(v)
	if sev == 0 {
		return 0
	}
	e.emit(Anomaly{
		Type:        AnomalyPackVoltage,
		Time:        s.Time,
		Severity:    sev,
		Description: fmt.Sprintf("pack voltage %.1f V outside the %sV-class normal band", v, class),
	})
	if sev == SeverityWarning {
		return 1
	}
	return 0
}

// checkTemperature applies the charge/discharge-aware bands. Charging
// below freezing plates lithium regardless of how mild the reading looks,
// so that case is always critical.
func (e *engine) checkTemperature(s *Sample) int {
	charging := s.Charging()
	warnings := 0

	if s.MaxTemp != nil && *s.MaxTemp > tempSanityFloor {
		high := e.cfg.TempDischargeHigh
		if charging {
			high = e.cfg.TempChargeHigh
		}
		if sev := high.classifyRising(*s.MaxTemp); sev > 0 {
			if sev == SeverityWarning {
				warnings++
			}
			e.emit(Anomaly{
				Type:        AnomalyTemperature,
				Time:        s.Time,
				Severity:    sev,
				Description: fmt.Sprintf("max temperature %.1f °C while %s", *s.MaxTemp, chargeWord(charging)),
			})
		}
	}

	if s.MinTemp != nil && *s.MinTemp > tempSanityFloor {
		t := *s.MinTemp
		if charging && t < 0 {
			e.emit(Anomaly{
				Type:        AnomalyTemperature,
				Time:        s.Time,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("charging at %.1f °C, below freezing", t),
			})
		} else {
			low := e.cfg.TempDischargeLow
			if charging {
				low = e.cfg.TempChargeLow
			}
			if sev := low.classifyFalling(t); sev > 0 {
				if sev == SeverityWarning {
					warnings++
				}
				e.emit(Anomaly{
					Type:        AnomalyTemperature,
					Time:        s.Time,
					Severity:    sev,
					Description: fmt.Sprintf("min temperature %.1f °C while %s", t, chargeWord(charging)),
				})
			}
		}
	}
	return warnings
}

func chargeWord(charging bool) string {
	if charging {
		return "charging"
	}
	return "discharging"
}

func (e *engine) checkTempImbalance(s *Sample) int {
	if s.TempDiff == nil {
		return 0
	}
	sev := e.cfg.TempImbalance.classifyRising(*s.TempDiff)
	if sev == 0 {
		return 0
	}
	e.emit(Anomaly{
		Type:        AnomalyTempImbalance,
		Time:        s.Time,
		Severity:    sev,
		Description: fmt.Sprintf("temperature spread of %.1f °C across probes", *s.TempDiff),
	})
	if sev == SeverityWarning {
		return 1
	}
	return 0
}

// checkInsulation classifies the worst (lowest) of the insulation channels
// that reported.
func (e *engine) checkInsulation(s *Sample) int {
	worst := math.MaxFloat64
	channel := ""
	for _, c := range []struct {
		name string
		v    *float64
	}{
		{"system", s.InsulationSystem},
		{"positive", s.InsulationPositive},
		{"negative", s.InsulationNegative},
	} {
		if c.v != nil && *c.v < worst {
			worst = *c.v
			channel = c.name
		}
	}
	if channel == "" {
		return 0
	}
	sev := e.cfg.Insulation.classifyFalling(worst)
	if sev == 0 {
		return 0
	}
	e.emit(Anomaly{
		Type:        AnomalyInsulation,
		Time:        s.Time,
		Severity:    sev,
		Description: fmt.Sprintf("%s insulation resistance down to %.0f kΩ", channel, worst),
	})
	if sev == SeverityWarning {
		return 1
	}
	return 0
}

func (e *engine) checkSOC(s *Sample) int {
	if s.SOC == nil {
		return 0
	}
	v := *s.SOC
	if v < 0 || v > 100 {
		e.emit(Anomaly{
			Type:        AnomalySOCDataFault,
			Time:        s.Time,
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("implausible SOC reading of %.1f%%", v),
		})
		return 1
	}
	sev := e.cfg.SOCLow.classifyFalling(v)
	if sev == 0 {
		return 0
	}
	e.emit(Anomaly{
		Type:        AnomalySOC,
		Time:        s.Time,
		Severity:    sev,
		Description: fmt.Sprintf("SOC down to %.1f%%", v),
	})
	if sev == SeverityWarning {
		return 1
	}
	return 0
}

func (e *engine) checkSOH(s *Sample) int {
	if s.SOH == nil {
		return 0
	}
	sev := e.cfg.SOHLow.classifyFalling(*s.SOH)
	if sev == 0 {
		return 0
	}
	e.emit(Anomaly{
		Type:        AnomalySOH,
		Time:        s.Time,
		Severity:    sev,
		Description: fmt.Sprintf("SOH down to %.1f%%", *s.SOH),
	})
	if sev == SeverityWarning {
		return 1
	}
	return 0
}

// checkCompound runs the escalation rules after, and independently of, the
// per-parameter passes: the individual anomalies above are still emitted.
func (e *engine) checkCompound(s *Sample, warnings int) {
	if warnings >= 2 {
		e.emit(Anomaly{
			Type:        AnomalyCompoundFault,
			Time:        s.Time,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("%d simultaneous warning-level conditions", warnings),
		})
	}

	if s.MaxTemp == nil {
		return
	}
	high := e.cfg.TempDischargeHigh
	if s.Charging() {
		high = e.cfg.TempChargeHigh
	}
	if *s.MaxTemp <= high.Level1 {
		return
	}
	if s.SOC != nil && *s.SOC > e.cfg.HighSOC {
		e.emit(Anomaly{
			Type:        AnomalyCompoundFault,
			Time:        s.Time,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("high temperature %.1f °C at %.0f%% SOC", *s.MaxTemp, *s.SOC),
		})
	}
	if s.Current != nil && math.Abs(*s.Current) > e.cfg.HighCurrentA {
		e.emit(Anomaly{
			Type:        AnomalyCompoundFault,
			Time:        s.Time,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("high temperature %.1f °C at %.0f A", *s.MaxTemp, *s.Current),
		})
	}
}

// sortedCellIndices returns a sample's cell indices in ascending order so
// detector output is deterministic.
func sortedCellIndices(cells map[int]float64) []int {
	idx := make([]int, 0, len(cells))
	for i := range cells {
		idx = append(idx, i)
	}
	mergeSort(idx, func(a, b int) bool { return a < b })
	return idx
}
