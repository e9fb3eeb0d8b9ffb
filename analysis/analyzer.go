package analysis

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ericfowler-dev/bms-log-analyzer/product"
	"github.com/ericfowler-dev/bms-log-analyzer/rowset"
)

var log = logrus.New()

// SetLogger replaces the package logger, letting hosting binaries route
// analysis output through their own formatter.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// Analyzer is the assembled pipeline: sheet location, fusion, product
// detection, the rule engine, fault reconstruction and the device summary.
// The zero value is not usable; construct with NewAnalyzer and override
// fields before the first Analyze call if needed.
type Analyzer struct {
	Rules      RuleConfig
	Catalog    product.Catalog
	AlarmNames map[string]string
}

// NewAnalyzer returns an Analyzer carrying the default thresholds, product
// catalog and alarm names.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		Rules:      DefaultRuleConfig(),
		Catalog:    product.DefaultCatalog(),
		AlarmNames: DefaultAlarmNames(),
	}
}

// Result is the complete output of one run.
type Result struct {
	TimeSeries     []*Sample       `json:"timeSeries"`
	FaultEvents    []*FaultEvent   `json:"faultEvents"`
	Anomalies      []Anomaly       `json:"anomalies"`
	DeviceInfo     DeviceInfo      `json:"deviceInfo"`
	CellIndexRange *CellIndexRange `json:"cellIndexRange,omitempty"`
}

// Analyze runs the full pipeline over a set of named row sources. Missing
// sheets and malformed rows are tolerated per source; only a nil input map
// is fatal. The returned Result is complete and owned by the caller.
func (a *Analyzer) Analyze(sheets map[string][]rowset.Row) (*Result, error) {
	if sheets == nil {
		return nil, errors.New("no input sheets")
	}

	f := newFusion()
	f.addVoltages(rowset.FindSheet(sheets, "voltage", "0x9a"))
	f.addTemperatures(rowset.FindSheet(sheets, "temperature", "0x09"))
	f.addPeaks(rowset.FindSheet(sheets, "peak", "0x9b"))
	f.addSystemState(rowset.FindSheet(sheets, "system state", "0x93"))
	f.addBalancing(rowset.FindSheet(sheets, "balancing", "0x86"))
	f.addEnergy(rowset.FindSheet(sheets, "energy", "0x89"))
	f.addCharging(rowset.FindSheet(sheets, "charging", "0x99"))

	series := f.series()
	log.Debugf("fused %d samples from %d sheets", len(series), len(sheets))

	eng := &engine{cfg: a.Rules, specTrusted: true}
	a.detectProduct(eng, series)
	eng.run(series)

	alarmRows := rowset.FindSheet(sheets, "alarm", "0x87")
	events := reconstructFaults(alarmRows, series, a.AlarmNames)

	info := extractDeviceInfo(
		rowset.FindSheet(sheets, "device info", "0x92"),
		rowset.FindSheet(sheets, "device list", "0x82"),
	)

	log.Debugf("analysis produced %d anomalies and %d fault events", len(eng.anomalies), len(events))

	return &Result{
		TimeSeries:     series,
		FaultEvents:    events,
		Anomalies:      eng.anomalies,
		DeviceInfo:     info,
		CellIndexRange: f.cellIndexRange(),
	}, nil
}

// detectProduct runs the single-shot configuration detection against the
// first fused sample and arms or disarms the engine's spec-derived checks.
// Detection is never re-evaluated later in the run.
func (a *Analyzer) detectProduct(eng *engine, series []*Sample) {
	if len(series) == 0 {
		return
	}
	first := series[0]
	if len(first.Cells) == 0 || first.PackVoltage == nil {
		return
	}

	spec := a.Catalog.Detect(len(first.Cells), *first.PackVoltage)
	if spec == nil {
		log.Debugf("no product match for %d cells at %.1f V, using generic thresholds",
			len(first.Cells), *first.PackVoltage)
		return
	}
	eng.spec = spec
	log.Debugf("detected product %s", spec.Name)

	// Sanity-check the detected series count: mean in-range cell voltage
	// scaled through it must land near the measured pack voltage. When it
	// does not, every limit derived from that series count is wrong, so the
	// spec-based checks are disabled for the rest of the run.
	var sum float64
	n := 0
	for _, v := range first.Cells {
		if v > 1000 && v < 5000 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)
	if spec.MatchesPackVoltage(mean, *first.PackVoltage) {
		return
	}

	eng.specTrusted = false
	eng.emit(Anomaly{
		Type:     AnomalyConfigMismatch,
		Time:     first.Time,
		Severity: SeverityCritical,
		Description: fmt.Sprintf(
			"measured pack voltage %.1f V does not match %.1f V expected from %d series cells averaging %.0f mV",
			*first.PackVoltage, spec.ExpectedPackVoltage(mean), spec.SeriesCellCount, mean),
	})
	log.Warnf("configuration mismatch for %s, spec-derived thresholds disabled", spec.Name)
}
