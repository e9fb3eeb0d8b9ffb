package analysis

// DefaultAlarmNames maps the controller's fault codes to display names.
// Immutable reference data: the reconstructor receives a copy of this map
// (possibly with overrides merged in) and never writes to it. Codes absent
// from the map fall back to the raw code as the name.
func DefaultAlarmNames() map[string]string {
	return map[string]string{
		"CellOV":     "Cell overvoltage",
		"CellUV":     "Cell undervoltage",
		"PackOV":     "Pack overvoltage",
		"PackUV":     "Pack undervoltage",
		"ChgOV":      "Charge overvoltage",
		"ChgOC":      "Charge overcurrent",
		"DsgOC":      "Discharge overcurrent",
		"ChgOT":      "Charge over-temperature",
		"ChgUT":      "Charge under-temperature",
		"DsgOT":      "Discharge over-temperature",
		"DsgUT":      "Discharge under-temperature",
		"TempDiff":   "Temperature spread",
		"VoltDiff":   "Cell voltage spread",
		"SOCLow":     "SOC low",
		"SOHLow":     "SOH low",
		"InsulLow":   "Insulation resistance low",
		"RelayFault": "Relay fault",
		"PreChgFail": "Precharge failure",
		"CommFault":  "Internal communication fault",
		"TempSensor": "Temperature sensor fault",
		"CurrSensor": "Current sensor fault",
		"HeatFault":  "Heating circuit fault",
	}
}
