package cmutils

import "math"

// No negative values
func AmpsToDeciamps(amps float64) uint32 {
	if amps < 0 {
		return 0
	}
	return uint32(math.Round(amps * 10))
}

func DeciampsToAmps(deciamps uint32) float64 {
	return float64(deciamps) / 10
}

// Estimate apparent power from clamp amps at a nominal mains voltage.
// The clamp only sees current, so this ignores power factor.
func AmpsToWatts(amps float64, mainsVoltage float64) float64 {
	if amps < 0 {
		return 0
	}
	return math.Round(amps * mainsVoltage)
}
