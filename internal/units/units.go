// Package units provides speed unit constants and conversions.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// SimSpeedFactor converts the simulator's mph-like reference speed into map
// units per second. The simulator controller assumes this exact factor
// rather than the true mph conversion.
const SimSpeedFactor = 2.24

// mpsToMPH is the true metres-per-second to miles-per-hour factor.
const mpsToMPH = 2.2369362920544

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from metres per second to targetUnits.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * mpsToMPH
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// ToMPS converts a speed in unit to metres per second.
func ToMPS(speed float64, unit string) float64 {
	switch unit {
	case MPH:
		return speed / mpsToMPH
	case KMPH, KPH:
		return speed / 3.6
	default:
		return speed
	}
}
