package surfsync

import "math"

const (
	// floorDB is reported for silence and for gain queries with no answer
	floorDB = -193.0

	// maxGainCoefficient is +6 dB
	maxGainCoefficient = 1.99526231

	meterFloorDB    = -120.0
	meterPositionDB = -94.0
	signalPresentDB = -40.0
)

func coefficientToDB(g float64) float64 {
	if g <= 0 {
		return floorDB
	}

	return max(20*math.Log10(g), floorDB)
}

func dBToCoefficient(dB float64) float64 {
	if dB <= floorDB+1 {
		return 0
	}

	return math.Pow(10, dB/20)
}

// gainToSliderPosition maps a gain coefficient onto the 0..1 fader taper
func gainToSliderPosition(g float64) float64 {
	if g <= 0 {
		return 0
	}

	g = g * 2.0 / maxGainCoefficient
	pos := math.Pow((6*math.Log2(g)+192)/198, 8)

	return min(max(pos, 0), 1)
}

func sliderPositionToGain(pos float64) float64 {
	if pos <= 0 {
		return 0
	}
	pos = min(pos, 1)

	g := math.Pow(2, (math.Pow(pos, 1.0/8)*198-192)/6)

	return g * maxGainCoefficient / 2.0
}

// meterDB clamps a peak reading for /strip/meter in dB mode
func meterDB(level float64) float64 {
	if level < meterFloorDB || math.IsInf(level, -1) || math.IsNaN(level) {
		return floorDB
	}

	return level
}

// meterPosition maps a peak reading onto 0..1 for fader-mode surfaces
func meterPosition(level float64) float64 {
	if level < meterPositionDB || math.IsInf(level, -1) || math.IsNaN(level) {
		level = meterPositionDB
	}

	return min((level-meterPositionDB)/100, 1)
}

// meterLEDs maps a peak reading onto a 16-LED bar, one LED per 3.75 dB from -54 dB
func meterLEDs(level float64) int32 {
	if math.IsInf(level, -1) || math.IsNaN(level) {
		return 0
	}

	lit := int((level+54)/3.75 - 1)
	lit = min(max(lit, 0), 16)

	return int32(1<<lit - 1)
}

func signalPresent(level float64) bool {
	return level >= signalPresentDB
}
