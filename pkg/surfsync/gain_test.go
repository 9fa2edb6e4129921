package surfsync

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGainDBConversion(t *testing.T) {
	assert.InDelta(t, 0, coefficientToDB(1), 1e-9)
	assert.InDelta(t, 6, coefficientToDB(maxGainCoefficient), 1e-3)
	assert.Equal(t, floorDB, coefficientToDB(0))

	assert.InDelta(t, 0.5012, dBToCoefficient(-6), 1e-4)
	assert.Equal(t, 0.0, dBToCoefficient(-193))
	assert.Equal(t, 0.0, dBToCoefficient(-192))
	assert.InDelta(t, -12, coefficientToDB(dBToCoefficient(-12)), 1e-9)
}

func TestSliderPosition(t *testing.T) {
	assert.Equal(t, 0.0, gainToSliderPosition(0))
	assert.InDelta(t, 1, gainToSliderPosition(maxGainCoefficient), 1e-9)
	assert.Equal(t, 0.0, sliderPositionToGain(0))
	assert.InDelta(t, maxGainCoefficient, sliderPositionToGain(1), 1e-6)

	prev := -1.0
	for _, g := range []float64{0.001, 0.01, 0.1, 0.5, 1, 1.5, maxGainCoefficient} {
		pos := gainToSliderPosition(g)
		assert.Greater(t, pos, prev, "taper is monotonic at %v", g)
		assert.InDelta(t, g, sliderPositionToGain(pos), 1e-6)
		prev = pos
	}
}

func TestMeters(t *testing.T) {
	assert.Equal(t, floorDB, meterDB(math.Inf(-1)))
	assert.Equal(t, floorDB, meterDB(-130))
	assert.Equal(t, -20.0, meterDB(-20))

	assert.Equal(t, 0.0, meterPosition(noMeter))
	assert.InDelta(t, 0.94, meterPosition(0), 1e-9)
	assert.Equal(t, 1.0, meterPosition(10))

	assert.Equal(t, int32(0), meterLEDs(noMeter))
	assert.Equal(t, int32(0), meterLEDs(-60))
	assert.Equal(t, int32(0xffff), meterLEDs(12))
	// -30 dB lights 5 LEDs
	assert.Equal(t, int32(0x1f), meterLEDs(-30))
	assert.Equal(t, int32(0), meterLEDs(-46.6))
	assert.Equal(t, int32(1), meterLEDs(-46.5))
	assert.Equal(t, int32(0x7fff), meterLEDs(6))
	assert.Equal(t, int32(0xffff), meterLEDs(9.75))

	assert.True(t, signalPresent(-40))
	assert.False(t, signalPresent(-41))
}
