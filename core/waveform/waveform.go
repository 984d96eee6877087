// Package waveform synthesizes the transmit baseband waveforms: a continuous
// sinewave for CW operation and linear chirp sweeps for FMCW operation. All
// generators are pure functions of their arguments.
package waveform

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/radarlab/phaser/core"
)

// FullScale is the DAC full-scale amplitude of the transmit path (2^14).
const FullScale = 1 << 14

// CW returns length samples of a complex sinewave with the given amplitude.
// The frequency must stay below the Nyquist limit.
func CW(amplitude float64, frequency, sampleRate core.Frequency, length int) ([]complex128, error) {
	if length <= 0 {
		return nil, errors.Errorf("length must be positive, got %d", length)
	}
	if sampleRate <= 0 {
		return nil, errors.Errorf("sample rate must be positive, got %v", sampleRate)
	}
	if abs := math.Abs(float64(frequency)); abs >= float64(sampleRate)/2 {
		return nil, errors.Errorf("frequency %v exceeds Nyquist limit of %v", frequency, sampleRate/2)
	}

	result := make([]complex128, length)
	ω := 2 * math.Pi * float64(frequency) / float64(sampleRate)
	for i := range result {
		t := float64(i)
		result[i] = complex(amplitude*math.Cos(ω*t), amplitude*math.Sin(ω*t))
	}
	return result, nil
}

// ReferenceChirp returns the synchronization template for the given ramp: the
// transmit sweep as it appears in the IF passband, starting at the IF tone and
// covering a quarter of the sample rate. Synchronizer and simulated scenes
// must use the same template, so it is derived in one place.
func ReferenceChirp(ramp core.RampParams) ([]complex128, error) {
	return Chirp(FullScale/8, ramp.IFFrequency, ramp.IFFrequency+ramp.SampleRate/4, ramp.RampTime, ramp.SampleRate)
}

// Chirp returns one linear frequency sweep from fStart to fEnd over sweepTime.
// The phase is computed by integrating the instantaneous frequency, so it is
// continuous over the whole sweep regardless of the frequency excursion.
func Chirp(amplitude float64, fStart, fEnd core.Frequency, sweepTime time.Duration, sampleRate core.Frequency) ([]complex128, error) {
	if sweepTime <= 0 {
		return nil, errors.Errorf("sweep time must be positive, got %v", sweepTime)
	}
	if sampleRate <= 0 {
		return nil, errors.Errorf("sample rate must be positive, got %v", sampleRate)
	}
	fMax := math.Max(math.Abs(float64(fStart)), math.Abs(float64(fEnd)))
	if fMax >= float64(sampleRate)/2 {
		return nil, errors.Errorf("sweep reaches %.2fHz, beyond the Nyquist limit of %v", fMax, sampleRate/2)
	}

	length := int(sweepTime.Seconds() * float64(sampleRate))
	if length <= 0 {
		return nil, errors.Errorf("sweep of %v at %v yields no samples", sweepTime, sampleRate)
	}

	ts := 1 / float64(sampleRate)
	slope := (float64(fEnd) - float64(fStart)) / sweepTime.Seconds()
	result := make([]complex128, length)
	φ := 0.0
	for i := range result {
		result[i] = complex(amplitude*math.Cos(φ), amplitude*math.Sin(φ))
		f := float64(fStart) + slope*float64(i)*ts
		φ += 2 * math.Pi * f * ts
	}
	return result, nil
}
