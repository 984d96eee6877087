// Package spectral turns raw IQ frames into calibrated power spectra (dBFS).
package spectral

import (
	"math"

	dsp "github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/dsputils"
	"github.com/pkg/errors"

	"github.com/radarlab/phaser/core"
)

// fullScale is the ADC full-scale amplitude (2^11 for the 12-bit converter).
const fullScale = 1 << 11

// magnitudeFloor keeps the log conversion away from -Inf on empty bins.
const magnitudeFloor = 1e-15

// WindowFn produces a window of the given length, in the form used by
// go-dsp/window (e.g. window.Blackman).
type WindowFn func(int) []float64

// Estimator computes calibrated spectra. Estimate is deterministic: the same
// frame and configuration always produce a bit-identical spectrum.
type Estimator struct {
	sampleRate core.Frequency
	windowFn   WindowFn
	fftSize    int
	offset     core.DB

	window    []float64 // cached for the last seen frame length
	windowSum float64
}

// New returns an estimator for frames at the given sample rate. fftSize 0
// keeps the frame length; a larger value zero-pads each frame to the next
// power of two at or above the requested size. calibrationOffset compensates
// LO feedthrough and cable loss so the output is absolute dBFS.
func New(sampleRate core.Frequency, windowFn WindowFn, fftSize int, calibrationOffset core.DB) *Estimator {
	if fftSize > 0 {
		fftSize = dsputils.NextPowerOf2(fftSize)
	}
	return &Estimator{
		sampleRate: sampleRate,
		windowFn:   windowFn,
		fftSize:    fftSize,
		offset:     calibrationOffset,
	}
}

// Estimate computes the fftshifted dBFS spectrum of one frame. The magnitude
// is normalized by the window sum, so the absolute level does not depend on
// the window function. Fails with ErrInvalidFrame on an empty frame.
func (e *Estimator) Estimate(frame core.Frame) (core.Spectrum, error) {
	if len(frame.Samples) == 0 {
		return core.Spectrum{}, errors.Wrap(core.ErrInvalidFrame, "cannot estimate an empty frame")
	}

	if len(e.window) != len(frame.Samples) {
		e.window = e.windowFn(len(frame.Samples))
		e.windowSum = 0
		for _, w := range e.window {
			e.windowSum += w
		}
	}

	size := len(frame.Samples)
	if e.fftSize > size {
		size = e.fftSize
	}
	windowed := make([]complex128, size)
	for i, s := range frame.Samples {
		windowed[i] = s * complex(e.window[i], 0)
	}

	cfft := dsp.FFT(windowed)
	data := make([]float64, len(cfft))
	// modular shift keeps the mapping a bijection for odd lengths too
	for i, v := range cfft {
		data[(i+len(cfft)/2)%len(cfft)] = e.toDBFS(v)
	}

	return core.Spectrum{
		Data:  data,
		Range: core.FrequencyRange{From: -e.sampleRate / 2, To: e.sampleRate / 2},
		Seq:   frame.Seq,
		Time:  frame.Time,
	}, nil
}

// EstimateGroup coherently averages the chirps of a group and estimates the
// spectrum of the result. Chirp synchronization upstream makes the chirps
// add in phase.
func (e *Estimator) EstimateGroup(group core.ChirpGroup) (core.Spectrum, error) {
	if err := group.Validate(); err != nil {
		return core.Spectrum{}, err
	}

	last := group.Frames[len(group.Frames)-1]
	sum := make([]complex128, len(group.Frames[0].Samples))
	for _, f := range group.Frames {
		for i, s := range f.Samples {
			sum[i] += s
		}
	}
	scale := complex(1/float64(len(group.Frames)), 0)
	for i := range sum {
		sum[i] *= scale
	}

	return e.Estimate(core.Frame{Samples: sum, Seq: last.Seq, Time: last.Time})
}

func (e *Estimator) toDBFS(v complex128) float64 {
	mag := math.Sqrt(real(v)*real(v)+imag(v)*imag(v)) / e.windowSum
	if mag < magnitudeFloor {
		mag = magnitudeFloor
	}
	return 20*math.Log10(mag/fullScale) + float64(e.offset)
}
