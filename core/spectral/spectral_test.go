package spectral

import (
	"fmt"
	"math"
	"testing"

	"github.com/mjibson/go-dsp/window"
	"github.com/stretchr/testify/assert"

	"github.com/radarlab/phaser/core"
)

func tone(blockSize int, frequencyRate, amplitude float64) []complex128 {
	result := make([]complex128, blockSize)
	ω := 2 * math.Pi * frequencyRate
	for i := range result {
		t := float64(i)
		result[i] = complex(amplitude*math.Cos(ω*t), amplitude*math.Sin(ω*t))
	}
	return result
}

func TestEstimateEmptyFrame(t *testing.T) {
	e := New(1e6, window.Blackman, 0, 0)
	_, err := e.Estimate(core.Frame{})
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestEstimateDeterministic(t *testing.T) {
	e := New(1e6, window.Blackman, 0, -3)
	frame := core.Frame{Samples: tone(256, 0.125, 100), Seq: 3}

	a, err := e.Estimate(frame)
	assert.NoError(t, err)
	b, err := e.Estimate(frame)
	assert.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, frame.Seq, a.Seq)
}

func TestEstimateTonePeak(t *testing.T) {
	blockSize := 256
	for _, bin := range []int{-32, -1, 0, 1, 64} {
		t.Run(fmt.Sprintf("%d", bin), func(t *testing.T) {
			e := New(1e6, window.Blackman, 0, 0)
			frame := core.Frame{Samples: tone(blockSize, float64(bin)/float64(blockSize), 2048)}

			spectrum, err := e.Estimate(frame)
			assert.NoError(t, err)

			peak := 0
			for i, v := range spectrum.Data {
				if v > spectrum.Data[peak] {
					peak = i
				}
			}
			assert.Equal(t, blockSize/2+bin, peak)
			// a full-scale on-bin tone lands at 0 dBFS
			assert.InDelta(t, 0, spectrum.Data[peak], 1e-9)
		})
	}
}

func TestEstimateWindowIndependentLevel(t *testing.T) {
	// window-sum normalization makes the absolute level of an on-bin tone
	// identical across window functions
	blockSize := 512
	frame := core.Frame{Samples: tone(blockSize, 16.0/float64(blockSize), 512)}

	levels := make([]float64, 0, 3)
	for _, fn := range []WindowFn{window.Hann, window.Hamming, window.Blackman} {
		e := New(1e6, fn, 0, 0)
		spectrum, err := e.Estimate(frame)
		assert.NoError(t, err)
		levels = append(levels, spectrum.Data[blockSize/2+16])
	}

	assert.InDelta(t, levels[0], levels[1], 1e-9)
	assert.InDelta(t, levels[0], levels[2], 1e-9)
}

func TestEstimateOddLengthWritesEveryBin(t *testing.T) {
	// the fftshift must stay a bijection for odd lengths: a silent frame has
	// every bin on the floor, none left at the zero value
	for _, blockSize := range []int{5, 129} {
		t.Run(fmt.Sprintf("%d", blockSize), func(t *testing.T) {
			e := New(1e6, window.Blackman, 0, 0)
			spectrum, err := e.Estimate(core.Frame{Samples: make([]complex128, blockSize)})
			assert.NoError(t, err)

			floor := 20 * math.Log10(magnitudeFloor/fullScale)
			for i, v := range spectrum.Data {
				assert.InDeltaf(t, floor, v, 1e-9, "bin %d", i)
			}
		})
	}
}

func TestEstimateOddLengthTonePeak(t *testing.T) {
	blockSize := 5
	e := New(1e6, window.Hann, 0, 0)
	frame := core.Frame{Samples: tone(blockSize, 1.0/float64(blockSize), 2048)}

	spectrum, err := e.Estimate(frame)
	assert.NoError(t, err)

	peak := 0
	for i, v := range spectrum.Data {
		if v > spectrum.Data[peak] {
			peak = i
		}
	}
	assert.Equal(t, blockSize/2+1, peak)
}

func TestEstimateCalibrationOffset(t *testing.T) {
	frame := core.Frame{Samples: tone(128, 0.25, 100)}

	plain, err := New(1e6, window.Blackman, 0, 0).Estimate(frame)
	assert.NoError(t, err)
	shifted, err := New(1e6, window.Blackman, 0, 6).Estimate(frame)
	assert.NoError(t, err)

	for i := range plain.Data {
		assert.InDeltaf(t, plain.Data[i]+6, shifted.Data[i], 1e-12, "bin %d", i)
	}
}

func TestEstimateZeroPadding(t *testing.T) {
	e := New(1e6, window.Blackman, 1000, 0)
	spectrum, err := e.Estimate(core.Frame{Samples: tone(256, 0.1, 1)})
	assert.NoError(t, err)
	// 1000 is rounded up to the next power of two
	assert.Equal(t, 1024, len(spectrum.Data))
	assert.Equal(t, core.FrequencyRange{From: -500e3, To: 500e3}, spectrum.Range)
}

func TestEstimateGroup(t *testing.T) {
	e := New(1e6, window.Blackman, 0, 0)
	samples := tone(256, 0.125, 2048)
	group := core.ChirpGroup{Frames: []core.Frame{
		{Samples: samples, Seq: 1},
		{Samples: samples, Seq: 2},
		{Samples: samples, Seq: 3},
	}}

	grouped, err := e.EstimateGroup(group)
	assert.NoError(t, err)
	single, err := e.Estimate(group.Frames[0])
	assert.NoError(t, err)

	// identical chirps average to themselves
	assert.InDeltaSlice(t, single.Data, grouped.Data, 1e-9)
	assert.Equal(t, uint64(3), grouped.Seq)

	_, err = e.EstimateGroup(core.ChirpGroup{})
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}
