// Package input provides simulated acquisition front ends. They produce the
// same IQ block stream as the hardware capture path, which makes full
// end-to-end runs possible without a radar board attached.
package input

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/radarlab/phaser/core"
	"github.com/radarlab/phaser/core/waveform"
)

const blockInterval = 10 * time.Millisecond

// NewNoiseInput returns a SamplesInput that produces gaussian noise with the
// given standard deviation.
func NewNoiseInput(blockSize int, deviation float64) *NoiseInput {
	result := NoiseInput{
		samples: make(chan []complex128, 1),
		done:    make(chan struct{}),
	}

	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			nextBlock := make([]complex128, blockSize)
			for i := range nextBlock {
				nextBlock[i] = complex(rng.NormFloat64()*deviation, rng.NormFloat64()*deviation)
			}
			select {
			case result.samples <- nextBlock:
				time.Sleep(blockInterval)
			case <-result.done:
				close(result.samples)
				return
			}
		}
	}()

	return &result
}

type NoiseInput struct {
	samples   chan []complex128
	done      chan struct{}
	closeOnce sync.Once
}

func (i *NoiseInput) Samples() <-chan []complex128 {
	return i.samples
}

func (i *NoiseInput) Close() error {
	i.closeOnce.Do(func() {
		close(i.done)
	})
	return nil
}

// NewToneInput returns a SamplesInput that produces a continuous tone at the
// given frequency, buried in a little gaussian noise. The tone is phase
// continuous across blocks.
func NewToneInput(blockSize int, amplitude float64, frequency, sampleRate core.Frequency) *ToneInput {
	result := ToneInput{
		samples: make(chan []complex128, 1),
		done:    make(chan struct{}),
	}

	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		ω := 2 * math.Pi * float64(frequency) / float64(sampleRate)
		φ := 0.0
		for {
			nextBlock := make([]complex128, blockSize)
			for i := range nextBlock {
				noise := complex(rng.NormFloat64(), rng.NormFloat64())
				nextBlock[i] = complex(amplitude*math.Cos(φ), amplitude*math.Sin(φ)) + noise
				φ += ω
			}
			select {
			case result.samples <- nextBlock:
				time.Sleep(blockInterval)
			case <-result.done:
				close(result.samples)
				return
			}
		}
	}()

	return &result
}

type ToneInput struct {
	samples   chan []complex128
	done      chan struct{}
	closeOnce sync.Once
}

func (i *ToneInput) Samples() <-chan []complex128 {
	return i.samples
}

func (i *ToneInput) Close() error {
	i.closeOnce.Do(func() {
		close(i.done)
	})
	return nil
}

// Target is one simulated radar return in a chirp scene.
type Target struct {
	Delay      int     // beat delay in samples
	DopplerBin int     // phase advance in cycles over one full chirp group
	Amplitude  float64 // relative to the reference chirp
}

// NewChirpSceneInput returns a SamplesInput that produces FMCW capture blocks:
// the reference chirp embedded at a pre-roll offset, superimposed with the
// delayed and Doppler-shifted target returns, plus gaussian noise. Blocks
// cycle through the chirps of a group, so the consumer sees the same chirp
// index pattern as with a hardware burst trigger.
func NewChirpSceneInput(ramp core.RampParams, frameSize, preRoll int, targets []Target) (*ChirpSceneInput, error) {
	chirp, err := waveform.ReferenceChirp(ramp)
	if err != nil {
		return nil, err
	}

	result := ChirpSceneInput{
		samples: make(chan []complex128, 1),
		done:    make(chan struct{}),
	}

	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		chirpIndex := 0
		for {
			nextBlock := make([]complex128, frameSize)
			for i := range nextBlock {
				nextBlock[i] = complex(rng.NormFloat64(), rng.NormFloat64())
			}
			mix(nextBlock, chirp, preRoll, 1, 0)
			for _, target := range targets {
				phase := 2 * math.Pi * float64(target.DopplerBin) * float64(chirpIndex) / float64(ramp.NumChirps)
				mix(nextBlock, chirp, preRoll+target.Delay, target.Amplitude, phase)
			}
			chirpIndex = (chirpIndex + 1) % ramp.NumChirps

			select {
			case result.samples <- nextBlock:
				time.Sleep(blockInterval)
			case <-result.done:
				close(result.samples)
				return
			}
		}
	}()

	return &result, nil
}

// mix adds a scaled, phase-rotated copy of the chirp into the block at the
// given offset, clipped to the block bounds.
func mix(block, chirp []complex128, offset int, amplitude, phase float64) {
	rotation := complex(amplitude*math.Cos(phase), amplitude*math.Sin(phase))
	for i, s := range chirp {
		j := offset + i
		if j < 0 || j >= len(block) {
			continue
		}
		block[j] += s * rotation
	}
}

type ChirpSceneInput struct {
	samples   chan []complex128
	done      chan struct{}
	closeOnce sync.Once
}

func (i *ChirpSceneInput) Samples() <-chan []complex128 {
	return i.samples
}

func (i *ChirpSceneInput) Close() error {
	i.closeOnce.Do(func() {
		close(i.done)
	})
	return nil
}
