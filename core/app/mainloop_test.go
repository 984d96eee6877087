package app

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarlab/phaser/core"
	"github.com/radarlab/phaser/core/waveform"
)

type stubInput struct {
	samples chan []complex128
}

func newStubInput() *stubInput {
	return &stubInput{samples: make(chan []complex128)}
}

func (s *stubInput) Samples() <-chan []complex128 {
	return s.samples
}

func (s *stubInput) Close() error {
	return nil
}

func cwConfiguration() core.Configuration {
	return core.Configuration{
		SampleRate:        1e6,
		FrameSize:         128,
		UpdatesPerSecond:  200,
		CalibrationOffset: 0,
		WaterfallDepth:    10,

		CFARGuardCells:    2,
		CFARTrainingCells: 8,
		CFARBias:          12,
	}
}

func fmcwConfiguration() core.Configuration {
	result := cwConfiguration()
	result.FrameSize = 256
	result.IFFrequency = 100e3
	result.OutputFrequency = 10e9
	result.ChirpBandwidth = 500e6
	result.RampTime = 64 * time.Microsecond // 64 samples, aligned to the FFT size
	result.PRI = time.Millisecond
	result.NumChirps = 3
	result.SyncThreshold = 0.5
	return result
}

func toneBlock(size int) []complex128 {
	samples, err := waveform.CW(2048, 250e3, 1e6, size)
	if err != nil {
		panic(err)
	}
	return samples
}

func chirpBlock(t *testing.T, configuration core.Configuration, offset int) []complex128 {
	t.Helper()
	template, err := waveform.ReferenceChirp(configuration.Ramp())
	require.NoError(t, err)

	block := make([]complex128, configuration.FrameSize)
	copy(block[offset:], template)
	return block
}

func noiseBlock(size int, seed int64) []complex128 {
	rng := rand.New(rand.NewSource(seed))
	block := make([]complex128, size)
	for i := range block {
		block[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return block
}

func TestCWChainPublishesSpectrumAndDetections(t *testing.T) {
	in := newStubInput()
	controller := NewController(cwConfiguration(), ModeCW, in)
	require.NoError(t, controller.Startup())
	defer controller.Shutdown()

	in.samples <- toneBlock(128)

	select {
	case spectrum := <-controller.Spectra():
		assert.Equal(t, 128, len(spectrum.Data))
		assert.Equal(t, core.FrequencyRange{From: -500e3, To: 500e3}, spectrum.Range)
	case <-time.After(2 * time.Second):
		t.Fatal("no spectrum published")
	}

	select {
	case hits := <-controller.Detections():
		assert.NotEmpty(t, hits, "a full-scale tone must trigger a detection")
	case <-time.After(2 * time.Second):
		t.Fatal("no detections published")
	}

	rows, err := controller.Waterfall()
	assert.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestFMCWChainPublishesMap(t *testing.T) {
	configuration := fmcwConfiguration()
	in := newStubInput()
	controller := NewController(configuration, ModeFMCW, in)
	require.NoError(t, controller.Startup())
	defer controller.Shutdown()

	for i := 0; i < configuration.NumChirps; i++ {
		in.samples <- chirpBlock(t, configuration, 5)
	}

	select {
	case result := <-controller.Maps():
		assert.Equal(t, 64, result.RangeBins())
		// the default clutter filter consumes one chirp
		assert.Equal(t, configuration.NumChirps-1, result.DopplerBins())
	case <-time.After(2 * time.Second):
		t.Fatal("no range-doppler map published")
	}
}

func TestFMCWChainPublishesSyncedSpectrum(t *testing.T) {
	configuration := fmcwConfiguration()
	in := newStubInput()
	controller := NewController(configuration, ModeFMCW, in)
	require.NoError(t, controller.Startup())
	defer controller.Shutdown()

	for i := 0; i < configuration.NumChirps; i++ {
		in.samples <- chirpBlock(t, configuration, 5)
	}

	// the synced group also feeds the waterfall/CFAR view
	select {
	case spectrum := <-controller.Spectra():
		assert.Equal(t, 64, len(spectrum.Data), "spectrum of the sliced chirp period")
	case <-time.After(2 * time.Second):
		t.Fatal("no chirp-synced spectrum published")
	}

	select {
	case <-controller.Detections():
	case <-time.After(2 * time.Second):
		t.Fatal("no detections published for the synced group")
	}

	rows, err := controller.Waterfall()
	assert.NoError(t, err)
	assert.NotEmpty(t, rows)
}

func TestFMCWSurvivesSyncLoss(t *testing.T) {
	configuration := fmcwConfiguration()
	in := newStubInput()
	controller := NewController(configuration, ModeFMCW, in)
	require.NoError(t, controller.Startup())
	defer controller.Shutdown()

	// a whole group of noise is a missed cycle
	for i := 0; i < configuration.NumChirps; i++ {
		in.samples <- noiseBlock(configuration.FrameSize, int64(i))
	}
	select {
	case <-controller.Maps():
		t.Fatal("a fully lost group must not publish a map")
	case <-time.After(200 * time.Millisecond):
	}

	// the next good group goes through
	for i := 0; i < configuration.NumChirps; i++ {
		in.samples <- chirpBlock(t, configuration, 12)
	}
	select {
	case result := <-controller.Maps():
		assert.Equal(t, configuration.NumChirps-1, result.DopplerBins())
	case <-time.After(2 * time.Second):
		t.Fatal("no range-doppler map after sync recovery")
	}
}

func TestLatestFramesForExport(t *testing.T) {
	in := newStubInput()
	controller := NewController(cwConfiguration(), ModeCW, in)
	require.NoError(t, controller.Startup())
	defer controller.Shutdown()

	_, err := controller.LatestFrames(1)
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	in.samples <- toneBlock(128)

	require.Eventually(t, func() bool {
		frames, err := controller.LatestFrames(1)
		return err == nil && len(frames) == 1 && len(frames[0].Samples) == 128
	}, 2*time.Second, 10*time.Millisecond)
}
