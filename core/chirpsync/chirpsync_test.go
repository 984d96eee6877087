package chirpsync

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarlab/phaser/core"
	"github.com/radarlab/phaser/core/waveform"
)

func testTemplate(t *testing.T) []complex128 {
	t.Helper()
	template, err := waveform.Chirp(2048, 100e3, 400e3, 256*time.Microsecond, 1e6)
	require.NoError(t, err)
	require.Equal(t, 256, len(template))
	return template
}

func noiseFrame(seq uint64, length int, seed int64) core.Frame {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]complex128, length)
	for i := range samples {
		samples[i] = complex(rng.NormFloat64()*100, rng.NormFloat64()*100)
	}
	return core.Frame{Samples: samples, Seq: seq}
}

func TestNewValidation(t *testing.T) {
	template := testTemplate(t)

	_, err := New(nil, 300, 0.5)
	assert.Error(t, err)
	_, err = New(template, len(template)-1, 0.5)
	assert.Error(t, err)
	_, err = New(template, 300, 0)
	assert.Error(t, err)
	_, err = New(template, 300, 1.1)
	assert.Error(t, err)
	_, err = New(make([]complex128, 16), 300, 0.5)
	assert.Error(t, err, "all-zero template")

	_, err = New(template, 300, 0.9)
	assert.NoError(t, err)
}

func TestAlignOnExactTemplate(t *testing.T) {
	template := testTemplate(t)
	s, err := New(template, len(template), 0.9)
	require.NoError(t, err)

	frame := core.Frame{Samples: template, Seq: 7}
	aligned, offset, err := s.Align(frame)
	assert.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, uint64(7), aligned.Seq)
	assert.Equal(t, template, aligned.Samples)
}

func TestAlignRecoversEmbeddedOffset(t *testing.T) {
	template := testTemplate(t)
	const period = 300
	s, err := New(template, period, 0.9)
	require.NoError(t, err)

	for _, wantOffset := range []int{1, 17, 40} {
		samples := make([]complex128, wantOffset+len(template)+20)
		copy(samples[wantOffset:], template)

		aligned, offset, err := s.Align(core.Frame{Samples: samples})
		assert.NoErrorf(t, err, "offset %d", wantOffset)
		assert.Equalf(t, wantOffset, offset, "offset %d", wantOffset)
		assert.Equal(t, period, len(aligned.Samples))
		assert.Equal(t, template[0], aligned.Samples[0])
	}
}

func TestAlignPadsShortTail(t *testing.T) {
	template := testTemplate(t)
	const period = 300
	s, err := New(template, period, 0.9)
	require.NoError(t, err)

	// 10 samples lead-in, nothing after the chirp: the slice runs out of
	// frame before the period is full
	samples := make([]complex128, 10+len(template))
	copy(samples[10:], template)

	aligned, offset, err := s.Align(core.Frame{Samples: samples})
	assert.NoError(t, err)
	assert.Equal(t, 10, offset)
	assert.Equal(t, period, len(aligned.Samples))
	for i := len(template); i < period; i++ {
		assert.Equalf(t, complex(0, 0), aligned.Samples[i], "pad sample %d", i)
	}
}

func TestAlignLosesSyncOnNoise(t *testing.T) {
	template := testTemplate(t)
	s, err := New(template, 300, 0.5)
	require.NoError(t, err)

	_, _, err = s.Align(noiseFrame(1, 400, 1))
	assert.ErrorIs(t, err, core.ErrSyncLost)
}

func TestAlignRejectsShortFrame(t *testing.T) {
	template := testTemplate(t)
	s, err := New(template, 300, 0.5)
	require.NoError(t, err)

	_, _, err = s.Align(core.Frame{Samples: make([]complex128, len(template)-1)})
	assert.ErrorIs(t, err, core.ErrInvalidFrame)
}

func TestGroupDropsLostFrames(t *testing.T) {
	template := testTemplate(t)
	const period = 300
	s, err := New(template, period, 0.5)
	require.NoError(t, err)

	good := make([]complex128, period)
	copy(good, template)
	frames := []core.Frame{
		{Samples: good, Seq: 1},
		noiseFrame(2, period, 2),
		{Samples: good, Seq: 3},
	}

	group, err := s.Group(frames)
	assert.NoError(t, err)
	assert.Equal(t, period, group.Period)
	assert.Equal(t, 2, len(group.Frames))
	assert.Equal(t, uint64(1), group.Frames[0].Seq)
	assert.Equal(t, uint64(3), group.Frames[1].Seq)
	assert.NoError(t, group.Validate())
}

func TestGroupFailsWhenNothingSynchronizes(t *testing.T) {
	template := testTemplate(t)
	s, err := New(template, 300, 0.5)
	require.NoError(t, err)

	frames := []core.Frame{noiseFrame(1, 400, 3), noiseFrame(2, 400, 4)}
	_, err = s.Group(frames)
	assert.ErrorIs(t, err, core.ErrSyncLost)
}
