// Package chirpsync aligns captured frames to the start of the transmitted
// chirp. Without sample-exact trigger alignment, back-to-back chirps drift in
// phase against the true sweep start, which destroys coherence in the
// range-Doppler processing. The synchronizer locates the chirp start by a
// peak-correlation search against a reference template and re-slices each
// frame so sample 0 sits on the detected marker.
package chirpsync

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/radarlab/phaser/core"
)

// Synchronizer slices raw frames into chirp-aligned frames of a fixed length.
type Synchronizer struct {
	template     []complex128
	templateNorm float64
	period       int
	threshold    float64
}

// New returns a synchronizer using the given reference chirp template.
// expectedPeriod is the chirp repetition period in samples and bounds the
// marker search window as well as the length of each sliced frame. threshold
// is the minimum normalized correlation (0..1] to accept a marker.
func New(template []complex128, expectedPeriod int, threshold float64) (*Synchronizer, error) {
	if len(template) == 0 {
		return nil, errors.New("reference template must not be empty")
	}
	if expectedPeriod < len(template) {
		return nil, errors.Errorf("expected period of %d samples is shorter than the %d sample template", expectedPeriod, len(template))
	}
	if threshold <= 0 || threshold > 1 {
		return nil, errors.Errorf("sync threshold must be in (0,1], got %f", threshold)
	}

	norm := 0.0
	for _, s := range template {
		norm += real(s)*real(s) + imag(s)*imag(s)
	}
	if norm == 0 {
		return nil, errors.New("reference template must not be all zero")
	}

	ref := make([]complex128, len(template))
	copy(ref, template)
	return &Synchronizer{
		template:     ref,
		templateNorm: math.Sqrt(norm),
		period:       expectedPeriod,
		threshold:    threshold,
	}, nil
}

// Align finds the chirp marker in the frame and returns the re-sliced frame
// together with the detected marker offset. The sliced frame always has
// expectedPeriod samples; a short tail is zero-padded. If no offset reaches
// the threshold, Align fails with ErrSyncLost and the caller must drop the
// frame rather than substitute silence.
func (s *Synchronizer) Align(frame core.Frame) (core.Frame, int, error) {
	t := len(s.template)
	if len(frame.Samples) < t {
		return core.Frame{}, 0, errors.Wrapf(core.ErrInvalidFrame, "frame %d has %d samples, template needs %d", frame.Seq, len(frame.Samples), t)
	}

	searchEnd := len(frame.Samples) - t
	if searchEnd >= s.period {
		searchEnd = s.period - 1
	}

	// energy of the first window, updated by one entering and one leaving
	// sample per shift
	windowEnergy := 0.0
	for i := 0; i < t; i++ {
		v := frame.Samples[i]
		windowEnergy += real(v)*real(v) + imag(v)*imag(v)
	}

	bestOffset := -1
	bestMetric := 0.0
	for τ := 0; τ <= searchEnd; τ++ {
		if τ > 0 {
			leaving := frame.Samples[τ-1]
			entering := frame.Samples[τ+t-1]
			windowEnergy += real(entering)*real(entering) + imag(entering)*imag(entering)
			windowEnergy -= real(leaving)*real(leaving) + imag(leaving)*imag(leaving)
		}
		if windowEnergy <= 0 {
			continue
		}

		var corr complex128
		for i, ref := range s.template {
			corr += frame.Samples[τ+i] * cmplx.Conj(ref)
		}
		metric := cmplx.Abs(corr) / (math.Sqrt(windowEnergy) * s.templateNorm)
		if metric > bestMetric {
			bestMetric = metric
			bestOffset = τ
		}
	}

	if bestOffset < 0 || bestMetric < s.threshold {
		return core.Frame{}, 0, errors.Wrapf(core.ErrSyncLost, "frame %d: best correlation %.3f below threshold %.3f", frame.Seq, bestMetric, s.threshold)
	}

	sliced := make([]complex128, s.period)
	copy(sliced, frame.Samples[bestOffset:])
	return core.Frame{Samples: sliced, Seq: frame.Seq, Time: frame.Time}, bestOffset, nil
}

// Group aligns a batch of frames captured during one sweep period. Frames
// that lose sync are dropped from the group; the group proceeds with fewer
// chirps. Group fails with ErrSyncLost only when no frame at all could be
// aligned.
func (s *Synchronizer) Group(frames []core.Frame) (core.ChirpGroup, error) {
	group := core.ChirpGroup{
		Frames: make([]core.Frame, 0, len(frames)),
		Period: s.period,
	}
	for _, frame := range frames {
		aligned, _, err := s.Align(frame)
		if errors.Is(err, core.ErrSyncLost) {
			continue
		}
		if err != nil {
			return core.ChirpGroup{}, err
		}
		group.Frames = append(group.Frames, aligned)
	}
	if len(group.Frames) == 0 {
		return core.ChirpGroup{}, errors.Wrapf(core.ErrSyncLost, "no frame of %d synchronized", len(frames))
	}
	return group, nil
}
