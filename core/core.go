package core

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Frequency represents a frequency in Hz.
type Frequency float64

func (f Frequency) String() string {
	return fmt.Sprintf("%.2fHz", f)
}

// FrequencyRange represents a range of frequencies.
type FrequencyRange struct {
	From, To Frequency
}

func (r FrequencyRange) String() string {
	return fmt.Sprintf("[%v,%v]", r.From, r.To)
}

// Center frequency of this range.
func (r FrequencyRange) Center() Frequency {
	return r.From + (r.To-r.From)/2
}

// Width of the frequency range.
func (r FrequencyRange) Width() Frequency {
	return r.To - r.From
}

// Contains the given frequency.
func (r FrequencyRange) Contains(f Frequency) bool {
	return f >= r.From && f <= r.To
}

// DB represents decibel (dB).
type DB float64

func (f DB) String() string {
	return fmt.Sprintf("%.2fdB", f)
}

// DBRange represents a range of dB.
type DBRange struct {
	From, To DB
}

func (r DBRange) String() string {
	return fmt.Sprintf("[%v,%v]", r.From, r.To)
}

// Width of the dB range.
func (r DBRange) Width() DB {
	return r.To - r.From
}

// Contains the given value in dB.
func (r DBRange) Contains(value DB) bool {
	return value >= r.From && value <= r.To
}

// C is the speed of light in m/s.
const C = 3e8

// Error taxonomy of the processing core. The acquisition loop decides what to
// do with each of these; the core itself never retries.
var (
	// ErrInvalidFrame marks malformed input: zero-length or mismatched-length
	// frames. A caller bug, not worth retrying.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrInsufficientData means a buffer has not warmed up yet. The caller
	// should wait for the next acquisition cycle.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrSyncLost means no chirp marker was found in a frame. The frame is
	// dropped, never zero-filled.
	ErrSyncLost = errors.New("sync lost")
)

// Frame is one block of raw IQ samples as delivered by the acquisition
// front end. Frames are immutable once captured.
type Frame struct {
	Samples []complex128
	Seq     uint64
	Time    time.Time
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	samples := make([]complex128, len(f.Samples))
	copy(samples, f.Samples)
	return Frame{Samples: samples, Seq: f.Seq, Time: f.Time}
}

// Spectrum is the calibrated power spectrum (dBFS) of one frame or one
// coherently combined chirp group. Data is fftshifted: bin i corresponds to
// Range.From + i*Range.Width()/len(Data).
type Spectrum struct {
	Data  []float64
	Range FrequencyRange
	Seq   uint64
	Time  time.Time
}

// BinFrequency returns the frequency at the given bin.
func (s Spectrum) BinFrequency(bin int) Frequency {
	if len(s.Data) == 0 {
		return s.Range.From
	}
	return s.Range.From + s.Range.Width()*Frequency(bin)/Frequency(len(s.Data))
}

// Clone returns a deep copy of the spectrum.
func (s Spectrum) Clone() Spectrum {
	data := make([]float64, len(s.Data))
	copy(data, s.Data)
	return Spectrum{Data: data, Range: s.Range, Seq: s.Seq, Time: s.Time}
}

// Detection is one CFAR hit, valid only relative to the spectrum it was
// computed from.
type Detection struct {
	Bin       int
	Magnitude DB
	Threshold DB
}

func (d Detection) String() string {
	return fmt.Sprintf("bin %d: %v > %v", d.Bin, d.Magnitude, d.Threshold)
}

// ChirpGroup is an ordered set of frames captured during one FMCW sweep
// period, aligned so that sample 0 of each frame corresponds to the same
// phase of the transmitted chirp.
type ChirpGroup struct {
	Frames []Frame
	Period int
}

// Validate checks the group invariant: all frames share the same length.
func (g ChirpGroup) Validate() error {
	if len(g.Frames) == 0 {
		return errors.Wrap(ErrInvalidFrame, "empty chirp group")
	}
	length := len(g.Frames[0].Samples)
	for i, f := range g.Frames {
		if len(f.Samples) != length {
			return errors.Wrapf(ErrInvalidFrame, "chirp %d has %d samples, expected %d", i, len(f.Samples), length)
		}
	}
	return nil
}

// RangeDopplerMap is a 2-D magnitude map in dB, indexed as
// Data[rangeBin][dopplerBin]. Both axes are fftshifted, so
// Data[len(Data)/2][len(Data[0])/2] is zero beat frequency at zero relative
// velocity. Maps are recomputed fresh per chirp group, never accumulated.
type RangeDopplerMap struct {
	Data           [][]float64
	RangePerBin    float64 // meters
	VelocityPerBin float64 // m/s
}

// RangeBins returns the size of the range axis.
func (m RangeDopplerMap) RangeBins() int {
	return len(m.Data)
}

// DopplerBins returns the size of the velocity axis.
func (m RangeDopplerMap) DopplerBins() int {
	if len(m.Data) == 0 {
		return 0
	}
	return len(m.Data[0])
}

// BinToVelocity converts a Doppler bin index to relative velocity in m/s.
func (m RangeDopplerMap) BinToVelocity(bin int) float64 {
	return float64(bin-m.DopplerBins()/2) * m.VelocityPerBin
}

// RampParams describes the FMCW ramp and derives the scale factors that
// convert FFT bins to physical units.
type RampParams struct {
	SampleRate      Frequency
	IFFrequency     Frequency // transmit tone offset within the IF passband
	OutputFrequency Frequency // RF output of the ramping PLL
	ChirpBandwidth  Frequency
	RampTime        time.Duration
	PRI             time.Duration // chirp repetition interval
	NumChirps       int
}

// Slope of the frequency ramp in Hz/s.
func (p RampParams) Slope() float64 {
	return float64(p.ChirpBandwidth) / p.RampTime.Seconds()
}

// Wavelength of the RF output in meters.
func (p RampParams) Wavelength() float64 {
	return C / float64(p.OutputFrequency)
}

// RangeResolution in meters: c / (2 * chirp bandwidth).
func (p RampParams) RangeResolution() float64 {
	return C / (2 * float64(p.ChirpBandwidth))
}

// VelocityResolution in m/s per Doppler bin: λ / (2 * M * PRI).
func (p RampParams) VelocityResolution() float64 {
	return p.Wavelength() / (2 * float64(p.NumChirps) * p.PRI.Seconds())
}

// HzPerBin for an FFT of the given size.
func (p RampParams) HzPerBin(fftSize int) Frequency {
	return p.SampleRate / Frequency(fftSize)
}

// BinToRange converts a fftshifted range bin index to distance in meters.
// The beat frequency is offset by the IF tone before scaling by the slope.
func (p RampParams) BinToRange(bin, fftSize int) float64 {
	f := -p.SampleRate/2 + p.HzPerBin(fftSize)*Frequency(bin)
	return float64(f-p.IFFrequency) * C / (2 * p.Slope())
}

// SamplesInput delivers raw IQ frames from the acquisition front end, one
// fixed-size block per acquisition cycle. The core cannot distinguish live
// capture from playback.
type SamplesInput interface {
	Samples() <-chan []complex128
	Close() error
}

// Configuration parameters of the application.
type Configuration struct {
	SampleRate        Frequency
	FrameSize         int
	UpdatesPerSecond  int
	CalibrationOffset DB
	WaterfallDepth    int

	CFARGuardCells    int
	CFARTrainingCells int
	CFARBias          DB

	IFFrequency     Frequency
	OutputFrequency Frequency
	ChirpBandwidth  Frequency
	RampTime        time.Duration
	PRI             time.Duration
	NumChirps       int
	SyncThreshold   float64
}

// Ramp returns the ramp parameters derived from the configuration.
func (c Configuration) Ramp() RampParams {
	return RampParams{
		SampleRate:      c.SampleRate,
		IFFrequency:     c.IFFrequency,
		OutputFrequency: c.OutputFrequency,
		ChirpBandwidth:  c.ChirpBandwidth,
		RampTime:        c.RampTime,
		PRI:             c.PRI,
		NumChirps:       c.NumChirps,
	}
}
