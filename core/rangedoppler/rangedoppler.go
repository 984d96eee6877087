// Package rangedoppler turns a synchronized chirp group into a 2-D
// range/velocity magnitude map. The slow-time axis across chirps resolves
// Doppler, the fast-time axis within each chirp resolves beat frequency and
// thus range. An optional pulse canceller suppresses static clutter before
// the Doppler transform.
package rangedoppler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/radarlab/phaser/core"
	"github.com/radarlab/phaser/core/spectral"
)

// magnitudeFloor keeps the log conversion away from -Inf on cancelled bins.
const magnitudeFloor = 1e-15

// Processor computes range-Doppler maps for a fixed ramp configuration. FFT
// plans are cached per transform size, so the per-group cost is the transforms
// themselves. A Processor is not safe for concurrent use.
type Processor struct {
	ramp     core.RampParams
	windowFn spectral.WindowFn

	plans  map[int]*fourier.CmplxFFT
	window []float64 // cached for the last seen chirp length
}

// New returns a processor for the given ramp. The window is applied along the
// fast-time axis of every chirp before the range transform.
func New(ramp core.RampParams, windowFn spectral.WindowFn) *Processor {
	return &Processor{
		ramp:     ramp,
		windowFn: windowFn,
		plans:    make(map[int]*fourier.CmplxFFT),
	}
}

// Process computes the range-Doppler map of one chirp group. The map is
// recomputed from scratch, nothing carries over from previous groups.
//
// cancellationOrder selects the clutter filter: 0 passes the chirps through
// unchanged, each higher order applies one more first-difference pass across
// consecutive chirps. Every pass consumes one chirp; cancellation stops early
// once a single chirp remains. Magnitudes are relative dB, both axes are
// fftshifted so the map center is zero beat frequency at zero velocity.
func (p *Processor) Process(group core.ChirpGroup, cancellationOrder int) (core.RangeDopplerMap, error) {
	if err := group.Validate(); err != nil {
		return core.RangeDopplerMap{}, err
	}
	if cancellationOrder < 0 {
		return core.RangeDopplerMap{}, errors.Errorf("cancellation order must not be negative, got %d", cancellationOrder)
	}

	chirps := cancel(group.Frames, cancellationOrder)
	m := len(chirps)
	l := len(chirps[0])

	if len(p.window) != l {
		p.window = p.windowFn(l)
	}

	// fast time: one range transform per chirp
	rangePlan := p.plan(l)
	fast := make([][]complex128, m)
	windowed := make([]complex128, l)
	for i, chirp := range chirps {
		for j, s := range chirp {
			windowed[j] = s * complex(p.window[j], 0)
		}
		fast[i] = rangePlan.Coefficients(nil, windowed)
	}

	// slow time: one Doppler transform per range bin
	dopplerPlan := p.plan(m)
	column := make([]complex128, m)
	slow := make([]complex128, m)
	data := make([][]float64, l)
	for j := 0; j < l; j++ {
		for i := 0; i < m; i++ {
			column[i] = fast[i][j]
		}
		slow = dopplerPlan.Coefficients(slow, column)

		rangeBin := fftshift(j, l)
		row := make([]float64, m)
		for i, v := range slow {
			row[fftshift(i, m)] = toDB(v)
		}
		data[rangeBin] = row
	}

	return core.RangeDopplerMap{
		Data:           data,
		RangePerBin:    float64(p.ramp.HzPerBin(l)) * core.C / (2 * p.ramp.Slope()),
		VelocityPerBin: p.ramp.Wavelength() / (2 * float64(m) * p.ramp.PRI.Seconds()),
	}, nil
}

// cancel applies order first-difference passes across consecutive chirps.
func cancel(frames []core.Frame, order int) [][]complex128 {
	chirps := make([][]complex128, len(frames))
	for i, f := range frames {
		chirps[i] = f.Samples
	}

	for pass := 0; pass < order && len(chirps) > 1; pass++ {
		next := make([][]complex128, len(chirps)-1)
		for i := range next {
			diff := make([]complex128, len(chirps[i]))
			for j := range diff {
				diff[j] = chirps[i+1][j] - chirps[i][j]
			}
			next[i] = diff
		}
		chirps = next
	}
	return chirps
}

func (p *Processor) plan(size int) *fourier.CmplxFFT {
	plan, ok := p.plans[size]
	if !ok {
		plan = fourier.NewCmplxFFT(size)
		p.plans[size] = plan
	}
	return plan
}

func fftshift(i, n int) int {
	return (i + n/2) % n
}

func toDB(v complex128) float64 {
	mag := math.Sqrt(real(v)*real(v) + imag(v)*imag(v))
	if mag < magnitudeFloor {
		mag = magnitudeFloor
	}
	return 20 * math.Log10(mag)
}
