package app

import (
	"log"
	"time"

	"github.com/mjibson/go-dsp/dsputils"
	"github.com/mjibson/go-dsp/window"
	"github.com/pkg/errors"

	"github.com/radarlab/phaser/core"
	"github.com/radarlab/phaser/core/cfar"
	"github.com/radarlab/phaser/core/chirpsync"
	"github.com/radarlab/phaser/core/framebuf"
	"github.com/radarlab/phaser/core/rangedoppler"
	"github.com/radarlab/phaser/core/spectral"
	"github.com/radarlab/phaser/core/waterfall"
	"github.com/radarlab/phaser/core/waveform"
)

// defaultCancellation is the clutter filter order used until the controller
// overrides it.
const defaultCancellation = 1

func newMainLoop(configuration core.Configuration, mode Mode, samplesInput core.SamplesInput) (*mainLoop, error) {
	updateInterval := (1 * time.Second) / time.Duration(configuration.UpdatesPerSecond)
	result := &mainLoop{
		configuration: configuration,
		mode:          mode,
		samplesInput:  samplesInput,

		frames:    framebuf.New(configuration.NumChirps + 1),
		estimator: spectral.New(configuration.SampleRate, window.Blackman, 0, configuration.CalibrationOffset),
		history:   waterfall.New(configuration.WaterfallDepth),

		cancellation:   defaultCancellation,
		updateInterval: updateInterval,
		updateTick:     time.NewTicker(updateInterval),
		command:        make(chan command, 1),

		spectra:    make(chan core.Spectrum, 1),
		detections: make(chan []core.Detection, 1),
		maps:       make(chan core.RangeDopplerMap, 1),
	}

	if mode == ModeFMCW {
		template, err := waveform.ReferenceChirp(configuration.Ramp())
		if err != nil {
			return nil, err
		}
		period := dsputils.NextPowerOf2(len(template))
		synchronizer, err := chirpsync.New(template, period, configuration.SyncThreshold)
		if err != nil {
			return nil, err
		}
		result.synchronizer = synchronizer
		result.processor = rangedoppler.New(configuration.Ramp(), window.Blackman)
		result.pending = make([]core.Frame, 0, configuration.NumChirps)
	}

	return result, nil
}

type command func()

type mainLoop struct {
	configuration core.Configuration
	mode          Mode
	samplesInput  core.SamplesInput

	frames       *framebuf.Buffer
	estimator    *spectral.Estimator
	history      *waterfall.History
	synchronizer *chirpsync.Synchronizer
	processor    *rangedoppler.Processor

	cancellation   int
	updateInterval time.Duration
	updateTick     *time.Ticker
	command        chan command

	seq     uint64
	pending []core.Frame

	spectra    chan core.Spectrum
	detections chan []core.Detection
	maps       chan core.RangeDopplerMap
}

func (m *mainLoop) Run(stop chan struct{}) {
	defer log.Print("main loop shutdown")
	samples := m.samplesInput.Samples()
	for {
		select {
		case block, ok := <-samples:
			if !ok {
				log.Print("samples input drained")
				samples = nil
				continue
			}
			m.handleBlock(block)
		case <-m.updateTick.C:
			if m.mode == ModeCW {
				m.publishSpectrum()
			}
		case command := <-m.command:
			command()
		case <-stop:
			m.updateTick.Stop()
			return
		}
	}
}

func (m *mainLoop) handleBlock(block []complex128) {
	frame := core.Frame{Samples: block, Seq: m.seq, Time: time.Now()}
	m.seq++
	m.frames.Push(frame)

	if m.mode != ModeFMCW {
		return
	}
	m.pending = append(m.pending, frame.Clone())
	if len(m.pending) < m.configuration.NumChirps {
		return
	}
	m.publishMap()
	m.pending = m.pending[:0]
}

// publishSpectrum runs the CW chain on the most recent frame: spectrum,
// waterfall row, CFAR detections. Publishing never blocks the loop.
func (m *mainLoop) publishSpectrum() {
	latest, err := m.frames.Latest(1)
	if err != nil {
		if !errors.Is(err, core.ErrInsufficientData) {
			log.Print("cannot read latest frame: ", err)
		}
		return
	}

	spectrum, err := m.estimator.Estimate(latest[0])
	if err != nil {
		log.Print("spectrum estimation failed, dropping cycle: ", err)
		return
	}
	m.detectAndPublish(spectrum)
}

// detectAndPublish feeds the spectrum into the waterfall and the detector and
// publishes both results. Publishing never blocks the loop.
func (m *mainLoop) detectAndPublish(spectrum core.Spectrum) {
	m.history.Push(spectrum)

	hits, err := cfar.Detect(spectrum.Data, m.configuration.CFARGuardCells, m.configuration.CFARTrainingCells, m.configuration.CFARBias)
	if err != nil {
		log.Print("detection failed, dropping cycle: ", err)
		return
	}

	select {
	case m.spectra <- spectrum:
	default:
		log.Print("publish spectrum hangs")
	}
	select {
	case m.detections <- hits:
	default:
		log.Print("publish detections hangs")
	}
}

// publishMap runs the FMCW chain on the pending chirp group. A group that
// loses all frames to sync is a missed cycle, not a failure.
func (m *mainLoop) publishMap() {
	group, err := m.synchronizer.Group(m.pending)
	if errors.Is(err, core.ErrSyncLost) {
		log.Print("sync lost for the whole group, missed cycle")
		return
	}
	if err != nil {
		log.Print("chirp group failed, dropping cycle: ", err)
		return
	}
	if len(group.Frames) < m.configuration.NumChirps {
		log.Printf("sync lost on %d of %d chirps", m.configuration.NumChirps-len(group.Frames), m.configuration.NumChirps)
	}

	// the chirp-synchronized waterfall/CFAR view runs alongside the
	// range-Doppler map, on the coherent average of the synced group
	spectrum, err := m.estimator.EstimateGroup(group)
	if err != nil {
		log.Print("group spectrum estimation failed: ", err)
	} else {
		m.detectAndPublish(spectrum)
	}

	result, err := m.processor.Process(group, m.cancellation)
	if err != nil {
		log.Print("range-doppler processing failed, dropping cycle: ", err)
		return
	}

	select {
	case m.maps <- result:
	default:
		log.Print("publish range-doppler map hangs")
	}
}

// Spectra delivers the published spectra: one per update tick in CW mode, one
// per synchronized chirp group in FMCW mode.
func (m *mainLoop) Spectra() <-chan core.Spectrum {
	return m.spectra
}

// Detections delivers the CFAR hits belonging to the published spectra, in
// both modes.
func (m *mainLoop) Detections() <-chan []core.Detection {
	return m.detections
}

// Maps delivers the range-Doppler maps, one per completed chirp group.
func (m *mainLoop) Maps() <-chan core.RangeDopplerMap {
	return m.maps
}

func (m *mainLoop) q(cmd command) {
	select {
	case m.command <- cmd:
	default:
		log.Print("mainLoop.q hangs")
	}
}

// SetClutterFilter sets the pulse cancellation order for the FMCW chain.
func (m *mainLoop) SetClutterFilter(order int) {
	m.q(func() {
		m.cancellation = order
	})
}

// Waterfall returns a snapshot of the spectrum history, oldest first.
func (m *mainLoop) Waterfall() ([]core.Spectrum, error) {
	replies := make(chan []core.Spectrum, 1)
	m.q(func() {
		replies <- m.history.Snapshot()
	})
	select {
	case rows := <-replies:
		return rows, nil
	case <-time.After(time.Second):
		return nil, errors.New("main loop busy")
	}
}

// LatestFrames returns deep copies of the n most recent raw frames, e.g. for
// export.
func (m *mainLoop) LatestFrames(n int) ([]core.Frame, error) {
	type reply struct {
		frames []core.Frame
		err    error
	}
	replies := make(chan reply, 1)
	m.q(func() {
		frames, err := m.frames.Latest(n)
		replies <- reply{frames, err}
	})
	select {
	case r := <-replies:
		return r.frames, r.err
	case <-time.After(time.Second):
		return nil, errors.New("main loop busy")
	}
}
