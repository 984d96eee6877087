// Package record persists frames and spectra as CSV and plays recordings back
// through the same input interface as live capture. Values are written with
// full float64 precision, so a played-back recording reproduces the live
// processing results bit for bit.
package record

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/radarlab/phaser/core"
)

// WriteFrames writes the frames as CSV, one row per frame. The IQ samples are
// interleaved i0,q0,i1,q1 after the seq and timestamp columns.
func WriteFrames(w io.Writer, frames []core.Frame) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"seq", "timestamp_ns", "iq..."}); err != nil {
		return errors.Wrap(err, "cannot write frame header")
	}

	record := make([]string, 0)
	for _, frame := range frames {
		record = record[:0]
		record = append(record, strconv.FormatUint(frame.Seq, 10), strconv.FormatInt(frame.Time.UnixNano(), 10))
		for _, s := range frame.Samples {
			record = append(record, formatValue(real(s)), formatValue(imag(s)))
		}
		if err := out.Write(record); err != nil {
			return errors.Wrapf(err, "cannot write frame %d", frame.Seq)
		}
	}
	out.Flush()
	return errors.Wrap(out.Error(), "cannot flush frame records")
}

// ReadFrames reads frames written by WriteFrames.
func ReadFrames(r io.Reader) ([]core.Frame, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	result := make([]core.Frame, 0, len(rows))
	for i, row := range rows {
		seq, timestamp, values, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "frame record %d", i+1)
		}
		if len(values)%2 != 0 {
			return nil, errors.Errorf("frame record %d has an odd IQ value count of %d", i+1, len(values))
		}

		samples := make([]complex128, len(values)/2)
		for j := range samples {
			samples[j] = complex(values[2*j], values[2*j+1])
		}
		result = append(result, core.Frame{Samples: samples, Seq: seq, Time: timestamp})
	}
	return result, nil
}

// WriteSpectra writes the spectra as CSV, one row per spectrum with the
// magnitudes after the seq and timestamp columns. The frequency range is not
// persisted, it is implied by the capture configuration.
func WriteSpectra(w io.Writer, spectra []core.Spectrum) error {
	out := csv.NewWriter(w)
	if err := out.Write([]string{"seq", "timestamp_ns", "mag..."}); err != nil {
		return errors.Wrap(err, "cannot write spectrum header")
	}

	record := make([]string, 0)
	for _, spectrum := range spectra {
		record = record[:0]
		record = append(record, strconv.FormatUint(spectrum.Seq, 10), strconv.FormatInt(spectrum.Time.UnixNano(), 10))
		for _, v := range spectrum.Data {
			record = append(record, formatValue(v))
		}
		if err := out.Write(record); err != nil {
			return errors.Wrapf(err, "cannot write spectrum %d", spectrum.Seq)
		}
	}
	out.Flush()
	return errors.Wrap(out.Error(), "cannot flush spectrum records")
}

// ReadSpectra reads spectra written by WriteSpectra.
func ReadSpectra(r io.Reader) ([]core.Spectrum, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}

	result := make([]core.Spectrum, 0, len(rows))
	for i, row := range rows {
		seq, timestamp, values, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "spectrum record %d", i+1)
		}
		result = append(result, core.Spectrum{Data: values, Seq: seq, Time: timestamp})
	}
	return result, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func readRows(r io.Reader) ([][]string, error) {
	in := csv.NewReader(r)
	in.FieldsPerRecord = -1
	rows, err := in.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read records")
	}
	if len(rows) == 0 {
		return nil, errors.New("missing header row")
	}
	return rows[1:], nil
}

func parseRow(row []string) (seq uint64, timestamp time.Time, values []float64, err error) {
	if len(row) < 2 {
		return 0, time.Time{}, nil, errors.Errorf("record has only %d columns", len(row))
	}
	seq, err = strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return 0, time.Time{}, nil, errors.Wrap(err, "invalid seq")
	}
	ns, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, nil, errors.Wrap(err, "invalid timestamp")
	}

	values = make([]float64, len(row)-2)
	for i, field := range row[2:] {
		values[i], err = strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, time.Time{}, nil, errors.Wrapf(err, "invalid value in column %d", i+3)
		}
	}
	return seq, time.Unix(0, ns).UTC(), values, nil
}

// Playback feeds recorded frames through the samples input interface. The
// processing core cannot tell it apart from live capture.
type Playback struct {
	frames   []core.Frame
	interval time.Duration

	samples   chan []complex128
	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayback returns a playback input over the given frames. With a positive
// interval the frames are delivered at that cadence, otherwise as fast as the
// consumer drains them. The samples channel is closed after the last frame.
func NewPlayback(frames []core.Frame, interval time.Duration) *Playback {
	result := &Playback{
		frames:   frames,
		interval: interval,
		samples:  make(chan []complex128, 1),
		done:     make(chan struct{}),
	}
	go result.run()
	return result
}

func (p *Playback) run() {
	defer close(p.samples)

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for _, frame := range p.frames {
		if tick != nil {
			select {
			case <-tick:
			case <-p.done:
				return
			}
		}

		block := make([]complex128, len(frame.Samples))
		copy(block, frame.Samples)
		select {
		case p.samples <- block:
		case <-p.done:
			return
		}
	}
}

// Samples returns the channel of played-back IQ blocks.
func (p *Playback) Samples() <-chan []complex128 {
	return p.samples
}

// Close stops the playback. It never fails.
func (p *Playback) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}
