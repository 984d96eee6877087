// Package waterfall keeps the rolling time history of spectra that backs the
// waterfall display.
package waterfall

import (
	"github.com/radarlab/phaser/core"
)

// History is a fixed-depth ring of the most recent spectra. Eviction is FIFO
// by capture time. It is mutated only by the acquisition loop's single
// writer; renderers read through Snapshot.
type History struct {
	rows  []core.Spectrum
	index int
	count int
}

// New returns a history of the given depth.
func New(depth int) *History {
	if depth <= 0 {
		panic("waterfall depth must be positive")
	}
	return &History{
		rows: make([]core.Spectrum, depth),
	}
}

// Push appends the spectrum, evicting the oldest row once the history is
// full. The spectrum's data is copied into the row storage.
func (h *History) Push(spectrum core.Spectrum) {
	row := h.rows[h.index]
	if cap(row.Data) < len(spectrum.Data) {
		row.Data = make([]float64, len(spectrum.Data))
	}
	row.Data = row.Data[:len(spectrum.Data)]
	copy(row.Data, spectrum.Data)
	row.Range = spectrum.Range
	row.Seq = spectrum.Seq
	row.Time = spectrum.Time

	h.rows[h.index] = row
	h.index = (h.index + 1) % len(h.rows)
	if h.count < len(h.rows) {
		h.count++
	}
}

// Snapshot returns a copy of the history, oldest first. The result
// does not alias internal storage, so further pushes cannot corrupt a reader.
func (h *History) Snapshot() []core.Spectrum {
	result := make([]core.Spectrum, h.count)
	start := (h.index - h.count + len(h.rows)) % len(h.rows)
	for i := 0; i < h.count; i++ {
		result[i] = h.rows[(start+i)%len(h.rows)].Clone()
	}
	return result
}

// Len returns the number of spectra currently held.
func (h *History) Len() int {
	return h.count
}

// Depth returns the configured capacity.
func (h *History) Depth() int {
	return len(h.rows)
}
