// Package framebuf holds the most recent raw IQ frames in a fixed-capacity
// ring so the spectral and chirp processing stages can consume them without
// the acquisition loop allocating per push.
package framebuf

import (
	"github.com/pkg/errors"

	"github.com/radarlab/phaser/core"
)

// Buffer is a fixed-capacity ring of frames. It is mutated exclusively by the
// acquisition loop's single writer; Latest returns copies, so a concurrent
// reader never observes a frame mid-construction.
type Buffer struct {
	arena [][]complex128
	meta  []core.Frame
	index int
	count int
}

// New returns a buffer holding the given number of frames.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("frame buffer capacity must be positive")
	}
	return &Buffer{
		arena: make([][]complex128, capacity),
		meta:  make([]core.Frame, capacity),
	}
}

// Push appends the frame, evicting the oldest one once the buffer is full.
// The frame's samples are copied into the buffer's arena; the caller's slice
// is not retained.
func (b *Buffer) Push(frame core.Frame) {
	row := b.arena[b.index]
	if cap(row) < len(frame.Samples) {
		row = make([]complex128, len(frame.Samples))
	}
	row = row[:len(frame.Samples)]
	copy(row, frame.Samples)

	b.arena[b.index] = row
	b.meta[b.index] = core.Frame{Samples: row, Seq: frame.Seq, Time: frame.Time}
	b.index = (b.index + 1) % len(b.arena)
	if b.count < len(b.arena) {
		b.count++
	}
}

// Latest returns copies of the n most recent frames in chronological order.
// It fails with ErrInsufficientData while the buffer holds fewer than n.
func (b *Buffer) Latest(n int) ([]core.Frame, error) {
	if n <= 0 {
		return nil, errors.Errorf("cannot request %d frames", n)
	}
	if n > b.count {
		return nil, errors.Wrapf(core.ErrInsufficientData, "%d frames held, %d requested", b.count, n)
	}

	result := make([]core.Frame, n)
	start := (b.index - n + len(b.arena)) % len(b.arena)
	for i := 0; i < n; i++ {
		result[i] = b.meta[(start+i)%len(b.arena)].Clone()
	}
	return result, nil
}

// Len returns the number of frames currently held.
func (b *Buffer) Len() int {
	return b.count
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return len(b.arena)
}
