// Package app wires the processing chain together and runs it.
package app

import (
	"log"
	"sync"

	"github.com/radarlab/phaser/core"
)

// Mode selects the processing chain of the main loop.
type Mode int

const (
	// ModeCW runs the spectrum/waterfall/CFAR chain on a continuous tone.
	ModeCW Mode = iota
	// ModeFMCW runs the chirp synchronization and range-Doppler chain.
	ModeFMCW
)

func (m Mode) String() string {
	switch m {
	case ModeCW:
		return "cw"
	case ModeFMCW:
		return "fmcw"
	default:
		return "unknown"
	}
}

// NewController returns a new controller for the given configuration, mode,
// and samples input.
func NewController(configuration core.Configuration, mode Mode, samplesInput core.SamplesInput) *Controller {
	return &Controller{
		configuration: configuration,
		mode:          mode,
		samplesInput:  samplesInput,
	}
}

// Controller for the application.
type Controller struct {
	configuration core.Configuration
	mode          Mode
	samplesInput  core.SamplesInput

	done         chan struct{}
	subProcesses *sync.WaitGroup

	*mainLoop
}

// Startup the processing chain.
func (c *Controller) Startup() error {
	c.done = make(chan struct{})
	c.subProcesses = new(sync.WaitGroup)

	mainLoop, err := newMainLoop(c.configuration, c.mode, c.samplesInput)
	if err != nil {
		return err
	}
	c.mainLoop = mainLoop

	c.subProcesses.Add(1)
	go func() {
		defer c.subProcesses.Done()
		c.mainLoop.Run(c.done)
	}()
	return nil
}

// Shutdown the processing chain and wait for it to drain.
func (c *Controller) Shutdown() {
	close(c.done)
	if err := c.samplesInput.Close(); err != nil {
		log.Print("closing samples input failed: ", err)
	}
	c.subProcesses.Wait()
}
