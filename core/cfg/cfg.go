// Package cfg loads the application configuration from the hamradio
// configuration file (~/.config/hamradio/conf.json).
package cfg

import (
	"time"

	"github.com/ftl/hamradio/cfg"

	"github.com/radarlab/phaser/core"
)

const (
	sampleRate        cfg.Key = "phaser.sampleRate"
	frameSize         cfg.Key = "phaser.frameSize"
	updatesPerSecond  cfg.Key = "phaser.updatesPerSecond"
	calibrationOffset cfg.Key = "phaser.calibrationOffset"
	waterfallDepth    cfg.Key = "phaser.waterfallDepth"
	cfarGuardCells    cfg.Key = "phaser.cfar.guardCells"
	cfarTrainingCells cfg.Key = "phaser.cfar.trainingCells"
	cfarBias          cfg.Key = "phaser.cfar.bias"
	ifFrequency       cfg.Key = "phaser.ramp.ifFrequency"
	outputFrequency   cfg.Key = "phaser.ramp.outputFrequency"
	chirpBandwidth    cfg.Key = "phaser.ramp.chirpBandwidth"
	rampTimeµs        cfg.Key = "phaser.ramp.rampTimeMicros"
	priµs             cfg.Key = "phaser.ramp.priMicros"
	numChirps         cfg.Key = "phaser.ramp.numChirps"
	syncThreshold     cfg.Key = "phaser.sync.threshold"
)

// Load reads the configuration from the default location. Missing keys fall
// back to the Static defaults.
func Load() (core.Configuration, error) {
	configuration, err := cfg.LoadDefault()
	if err != nil {
		return core.Configuration{}, err
	}

	defaults := Static()
	result := core.Configuration{
		SampleRate:        core.Frequency(configuration.Get(sampleRate, float64(defaults.SampleRate)).(float64)),
		FrameSize:         int(configuration.Get(frameSize, float64(defaults.FrameSize)).(float64)),
		UpdatesPerSecond:  int(configuration.Get(updatesPerSecond, float64(defaults.UpdatesPerSecond)).(float64)),
		CalibrationOffset: core.DB(configuration.Get(calibrationOffset, float64(defaults.CalibrationOffset)).(float64)),
		WaterfallDepth:    int(configuration.Get(waterfallDepth, float64(defaults.WaterfallDepth)).(float64)),

		CFARGuardCells:    int(configuration.Get(cfarGuardCells, float64(defaults.CFARGuardCells)).(float64)),
		CFARTrainingCells: int(configuration.Get(cfarTrainingCells, float64(defaults.CFARTrainingCells)).(float64)),
		CFARBias:          core.DB(configuration.Get(cfarBias, float64(defaults.CFARBias)).(float64)),

		IFFrequency:     core.Frequency(configuration.Get(ifFrequency, float64(defaults.IFFrequency)).(float64)),
		OutputFrequency: core.Frequency(configuration.Get(outputFrequency, float64(defaults.OutputFrequency)).(float64)),
		ChirpBandwidth:  core.Frequency(configuration.Get(chirpBandwidth, float64(defaults.ChirpBandwidth)).(float64)),
		RampTime:        time.Duration(configuration.Get(rampTimeµs, float64(defaults.RampTime/time.Microsecond)).(float64)) * time.Microsecond,
		PRI:             time.Duration(configuration.Get(priµs, float64(defaults.PRI/time.Microsecond)).(float64)) * time.Microsecond,
		NumChirps:       int(configuration.Get(numChirps, float64(defaults.NumChirps)).(float64)),
		SyncThreshold:   configuration.Get(syncThreshold, defaults.SyncThreshold).(float64),
	}

	return result, nil
}

// Static returns the built-in default configuration. It matches the phased
// array kit's FMCW setup and works with the simulated inputs out of the box.
func Static() core.Configuration {
	return core.Configuration{
		SampleRate:        600e3,
		FrameSize:         1024,
		UpdatesPerSecond:  25,
		CalibrationOffset: 0,
		WaterfallDepth:    100,

		CFARGuardCells:    4,
		CFARTrainingCells: 16,
		CFARBias:          12,

		IFFrequency:     100e3,
		OutputFrequency: 10.25e9,
		ChirpBandwidth:  500e6,
		RampTime:        500 * time.Microsecond,
		PRI:             2 * time.Millisecond,
		NumChirps:       32,
		SyncThreshold:   0.6,
	}
}
