package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/radarlab/phaser/core"
	coreapp "github.com/radarlab/phaser/core/app"
	"github.com/radarlab/phaser/core/cfg"
	"github.com/radarlab/phaser/core/input"
	"github.com/radarlab/phaser/core/record"
)

var (
	runDuration  time.Duration
	exportFile   string
	clutterOrder int
	realtime     bool
)

var rootCmd = &cobra.Command{
	Use:   "phaser",
	Short: "FMCW radar signal processing chain with simulated acquisition",
}

var cwCmd = &cobra.Command{
	Use:   "cw",
	Short: "Run the continuous-wave chain: spectrum, waterfall, CFAR detections",
	Run: func(cmd *cobra.Command, args []string) {
		configuration := loadConfiguration()
		samplesInput := input.NewToneInput(configuration.FrameSize, 2048, configuration.IFFrequency, configuration.SampleRate)
		runChain(configuration, coreapp.ModeCW, samplesInput)
	},
}

var fmcwCmd = &cobra.Command{
	Use:   "fmcw",
	Short: "Run the FMCW chain: chirp sync and range-Doppler maps on a simulated scene",
	Run: func(cmd *cobra.Command, args []string) {
		configuration := loadConfiguration()
		samplesInput, err := input.NewChirpSceneInput(configuration.Ramp(), configuration.FrameSize, 16, []input.Target{
			{Delay: 30, DopplerBin: 0, Amplitude: 0.5},
			{Delay: 55, DopplerBin: 3, Amplitude: 0.25},
		})
		if err != nil {
			log.Fatal(err)
		}
		runChain(configuration, coreapp.ModeFMCW, samplesInput)
	},
}

var playCmd = &cobra.Command{
	Use:   "play <frames.csv>",
	Short: "Play back a frame recording through the continuous-wave chain",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configuration := loadConfiguration()

		file, err := os.Open(args[0])
		if err != nil {
			log.Fatal(err)
		}
		frames, err := record.ReadFrames(file)
		file.Close()
		if err != nil {
			log.Fatal(err)
		}

		var interval time.Duration
		if realtime {
			interval = time.Duration(float64(configuration.FrameSize)/float64(configuration.SampleRate)) * time.Second
		}
		runChain(configuration, coreapp.ModeCW, record.NewPlayback(frames, interval))
	},
}

func main() {
	rootCmd.PersistentFlags().DurationVar(&runDuration, "duration", 0, "stop after this time, 0 runs until interrupted")
	rootCmd.PersistentFlags().StringVar(&exportFile, "export", "", "write the most recent raw frames as CSV on exit")
	fmcwCmd.Flags().IntVar(&clutterOrder, "clutter", 1, "pulse cancellation order for static clutter suppression")
	playCmd.Flags().BoolVar(&realtime, "realtime", false, "play at the recorded cadence instead of as fast as possible")

	rootCmd.AddCommand(cwCmd, fmcwCmd, playCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfiguration() core.Configuration {
	configuration, err := cfg.Load()
	if err != nil {
		log.Println(err)
		configuration = cfg.Static()
	}
	return configuration
}

func runChain(configuration core.Configuration, mode coreapp.Mode, samplesInput core.SamplesInput) {
	controller := coreapp.NewController(configuration, mode, samplesInput)
	if err := controller.Startup(); err != nil {
		log.Fatal(err)
	}
	if mode == coreapp.ModeFMCW {
		controller.SetClutterFilter(clutterOrder)
	}

	stop := make(chan struct{})
	go consume(controller, configuration, stop)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	if runDuration > 0 {
		select {
		case <-signals:
		case <-time.After(runDuration):
		}
	} else {
		<-signals
	}

	if exportFile != "" {
		exportFrames(controller, configuration)
	}
	close(stop)
	controller.Shutdown()
}

// consume drains the published results and logs a digest of each.
func consume(controller *coreapp.Controller, configuration core.Configuration, stop chan struct{}) {
	ramp := configuration.Ramp()
	for {
		select {
		case <-controller.Spectra():
		case hits := <-controller.Detections():
			for _, hit := range hits {
				log.Print("detection at ", hit)
			}
		case result := <-controller.Maps():
			rangeBin, dopplerBin, peak := peakOf(result)
			log.Printf("peak %.1fdB at %.1fm, %.1fm/s", peak, ramp.BinToRange(rangeBin, result.RangeBins()), result.BinToVelocity(dopplerBin))
		case <-stop:
			return
		}
	}
}

func peakOf(result core.RangeDopplerMap) (rangeBin, dopplerBin int, peak float64) {
	peak = -1e300
	for i, row := range result.Data {
		for j, v := range row {
			if v > peak {
				peak = v
				rangeBin, dopplerBin = i, j
			}
		}
	}
	return rangeBin, dopplerBin, peak
}

func exportFrames(controller *coreapp.Controller, configuration core.Configuration) {
	count := configuration.NumChirps
	if count < 1 {
		count = 1
	}
	frames, err := controller.LatestFrames(count)
	if err != nil {
		log.Print("cannot export frames: ", err)
		return
	}

	file, err := os.Create(exportFile)
	if err != nil {
		log.Print("cannot export frames: ", err)
		return
	}
	defer file.Close()
	if err := record.WriteFrames(file, frames); err != nil {
		log.Print("cannot export frames: ", err)
		return
	}
	log.Printf("exported %d frames to %s", len(frames), exportFile)
}
