// Package cfar implements cell-averaging constant-false-alarm-rate detection
// on dBFS spectra. The noise floor is estimated per bin from training cells
// on both sides, guard cells around the cell under test are excluded, and the
// threshold is the additive log-domain form: noise floor + bias.
package cfar

import (
	"math"

	"github.com/pkg/errors"

	"github.com/radarlab/phaser/core"
)

// Detect scans the spectrum and returns all bins whose magnitude exceeds the
// local CFAR threshold, ordered by bin index ascending. Identical input and
// parameters always yield the identical detection set.
func Detect(spectrum []float64, guardCells, trainingCells int, bias core.DB) ([]core.Detection, error) {
	thresholds, err := Threshold(spectrum, guardCells, trainingCells, bias)
	if err != nil {
		return nil, err
	}

	var result []core.Detection
	for i, v := range spectrum {
		if v > thresholds[i] {
			result = append(result, core.Detection{
				Bin:       i,
				Magnitude: core.DB(v),
				Threshold: core.DB(thresholds[i]),
			})
		}
	}
	return result, nil
}

// Threshold returns the full CFAR threshold trace for the spectrum. Bins
// whose training window lies entirely out of bounds are set to +Inf, so they
// can never detect. Edge bins use whatever training cells are in bounds.
//
// A prefix sum over the spectrum keeps the cost O(len(spectrum)) instead of
// O(len(spectrum) * trainingCells).
func Threshold(spectrum []float64, guardCells, trainingCells int, bias core.DB) ([]float64, error) {
	if guardCells < 0 {
		return nil, errors.Errorf("guard cells must not be negative, got %d", guardCells)
	}
	if trainingCells <= 0 {
		return nil, errors.Errorf("training cells must be positive, got %d", trainingCells)
	}

	n := len(spectrum)
	prefix := make([]float64, n+1)
	for i, v := range spectrum {
		prefix[i+1] = prefix[i] + v
	}
	windowSum := func(from, to int) (float64, int) { // [from,to)
		if from < 0 {
			from = 0
		}
		if to > n {
			to = n
		}
		if from >= to {
			return 0, 0
		}
		return prefix[to] - prefix[from], to - from
	}

	result := make([]float64, n)
	for i := range spectrum {
		leadSum, leadCount := windowSum(i-guardCells-trainingCells, i-guardCells)
		lagSum, lagCount := windowSum(i+guardCells+1, i+guardCells+trainingCells+1)

		count := leadCount + lagCount
		if count == 0 {
			result[i] = math.Inf(1)
			continue
		}
		noise := (leadSum + lagSum) / float64(count)
		result[i] = noise + float64(bias)
	}
	return result, nil
}

// Apply returns a copy of the spectrum with all bins that are not in the
// detection set clamped to the floor value. This is the masked form used for
// display: everything below threshold reads as empty instead of noise.
func Apply(spectrum []float64, detections []core.Detection, floor float64) []float64 {
	result := make([]float64, len(spectrum))
	for i := range result {
		result[i] = floor
	}
	for _, d := range detections {
		if d.Bin >= 0 && d.Bin < len(result) {
			result[d.Bin] = spectrum[d.Bin]
		}
	}
	return result
}
