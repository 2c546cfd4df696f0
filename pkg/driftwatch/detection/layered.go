/*
 * Copyright (c) 2021 THL A29 Limited, a Tencent company.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 *
 * You may obtain a copy of the License at http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package detection

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/tencent/driftwatch/pkg/driftwatch/types"
)

// Thresholds is the calibrated cutoff set, swapped as a unit on recalibration
type Thresholds struct {
	PermutationEntropy float64 `json:"permutation_entropy"`
	HiguchiFD          float64 `json:"higuchi_fd"`
	SlicedWasserstein  float64 `json:"sliced_wasserstein"`
}

// DetectionResult is produced fresh on every check call
type DetectionResult struct {
	Ts                 time.Time `json:"ts"`
	PermutationEntropy float64   `json:"permutation_entropy"`
	HiguchiFD          float64   `json:"higuchi_fd"`
	SentinelTriggered  bool      `json:"sentinel_triggered"`
	// ConfirmRan reports whether the confirm layer ran on this call;
	// SlicedWasserstein is nil when it did not
	ConfirmRan        bool       `json:"confirm_ran"`
	SlicedWasserstein *float64   `json:"sliced_wasserstein,omitempty"`
	ConfirmTriggered  bool       `json:"confirm_triggered"`
	Alert             bool       `json:"alert"`
	Thresholds        Thresholds `json:"thresholds"`
}

// LayeredDetector is the two-stage streaming drift detector. Every window runs
// the cheap sentinel metrics (permutation entropy, Higuchi fractal dimension);
// the expensive sliced Wasserstein confirm layer only runs after the sentinel
// layer has triggered on enough consecutive windows. Check and Recalibrate are
// serialized internally; windows for one instance must arrive in stream order
// or the consecutive-sentinel counter loses its meaning.
type LayeredDetector struct {
	config types.DetectorConfig

	lock       sync.Mutex
	thresholds Thresholds
	reference  [][]float64
	streak     int
}

// NewLayeredDetector calibrates a detector against a baseline history.
// The series provides the sentinel thresholds, the multivariate reference the
// confirm threshold; both thresholds are the configured percentile of the
// metric over sliding baseline windows.
func NewLayeredDetector(config *types.DetectorConfig,
	baselineSeries []float64, baselineReference [][]float64) (*LayeredDetector, error) {
	l := &LayeredDetector{config: *config}
	if err := validatePercentiles(&l.config); err != nil {
		return nil, err
	}
	thresholds, reference, err := l.calibrate(baselineSeries, baselineReference)
	if err != nil {
		return nil, err
	}
	l.thresholds = thresholds
	l.reference = reference
	return l, nil
}

func validatePercentiles(config *types.DetectorConfig) error {
	if config.SentinelPercentile <= 0 || config.SentinelPercentile > 100 {
		return &InvalidParametersError{
			Reason: fmt.Sprintf("sentinel percentile must be in (0,100], got %v", config.SentinelPercentile)}
	}
	if config.ConfirmPercentile <= 0 || config.ConfirmPercentile > 100 {
		return &InvalidParametersError{
			Reason: fmt.Sprintf("confirm percentile must be in (0,100], got %v", config.ConfirmPercentile)}
	}
	if config.WindowSize < 1 {
		return &InvalidParametersError{
			Reason: fmt.Sprintf("window size must be positive, got %d", config.WindowSize)}
	}
	if config.ConsecutiveSentinels < 1 {
		return &InvalidParametersError{
			Reason: fmt.Sprintf("consecutive sentinels must be positive, got %d", config.ConsecutiveSentinels)}
	}
	return nil
}

// calibrate derives a threshold set without touching detector state
func (l *LayeredDetector) calibrate(series []float64, reference [][]float64) (Thresholds, [][]float64, error) {
	ws := l.config.WindowSize
	if len(series) < ws {
		return Thresholds{}, nil, &InsufficientBaselineError{
			Reason: fmt.Sprintf("baseline series has %d samples, need at least window size %d", len(series), ws)}
	}
	if len(reference) == 0 {
		return Thresholds{}, nil, &InsufficientBaselineError{Reason: "baseline reference is empty"}
	}
	if len(reference) < ws {
		return Thresholds{}, nil, &InsufficientBaselineError{
			Reason: fmt.Sprintf("baseline reference has %d rows, need at least window size %d", len(reference), ws)}
	}

	peVals := make([]float64, 0, len(series)-ws+1)
	hfdVals := make([]float64, 0, len(series)-ws+1)
	for i := 0; i+ws <= len(series); i++ {
		window := series[i : i+ws]
		pe, err := PermutationEntropy(window, l.config.EmbeddingDimension, l.config.Delay, true)
		if err != nil {
			return Thresholds{}, nil, err
		}
		hfd, err := HiguchiFractalDimension(window, l.config.Kmax)
		if err != nil {
			return Thresholds{}, nil, err
		}
		peVals = append(peVals, pe)
		hfdVals = append(hfdVals, hfd)
	}

	ref := make([][]float64, len(reference))
	for i, row := range reference {
		ref[i] = append([]float64(nil), row...)
	}

	distVals := make([]float64, 0, len(ref)-ws+1)
	for i := 0; i+ws <= len(ref); i++ {
		dist, err := SlicedWasserstein(ref[i:i+ws], ref,
			l.config.NProjections, l.config.QuantilePoints, l.config.DistancePower, l.newRng())
		if err != nil {
			return Thresholds{}, nil, err
		}
		distVals = append(distVals, dist)
	}

	thresholds := Thresholds{
		PermutationEntropy: percentile(peVals, l.config.SentinelPercentile),
		HiguchiFD:          percentile(hfdVals, l.config.SentinelPercentile),
		SlicedWasserstein:  percentile(distVals, l.config.ConfirmPercentile),
	}
	return thresholds, ref, nil
}

// Check evaluates one telemetry window in arrival order. The optional
// observation is the richer multivariate snapshot for the confirm layer; when
// nil the window itself is compared as a single-feature sample.
func (l *LayeredDetector) Check(window []float64, observation [][]float64) (*DetectionResult, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(window) != l.config.WindowSize {
		return nil, &WindowSizeMismatchError{Expected: l.config.WindowSize, Got: len(window)}
	}

	pe, err := PermutationEntropy(window, l.config.EmbeddingDimension, l.config.Delay, true)
	if err != nil {
		return nil, err
	}
	hfd, err := HiguchiFractalDimension(window, l.config.Kmax)
	if err != nil {
		return nil, err
	}

	sentinelTriggered := pe > l.thresholds.PermutationEntropy || hfd > l.thresholds.HiguchiFD
	if sentinelTriggered {
		l.streak++
	} else {
		l.streak = 0
	}

	result := &DetectionResult{
		Ts:                 time.Now(),
		PermutationEntropy: pe,
		HiguchiFD:          hfd,
		SentinelTriggered:  sentinelTriggered,
		Thresholds:         l.thresholds,
	}

	if sentinelTriggered && l.streak >= l.config.ConsecutiveSentinels {
		obs := observation
		if obs == nil {
			obs = univariateSample(window)
		} else if len(obs) != l.config.WindowSize {
			return nil, &WindowSizeMismatchError{Expected: l.config.WindowSize, Got: len(obs)}
		}
		dist, err := SlicedWasserstein(obs, l.reference,
			l.config.NProjections, l.config.QuantilePoints, l.config.DistancePower, l.newRng())
		if err != nil {
			return nil, err
		}
		result.ConfirmRan = true
		result.SlicedWasserstein = &dist
		result.ConfirmTriggered = dist > l.thresholds.SlicedWasserstein
	}

	result.Alert = result.SentinelTriggered && result.ConfirmTriggered
	return result, nil
}

// Recalibrate derives fresh thresholds from a new baseline and swaps them in as
// a unit, so an in-flight Check never sees a half-updated set. The hysteresis
// streak is kept; call ResetStreak to forget partial drift evidence.
func (l *LayeredDetector) Recalibrate(baselineSeries []float64, baselineReference [][]float64) error {
	thresholds, reference, err := l.calibrate(baselineSeries, baselineReference)
	if err != nil {
		return err
	}
	l.lock.Lock()
	l.thresholds = thresholds
	l.reference = reference
	l.lock.Unlock()
	return nil
}

// ResetStreak clears the consecutive-sentinel counter
func (l *LayeredDetector) ResetStreak() {
	l.lock.Lock()
	l.streak = 0
	l.lock.Unlock()
}

// Thresholds returns the threshold set currently in effect
func (l *LayeredDetector) Thresholds() Thresholds {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.thresholds
}

// Streak returns the current consecutive-sentinel count
func (l *LayeredDetector) Streak() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.streak
}

// WindowSize returns the configured window length
func (l *LayeredDetector) WindowSize() int {
	return l.config.WindowSize
}

// newRng returns a fresh generator per estimation, reseeded from the configured
// seed so calibration and checks stay reproducible
func (l *LayeredDetector) newRng() *rand.Rand {
	if l.config.RandomSeed != nil {
		return rand.New(rand.NewSource(*l.config.RandomSeed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func univariateSample(window []float64) [][]float64 {
	rows := make([][]float64, len(window))
	for i, v := range window {
		rows[i] = []float64{v}
	}
	return rows
}

// percentile interpolates linearly between closest ranks, values need not be sorted
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
