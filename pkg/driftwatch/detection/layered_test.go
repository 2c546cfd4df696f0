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
	"math/rand"
	"testing"

	"github.com/tencent/driftwatch/pkg/driftwatch/types"
)

func testDetectorConfig() *types.DetectorConfig {
	seed := int64(42)
	return &types.DetectorConfig{
		WindowSize:           16,
		SentinelPercentile:   95,
		ConfirmPercentile:    95,
		ConsecutiveSentinels: 3,
		EmbeddingDimension:   3,
		Delay:                1,
		Kmax:                 4,
		NProjections:         20,
		QuantilePoints:       16,
		DistancePower:        2,
		RandomSeed:           &seed,
	}
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

// driftWindow is far outside the baseline range and has nonzero pattern entropy
func driftWindow() []float64 {
	out := make([]float64, 16)
	for i := range out {
		out[i] = 100 + testNoise64[i]
	}
	return out
}

// newTestDetector calibrates against a monotone ramp, so the entropy threshold
// is zero and any non-monotone window trips the sentinel
func newTestDetector(t *testing.T, config *types.DetectorConfig) *LayeredDetector {
	t.Helper()
	baseline := ramp(32)
	l, err := NewLayeredDetector(config, baseline, univariateRows(baseline))
	if err != nil {
		t.Fatalf("failed to calibrate detector: %v", err)
	}
	return l
}

func TestLayeredDetectorHysteresis(t *testing.T) {
	l := newTestDetector(t, testDetectorConfig())
	drifted := driftWindow()

	// the confirm layer stays quiet until the sentinel streak is long enough
	for i := 1; i <= 2; i++ {
		result, err := l.Check(drifted, nil)
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if !result.SentinelTriggered {
			t.Fatalf("check %d: expected sentinel to trigger", i)
		}
		if result.ConfirmRan || result.SlicedWasserstein != nil {
			t.Fatalf("check %d: confirm ran on streak %d", i, l.Streak())
		}
		if result.Alert {
			t.Fatalf("check %d: unexpected alert", i)
		}
		if l.Streak() != i {
			t.Fatalf("check %d: expected streak %d, got %d", i, i, l.Streak())
		}
	}

	result, err := l.Check(drifted, nil)
	if err != nil {
		t.Fatalf("third check failed: %v", err)
	}
	if !result.ConfirmRan || result.SlicedWasserstein == nil {
		t.Fatal("third check: expected confirm layer to run")
	}
	if !result.ConfirmTriggered {
		t.Errorf("third check: expected confirm to trigger, distance %v vs threshold %v",
			*result.SlicedWasserstein, result.Thresholds.SlicedWasserstein)
	}
	if !result.Alert {
		t.Error("third check: expected alert")
	}

	// a calm window clears the streak
	result, err = l.Check(ramp(16), nil)
	if err != nil {
		t.Fatalf("calm check failed: %v", err)
	}
	if result.SentinelTriggered {
		t.Error("calm check: unexpected sentinel trigger")
	}
	if l.Streak() != 0 {
		t.Errorf("calm check: expected streak 0, got %d", l.Streak())
	}

	// the streak starts over after a reset
	result, err = l.Check(drifted, nil)
	if err != nil {
		t.Fatalf("restart check failed: %v", err)
	}
	if result.ConfirmRan {
		t.Error("restart check: confirm ran on streak 1")
	}
}

func TestLayeredDetectorResetStreak(t *testing.T) {
	l := newTestDetector(t, testDetectorConfig())
	drifted := driftWindow()

	for i := 0; i < 2; i++ {
		if _, err := l.Check(drifted, nil); err != nil {
			t.Fatalf("check failed: %v", err)
		}
	}
	if l.Streak() != 2 {
		t.Fatalf("expected streak 2, got %d", l.Streak())
	}

	l.ResetStreak()
	if l.Streak() != 0 {
		t.Fatalf("expected streak 0 after reset, got %d", l.Streak())
	}

	result, err := l.Check(drifted, nil)
	if err != nil {
		t.Fatalf("check after reset failed: %v", err)
	}
	if result.ConfirmRan {
		t.Error("confirm ran right after a streak reset")
	}
	if l.Streak() != 1 {
		t.Errorf("expected streak 1 after reset, got %d", l.Streak())
	}
}

func TestLayeredDetectorWindowSizeMismatch(t *testing.T) {
	l := newTestDetector(t, testDetectorConfig())

	_, err := l.Check(ramp(10), nil)
	if err == nil {
		t.Fatal("expected error for short window, got none")
	}
	if _, ok := err.(*WindowSizeMismatchError); !ok {
		t.Errorf("expected WindowSizeMismatchError, got %T", err)
	}

	// a mismatched confirm observation is rejected as well
	config := testDetectorConfig()
	config.ConsecutiveSentinels = 1
	l = newTestDetector(t, config)
	_, err = l.Check(driftWindow(), univariateRows([]float64{1, 2, 3}))
	if err == nil {
		t.Fatal("expected error for short observation, got none")
	}
	if _, ok := err.(*WindowSizeMismatchError); !ok {
		t.Errorf("expected WindowSizeMismatchError, got %T", err)
	}
}

func TestLayeredDetectorInsufficientBaseline(t *testing.T) {
	cases := []struct {
		name      string
		series    []float64
		reference [][]float64
	}{
		{
			name:      "short_series",
			series:    ramp(10),
			reference: univariateRows(ramp(32)),
		},
		{
			name:      "empty_reference",
			series:    ramp(32),
			reference: nil,
		},
		{
			name:      "short_reference",
			series:    ramp(32),
			reference: univariateRows(ramp(10)),
		},
	}

	for _, test := range cases {
		_, err := NewLayeredDetector(testDetectorConfig(), test.series, test.reference)
		if err == nil {
			t.Errorf("%s failed, expected error, got none", test.name)
			continue
		}
		if _, ok := err.(*InsufficientBaselineError); !ok {
			t.Errorf("%s failed, expected InsufficientBaselineError, got %T", test.name, err)
		}
	}
}

func TestLayeredDetectorInvalidConfig(t *testing.T) {
	config := testDetectorConfig()
	config.SentinelPercentile = 101
	_, err := NewLayeredDetector(config, ramp(32), univariateRows(ramp(32)))
	if err == nil {
		t.Fatal("expected error for bad percentile, got none")
	}
	if _, ok := err.(*InvalidParametersError); !ok {
		t.Errorf("expected InvalidParametersError, got %T", err)
	}
}

func TestLayeredDetectorRecalibrate(t *testing.T) {
	l := newTestDetector(t, testDetectorConfig())
	drifted := driftWindow()

	for i := 0; i < 2; i++ {
		if _, err := l.Check(drifted, nil); err != nil {
			t.Fatalf("check failed: %v", err)
		}
	}
	before := l.Thresholds()

	// a noisy baseline lifts the entropy threshold off zero
	if err := l.Recalibrate(testNoise64, univariateRows(testNoise64)); err != nil {
		t.Fatalf("recalibrate failed: %v", err)
	}
	after := l.Thresholds()
	if after.PermutationEntropy <= before.PermutationEntropy {
		t.Errorf("expected entropy threshold to rise, before %v, after %v",
			before.PermutationEntropy, after.PermutationEntropy)
	}

	// recalibration keeps the partial drift evidence
	if l.Streak() != 2 {
		t.Errorf("expected streak 2 after recalibration, got %d", l.Streak())
	}

	// a bad baseline leaves the old thresholds in effect
	if err := l.Recalibrate(ramp(4), univariateRows(ramp(4))); err == nil {
		t.Fatal("expected error for short baseline, got none")
	}
	if l.Thresholds() != after {
		t.Error("failed recalibration changed the thresholds")
	}
}

func TestLayeredDetectorGaussianStream(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	series := make([]float64, 512)
	for i := range series {
		series[i] = rng.NormFloat64()
	}
	reference := make([][]float64, 256)
	for i := range reference {
		reference[i] = []float64{rng.NormFloat64()}
	}

	seed := int64(7)
	config := &types.DetectorConfig{
		WindowSize:           64,
		SentinelPercentile:   95,
		ConfirmPercentile:    95,
		ConsecutiveSentinels: 3,
		EmbeddingDimension:   3,
		Delay:                1,
		Kmax:                 4,
		NProjections:         20,
		QuantilePoints:       32,
		DistancePower:        2,
		RandomSeed:           &seed,
	}
	l, err := NewLayeredDetector(config, series, reference)
	if err != nil {
		t.Fatalf("failed to calibrate detector: %v", err)
	}

	// in-distribution traffic stays quiet: at most 5% of fresh windows may
	// alert at the 95th-percentile thresholds
	alerts := 0
	for i := 0; i < 40; i++ {
		window := make([]float64, config.WindowSize)
		for j := range window {
			window[j] = rng.NormFloat64()
		}
		result, err := l.Check(window, nil)
		if err != nil {
			t.Fatalf("in-distribution check %d failed: %v", i, err)
		}
		if result.Alert {
			alerts++
		}
	}
	if alerts > 2 {
		t.Fatalf("expected at most 2 false alerts in 40 windows, got %d", alerts)
	}

	// the sentinel metrics are rank and scale invariant, a pure mean shift
	// never trips them; the drifted regime must change signal complexity.
	// A stuck sensor ramping slowly far outside the baseline range drops
	// the fractal dimension and lands far from the reference distribution.
	l.ResetStreak()
	drifted := make([]float64, config.WindowSize)
	for i := range drifted {
		drifted[i] = 12 + 0.1*float64(i)
	}
	for i := 1; i <= 2; i++ {
		result, err := l.Check(drifted, nil)
		if err != nil {
			t.Fatalf("drift check %d failed: %v", i, err)
		}
		if !result.SentinelTriggered {
			t.Fatalf("drift check %d: expected sentinel to trigger", i)
		}
		if result.Alert {
			t.Fatalf("drift check %d: alert before the streak completed", i)
		}
	}
	result, err := l.Check(drifted, nil)
	if err != nil {
		t.Fatalf("final drift check failed: %v", err)
	}
	if !result.ConfirmRan || result.SlicedWasserstein == nil {
		t.Fatal("final drift check: expected confirm layer to run")
	}
	if !result.Alert {
		t.Fatalf("final drift check: expected alert, distance %v vs threshold %v",
			*result.SlicedWasserstein, result.Thresholds.SlicedWasserstein)
	}
}

func TestPercentile(t *testing.T) {
	cases := []struct {
		name     string
		values   []float64
		p        float64
		expected float64
	}{
		{
			name:     "interpolated",
			values:   []float64{1, 2, 3, 4},
			p:        75,
			expected: 3.25,
		},
		{
			name:     "maximum",
			values:   []float64{1, 2, 3, 4},
			p:        100,
			expected: 4,
		},
		{
			name:     "single_value",
			values:   []float64{5},
			p:        50,
			expected: 5,
		},
		{
			name:     "unsorted_input",
			values:   []float64{4, 1, 3, 2},
			p:        50,
			expected: 2.5,
		},
	}

	for _, test := range cases {
		got := percentile(test.values, test.p)
		if !isEqualFloat64(got, test.expected) {
			t.Errorf("%s failed, expected %v, got %v", test.name, test.expected, got)
		}
	}
}
