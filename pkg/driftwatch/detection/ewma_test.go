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
	"math"
	"testing"
	"time"
)

var epsilon = 0.00000001

// request latency samples in milliseconds, steady traffic with mild jitter
var latencySteady = []float64{118.4, 121.9, 119.3, 120.1, 123.6, 117.8, 122.4, 120.9,
	119.7, 121.2, 120.5, 118.9, 122.8, 121.4, 119.6, 120.3}

func seedLatencyDetector(data []float64, n int) *EwmaDetector {
	detector := NewEwmaDetector("latency_ms", n)
	count := len(data) + 1
	for i, d := range data {
		detector.Add(TimedData{Ts: time.Now().Add(-time.Duration(count - i)),
			Vals: map[string]float64{"latency_ms": d}})
	}
	return detector
}

func TestEwmaMean(t *testing.T) {
	cases := []struct {
		name string
		data []float64
		mean float64
	}{
		{
			name: "steady_latency",
			data: latencySteady,
			mean: 120.49111111111112,
		},
		{
			name: "warming_up",
			data: latencySteady[10:],
			mean: 0, // not enough data, EWMA is not ready for producing data.
		},
	}
	for _, test := range cases {
		d := seedLatencyDetector(test.data, 5)
		m := d.Mean()
		if !isEqualFloat64(m, test.mean) {
			t.Errorf("%s failed, expected %v, got %v", test.name, test.mean, m)
		}
	}
}

func TestEwmaStdDev(t *testing.T) {
	d := seedLatencyDetector(latencySteady, 5)
	expected := 1.3798031707904763
	m := d.StdDev()
	if !isEqualFloat64(m, expected) {
		t.Errorf("steady latency stddev failed, expected %v, got %v", expected, m)
	}
}

// TestEwmaGuardRule runs the detector the way the pipeline wires it as a guard
// rule on the raw telemetry stream: a latency spike is anomalous, the next
// steady sample is not.
func TestEwmaGuardRule(t *testing.T) {
	history := append(append([]float64(nil), latencySteady...),
		124.1, 118.2, 121.7, 120.8, 119.9, 122.1)
	cases := []struct {
		name      string
		newData   float64
		isAnomaly bool
	}{
		{
			name:      "latency_spike",
			newData:   450,
			isAnomaly: true,
		},
		{
			name:      "steady_sample",
			newData:   121,
			isAnomaly: false,
		},
	}
	for _, test := range cases {
		d := seedLatencyDetector(history, 20)
		d.Add(TimedData{Ts: time.Now(), Vals: map[string]float64{"latency_ms": test.newData}})
		got, err := d.IsAnomaly()
		if err != nil {
			t.Errorf("%s failed with err: %v", test.name, err)
			continue
		}
		if got != test.isAnomaly {
			t.Errorf("%s failed, expected %v, got %v", test.name, test.isAnomaly, got)
		}
	}
}

func TestEwmaTooFewSamples(t *testing.T) {
	d := seedLatencyDetector(latencySteady[:8], 20)
	if _, err := d.IsAnomaly(); err == nil {
		t.Fatal("expected error before the detector warms up, got none")
	}
}

func isEqualFloat64(a, b float64) bool {
	// The following algorithm is not right, but it is OK for test now.
	// For more information, refer https://floating-point-gui.de/errors/comparison/#look-out-for-edge-cases.
	return math.Abs(a-b) < epsilon
}
