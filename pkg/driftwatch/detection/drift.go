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
	"time"

	"github.com/tencent/driftwatch/pkg/driftwatch/detection/ring"
	"github.com/tencent/driftwatch/pkg/driftwatch/types"

	"k8s.io/klog/v2"
)

// DriftDetector adapts the layered drift detector to the streaming Detector
// interface: samples of one metric accumulate in a fixed window, and once the
// window is full every new sample re-runs the layered check on the ordered
// snapshot. DriftDetector is not thread safe; samples must be added in stream
// order.
type DriftDetector struct {
	layered       *LayeredDetector
	data          ring.Ring
	metric        string
	recentAddTime time.Time
	filled        int

	lastResult *DetectionResult
	reason     string
}

var _ Detector = (*DriftDetector)(nil)

// NewDriftDetector wraps a calibrated layered detector around one sample metric
func NewDriftDetector(metric string, layered *LayeredDetector) *DriftDetector {
	return &DriftDetector{
		layered:       layered,
		data:          ring.NewRing(layered.WindowSize()),
		metric:        metric,
		recentAddTime: nilTime,
	}
}

// Name show detector name
func (d *DriftDetector) Name() string {
	return types.DetectionDrift
}

// Add add detect data
func (d *DriftDetector) Add(data TimedData) {
	d.add(data)
}

func (d *DriftDetector) add(data TimedData) {
	if !data.Ts.After(d.recentAddTime) {
		return
	}
	v, ok := data.Vals[d.metric]
	if !ok {
		klog.V(3).Infof("sample at %v has no metric %s, skipped", data.Ts, d.metric)
		return
	}
	d.recentAddTime = data.Ts
	if d.filled < d.layered.WindowSize() {
		d.filled++
	}
	d.data.Add(v)
}

// AddAll add detect data array
func (d *DriftDetector) AddAll(vals []TimedData) {
	d.data = ring.NewRing(d.layered.WindowSize())
	d.recentAddTime = nilTime
	d.filled = 0
	for _, val := range vals {
		d.add(val)
	}
}

// IsAnomaly runs the layered check on the current window
func (d *DriftDetector) IsAnomaly() (bool, error) {
	if d.filled < d.layered.WindowSize() {
		return false, fmt.Errorf("too few samples(%d), window needs %d", d.filled, d.layered.WindowSize())
	}
	result, err := d.layered.Check(d.data.Snapshot(), nil)
	if err != nil {
		return false, err
	}
	d.lastResult = result
	if result.Alert {
		dist := *result.SlicedWasserstein
		d.reason = fmt.Sprintf("drift confirmed on metric %s: pe=%.4f hfd=%.4f swd=%.4f (thresholds %.4f/%.4f/%.4f)",
			d.metric, result.PermutationEntropy, result.HiguchiFD, dist,
			result.Thresholds.PermutationEntropy, result.Thresholds.HiguchiFD, result.Thresholds.SlicedWasserstein)
	}
	return result.Alert, nil
}

// LastResult returns the most recent detection result, nil before the first check
func (d *DriftDetector) LastResult() *DetectionResult {
	return d.lastResult
}

// Metrics return current detector metrics
func (d *DriftDetector) Metrics() []string {
	return []string{d.metric}
}

// SampleCount get current data count
func (d *DriftDetector) SampleCount() int {
	return d.layered.WindowSize()
}

// SampleDuration get current data time range
func (d *DriftDetector) SampleDuration() time.Duration {
	return time.Duration(0)
}

// Reason get anomaly reason
func (d *DriftDetector) Reason() string {
	return d.reason
}
