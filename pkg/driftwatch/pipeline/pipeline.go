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

package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/tencent/driftwatch/pkg/driftwatch/alarm"
	"github.com/tencent/driftwatch/pkg/driftwatch/baseline"
	"github.com/tencent/driftwatch/pkg/driftwatch/detection"
	prom "github.com/tencent/driftwatch/pkg/driftwatch/metrics"
	"github.com/tencent/driftwatch/pkg/driftwatch/source"
	"github.com/tencent/driftwatch/pkg/driftwatch/types"

	"github.com/Knetic/govaluate"
	"k8s.io/klog/v2"
)

// Status is the snapshot exposed on the status api
type Status struct {
	Stream     string                     `json:"stream"`
	LastCheck  time.Time                  `json:"last_check"`
	Thresholds detection.Thresholds       `json:"thresholds"`
	Streak     int                        `json:"streak"`
	LastResult *detection.DetectionResult `json:"last_result,omitempty"`
}

// Manager polls the telemetry source and drives the layered drift check
type Manager struct {
	stream        string
	checkInterval time.Duration
	source        source.Source
	layered       *detection.LayeredDetector
	drift         *detection.DriftDetector
	// guards run on raw samples and suppress the layered check while firing
	guards []detection.Detector
	// policies run on the detection result metrics after every check
	policies []detection.Detector

	baselineConfig types.BaselineConfig
	watcher        *baseline.Watcher

	statusLock sync.RWMutex
	lastCheck  time.Time
	lastResult *detection.DetectionResult

	stopCh chan struct{}
}

// NewManager calibrates the layered detector from the baseline files and wires
// the source, guard and policy rules from config
func NewManager(config *types.DriftwatchConfig) (*Manager, error) {
	series, err := baseline.LoadSeries(config.Baseline.SeriesFile)
	if err != nil {
		return nil, err
	}
	reference, err := baseline.LoadReference(config.Baseline.ReferenceFile)
	if err != nil {
		return nil, err
	}
	layered, err := detection.NewLayeredDetector(&config.Detector, series, reference)
	if err != nil {
		return nil, fmt.Errorf("calibrate layered detector err: %v", err)
	}

	src, err := source.NewSource(&config.Source)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		stream:         config.Pipeline.Stream,
		checkInterval:  config.Source.CheckInterval.TimeDuration(),
		source:         src,
		layered:        layered,
		drift:          detection.NewDriftDetector(config.Source.Metric, layered),
		guards:         generateDetectors([]string{config.Source.Metric}, config.Pipeline.GuardRules),
		policies:       generateDetectors(resultMetrics, config.Pipeline.PolicyRules),
		baselineConfig: config.Baseline,
		stopCh:         make(chan struct{}),
	}

	if config.Baseline.Watch {
		m.watcher, err = baseline.NewWatcher(m.recalibrate,
			config.Baseline.SeriesFile, config.Baseline.ReferenceFile)
		if err != nil {
			return nil, fmt.Errorf("watch baseline files err: %v", err)
		}
	}

	prom.ThresholdMetricsReset(m.stream, layered.Thresholds())
	return m, nil
}

// Name return module name
func (m *Manager) Name() string {
	return "ModulePipeline"
}

// Run start checking the stream periodically
func (m *Manager) Run(stop <-chan struct{}) {
	if m.watcher != nil {
		m.watcher.Run(stop)
	}
	go func() {
		klog.V(2).Infof("drift pipeline(%s) running, interval %v", m.stream, m.checkInterval)
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-m.stopCh:
				return
			case now := <-ticker.C:
				m.check(now)
			}
		}
	}()
}

// Stop stop current manager
func (m *Manager) Stop() {
	close(m.stopCh)
}

func (m *Manager) check(now time.Time) {
	data, err := m.source.GetMetrics()
	if err != nil {
		klog.Errorf("collect metrics from %s err: %v", m.source.Name(), err)
		prom.CheckErrorCounterInc(m.stream)
		return
	}
	m.drift.Add(data)

	// guard rules veto the expensive check while the raw signal is abnormal
	for _, g := range m.guards {
		g.Add(data)
		anomaly, err := g.IsAnomaly()
		if err != nil {
			klog.V(4).Infof("guard %s not ready: %v", g.Name(), err)
			continue
		}
		if anomaly {
			klog.V(2).Infof("guard %s fired, skipping drift check: %s", g.Name(), g.Reason())
			alarm.SendAlarm(g.Reason())
			return
		}
	}

	alert, err := m.drift.IsAnomaly()
	if err != nil {
		klog.V(3).Infof("drift check(%s) skipped: %v", m.stream, err)
		return
	}
	result := m.drift.LastResult()

	m.statusLock.Lock()
	m.lastCheck = now
	m.lastResult = result
	m.statusLock.Unlock()

	prom.DetectionResultMetricsReset(m.stream, result, m.layered.Streak())
	if alert {
		klog.Warningf("drift alert on stream %s: %s", m.stream, m.drift.Reason())
		prom.AlertCounterInc(m.stream)
		alarm.SendAlarm(m.drift.Reason())
	}

	m.runPolicies(result)
}

// runPolicies feeds the detection result metrics to the policy detectors
func (m *Manager) runPolicies(result *detection.DetectionResult) {
	if len(m.policies) == 0 {
		return
	}

	vals := map[string]float64{
		types.MetricPermutationEntropy: result.PermutationEntropy,
		types.MetricHiguchiFD:          result.HiguchiFD,
	}
	if result.SlicedWasserstein != nil {
		vals[types.MetricSlicedWasserstein] = *result.SlicedWasserstein
	}
	data := detection.TimedData{Ts: result.Ts, Vals: vals}

	for _, p := range m.policies {
		p.Add(data)
		anomaly, err := p.IsAnomaly()
		if err != nil {
			klog.Errorf("policy %s check err: %v", p.Name(), err)
			continue
		}
		if anomaly {
			klog.V(2).Infof("policy rule fired on stream %s: %s", m.stream, p.Reason())
			alarm.SendAlarm(p.Reason())
		}
	}
}

// recalibrate reloads the baseline files and swaps the detector thresholds.
// In-flight checks finish against the old thresholds.
func (m *Manager) recalibrate() {
	series, err := baseline.LoadSeries(m.baselineConfig.SeriesFile)
	if err != nil {
		klog.Errorf("recalibrate: %v", err)
		return
	}
	reference, err := baseline.LoadReference(m.baselineConfig.ReferenceFile)
	if err != nil {
		klog.Errorf("recalibrate: %v", err)
		return
	}
	if err := m.layered.Recalibrate(series, reference); err != nil {
		klog.Errorf("recalibrate stream %s err: %v", m.stream, err)
		return
	}
	thresholds := m.layered.Thresholds()
	klog.V(2).Infof("stream %s recalibrated, thresholds: pe=%.4f hfd=%.4f swd=%.4f",
		m.stream, thresholds.PermutationEntropy, thresholds.HiguchiFD, thresholds.SlicedWasserstein)
	prom.ThresholdMetricsReset(m.stream, thresholds)
}

// Status return the latest detection snapshot
func (m *Manager) Status() Status {
	m.statusLock.RLock()
	defer m.statusLock.RUnlock()
	return Status{
		Stream:     m.stream,
		LastCheck:  m.lastCheck,
		Thresholds: m.layered.Thresholds(),
		Streak:     m.layered.Streak(),
		LastResult: m.lastResult,
	}
}

// resultMetrics are the sample keys available to policy rules
var resultMetrics = []string{
	types.MetricPermutationEntropy,
	types.MetricHiguchiFD,
	types.MetricSlicedWasserstein,
}

// generateDetectors parse detectors from config file
func generateDetectors(ruleMetrics []string, rules []*types.DetectConfig) []detection.Detector {
	var detectors []detection.Detector
	for _, rule := range rules {
		d, err := generateDetector(ruleMetrics, rule)
		if err != nil {
			klog.Fatalf("generate detector err: %v", err)
		}
		detectors = append(detectors, d)
	}
	return detectors
}

// generateDetector parse detector from config file
func generateDetector(ruleMetrics []string, detector *types.DetectConfig) (detection.Detector, error) {
	if len(detector.Name) == 0 {
		return nil, fmt.Errorf("find nil detect name")
	}

	// detectors with isolated method, we need to add extra codes when new detector is appended
	switch detector.Name {
	case types.DetectionExpression:
		args := detector.Args.(*types.ExpressionArgs)
		exp, err := govaluate.NewEvaluableExpression(args.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed parse expression(%s): %v", args.Expression, err)
		}
		return detection.NewExpressionDetector(ruleMetrics, exp,
			detection.ExpressionWarningArgs(args)), nil
	case types.DetectionEWMA:
		args := detector.Args.(*types.EWMAArgs)
		if args.Nr < detection.MinData {
			args.Nr = detection.MinData
		}
		metric := args.Metric
		if len(metric) == 0 {
			metric = ruleMetrics[0]
		}
		return detection.NewEwmaDetector(metric, args.Nr), nil
	case types.DetectionUnion:
		args := detector.Args.(*types.UnionArgs)
		var subs []detection.Detector
		for _, subCfg := range args.Detects {
			sub, err := generateDetector(ruleMetrics, subCfg)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		return detection.NewUnionDetector(subs), nil
	default:
		return nil, fmt.Errorf("unknown detect %s, skip", detector.Name)
	}
}
