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

package types

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tencent/driftwatch/pkg/util/times"

	"k8s.io/klog/v2"
)

const (
	defaultCheckInterval = times.Duration(10 * time.Second)
	defaultStreamName    = "telemetry"

	// reference implementation defaults for the layered detector
	defaultWindowSize           = 512
	defaultSentinelPercentile   = 95.0
	defaultConfirmPercentile    = 95.0
	defaultConsecutiveSentinels = 3
	defaultEmbeddingDimension   = 4
	defaultDelay                = 1
	defaultKmax                 = 8
	defaultNProjections         = 100
	defaultQuantilePoints       = 128
	defaultDistancePower        = 2

	defaultExpressionWarningCount = 1

	DetectionExpression = "expression"
	DetectionEWMA       = "ewma"
	DetectionUnion      = "union"
	DetectionDrift      = "drift"

	// metric names emitted by the layered detector
	MetricPermutationEntropy = "permutation_entropy"
	MetricHiguchiFD          = "higuchi_fd"
	MetricSlicedWasserstein  = "sliced_wasserstein"

	SourceTypeCommand = "command"
	SourceTypeHTTP    = "http"

	AlarmTypeLocal  = "local"
	AlarmTypeRemote = "remote"
)

// DriftwatchConfig is the top level json config
type DriftwatchConfig struct {
	Detector DetectorConfig `json:"detector"`
	Baseline BaselineConfig `json:"baseline"`
	Source   SourceConfig   `json:"source"`
	Pipeline PipelineConfig `json:"pipeline"`
	Alarm    AlarmConfig    `json:"alarm"`
}

// DetectorConfig groups the layered drift detector parameters. All fields are
// fixed at construction time and never mutated afterwards.
type DetectorConfig struct {
	WindowSize           int     `json:"window_size"`
	SentinelPercentile   float64 `json:"sentinel_percentile"`
	ConfirmPercentile    float64 `json:"confirm_percentile"`
	ConsecutiveSentinels int     `json:"consecutive_sentinels"`
	EmbeddingDimension   int     `json:"embedding_dimension"`
	Delay                int     `json:"delay"`
	Kmax                 int     `json:"kmax"`
	NProjections         int     `json:"n_projections"`
	QuantilePoints       int     `json:"quantile_points"`
	DistancePower        int     `json:"distance_power"`
	RandomSeed           *int64  `json:"random_seed,omitempty"`
}

// BaselineConfig points to the calibration inputs
type BaselineConfig struct {
	// SeriesFile is a json array of float64 samples for sentinel calibration
	SeriesFile string `json:"series_file"`
	// ReferenceFile is a json array of feature vectors for confirm calibration;
	// a flat array of floats is treated as single-feature rows
	ReferenceFile string `json:"reference_file"`
	// Watch enables recalibration when the baseline files change
	Watch bool `json:"watch"`
}

// SourceConfig describes the upstream telemetry collaborator
type SourceConfig struct {
	Type string `json:"type"`
	// Metric is the sample key that feeds the detector window
	Metric        string         `json:"metric"`
	CheckInterval times.Duration `json:"check_interval"`
	// MetricsCommand is executed for command sources; its output must be
	// {"code":0,"msg":"...","data":{"<metric>":<value>,...}}
	MetricsCommand []string `json:"metrics_command"`
	// MetricsURL is polled for http sources, same response format
	MetricsURL string `json:"metrics_url"`
}

// PipelineConfig drives the streaming check loop
type PipelineConfig struct {
	Stream string `json:"stream"`
	// GuardRules veto cheap anomalies on the raw signal before the layered
	// detector is consulted
	GuardRules []*DetectConfig `json:"guard_rules"`
	// PolicyRules run on the detection result metrics to shape the alarm text
	PolicyRules []*DetectConfig `json:"policy_rules"`
}

// DetectConfig define detector config
type DetectConfig struct {
	Name    string          `json:"name"`
	ArgsStr json.RawMessage `json:"args"`
	Args    interface{}     `json:"-"`
}

// ExpressionArgs group args used for expression detection
type ExpressionArgs struct {
	Expression      string         `json:"expression"`
	WarningCount    int            `json:"warning_count"`
	WarningDuration times.Duration `json:"warning_duration"`
}

// EWMAArgs group args used for ewma detection
type EWMAArgs struct {
	Metric string `json:"metric"`
	Nr     int    `json:"nr"`
}

// UnionArgs group sub rules for union detection, all of them must fire
type UnionArgs struct {
	Detects []*DetectConfig `json:"detects"`
}

// AlarmConfig show alarm config
type AlarmConfig struct {
	Enable  bool   `json:"enable"`
	Cluster string `json:"cluster"`
	// MessageBatch messages are sent in one batch
	MessageBatch int `json:"message_batch"`
	// MessageDelay is the longest time a message waits for its batch
	MessageDelay times.Duration `json:"message_delay"`
	ChannelName  string         `json:"channel_name"`
	LocalAlarm   *LocalAlarm    `json:"local_alarm"`
	RemoteAlarm  *RemoteAlarm   `json:"remote_alarm"`
}

// LocalAlarm sends alarm messages to a local script
type LocalAlarm struct {
	Executor string `json:"executor"`
}

// RemoteAlarm sends alarm messages to a webhook
type RemoteAlarm struct {
	RemoteWebhook string `json:"remoteWebhook"`
}

// ParseJsonConfig parse json config
func ParseJsonConfig(configFile string) (*DriftwatchConfig, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, fmt.Errorf("open config file(%s) err: %v", configFile, err)
	}
	defer file.Close()

	config := &DriftwatchConfig{}
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("parse config file(%s) to json err: %v", configFile, err)
	}

	if err := InitJsonConfig(config); err != nil {
		return nil, err
	}
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal driftwatch config: %v", err)
	}
	klog.Infof("formated driftwatch json config: %s", string(data))
	return config, nil
}

// InitJsonConfig fill defaults and validate the config
func InitJsonConfig(config *DriftwatchConfig) error {
	initDetectorConfig(&config.Detector)
	initSourceConfig(&config.Source)
	initPipelineConfig(&config.Pipeline)
	initAlarmConfig(&config.Alarm)
	return nil
}

func initDetectorConfig(config *DetectorConfig) {
	if config.WindowSize == 0 {
		config.WindowSize = defaultWindowSize
	}
	if config.SentinelPercentile == 0 {
		config.SentinelPercentile = defaultSentinelPercentile
	}
	if config.ConfirmPercentile == 0 {
		config.ConfirmPercentile = defaultConfirmPercentile
	}
	if config.ConsecutiveSentinels == 0 {
		config.ConsecutiveSentinels = defaultConsecutiveSentinels
	}
	if config.EmbeddingDimension == 0 {
		config.EmbeddingDimension = defaultEmbeddingDimension
	}
	if config.Delay == 0 {
		config.Delay = defaultDelay
	}
	if config.Kmax == 0 {
		config.Kmax = defaultKmax
	}
	if config.NProjections == 0 {
		config.NProjections = defaultNProjections
	}
	if config.QuantilePoints == 0 {
		config.QuantilePoints = defaultQuantilePoints
	}
	if config.DistancePower == 0 {
		config.DistancePower = defaultDistancePower
	}

	if config.WindowSize < 0 {
		klog.Fatalf("invalid window_size: %d", config.WindowSize)
	}
	if config.SentinelPercentile <= 0 || config.SentinelPercentile > 100 {
		klog.Fatalf("sentinel_percentile must be in (0,100], got %v", config.SentinelPercentile)
	}
	if config.ConfirmPercentile <= 0 || config.ConfirmPercentile > 100 {
		klog.Fatalf("confirm_percentile must be in (0,100], got %v", config.ConfirmPercentile)
	}
	if config.ConsecutiveSentinels < 1 {
		klog.Fatalf("consecutive_sentinels must be positive, got %d", config.ConsecutiveSentinels)
	}
	if config.EmbeddingDimension < 2 {
		klog.Fatalf("embedding_dimension must be >= 2, got %d", config.EmbeddingDimension)
	}
	if config.Delay < 1 {
		klog.Fatalf("delay must be >= 1, got %d", config.Delay)
	}
	if config.Kmax < 2 {
		klog.Fatalf("kmax must be >= 2, got %d", config.Kmax)
	}
}

func initSourceConfig(config *SourceConfig) {
	if len(config.Type) == 0 {
		config.Type = SourceTypeCommand
	}
	if config.Type != SourceTypeCommand && config.Type != SourceTypeHTTP {
		klog.Fatalf("invalid source type: %s, must be %s or %s",
			config.Type, SourceTypeCommand, SourceTypeHTTP)
	}
	if config.CheckInterval.Seconds() == 0 {
		config.CheckInterval = defaultCheckInterval
	}
}

func initPipelineConfig(config *PipelineConfig) {
	if len(config.Stream) == 0 {
		config.Stream = defaultStreamName
	}
	for _, detector := range config.GuardRules {
		initDetectConfig(detector)
	}
	for _, detector := range config.PolicyRules {
		initDetectConfig(detector)
	}
}

func initDetectConfig(detector *DetectConfig) {
	switch detector.Name {
	case DetectionEWMA:
		args := &EWMAArgs{}
		if err := json.Unmarshal(detector.ArgsStr, args); err != nil {
			klog.Fatalf("invalid %s rule(%s): %v", detector.Name, detector.ArgsStr, err)
		}
		detector.Args = args
	case DetectionExpression:
		args := &ExpressionArgs{}
		if err := json.Unmarshal(detector.ArgsStr, args); err != nil {
			klog.Fatalf("invalid %s rule(%s): %v", detector.Name, detector.ArgsStr, err)
		}
		if args.WarningCount <= 0 && args.WarningDuration == 0 {
			args.WarningCount = defaultExpressionWarningCount
		}
		detector.Args = args
	case DetectionUnion:
		args := &UnionArgs{}
		if err := json.Unmarshal(detector.ArgsStr, args); err != nil {
			klog.Fatalf("invalid %s rule(%s): %v", detector.Name, detector.ArgsStr, err)
		}
		if len(args.Detects) == 0 {
			klog.Fatalf("union rule requires sub rules")
		}
		for _, sub := range args.Detects {
			initDetectConfig(sub)
		}
		detector.Args = args
	default:
		klog.Fatalf("unknown detect name: %s", detector.Name)
	}
}

func initAlarmConfig(config *AlarmConfig) {
	if !config.Enable {
		return
	}
	if config.MessageBatch == 0 {
		config.MessageBatch = 1
	}
	if config.MessageDelay.Seconds() == 0 {
		config.MessageDelay = times.Duration(30 * time.Second)
	}
	if len(config.ChannelName) == 0 {
		config.ChannelName = AlarmTypeLocal
	}
	switch config.ChannelName {
	case AlarmTypeLocal:
		if config.LocalAlarm == nil || len(config.LocalAlarm.Executor) == 0 {
			klog.Fatalf("local alarm channel requires an executor")
		}
	case AlarmTypeRemote:
		if config.RemoteAlarm == nil || len(config.RemoteAlarm.RemoteWebhook) == 0 {
			klog.Fatalf("remote alarm channel requires a webhook")
		}
	default:
		klog.Fatalf("invalid alarm channel: %s, must be %s or %s",
			config.ChannelName, AlarmTypeLocal, AlarmTypeRemote)
	}
}
