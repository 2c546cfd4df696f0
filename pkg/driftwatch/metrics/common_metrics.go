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

package metrics

import (
	"github.com/tencent/driftwatch/pkg/driftwatch/detection"
	"github.com/tencent/driftwatch/pkg/driftwatch/util"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricNameSentinelValue  = "sentinelValue"
	metricNameConfirmValue   = "confirmValue"
	metricNameSentinelStreak = "sentinelStreak"
	metricNameThreshold      = "threshold"
	metricNameAlertCounter   = "alertCounter"
	metricNameCheckErrors    = "checkErrors"
	metricNameAlarmCounter   = "alarmCounter"

	totalMetrics = map[string]prometheus.Collector{
		// sentinelValue records the cheap per-window sentinel metrics
		metricNameSentinelValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "driftwatch_sentinel_value",
			Help: "latest sentinel metric value per stream",
		}, []string{"node", "stream", "metric"}),

		// confirmValue records the sliced wasserstein distance when the confirm layer ran
		metricNameConfirmValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "driftwatch_confirm_value",
			Help: "latest sliced wasserstein distance per stream",
		}, []string{"node", "stream"}),

		// sentinelStreak records the consecutive sentinel trigger count
		metricNameSentinelStreak: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "driftwatch_sentinel_streak",
			Help: "consecutive sentinel-triggering windows per stream",
		}, []string{"node", "stream"}),

		// threshold records the calibrated thresholds in effect
		metricNameThreshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "driftwatch_threshold",
			Help: "calibrated threshold per stream and metric",
		}, []string{"node", "stream", "metric"}),

		// alertCounter counts confirmed drift alerts
		metricNameAlertCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_alert_counter",
			Help: "num of confirmed drift alerts",
		}, []string{"node", "stream"}),

		// checkErrors counts windows that could not be evaluated
		metricNameCheckErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_check_error_counter",
			Help: "num of windows skipped because evaluation failed",
		}, []string{"node", "stream"}),

		// alarmCounter counts alarm messages handed to the alarm channel
		metricNameAlarmCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftwatch_alarm_counter",
			Help: "num of alarm messages sent",
		}, []string{"node"}),
	}
)

// RegisterTotalMetrics registers total metrics
func RegisterTotalMetrics(reg *prometheus.Registry) {
	for _, metric := range totalMetrics {
		reg.MustRegister(metric)
	}
}

// DetectionResultMetricsReset publishes one detection result
func DetectionResultMetricsReset(stream string, result *detection.DetectionResult, streak int) {
	node := util.NodeIP()
	sentinelValue := totalMetrics[metricNameSentinelValue].(*prometheus.GaugeVec)
	sentinelValue.WithLabelValues(node, stream, "permutation_entropy").Set(result.PermutationEntropy)
	sentinelValue.WithLabelValues(node, stream, "higuchi_fd").Set(result.HiguchiFD)

	if result.ConfirmRan {
		confirmValue := totalMetrics[metricNameConfirmValue].(*prometheus.GaugeVec)
		confirmValue.WithLabelValues(node, stream).Set(*result.SlicedWasserstein)
	}

	sentinelStreak := totalMetrics[metricNameSentinelStreak].(*prometheus.GaugeVec)
	sentinelStreak.WithLabelValues(node, stream).Set(float64(streak))
}

// ThresholdMetricsReset publishes the thresholds currently in effect
func ThresholdMetricsReset(stream string, thresholds detection.Thresholds) {
	node := util.NodeIP()
	threshold := totalMetrics[metricNameThreshold].(*prometheus.GaugeVec)
	threshold.WithLabelValues(node, stream, "permutation_entropy").Set(thresholds.PermutationEntropy)
	threshold.WithLabelValues(node, stream, "higuchi_fd").Set(thresholds.HiguchiFD)
	threshold.WithLabelValues(node, stream, "sliced_wasserstein").Set(thresholds.SlicedWasserstein)
}

// AlertCounterInc increases alert count number
func AlertCounterInc(stream string) {
	alertCounter := totalMetrics[metricNameAlertCounter].(*prometheus.CounterVec)
	alertCounter.WithLabelValues(util.NodeIP(), stream).Inc()
}

// CheckErrorCounterInc increases check error count number
func CheckErrorCounterInc(stream string) {
	checkErrors := totalMetrics[metricNameCheckErrors].(*prometheus.CounterVec)
	checkErrors.WithLabelValues(util.NodeIP(), stream).Inc()
}

// AlarmCounterInc increases alarm count number
func AlarmCounterInc() {
	alarmCounter := totalMetrics[metricNameAlarmCounter].(*prometheus.CounterVec)
	alarmCounter.WithLabelValues(util.NodeIP()).Inc()
}
