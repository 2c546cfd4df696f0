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
	"testing"
	"time"

	"github.com/tencent/driftwatch/pkg/driftwatch/types"
	"github.com/tencent/driftwatch/pkg/util/times"

	"github.com/Knetic/govaluate"
)

func newExpressionDetector(t *testing.T, expr string, args *types.ExpressionArgs) *ExpressionDetector {
	t.Helper()
	exp, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		t.Fatalf("failed to parse expression %s: %v", expr, err)
	}
	return NewExpressionDetector([]string{"cpu"}, exp, ExpressionWarningArgs(args))
}

func TestExpressionDetectorWarningCount(t *testing.T) {
	d := newExpressionDetector(t, "cpu > 0.9", &types.ExpressionArgs{WarningCount: 3})

	ts := time.Now()
	for i := 1; i <= 2; i++ {
		ts = ts.Add(time.Second)
		d.Add(TimedData{Ts: ts, Vals: map[string]float64{"cpu": 0.95}})
		anomaly, err := d.IsAnomaly()
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if anomaly {
			t.Fatalf("check %d: anomaly before the warning count reached", i)
		}
	}

	ts = ts.Add(time.Second)
	d.Add(TimedData{Ts: ts, Vals: map[string]float64{"cpu": 0.95}})
	anomaly, err := d.IsAnomaly()
	if err != nil {
		t.Fatalf("third check failed: %v", err)
	}
	if !anomaly {
		t.Fatal("expected anomaly after three warnings")
	}
	if len(d.Reason()) == 0 {
		t.Error("expected a reason after the anomaly")
	}

	// a normal sample clears the consecutive counter
	ts = ts.Add(time.Second)
	d.Add(TimedData{Ts: ts, Vals: map[string]float64{"cpu": 0.1}})
	anomaly, err = d.IsAnomaly()
	if err != nil {
		t.Fatalf("reset check failed: %v", err)
	}
	if anomaly {
		t.Error("unexpected anomaly after a normal sample")
	}
}

func TestExpressionDetectorWarningDuration(t *testing.T) {
	d := newExpressionDetector(t, "cpu > 0.9",
		&types.ExpressionArgs{WarningDuration: times.Duration(5 * time.Second)})

	ts := time.Now()
	d.Add(TimedData{Ts: ts, Vals: map[string]float64{"cpu": 0.95}})
	anomaly, err := d.IsAnomaly()
	if err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	if anomaly {
		t.Fatal("anomaly before the warning duration elapsed")
	}

	d.Add(TimedData{Ts: ts.Add(6 * time.Second), Vals: map[string]float64{"cpu": 0.95}})
	anomaly, err = d.IsAnomaly()
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if !anomaly {
		t.Fatal("expected anomaly after the condition held long enough")
	}
}

func TestExpressionDetectorCountOrDuration(t *testing.T) {
	d := newExpressionDetector(t, "cpu > 0.9", &types.ExpressionArgs{
		WarningCount:    5,
		WarningDuration: times.Duration(5 * time.Second),
	})

	// only two warnings, but far enough apart to satisfy the duration
	ts := time.Now()
	d.Add(TimedData{Ts: ts, Vals: map[string]float64{"cpu": 0.95}})
	d.Add(TimedData{Ts: ts.Add(6 * time.Second), Vals: map[string]float64{"cpu": 0.95}})
	anomaly, err := d.IsAnomaly()
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !anomaly {
		t.Fatal("expected anomaly when either condition is satisfied")
	}
}
