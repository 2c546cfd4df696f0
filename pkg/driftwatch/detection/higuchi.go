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
)

// HiguchiFractalDimension estimates the Higuchi fractal dimension of a univariate
// window. For every scale k up to kmax the normalized curve lengths of the k
// phase-offset sub-series are averaged; the dimension is the least-squares slope
// of ln L(k) against ln k. Scales with non-positive length are discarded, and a
// window where every scale degenerates (a flat signal) yields the neutral 1.0.
// The slope is reported as fitted, without sign flip.
func HiguchiFractalDimension(signal []float64, kmax int) (float64, error) {
	n := len(signal)
	if n < 2 {
		return 0, &InvalidParametersError{Reason: "signal must contain at least two samples"}
	}
	if kmax < 2 {
		return 0, &InvalidParametersError{Reason: fmt.Sprintf("kmax must be >= 2, got %d", kmax)}
	}

	var logK, logL []float64
	for k := 1; k <= kmax; k++ {
		var sum float64
		var valid int
		for m := 0; m < k; m++ {
			points := (n-1-m)/k + 1
			if points < 2 {
				continue
			}
			var length float64
			for i := m + k; i < n; i += k {
				length += math.Abs(signal[i] - signal[i-k])
			}
			sum += length * float64(n-1) / (float64(points) * float64(k))
			valid++
		}
		if valid == 0 {
			continue
		}
		lk := sum / float64(valid)
		if lk <= 0 {
			continue
		}
		logK = append(logK, math.Log(float64(k)))
		logL = append(logL, math.Log(lk))
	}

	if len(logK) == 0 {
		return 1.0, nil
	}
	return olsSlope(logK, logL), nil
}

// olsSlope fits y = a*x + b by ordinary least squares and returns a
func olsSlope(x, y []float64) float64 {
	n := float64(len(x))
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / n
	meanY := sumY / n
	var cov, varX float64
	for i := range x {
		dx := x[i] - meanX
		cov += dx * (y[i] - meanY)
		varX += dx * dx
	}
	if varX == 0 {
		// single usable scale, no slope to fit
		return 0
	}
	return cov / varX
}
