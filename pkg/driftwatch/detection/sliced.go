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
)

// SlicedWasserstein estimates the Wasserstein-p distance between two empirical
// samples by averaging exact 1-D distances over random projection directions.
// Directions are drawn from the supplied generator, so the same seed gives the
// same estimate. The result is a Monte-Carlo estimate, not an exact distance.
func SlicedWasserstein(x, y [][]float64, nProjections, quantilePoints, power int, rng *rand.Rand) (float64, error) {
	if len(x) == 0 || len(y) == 0 {
		return 0, &InvalidParametersError{Reason: "samples must not be empty"}
	}
	if nProjections < 1 {
		return 0, &InvalidParametersError{Reason: fmt.Sprintf("n_projections must be >= 1, got %d", nProjections)}
	}
	if quantilePoints < 1 {
		return 0, &InvalidParametersError{Reason: fmt.Sprintf("quantile_points must be >= 1, got %d", quantilePoints)}
	}
	if power < 1 {
		return 0, &InvalidParametersError{Reason: fmt.Sprintf("distance power must be >= 1, got %d", power)}
	}
	features := len(x[0])
	if features != len(y[0]) {
		return 0, &DimensionMismatchError{XFeatures: features, YFeatures: len(y[0])}
	}

	direction := make([]float64, features)
	projX := make([]float64, len(x))
	projY := make([]float64, len(y))
	qx := make([]float64, quantilePoints)
	qy := make([]float64, quantilePoints)

	var total float64
	for p := 0; p < nProjections; p++ {
		var norm float64
		for i := range direction {
			direction[i] = rng.NormFloat64()
			norm += direction[i] * direction[i]
		}
		norm = math.Sqrt(norm) + 1e-12
		for i := range direction {
			direction[i] /= norm
		}

		project(x, direction, projX)
		project(y, direction, projY)
		quantileFunction(projX, qx)
		quantileFunction(projY, qy)

		var diff float64
		for i := range qx {
			diff += math.Pow(math.Abs(qx[i]-qy[i]), float64(power))
		}
		diff /= float64(quantilePoints)
		total += math.Pow(diff, 1.0/float64(power))
	}

	return total / float64(nProjections), nil
}

func project(sample [][]float64, direction []float64, out []float64) {
	for i, row := range sample {
		var dot float64
		for j, v := range row {
			dot += v * direction[j]
		}
		out[i] = dot
	}
}

// quantileFunction evaluates the empirical quantile function of a scalar sample
// on a uniform grid over [0,1], linearly interpolating over the sorted values.
// A single-point sample maps to a constant function.
func quantileFunction(sample []float64, out []float64) {
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 1 {
		for i := range out {
			out[i] = sorted[0]
		}
		return
	}
	if len(out) == 1 {
		out[0] = sorted[0]
		return
	}
	step := 1.0 / float64(len(out)-1)
	for i := range out {
		pos := float64(i) * step * float64(n-1)
		lo := int(pos)
		if lo >= n-1 {
			out[i] = sorted[n-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
	}
}
