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
	"sort"
)

// PermutationEntropy computes the ordinal-pattern entropy of a univariate window.
// Length-m sub-windows are taken with step tau, each reduced to its rank ordering
// and counted as one of m! ordinal patterns. The entropy is the Shannon entropy
// over the patterns actually observed; unobserved patterns contribute nothing.
// With normalize the value is divided by ln(m!) so it lies in [0,1].
// Ties rank by original position, so the result is deterministic.
func PermutationEntropy(signal []float64, embeddingDimension, delay int, normalize bool) (float64, error) {
	m := embeddingDimension
	tau := delay
	if m < 2 {
		return 0, &InvalidParametersError{Reason: fmt.Sprintf("embedding dimension must be >= 2, got %d", m)}
	}
	if tau < 1 {
		return 0, &InvalidParametersError{Reason: fmt.Sprintf("delay must be >= 1, got %d", tau)}
	}
	if len(signal)-(m-1)*tau < 1 {
		return 0, &InvalidParametersError{
			Reason: fmt.Sprintf("signal with %d samples is too short for embedding dimension %d and delay %d",
				len(signal), m, tau)}
	}

	counts := make(map[int]int)
	total := 0
	order := make([]int, m)
	ranks := make([]int, m)
	for start := 0; start+m <= len(signal); start += tau {
		window := signal[start : start+m]
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return window[order[a]] < window[order[b]] })
		for pos, idx := range order {
			ranks[idx] = pos
		}
		// encode the rank vector as an integer in base m
		key := 0
		coeff := 1
		for _, r := range ranks {
			key += r * coeff
			coeff *= m
		}
		counts[key]++
		total++
	}

	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log(p)
	}
	if normalize {
		entropy /= math.Log(factorial(m))
	}
	return entropy, nil
}

func factorial(n int) float64 {
	f := 1.0
	for i := 2; i <= n; i++ {
		f *= float64(i)
	}
	return f
}
