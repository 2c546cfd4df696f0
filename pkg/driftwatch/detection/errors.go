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

import "fmt"

// InvalidParametersError reports estimator parameters the algorithm can not work with,
// such as an embedding dimension below two. Callers must treat the window as not
// evaluated, never as "no drift".
type InvalidParametersError struct {
	Reason string
}

// Error implements the error interface
func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid detection parameters: %s", e.Reason)
}

// WindowSizeMismatchError reports a check window whose length differs from the
// configured window size
type WindowSizeMismatchError struct {
	Expected int
	Got      int
}

// Error implements the error interface
func (e *WindowSizeMismatchError) Error() string {
	return fmt.Sprintf("window size mismatch: expected %d samples, got %d", e.Expected, e.Got)
}

// DimensionMismatchError reports two samples with different feature dimensionality
type DimensionMismatchError struct {
	XFeatures int
	YFeatures int
}

// Error implements the error interface
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("feature dimension mismatch: %d vs %d", e.XFeatures, e.YFeatures)
}

// InsufficientBaselineError reports calibration input too small to derive thresholds
type InsufficientBaselineError struct {
	Reason string
}

// Error implements the error interface
func (e *InsufficientBaselineError) Error() string {
	return fmt.Sprintf("insufficient baseline: %s", e.Reason)
}
