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

package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/tencent/driftwatch/pkg/driftwatch/detection"
	"github.com/tencent/driftwatch/pkg/driftwatch/types"

	"github.com/parnurzeal/gorequest"
)

// Source polls the upstream telemetry collaborator for one sample
type Source interface {
	// Name show source name
	Name() string
	// GetMetrics fetch the current sample values
	GetMetrics() (detection.TimedData, error)
}

// metricsResponse is the output contract of a telemetry endpoint or command,
// like: {"code":0,"msg":"success","data":{"latency_ms":12.7}}
type metricsResponse struct {
	Code int                `json:"code"`
	Msg  string             `json:"msg"`
	Data map[string]float64 `json:"data"`
}

// NewSource construct a source based on config
func NewSource(config *types.SourceConfig) (Source, error) {
	switch config.Type {
	case types.SourceTypeCommand:
		if len(config.MetricsCommand) == 0 {
			return nil, fmt.Errorf("command source requires metrics_command")
		}
		return &commandSource{command: config.MetricsCommand}, nil
	case types.SourceTypeHTTP:
		if len(config.MetricsURL) == 0 {
			return nil, fmt.Errorf("http source requires metrics_url")
		}
		return &httpSource{url: config.MetricsURL}, nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", config.Type)
	}
}

// commandSource executes a command to get current metrics values
type commandSource struct {
	command []string
}

// Name show source name
func (c *commandSource) Name() string {
	return types.SourceTypeCommand
}

// GetMetrics fetch the current sample values
func (c *commandSource) GetMetrics() (detection.TimedData, error) {
	data := detection.TimedData{Ts: time.Now()}

	cmd := exec.Command(c.command[0], c.command[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return data, fmt.Errorf("metrics command(%v) err: %v", c.command, err)
	}
	vals, err := parseMetricsResponse(out)
	if err != nil {
		return data, fmt.Errorf("metrics command(%v) output err: %v", c.command, err)
	}
	data.Vals = vals
	return data, nil
}

// httpSource polls a metrics url to get current metrics values
type httpSource struct {
	url string
}

// Name show source name
func (h *httpSource) Name() string {
	return types.SourceTypeHTTP
}

// GetMetrics fetch the current sample values
func (h *httpSource) GetMetrics() (detection.TimedData, error) {
	data := detection.TimedData{Ts: time.Now()}

	rsp, body, errs := gorequest.New().Get(h.url).EndBytes()
	if len(errs) > 0 {
		return data, fmt.Errorf("request metrics url(%s) err: %v", h.url, errs)
	}
	if rsp.StatusCode != http.StatusOK {
		return data, fmt.Errorf("request metrics url(%s), status not ok: %s", h.url, rsp.Status)
	}
	vals, err := parseMetricsResponse(body)
	if err != nil {
		return data, fmt.Errorf("metrics url(%s) response err: %v", h.url, err)
	}
	data.Vals = vals
	return data, nil
}

func parseMetricsResponse(body []byte) (map[string]float64, error) {
	rsp := &metricsResponse{}
	if err := json.Unmarshal(body, rsp); err != nil {
		return nil, fmt.Errorf("unmarshal json err: %v", err)
	}
	if rsp.Code != 0 {
		return nil, fmt.Errorf("bad response: Code %d, Msg: %s", rsp.Code, rsp.Msg)
	}
	if len(rsp.Data) == 0 {
		return nil, fmt.Errorf("response carries no metric values")
	}
	return rsp.Data, nil
}
