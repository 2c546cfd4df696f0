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

package alarm

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tencent/driftwatch/pkg/driftwatch/types"
	"github.com/tencent/driftwatch/pkg/driftwatch/util"
	"github.com/tencent/driftwatch/pkg/util/times"
)

var alarmIP = "127.0.0.1"

type alarmTest struct {
	describe    string
	alarmConfig types.AlarmConfig
	alarmMsg    []string
	expectSent  bool
}

// TestSendAlarm tests the local alarm channel end to end
func TestSendAlarm(t *testing.T) {
	dir, err := ioutil.TempDir("", "driftwatch-alarm")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	executor := filepath.Join(dir, "alarm.sh")
	msgFile := filepath.Join(dir, "alarms")
	executorStr := fmt.Sprintf("#!/bin/bash\necho $1 >> %s\n", msgFile)
	if err := ioutil.WriteFile(executor, []byte(executorStr), 0755); err != nil {
		t.Fatalf("failed to write executor: %v", err)
	}

	localChannel := types.AlarmConfig{
		ChannelName: types.AlarmTypeLocal,
		LocalAlarm:  &types.LocalAlarm{Executor: executor},
		Cluster:     "test-cluster",
	}

	cases := []alarmTest{
		{
			describe:    "disable alarm",
			alarmConfig: localChannel,
			alarmMsg:    []string{"alarm test 1"},
			expectSent:  false,
		},
		{
			describe:    "message batch is 1",
			alarmConfig: localChannel,
			alarmMsg:    []string{"alarm test 1"},
			expectSent:  true,
		},
		{
			describe:    "messages merged into one batch",
			alarmConfig: localChannel,
			alarmMsg:    []string{"alarm test 1", "alarm test 1"},
			expectSent:  true,
		},
	}
	cases[1].alarmConfig.Enable = true
	cases[1].alarmConfig.MessageBatch = 1
	cases[1].alarmConfig.MessageDelay = times.Duration(5 * time.Second)
	cases[2].alarmConfig.Enable = true
	cases[2].alarmConfig.MessageBatch = 2
	cases[2].alarmConfig.MessageDelay = times.Duration(5 * time.Second)

	util.SetNodeIP(alarmIP)
	for _, ac := range cases {
		t.Logf("testing alarm: %s", ac.describe)
		if err := ioutil.WriteFile(msgFile, nil, 0644); err != nil {
			t.Fatalf("failed to clear message file: %v", err)
		}

		am := NewManager(&ac.alarmConfig)
		stopCh := make(chan struct{})
		am.Run(stopCh)

		for _, msg := range ac.alarmMsg {
			SendAlarm(msg)
			time.Sleep(200 * time.Millisecond)
		}
		time.Sleep(1 * time.Second)
		close(stopCh)

		readBytes, err := ioutil.ReadFile(msgFile)
		if err != nil {
			t.Fatalf("read alarm message from file err: %v", err)
		}
		content := strings.Trim(string(readBytes), "\n")

		if !ac.expectSent {
			if len(content) != 0 {
				t.Fatalf("%s: expected no alarm, got: %s", ac.describe, content)
			}
			continue
		}

		body := &AlarmBody{}
		if err := json.Unmarshal([]byte(content), body); err != nil {
			t.Fatalf("%s: invalid alarm body(%s): %v", ac.describe, content, err)
		}
		if body.IP != alarmIP {
			t.Errorf("%s: expected ip %s, got %s", ac.describe, alarmIP, body.IP)
		}
		if body.Cluster != "test-cluster" {
			t.Errorf("%s: expected cluster test-cluster, got %s", ac.describe, body.Cluster)
		}
		if len(body.AlarmMsg) != 1 || !strings.HasPrefix(body.AlarmMsg[0], ac.alarmMsg[0]) {
			t.Errorf("%s: unexpected alarm messages: %v", ac.describe, body.AlarmMsg)
		}
	}
}

// TestRemoteAlarm tests the webhook channel against a stub server
func TestRemoteAlarm(t *testing.T) {
	var received AlarmBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"code":0,"message":"ok"}`))
	}))
	defer server.Close()

	channel := newRemoteAlarm(&types.RemoteAlarm{RemoteWebhook: server.URL})
	body := &AlarmBody{IP: alarmIP, Cluster: "test-cluster", AlarmMsg: []string{"drift alert"}}
	if err := channel.sendMessage(body); err != nil {
		t.Fatalf("remote alarm failed: %v", err)
	}
	if received.Cluster != "test-cluster" || len(received.AlarmMsg) != 1 {
		t.Errorf("unexpected body received: %+v", received)
	}

	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":1,"message":"rejected"}`))
	}))
	defer badServer.Close()

	channel = newRemoteAlarm(&types.RemoteAlarm{RemoteWebhook: badServer.URL})
	if err := channel.sendMessage(body); err == nil {
		t.Fatal("expected error for rejected alarm, got none")
	}
}
