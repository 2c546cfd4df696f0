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

package baseline

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// LoadSeries reads a univariate baseline history, a json array of numbers
func LoadSeries(file string) ([]float64, error) {
	bytes, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read baseline series(%s) err: %v", file, err)
	}
	var series []float64
	if err := json.Unmarshal(bytes, &series); err != nil {
		return nil, fmt.Errorf("parse baseline series(%s) err: %v", file, err)
	}
	return series, nil
}

// LoadReference reads a multivariate baseline reference, a json array of
// feature vectors. A flat array of numbers is treated as single-feature rows.
func LoadReference(file string) ([][]float64, error) {
	bytes, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read baseline reference(%s) err: %v", file, err)
	}
	var rows [][]float64
	if err := json.Unmarshal(bytes, &rows); err == nil {
		return rows, nil
	}
	var flat []float64
	if err := json.Unmarshal(bytes, &flat); err != nil {
		return nil, fmt.Errorf("parse baseline reference(%s) err: %v", file, err)
	}
	rows = make([][]float64, len(flat))
	for i, v := range flat {
		rows[i] = []float64{v}
	}
	return rows, nil
}

// Watcher reloads baseline files when their content changes. The change
// callback runs on the watcher goroutine, so callers decide how to serialize
// recalibration against their own checks.
type Watcher struct {
	files    []string
	hashes   map[string]string
	onChange func()
}

// NewWatcher returns a watcher for the given baseline files
func NewWatcher(onChange func(), files ...string) (*Watcher, error) {
	w := &Watcher{
		files:    files,
		hashes:   make(map[string]string),
		onChange: onChange,
	}
	for _, f := range files {
		hash, err := hashFile(f)
		if err != nil {
			return nil, err
		}
		w.hashes[f] = hash
	}
	return w, nil
}

// Name return module name
func (w *Watcher) Name() string {
	return "ModuleBaselineWatcher"
}

// Run watches the baseline directories until stop closes
func (w *Watcher) Run(stop <-chan struct{}) {
	go w.watch(stop)
}

func (w *Watcher) watch(stop <-chan struct{}) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		klog.Fatalf("failed init fsnotify watcher: %v", err)
	}
	defer fw.Close()

	dirs := make(map[string]bool)
	for _, f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			klog.Fatalf("failed add dir watcher(%s): %v", dir, err)
		}
	}

	for {
		select {
		case <-fw.Events:
			if w.changed() {
				w.onChange()
			}
		case err := <-fw.Errors:
			klog.Errorf("fsnotify error: %v", err)
		case <-stop:
			return
		}
	}
}

// changed checks the file hashes against the last seen set
func (w *Watcher) changed() bool {
	changed := false
	for _, f := range w.files {
		hash, err := hashFile(f)
		if err != nil {
			klog.Errorf("failed hash baseline file: %v", err)
			continue
		}
		if hash != w.hashes[f] {
			w.hashes[f] = hash
			changed = true
		}
	}
	return changed
}

// hashFile generate hash code for the file
func hashFile(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := md5.New()
	if _, err = io.Copy(hash, file); err != nil {
		return "", err
	}
	h := hash.Sum(nil)[:16]
	hs := hex.EncodeToString(h)
	return hs, nil
}
