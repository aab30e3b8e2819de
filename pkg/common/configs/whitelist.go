/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package configs

import (
	"bufio"
	"os"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

// WhitelistUpdater receives the new host set whenever the whitelist file
// changes. A nil set means the whitelist was removed and every host is
// eligible again.
type WhitelistUpdater interface {
	UpdateWhitelist(hosts mapset.Set[string])
}

// WhitelistWatcher polls a hosts file and pushes changes to its updater.
// The file holds one hostname per line, '#' starts a comment.
type WhitelistWatcher struct {
	path     string
	interval time.Duration
	updater  WhitelistUpdater

	current mapset.Set[string]
	stop    chan struct{}
}

func NewWhitelistWatcher(path string, interval time.Duration, updater WhitelistUpdater) *WhitelistWatcher {
	return &WhitelistWatcher{
		path:     path,
		interval: interval,
		updater:  updater,
		stop:     make(chan struct{}),
	}
}

// Run pushes the initial whitelist and then polls until Stop is called.
func (w *WhitelistWatcher) Run() {
	w.runOnce()
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.runOnce()
			}
		}
	}()
}

func (w *WhitelistWatcher) Stop() {
	close(w.stop)
}

func (w *WhitelistWatcher) runOnce() {
	hosts, err := ReadWhitelist(w.path)
	if err != nil {
		log.Log(log.Config).Warn("failed to read whitelist file, keeping previous whitelist",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	if w.current != nil && w.current.Equal(hosts) {
		return
	}
	log.Log(log.Config).Info("whitelist changed",
		zap.String("path", w.path),
		zap.Int("hosts", hosts.Cardinality()))
	w.current = hosts
	w.updater.UpdateWhitelist(hosts)
}

// ReadWhitelist parses a hosts file into a set of hostnames.
func ReadWhitelist(path string) (mapset.Set[string], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	hosts := mapset.NewSet[string]()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			hosts.Add(line)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return hosts, nil
}
