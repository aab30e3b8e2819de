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
	"os"
	"path/filepath"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gotest.tools/v3/assert"
)

func TestParseConfig(t *testing.T) {
	content := []byte(`
allocationInterval: 250ms
defaultFilterDuration: 10s
bindAddress: "127.0.0.1:9090"
whitelistFile: "/etc/helmsman/hosts"
whitelistInterval: 30s
`)
	conf := DefaultConfig()
	assert.NilError(t, ParseConfig(content, conf))
	assert.Equal(t, conf.AllocationInterval, 250*time.Millisecond)
	assert.Equal(t, conf.DefaultFilterDuration, 10*time.Second)
	assert.Equal(t, conf.BindAddress, "127.0.0.1:9090")
	assert.Equal(t, conf.WhitelistFile, "/etc/helmsman/hosts")
	assert.Equal(t, conf.WhitelistInterval, 30*time.Second)
}

func TestParseConfigDefaults(t *testing.T) {
	conf := DefaultConfig()
	assert.NilError(t, ParseConfig([]byte("bindAddress: \":8888\"\n"), conf))
	assert.Equal(t, conf.BindAddress, ":8888")
	// untouched fields keep their defaults
	assert.Equal(t, conf.AllocationInterval, DefaultAllocationInterval)
	assert.Equal(t, conf.DefaultFilterDuration, DefaultFilterDuration)
	assert.Assert(t, conf.CoalesceAllocations)
}

func TestParseConfigBadDuration(t *testing.T) {
	conf := DefaultConfig()
	assert.ErrorContains(t, ParseConfig([]byte("allocationInterval: fast\n"), conf), "invalid duration")
}

func TestConfigValidation(t *testing.T) {
	conf := DefaultConfig()
	conf.AllocationInterval = 0
	assert.ErrorContains(t, conf.Validate(), "allocationInterval")

	conf = DefaultConfig()
	conf.BindAddress = ""
	assert.ErrorContains(t, conf.Validate(), "bindAddress")

	conf = DefaultConfig()
	conf.WhitelistFile = "/tmp/hosts"
	conf.WhitelistInterval = 0
	assert.ErrorContains(t, conf.Validate(), "whitelistInterval")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	assert.ErrorContains(t, err, "failed to read")

	// no path means pure defaults
	conf, err := LoadConfig("")
	assert.NilError(t, err)
	assert.Equal(t, conf.AllocationInterval, DefaultAllocationInterval)
}

func TestReadWhitelist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	content := "agent1.example.com\n# maintenance\nagent2.example.com # rack 2\n\n  agent3.example.com  \n"
	assert.NilError(t, os.WriteFile(path, []byte(content), 0600))

	hosts, err := ReadWhitelist(path)
	assert.NilError(t, err)
	assert.Equal(t, hosts.Cardinality(), 3)
	assert.Assert(t, hosts.Contains("agent1.example.com"))
	assert.Assert(t, hosts.Contains("agent2.example.com"))
	assert.Assert(t, hosts.Contains("agent3.example.com"))
}

type recordingUpdater struct {
	updates []mapset.Set[string]
}

func (r *recordingUpdater) UpdateWhitelist(hosts mapset.Set[string]) {
	r.updates = append(r.updates, hosts)
}

func TestWhitelistWatcherPushesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	assert.NilError(t, os.WriteFile(path, []byte("agent1\n"), 0600))

	updater := &recordingUpdater{}
	watcher := NewWhitelistWatcher(path, time.Hour, updater)

	watcher.runOnce()
	assert.Equal(t, len(updater.updates), 1)
	assert.Assert(t, updater.updates[0].Contains("agent1"))

	// unchanged file: no new push
	watcher.runOnce()
	assert.Equal(t, len(updater.updates), 1)

	assert.NilError(t, os.WriteFile(path, []byte("agent1\nagent2\n"), 0600))
	watcher.runOnce()
	assert.Equal(t, len(updater.updates), 2)
	assert.Equal(t, updater.updates[1].Cardinality(), 2)

	// unreadable file keeps the previous whitelist
	assert.NilError(t, os.Remove(path))
	watcher.runOnce()
	assert.Equal(t, len(updater.updates), 2)
}
