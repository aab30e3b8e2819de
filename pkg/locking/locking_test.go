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

package locking

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestDefaultsDisabled(t *testing.T) {
	assert.Assert(t, !IsTrackingEnabled(), "deadlock detection should be off by default")
	assert.Equal(t, GetDeadlockTimeoutSeconds(), 60)
	assert.Assert(t, !IsDeadlockDetected(), "no deadlock should have been seen")
}

func TestMutexLockUnlock(t *testing.T) {
	var m Mutex
	counter := 0
	done := make(chan struct{})
	go func() {
		m.Lock()
		counter++
		m.Unlock()
		close(done)
	}()
	<-done
	m.Lock()
	defer m.Unlock()
	assert.Equal(t, counter, 1)
}

func TestRWMutexReaders(t *testing.T) {
	var m RWMutex
	m.RLock()
	m.RLock()
	m.RUnlock()
	m.RUnlock()
	m.Lock()
	m.Unlock()
}
