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

package metrics

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestAllocatorMetricsCounters(t *testing.T) {
	a := GetAllocatorMetrics()

	before, err := a.GetAllocationRuns()
	assert.NilError(t, err)
	a.IncAllocationRun()
	a.IncAllocationRun()
	after, err := a.GetAllocationRuns()
	assert.NilError(t, err)
	assert.Equal(t, after, before+2)

	offeredBefore, err := a.GetOffered()
	assert.NilError(t, err)
	a.AddOffered(3)
	a.IncOffered()
	offeredAfter, err := a.GetOffered()
	assert.NilError(t, err)
	assert.Equal(t, offeredAfter, offeredBefore+4)
}

func TestMetricsSingleton(t *testing.T) {
	assert.Assert(t, GetAllocatorMetrics() == GetAllocatorMetrics(), "allocator metrics must be a singleton")
	assert.Assert(t, GetEventMetrics() == GetEventMetrics(), "event metrics must be a singleton")
}
