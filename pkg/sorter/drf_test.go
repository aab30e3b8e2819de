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

package sorter

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
)

func names(order []string) string {
	out := ""
	for i, name := range order {
		if i > 0 {
			out += ","
		}
		out += name
	}
	return out
}

func TestDRFOrdering(t *testing.T) {
	s := NewDRFSorter()
	s.AddTotal(resources.MustParse("cpus:100;mem:100"))

	s.Add("a", 1)
	s.Add("b", 1)
	s.Add("c", 1)
	s.Add("d", 1)

	// shares: a=0.05, b=0.35, c=0.45, d=0.1
	s.Allocated("a", resources.MustParse("cpus:5;mem:5"))
	s.Allocated("b", resources.MustParse("cpus:6;mem:35"))
	s.Allocated("c", resources.MustParse("cpus:45;mem:12"))
	s.Allocated("d", resources.MustParse("cpus:10;mem:5"))

	assert.Equal(t, names(s.Sort()), "a,d,b,c")

	// recovering resources moves the client back up
	s.Unallocated("c", resources.MustParse("cpus:45"))
	assert.Equal(t, names(s.Sort()), "a,d,c,b")
}

func TestDRFDeterministicTieBreak(t *testing.T) {
	s := NewDRFSorter()
	s.AddTotal(resources.MustParse("cpus:100"))

	s.Add("zed", 1)
	s.Add("ann", 1)
	s.Add("mid", 1)

	// all shares zero: order by allocation count, then name
	assert.Equal(t, names(s.Sort()), "ann,mid,zed")
	assert.Equal(t, names(s.Sort()), "ann,mid,zed")

	// an empty allocation still bumps the count and demotes the client
	s.Allocated("ann", resources.Resources{})
	assert.Equal(t, names(s.Sort()), "mid,zed,ann")
}

func TestDRFWeights(t *testing.T) {
	s := NewDRFSorter()
	s.AddTotal(resources.MustParse("cpus:100"))

	s.Add("light", 1)
	s.Add("heavy", 2)

	s.Allocated("light", resources.MustParse("cpus:10"))
	s.Allocated("heavy", resources.MustParse("cpus:16"))

	// heavy's weighted share 0.08 is below light's 0.10
	assert.Equal(t, names(s.Sort()), "heavy,light")
}

func TestDRFDirtyRecalculation(t *testing.T) {
	s := NewDRFSorter()
	s.AddTotal(resources.MustParse("cpus:10"))

	s.Add("a", 1)
	s.Add("b", 1)
	s.Allocated("a", resources.MustParse("cpus:1"))
	s.Allocated("b", resources.MustParse("cpus:4"))
	assert.Equal(t, names(s.Sort()), "a,b")

	// growing the pool dilutes every share, order must be recalculated on
	// the next Sort
	s.AddTotal(resources.MustParse("cpus:90;mem:100"))
	s.Allocated("a", resources.MustParse("mem:90"))
	assert.Equal(t, names(s.Sort()), "b,a")
}

func TestDRFDeactivateKeepsHistory(t *testing.T) {
	s := NewDRFSorter()
	s.AddTotal(resources.MustParse("cpus:100"))

	s.Add("a", 1)
	s.Add("b", 1)
	s.Allocated("a", resources.MustParse("cpus:50"))

	s.Deactivate("a")
	assert.Equal(t, names(s.Sort()), "b")
	assert.Assert(t, s.Contains("a"), "deactivated client must still be known")
	assert.Equal(t, s.Count(), 2)

	// fairness position is unchanged after the round-trip
	s.Activate("a")
	assert.Equal(t, names(s.Sort()), "b,a")
	assert.Assert(t, resources.Equals(s.Allocation("a"), resources.MustParse("cpus:50")),
		"allocation history lost across deactivate/activate")
}

func TestDRFRemoveForgets(t *testing.T) {
	s := NewDRFSorter()
	s.AddTotal(resources.MustParse("cpus:100"))

	s.Add("a", 1)
	s.Allocated("a", resources.MustParse("cpus:50"))
	s.Remove("a")

	assert.Assert(t, !s.Contains("a"), "removed client must be forgotten")
	assert.Equal(t, s.Count(), 0)

	// a fresh add starts from a clean slate
	s.Add("a", 1)
	assert.Assert(t, s.Allocation("a").IsEmpty(), "fresh client must have no allocation")
}

func TestDRFZeroTotalGuard(t *testing.T) {
	s := NewDRFSorter()
	s.Add("a", 1)
	s.Allocated("a", resources.MustParse("cpus:5"))

	// no totals at all: share must be zero, not a division by zero
	assert.Equal(t, names(s.Sort()), "a")

	// a resource with zero total contributes nothing either
	s.AddTotal(resources.MustParse("cpus:10;gpus:0"))
	s.Allocated("a", resources.MustParse("gpus:5"))
	assert.Equal(t, names(s.Sort()), "a")
}

func TestDRFNonScalarIgnored(t *testing.T) {
	s := NewDRFSorter()
	s.AddTotal(resources.MustParse("cpus:10;ports:[1-100]"))

	s.Add("a", 1)
	s.Add("b", 1)
	s.Allocated("a", resources.MustParse("ports:[1-100]"))
	s.Allocated("b", resources.MustParse("cpus:1"))

	// "a" holds every port yet sorts first: ranges carry no share
	assert.Equal(t, names(s.Sort()), "a,b")
}
