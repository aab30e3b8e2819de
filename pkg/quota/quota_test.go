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

package quota

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
)

func TestValidate(t *testing.T) {
	valid := QuotaInfo{Role: "analytics", Guarantee: resources.MustParse("cpus:4;mem:2048")}
	assert.NilError(t, Validate(valid))

	tests := []struct {
		name string
		info QuotaInfo
	}{
		{"no role", QuotaInfo{Guarantee: resources.MustParse("cpus:1")}},
		{"default role", QuotaInfo{Role: "*", Guarantee: resources.MustParse("cpus:1")}},
		{"empty guarantee", QuotaInfo{Role: "analytics"}},
		{"non scalar", QuotaInfo{Role: "analytics", Guarantee: resources.MustParse("ports:[31000-32000]")}},
		{"zero scalar", QuotaInfo{Role: "analytics", Guarantee: resources.Resources{{Name: "cpus", Type: resources.Scalar, Scalar: 0}}}},
		{"reserved", QuotaInfo{Role: "analytics", Guarantee: resources.MustParse("cpus(analytics):1")}},
		{"revocable", QuotaInfo{Role: "analytics", Guarantee: resources.Resources{{Name: "cpus", Type: resources.Scalar, Scalar: 1, Revocable: true}}}},
		{"duplicate resource", QuotaInfo{Role: "analytics", Guarantee: resources.Resources{
			{Name: "cpus", Type: resources.Scalar, Scalar: 1},
			{Name: "cpus", Type: resources.Scalar, Scalar: 2},
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Assert(t, Validate(tc.info) != nil, "expected validation failure")
		})
	}
}

func TestSetQuotaOverwritesInPlace(t *testing.T) {
	var quotas []QuotaInfo

	mutated, err := SetQuota{QuotaInfo{Role: "a", Guarantee: resources.MustParse("cpus:1")}}.Perform(&quotas)
	assert.NilError(t, err)
	assert.Assert(t, mutated)
	mutated, err = SetQuota{QuotaInfo{Role: "b", Guarantee: resources.MustParse("cpus:2")}}.Perform(&quotas)
	assert.NilError(t, err)
	assert.Assert(t, mutated)

	// updating "a" must not move it behind "b"
	mutated, err = SetQuota{QuotaInfo{Role: "a", Guarantee: resources.MustParse("cpus:8")}}.Perform(&quotas)
	assert.NilError(t, err)
	assert.Assert(t, mutated)

	assert.Equal(t, len(quotas), 2)
	assert.Equal(t, quotas[0].Role, "a")
	assert.Assert(t, resources.Equals(quotas[0].Guarantee, resources.MustParse("cpus:8")))
	assert.Equal(t, quotas[1].Role, "b")
}

func TestSetQuotaRejectsInvalid(t *testing.T) {
	var quotas []QuotaInfo
	mutated, err := SetQuota{QuotaInfo{Role: "a"}}.Perform(&quotas)
	assert.Assert(t, err != nil)
	assert.Assert(t, !mutated)
	assert.Equal(t, len(quotas), 0)
}

func TestRemoveQuota(t *testing.T) {
	quotas := []QuotaInfo{
		{Role: "a", Guarantee: resources.MustParse("cpus:1")},
		{Role: "b", Guarantee: resources.MustParse("cpus:2")},
	}

	mutated, err := RemoveQuota{Role: "a"}.Perform(&quotas)
	assert.NilError(t, err)
	assert.Assert(t, mutated)
	assert.Equal(t, len(quotas), 1)
	assert.Equal(t, quotas[0].Role, "b")

	// removing an absent role is a no-op, not an error
	mutated, err = RemoveQuota{Role: "a"}.Perform(&quotas)
	assert.NilError(t, err)
	assert.Assert(t, !mutated)
}

func TestInMemoryRegistry(t *testing.T) {
	reg := NewInMemoryRegistry()

	err := <-reg.Apply(SetQuota{QuotaInfo{Role: "a", Guarantee: resources.MustParse("cpus:4")}})
	assert.NilError(t, err)
	err = <-reg.Apply(SetQuota{QuotaInfo{Role: "b", Guarantee: resources.MustParse("mem:1024")}})
	assert.NilError(t, err)

	recovered, err := reg.Recover()
	assert.NilError(t, err)
	assert.Equal(t, len(recovered), 2)

	// recovered state is a copy, mutating it must not touch the registry
	recovered[0].Guarantee = resources.MustParse("cpus:99")
	again, err := reg.Recover()
	assert.NilError(t, err)
	assert.Assert(t, resources.Equals(again[0].Guarantee, resources.MustParse("cpus:4")))

	err = <-reg.Apply(RemoveQuota{Role: "a"})
	assert.NilError(t, err)
	again, err = reg.Recover()
	assert.NilError(t, err)
	assert.Equal(t, len(again), 1)
	assert.Equal(t, again[0].Role, "b")
}

func TestInMemoryRegistryFault(t *testing.T) {
	reg := NewInMemoryRegistry()
	boom := errors.New("store unavailable")
	reg.SetFault(boom)

	err := <-reg.Apply(SetQuota{QuotaInfo{Role: "a", Guarantee: resources.MustParse("cpus:1")}})
	assert.ErrorContains(t, err, "store unavailable")

	reg.SetFault(nil)
	err = <-reg.Apply(SetQuota{QuotaInfo{Role: "a", Guarantee: resources.MustParse("cpus:1")}})
	assert.NilError(t, err)
}
