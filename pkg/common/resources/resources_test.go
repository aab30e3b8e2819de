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

package resources

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParse(t *testing.T) {
	res, err := Parse("cpus:4;mem:2048")
	assert.NilError(t, err, "parse failed")
	assert.Equal(t, res.Get(CPUs), 4.0)
	assert.Equal(t, res.Get(Memory), 2048.0)

	res, err = Parse("cpus(prod):2;ports:[31000-32000];features:{ssd,gpu}")
	assert.NilError(t, err, "parse failed")
	assert.Equal(t, len(res), 3)
	assert.Equal(t, res.Reserved("prod").Get(CPUs), 2.0)

	_, err = Parse("cpus")
	assert.Assert(t, err != nil, "missing value must fail")
	_, err = Parse("cpus:abc")
	assert.Assert(t, err != nil, "bad scalar must fail")
	_, err = Parse("ports:[10-5]")
	assert.Assert(t, err != nil, "inverted range must fail")
}

func TestAddSub(t *testing.T) {
	left := MustParse("cpus:1;mem:512")
	right := MustParse("cpus:3;mem:1536")

	sum := Add(left, right)
	assert.Assert(t, Equals(sum, MustParse("cpus:4;mem:2048")), "unexpected sum: %s", sum)

	diff := Sub(sum, left)
	assert.Assert(t, Equals(diff, right), "unexpected difference: %s", diff)

	// nil operands are empty multisets
	assert.Assert(t, Equals(Add(nil, left), left), "nil + x must equal x")
	assert.Assert(t, Sub(nil, left).IsEmpty(), "nil - x must be empty")
}

func TestSubNeverNegative(t *testing.T) {
	small := MustParse("cpus:1")
	large := MustParse("cpus:4;mem:100")
	diff := Sub(small, large)
	assert.Assert(t, diff.IsEmpty(), "over-subtraction must floor at zero, got %s", diff)
}

func TestRolesNotInterchangeable(t *testing.T) {
	reserved := MustParse("cpus(prod):2")
	unreserved := MustParse("cpus:2")

	assert.Assert(t, !reserved.Contains(unreserved), "reserved must not satisfy unreserved need")
	assert.Assert(t, !unreserved.Contains(reserved), "unreserved must not satisfy reserved need")

	// subtracting across roles is a no-op
	assert.Assert(t, Equals(Sub(reserved, unreserved), reserved), "cross-role subtraction changed the value")
}

func TestFlatten(t *testing.T) {
	mixed := MustParse("cpus(prod):2;cpus:1;mem(dev):512")
	flat := mixed.Flatten()
	assert.Equal(t, flat.Get(CPUs), 3.0)
	assert.Equal(t, flat.Get(Memory), 512.0)
	for _, r := range flat {
		assert.Equal(t, r.GetRole(), DefaultRole)
		assert.Assert(t, r.Reservation == nil, "flatten must drop reservations")
	}
	// flattened capacity now satisfies the untagged need
	assert.Assert(t, flat.Contains(MustParse("cpus:3")), "flattened pool must cover untagged need")
}

func TestUnreservedAndReserved(t *testing.T) {
	mixed := MustParse("cpus(prod):2;cpus:1;mem:512")
	assert.Equal(t, mixed.Unreserved().Get(CPUs), 1.0)
	assert.Equal(t, mixed.Reserved("prod").Get(CPUs), 2.0)
	assert.Assert(t, mixed.Reserved("dev").IsEmpty(), "no dev reservations exist")
}

func TestDynamicallyReserved(t *testing.T) {
	dynamic := Resource{Name: CPUs, Type: Scalar, Scalar: 2, Role: "prod",
		Reservation: &ReservationInfo{Principal: "ops"}}
	static := NewScalarWithRole(CPUs, "prod", 1)
	rs := Resources{dynamic, static}

	assert.Equal(t, rs.DynamicallyReserved("prod").Get(CPUs), 2.0)
	assert.Assert(t, static.IsStaticallyReserved(), "entry must be statically reserved")
	assert.Assert(t, dynamic.IsDynamicallyReserved(), "entry must be dynamically reserved")
}

func TestRangesArithmetic(t *testing.T) {
	ports := MustParse("ports:[1-10]")
	taken := MustParse("ports:[3-5]")

	left := Sub(ports, taken)
	assert.Assert(t, Equals(left, MustParse("ports:[1-2,6-10]")), "unexpected remainder: %s", left)
	assert.Assert(t, ports.Contains(taken), "pool must contain sub-range")
	assert.Assert(t, !left.Contains(taken), "removed range must be gone")

	back := Add(left, taken)
	assert.Assert(t, Equals(back, ports), "add must restore the full range")
}

func TestSetArithmetic(t *testing.T) {
	features := MustParse("features:{ssd,gpu,fpga}")
	used := MustParse("features:{gpu}")

	left := Sub(features, used)
	assert.Assert(t, Equals(left, MustParse("features:{ssd,fpga}")), "unexpected remainder: %s", left)
	assert.Assert(t, features.Contains(used), "set must contain subset")
}

func TestEqualsOrderIndependent(t *testing.T) {
	a := MustParse("cpus:1;mem:512;ports:[1-5]")
	b := MustParse("ports:[1-5];mem:512;cpus:1")
	assert.Assert(t, Equals(a, b), "order must not matter")
	assert.Assert(t, !Equals(a, MustParse("cpus:1;mem:512")), "missing entry must not be equal")
	assert.Assert(t, Equals(nil, Resources{}), "nil and empty must be equal")
}

func TestValidate(t *testing.T) {
	assert.Assert(t, Validate(Resource{Type: Scalar, Scalar: 1}) != nil, "missing name must fail")
	assert.Assert(t, Validate(Resource{Name: CPUs, Type: Scalar, Scalar: -1}) != nil, "negative scalar must fail")
	assert.Assert(t, Validate(Resource{Name: Ports, Type: Ranges,
		Ranges: []Range{{Begin: 10, End: 5}}}) != nil, "inverted range must fail")
	assert.Assert(t, Validate(Resource{Name: "features", Type: Set,
		Set: []string{"a", "a"}}) != nil, "duplicate set item must fail")
	assert.NilError(t, Validate(NewScalar(CPUs, 4)), "valid scalar rejected")
}

func TestScalarValues(t *testing.T) {
	rs := MustParse("cpus(prod):2;cpus:1;mem:512;ports:[1-10]")
	values := rs.ScalarValues()
	assert.Equal(t, values[CPUs], 3.0)
	assert.Equal(t, values[Memory], 512.0)
	_, hasPorts := values[Ports]
	assert.Assert(t, !hasPorts, "ranges must not contribute scalar values")
}

func TestCloneIsDeep(t *testing.T) {
	orig := MustParse("ports:[1-10]")
	clone := orig.Clone()
	clone[0].Ranges[0].Begin = 5
	assert.Equal(t, orig[0].Ranges[0].Begin, uint64(1), "clone must not alias the original")
}
