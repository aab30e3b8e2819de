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
	"fmt"
	"sort"
	"strings"
)

// const keys
const (
	CPUs   = "cpus"
	Memory = "mem"
	Disk   = "disk"
	Ports  = "ports"

	// DefaultRole marks unreserved resources.
	DefaultRole = "*"
)

// Type describes the value carried by a resource entry.
type Type int

const (
	Scalar Type = iota
	Ranges
	Set
)

func (t Type) String() string {
	switch t {
	case Scalar:
		return "SCALAR"
	case Ranges:
		return "RANGES"
	case Set:
		return "SET"
	}
	return "UNKNOWN"
}

// ReservationInfo marks a dynamic reservation. Statically reserved resources
// carry a non-default role without reservation info.
type ReservationInfo struct {
	Principal string
}

// DiskInfo marks a resource backed by a persistent volume.
type DiskInfo struct {
	PersistenceID string
	ContainerPath string
}

// Range is an inclusive interval, begin <= end.
type Range struct {
	Begin uint64
	End   uint64
}

// Resource is one entry of a resource multiset: a named, typed quantity with
// reservation tagging. Treat values as immutable, the arithmetic below always
// returns new entries.
type Resource struct {
	Name        string
	Type        Type
	Scalar      float64
	Ranges      []Range
	Set         []string
	Role        string // empty means DefaultRole
	Reservation *ReservationInfo
	Disk        *DiskInfo
	Revocable   bool
}

// Resources is a multiset of resource entries.
// All operations are nil safe: a nil slice is an empty multiset.
type Resources []Resource

func NewScalar(name string, value float64) Resource {
	return Resource{Name: name, Type: Scalar, Scalar: value, Role: DefaultRole}
}

func NewScalarWithRole(name, role string, value float64) Resource {
	return Resource{Name: name, Type: Scalar, Scalar: value, Role: role}
}

func NewRanges(name string, ranges []Range) Resource {
	return Resource{Name: name, Type: Ranges, Ranges: mergeRanges(ranges), Role: DefaultRole}
}

func NewSet(name string, items []string) Resource {
	set := append([]string(nil), items...)
	sort.Strings(set)
	return Resource{Name: name, Type: Set, Set: set, Role: DefaultRole}
}

// GetRole normalizes the empty role to the default role.
func (r Resource) GetRole() string {
	if r.Role == "" {
		return DefaultRole
	}
	return r.Role
}

func (r Resource) IsUnreserved() bool {
	return r.GetRole() == DefaultRole && r.Reservation == nil
}

func (r Resource) IsStaticallyReserved() bool {
	return r.GetRole() != DefaultRole && r.Reservation == nil
}

func (r Resource) IsDynamicallyReserved() bool {
	return r.Reservation != nil
}

func (r Resource) IsEmpty() bool {
	switch r.Type {
	case Scalar:
		return r.Scalar == 0
	case Ranges:
		return len(r.Ranges) == 0
	case Set:
		return len(r.Set) == 0
	}
	return true
}

func (r Resource) Clone() Resource {
	out := r
	if r.Ranges != nil {
		out.Ranges = append([]Range(nil), r.Ranges...)
	}
	if r.Set != nil {
		out.Set = append([]string(nil), r.Set...)
	}
	if r.Reservation != nil {
		res := *r.Reservation
		out.Reservation = &res
	}
	if r.Disk != nil {
		disk := *r.Disk
		out.Disk = &disk
	}
	return out
}

func (r Resource) String() string {
	tag := r.Name
	if r.GetRole() != DefaultRole {
		tag += "(" + r.GetRole() + ")"
	}
	switch r.Type {
	case Scalar:
		return fmt.Sprintf("%s:%v", tag, r.Scalar)
	case Ranges:
		parts := make([]string, len(r.Ranges))
		for i, rng := range r.Ranges {
			parts[i] = fmt.Sprintf("%d-%d", rng.Begin, rng.End)
		}
		return fmt.Sprintf("%s:[%s]", tag, strings.Join(parts, ","))
	case Set:
		return fmt.Sprintf("%s:{%s}", tag, strings.Join(r.Set, ","))
	}
	return tag
}

// Validate rejects malformed entries. It is the only place that enforces
// shape, the arithmetic assumes validated input and never fails.
func Validate(r Resource) error {
	if r.Name == "" {
		return fmt.Errorf("resource with no name")
	}
	switch r.Type {
	case Scalar:
		if r.Scalar < 0 {
			return fmt.Errorf("resource %s with negative scalar value %v", r.Name, r.Scalar)
		}
		if len(r.Ranges) != 0 || len(r.Set) != 0 {
			return fmt.Errorf("scalar resource %s carries non-scalar values", r.Name)
		}
	case Ranges:
		if r.Scalar != 0 || len(r.Set) != 0 {
			return fmt.Errorf("ranges resource %s carries non-range values", r.Name)
		}
		for _, rng := range r.Ranges {
			if rng.Begin > rng.End {
				return fmt.Errorf("resource %s with invalid range %d-%d", r.Name, rng.Begin, rng.End)
			}
		}
	case Set:
		if r.Scalar != 0 || len(r.Ranges) != 0 {
			return fmt.Errorf("set resource %s carries non-set values", r.Name)
		}
		seen := make(map[string]bool, len(r.Set))
		for _, item := range r.Set {
			if seen[item] {
				return fmt.Errorf("resource %s with duplicate set item %s", r.Name, item)
			}
			seen[item] = true
		}
	default:
		return fmt.Errorf("resource %s with unknown type %d", r.Name, r.Type)
	}
	return nil
}

// Validate checks every entry of the multiset.
func (rs Resources) Validate() error {
	for _, r := range rs {
		if err := Validate(r); err != nil {
			return err
		}
	}
	return nil
}

// addable returns true when the values of both entries can be merged into a
// single entry: same name, type and identical tagging.
func addable(a, b Resource) bool {
	if a.Name != b.Name || a.Type != b.Type || a.GetRole() != b.GetRole() || a.Revocable != b.Revocable {
		return false
	}
	if (a.Reservation == nil) != (b.Reservation == nil) {
		return false
	}
	if a.Reservation != nil && a.Reservation.Principal != b.Reservation.Principal {
		return false
	}
	if (a.Disk == nil) != (b.Disk == nil) {
		return false
	}
	if a.Disk != nil && *a.Disk != *b.Disk {
		return false
	}
	return true
}

func (rs Resources) Clone() Resources {
	out := make(Resources, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Clone())
	}
	return out
}

// Add returns a new multiset with the entries of both arguments merged.
func Add(left, right Resources) Resources {
	out := left.Clone()
	for _, r := range right {
		if r.IsEmpty() {
			continue
		}
		merged := false
		for i := range out {
			if addable(out[i], r) {
				switch r.Type {
				case Scalar:
					out[i].Scalar += r.Scalar
				case Ranges:
					out[i].Ranges = mergeRanges(append(out[i].Ranges, r.Ranges...))
				case Set:
					out[i].Set = unionSet(out[i].Set, r.Set)
				}
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, r.Clone())
		}
	}
	return out.prune()
}

// Sub returns a new multiset with the right entries removed from the left.
// Removing more than is present leaves the affected entry at zero, the
// result never contains negative quantities.
func Sub(left, right Resources) Resources {
	out := left.Clone()
	for _, r := range right {
		if r.IsEmpty() {
			continue
		}
		remaining := r.Clone()
		for i := range out {
			if remaining.IsEmpty() {
				break
			}
			if !addable(out[i], remaining) {
				continue
			}
			switch r.Type {
			case Scalar:
				taken := minFloat(out[i].Scalar, remaining.Scalar)
				out[i].Scalar -= taken
				remaining.Scalar -= taken
			case Ranges:
				taken := intersectRanges(out[i].Ranges, remaining.Ranges)
				out[i].Ranges = subtractRanges(out[i].Ranges, taken)
				remaining.Ranges = subtractRanges(remaining.Ranges, taken)
			case Set:
				taken := intersectSet(out[i].Set, remaining.Set)
				out[i].Set = diffSet(out[i].Set, taken)
				remaining.Set = diffSet(remaining.Set, taken)
			}
		}
	}
	return out.prune()
}

// Contains reports whether the receiver covers every entry of smaller,
// honoring tags: reserved quantities only satisfy identically tagged needs.
func (rs Resources) Contains(smaller Resources) bool {
	remaining := rs.Clone()
	for _, need := range smaller {
		if need.IsEmpty() {
			continue
		}
		switch need.Type {
		case Scalar:
			have := 0.0
			for _, r := range remaining {
				if addable(r, need) {
					have += r.Scalar
				}
			}
			if have < need.Scalar {
				return false
			}
		case Ranges:
			var pool []Range
			for _, r := range remaining {
				if addable(r, need) {
					pool = append(pool, r.Ranges...)
				}
			}
			if !rangesContain(mergeRanges(pool), need.Ranges) {
				return false
			}
		case Set:
			pool := make(map[string]bool)
			for _, r := range remaining {
				if addable(r, need) {
					for _, item := range r.Set {
						pool[item] = true
					}
				}
			}
			for _, item := range need.Set {
				if !pool[item] {
					return false
				}
			}
		}
		remaining = Sub(remaining, Resources{need})
	}
	return true
}

// Equals compares multisets by value, independent of entry order.
func Equals(left, right Resources) bool {
	return left.Contains(right) && right.Contains(left)
}

func (rs Resources) IsEmpty() bool {
	for _, r := range rs {
		if !r.IsEmpty() {
			return false
		}
	}
	return true
}

// Flatten strips role and reservation tagging so quantities can be compared
// against untagged capacity.
func (rs Resources) Flatten() Resources {
	out := Resources{}
	for _, r := range rs {
		flat := r.Clone()
		flat.Role = DefaultRole
		flat.Reservation = nil
		out = Add(out, Resources{flat})
	}
	return out
}

// Filter returns the entries matching the predicate.
func (rs Resources) Filter(predicate func(Resource) bool) Resources {
	out := Resources{}
	for _, r := range rs {
		if predicate(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Unreserved returns the entries not tied to any role.
func (rs Resources) Unreserved() Resources {
	return rs.Filter(Resource.IsUnreserved)
}

// Reserved returns the entries reserved to the given role, both statically
// and dynamically.
func (rs Resources) Reserved(role string) Resources {
	return rs.Filter(func(r Resource) bool {
		return r.GetRole() == role && r.GetRole() != DefaultRole
	})
}

// DynamicallyReserved returns the dynamic reservations held by the role.
func (rs Resources) DynamicallyReserved(role string) Resources {
	return rs.Filter(func(r Resource) bool {
		return r.IsDynamicallyReserved() && r.GetRole() == role
	})
}

// NonRevocable drops revocable entries.
func (rs Resources) NonRevocable() Resources {
	return rs.Filter(func(r Resource) bool { return !r.Revocable })
}

// ScalarValues sums the scalar entries by name, ignoring tags. Ranges and
// sets do not contribute.
func (rs Resources) ScalarValues() map[string]float64 {
	out := make(map[string]float64)
	for _, r := range rs {
		if r.Type == Scalar {
			out[r.Name] += r.Scalar
		}
	}
	return out
}

// Get returns the flattened scalar quantity of the named resource.
func (rs Resources) Get(name string) float64 {
	total := 0.0
	for _, r := range rs {
		if r.Type == Scalar && r.Name == name {
			total += r.Scalar
		}
	}
	return total
}

func (rs Resources) String() string {
	if len(rs) == 0 {
		return "{}"
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ";")
}

func (rs Resources) prune() Resources {
	out := rs[:0]
	for _, r := range rs {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return Resources{}
	}
	return out
}

func minFloat(x, y float64) float64 {
	if x < y {
		return x
	}
	return y
}
