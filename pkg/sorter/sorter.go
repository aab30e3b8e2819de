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
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
)

// Sorter produces an allocation precedence order over a set of named clients
// (roles, or frameworks within a role) based on their consumption history and
// the total resource pool. Implementations are not safe for concurrent use,
// the owning allocator serializes all access.
type Sorter interface {
	// Add registers a client with the given weight and activates it.
	Add(client string, weight float64)
	// Remove forgets the client entirely, including its history.
	Remove(client string)
	// Activate makes the client eligible for sorting again.
	Activate(client string)
	// Deactivate hides the client from Sort but keeps its allocation
	// history, so fairness cannot be gamed by a disconnect/reconnect
	// round-trip.
	Deactivate(client string)
	// Allocated records resources handed to the client.
	Allocated(client string, delta resources.Resources)
	// Unallocated records resources recovered from the client.
	Unallocated(client string, delta resources.Resources)
	// Allocation returns the client's current total allocation.
	Allocation(client string) resources.Resources
	// AddTotal grows the pool all shares are calculated against.
	AddTotal(delta resources.Resources)
	// RemoveTotal shrinks the pool all shares are calculated against.
	RemoveTotal(delta resources.Resources)
	// Sort returns the active clients, most starved first.
	Sort() []string
	// Contains reports whether the client is known, active or not.
	Contains(client string) bool
	// Count returns the number of known clients, active or not.
	Count() int
}
