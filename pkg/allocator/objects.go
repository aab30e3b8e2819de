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

package allocator

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
)

// agentRecord is the allocator's view of one worker node. All fields are
// owned by the allocator goroutine.
type agentRecord struct {
	agentID  string
	hostname string

	// total capacity including dynamic reservations and volumes
	total resources.Resources
	// everything currently allocated or offered, across all frameworks
	allocated resources.Resources

	stateMachine *fsm.FSM
	// outstanding offer ids on this agent
	offers map[string]*offerRecord
}

func newAgentRecord(agentID, hostname string, total resources.Resources, active bool) *agentRecord {
	initial := Active
	if !active {
		initial = Inactive
	}
	return &agentRecord{
		agentID:      agentID,
		hostname:     hostname,
		total:        total.Clone(),
		stateMachine: newLifecycleState(initial),
		offers:       make(map[string]*offerRecord),
	}
}

func (a *agentRecord) isActive() bool {
	return a.stateMachine.Is(Active.String())
}

func (a *agentRecord) handle(event LifecycleEvent) {
	// a repeated activate or deactivate stays in state, not an error
	_ = a.stateMachine.Event(context.Background(), event.String(), a.agentID)
}

// available returns what is neither allocated nor offered on this agent.
func (a *agentRecord) available() resources.Resources {
	return resources.Sub(a.total, a.allocated)
}

// frameworkRecord is the allocator's view of one registered framework.
type frameworkRecord struct {
	frameworkID string
	role        string
	weight      float64

	// allocated and offered resources per agent
	used map[string]resources.Resources
	// advisory resource request, biases agent selection only
	requested resources.Resources

	stateMachine *fsm.FSM
	filters      []*offerFilter
}

func newFrameworkRecord(frameworkID, role string, weight float64, active bool) *frameworkRecord {
	initial := Active
	if !active {
		initial = Inactive
	}
	if weight <= 0 {
		weight = 1
	}
	return &frameworkRecord{
		frameworkID:  frameworkID,
		role:         role,
		weight:       weight,
		used:         make(map[string]resources.Resources),
		stateMachine: newLifecycleState(initial),
	}
}

func (f *frameworkRecord) isActive() bool {
	return f.stateMachine.Is(Active.String())
}

func (f *frameworkRecord) handle(event LifecycleEvent) {
	_ = f.stateMachine.Event(context.Background(), event.String(), f.frameworkID)
}

// offerFilter suppresses re-offering declined resources to a framework.
// An empty agentID matches every agent.
type offerFilter struct {
	agentID   string
	resources resources.Resources
	expiry    time.Time
}

func (of *offerFilter) expired(now time.Time) bool {
	return !now.Before(of.expiry)
}

// filtered reports whether any live filter blocks offering the candidate
// resources on the agent. Expired filters are dropped in passing.
func (f *frameworkRecord) filtered(agentID string, candidate resources.Resources, now time.Time) bool {
	live := f.filters[:0]
	blocked := false
	for _, filter := range f.filters {
		if filter.expired(now) {
			continue
		}
		live = append(live, filter)
		if filter.agentID != "" && filter.agentID != agentID {
			continue
		}
		if filter.resources.Contains(candidate) {
			blocked = true
		}
	}
	f.filters = live
	return blocked
}

func (f *frameworkRecord) addFilter(agentID string, declined resources.Resources, expiry time.Time) {
	f.filters = append(f.filters, &offerFilter{
		agentID:   agentID,
		resources: declined.Clone(),
		expiry:    expiry,
	})
}

func (f *frameworkRecord) clearFilters() {
	f.filters = nil
}

// offerRecord tracks a batch of resources tentatively awarded to a
// framework on one agent, until accepted, declined or rescinded.
type offerRecord struct {
	offerID     string
	frameworkID string
	agentID     string
	resources   resources.Resources
}
