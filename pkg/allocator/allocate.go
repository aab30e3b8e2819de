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
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

// Allocation below this floor is not worth offering.
const (
	minAllocatableCPUs = 0.01
	minAllocatableMem  = 32.0
)

const epsilon = 1e-9

func (a *Allocator) allocateIfNeeded() {
	if !a.allocationNeeded {
		return
	}
	a.allocationNeeded = false
	a.allocate()
}

// allocate runs one allocation cycle: a quota pass laying away resources
// for under-quota roles, then a fair-share pass over everything left. The
// fair-share pass holds back enough unreserved headroom to cover quota
// guarantees that are still unsatisfied, for example because the role has
// no registered framework yet.
func (a *Allocator) allocate() {
	start := a.clock()
	a.metrics.IncAllocationRun()
	defer a.metrics.ObserveAllocationLatency(start)

	now := a.clock()
	agentIDs := a.eligibleAgents()

	// framework -> agent -> resources awarded this cycle
	offerable := make(map[string]map[string]resources.Resources)

	// quota pass
	missing := a.unsatisfiedQuota()
	for _, role := range a.quotaRoleSorter.Sort() {
		shortfall := missing[role]
		if scalarsEmpty(shortfall) {
			continue
		}
		for _, agentID := range agentIDs {
			if scalarsEmpty(shortfall) {
				break
			}
			agent := a.agents[agentID]
			candidate := a.offerableOnAgent(agent, role)
			if !allocatable(candidate) {
				continue
			}
			fw := a.pickFramework(role, agentID, candidate, now)
			if fw == nil {
				continue
			}
			a.award(offerable, fw, agent, candidate)
			scalarsSub(shortfall, candidate.ScalarValues())
		}
	}

	// fair-share pass
	unallocatedQuota := make(map[string]float64)
	for _, shortfall := range missing {
		scalarsAdd(unallocatedQuota, shortfall)
	}
	headroom := make(map[string]float64)
	for _, agentID := range agentIDs {
		scalarsAdd(headroom, a.agents[agentID].available().Unreserved().ScalarValues())
	}

	for _, agentID := range agentIDs {
		agent := a.agents[agentID]
		// shares move with every award, re-sort per agent
		for _, role := range a.roleSorter.Sort() {
			candidate := a.offerableOnAgent(agent, role)
			if !allocatable(candidate) {
				continue
			}
			fw := a.pickFramework(role, agentID, candidate, now)
			if fw == nil {
				continue
			}
			unreserved := candidate.Unreserved().ScalarValues()
			if _, hasQuota := a.quotas[role]; !hasQuota {
				// never dip into resources still owed to quota'd roles
				if !scalarsCoverAfter(headroom, unreserved, unallocatedQuota) {
					continue
				}
			} else if shortfall, ok := missing[role]; ok {
				// credit the aggregate debt only for what this award
				// covers of the role's own shortfall
				scalarsSub(unallocatedQuota, scalarsMin(shortfall, unreserved))
				scalarsSub(shortfall, unreserved)
			}
			scalarsSub(headroom, unreserved)
			a.award(offerable, fw, agent, candidate)
		}
	}

	for frameworkID, awarded := range offerable {
		a.offerCallback(frameworkID, awarded)
		a.metrics.AddOffered(len(awarded))
	}
	if len(offerable) > 0 {
		log.Log(log.Allocator).Debug("allocation cycle produced offers",
			zap.Int("frameworks", len(offerable)))
	}
	a.updateMetrics()
}

// eligibleAgents returns active, whitelisted agent ids in a stable order.
func (a *Allocator) eligibleAgents() []string {
	ids := make([]string, 0, len(a.agents))
	for id, agent := range a.agents {
		if !agent.isActive() {
			continue
		}
		if a.whitelist != nil && !a.whitelist.Contains(agent.hostname) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// unsatisfiedQuota computes, per quota'd role, the scalar shortfall between
// the guarantee and what the role already holds.
func (a *Allocator) unsatisfiedQuota() map[string]map[string]float64 {
	missing := make(map[string]map[string]float64)
	for role, q := range a.quotas {
		shortfall := q.Guarantee.ScalarValues()
		scalarsSub(shortfall, a.roleSorter.Allocation(role).ScalarValues())
		if scalarsEmpty(shortfall) {
			continue
		}
		missing[role] = shortfall
	}
	return missing
}

// offerableOnAgent is what the role may take from the agent: the free
// unreserved pool plus anything reserved to the role itself. Resources
// reserved to other roles are never touched.
func (a *Allocator) offerableOnAgent(agent *agentRecord, role string) resources.Resources {
	available := agent.available()
	candidate := available.Unreserved()
	candidate = append(candidate, available.Reserved(role)...)
	return candidate
}

// pickFramework chooses the framework in the role that receives the
// candidate resources: the fairest active framework not blocked by a
// filter. A pending resource request only biases the choice, frameworks
// whose request does not fit the candidate are passed over when a fitting
// one exists further down the fair order.
func (a *Allocator) pickFramework(role, agentID string, candidate resources.Resources, now time.Time) *frameworkRecord {
	fs, ok := a.frameworkSorters[role]
	if !ok {
		return nil
	}
	candidateScalars := candidate.ScalarValues()
	var first *frameworkRecord
	for _, frameworkID := range fs.Sort() {
		fw := a.frameworks[frameworkID]
		if fw == nil || !fw.isActive() {
			continue
		}
		if fw.filtered(agentID, candidate, now) {
			continue
		}
		if first == nil {
			first = fw
		}
		if fw.requested.IsEmpty() || scalarsCover(candidateScalars, fw.requested.ScalarValues()) {
			return fw
		}
	}
	return first
}

func (a *Allocator) award(offerable map[string]map[string]resources.Resources, fw *frameworkRecord, agent *agentRecord, awarded resources.Resources) {
	awarded = awarded.Clone()
	offerID := uuid.NewString()
	offer := &offerRecord{
		offerID:     offerID,
		frameworkID: fw.frameworkID,
		agentID:     agent.agentID,
		resources:   awarded,
	}
	agent.offers[offerID] = offer
	a.offers[offerID] = offer

	a.trackAllocation(fw, agent, awarded)

	if offerable[fw.frameworkID] == nil {
		offerable[fw.frameworkID] = make(map[string]resources.Resources)
	}
	offerable[fw.frameworkID][agent.agentID] = resources.Add(offerable[fw.frameworkID][agent.agentID], awarded)
}

// allocatable enforces the offer floor: tiny slivers of cpu and memory are
// kept back until they amount to something a task could run on.
func allocatable(candidate resources.Resources) bool {
	scalars := candidate.ScalarValues()
	return scalars[resources.CPUs] >= minAllocatableCPUs || scalars[resources.Memory] >= minAllocatableMem
}

// ----------------------------------
// scalar map helpers
// ----------------------------------

func scalarsAdd(target map[string]float64, delta map[string]float64) {
	for name, value := range delta {
		target[name] += value
	}
}

// scalarsSub subtracts delta from target, flooring each entry at zero.
func scalarsSub(target map[string]float64, delta map[string]float64) {
	for name, value := range delta {
		remaining := target[name] - value
		if remaining <= epsilon {
			delete(target, name)
			continue
		}
		target[name] = remaining
	}
}

// scalarsMin returns the entrywise minimum of a and b.
func scalarsMin(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for name, value := range a {
		if other := b[name]; other < value {
			value = other
		}
		if value > epsilon {
			out[name] = value
		}
	}
	return out
}

func scalarsEmpty(m map[string]float64) bool {
	for _, value := range m {
		if value > epsilon {
			return false
		}
	}
	return true
}

// scalarsCover reports whether have satisfies every entry of want.
func scalarsCover(have map[string]float64, want map[string]float64) bool {
	for name, value := range want {
		if value <= epsilon {
			continue
		}
		if have[name]+epsilon < value {
			return false
		}
	}
	return true
}

// scalarsCoverAfter reports whether have still covers want once spent is
// taken out of it.
func scalarsCoverAfter(have map[string]float64, spent map[string]float64, want map[string]float64) bool {
	for name, value := range want {
		if value <= epsilon {
			continue
		}
		if have[name]-spent[name]+epsilon < value {
			return false
		}
	}
	return true
}
