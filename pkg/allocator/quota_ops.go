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
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/allocator/events"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
	"github.com/helmsman-scheduler/helmsman-core/pkg/quota"
)

var (
	// ErrCapacityExceeded rejects a quota the cluster cannot plausibly
	// satisfy, overridable with force.
	ErrCapacityExceeded = errors.New("total quota guarantees exceed cluster capacity")
	// ErrQuotaUnavailable is returned while quota state is read-only
	// after a registry failure.
	ErrQuotaUnavailable = errors.New("quota store failed, quota state is read-only until operator intervention")
	// ErrNoQuotaSet is returned when removing a quota that does not exist.
	ErrNoQuotaSet = errors.New("no quota set for role")
)

// quotaAppliedEvent resumes a quota mutation inside the allocator
// goroutine once the registry has answered. Never crosses the package
// boundary.
type quotaAppliedEvent struct {
	role          string
	operation     string
	err           error
	resultChannel chan *events.QuotaResult
}

func (a *Allocator) processSetQuotaEvent(event *events.SetQuotaEvent) {
	if a.quotaFault {
		event.ResultChannel <- &events.QuotaResult{Err: ErrQuotaUnavailable}
		return
	}
	if err := quota.Validate(event.Quota); err != nil {
		event.ResultChannel <- &events.QuotaResult{Err: err}
		return
	}
	if !event.Force {
		if err := a.checkQuotaCapacity(event.Quota); err != nil {
			event.ResultChannel <- &events.QuotaResult{Err: err}
			return
		}
	}

	// The local state is updated before the registry answers, quota takes
	// effect right away and rescission happens while the write is in
	// flight. A registry failure afterwards freezes quota state instead
	// of letting memory and store drift apart.
	role := event.Quota.Role
	a.quotas[role] = event.Quota.Clone()
	a.trackRole(role)
	if !a.quotaRoleSorter.Contains(role) {
		a.quotaRoleSorter.Add(role, 1)
		a.quotaRoleSorter.Allocated(role, a.roleSorter.Allocation(role))
	}
	a.rescindOffersFor(event.Quota)
	a.metrics.SetQuotaRoles(len(a.quotas))

	log.Log(log.Quota).Info("set quota",
		zap.String("role", role),
		zap.Stringer("guarantee", event.Quota.Guarantee),
		zap.Bool("force", event.Force))
	a.applyToRegistry(role, quota.SetQuota{Quota: event.Quota}, event.ResultChannel)
}

func (a *Allocator) processRemoveQuotaEvent(event *events.RemoveQuotaEvent) {
	if a.quotaFault {
		event.ResultChannel <- &events.QuotaResult{Err: ErrQuotaUnavailable}
		return
	}
	if _, ok := a.quotas[event.Role]; !ok {
		event.ResultChannel <- &events.QuotaResult{Err: fmt.Errorf("%w: %q", ErrNoQuotaSet, event.Role)}
		return
	}

	delete(a.quotas, event.Role)
	a.quotaRoleSorter.Remove(event.Role)
	a.untrackRole(event.Role)
	a.metrics.SetQuotaRoles(len(a.quotas))

	log.Log(log.Quota).Info("removed quota",
		zap.String("role", event.Role))
	a.applyToRegistry(event.Role, quota.RemoveQuota{Role: event.Role}, event.ResultChannel)
}

func (a *Allocator) processGetQuotasEvent(event *events.GetQuotasEvent) {
	out := make([]quota.QuotaInfo, 0, len(a.quotas))
	for _, q := range a.quotas {
		out = append(out, q.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	event.ResultChannel <- out
}

// applyToRegistry dispatches the registry write and arranges for the
// continuation event. The actor keeps processing other messages while the
// write is outstanding.
func (a *Allocator) applyToRegistry(role string, op quota.Operation, result chan *events.QuotaResult) {
	done := a.registry.Apply(op)
	name := op.Name()
	go func() {
		a.enqueue(&quotaAppliedEvent{
			role:          role,
			operation:     name,
			err:           <-done,
			resultChannel: result,
		})
	}()
}

func (a *Allocator) processQuotaAppliedEvent(event *quotaAppliedEvent) {
	if event.err != nil {
		a.quotaFault = true
		log.Log(log.Quota).Error("registry rejected quota operation, freezing quota state",
			zap.String("role", event.role),
			zap.String("operation", event.operation),
			zap.Error(event.err))
		event.resultChannel <- &events.QuotaResult{
			Err: fmt.Errorf("%w: %v", ErrQuotaUnavailable, event.err),
		}
		return
	}
	event.resultChannel <- &events.QuotaResult{}
	a.allocationNeeded = true
}

// checkQuotaCapacity is the admission heuristic: the sum of every
// guarantee, with the new one in place, must fit in the cluster's
// non-statically-reserved resources on active agents. It deliberately
// ignores fragmentation across agents, an exact feasibility check would be
// a bin-packing problem this path has no business solving.
func (a *Allocator) checkQuotaCapacity(q quota.QuotaInfo) error {
	required := make(map[string]float64)
	for role, existing := range a.quotas {
		if role == q.Role {
			continue
		}
		scalarsAdd(required, existing.Guarantee.ScalarValues())
	}
	scalarsAdd(required, q.Guarantee.ScalarValues())

	capacity := make(map[string]float64)
	for _, agent := range a.agents {
		if !agent.isActive() {
			continue
		}
		for _, r := range agent.total {
			if r.IsStaticallyReserved() {
				continue
			}
			if r.Type == resources.Scalar {
				capacity[r.Name] += r.Scalar
			}
		}
		// cheap early exit once enough capacity is seen
		if scalarsCover(capacity, required) {
			return nil
		}
	}
	if scalarsCover(capacity, required) {
		return nil
	}
	return fmt.Errorf("%w: role %q", ErrCapacityExceeded, q.Role)
}

// rescindOffersFor withdraws outstanding offers so the next cycle can
// satisfy a fresh guarantee without waiting for frameworks to decline
// naturally. Rescission is greedy agent by agent and stops once the
// reclaimed resources cover the guarantee and at least as many agents were
// visited as the role has frameworks, spreading the pain across offer
// holders.
func (a *Allocator) rescindOffersFor(q quota.QuotaInfo) {
	frameworksInRole := 1
	if members, ok := a.roles[q.Role]; ok && members.Cardinality() > 0 {
		frameworksInRole = members.Cardinality()
	}

	guarantee := q.Guarantee.ScalarValues()
	rescinded := make(map[string]float64)
	visited := 0

	agentIDs := make([]string, 0, len(a.agents))
	for id := range a.agents {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	for _, agentID := range agentIDs {
		agent := a.agents[agentID]
		if len(agent.offers) == 0 {
			continue
		}
		for offerID, offer := range agent.offers {
			scalarsAdd(rescinded, offer.resources.ScalarValues())
			a.rescindOffer(offerID, offer)
		}
		visited++
		if scalarsCover(rescinded, guarantee) && visited >= frameworksInRole {
			break
		}
	}
	if visited > 0 {
		a.allocationNeeded = true
	}
}

// rescindOffer withdraws one offer, returning its resources to the free
// pool and notifying the master.
func (a *Allocator) rescindOffer(offerID string, offer *offerRecord) {
	delete(a.offers, offerID)
	if agent, ok := a.agents[offer.agentID]; ok {
		delete(agent.offers, offerID)
		agent.allocated = resources.Sub(agent.allocated, offer.resources)
	}
	if fw, ok := a.frameworks[offer.frameworkID]; ok {
		remaining := resources.Sub(fw.used[offer.agentID], offer.resources)
		if remaining.IsEmpty() {
			delete(fw.used, offer.agentID)
		} else {
			fw.used[offer.agentID] = remaining
		}
		a.untrackRoleAllocation(fw.role, offer.resources)
		a.frameworkSorters[fw.role].Unallocated(fw.frameworkID, offer.resources)
	}
	a.rescindCallback(offer.frameworkID, offer.agentID, offerID)
	a.metrics.IncRescinded()
}
