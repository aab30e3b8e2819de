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
	"reflect"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/allocator/events"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/configs"
	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
	"github.com/helmsman-scheduler/helmsman-core/pkg/metrics"
	"github.com/helmsman-scheduler/helmsman-core/pkg/quota"
	"github.com/helmsman-scheduler/helmsman-core/pkg/sorter"
)

// mailbox depth above which backlog warnings start, throttled so a
// congested mailbox does not emit one warning per event
const backlogWarningThreshold = 10000

var backlogLog = log.RateLimitedLog(log.Allocator, time.Minute)

// OfferCallback receives one offer batch per framework per allocation
// cycle, resources keyed by agent. Invoked from the allocator goroutine,
// implementations must not call back into the allocator synchronously.
type OfferCallback func(frameworkID string, offered map[string]resources.Resources)

// RescindCallback notifies the surrounding master that an outstanding
// offer has been withdrawn.
type RescindCallback func(frameworkID, agentID, offerID string)

// Allocator owns all allocation state. It is a single-threaded actor:
// every mutation arrives as an event on the mailbox and is executed by the
// one goroutine started in Start, so no field below needs a lock.
type Allocator struct {
	conf            *configs.AllocatorConfig
	registry        quota.Registry
	offerCallback   OfferCallback
	rescindCallback RescindCallback

	pendingEvents chan interface{}
	stopped       chan struct{}

	agents     map[string]*agentRecord
	frameworks map[string]*frameworkRecord
	// frameworks per role
	roles map[string]mapset.Set[string]
	// outstanding offers by id, also indexed per agent
	offers map[string]*offerRecord

	quotas map[string]quota.QuotaInfo
	// set when a registry apply fails, quota state is read-only from
	// then on until operator intervention
	quotaFault bool

	clusterTotal     resources.Resources
	roleSorter       sorter.Sorter
	quotaRoleSorter  sorter.Sorter
	frameworkSorters map[string]sorter.Sorter

	// nil means every host is eligible
	whitelist mapset.Set[string]

	allocationNeeded bool

	clock func() time.Time

	metrics      *metrics.AllocatorMetrics
	eventMetrics *metrics.EventMetrics
}

// NewAllocator builds an allocator and recovers the persisted quota state
// from the registry. Start must be called before events are consumed.
func NewAllocator(conf *configs.AllocatorConfig, registry quota.Registry, offerCallback OfferCallback, rescindCallback RescindCallback) (*Allocator, error) {
	a := &Allocator{
		conf:             conf,
		registry:         registry,
		offerCallback:    offerCallback,
		rescindCallback:  rescindCallback,
		pendingEvents:    make(chan interface{}, 1024*1024),
		stopped:          make(chan struct{}),
		agents:           make(map[string]*agentRecord),
		frameworks:       make(map[string]*frameworkRecord),
		roles:            make(map[string]mapset.Set[string]),
		offers:           make(map[string]*offerRecord),
		quotas:           make(map[string]quota.QuotaInfo),
		roleSorter:       sorter.NewDRFSorter(),
		quotaRoleSorter:  sorter.NewDRFSorter(),
		frameworkSorters: make(map[string]sorter.Sorter),
		clock:            time.Now,
		metrics:          metrics.GetAllocatorMetrics(),
		eventMetrics:     metrics.GetEventMetrics(),
	}

	recovered, err := registry.Recover()
	if err != nil {
		return nil, err
	}
	for _, q := range recovered {
		a.quotas[q.Role] = q.Clone()
		a.trackRole(q.Role)
		a.quotaRoleSorter.Add(q.Role, 1)
	}
	a.metrics.SetQuotaRoles(len(a.quotas))
	return a, nil
}

// Start launches the event loop.
func (a *Allocator) Start() {
	go a.handleAllocatorEvent()
}

func (a *Allocator) Stop() {
	close(a.stopped)
}

func (a *Allocator) handleAllocatorEvent() {
	ticker := time.NewTicker(a.conf.AllocationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopped:
			return
		case ev := <-a.pendingEvents:
			a.dispatch(ev)
			a.eventMetrics.SetQueued(len(a.pendingEvents))
			// a burst of mutations triggers one cycle, not one per event
			if a.conf.CoalesceAllocations && len(a.pendingEvents) > 0 {
				continue
			}
			a.allocateIfNeeded()
		case <-ticker.C:
			a.allocationNeeded = true
			a.allocateIfNeeded()
		}
	}
}

func (a *Allocator) dispatch(ev interface{}) {
	a.eventMetrics.IncDispatched(reflect.TypeOf(ev).String())
	switch v := ev.(type) {
	case *events.AddFrameworkEvent:
		a.processAddFrameworkEvent(v)
	case *events.RemoveFrameworkEvent:
		a.processRemoveFrameworkEvent(v)
	case *events.ActivateFrameworkEvent:
		a.processActivateFrameworkEvent(v)
	case *events.DeactivateFrameworkEvent:
		a.processDeactivateFrameworkEvent(v)
	case *events.AddAgentEvent:
		a.processAddAgentEvent(v)
	case *events.RemoveAgentEvent:
		a.processRemoveAgentEvent(v)
	case *events.ActivateAgentEvent:
		a.processActivateAgentEvent(v)
	case *events.DeactivateAgentEvent:
		a.processDeactivateAgentEvent(v)
	case *events.UpdateWhitelistEvent:
		a.processUpdateWhitelistEvent(v)
	case *events.RequestResourcesEvent:
		a.processRequestResourcesEvent(v)
	case *events.RecoverResourcesEvent:
		a.processRecoverResourcesEvent(v)
	case *events.ReviveOffersEvent:
		a.processReviveOffersEvent(v)
	case *events.SetQuotaEvent:
		a.processSetQuotaEvent(v)
	case *events.RemoveQuotaEvent:
		a.processRemoveQuotaEvent(v)
	case *events.GetQuotasEvent:
		a.processGetQuotasEvent(v)
	case *quotaAppliedEvent:
		a.processQuotaAppliedEvent(v)
	default:
		log.Log(log.Allocator).Error("received unexpected event",
			zap.String("eventType", reflect.TypeOf(ev).String()))
	}
}

func (a *Allocator) enqueue(ev interface{}) {
	select {
	case a.pendingEvents <- ev:
		queued := len(a.pendingEvents)
		a.eventMetrics.SetQueued(queued)
		if queued > backlogWarningThreshold {
			backlogLog.Warn("allocator mailbox is backing up",
				zap.Int("queued", queued))
		}
	default:
		log.Log(log.Allocator).DPanic("failed to enqueue event, mailbox full",
			zap.String("eventType", reflect.TypeOf(ev).String()))
	}
}

// ----------------------------------
// public, asynchronous API
// ----------------------------------

func (a *Allocator) AddFramework(framework events.FrameworkInfo, active bool, used map[string]resources.Resources) {
	a.enqueue(&events.AddFrameworkEvent{Framework: framework, Active: active, Used: used})
}

func (a *Allocator) RemoveFramework(frameworkID string) {
	a.enqueue(&events.RemoveFrameworkEvent{FrameworkID: frameworkID})
}

func (a *Allocator) ActivateFramework(frameworkID string) {
	a.enqueue(&events.ActivateFrameworkEvent{FrameworkID: frameworkID})
}

func (a *Allocator) DeactivateFramework(frameworkID string) {
	a.enqueue(&events.DeactivateFrameworkEvent{FrameworkID: frameworkID})
}

func (a *Allocator) AddAgent(agentID, hostname string, total resources.Resources, used map[string]resources.Resources) {
	a.enqueue(&events.AddAgentEvent{AgentID: agentID, Hostname: hostname, Total: total, Used: used})
}

func (a *Allocator) RemoveAgent(agentID string) {
	a.enqueue(&events.RemoveAgentEvent{AgentID: agentID})
}

func (a *Allocator) ActivateAgent(agentID string) {
	a.enqueue(&events.ActivateAgentEvent{AgentID: agentID})
}

func (a *Allocator) DeactivateAgent(agentID string) {
	a.enqueue(&events.DeactivateAgentEvent{AgentID: agentID})
}

// UpdateWhitelist implements configs.WhitelistUpdater.
func (a *Allocator) UpdateWhitelist(hosts mapset.Set[string]) {
	a.enqueue(&events.UpdateWhitelistEvent{Hosts: hosts})
}

func (a *Allocator) RequestResources(frameworkID string, requests resources.Resources) {
	a.enqueue(&events.RequestResourcesEvent{FrameworkID: frameworkID, Requests: requests})
}

func (a *Allocator) RecoverResources(frameworkID, agentID string, recovered resources.Resources, filter *events.OfferFilter) {
	a.enqueue(&events.RecoverResourcesEvent{FrameworkID: frameworkID, AgentID: agentID, Recovered: recovered, Filter: filter})
}

func (a *Allocator) ReviveOffers(frameworkID string) {
	a.enqueue(&events.ReviveOffersEvent{FrameworkID: frameworkID})
}

// SetQuota stores a quota guarantee. The result arrives once the registry
// has accepted or rejected the operation.
func (a *Allocator) SetQuota(q quota.QuotaInfo, force bool) <-chan *events.QuotaResult {
	result := make(chan *events.QuotaResult, 1)
	a.enqueue(&events.SetQuotaEvent{Quota: q, Force: force, ResultChannel: result})
	return result
}

func (a *Allocator) RemoveQuota(role string) <-chan *events.QuotaResult {
	result := make(chan *events.QuotaResult, 1)
	a.enqueue(&events.RemoveQuotaEvent{Role: role, ResultChannel: result})
	return result
}

func (a *Allocator) GetQuotas() <-chan []quota.QuotaInfo {
	result := make(chan []quota.QuotaInfo, 1)
	a.enqueue(&events.GetQuotasEvent{ResultChannel: result})
	return result
}

// ----------------------------------
// event processing
// ----------------------------------

func (a *Allocator) processAddFrameworkEvent(event *events.AddFrameworkEvent) {
	info := event.Framework
	if info.FrameworkID == "" || info.Role == "" {
		log.Log(log.Allocator).Error("rejected framework registration without id or role",
			zap.String("frameworkID", info.FrameworkID))
		return
	}
	if _, ok := a.frameworks[info.FrameworkID]; ok {
		// idempotent add
		return
	}

	fw := newFrameworkRecord(info.FrameworkID, info.Role, info.Weight, event.Active)
	a.frameworks[info.FrameworkID] = fw
	a.trackRole(info.Role)
	a.roles[info.Role].Add(info.FrameworkID)

	fs := a.frameworkSorters[info.Role]
	fs.Add(info.FrameworkID, fw.weight)
	if !event.Active {
		fs.Deactivate(info.FrameworkID)
	}

	// account allocations that survived a failover
	for agentID, used := range event.Used {
		agent, ok := a.agents[agentID]
		if !ok || used.IsEmpty() {
			continue
		}
		a.trackAllocation(fw, agent, used)
	}

	log.Log(log.Allocator).Info("added framework",
		zap.String("frameworkID", info.FrameworkID),
		zap.String("role", info.Role),
		zap.Bool("active", event.Active))
	a.allocationNeeded = true
}

func (a *Allocator) processRemoveFrameworkEvent(event *events.RemoveFrameworkEvent) {
	fw, ok := a.frameworks[event.FrameworkID]
	if !ok {
		return
	}

	// drop outstanding offers silently, the framework is going away
	for offerID, offer := range a.offers {
		if offer.frameworkID != fw.frameworkID {
			continue
		}
		delete(a.offers, offerID)
		if agent, ok := a.agents[offer.agentID]; ok {
			delete(agent.offers, offerID)
		}
	}

	// release everything still accounted to the framework
	for agentID, used := range fw.used {
		if agent, ok := a.agents[agentID]; ok {
			agent.allocated = resources.Sub(agent.allocated, used)
		}
		a.untrackRoleAllocation(fw.role, used)
	}

	a.frameworkSorters[fw.role].Remove(fw.frameworkID)
	a.roles[fw.role].Remove(fw.frameworkID)
	delete(a.frameworks, fw.frameworkID)
	fw.handle(RemoveEntity)
	a.untrackRole(fw.role)

	log.Log(log.Allocator).Info("removed framework",
		zap.String("frameworkID", event.FrameworkID))
	a.allocationNeeded = true
}

func (a *Allocator) processActivateFrameworkEvent(event *events.ActivateFrameworkEvent) {
	fw, ok := a.frameworks[event.FrameworkID]
	if !ok {
		return
	}
	fw.handle(ActivateEntity)
	a.frameworkSorters[fw.role].Activate(fw.frameworkID)
	a.allocationNeeded = true
}

func (a *Allocator) processDeactivateFrameworkEvent(event *events.DeactivateFrameworkEvent) {
	fw, ok := a.frameworks[event.FrameworkID]
	if !ok {
		return
	}
	fw.handle(DeactivateEntity)
	a.frameworkSorters[fw.role].Deactivate(fw.frameworkID)
	// filters only make sense while offers flow
	fw.clearFilters()
}

func (a *Allocator) processAddAgentEvent(event *events.AddAgentEvent) {
	if event.AgentID == "" {
		return
	}
	if _, ok := a.agents[event.AgentID]; ok {
		return
	}
	if err := event.Total.Validate(); err != nil {
		log.Log(log.Allocator).Error("rejected agent with invalid resources",
			zap.String("agentID", event.AgentID),
			zap.Error(err))
		return
	}

	agent := newAgentRecord(event.AgentID, event.Hostname, event.Total, true)
	a.agents[event.AgentID] = agent

	a.clusterTotal = resources.Add(a.clusterTotal, agent.total)
	a.roleSorter.AddTotal(agent.total)
	a.quotaRoleSorter.AddTotal(agent.total)
	for _, fs := range a.frameworkSorters {
		fs.AddTotal(agent.total)
	}

	// tasks already running on the agent count before the first cycle
	for frameworkID, used := range event.Used {
		if used.IsEmpty() {
			continue
		}
		if fw, ok := a.frameworks[frameworkID]; ok {
			a.trackAllocation(fw, agent, used)
		}
	}

	log.Log(log.Allocator).Info("added agent",
		zap.String("agentID", event.AgentID),
		zap.String("hostname", event.Hostname),
		zap.Stringer("total", agent.total))
	a.allocationNeeded = true
}

func (a *Allocator) processRemoveAgentEvent(event *events.RemoveAgentEvent) {
	agent, ok := a.agents[event.AgentID]
	if !ok {
		return
	}

	// outstanding offers on the agent are gone with it
	for offerID, offer := range agent.offers {
		delete(a.offers, offerID)
		a.rescindCallback(offer.frameworkID, offer.agentID, offerID)
		a.metrics.IncRescinded()
	}

	for frameworkID, fw := range a.frameworks {
		used, ok := fw.used[event.AgentID]
		if !ok {
			continue
		}
		delete(fw.used, event.AgentID)
		a.untrackRoleAllocation(fw.role, used)
		a.frameworkSorters[fw.role].Unallocated(frameworkID, used)
	}

	a.clusterTotal = resources.Sub(a.clusterTotal, agent.total)
	a.roleSorter.RemoveTotal(agent.total)
	a.quotaRoleSorter.RemoveTotal(agent.total)
	for _, fs := range a.frameworkSorters {
		fs.RemoveTotal(agent.total)
	}

	delete(a.agents, event.AgentID)
	agent.handle(RemoveEntity)

	log.Log(log.Allocator).Info("removed agent",
		zap.String("agentID", event.AgentID))
	a.allocationNeeded = true
}

func (a *Allocator) processActivateAgentEvent(event *events.ActivateAgentEvent) {
	if agent, ok := a.agents[event.AgentID]; ok {
		agent.handle(ActivateEntity)
		a.allocationNeeded = true
	}
}

func (a *Allocator) processDeactivateAgentEvent(event *events.DeactivateAgentEvent) {
	if agent, ok := a.agents[event.AgentID]; ok {
		agent.handle(DeactivateEntity)
	}
}

func (a *Allocator) processUpdateWhitelistEvent(event *events.UpdateWhitelistEvent) {
	a.whitelist = event.Hosts
	if event.Hosts == nil {
		log.Log(log.Allocator).Info("cleared agent whitelist")
	} else {
		log.Log(log.Allocator).Info("updated agent whitelist",
			zap.Int("hosts", event.Hosts.Cardinality()))
	}
	a.allocationNeeded = true
}

func (a *Allocator) processRequestResourcesEvent(event *events.RequestResourcesEvent) {
	fw, ok := a.frameworks[event.FrameworkID]
	if !ok {
		return
	}
	fw.requested = event.Requests.Clone()
	a.allocationNeeded = true
}

func (a *Allocator) processRecoverResourcesEvent(event *events.RecoverResourcesEvent) {
	fw := a.frameworks[event.FrameworkID]
	if fw == nil || event.Recovered.IsEmpty() {
		return
	}

	// only what the framework actually holds on the agent comes back,
	// recovering the same resources twice is a no-op the second time
	held := fw.used[event.AgentID]
	remaining := resources.Sub(held, event.Recovered)
	recovered := resources.Sub(held, remaining)
	if recovered.IsEmpty() {
		return
	}

	if remaining.IsEmpty() {
		delete(fw.used, event.AgentID)
	} else {
		fw.used[event.AgentID] = remaining
	}
	a.untrackRoleAllocation(fw.role, recovered)
	a.frameworkSorters[fw.role].Unallocated(fw.frameworkID, recovered)

	agent := a.agents[event.AgentID]
	if agent != nil {
		agent.allocated = resources.Sub(agent.allocated, recovered)
		// the framework's outstanding offers on the agent shrink by the
		// recovered amount, a later rescission may only return what is
		// still on offer
		outstanding := recovered
		for offerID, offer := range agent.offers {
			if offer.frameworkID != fw.frameworkID || outstanding.IsEmpty() {
				continue
			}
			kept := resources.Sub(offer.resources, outstanding)
			outstanding = resources.Sub(outstanding, resources.Sub(offer.resources, kept))
			if kept.IsEmpty() {
				delete(agent.offers, offerID)
				delete(a.offers, offerID)
			} else {
				offer.resources = kept
			}
		}
	}

	if event.Filter != nil {
		timeout := event.Filter.Timeout
		if timeout == 0 {
			timeout = a.conf.DefaultFilterDuration
		}
		if timeout > 0 {
			fw.addFilter(event.AgentID, recovered, a.clock().Add(timeout))
		}
	}
	a.allocationNeeded = true
}

func (a *Allocator) processReviveOffersEvent(event *events.ReviveOffersEvent) {
	fw, ok := a.frameworks[event.FrameworkID]
	if !ok {
		return
	}
	fw.clearFilters()
	a.allocationNeeded = true
}

// ----------------------------------
// shared bookkeeping
// ----------------------------------

// trackRole makes sure the role participates in sorting. A fresh framework
// sorter starts with the current cluster pool so its shares line up with
// the established roles.
func (a *Allocator) trackRole(role string) {
	if a.roles[role] == nil {
		a.roles[role] = mapset.NewSet[string]()
	}
	if !a.roleSorter.Contains(role) {
		a.roleSorter.Add(role, 1)
	}
	if _, ok := a.frameworkSorters[role]; !ok {
		fs := sorter.NewDRFSorter()
		fs.AddTotal(a.clusterTotal)
		a.frameworkSorters[role] = fs
	}
}

// untrackRole forgets a role once nothing references it anymore.
func (a *Allocator) untrackRole(role string) {
	if _, hasQuota := a.quotas[role]; hasQuota {
		return
	}
	if frameworks, ok := a.roles[role]; ok && frameworks.Cardinality() > 0 {
		return
	}
	delete(a.roles, role)
	delete(a.frameworkSorters, role)
	a.roleSorter.Remove(role)
}

// trackAllocation accounts resources to a framework and its role across
// every piece of bookkeeping at once.
func (a *Allocator) trackAllocation(fw *frameworkRecord, agent *agentRecord, allocated resources.Resources) {
	agent.allocated = resources.Add(agent.allocated, allocated)
	fw.used[agent.agentID] = resources.Add(fw.used[agent.agentID], allocated)
	a.roleSorter.Allocated(fw.role, allocated)
	a.frameworkSorters[fw.role].Allocated(fw.frameworkID, allocated)
	if _, hasQuota := a.quotas[fw.role]; hasQuota {
		a.quotaRoleSorter.Allocated(fw.role, allocated)
	}
}

func (a *Allocator) untrackRoleAllocation(role string, released resources.Resources) {
	a.roleSorter.Unallocated(role, released)
	if _, hasQuota := a.quotas[role]; hasQuota {
		a.quotaRoleSorter.Unallocated(role, released)
	}
}

func (a *Allocator) updateMetrics() {
	for name, value := range a.clusterTotal.ScalarValues() {
		a.metrics.SetResourceTotal(name, value)
	}
	allocated := resources.Resources{}
	activeAgents := 0
	for _, agent := range a.agents {
		allocated = resources.Add(allocated, agent.allocated)
		if agent.isActive() {
			activeAgents++
		}
	}
	for name, value := range allocated.ScalarValues() {
		a.metrics.SetResourceAllocated(name, value)
	}
	a.metrics.SetRegisteredAgents(len(a.agents))
	a.metrics.SetActiveAgents(activeAgents)
	activeFrameworks := 0
	for _, fw := range a.frameworks {
		if fw.isActive() {
			activeFrameworks++
		}
	}
	a.metrics.SetRegisteredFrameworks(len(a.frameworks))
	a.metrics.SetActiveFrameworks(activeFrameworks)
	a.metrics.SetQuotaRoles(len(a.quotas))
}
