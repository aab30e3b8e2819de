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

// Package events holds the messages accepted by the allocator mailbox.
// Every mutation of allocator state travels through one of these, the
// allocator goroutine is the only consumer.
package events

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/quota"
)

// FrameworkInfo describes a framework to the allocator.
type FrameworkInfo struct {
	FrameworkID string
	Role        string
	Weight      float64
}

// AddFrameworkEvent registers a framework. Used carries allocations that
// survived a failover, keyed by agent.
type AddFrameworkEvent struct {
	Framework FrameworkInfo
	Active    bool
	Used      map[string]resources.Resources
}

type RemoveFrameworkEvent struct {
	FrameworkID string
}

// ActivateFrameworkEvent makes a framework eligible for offers again.
type ActivateFrameworkEvent struct {
	FrameworkID string
}

// DeactivateFrameworkEvent stops offers to a framework without forgetting
// its allocations, so its fair share position survives a reconnect.
type DeactivateFrameworkEvent struct {
	FrameworkID string
}

// AddAgentEvent registers an agent with its total pool and any allocations
// already running on it, keyed by framework.
type AddAgentEvent struct {
	AgentID  string
	Hostname string
	Total    resources.Resources
	Used     map[string]resources.Resources
}

type RemoveAgentEvent struct {
	AgentID string
}

type ActivateAgentEvent struct {
	AgentID string
}

type DeactivateAgentEvent struct {
	AgentID string
}

// UpdateWhitelistEvent restricts offers to the named hosts. A nil set
// clears the whitelist.
type UpdateWhitelistEvent struct {
	Hosts mapset.Set[string]
}

// OfferFilter tells the allocator to withhold the declined resources from a
// framework for the timeout. A zero timeout means the configured default.
type OfferFilter struct {
	Timeout time.Duration
}

// RequestResourcesEvent records what a framework is asking for. The current
// allocation strategy treats it as a hint only.
type RequestResourcesEvent struct {
	FrameworkID string
	Requests    resources.Resources
}

// RecoverResourcesEvent returns unused offered resources from a framework.
// Recovering the same offer twice is harmless.
type RecoverResourcesEvent struct {
	FrameworkID string
	AgentID     string
	Recovered   resources.Resources
	Filter      *OfferFilter
}

// ReviveOffersEvent clears all filters for a framework so it immediately
// sees the full pool again.
type ReviveOffersEvent struct {
	FrameworkID string
}

// QuotaResult is the outcome of a quota mutation, delivered once the
// registry has accepted or rejected the operation.
type QuotaResult struct {
	Err error
}

// SetQuotaEvent stores a quota guarantee for a role. Force skips the
// cluster capacity heuristic.
type SetQuotaEvent struct {
	Quota         quota.QuotaInfo
	Force         bool
	ResultChannel chan *QuotaResult
}

type RemoveQuotaEvent struct {
	Role          string
	ResultChannel chan *QuotaResult
}

// GetQuotasEvent reads the current quota list.
type GetQuotasEvent struct {
	ResultChannel chan []quota.QuotaInfo
}
