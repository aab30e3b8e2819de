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
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/common/resources"
	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

const btreeDegree = 8

// drfClient is the sortable snapshot of an active client. Ordering is by
// ascending dominant share, ties broken by ascending allocation count then
// lexicographic name, which keeps the order deterministic and prevents a
// tied client from being starved behind a fixed neighbour.
type drfClient struct {
	name        string
	share       float64
	allocations int
}

var _ btree.Item = (*drfClient)(nil)

func (c *drfClient) Less(than btree.Item) bool {
	other := than.(*drfClient)
	if c.share != other.share {
		return c.share < other.share
	}
	if c.allocations != other.allocations {
		return c.allocations < other.allocations
	}
	return c.name < other.name
}

// DRFSorter orders clients by Dominant Resource Fairness: the share of a
// client is its highest per-resource usage ratio against the total pool,
// divided by its weight. Only scalar resources contribute to the share.
type DRFSorter struct {
	// active clients ordered for allocation precedence
	clients *btree.BTree
	// entry per active client, to find and reposition tree items
	active map[string]*drfClient
	// full history, retained across deactivation
	allocations map[string]resources.Resources
	counts      map[string]int
	weights     map[string]float64

	total resources.Resources

	// A total-pool change invalidates every share at once; recomputation
	// is deferred until Sort instead of rippling through on each change.
	dirty bool
}

var _ Sorter = (*DRFSorter)(nil)

func NewDRFSorter() *DRFSorter {
	return &DRFSorter{
		clients:     btree.New(btreeDegree),
		active:      make(map[string]*drfClient),
		allocations: make(map[string]resources.Resources),
		counts:      make(map[string]int),
		weights:     make(map[string]float64),
	}
}

func (d *DRFSorter) Add(client string, weight float64) {
	if weight <= 0 {
		weight = 1
	}
	if _, ok := d.allocations[client]; !ok {
		d.allocations[client] = resources.Resources{}
		d.counts[client] = 0
	}
	d.weights[client] = weight
	d.insert(client)
}

func (d *DRFSorter) Remove(client string) {
	d.evict(client)
	delete(d.allocations, client)
	delete(d.counts, client)
	delete(d.weights, client)
}

func (d *DRFSorter) Activate(client string) {
	if _, ok := d.allocations[client]; !ok {
		return
	}
	d.insert(client)
}

func (d *DRFSorter) Deactivate(client string) {
	// the allocation history stays behind on purpose
	d.evict(client)
}

func (d *DRFSorter) Allocated(client string, delta resources.Resources) {
	if _, ok := d.allocations[client]; !ok {
		return
	}
	d.allocations[client] = resources.Add(d.allocations[client], delta)
	d.counts[client]++

	// If the total pool changed we are going to recalculate all the
	// shares at the next Sort anyway, no point repositioning now.
	if !d.dirty {
		d.reposition(client)
	} else if entry, ok := d.active[client]; ok {
		entry.allocations = d.counts[client]
	}
}

func (d *DRFSorter) Unallocated(client string, delta resources.Resources) {
	if _, ok := d.allocations[client]; !ok {
		return
	}
	d.allocations[client] = resources.Sub(d.allocations[client], delta)
	if !d.dirty {
		d.reposition(client)
	}
}

func (d *DRFSorter) Allocation(client string) resources.Resources {
	return d.allocations[client].Clone()
}

func (d *DRFSorter) AddTotal(delta resources.Resources) {
	d.total = resources.Add(d.total, delta)
	d.dirty = true
}

func (d *DRFSorter) RemoveTotal(delta resources.Resources) {
	d.total = resources.Sub(d.total, delta)
	d.dirty = true
}

// Sort returns the active clients ascending by dominant share. Shares are
// guaranteed up to date whenever Sort returns: a pending total-pool change
// triggers a full recalculation here.
func (d *DRFSorter) Sort() []string {
	if d.dirty {
		rebuilt := btree.New(btreeDegree)
		for name, entry := range d.active {
			entry.share = d.calculateShare(name)
			entry.allocations = d.counts[name]
			rebuilt.ReplaceOrInsert(entry)
		}
		d.clients = rebuilt
		d.dirty = false
		log.Log(log.Sorter).Debug("recalculated shares after pool change",
			zap.Int("clients", len(d.active)))
	}

	out := make([]string, 0, d.clients.Len())
	d.clients.Ascend(func(item btree.Item) bool {
		out = append(out, item.(*drfClient).name)
		return true
	})
	return out
}

func (d *DRFSorter) Contains(client string) bool {
	_, ok := d.allocations[client]
	return ok
}

func (d *DRFSorter) Count() int {
	return len(d.allocations)
}

// TotalResources returns a copy of the pool shares are calculated against.
func (d *DRFSorter) TotalResources() resources.Resources {
	return d.total.Clone()
}

func (d *DRFSorter) insert(client string) {
	if _, ok := d.active[client]; ok {
		return
	}
	entry := &drfClient{
		name:        client,
		share:       d.calculateShare(client),
		allocations: d.counts[client],
	}
	d.active[client] = entry
	d.clients.ReplaceOrInsert(entry)
}

func (d *DRFSorter) evict(client string) {
	entry, ok := d.active[client]
	if !ok {
		return
	}
	d.clients.Delete(entry)
	delete(d.active, client)
}

// reposition removes and reinserts the client's tree entry so the ordering
// reflects its recalculated share.
func (d *DRFSorter) reposition(client string) {
	entry, ok := d.active[client]
	if !ok {
		return
	}
	d.clients.Delete(entry)
	entry.share = d.calculateShare(client)
	entry.allocations = d.counts[client]
	d.clients.ReplaceOrInsert(entry)
}

// calculateShare computes the client's dominant share: the maximum over all
// scalar resources of allocated/total, weighted. Resources with a zero total
// contribute nothing. Ranges and sets are not part of the share calculation.
func (d *DRFSorter) calculateShare(client string) float64 {
	totals := d.total.ScalarValues()
	allocated := d.allocations[client].ScalarValues()

	share := 0.0
	for name, total := range totals {
		if total <= 0 {
			continue
		}
		if value := allocated[name] / total; value > share {
			share = value
		}
	}

	weight := d.weights[client]
	if weight <= 0 {
		weight = 1
	}
	return share / weight
}
