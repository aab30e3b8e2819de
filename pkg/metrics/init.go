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

package metrics

import "sync"

const (
	// Namespace for all metrics exposed by the allocator
	Namespace = "helmsman"
	// AllocatorSubsystem - subsystem name used by the allocation cycle
	AllocatorSubsystem = "allocator"
	// EventSubsystem - subsystem name used by the event queue
	EventSubsystem = "event"
)

var once sync.Once
var m *Metrics

type Metrics struct {
	allocator *AllocatorMetrics
	event     *EventMetrics
}

func init() {
	once.Do(func() {
		m = &Metrics{
			allocator: initAllocatorMetrics(),
			event:     initEventMetrics(),
		}
	})
}

func GetAllocatorMetrics() *AllocatorMetrics {
	return m.allocator
}

func GetEventMetrics() *EventMetrics {
	return m.event
}

// Reset clears every registered metric, used between tests.
func Reset() {
	m.allocator.Reset()
	m.event.Reset()
}
