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

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

// EventMetrics to declare event queue metrics
type EventMetrics struct {
	dispatched *prometheus.CounterVec
	queued     prometheus.Gauge
}

func initEventMetrics() *EventMetrics {
	e := &EventMetrics{}

	e.dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: EventSubsystem,
			Name:      "dispatched_total",
			Help:      "Total number of events dispatched by the allocator loop, by event type.",
		}, []string{"event"})

	e.queued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: EventSubsystem,
			Name:      "queued",
			Help:      "Number of events waiting in the allocator mailbox.",
		})

	for _, metric := range []prometheus.Collector{e.dispatched, e.queued} {
		if err := prometheus.Register(metric); err != nil {
			log.Log(log.Metrics).Warn("failed to register metrics collector", zap.Error(err))
		}
	}
	return e
}

func (e *EventMetrics) Reset() {
	e.dispatched.Reset()
	e.queued.Set(0)
}

func (e *EventMetrics) IncDispatched(event string) {
	e.dispatched.With(prometheus.Labels{"event": event}).Inc()
}

func (e *EventMetrics) SetQueued(value int) {
	e.queued.Set(float64(value))
}
