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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/helmsman-scheduler/helmsman-core/pkg/log"
)

// AllocatorMetrics to declare allocation cycle metrics
type AllocatorMetrics struct {
	allocationRuns    prometheus.Counter
	allocationLatency prometheus.Histogram
	resource          *prometheus.GaugeVec
	agent             *prometheus.GaugeVec
	framework         *prometheus.GaugeVec
	offeredTotal      prometheus.Counter
	rescindedTotal    prometheus.Counter
	quotaRoles        prometheus.Gauge
}

func initAllocatorMetrics() *AllocatorMetrics {
	a := &AllocatorMetrics{}

	a.allocationRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "allocation_run_total",
			Help:      "Total number of allocation cycles run.",
		})

	a.allocationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "allocation_run_latency_seconds",
			Help:      "Latency of a full allocation cycle, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 10, 6),
		})

	a.resource = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "resource",
			Help:      "Cluster resources by name. State includes `total` and `allocated`.",
		}, []string{"resource", "state"})

	a.agent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "agent",
			Help:      "Total number of agents. State of the agent includes `registered` and `active`.",
		}, []string{"state"})

	a.framework = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "framework",
			Help:      "Total number of frameworks. State of the framework includes `registered` and `active`.",
		}, []string{"state"})

	a.offeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "offer_total",
			Help:      "Total number of offers sent to frameworks.",
		})

	a.rescindedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "offer_rescinded_total",
			Help:      "Total number of offers rescinded to satisfy quota.",
		})

	a.quotaRoles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: AllocatorSubsystem,
			Name:      "quota_role_total",
			Help:      "Number of roles with a quota guarantee set.",
		})

	var metricsList = []prometheus.Collector{
		a.allocationRuns,
		a.allocationLatency,
		a.resource,
		a.agent,
		a.framework,
		a.offeredTotal,
		a.rescindedTotal,
		a.quotaRoles,
	}
	for _, metric := range metricsList {
		if err := prometheus.Register(metric); err != nil {
			log.Log(log.Metrics).Warn("failed to register metrics collector", zap.Error(err))
		}
	}
	return a
}

func (a *AllocatorMetrics) Reset() {
	a.resource.Reset()
	a.agent.Reset()
	a.framework.Reset()
}

func SinceInSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func (a *AllocatorMetrics) IncAllocationRun() {
	a.allocationRuns.Inc()
}

func (a *AllocatorMetrics) ObserveAllocationLatency(start time.Time) {
	a.allocationLatency.Observe(SinceInSeconds(start))
}

func (a *AllocatorMetrics) SetResourceTotal(resource string, value float64) {
	a.resource.With(prometheus.Labels{"resource": resource, "state": "total"}).Set(value)
}

func (a *AllocatorMetrics) SetResourceAllocated(resource string, value float64) {
	a.resource.With(prometheus.Labels{"resource": resource, "state": "allocated"}).Set(value)
}

func (a *AllocatorMetrics) SetRegisteredAgents(value int) {
	a.agent.With(prometheus.Labels{"state": "registered"}).Set(float64(value))
}

func (a *AllocatorMetrics) SetActiveAgents(value int) {
	a.agent.With(prometheus.Labels{"state": "active"}).Set(float64(value))
}

func (a *AllocatorMetrics) SetRegisteredFrameworks(value int) {
	a.framework.With(prometheus.Labels{"state": "registered"}).Set(float64(value))
}

func (a *AllocatorMetrics) SetActiveFrameworks(value int) {
	a.framework.With(prometheus.Labels{"state": "active"}).Set(float64(value))
}

func (a *AllocatorMetrics) IncOffered() {
	a.offeredTotal.Inc()
}

func (a *AllocatorMetrics) AddOffered(value int) {
	a.offeredTotal.Add(float64(value))
}

func (a *AllocatorMetrics) IncRescinded() {
	a.rescindedTotal.Inc()
}

func (a *AllocatorMetrics) SetQuotaRoles(value int) {
	a.quotaRoles.Set(float64(value))
}

func (a *AllocatorMetrics) GetAllocationRuns() (int, error) {
	metricDto := &dto.Metric{}
	err := a.allocationRuns.Write(metricDto)
	if err == nil {
		return int(*metricDto.Counter.Value), nil
	}
	return -1, err
}

func (a *AllocatorMetrics) GetOffered() (int, error) {
	metricDto := &dto.Metric{}
	err := a.offeredTotal.Write(metricDto)
	if err == nil {
		return int(*metricDto.Counter.Value), nil
	}
	return -1, err
}
