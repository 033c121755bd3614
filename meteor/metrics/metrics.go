/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes a Prometheus /metrics endpoint tracking
// applied rules, missed deadlines, kernel programming errors, and a
// rolling jitter estimate of the delay values actually applied.
package metrics

import (
	"net/http"

	"github.com/eclesh/welford"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/gauge meteor exports.
type Registry struct {
	RulesApplied    prometheus.Counter
	DeadlinesMissed prometheus.Counter
	KernelErrors    prometheus.Counter
	RestartsHandled prometheus.Counter

	delayVariance *welford.Stats
	jitterGauge   prometheus.GaugeFunc

	reg *prometheus.Registry
}

// NewRegistry registers meteor's metrics with a fresh prometheus
// registry and returns the handles used to update them.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	r := &Registry{
		RulesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "meteor_rules_applied_total",
			Help: "Number of RuleTable.Change calls that reached the kernel.",
		}),
		DeadlinesMissed: factory.NewCounter(prometheus.CounterOpts{
			Name: "meteor_deadlines_missed_total",
			Help: "Number of scheduler deadlines that had already passed at entry.",
		}),
		KernelErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "meteor_kernel_errors_total",
			Help: "Number of rtnetlink/tc calls that returned an error.",
		}),
		RestartsHandled: factory.NewCounter(prometheus.CounterOpts{
			Name: "meteor_restarts_total",
			Help: "Number of asynchronous scenario restarts handled.",
		}),
		delayVariance: welford.New(),
		reg:           reg,
	}

	r.jitterGauge = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "meteor_applied_delay_stddev_micros",
		Help: "Rolling standard deviation of delay values applied to peers.",
	}, func() float64 {
		return r.delayVariance.Stddev()
	})

	return r
}

// ObserveDelay feeds an applied delay (in microseconds) into the
// rolling jitter estimate.
func (r *Registry) ObserveDelay(delayMicros float64) {
	r.delayVariance.Add(delayMicros)
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
