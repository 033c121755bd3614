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

package metrics

// RuleApplied implements ruletable.Observer.
func (r *Registry) RuleApplied() {
	r.RulesApplied.Inc()
}

// DelayApplied implements ruletable.Observer.
func (r *Registry) DelayApplied(delayMicros float64) {
	r.ObserveDelay(delayMicros)
}

// KernelError implements ruletable.Observer.
func (r *Registry) KernelError() {
	r.KernelErrors.Inc()
}

// DeadlineMissed records a deadline scheduler Missed outcome.
func (r *Registry) DeadlineMissed() {
	r.DeadlinesMissed.Inc()
}

// RestartHandled records a scenario restart.
func (r *Registry) RestartHandled() {
	r.RestartsHandled.Inc()
}
