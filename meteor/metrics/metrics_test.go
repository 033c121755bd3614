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

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface {
	Write(*dto.Metric) error
}) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRuleAppliedIncrementsCounter(t *testing.T) {
	r := NewRegistry()
	r.RuleApplied()
	r.RuleApplied()
	require.Equal(t, float64(2), counterValue(t, r.RulesApplied))
}

func TestObserveDelayFeedsJitterGauge(t *testing.T) {
	r := NewRegistry()
	r.ObserveDelay(10)
	r.ObserveDelay(20)
	r.ObserveDelay(30)

	var m dto.Metric
	require.NoError(t, r.jitterGauge.Write(&m))
	require.Greater(t, m.GetGauge().GetValue(), float64(0))
}

func TestKernelErrorIncrementsCounter(t *testing.T) {
	r := NewRegistry()
	r.KernelError()
	require.Equal(t, float64(1), counterValue(t, r.KernelErrors))
}
