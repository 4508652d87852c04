/*
Copyright 2022 The Katalyst Authors.

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

package katalyst_base

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/atomic"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	syncPeriod              = 30 * time.Second
	MetricNameUnhealthyRule = "unhealthy_healthz_check_rule"
)

// HealthzChecker periodically reports failed readiness rules as metrics.
type HealthzChecker struct {
	// unhealthyRules counts the rules that failed the last sync
	unhealthyRules *atomic.Int32
	emitter        metrics.MetricEmitter
}

func NewHealthzChecker(emitter metrics.MetricEmitter) *HealthzChecker {
	return &HealthzChecker{
		unhealthyRules: atomic.NewInt32(0),
		emitter:        emitter,
	}
}

func (h *HealthzChecker) Run(ctx context.Context) {
	go wait.Until(func() {
		h.sync()
	}, syncPeriod, ctx.Done())
}

func (h *HealthzChecker) sync() {
	var unhealthy int32
	for key, result := range general.GetRegisterReadinessCheckResult() {
		if !result.Ready {
			unhealthy++
			general.Warningf("healthz rule %s is not ready: %s", key, result.Message)
			_ = h.emitter.StoreInt64(MetricNameUnhealthyRule, 1, metrics.MetricTypeNameRaw,
				metrics.MetricTag{Key: "rule", Val: string(key)})
		}
	}
	h.unhealthyRules.Store(unhealthy)
}

// UnhealthyRules returns the number of rules that failed the last sync.
func (h *HealthzChecker) UnhealthyRules() int32 {
	return h.unhealthyRules.Load()
}

// CheckHealthy returns whether the component is healthy.
func (h *HealthzChecker) CheckHealthy() (bool, string) {
	results := general.GetRegisterReadinessCheckResult()
	healthy := true
	for _, result := range results {
		if !result.Ready {
			healthy = false
		}
	}

	resultBytes, err := json.Marshal(results)
	if err != nil {
		general.Errorf("marshal healthz content failed,err:%v", err)
	}

	return healthy, string(resultBytes)
}
