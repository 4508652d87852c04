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

package general

import (
	"fmt"
	"sync"
	"time"
)

// HealthzCheckName describes which rule name for this check
type HealthzCheckName string

// HealthzCheckState describes the checking results
type HealthzCheckState string

const (
	HealthzCheckStateReady    HealthzCheckState = "Ready"
	HealthzCheckStateNotReady HealthzCheckState = "NotReady"
	HealthzCheckStateUnknown  HealthzCheckState = "Unknown"
	HealthzCheckStateFailed   HealthzCheckState = "Failed"
)

type healthzCheckStatus struct {
	State          HealthzCheckState
	Message        string
	LastUpdateTime time.Time
	// TimeoutPeriod is the max duration between two updates; zero disables the check.
	TimeoutPeriod time.Duration
}

// HealthzCheckResult is the externally visible result of one rule.
type HealthzCheckResult struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

var (
	healthzCheckMap  = make(map[HealthzCheckName]*healthzCheckStatus)
	healthzCheckLock sync.RWMutex
)

// RegisterHeartbeatCheck registers a rule that is ready only when it is updated
// with a ready state at least once per timeout (if timeout is positive).
func RegisterHeartbeatCheck(name string, timeout time.Duration, initState HealthzCheckState) {
	healthzCheckLock.Lock()
	defer healthzCheckLock.Unlock()

	healthzCheckMap[HealthzCheckName(name)] = &healthzCheckStatus{
		State:          initState,
		LastUpdateTime: time.Now(),
		TimeoutPeriod:  timeout,
	}
}

// UnregisterHeartbeatCheck drops the rule.
func UnregisterHeartbeatCheck(name string) {
	healthzCheckLock.Lock()
	defer healthzCheckLock.Unlock()

	delete(healthzCheckMap, HealthzCheckName(name))
}

func UpdateHealthzState(name string, state HealthzCheckState, message string) error {
	healthzCheckLock.Lock()
	defer healthzCheckLock.Unlock()

	status, ok := healthzCheckMap[HealthzCheckName(name)]
	if !ok {
		return fmt.Errorf("healthz check %v is not registered", name)
	}
	status.State = state
	status.Message = message
	status.LastUpdateTime = time.Now()
	return nil
}

// UpdateHealthzStateByError marks the rule ready on nil and not ready otherwise.
func UpdateHealthzStateByError(name string, err error) error {
	if err != nil {
		return UpdateHealthzState(name, HealthzCheckStateNotReady, err.Error())
	}
	return UpdateHealthzState(name, HealthzCheckStateReady, "")
}

func GetRegisterReadinessCheckResult() map[HealthzCheckName]HealthzCheckResult {
	healthzCheckLock.RLock()
	defer healthzCheckLock.RUnlock()

	now := time.Now()
	results := make(map[HealthzCheckName]HealthzCheckResult, len(healthzCheckMap))
	for name, status := range healthzCheckMap {
		ready := status.State == HealthzCheckStateReady
		message := status.Message
		if ready && status.TimeoutPeriod > 0 && now.Sub(status.LastUpdateTime) > status.TimeoutPeriod {
			ready = false
			message = fmt.Sprintf("no heartbeat since %v", status.LastUpdateTime.Format(time.RFC3339))
		}
		results[name] = HealthzCheckResult{Ready: ready, Message: message}
	}
	return results
}
