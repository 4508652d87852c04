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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatCheck(t *testing.T) {
	t.Parallel()

	testCheckName := "testHeartBeatCheck"
	RegisterHeartbeatCheck(testCheckName, 200*time.Millisecond, HealthzCheckStateReady)

	results := GetRegisterReadinessCheckResult()
	status, ok := results[HealthzCheckName(testCheckName)]
	assert.True(t, ok)
	assert.True(t, status.Ready)

	// timeout
	time.Sleep(300 * time.Millisecond)
	status = GetRegisterReadinessCheckResult()[HealthzCheckName(testCheckName)]
	assert.False(t, status.Ready)

	// updated with error
	assert.NoError(t, UpdateHealthzStateByError(testCheckName, fmt.Errorf("error")))
	status = GetRegisterReadinessCheckResult()[HealthzCheckName(testCheckName)]
	assert.False(t, status.Ready)
	assert.Equal(t, "error", status.Message)

	// recover
	assert.NoError(t, UpdateHealthzStateByError(testCheckName, nil))
	status = GetRegisterReadinessCheckResult()[HealthzCheckName(testCheckName)]
	assert.True(t, status.Ready)

	UnregisterHeartbeatCheck(testCheckName)
	_, ok = GetRegisterReadinessCheckResult()[HealthzCheckName(testCheckName)]
	assert.False(t, ok)

	assert.Error(t, UpdateHealthzState(testCheckName, HealthzCheckStateReady, ""))
}

func TestHeartbeatCheckWithoutTimeout(t *testing.T) {
	t.Parallel()

	testCheckName := "testNoTimeoutCheck"
	RegisterHeartbeatCheck(testCheckName, 0, HealthzCheckStateNotReady)
	defer UnregisterHeartbeatCheck(testCheckName)

	assert.False(t, GetRegisterReadinessCheckResult()[HealthzCheckName(testCheckName)].Ready)
	assert.NoError(t, UpdateHealthzState(testCheckName, HealthzCheckStateReady, ""))

	time.Sleep(10 * time.Millisecond)
	assert.True(t, GetRegisterReadinessCheckResult()[HealthzCheckName(testCheckName)].Ready)
}
