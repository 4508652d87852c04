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

package actuator

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/platform"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
)

var intervals = Intervals{AfterUp: 500 * time.Millisecond, AfterDown: 2 * time.Second}

func newTestActuator(possible, online int) (*Actuator, *platform.FakePlatform) {
	f := platform.NewFakePlatform(possible, online)
	clk := testingclock.NewFakeClock(time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC))
	return NewActuator(f, possible, intervals, clk, metrics.DummyMetrics{}), f
}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		possible     int
		online       int
		verdict      types.Verdict
		candidate    int
		wantInterval time.Duration
		wantErr      error
		wantOnline   []int
	}{
		{name: "scale up picks the highest offline core", possible: 4, online: 2, verdict: types.VerdictScaleUp,
			wantInterval: intervals.AfterUp, wantOnline: []int{0, 1, 3}},
		{name: "scale up with every core online", possible: 2, online: 2, verdict: types.VerdictScaleUp,
			wantInterval: time.Second, wantErr: ErrNoOfflineCore, wantOnline: []int{0, 1}},
		{name: "scale down the candidate", possible: 4, online: 4, verdict: types.VerdictScaleDown, candidate: 2,
			wantInterval: intervals.AfterDown, wantOnline: []int{0, 1, 3}},
		{name: "scale down refuses the primary core", possible: 4, online: 4, verdict: types.VerdictScaleDown, candidate: 0,
			wantInterval: time.Second, wantErr: ErrPrimaryCore, wantOnline: []int{0, 1, 2, 3}},
		{name: "scale down without candidate", possible: 4, online: 1, verdict: types.VerdictScaleDown, candidate: -1,
			wantInterval: time.Second, wantErr: ErrPrimaryCore, wantOnline: []int{0}},
		{name: "scale down an offline core", possible: 4, online: 2, verdict: types.VerdictScaleDown, candidate: 3,
			wantInterval: time.Second, wantErr: ErrAlreadyOffline, wantOnline: []int{0, 1}},
		{name: "no verdict keeps the interval", possible: 4, online: 2, verdict: types.VerdictNone,
			wantInterval: time.Second, wantOnline: []int{0, 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, f := newTestActuator(tt.possible, tt.online)
			next, err := a.Apply(tt.verdict, tt.candidate, "test", time.Second)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantInterval, next)

			online, err := f.OnlineCPUs()
			require.NoError(t, err)
			assert.Equal(t, tt.wantOnline, online)
			assert.Contains(t, online, types.PrimaryCPU)
		})
	}
}

func TestApplyTransitionFailure(t *testing.T) {
	t.Parallel()

	a, f := newTestActuator(4, 1)
	f.FailSetOnline(3, fmt.Errorf("device or resource busy"))

	next, err := a.Apply(types.VerdictScaleUp, -1, "high-load", time.Second)
	assert.Error(t, err)
	assert.Equal(t, time.Second, next)

	history := a.History()
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Equal(t, 3, history[0].CPU)
	assert.Contains(t, history[0].Error, "busy")
	assert.NotEmpty(t, history[0].ID)

	// nothing is retried within the call
	assert.Empty(t, f.Transitions())
}

func TestRestorePinned(t *testing.T) {
	t.Parallel()

	a, f := newTestActuator(4, 1)
	require.NoError(t, a.RestorePinned(3))
	online, err := f.OnlineCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, online)

	require.NoError(t, a.RestorePinned(0))
	online, err = f.OnlineCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, online)

	f.FailSetOnline(2, fmt.Errorf("io error"))
	err = a.RestorePinned(9)
	assert.Error(t, err)
	online, err = f.OnlineCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, online)

	for _, record := range a.History() {
		if record.Success {
			assert.Equal(t, ReasonRestorePinned, record.Reason)
		}
	}
}

func TestHistoryRing(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	now := time.Now()
	for cpu := 1; cpu <= 5; cpu++ {
		h.Record(now, cpu, true, "test", nil)
	}

	records := h.List()
	require.Len(t, records, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{records[0].CPU, records[1].CPU, records[2].CPU})
	assert.NotEqual(t, records[0].ID, records[1].ID)

	assert.Empty(t, NewHistory(0).List())
}
