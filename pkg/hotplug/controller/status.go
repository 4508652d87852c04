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

package controller

import (
	"github.com/montanaflynn/stats"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// Status returns a consistent view of the governor; it waits for an
// in-flight tick.
func (c *Controller) Status() types.Status {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	status := types.Status{
		LoopState:       c.state,
		GovernorEnabled: c.governorEnabled,
		AutoHotplug:     c.autoHotplug,
		ManualLock:      c.manualLock,
		Rebooting:       c.rebooting,
		ScreenOff:       c.screenOff,
		PinnedCores:     c.pinned,
		PossibleCores:   c.possible,
		Interval:        c.interval.String(),
		Pending:         c.work.Pending(),
		LastVerdict:     c.lastDecision.Verdict,
		LastTick:        c.lastTick,
		AverageLoad:     c.lastDecision.AverageLoad,
		Clock:           c.lastClock,
		Thresholds:      c.params.Thresholds.Clone(),
		Transitions:     c.actuator.History(),
		Platform:        c.info,
	}

	online, err := c.platform.OnlineCPUs()
	if err != nil {
		general.Warningf("list online cpus failed: %v", err)
	}
	status.OnlineCPUs = online

	if c.lastSnapshot != nil {
		snapshot := *c.lastSnapshot
		snapshot.Cores = append([]types.CoreSample(nil), c.lastSnapshot.Cores...)
		status.Snapshot = &snapshot

		loads := make([]int, 0, len(snapshot.Cores))
		for _, core := range snapshot.Cores {
			loads = append(loads, core.Load)
		}
		data := stats.LoadRawData(loads)
		if mean, err := stats.Mean(data); err == nil {
			status.MeanCoreLoad = mean
		}
		if max, err := stats.Max(data); err == nil {
			status.MaxCoreLoad = max
		}
	}
	return status
}
