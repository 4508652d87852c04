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

// Package sampler turns the scheduler accounting of the online cores into
// per-core load figures and run-queue statistics.
package sampler

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/platform"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// ErrAnomaly is returned along with the snapshot when a core reported more
// idle than wall time since the previous sample.
var ErrAnomaly = errors.New("idle time advanced beyond wall time")

// coreCounters keeps the counters of one core between samples; it outlives
// offline periods of the core.
type coreCounters struct {
	prevIdle uint64
	prevWall uint64
	load     int
}

// Sampler is not safe for concurrent use; the controller serializes it
// under its lock.
type Sampler struct {
	accounting platform.CPUAccounting
	cores      map[int]*coreCounters
}

func NewSampler(accounting platform.CPUAccounting) *Sampler {
	return &Sampler{
		accounting: accounting,
		cores:      make(map[int]*coreCounters),
	}
}

// Sample updates the counters of the online cores exactly once and returns
// the resulting snapshot. Offline cores are left untouched.
func (s *Sampler) Sample(online []int) (*types.Snapshot, error) {
	times, err := s.accounting.CPUTimes()
	if err != nil {
		return nil, errors.Wrap(err, "read cpu times")
	}
	runQueues, err := s.accounting.RunQueues()
	if err != nil {
		return nil, errors.Wrap(err, "read run queues")
	}
	totalRunnable, err := s.accounting.TotalRunnable()
	if err != nil {
		return nil, errors.Wrap(err, "read runnable tasks")
	}

	online = append([]int(nil), online...)
	sort.Ints(online)

	snapshot := &types.Snapshot{
		Cores:             make([]types.CoreSample, 0, len(online)),
		OnlineCount:       len(online),
		TotalRunnable:     totalRunnable,
		EvictionCandidate: -1,
	}

	for _, cpu := range online {
		counters, ok := s.cores[cpu]
		if !ok {
			counters = &coreCounters{}
			s.cores[cpu] = counters
		}

		if anomaly := counters.update(times[cpu]); anomaly {
			general.Warningf("cpu%d reported more idle than wall time, skipping this sample", cpu)
			snapshot.Anomaly = true
		}

		sample := types.CoreSample{
			CPU:      cpu,
			Online:   true,
			Load:     counters.load,
			RunQueue: runQueues[cpu],
		}
		general.InfofV(6, "cpu%d load %d%% run queue %d", cpu, sample.Load, sample.RunQueue)
		snapshot.Cores = append(snapshot.Cores, sample)

		if cpu == types.PrimaryCPU {
			continue
		}
		if snapshot.EvictionCandidate < 0 || sample.RunQueue < snapshot.MinRunQueue {
			snapshot.EvictionCandidate = cpu
			snapshot.MinRunQueue = sample.RunQueue
			snapshot.CandidateLoad = sample.Load
		}
	}

	snapshot.AggregateLoad = lo.SumBy(snapshot.Cores, func(c types.CoreSample) int { return c.Load })

	if snapshot.Anomaly {
		return snapshot, ErrAnomaly
	}
	return snapshot, nil
}

// update advances the counters to t and reports an idle/wall anomaly; the
// load is kept when no wall time elapsed or the sample is anomalous.
func (c *coreCounters) update(t platform.CPUTime) bool {
	var wallDelta, idleDelta uint64
	if t.Wall > c.prevWall {
		wallDelta = t.Wall - c.prevWall
	}
	if t.Idle > c.prevIdle {
		idleDelta = t.Idle - c.prevIdle
	}
	c.prevWall, c.prevIdle = t.Wall, t.Idle

	switch {
	case wallDelta == 0:
		return false
	case wallDelta < idleDelta:
		return true
	default:
		c.load = int(100 * (wallDelta - idleDelta) / wallDelta)
		return false
	}
}
