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

// Package platform adapts the host scheduler accounting, core lifecycle
// and frequency facilities to the hotplug governor.
package platform

import (
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

// CPUTime holds the monotonic counters of one cpu since boot, in clock ticks.
type CPUTime struct {
	Idle uint64
	Wall uint64
}

// CPUAccounting exposes the scheduler accounting of the host.
type CPUAccounting interface {
	CPUTimes() (map[int]CPUTime, error)
	// RunQueues returns the runnable task count per cpu.
	RunQueues() (map[int]int, error)
	// TotalRunnable returns the runnable task count of the whole host.
	TotalRunnable() (int, error)
}

// CoreControl exposes the core online/offline facility.
type CoreControl interface {
	// PossibleCores is the number of cores the host may bring online.
	PossibleCores() (int, error)
	// OnlineCPUs returns the online cpus in increasing order.
	OnlineCPUs() ([]int, error)
	IsOnline(cpu int) (bool, error)
	// SetOnline blocks until the transition is done.
	SetOnline(cpu int, online bool) error
}

// ClockInfo exposes the frequency facility.
type ClockInfo interface {
	ClockEnvelope() (types.ClockEnvelope, error)
}

// BusyProbe reports a hardware block that needs every core it can get.
type BusyProbe interface {
	Busy() (bool, error)
	Close() error
}

// Interface is everything the governor consumes from the host.
type Interface interface {
	CPUAccounting
	CoreControl
	ClockInfo
}
