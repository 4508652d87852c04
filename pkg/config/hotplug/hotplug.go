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

package hotplug

import (
	"fmt"
	"time"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

const (
	MinSamplingInterval = 10 * time.Millisecond
	MaxSamplingInterval = 10 * time.Second
)

// HotplugConfiguration stores the policy and loop parameters of the governor.
type HotplugConfiguration struct {
	Profile string
	// PossibleCores is the number of cores the governor manages; zero means
	// detecting it from sysfs.
	PossibleCores int

	BootDelay time.Duration
	// IntervalAfterUp is the (short) sampling interval used after a core has
	// been brought online, and the initial interval.
	IntervalAfterUp time.Duration
	// IntervalAfterDown is the (long) sampling interval used after a core has
	// been taken offline.
	IntervalAfterDown time.Duration

	Thresholds         types.ThresholdTable
	RunQueueTrip       int
	RunQueueLoadTrip   int
	ShutdownCombinator types.ShutdownCombinator
	EnableRunQueueRule bool

	// AutoHotplug is the initial value of the auto-hotplug switch, and
	// PinnedCores the initial pin used while it is off; zero pins all cores.
	AutoHotplug bool
	PinnedCores int

	*PlatformConfiguration
	*LifecycleConfiguration
}

// NewHotplugConfiguration returns the configuration of the default profile.
func NewHotplugConfiguration() *HotplugConfiguration {
	c := &HotplugConfiguration{
		AutoHotplug:            true,
		PlatformConfiguration:  NewPlatformConfiguration(),
		LifecycleConfiguration: NewLifecycleConfiguration(),
	}
	_ = c.ApplyProfile(DefaultProfile)
	return c
}

// Validate checks the configuration is consistent once PossibleCores is known.
func (c *HotplugConfiguration) Validate() error {
	if c.PossibleCores < 0 {
		return fmt.Errorf("possible cores %d is negative", c.PossibleCores)
	}
	if c.IntervalAfterUp < MinSamplingInterval || c.IntervalAfterUp > MaxSamplingInterval {
		return fmt.Errorf("interval after up %v out of range [%v, %v]", c.IntervalAfterUp, MinSamplingInterval, MaxSamplingInterval)
	}
	if c.IntervalAfterDown < MinSamplingInterval || c.IntervalAfterDown > MaxSamplingInterval {
		return fmt.Errorf("interval after down %v out of range [%v, %v]", c.IntervalAfterDown, MinSamplingInterval, MaxSamplingInterval)
	}
	if c.BootDelay < 0 {
		return fmt.Errorf("boot delay %v is negative", c.BootDelay)
	}
	if c.RunQueueTrip < 0 || c.RunQueueLoadTrip < 0 || c.RunQueueLoadTrip > 100 {
		return fmt.Errorf("invalid run queue trips %d/%d", c.RunQueueTrip, c.RunQueueLoadTrip)
	}
	switch c.ShutdownCombinator {
	case types.ShutdownCombinatorAny, types.ShutdownCombinatorAll:
	default:
		return fmt.Errorf("unknown shutdown combinator %q", c.ShutdownCombinator)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.PossibleCores > 0 && (c.PinnedCores < 0 || c.PinnedCores > c.PossibleCores) {
		return fmt.Errorf("pinned cores %d out of range [0, %d]", c.PinnedCores, c.PossibleCores)
	}
	return nil
}

// PlatformConfiguration describes where the host interfaces live.
type PlatformConfiguration struct {
	ProcFSRoot string
	SysFSRoot  string
	// DryRun never writes core online states, transitions are mirrored in memory.
	DryRun bool

	BusyProbe BusyProbeConfiguration
}

type BusyProbeKind string

const (
	BusyProbeNone BusyProbeKind = "none"
	BusyProbeFile BusyProbeKind = "file"
	BusyProbeMMIO BusyProbeKind = "mmio"
)

// BusyProbeConfiguration locates a hardware busy flag; while set, the
// governor always scales up.
type BusyProbeConfiguration struct {
	Kind BusyProbeKind
	// PhysAddress and Offset locate the status register for mmio probes.
	PhysAddress uint64
	Offset      uint64
	// File holds the register value for file probes.
	File string
	Bit  uint
}

func NewPlatformConfiguration() *PlatformConfiguration {
	return &PlatformConfiguration{
		ProcFSRoot: "/proc",
		SysFSRoot:  "/sys",
		BusyProbe: BusyProbeConfiguration{
			Kind: BusyProbeNone,
		},
	}
}

// LifecycleConfiguration selects the host event sources.
type LifecycleConfiguration struct {
	EnableLogind bool
	// ScreenStateFile is watched for "on"/"off" content; empty disables it.
	ScreenStateFile    string
	GovernorPollPeriod time.Duration
	// DeniedGovernors are cpufreq governors that manage cores themselves.
	DeniedGovernors []string
	EventBufferSize int
}

func NewLifecycleConfiguration() *LifecycleConfiguration {
	return &LifecycleConfiguration{
		EnableLogind:       true,
		GovernorPollPeriod: 5 * time.Second,
		DeniedGovernors:    []string{"pegasusq", "hotplug"},
		EventBufferSize:    64,
	}
}
