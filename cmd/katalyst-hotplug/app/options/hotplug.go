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

package options

import (
	"time"

	"github.com/spf13/pflag"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/flags"
)

const (
	flagProfile            = "platform-profile"
	flagPossibleCores      = "possible-cores"
	flagBootDelay          = "boot-delay"
	flagIntervalAfterUp    = "sampling-interval-after-up"
	flagIntervalAfterDown  = "sampling-interval-after-down"
	flagThresholds         = "thresholds"
	flagRunQueueTrip       = "run-queue-trip"
	flagRunQueueLoadTrip   = "run-queue-load-trip"
	flagShutdownCombinator = "shutdown-combinator"
	flagEnableRunQueueRule = "enable-run-queue-rule"
	flagAutoHotplug        = "auto-hotplug"
	flagPinnedCores        = "pinned-cores"
)

// HotplugOptions holds the policy and loop parameters. The profile seeds the
// defaults, the config file overrides it, and flags given explicitly win.
type HotplugOptions struct {
	ConfigFile string

	Profile            string
	PossibleCores      int
	BootDelay          time.Duration
	IntervalAfterUp    time.Duration
	IntervalAfterDown  time.Duration
	Thresholds         types.ThresholdTable
	RunQueueTrip       int
	RunQueueLoadTrip   int
	ShutdownCombinator string
	EnableRunQueueRule bool
	AutoHotplug        bool
	PinnedCores        int

	fs *pflag.FlagSet
}

func NewHotplugOptions() *HotplugOptions {
	c := hotplug.NewHotplugConfiguration()
	return &HotplugOptions{
		Profile:            c.Profile,
		PossibleCores:      c.PossibleCores,
		BootDelay:          c.BootDelay,
		IntervalAfterUp:    c.IntervalAfterUp,
		IntervalAfterDown:  c.IntervalAfterDown,
		Thresholds:         c.Thresholds,
		RunQueueTrip:       c.RunQueueTrip,
		RunQueueLoadTrip:   c.RunQueueLoadTrip,
		ShutdownCombinator: string(c.ShutdownCombinator),
		EnableRunQueueRule: c.EnableRunQueueRule,
		AutoHotplug:        c.AutoHotplug,
		PinnedCores:        c.PinnedCores,
	}
}

// AddFlags adds flags  to the specified FlagSet.
func (o *HotplugOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("hotplug")
	o.fs = fs

	fs.StringVar(&o.ConfigFile, "hotplug-config", o.ConfigFile,
		"the yaml file overriding the profile defaults, flags given explicitly still win")
	fs.StringVar(&o.Profile, flagProfile, o.Profile,
		"the board profile seeding the defaults, one of midas, u1, p10, slp_pq")
	fs.IntVar(&o.PossibleCores, flagPossibleCores, o.PossibleCores,
		"the number of cores managed by the governor, 0 detects it from sysfs")
	fs.DurationVar(&o.BootDelay, flagBootDelay, o.BootDelay,
		"the delay before the first sampling tick")
	fs.DurationVar(&o.IntervalAfterUp, flagIntervalAfterUp, o.IntervalAfterUp,
		"the sampling interval after a core was brought online, also the initial interval")
	fs.DurationVar(&o.IntervalAfterDown, flagIntervalAfterDown, o.IntervalAfterDown,
		"the sampling interval after a core was taken offline")
	fs.Var(&flags.ThresholdTableVar{Value: &o.Thresholds}, flagThresholds,
		"the low:high load band in percent per online core count, e.g. 0:20,10:35,15:45,20:100")
	fs.IntVar(&o.RunQueueTrip, flagRunQueueTrip, o.RunQueueTrip,
		"the shortest run queue that keeps the eviction candidate online")
	fs.IntVar(&o.RunQueueLoadTrip, flagRunQueueLoadTrip, o.RunQueueLoadTrip,
		"the eviction candidate load in percent under which a short run queue allows a scale down")
	fs.StringVar(&o.ShutdownCombinator, flagShutdownCombinator, o.ShutdownCombinator,
		"how low load and the clock floor combine for a scale down, any or all")
	fs.BoolVar(&o.EnableRunQueueRule, flagEnableRunQueueRule, o.EnableRunQueueRule,
		"whether a short run queue on the eviction candidate allows a scale down")
	fs.BoolVar(&o.AutoHotplug, flagAutoHotplug, o.AutoHotplug,
		"the initial value of the auto hotplug switch")
	fs.IntVar(&o.PinnedCores, flagPinnedCores, o.PinnedCores,
		"the cores kept online while auto hotplug is off, 0 keeps them all")
}

func (o *HotplugOptions) ApplyTo(c *hotplug.HotplugConfiguration) error {
	if err := c.ApplyProfile(o.Profile); err != nil {
		return err
	}

	if o.ConfigFile != "" {
		file, err := hotplug.LoadHotplugConfigFile(o.ConfigFile)
		if err != nil {
			return err
		}
		if changed(o.fs, flagProfile) {
			file.Profile = nil
		}
		if err := c.ApplyConfiguration(file); err != nil {
			return err
		}
	}

	if changed(o.fs, flagPossibleCores) {
		c.PossibleCores = o.PossibleCores
	}
	if changed(o.fs, flagBootDelay) {
		c.BootDelay = o.BootDelay
	}
	if changed(o.fs, flagIntervalAfterUp) {
		c.IntervalAfterUp = o.IntervalAfterUp
	}
	if changed(o.fs, flagIntervalAfterDown) {
		c.IntervalAfterDown = o.IntervalAfterDown
	}
	if changed(o.fs, flagThresholds) && len(o.Thresholds) > 0 {
		c.Thresholds = o.Thresholds.Clone()
	}
	if changed(o.fs, flagRunQueueTrip) {
		c.RunQueueTrip = o.RunQueueTrip
	}
	if changed(o.fs, flagRunQueueLoadTrip) {
		c.RunQueueLoadTrip = o.RunQueueLoadTrip
	}
	if changed(o.fs, flagShutdownCombinator) {
		c.ShutdownCombinator = types.ShutdownCombinator(o.ShutdownCombinator)
	}
	if changed(o.fs, flagEnableRunQueueRule) {
		c.EnableRunQueueRule = o.EnableRunQueueRule
	}
	if changed(o.fs, flagAutoHotplug) {
		c.AutoHotplug = o.AutoHotplug
	}
	if changed(o.fs, flagPinnedCores) {
		c.PinnedCores = o.PinnedCores
	}
	return nil
}
