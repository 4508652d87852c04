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
	"fmt"
	"time"

	"github.com/spf13/pflag"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/flags"
)

const flagDeniedGovernors = "denied-governors"

// LifecycleOptions selects the host event sources.
type LifecycleOptions struct {
	EnableLogind       bool
	ScreenStateFile    string
	GovernorPollPeriod time.Duration
	DeniedGovernors    []string
	EventBufferSize    int

	fs *pflag.FlagSet
}

func NewLifecycleOptions() *LifecycleOptions {
	c := hotplug.NewLifecycleConfiguration()
	return &LifecycleOptions{
		EnableLogind:       c.EnableLogind,
		ScreenStateFile:    c.ScreenStateFile,
		GovernorPollPeriod: c.GovernorPollPeriod,
		DeniedGovernors:    c.DeniedGovernors,
		EventBufferSize:    c.EventBufferSize,
	}
}

// AddFlags adds flags  to the specified FlagSet.
func (o *LifecycleOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("lifecycle")
	o.fs = fs

	fs.BoolVar(&o.EnableLogind, "enable-logind", o.EnableLogind,
		"whether suspend, resume and reboot are followed through logind on the system bus")
	fs.StringVar(&o.ScreenStateFile, "screen-state-file", o.ScreenStateFile,
		"the file holding on or off for the display state, empty disables screen events")
	fs.DurationVar(&o.GovernorPollPeriod, "governor-poll-period", o.GovernorPollPeriod,
		"how often the cpufreq governor is checked, 0 disables governor events")
	fs.Var(&flags.LowerStringSliceVar{Value: &o.DeniedGovernors}, flagDeniedGovernors,
		"the cpufreq governors that manage cores themselves and disable this governor")
	fs.IntVar(&o.EventBufferSize, "lifecycle-event-buffer", o.EventBufferSize,
		"the number of lifecycle events queued for the governor")
}

func (o *LifecycleOptions) ApplyTo(c *hotplug.LifecycleConfiguration) error {
	if o.GovernorPollPeriod < 0 {
		return fmt.Errorf("governor poll period %v is negative", o.GovernorPollPeriod)
	}
	if o.EventBufferSize <= 0 {
		return fmt.Errorf("lifecycle event buffer %d must be positive", o.EventBufferSize)
	}

	c.EnableLogind = o.EnableLogind
	c.ScreenStateFile = o.ScreenStateFile
	c.GovernorPollPeriod = o.GovernorPollPeriod
	c.EventBufferSize = o.EventBufferSize
	if changed(o.fs, flagDeniedGovernors) {
		c.DeniedGovernors = append([]string(nil), o.DeniedGovernors...)
	}
	return nil
}
