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
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

// HotplugConfigFile is the on-disk form of the governor parameters; absent
// fields keep the values coming from the profile.
type HotplugConfigFile struct {
	Profile            *string              `yaml:"profile"`
	PossibleCores      *int                 `yaml:"possibleCores"`
	BootDelay          *time.Duration       `yaml:"bootDelay"`
	IntervalAfterUp    *time.Duration       `yaml:"intervalAfterUp"`
	IntervalAfterDown  *time.Duration       `yaml:"intervalAfterDown"`
	Thresholds         []types.Tier         `yaml:"thresholds"`
	RunQueueTrip       *int                 `yaml:"runQueueTrip"`
	RunQueueLoadTrip   *int                 `yaml:"runQueueLoadTrip"`
	ShutdownCombinator *string              `yaml:"shutdownCombinator"`
	EnableRunQueueRule *bool                `yaml:"enableRunQueueRule"`
	AutoHotplug        *bool                `yaml:"autoHotplug"`
	PinnedCores        *int                 `yaml:"pinnedCores"`
	DeniedGovernors    []string             `yaml:"deniedGovernors"`
	BusyProbe          *BusyProbeConfigFile `yaml:"busyProbe"`
}

type BusyProbeConfigFile struct {
	Kind        *string `yaml:"kind"`
	PhysAddress *uint64 `yaml:"physAddress"`
	Offset      *uint64 `yaml:"offset"`
	File        *string `yaml:"file"`
	Bit         *uint   `yaml:"bit"`
}

// LoadHotplugConfigFile parses the YAML file; unknown fields are rejected.
func LoadHotplugConfigFile(path string) (*HotplugConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read hotplug config %s", path)
	}

	file := &HotplugConfigFile{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(file); err != nil {
		return nil, errors.Wrapf(err, "decode hotplug config %s", path)
	}
	return file, nil
}

// ApplyConfiguration overlays the file on c; a profile in the file is
// applied first so that the other fields override it.
func (c *HotplugConfiguration) ApplyConfiguration(file *HotplugConfigFile) error {
	if file == nil {
		return nil
	}

	if file.Profile != nil {
		if err := c.ApplyProfile(*file.Profile); err != nil {
			return err
		}
	}
	if file.PossibleCores != nil {
		c.PossibleCores = *file.PossibleCores
	}
	if file.BootDelay != nil {
		c.BootDelay = *file.BootDelay
	}
	if file.IntervalAfterUp != nil {
		c.IntervalAfterUp = *file.IntervalAfterUp
	}
	if file.IntervalAfterDown != nil {
		c.IntervalAfterDown = *file.IntervalAfterDown
	}
	if len(file.Thresholds) > 0 {
		c.Thresholds = append(types.ThresholdTable(nil), file.Thresholds...)
	}
	if file.RunQueueTrip != nil {
		c.RunQueueTrip = *file.RunQueueTrip
	}
	if file.RunQueueLoadTrip != nil {
		c.RunQueueLoadTrip = *file.RunQueueLoadTrip
	}
	if file.ShutdownCombinator != nil {
		c.ShutdownCombinator = types.ShutdownCombinator(*file.ShutdownCombinator)
	}
	if file.EnableRunQueueRule != nil {
		c.EnableRunQueueRule = *file.EnableRunQueueRule
	}
	if file.AutoHotplug != nil {
		c.AutoHotplug = *file.AutoHotplug
	}
	if file.PinnedCores != nil {
		c.PinnedCores = *file.PinnedCores
	}
	if len(file.DeniedGovernors) > 0 {
		c.DeniedGovernors = append([]string(nil), file.DeniedGovernors...)
	}
	if probe := file.BusyProbe; probe != nil {
		if probe.Kind != nil {
			c.BusyProbe.Kind = BusyProbeKind(*probe.Kind)
		}
		if probe.PhysAddress != nil {
			c.BusyProbe.PhysAddress = *probe.PhysAddress
		}
		if probe.Offset != nil {
			c.BusyProbe.Offset = *probe.Offset
		}
		if probe.File != nil {
			c.BusyProbe.File = *probe.File
		}
		if probe.Bit != nil {
			c.BusyProbe.Bit = *probe.Bit
		}
	}
	return nil
}
