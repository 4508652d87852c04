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
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

const (
	ProfileMidas = "midas"
	ProfileU1    = "u1"
	ProfileP10   = "p10"
	ProfileSLPPQ = "slp_pq"

	DefaultProfile = ProfileMidas
)

// Profile seeds the defaults for one family of boards; Cores is the
// core count the threshold table was tuned for.
type Profile struct {
	Name               string
	Cores              int
	BootDelay          time.Duration
	IntervalAfterUp    time.Duration
	IntervalAfterDown  time.Duration
	Thresholds         types.ThresholdTable
	RunQueueTrip       int
	RunQueueLoadTrip   int
	ShutdownCombinator types.ShutdownCombinator
	EnableRunQueueRule bool
}

var quadCoreThresholds = types.ThresholdTable{{Low: 0, High: 20}, {Low: 10, High: 35}, {Low: 15, High: 45}, {Low: 20, High: 100}}

var profiles = map[string]Profile{
	ProfileMidas: {
		Name:               ProfileMidas,
		Cores:              4,
		BootDelay:          60 * time.Second,
		IntervalAfterUp:    500 * time.Millisecond,
		IntervalAfterDown:  2 * time.Second,
		Thresholds:         quadCoreThresholds,
		RunQueueTrip:       2,
		RunQueueLoadTrip:   20,
		ShutdownCombinator: types.ShutdownCombinatorAny,
		EnableRunQueueRule: true,
	},
	ProfileU1: {
		Name:               ProfileU1,
		Cores:              2,
		BootDelay:          60 * time.Second,
		IntervalAfterUp:    500 * time.Millisecond,
		IntervalAfterDown:  2 * time.Second,
		Thresholds:         types.ThresholdTable{{Low: 0, High: 30}, {Low: 20, High: 100}},
		RunQueueTrip:       2,
		RunQueueLoadTrip:   20,
		ShutdownCombinator: types.ShutdownCombinatorAny,
		EnableRunQueueRule: true,
	},
	ProfileP10: {
		Name:               ProfileP10,
		Cores:              2,
		BootDelay:          30 * time.Second,
		IntervalAfterUp:    500 * time.Millisecond,
		IntervalAfterDown:  4 * time.Second,
		Thresholds:         types.ThresholdTable{{Low: 0, High: 5}, {Low: 2, High: 100}},
		RunQueueTrip:       2,
		RunQueueLoadTrip:   20,
		ShutdownCombinator: types.ShutdownCombinatorAll,
		EnableRunQueueRule: false,
	},
	ProfileSLPPQ: {
		Name:               ProfileSLPPQ,
		Cores:              4,
		BootDelay:          60 * time.Second,
		IntervalAfterUp:    300 * time.Millisecond,
		IntervalAfterDown:  1200 * time.Millisecond,
		Thresholds:         quadCoreThresholds,
		RunQueueTrip:       2,
		RunQueueLoadTrip:   20,
		ShutdownCombinator: types.ShutdownCombinatorAny,
		EnableRunQueueRule: true,
	},
}

// GetProfile looks up a profile by case-insensitive name.
func GetProfile(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown platform profile %q, known: %v", name, ProfileNames())
	}
	p.Thresholds = p.Thresholds.Clone()
	return p, nil
}

func ProfileNames() []string {
	names := lo.Keys(profiles)
	sort.Strings(names)
	return names
}

// ApplyProfile overwrites the profile-owned fields with the named preset.
func (c *HotplugConfiguration) ApplyProfile(name string) error {
	p, err := GetProfile(name)
	if err != nil {
		return err
	}

	c.Profile = p.Name
	c.BootDelay = p.BootDelay
	c.IntervalAfterUp = p.IntervalAfterUp
	c.IntervalAfterDown = p.IntervalAfterDown
	c.Thresholds = p.Thresholds
	c.RunQueueTrip = p.RunQueueTrip
	c.RunQueueLoadTrip = p.RunQueueLoadTrip
	c.ShutdownCombinator = p.ShutdownCombinator
	c.EnableRunQueueRule = p.EnableRunQueueRule
	return nil
}
