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
	"fmt"
	"strconv"
	"time"

	hotplugconfig "github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/tunable"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	TunableEnabled          = "enabled"
	TunableRate             = "rate"
	TunableLock             = "lock"
	TunableCoresOn          = "cores_on"
	TunableRunQueueTrip     = "min_rq"
	TunableRunQueueLoadTrip = "load_rq"
	TunableVersion          = "version"
	TunableAuthor           = "author"
	TunableState            = "state"
	TunableOnline           = "online"
)

// TunableLoadLow and TunableLoadHigh name the bounds of tier i.
func TunableLoadLow(i int) string  { return "load_l" + strconv.Itoa(i) }
func TunableLoadHigh(i int) string { return "load_h" + strconv.Itoa(i) }

// registerTunables binds the controls to the controller state; every getter
// and setter takes the controller lock.
func (c *Controller) registerTunables() error {
	tunables := []*tunable.Tunable{
		tunable.NewBool(TunableEnabled, "automatic hotplug switch", c.lockedBool(func() bool { return c.autoHotplug }), c.setEnabled),
		tunable.NewMilliseconds(TunableRate, "sampling interval in milliseconds", c.lockedDuration(func() time.Duration { return c.interval }), c.setRate),
		tunable.NewBool(TunableLock, "manual override lock", c.lockedBool(c.locked), c.setLock),
		tunable.NewInt(TunableCoresOn, "core count pinned while hotplug is off", c.lockedInt(func() int { return c.pinned }), c.setCoresOn),
		tunable.NewInt(TunableRunQueueTrip, "run queue length below which a core may go offline", c.lockedInt(func() int { return c.params.RunQueueTrip }),
			c.clampedSetter(0, maxRunQueueTrip, func(v int) { c.params.RunQueueTrip = v })),
		tunable.NewInt(TunableRunQueueLoadTrip, "load below which the least busy core may go offline", c.lockedInt(func() int { return c.params.RunQueueLoadTrip }),
			c.clampedSetter(0, 100, func(v int) { c.params.RunQueueLoadTrip = v })),
		tunable.NewReadOnly(TunableVersion, "governor version", func() string { return consts.GovernorVersion }),
		tunable.NewReadOnly(TunableAuthor, "governor author", func() string { return consts.GovernorAuthor }),
		tunable.NewReadOnly(TunableState, "scheduling loop state", func() string {
			c.mutex.Lock()
			defer c.mutex.Unlock()
			return c.state.String()
		}),
		tunable.NewReadOnly(TunableOnline, "online cpus", func() string {
			online, err := c.platform.OnlineCPUs()
			if err != nil {
				return err.Error()
			}
			list := make([]int64, 0, len(online))
			for _, cpu := range online {
				list = append(list, int64(cpu))
			}
			return general.ConvertLinuxListToString(list)
		}),
	}

	for i := range c.params.Thresholds {
		i := i
		tunables = append(tunables,
			tunable.NewInt(TunableLoadLow(i), fmt.Sprintf("scale down load with %d cores online", i+1),
				c.lockedInt(func() int { return c.params.Thresholds[i].Low }),
				c.clampedSetter(0, 100, func(v int) {
					if v > c.params.Thresholds[i].High {
						v = c.params.Thresholds[i].High
					}
					c.params.Thresholds[i].Low = v
				})),
			tunable.NewInt(TunableLoadHigh(i), fmt.Sprintf("scale up load with %d cores online", i+1),
				c.lockedInt(func() int { return c.params.Thresholds[i].High }),
				c.clampedSetter(0, 100, func(v int) {
					if v < c.params.Thresholds[i].Low {
						v = c.params.Thresholds[i].Low
					}
					c.params.Thresholds[i].High = v
				})),
		)
	}
	return c.tunables.Register(tunables...)
}

const maxRunQueueTrip = 1024

// setEnabled turning hotplug off brings every core online and resets the
// pin; turning it on restarts the loop at the short interval.
func (c *Controller) setEnabled(on bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch {
	case on && !c.autoHotplug:
		c.autoHotplug = true
		c.interval = c.intervals.AfterUp
		if c.state == types.LoopStateDisabled && c.governorEnabled {
			c.setState(types.LoopStateRunning)
		}
		if c.state != types.LoopStateSuspended {
			c.rearm(c.interval)
		}
		general.Infof("automatic hotplug is on")
	case !on && c.autoHotplug:
		c.autoHotplug = false
		c.pinned = c.possible
		c.work.Cancel()
		if c.state != types.LoopStateSuspended {
			c.setState(types.LoopStateDisabled)
		}
		if !c.locked() {
			c.restorePinned()
		}
		general.Infof("automatic hotplug is off")
	}
	return nil
}

func (c *Controller) setRate(rate time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if rate < hotplugconfig.MinSamplingInterval {
		rate = hotplugconfig.MinSamplingInterval
	}
	if rate > hotplugconfig.MaxSamplingInterval {
		rate = hotplugconfig.MaxSamplingInterval
	}
	c.interval = rate
	// a pending tick moves to the new interval; a parked loop stays parked
	if c.work.Pending() {
		c.work.Reschedule(c.afterBoot(rate))
		_ = c.emitter.StoreInt64(metricsNameSamplingInterval, rate.Milliseconds(), metrics.MetricTypeNameRaw)
	}
	return nil
}

// setLock clearing the lock re-arms the loop, or applies the pin when
// hotplug is off.
func (c *Controller) setLock(on bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.manualLock = on
	if on || c.locked() || c.state == types.LoopStateSuspended {
		return nil
	}
	if c.autoHotplug {
		c.rearm(c.interval)
		return nil
	}
	c.restorePinned()
	return nil
}

// setCoresOn stores the pin and applies it at once only when hotplug is
// off and no lock holds the topology.
func (c *Controller) setCoresOn(cores int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.pinned = general.ClampInt(cores, 1, c.possible)
	if c.autoHotplug || c.locked() || c.state == types.LoopStateSuspended {
		return nil
	}
	c.restorePinned()
	return nil
}

func (c *Controller) clampedSetter(min, max int, set func(int)) func(int) error {
	return func(v int) error {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		set(general.ClampInt(v, min, max))
		return nil
	}
}

func (c *Controller) lockedInt(get func() int) func() int {
	return func() int {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return get()
	}
}

func (c *Controller) lockedBool(get func() bool) func() bool {
	return func() bool {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return get()
	}
}

func (c *Controller) lockedDuration(get func() time.Duration) func() time.Duration {
	return func() time.Duration {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return get()
	}
}
