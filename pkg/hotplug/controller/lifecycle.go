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
	"strings"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/lifecycle"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

var _ lifecycle.Handler = &Controller{}

// HandleLifecycleEvent applies one host notification; it waits for an
// in-flight tick to finish.
func (c *Controller) HandleLifecycleEvent(event lifecycle.Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	general.Infof("lifecycle event %v in state %v", event, c.state)
	_ = c.emitter.StoreInt64(metricsNameLifecycleEvent, 1, metrics.MetricTypeNameCount,
		metrics.MetricTag{Key: "event", Val: string(event.Type)})

	switch event.Type {
	case lifecycle.EventSuspendPrepare:
		c.suspend()
	case lifecycle.EventPostSuspend, lifecycle.EventPostRestore:
		c.resume()
	case lifecycle.EventReboot:
		// never cleared for the rest of the process lifetime
		c.rebooting = true
	case lifecycle.EventScreenOff:
		c.screenOff = true
	case lifecycle.EventScreenOn:
		c.screenOff = false
		if c.state != types.LoopStateSuspended {
			c.rearm(c.interval)
		}
	case lifecycle.EventGovernorChanged:
		c.governorChanged(event.Governor)
	default:
		general.Warningf("ignoring unknown lifecycle event %v", event)
	}
}

// suspend freezes the topology: the user lock is saved and forced on, and
// the pending tick is dropped.
func (c *Controller) suspend() {
	if c.state == types.LoopStateSuspended {
		return
	}
	c.savedLock = c.manualLock
	c.savedState = c.state
	c.manualLock = true
	c.work.Cancel()
	c.setState(types.LoopStateSuspended)
}

func (c *Controller) resume() {
	if c.state != types.LoopStateSuspended {
		return
	}
	c.manualLock = c.savedLock
	c.setState(c.savedState)
	c.rearm(c.interval)
}

func (c *Controller) governorChanged(governor string) {
	if c.deniedGovernor.Has(strings.ToLower(strings.TrimSpace(governor))) {
		if c.governorEnabled {
			general.Infof("governor %q manages cores itself, disabling hotplug", governor)
		}
		c.governorEnabled = false
		c.work.Cancel()
		if c.state != types.LoopStateSuspended {
			c.setState(types.LoopStateDisabled)
		}
		return
	}

	if !c.governorEnabled {
		general.Infof("governor %q is active, enabling hotplug", governor)
		c.governorEnabled = true
		if c.state == types.LoopStateDisabled && c.autoHotplug {
			c.setState(types.LoopStateRunning)
		}
	}
	if c.state != types.LoopStateSuspended {
		c.rearm(c.interval)
	}
}
