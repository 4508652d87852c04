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

// Package actuator applies verdicts to the core topology.
package actuator

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/utils/clock"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/platform"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

var (
	ErrPrimaryCore    = errors.New("the primary core cannot be taken offline")
	ErrAlreadyOffline = errors.New("core is already offline")
	ErrNoOfflineCore  = errors.New("no offline core to bring online")
)

const (
	metricsNameTransition       = "hotplug_transition"
	metricsNameTransitionFailed = "hotplug_transition_failed"

	ReasonRestorePinned = "restore-pinned"
)

// Intervals are the sampling intervals that follow a transition.
type Intervals struct {
	AfterUp   time.Duration
	AfterDown time.Duration
}

// Actuator performs at most one transition per call to Apply.
type Actuator struct {
	control   platform.CoreControl
	possible  int
	intervals Intervals

	clock   clock.Clock
	emitter metrics.MetricEmitter
	history *History
}

func NewActuator(control platform.CoreControl, possible int, intervals Intervals,
	clk clock.Clock, emitter metrics.MetricEmitter) *Actuator {
	return &Actuator{
		control:   control,
		possible:  possible,
		intervals: intervals,
		clock:     clk,
		emitter:   emitter,
		history:   NewHistory(DefaultHistorySize),
	}
}

// Apply performs the transition of the verdict and returns the interval of
// the next tick; current is kept when nothing changed or the transition failed.
func (a *Actuator) Apply(verdict types.Verdict, candidate int, reason string, current time.Duration) (time.Duration, error) {
	switch verdict {
	case types.VerdictScaleUp:
		if _, err := a.ScaleUp(reason); err != nil {
			return current, err
		}
		return a.intervals.AfterUp, nil
	case types.VerdictScaleDown:
		if err := a.ScaleDown(candidate, reason); err != nil {
			return current, err
		}
		return a.intervals.AfterDown, nil
	default:
		return current, nil
	}
}

// ScaleUp brings the highest-indexed offline core online.
func (a *Actuator) ScaleUp(reason string) (int, error) {
	for cpu := a.possible - 1; cpu > types.PrimaryCPU; cpu-- {
		online, err := a.control.IsOnline(cpu)
		if err != nil {
			return -1, errors.Wrapf(err, "read cpu%d state", cpu)
		}
		if !online {
			return cpu, a.transit(cpu, true, reason)
		}
	}
	return -1, ErrNoOfflineCore
}

// ScaleDown takes cpu offline; the primary core and offline cores are refused.
func (a *Actuator) ScaleDown(cpu int, reason string) error {
	if cpu <= types.PrimaryCPU {
		return ErrPrimaryCore
	}

	online, err := a.control.IsOnline(cpu)
	if err != nil {
		return errors.Wrapf(err, "read cpu%d state", cpu)
	}
	if !online {
		return errors.Wrapf(ErrAlreadyOffline, "cpu%d", cpu)
	}
	return a.transit(cpu, false, reason)
}

// RestorePinned brings the first pin cores online and every other core
// offline; every core is tried even when some transitions fail.
func (a *Actuator) RestorePinned(pin int) error {
	pin = general.ClampInt(pin, 1, a.possible)

	var errList []error
	for cpu := types.PrimaryCPU + 1; cpu < a.possible; cpu++ {
		want := cpu < pin
		online, err := a.control.IsOnline(cpu)
		if err != nil {
			errList = append(errList, errors.Wrapf(err, "read cpu%d state", cpu))
			continue
		}
		if online == want {
			continue
		}
		if err := a.transit(cpu, want, ReasonRestorePinned); err != nil {
			errList = append(errList, err)
		}
	}
	return utilerrors.NewAggregate(errList)
}

// History returns the recorded transitions, oldest first.
func (a *Actuator) History() []types.Transition {
	return a.history.List()
}

func (a *Actuator) transit(cpu int, online bool, reason string) error {
	err := a.control.SetOnline(cpu, online)

	tags := []metrics.MetricTag{
		{Key: "cpu", Val: strconv.Itoa(cpu)},
		{Key: "online", Val: strconv.FormatBool(online)},
	}
	record := a.history.Record(a.clock.Now(), cpu, online, reason, err)
	if err != nil {
		general.ErrorS(err, "core transition failed", "id", record.ID, "cpu", cpu, "online", online, "reason", reason)
		_ = a.emitter.StoreInt64(metricsNameTransitionFailed, 1, metrics.MetricTypeNameCount, tags...)
		return errors.Wrapf(err, "set cpu%d online=%v", cpu, online)
	}

	general.InfoS("core transition", "id", record.ID, "cpu", cpu, "online", online, "reason", reason)
	_ = a.emitter.StoreInt64(metricsNameTransition, 1, metrics.MetricTypeNameCount, tags...)
	return nil
}
