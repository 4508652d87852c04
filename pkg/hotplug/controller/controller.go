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

// Package controller owns the governor state and runs the scheduling loop:
// every tick samples the online cores, asks the policy for a verdict and
// lets the actuator apply it, all under one lock shared with the lifecycle
// handlers and the tunables.
package controller

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/kubewharf/katalyst-hotplug/pkg/config"
	hotplugconfig "github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/actuator"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/platform"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/policy"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/sampler"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/tunable"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/worker"
	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	controllerName = "hotplug-controller"

	healthzCheckName = "hotplug-loop"
	heartbeatPeriod  = 10 * time.Second

	metricsNameTickCount        = "hotplug_tick_count"
	metricsNameVerdict          = "hotplug_verdict"
	metricsNameOnlineCores      = "hotplug_online_cores"
	metricsNameAvgLoad          = "hotplug_avg_load"
	metricsNameCoreLoad         = "hotplug_core_load"
	metricsNameSamplingInterval = "hotplug_sampling_interval_ms"
	metricsNameLoopState        = "hotplug_loop_state"
	metricsNameLifecycleEvent   = "hotplug_lifecycle_event"
	metricsNameSampleAnomaly    = "hotplug_sample_anomaly"
)

// Controller is the single owner of the governor state; every field below
// mutex is only touched with it held.
type Controller struct {
	platform platform.Interface
	busy     platform.BusyProbe
	emitter  metrics.MetricEmitter
	clock    clock.WithDelayedExecution
	info     types.PlatformInfo

	possible       int
	bootDelay      time.Duration
	intervals      actuator.Intervals
	deniedGovernor sets.String
	tickVerbosity  int

	work     *worker.DelayedWork
	tunables *tunable.Registry

	mutex sync.Mutex

	sampler  *sampler.Sampler
	actuator *actuator.Actuator
	params   policy.Params

	state           types.LoopState
	savedState      types.LoopState
	governorEnabled bool
	autoHotplug     bool
	manualLock      bool
	savedLock       bool
	rebooting       bool
	screenOff       bool
	pinned          int
	interval        time.Duration
	bootDeadline    time.Time

	lastDecision policy.Decision
	lastSnapshot *types.Snapshot
	lastClock    types.ClockEnvelope
	lastTick     time.Time
}

// NewController builds the controller on top of p. The core count comes
// from the configuration, or from p when it is not configured.
func NewController(conf *config.Configuration, p platform.Interface, busy platform.BusyProbe,
	emitter metrics.MetricEmitter, clk clock.WithDelayedExecution) (*Controller, error) {
	hotplugConf := conf.HotplugConfiguration

	possible := hotplugConf.PossibleCores
	if possible <= 0 {
		detected, err := p.PossibleCores()
		if err != nil {
			return nil, errors.Wrap(err, "detect possible cores")
		}
		possible = detected
	}
	if possible < 1 {
		return nil, errors.Errorf("no possible cores detected")
	}
	if err := hotplugConf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid hotplug configuration")
	}

	pinned := hotplugConf.PinnedCores
	if pinned <= 0 || pinned > possible {
		pinned = possible
	}

	if busy == nil {
		busy = platform.NoneBusyProbe{}
	}

	intervals := actuator.Intervals{
		AfterUp:   hotplugConf.IntervalAfterUp,
		AfterDown: hotplugConf.IntervalAfterDown,
	}
	emitter = emitter.WithTags("hotplug")

	c := &Controller{
		platform:       p,
		busy:           busy,
		emitter:        emitter,
		clock:          clk,
		info:           platform.Info(hotplugConf.Profile, hotplugConf.DryRun),
		possible:       possible,
		bootDelay:      hotplugConf.BootDelay,
		intervals:      intervals,
		deniedGovernor: sets.NewString(),
		tickVerbosity:  conf.TickLogVerbosity,
		tunables:       tunable.NewRegistry(),

		sampler:  sampler.NewSampler(p),
		actuator: actuator.NewActuator(p, possible, intervals, clk, emitter),
		params: policy.Params{
			Thresholds:         hotplugConf.Thresholds.Resize(possible),
			RunQueueTrip:       hotplugConf.RunQueueTrip,
			RunQueueLoadTrip:   hotplugConf.RunQueueLoadTrip,
			Combinator:         hotplugConf.ShutdownCombinator,
			EnableRunQueueRule: hotplugConf.EnableRunQueueRule,
		},

		state:           types.LoopStateIdle,
		governorEnabled: true,
		autoHotplug:     hotplugConf.AutoHotplug,
		pinned:          pinned,
		interval:        intervals.AfterUp,
		bootDeadline:    clk.Now().Add(hotplugConf.BootDelay),
	}
	for _, governor := range hotplugConf.DeniedGovernors {
		c.deniedGovernor.Insert(strings.ToLower(governor))
	}
	c.work = worker.NewDelayedWork(controllerName, c.tick, clk)

	if err := c.registerTunables(); err != nil {
		return nil, err
	}

	general.Infof("hotplug controller for %d cores on %q (%s), thresholds %v, intervals %v/%v, boot delay %v",
		possible, c.info.Profile, c.info.CPUBrand, c.params.Thresholds, intervals.AfterUp, intervals.AfterDown, c.bootDelay)
	return c, nil
}

// Tunables returns the named controls of the controller.
func (c *Controller) Tunables() *tunable.Registry {
	return c.tunables
}

// Run arms the first tick at the end of the boot delay, counted from the
// creation of the controller, and drives the loop until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	general.RegisterHeartbeatCheck(healthzCheckName, 3*heartbeatPeriod, general.HealthzCheckStateNotReady)
	defer general.UnregisterHeartbeatCheck(healthzCheckName)

	c.mutex.Lock()
	delay := c.afterBoot(0)
	c.work.Queue(delay)
	c.mutex.Unlock()

	general.Infof("hotplug loop starts in %v", delay)
	go c.work.Run(ctx)
	go wait.UntilWithContext(ctx, c.heartbeat, heartbeatPeriod)

	<-ctx.Done()
	general.Infof("hotplug loop stopped")
}

// tick is the body of the periodic work; it holds the lock throughout,
// the core transition included.
func (c *Controller) tick(_ context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.lastTick = c.clock.Now()
	_ = c.emitter.StoreInt64(metricsNameTickCount, 1, metrics.MetricTypeNameCount)

	switch {
	case c.state == types.LoopStateSuspended:
		return
	case !c.governorEnabled:
		c.setState(types.LoopStateDisabled)
		return
	case c.screenOff && c.secondariesOffline():
		general.Infof("screen is off and only the primary core is online, parking the loop")
		c.setState(types.LoopStateIdle)
		return
	case !c.autoHotplug:
		if c.state != types.LoopStateDisabled && !c.locked() {
			c.restorePinned()
		}
		c.setState(types.LoopStateDisabled)
		return
	case c.locked():
		c.setState(types.LoopStateRunning)
		c.rearm(c.interval)
		return
	}

	c.setState(types.LoopStateRunning)
	c.evaluate()
	c.rearm(c.interval)
}

// evaluate runs sample, decide and act once.
func (c *Controller) evaluate() {
	online, err := c.platform.OnlineCPUs()
	if err != nil {
		general.Errorf("list online cpus failed: %v", err)
		return
	}

	snapshot, err := c.sampler.Sample(online)
	if snapshot != nil {
		c.lastSnapshot = snapshot
	}
	if err != nil {
		if errors.Is(err, sampler.ErrAnomaly) {
			_ = c.emitter.StoreInt64(metricsNameSampleAnomaly, 1, metrics.MetricTypeNameCount)
			general.Warningf("skipping tick: %v", err)
			return
		}
		general.Errorf("sample failed: %v", err)
		return
	}

	envelope, err := c.platform.ClockEnvelope()
	if err != nil {
		general.Warningf("read clock envelope failed, using per-core average: %v", err)
		envelope = types.ClockEnvelope{}
	}
	c.lastClock = envelope

	busy, err := c.busy.Busy()
	if err != nil {
		general.Warningf("read hardware busy flag failed: %v", err)
		busy = false
	}

	decision := policy.Decide(policy.NewInput(snapshot, c.possible, envelope, busy), c.params)
	c.lastDecision = decision
	general.InfofV(c.tickVerbosity, "online %v load %d avg %d tier %v rq min %d on cpu%d runnable %d clock %+v busy %v: %s by %s",
		online, snapshot.AggregateLoad, decision.AverageLoad, decision.Tier, snapshot.MinRunQueue,
		snapshot.EvictionCandidate, snapshot.TotalRunnable, envelope, busy, decision.Verdict, decision.Rule)

	c.emitSample(snapshot, decision)

	interval, err := c.actuator.Apply(decision.Verdict, snapshot.EvictionCandidate, decision.Rule, c.interval)
	switch {
	case errors.Is(err, actuator.ErrNoOfflineCore):
		// every core is online already, a busy or saturated host asks for more each tick
		general.InfofV(c.tickVerbosity, "%s by %s not applied: %v", decision.Verdict, decision.Rule, err)
	case err != nil:
		general.Warningf("%s by %s not applied: %v", decision.Verdict, decision.Rule, err)
	}
	c.interval = interval
}

func (c *Controller) emitSample(snapshot *types.Snapshot, decision policy.Decision) {
	_ = c.emitter.StoreInt64(metricsNameVerdict, 1, metrics.MetricTypeNameCount,
		metrics.MetricTag{Key: "verdict", Val: decision.Verdict.String()},
		metrics.MetricTag{Key: "rule", Val: decision.Rule})
	_ = c.emitter.StoreInt64(metricsNameOnlineCores, int64(snapshot.OnlineCount), metrics.MetricTypeNameRaw)
	_ = c.emitter.StoreInt64(metricsNameAvgLoad, int64(decision.AverageLoad), metrics.MetricTypeNameRaw)
	for _, core := range snapshot.Cores {
		_ = c.emitter.StoreInt64(metricsNameCoreLoad, int64(core.Load), metrics.MetricTypeNameRaw,
			metrics.MetricTag{Key: "cpu", Val: strconv.Itoa(core.CPU)})
	}
}

// rearm queues the next tick after delay, never before the boot delay ends.
// It is a no-op while a tick is pending.
func (c *Controller) rearm(delay time.Duration) {
	_ = c.emitter.StoreInt64(metricsNameSamplingInterval, c.interval.Milliseconds(), metrics.MetricTypeNameRaw)
	c.work.Queue(c.afterBoot(delay))
}

// afterBoot stretches delay up to the end of the boot delay.
func (c *Controller) afterBoot(delay time.Duration) time.Duration {
	if remaining := c.bootDeadline.Sub(c.clock.Now()); remaining > delay {
		return remaining
	}
	return delay
}

func (c *Controller) setState(state types.LoopState) {
	if c.state != state {
		general.Infof("hotplug loop %v -> %v", c.state, state)
		c.state = state
	}
	_ = c.emitter.StoreInt64(metricsNameLoopState, int64(state), metrics.MetricTypeNameRaw,
		metrics.MetricTag{Key: "state", Val: state.String()})
}

// locked reports whether automatic decisions are held by the user or by a
// pending reboot.
func (c *Controller) locked() bool {
	return c.manualLock || c.rebooting
}

func (c *Controller) secondariesOffline() bool {
	online, err := c.platform.OnlineCPUs()
	if err != nil {
		general.Errorf("list online cpus failed: %v", err)
		return false
	}
	for _, cpu := range online {
		if cpu != types.PrimaryCPU {
			return false
		}
	}
	return true
}

func (c *Controller) restorePinned() {
	general.Infof("restoring pinned topology of %d cores", c.pinned)
	if err := c.actuator.RestorePinned(c.pinned); err != nil {
		general.Errorf("restore pinned topology: %v", err)
	}
}

// heartbeat reports the loop unhealthy once a running loop has neither
// ticked nor been queued for a while.
func (c *Controller) heartbeat(_ context.Context) {
	c.mutex.Lock()
	state, lastTick, deadline := c.state, c.lastTick, c.bootDeadline
	c.mutex.Unlock()

	now := c.clock.Now()
	var err error
	if state == types.LoopStateRunning && now.After(deadline) && !c.work.Pending() &&
		now.Sub(lastTick) > 2*hotplugconfig.MaxSamplingInterval {
		err = errors.Errorf("no tick since %v", lastTick.Format(time.RFC3339))
	}
	_ = general.UpdateHealthzStateByError(healthzCheckName, err)
}
