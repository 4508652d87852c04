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

package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	katalystbase "github.com/kubewharf/katalyst-hotplug/cmd/base"
	"github.com/kubewharf/katalyst-hotplug/pkg/config"
	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/controller"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/lifecycle"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/platform"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/server"
	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/eventbus"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/process"
)

const healthzNameLockingFileAcquired = "LockingFileReady"

const (
	metricsNameLockingFailed   = "get_lock_failed"
	metricsNameHotplugStarted  = "hotplug_started"
	metricsNameSysFSWrite      = "hotplug_sysfs_write"
	metricsNameSysFSWriteCost  = "hotplug_sysfs_write_cost_us"
	subscriberController       = "hotplug-controller"
	subscriberSysFSWriteLogger = "hotplug-sysfs-writes"

	lockRetryInterval = time.Second
)

// Governor bundles what the daemon drives besides the configuration.
type Governor struct {
	Platform platform.Interface
	Busy     platform.BusyProbe
	// ReadGovernor returns the cpufreq governor of the host; nil disables
	// the governor event source.
	ReadGovernor func() (string, error)
	Bus          eventbus.EventBus
	Clock        clock.WithDelayedExecution
}

// Run opens the host platform and runs the governor until a shutdown signal.
func Run(conf *config.Configuration) error {
	// Set up signals so that we handle the first shutdown signal gracefully.
	ctx := process.SetupSignalHandler()

	baseCtx, err := katalystbase.NewGenericContext(conf.GenericConfiguration, consts.KatalystComponentHotplug)
	if err != nil {
		return err
	}

	lock, err := acquireLock(ctx, baseCtx, conf)
	if err != nil {
		return err
	}
	// if the process panics before this runs, OS releases the lock anyway
	defer general.ReleaseUniqueLock(lock)

	host, err := platform.NewHostPlatform(conf.PlatformConfiguration)
	if err != nil {
		return errors.Wrap(err, "open host platform")
	}
	var p platform.Interface = host
	if conf.DryRun {
		if p, err = platform.NewDryRunPlatform(host); err != nil {
			return err
		}
	}

	busy, err := platform.NewBusyProbe(conf.BusyProbe)
	if err != nil {
		return errors.Wrap(err, "open busy probe")
	}
	defer func() {
		_ = busy.Close()
	}()

	return startGovernor(ctx, baseCtx, conf, Governor{
		Platform:     p,
		Busy:         busy,
		ReadGovernor: host.Governor,
		Bus:          eventbus.GetDefaultEventBus(),
		Clock:        clock.RealClock{},
	})
}

// startGovernor wires the controller, its event sources and the control
// plane, and runs them until ctx is done.
func startGovernor(ctx context.Context, baseCtx *katalystbase.GenericContext, conf *config.Configuration, g Governor) error {
	emitter := baseCtx.Emitter()
	g.Bus.SetEmitter(emitter)

	ctrl, err := controller.NewController(conf, g.Platform, g.Busy, emitter, g.Clock)
	if err != nil {
		return err
	}

	if err := lifecycle.Subscribe(g.Bus, subscriberController, conf.EventBufferSize, ctrl); err != nil {
		return errors.Wrap(err, "subscribe lifecycle events")
	}
	defer g.Bus.Unsubscribe(consts.TopicNameLifecycle, subscriberController)

	if err := g.Bus.Subscribe(consts.TopicNameApplySysFS, subscriberSysFSWriteLogger, conf.EventBufferSize,
		sysFSWriteRecorder(emitter)); err != nil {
		return errors.Wrap(err, "subscribe sysfs writes")
	}
	defer g.Bus.Unsubscribe(consts.TopicNameApplySysFS, subscriberSysFSWriteLogger)

	publisher := lifecycle.NewPublisher(g.Bus)
	server.NewServer(ctrl, publisher).Serve(baseCtx.Mux)

	sources := lifecycleSources(conf, publisher, g.ReadGovernor)

	_ = emitter.StoreInt64(metricsNameHotplugStarted, 1, metrics.MetricTypeNameCount)
	general.Infof("hotplug governor started with %d lifecycle sources", len(sources))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return baseCtx.Run(groupCtx)
	})
	group.Go(func() error {
		ctrl.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return lifecycle.RunSources(groupCtx, sources...)
	})
	return group.Wait()
}

func lifecycleSources(conf *config.Configuration, publisher lifecycle.Publisher,
	readGovernor func() (string, error)) []lifecycle.Source {
	var sources []lifecycle.Source
	if conf.EnableLogind {
		sources = append(sources, lifecycle.NewLogindSource(publisher))
	}
	if conf.ScreenStateFile != "" {
		sources = append(sources, lifecycle.NewScreenSource(publisher, conf.ScreenStateFile))
	}
	if conf.GovernorPollPeriod > 0 && readGovernor != nil {
		sources = append(sources, lifecycle.NewGovernorSource(publisher, readGovernor, conf.GovernorPollPeriod))
	}
	return sources
}

// sysFSWriteRecorder logs and counts every core online write.
func sysFSWriteRecorder(emitter metrics.MetricEmitter) eventbus.ConsumeFunc {
	return func(e interface{}) error {
		event, ok := e.(eventbus.RawSysfsEvent)
		if !ok {
			return errors.Errorf("unexpected sysfs event type %T", e)
		}
		general.InfofV(4, "sysfs %s/%s: %q -> %q in %v", event.SysfsPath, event.SysfsFile, event.OldData, event.Data, event.Cost)
		tags := []metrics.MetricTag{{Key: "file", Val: event.SysfsFile}}
		_ = emitter.StoreInt64(metricsNameSysFSWrite, 1, metrics.MetricTypeNameCount, tags...)
		_ = emitter.StoreInt64(metricsNameSysFSWriteCost, event.Cost.Microseconds(), metrics.MetricTypeNameRaw, tags...)
		return nil
	}
}

// acquireLock makes sure only one governor acts on the host; with waiting
// enabled it retries until the lock is obtained or ctx is done.
func acquireLock(ctx context.Context, baseCtx *katalystbase.GenericContext, conf *config.Configuration) (*general.Flock, error) {
	// register a not-ready state for lock-acquiring when we starts
	general.RegisterHeartbeatCheck(healthzNameLockingFileAcquired, 0, general.HealthzCheckStateNotReady)

	for {
		lock, err := general.GetUniqueLock(conf.LockFileName)
		if err == nil {
			_ = general.UpdateHealthzState(healthzNameLockingFileAcquired, general.HealthzCheckStateReady, "")
			return lock, nil
		}

		_ = baseCtx.Emitter().StoreInt64(metricsNameLockingFailed, 1, metrics.MetricTypeNameRaw)
		if !conf.LockWaitingEnabled {
			return nil, errors.Wrapf(err, "another governor holds %s", conf.LockFileName)
		}
		general.Warningf("waiting for lock %s: %v", conf.LockFileName, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}
