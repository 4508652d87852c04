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

package platform

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
	procfsmanager "github.com/kubewharf/katalyst-hotplug/pkg/util/procfs/manager"
	sysfsmanager "github.com/kubewharf/katalyst-hotplug/pkg/util/sysfs/manager"
)

// userHZ is the tick rate /proc/stat counters are reported in.
const userHZ = 100

// HostPlatform implements Interface on top of procfs and sysfs.
type HostPlatform struct {
	procfs procfsmanager.ProcFSManager
	sysfs  sysfsmanager.SysFSManager

	envelopeOnce sync.Once
	minFreq      uint64
	maxFreq      uint64
}

var _ Interface = &HostPlatform{}

// NewHostPlatform opens the procfs and sysfs mounts of the configuration.
func NewHostPlatform(conf *hotplug.PlatformConfiguration) (*HostPlatform, error) {
	procfs, err := procfsmanager.NewProcFSManager(conf.ProcFSRoot)
	if err != nil {
		return nil, err
	}
	sysfs, err := sysfsmanager.NewSysFSManager(conf.SysFSRoot)
	if err != nil {
		return nil, err
	}
	return NewHostPlatformWithManagers(procfs, sysfs), nil
}

func NewHostPlatformWithManagers(procfs procfsmanager.ProcFSManager, sysfs sysfsmanager.SysFSManager) *HostPlatform {
	return &HostPlatform{procfs: procfs, sysfs: sysfs}
}

func (p *HostPlatform) CPUTimes() (map[int]CPUTime, error) {
	stat, err := p.procfs.GetProcStat()
	if err != nil {
		return nil, errors.Wrap(err, "read proc stat")
	}

	times := make(map[int]CPUTime, len(stat.CPU))
	for cpu, s := range stat.CPU {
		// guest time is already accounted in user time
		wall := s.User + s.Nice + s.System + s.Idle + s.Iowait + s.IRQ + s.SoftIRQ + s.Steal
		times[int(cpu)] = CPUTime{
			Idle: toTicks(s.Idle),
			Wall: toTicks(wall),
		}
	}
	return times, nil
}

func (p *HostPlatform) RunQueues() (map[int]int, error) {
	return p.procfs.GetRunnableThreadsPerCPU()
}

func (p *HostPlatform) TotalRunnable() (int, error) {
	stat, err := p.procfs.GetProcStat()
	if err != nil {
		return 0, errors.Wrap(err, "read proc stat")
	}
	return int(stat.ProcessesRunning), nil
}

func (p *HostPlatform) PossibleCores() (int, error) {
	cpus, err := p.sysfs.GetPossibleCPUs()
	if err != nil {
		return 0, err
	}
	if len(cpus) == 0 {
		return 0, errors.New("no possible cpu found")
	}
	return len(cpus), nil
}

func (p *HostPlatform) OnlineCPUs() ([]int, error) {
	return p.sysfs.GetOnlineCPUs()
}

func (p *HostPlatform) IsOnline(cpu int) (bool, error) {
	return p.sysfs.GetCPUOnline(cpu)
}

func (p *HostPlatform) SetOnline(cpu int, online bool) error {
	_, err := p.sysfs.SetCPUOnline(cpu, online)
	return err
}

// ClockEnvelope reads the current rate of the boot core; the bounds are
// read once from the cpufreq tables of the online cores.
func (p *HostPlatform) ClockEnvelope() (types.ClockEnvelope, error) {
	p.envelopeOnce.Do(p.loadFreqBounds)

	cur, err := p.sysfs.GetScalingCurFreq(types.PrimaryCPU)
	if err != nil {
		return types.ClockEnvelope{}, errors.Wrap(err, "read current clock rate")
	}
	return types.ClockEnvelope{Current: cur, Min: p.minFreq, Max: p.maxFreq}, nil
}

func (p *HostPlatform) loadFreqBounds() {
	stats, err := p.sysfs.GetCPUFreqStats()
	if err != nil {
		general.Warningf("read cpufreq tables failed, clock envelope bounds unknown: %v", err)
		return
	}

	for _, stat := range stats {
		if stat.Name == "" {
			continue
		}
		if stat.CpuinfoMinimumFrequency != nil && (p.minFreq == 0 || *stat.CpuinfoMinimumFrequency < p.minFreq) {
			p.minFreq = *stat.CpuinfoMinimumFrequency
		}
		if stat.CpuinfoMaximumFrequency != nil && *stat.CpuinfoMaximumFrequency > p.maxFreq {
			p.maxFreq = *stat.CpuinfoMaximumFrequency
		}
	}
	general.Infof("clock envelope bounds: min %d kHz, max %d kHz", p.minFreq, p.maxFreq)
}

// Governor returns the cpufreq governor of the boot core.
func (p *HostPlatform) Governor() (string, error) {
	return p.sysfs.GetScalingGovernor(types.PrimaryCPU)
}

func toTicks(seconds float64) uint64 {
	return uint64(math.Round(seconds * userHZ))
}
