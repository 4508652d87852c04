//go:build linux
// +build linux

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

package manager

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs/sysfs"

	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/sysfs/common"
)

const (
	cpuOnlineFile         = "online"
	cpuPossibleFile       = "possible"
	scalingCurFreqFile    = "cpufreq/scaling_cur_freq"
	scalingGovernorFile   = "cpufreq/scaling_governor"
	cpuOnlineValue        = "1"
	cpuOfflineValue       = "0"
	defaultSysFSMountPath = "/sys"
)

type manager struct {
	sys    sysfs.FS
	cpuDir string
}

// NewSysFSManager returns a manager rooted at the given sysfs mount point.
func NewSysFSManager(root string) (SysFSManager, error) {
	if root == "" {
		root = defaultSysFSMountPath
	}

	sys, err := sysfs.NewFS(root)
	if err != nil {
		return nil, errors.Wrapf(err, "open sysfs at %s", root)
	}
	return &manager{sys: sys, cpuDir: filepath.Join(root, consts.SystemCpuDir)}, nil
}

func (m *manager) GetPossibleCPUs() ([]int, error) {
	return m.readCPUList(cpuPossibleFile)
}

func (m *manager) GetOnlineCPUs() ([]int, error) {
	return m.readCPUList(cpuOnlineFile)
}

// GetCPUOnline reads the per-cpu online attribute; a cpu without one
// cannot be hot removed and is always online.
func (m *manager) GetCPUOnline(cpu int) (bool, error) {
	path := filepath.Join(m.cpuPath(cpu), cpuOnlineFile)
	if !general.IsPathExists(path) {
		return true, nil
	}

	value, err := general.ReadInt64FromFile(path)
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

func (m *manager) GetCPUFreqStats() ([]sysfs.SystemCPUCpufreqStats, error) {
	return m.sys.SystemCpufreq()
}

func (m *manager) GetScalingCurFreq(cpu int) (uint64, error) {
	return general.ReadUint64FromFile(filepath.Join(m.cpuPath(cpu), scalingCurFreqFile))
}

func (m *manager) GetScalingGovernor(cpu int) (string, error) {
	return general.ReadStringFromFile(filepath.Join(m.cpuPath(cpu), scalingGovernorFile))
}

func (m *manager) SetCPUOnline(cpu int, online bool) (bool, error) {
	value := cpuOfflineValue
	if online {
		value = cpuOnlineValue
	}

	applied, oldData, err := common.InstrumentedWriteFileIfChange(m.cpuPath(cpu), cpuOnlineFile, value)
	if err != nil {
		return false, err
	} else if applied {
		general.Infof("[Sysfs] set cpu%d online %v successfully, old data: %v", cpu, value, oldData)
	}
	return applied, nil
}

func (m *manager) cpuPath(cpu int) string {
	return filepath.Join(m.cpuDir, fmt.Sprintf("cpu%d", cpu))
}

func (m *manager) readCPUList(file string) ([]int, error) {
	list, err := general.ParseLinuxListFormatFromFile(filepath.Join(m.cpuDir, file))
	if err != nil {
		return nil, err
	}

	cpus := make([]int, 0, len(list))
	for _, cpu := range list {
		cpus = append(cpus, int(cpu))
	}
	sort.Ints(cpus)
	return cpus, nil
}

// ParseCPUName returns the index of a sysfs cpu name such as "cpu3" or "3".
func ParseCPUName(name string) (int, error) {
	if len(name) > 3 && name[:3] == "cpu" {
		name = name[3:]
	}
	return strconv.Atoi(name)
}
