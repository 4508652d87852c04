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
	"github.com/prometheus/procfs/sysfs"
)

// SysFSManager reads and writes the cpu topology attributes under a sysfs mount.
type SysFSManager interface {
	GetPossibleCPUs() ([]int, error)
	GetOnlineCPUs() ([]int, error)
	GetCPUOnline(cpu int) (bool, error)
	GetCPUFreqStats() ([]sysfs.SystemCPUCpufreqStats, error)
	GetScalingCurFreq(cpu int) (uint64, error)
	GetScalingGovernor(cpu int) (string, error)

	// SetCPUOnline returns whether the attribute was actually rewritten.
	SetCPUOnline(cpu int, online bool) (bool, error)
}
