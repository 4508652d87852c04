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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// makeCPUTree lays out a cpu directory with cpu0 lacking an online
// attribute, as the boot core does on most boards.
func makeCPUTree(t *testing.T, cores int, online []bool) string {
	t.Helper()

	root := t.TempDir()
	cpuDir := filepath.Join(root, "devices/system/cpu")
	writeFile(t, filepath.Join(cpuDir, "possible"), fmt.Sprintf("0-%d\n", cores-1))
	onlineList, offlineList := "", ""
	for i := 0; i < cores; i++ {
		dir := filepath.Join(cpuDir, fmt.Sprintf("cpu%d", i))
		if i > 0 {
			value := "0"
			if online[i] {
				value = "1"
			}
			writeFile(t, filepath.Join(dir, "online"), value+"\n")
		}
		target := &offlineList
		if online[i] {
			target = &onlineList
		}
		if *target != "" {
			*target += ","
		}
		*target += fmt.Sprint(i)
		if !online[i] {
			continue
		}
		freq := filepath.Join(dir, "cpufreq")
		writeFile(t, filepath.Join(freq, "cpuinfo_min_freq"), "200000\n")
		writeFile(t, filepath.Join(freq, "cpuinfo_max_freq"), "1400000\n")
		writeFile(t, filepath.Join(freq, "scaling_cur_freq"), "800000\n")
		writeFile(t, filepath.Join(freq, "scaling_governor"), "ondemand\n")
		for _, f := range []string{"scaling_available_governors", "scaling_driver", "related_cpus", "scaling_setspeed"} {
			writeFile(t, filepath.Join(freq, f), "\n")
		}
	}
	writeFile(t, filepath.Join(cpuDir, "online"), onlineList+"\n")
	writeFile(t, filepath.Join(cpuDir, "offline"), offlineList+"\n")
	return root
}

func TestSysFSManager(t *testing.T) {
	t.Parallel()

	root := makeCPUTree(t, 4, []bool{true, true, false, true})
	m, err := NewSysFSManager(root)
	require.NoError(t, err)

	possible, err := m.GetPossibleCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, possible)

	online, err := m.GetOnlineCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, online)

	isOnline, err := m.GetCPUOnline(0)
	require.NoError(t, err)
	assert.True(t, isOnline)
	isOnline, err = m.GetCPUOnline(2)
	require.NoError(t, err)
	assert.False(t, isOnline)

	applied, err := m.SetCPUOnline(2, true)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = m.SetCPUOnline(2, true)
	require.NoError(t, err)
	assert.False(t, applied)
	isOnline, err = m.GetCPUOnline(2)
	require.NoError(t, err)
	assert.True(t, isOnline)

	_, err = m.SetCPUOnline(0, false)
	assert.Error(t, err)

	freq, err := m.GetScalingCurFreq(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(800000), freq)

	governor, err := m.GetScalingGovernor(0)
	require.NoError(t, err)
	assert.Equal(t, "ondemand", governor)

	stats, err := m.GetCPUFreqStats()
	require.NoError(t, err)
	named := 0
	for _, stat := range stats {
		if stat.Name == "" {
			continue
		}
		named++
		require.NotNil(t, stat.CpuinfoMaximumFrequency)
		assert.Equal(t, uint64(1400000), *stat.CpuinfoMaximumFrequency)
	}
	assert.Equal(t, 3, named)
}

func TestParseCPUName(t *testing.T) {
	t.Parallel()

	cpu, err := ParseCPUName("cpu12")
	require.NoError(t, err)
	assert.Equal(t, 12, cpu)

	cpu, err = ParseCPUName("3")
	require.NoError(t, err)
	assert.Equal(t, 3, cpu)

	_, err = ParseCPUName("cpufreq")
	assert.Error(t, err)
}
