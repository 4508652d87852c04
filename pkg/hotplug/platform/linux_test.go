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

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// makeHost lays out a dual core host with cpu1 offline.
func makeHost(t *testing.T) *hotplug.PlatformConfiguration {
	t.Helper()

	procRoot, sysRoot := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(procRoot, "stat"), strings.Join([]string{
		"cpu  300 0 100 600 0 0 0 0 0 0",
		"cpu0 300 0 100 600 0 0 0 0 0 0",
		"procs_running 4",
	}, "\n")+"\n")
	fields := make([]string, 40)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = "R"
	writeFile(t, filepath.Join(procRoot, "10", "task", "10", "stat"), fmt.Sprintf("10 (busy) %s\n", strings.Join(fields, " ")))

	cpuDir := filepath.Join(sysRoot, "devices/system/cpu")
	writeFile(t, filepath.Join(cpuDir, "possible"), "0-1\n")
	writeFile(t, filepath.Join(cpuDir, "online"), "0\n")
	writeFile(t, filepath.Join(cpuDir, "offline"), "1\n")
	writeFile(t, filepath.Join(cpuDir, "cpu1", "online"), "0\n")
	freq := filepath.Join(cpuDir, "cpu0", "cpufreq")
	for file, value := range map[string]string{
		"cpuinfo_min_freq":            "200000",
		"cpuinfo_max_freq":            "1400000",
		"scaling_cur_freq":            "500000",
		"scaling_governor":            "ondemand",
		"scaling_available_governors": "ondemand performance",
		"scaling_driver":              "exynos_cpufreq",
		"related_cpus":                "0 1",
		"scaling_setspeed":            "<unsupported>",
	} {
		writeFile(t, filepath.Join(freq, file), value+"\n")
	}

	conf := hotplug.NewPlatformConfiguration()
	conf.ProcFSRoot = procRoot
	conf.SysFSRoot = sysRoot
	return conf
}

func TestHostPlatform(t *testing.T) {
	t.Parallel()

	conf := makeHost(t)
	p, err := NewHostPlatform(conf)
	require.NoError(t, err)

	times, err := p.CPUTimes()
	require.NoError(t, err)
	assert.Equal(t, map[int]CPUTime{0: {Idle: 600, Wall: 1000}}, times)

	runQueues, err := p.RunQueues()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 1}, runQueues)

	total, err := p.TotalRunnable()
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	possible, err := p.PossibleCores()
	require.NoError(t, err)
	assert.Equal(t, 2, possible)

	online, err := p.OnlineCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, online)

	isOnline, err := p.IsOnline(1)
	require.NoError(t, err)
	assert.False(t, isOnline)

	require.NoError(t, p.SetOnline(1, true))
	isOnline, err = p.IsOnline(1)
	require.NoError(t, err)
	assert.True(t, isOnline)

	envelope, err := p.ClockEnvelope()
	require.NoError(t, err)
	assert.Equal(t, types.ClockEnvelope{Current: 500000, Min: 200000, Max: 1400000}, envelope)

	governor, err := p.Governor()
	require.NoError(t, err)
	assert.Equal(t, "ondemand", governor)
}

func TestDryRunPlatform(t *testing.T) {
	t.Parallel()

	conf := makeHost(t)
	host, err := NewHostPlatform(conf)
	require.NoError(t, err)
	p, err := NewDryRunPlatform(host)
	require.NoError(t, err)

	require.NoError(t, p.SetOnline(1, true))
	online, err := p.OnlineCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, online)

	// the host itself is untouched
	hostOnline, err := host.IsOnline(1)
	require.NoError(t, err)
	assert.False(t, hostOnline)

	require.NoError(t, p.SetOnline(1, false))
	isOnline, err := p.IsOnline(1)
	require.NoError(t, err)
	assert.False(t, isOnline)
}
