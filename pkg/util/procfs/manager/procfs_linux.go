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
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"

	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	defaultProcFSMountPath = "/proc"
	threadStateRunning     = "R"
)

type manager struct {
	procfs procfs.FS
}

// NewProcFSManager return a manager for procfs mounted at root.
func NewProcFSManager(root string) (ProcFSManager, error) {
	if root == "" {
		root = defaultProcFSMountPath
	}

	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, errors.Wrapf(err, "open procfs at %s", root)
	}
	return &manager{procfs: fs}, nil
}

// GetProcStat returns the Stat of the host.
func (m *manager) GetProcStat() (procfs.Stat, error) {
	return m.procfs.Stat()
}

// GetRunnableThreadsPerCPU walks every thread of every process; tasks
// exiting during the walk are skipped.
func (m *manager) GetRunnableThreadsPerCPU() (map[int]int, error) {
	procs, err := m.procfs.AllProcs()
	if err != nil {
		return nil, errors.Wrap(err, "list processes")
	}

	runnable := make(map[int]int)
	for _, proc := range procs {
		threads, err := m.procfs.AllThreads(proc.PID)
		if err != nil {
			if !os.IsNotExist(errors.Cause(err)) {
				general.InfofV(6, "[Procfs] list threads of pid %d failed, err: %v", proc.PID, err)
			}
			continue
		}

		for _, thread := range threads {
			stat, err := thread.Stat()
			if err != nil {
				continue
			}
			if stat.State == threadStateRunning {
				runnable[int(stat.Processor)]++
			}
		}
	}
	return runnable, nil
}
