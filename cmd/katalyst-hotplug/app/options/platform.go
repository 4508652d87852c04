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

package options

import (
	"github.com/spf13/pflag"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
)

const (
	flagBusyProbeKind        = "busy-probe"
	flagBusyProbePhysAddress = "busy-probe-phys-address"
	flagBusyProbeOffset      = "busy-probe-offset"
	flagBusyProbeFile        = "busy-probe-file"
	flagBusyProbeBit         = "busy-probe-bit"
)

// PlatformOptions locates the host interfaces; the busy probe may also come
// from the config file.
type PlatformOptions struct {
	ProcFSRoot string
	SysFSRoot  string
	DryRun     bool

	BusyProbeKind        string
	BusyProbePhysAddress uint64
	BusyProbeOffset      uint64
	BusyProbeFile        string
	BusyProbeBit         uint

	fs *pflag.FlagSet
}

func NewPlatformOptions() *PlatformOptions {
	c := hotplug.NewPlatformConfiguration()
	return &PlatformOptions{
		ProcFSRoot:    c.ProcFSRoot,
		SysFSRoot:     c.SysFSRoot,
		DryRun:        c.DryRun,
		BusyProbeKind: string(c.BusyProbe.Kind),
	}
}

// AddFlags adds flags  to the specified FlagSet.
func (o *PlatformOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("platform")
	o.fs = fs

	fs.StringVar(&o.ProcFSRoot, "procfs-root", o.ProcFSRoot, "the mount point of procfs")
	fs.StringVar(&o.SysFSRoot, "sysfs-root", o.SysFSRoot, "the mount point of sysfs")
	fs.BoolVar(&o.DryRun, "dry-run", o.DryRun,
		"log core transitions and mirror them in memory instead of writing sysfs")

	fs.StringVar(&o.BusyProbeKind, flagBusyProbeKind, o.BusyProbeKind,
		"where the hardware busy flag is read from, one of none, file, mmio")
	fs.Uint64Var(&o.BusyProbePhysAddress, flagBusyProbePhysAddress, o.BusyProbePhysAddress,
		"the physical address of the register block holding the busy flag")
	fs.Uint64Var(&o.BusyProbeOffset, flagBusyProbeOffset, o.BusyProbeOffset,
		"the offset of the busy flag register in the block")
	fs.StringVar(&o.BusyProbeFile, flagBusyProbeFile, o.BusyProbeFile,
		"the file holding the register value for the file busy probe")
	fs.UintVar(&o.BusyProbeBit, flagBusyProbeBit, o.BusyProbeBit, "the bit of the busy flag in the register")
}

func (o *PlatformOptions) ApplyTo(c *hotplug.PlatformConfiguration) error {
	c.ProcFSRoot = o.ProcFSRoot
	c.SysFSRoot = o.SysFSRoot
	c.DryRun = o.DryRun

	if changed(o.fs, flagBusyProbeKind) {
		c.BusyProbe.Kind = hotplug.BusyProbeKind(o.BusyProbeKind)
	}
	if changed(o.fs, flagBusyProbePhysAddress) {
		c.BusyProbe.PhysAddress = o.BusyProbePhysAddress
	}
	if changed(o.fs, flagBusyProbeOffset) {
		c.BusyProbe.Offset = o.BusyProbeOffset
	}
	if changed(o.fs, flagBusyProbeFile) {
		c.BusyProbe.File = o.BusyProbeFile
	}
	if changed(o.fs, flagBusyProbeBit) {
		c.BusyProbe.Bit = o.BusyProbeBit
	}
	return nil
}
