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
	"strconv"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/hotplug"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// NewBusyProbe builds the probe selected by the configuration.
func NewBusyProbe(conf hotplug.BusyProbeConfiguration) (BusyProbe, error) {
	switch conf.Kind {
	case hotplug.BusyProbeNone, "":
		return NoneBusyProbe{}, nil
	case hotplug.BusyProbeFile:
		if conf.File == "" {
			return nil, errors.New("file busy probe needs a file")
		}
		return &FileBusyProbe{path: conf.File, bit: conf.Bit}, nil
	case hotplug.BusyProbeMMIO:
		return NewMMIOBusyProbe(conf.PhysAddress, conf.Offset, conf.Bit)
	default:
		return nil, errors.Errorf("unknown busy probe kind %q", conf.Kind)
	}
}

// NoneBusyProbe is used on hosts without a busy flag.
type NoneBusyProbe struct{}

func (NoneBusyProbe) Busy() (bool, error) { return false, nil }

func (NoneBusyProbe) Close() error { return nil }

// FileBusyProbe tests a bit of a register value exported in a file,
// in decimal or 0x-prefixed hex.
type FileBusyProbe struct {
	path string
	bit  uint
}

func (f *FileBusyProbe) Busy() (bool, error) {
	s, err := general.ReadStringFromFile(f.path)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return false, errors.Wrapf(err, "parse busy register %q", s)
	}
	return value&(1<<f.bit) != 0, nil
}

func (f *FileBusyProbe) Close() error { return nil }
