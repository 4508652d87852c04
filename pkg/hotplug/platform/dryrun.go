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
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// DryRunPlatform never writes core states; transitions are mirrored in
// memory and reads of the online set come from the mirror.
type DryRunPlatform struct {
	Interface

	mutex  sync.RWMutex
	online sets.Int
}

// NewDryRunPlatform snapshots the online cpus of the wrapped platform.
func NewDryRunPlatform(p Interface) (*DryRunPlatform, error) {
	online, err := p.OnlineCPUs()
	if err != nil {
		return nil, err
	}
	return &DryRunPlatform{Interface: p, online: sets.NewInt(online...)}, nil
}

func (d *DryRunPlatform) OnlineCPUs() ([]int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.online.List(), nil
}

func (d *DryRunPlatform) IsOnline(cpu int) (bool, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.online.Has(cpu), nil
}

func (d *DryRunPlatform) SetOnline(cpu int, online bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if online {
		d.online.Insert(cpu)
	} else {
		d.online.Delete(cpu)
	}
	general.Infof("[dry-run] cpu%d online=%v, online cpus: %v", cpu, online, d.online.List())
	return nil
}
