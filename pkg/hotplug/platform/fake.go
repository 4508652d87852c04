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
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

// FakePlatform is an in-memory host used by tests and by callers that
// want to drive the governor without touching the kernel.
type FakePlatform struct {
	mutex sync.Mutex

	possible      int
	online        sets.Int
	times         map[int]CPUTime
	runQueues     map[int]int
	totalRunnable int
	envelope      types.ClockEnvelope
	busy          bool
	failSetOnline map[int]error
	transitions   []FakeTransition
}

// FakeTransition records one SetOnline call that succeeded.
type FakeTransition struct {
	CPU    int
	Online bool
}

var _ Interface = &FakePlatform{}

// NewFakePlatform returns a host with possible cores of which the first
// online ones are up.
func NewFakePlatform(possible, online int) *FakePlatform {
	f := &FakePlatform{
		possible:      possible,
		online:        sets.NewInt(),
		times:         make(map[int]CPUTime),
		runQueues:     make(map[int]int),
		failSetOnline: make(map[int]error),
	}
	for cpu := 0; cpu < online; cpu++ {
		f.online.Insert(cpu)
	}
	return f
}

// AddTimes advances the counters of cpu by idle and wall ticks.
func (f *FakePlatform) AddTimes(cpu int, idle, wall uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	t := f.times[cpu]
	t.Idle += idle
	t.Wall += wall
	f.times[cpu] = t
}

// SetLoad advances the counters of every online cpu so that the next
// sample sees the given load over wall ticks.
func (f *FakePlatform) SetLoad(load int, wall uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	idle := wall * uint64(100-load) / 100
	for cpu := range f.online {
		t := f.times[cpu]
		t.Idle += idle
		t.Wall += wall
		f.times[cpu] = t
	}
}

func (f *FakePlatform) SetRunQueue(cpu, length int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.runQueues[cpu] = length
}

func (f *FakePlatform) SetTotalRunnable(n int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.totalRunnable = n
}

func (f *FakePlatform) SetClockEnvelope(envelope types.ClockEnvelope) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.envelope = envelope
}

func (f *FakePlatform) SetBusy(busy bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.busy = busy
}

// FailSetOnline makes transitions of cpu fail with err; nil clears it.
func (f *FakePlatform) FailSetOnline(cpu int, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err == nil {
		delete(f.failSetOnline, cpu)
		return
	}
	f.failSetOnline[cpu] = err
}

// Transitions returns the successful SetOnline calls so far.
func (f *FakePlatform) Transitions() []FakeTransition {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]FakeTransition(nil), f.transitions...)
}

func (f *FakePlatform) CPUTimes() (map[int]CPUTime, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	times := make(map[int]CPUTime, len(f.times))
	for cpu, t := range f.times {
		times[cpu] = t
	}
	return times, nil
}

func (f *FakePlatform) RunQueues() (map[int]int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	runQueues := make(map[int]int, len(f.runQueues))
	for cpu, n := range f.runQueues {
		runQueues[cpu] = n
	}
	return runQueues, nil
}

func (f *FakePlatform) TotalRunnable() (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.totalRunnable, nil
}

func (f *FakePlatform) PossibleCores() (int, error) {
	return f.possible, nil
}

func (f *FakePlatform) OnlineCPUs() ([]int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.online.List(), nil
}

func (f *FakePlatform) IsOnline(cpu int) (bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.online.Has(cpu), nil
}

func (f *FakePlatform) SetOnline(cpu int, online bool) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if cpu < 0 || cpu >= f.possible {
		return fmt.Errorf("cpu%d does not exist", cpu)
	}
	if err := f.failSetOnline[cpu]; err != nil {
		return err
	}
	if online {
		f.online.Insert(cpu)
	} else {
		f.online.Delete(cpu)
	}
	f.transitions = append(f.transitions, FakeTransition{CPU: cpu, Online: online})
	return nil
}

func (f *FakePlatform) ClockEnvelope() (types.ClockEnvelope, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.envelope, nil
}

func (f *FakePlatform) Busy() (bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.busy, nil
}

func (f *FakePlatform) Close() error { return nil }
