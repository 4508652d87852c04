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

// Package worker provides a cancellable delayed work item that is executed
// by a single goroutine.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/utils/clock"

	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// WorkFunc is the body of a delayed work item.
type WorkFunc func(ctx context.Context)

// DelayedWork runs fn once per Queue after the requested delay. At most one
// execution is queued at a time and executions never overlap.
type DelayedWork struct {
	name  string
	fn    WorkFunc
	clock clock.WithDelayedExecution

	mu         sync.Mutex
	timer      clock.Timer
	generation uint64
	pending    bool

	// fired is the highest generation whose timer expired.
	fired *atomic.Uint64
	kick  chan struct{}
	runs  *atomic.Uint64
}

func NewDelayedWork(name string, fn WorkFunc, clk clock.WithDelayedExecution) *DelayedWork {
	return &DelayedWork{
		name:  name,
		fn:    fn,
		clock: clk,
		fired: atomic.NewUint64(0),
		kick:  make(chan struct{}, 1),
		runs:  atomic.NewUint64(0),
	}
}

// Queue schedules an execution after delay and reports whether it did; it is
// a no-op while an execution is already pending.
func (w *DelayedWork) Queue(delay time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending {
		return false
	}
	w.queueLocked(delay)
	return true
}

// Reschedule replaces any pending execution with one after delay.
func (w *DelayedWork) Reschedule(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancelLocked()
	w.queueLocked(delay)
}

// Cancel drops the pending execution and reports whether there was one. An
// execution that already started is not interrupted.
func (w *DelayedWork) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.cancelLocked()
}

// Pending reports whether an execution is queued and has not started yet.
func (w *DelayedWork) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.pending
}

// Runs returns the number of completed executions.
func (w *DelayedWork) Runs() uint64 {
	return w.runs.Load()
}

// Run dispatches expired executions until ctx is done.
func (w *DelayedWork) Run(ctx context.Context) {
	general.Infof("delayed work %s started", w.name)
	defer general.Infof("delayed work %s stopped", w.name)

	for {
		select {
		case <-ctx.Done():
			w.Cancel()
			return
		case <-w.kick:
			if !w.takeDue() {
				continue
			}
			w.fn(ctx)
			w.runs.Inc()
		}
	}
}

func (w *DelayedWork) queueLocked(delay time.Duration) {
	w.generation++
	w.pending = true

	generation := w.generation
	if delay <= 0 {
		w.timer = nil
		w.expire(generation)
		return
	}
	w.timer = w.clock.AfterFunc(delay, func() { w.expire(generation) })
}

func (w *DelayedWork) cancelLocked() bool {
	if !w.pending {
		return false
	}
	w.generation++
	w.pending = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	return true
}

// expire must not take w.mu: fake clocks call it while holding their own
// lock, which Queue takes under w.mu.
func (w *DelayedWork) expire(generation uint64) {
	for {
		fired := w.fired.Load()
		if fired >= generation || w.fired.CAS(fired, generation) {
			break
		}
	}

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *DelayedWork) takeDue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.pending || w.fired.Load() != w.generation {
		return false
	}
	w.pending = false
	w.timer = nil
	return true
}
