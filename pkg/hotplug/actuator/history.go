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

package actuator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

const DefaultHistorySize = 32

// History keeps the latest transitions in a fixed size ring.
type History struct {
	mutex   sync.Mutex
	records []types.Transition
	next    int
	full    bool
}

func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{records: make([]types.Transition, size)}
}

// Record stores a transition under a new id and returns it.
func (h *History) Record(now time.Time, cpu int, online bool, reason string, err error) types.Transition {
	record := types.Transition{
		ID:      uuid.NewString(),
		Time:    now,
		CPU:     cpu,
		Online:  online,
		Reason:  reason,
		Success: err == nil,
	}
	if err != nil {
		record.Error = err.Error()
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.records[h.next] = record
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
	return record
}

// List returns the transitions, oldest first.
func (h *History) List() []types.Transition {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.full {
		return append([]types.Transition(nil), h.records[:h.next]...)
	}
	out := make([]types.Transition, 0, len(h.records))
	out = append(out, h.records[h.next:]...)
	return append(out, h.records[:h.next]...)
}
