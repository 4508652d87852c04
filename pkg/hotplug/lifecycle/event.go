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

// Package lifecycle turns host notifications (sleep, shutdown, screen and
// cpufreq governor changes) into typed events delivered over the event bus.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/eventbus"
)

type EventType string

const (
	EventSuspendPrepare  EventType = "suspend-prepare"
	EventPostSuspend     EventType = "post-suspend"
	EventPostRestore     EventType = "post-restore"
	EventReboot          EventType = "reboot"
	EventScreenOff       EventType = "screen-off"
	EventScreenOn        EventType = "screen-on"
	EventGovernorChanged EventType = "governor-changed"
)

var eventTypes = []EventType{
	EventSuspendPrepare, EventPostSuspend, EventPostRestore, EventReboot,
	EventScreenOff, EventScreenOn, EventGovernorChanged,
}

// ParseEventType accepts the names above case-insensitively.
func ParseEventType(name string) (EventType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range eventTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown lifecycle event %q", name)
}

// Event is one host notification; Governor is only set for governor changes.
type Event struct {
	eventbus.BaseEventImpl
	Type     EventType
	Governor string
}

func (e Event) String() string {
	if e.Type == EventGovernorChanged {
		return fmt.Sprintf("%s(%s)", e.Type, e.Governor)
	}
	return string(e.Type)
}

// Handler consumes lifecycle events in publishing order.
type Handler interface {
	HandleLifecycleEvent(event Event)
}

// Publisher hands events to the subscribers.
type Publisher interface {
	Publish(eventType EventType, governor string) error
}

type busPublisher struct {
	bus eventbus.EventBus
}

// NewPublisher publishes on the lifecycle topic of bus.
func NewPublisher(bus eventbus.EventBus) Publisher {
	return &busPublisher{bus: bus}
}

func (p *busPublisher) Publish(eventType EventType, governor string) error {
	return p.bus.Publish(consts.TopicNameLifecycle, Event{
		BaseEventImpl: eventbus.BaseEventImpl{Time: time.Now()},
		Type:          eventType,
		Governor:      governor,
	})
}

// Subscribe registers handler on the lifecycle topic of bus.
func Subscribe(bus eventbus.EventBus, subscriber string, bufferSize int, handler Handler) error {
	return bus.Subscribe(consts.TopicNameLifecycle, subscriber, bufferSize, func(e interface{}) error {
		event, ok := e.(Event)
		if !ok {
			return fmt.Errorf("unexpected lifecycle event type %T", e)
		}
		handler.HandleLifecycleEvent(event)
		return nil
	})
}
