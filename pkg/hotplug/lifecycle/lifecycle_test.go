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

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-hotplug/pkg/util/eventbus"
)

type recorder struct {
	mutex  sync.Mutex
	events []Event
}

func (r *recorder) HandleLifecycleEvent(event Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Publish(eventType EventType, governor string) error {
	r.HandleLifecycleEvent(Event{Type: eventType, Governor: governor})
	return nil
}

func (r *recorder) types() []EventType {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	types := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func TestParseEventType(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"suspend-prepare", "POST-SUSPEND", " reboot ", "governor-changed"} {
		_, err := ParseEventType(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseEventType("hibernate")
	assert.Error(t, err)

	assert.Equal(t, "governor-changed(pegasusq)", Event{Type: EventGovernorChanged, Governor: "pegasusq"}.String())
	assert.Equal(t, "screen-on", Event{Type: EventScreenOn}.String())
}

func TestEventFromSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		signal *dbus.Signal
		want   EventType
		ok     bool
	}{
		{name: "sleep start", signal: &dbus.Signal{Name: signalPrepareForSleep, Body: []interface{}{true}}, want: EventSuspendPrepare, ok: true},
		{name: "sleep end", signal: &dbus.Signal{Name: signalPrepareForSleep, Body: []interface{}{false}}, want: EventPostSuspend, ok: true},
		{name: "shutdown", signal: &dbus.Signal{Name: signalPrepareForShutdown, Body: []interface{}{true}}, want: EventReboot, ok: true},
		{name: "shutdown cancelled", signal: &dbus.Signal{Name: signalPrepareForShutdown, Body: []interface{}{false}}},
		{name: "bad body", signal: &dbus.Signal{Name: signalPrepareForSleep, Body: []interface{}{"yes"}}},
		{name: "other member", signal: &dbus.Signal{Name: logindInterface + ".SessionNew", Body: []interface{}{true}}},
		{name: "nil"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := eventFromSignal(tt.signal)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	bus := eventbus.NewEventBus(8)
	r := &recorder{}
	require.NoError(t, Subscribe(bus, "test", 8, r))

	publisher := NewPublisher(bus)
	require.NoError(t, publisher.Publish(EventSuspendPrepare, ""))
	require.NoError(t, publisher.Publish(EventPostSuspend, ""))
	require.NoError(t, publisher.Publish(EventGovernorChanged, "schedutil"))

	assert.Eventually(t, func() bool { return len(r.types()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []EventType{EventSuspendPrepare, EventPostSuspend, EventGovernorChanged}, r.types())

	r.mutex.Lock()
	defer r.mutex.Unlock()
	assert.Equal(t, "schedutil", r.events[2].Governor)
	assert.False(t, r.events[0].GetTime().IsZero())
}

func TestGovernorSource(t *testing.T) {
	t.Parallel()

	reads := []string{"ondemand", "ondemand", "pegasusq", "", "pegasusq", "schedutil"}
	r := &recorder{}
	source := NewGovernorSource(r, func() (string, error) {
		value := reads[0]
		reads = reads[1:]
		if value == "" {
			return "", fmt.Errorf("no cpufreq")
		}
		return value, nil
	}, time.Second)

	for i := 0; i < 6; i++ {
		source.poll(context.Background())
	}

	assert.Equal(t, []EventType{EventGovernorChanged, EventGovernorChanged, EventGovernorChanged}, r.types())
	r.mutex.Lock()
	defer r.mutex.Unlock()
	assert.Equal(t, "ondemand", r.events[0].Governor)
	assert.Equal(t, "pegasusq", r.events[1].Governor)
	assert.Equal(t, "schedutil", r.events[2].Governor)
}

func TestScreenSource(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "screen_state")
	require.NoError(t, os.WriteFile(file, []byte("off\n"), 0o644))

	r := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewScreenSource(r, file).Run(ctx) }()

	assert.Eventually(t, func() bool { return len(r.types()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(file, []byte("on\n"), 0o644))
	assert.Eventually(t, func() bool { return len(r.types()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []EventType{EventScreenOff, EventScreenOn}, r.types())

	cancel()
	assert.NoError(t, <-done)
}

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Run(_ context.Context) error { return fmt.Errorf("no bus") }

type blockingSource struct{}

func (blockingSource) Name() string { return "blocking" }

func (blockingSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestRunSources(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, RunSources(ctx, failingSource{}, blockingSource{}))
}
