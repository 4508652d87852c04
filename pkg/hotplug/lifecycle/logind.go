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

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInterface = "org.freedesktop.login1.Manager"

	signalPrepareForSleep    = logindInterface + ".PrepareForSleep"
	signalPrepareForShutdown = logindInterface + ".PrepareForShutdown"
)

// LogindSource reports sleep and shutdown from systemd-logind signals.
type LogindSource struct {
	publisher Publisher
	connect   func() (*dbus.Conn, error)
	logger    general.Logger
}

func NewLogindSource(publisher Publisher) *LogindSource {
	return &LogindSource{
		publisher: publisher,
		connect:   func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
		logger:    general.LoggerWithPrefix("logind"),
	}
}

func (s *LogindSource) Name() string { return "logind" }

// Run subscribes to logind and publishes until ctx is done.
func (s *LogindSource) Run(ctx context.Context) error {
	conn, err := s.connect()
	if err != nil {
		return errors.Wrap(err, "connect system bus")
	}
	defer func() {
		_ = conn.Close()
	}()

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(logindPath),
			dbus.WithMatchInterface(logindInterface),
			dbus.WithMatchMember(member),
		); err != nil {
			return errors.Wrapf(err, "match logind %s", member)
		}
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	s.logger.Infof("watching logind sleep and shutdown signals")
	for {
		select {
		case <-ctx.Done():
			return nil
		case signal, ok := <-signals:
			if !ok {
				return errors.New("system bus connection closed")
			}
			eventType, ok := eventFromSignal(signal)
			if !ok {
				continue
			}
			if err := s.publisher.Publish(eventType, ""); err != nil {
				s.logger.Errorf("publish %s failed: %v", eventType, err)
			}
		}
	}
}

// eventFromSignal maps PrepareForSleep(true/false) to suspend-prepare and
// post-suspend, and PrepareForShutdown(true) to reboot.
func eventFromSignal(signal *dbus.Signal) (EventType, bool) {
	if signal == nil || len(signal.Body) != 1 {
		return "", false
	}
	start, ok := signal.Body[0].(bool)
	if !ok {
		return "", false
	}

	switch signal.Name {
	case signalPrepareForSleep:
		if start {
			return EventSuspendPrepare, true
		}
		return EventPostSuspend, true
	case signalPrepareForShutdown:
		if start {
			return EventReboot, true
		}
	}
	return "", false
}
