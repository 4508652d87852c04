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
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// ScreenSource watches a file holding "on" or "off" and publishes the
// screen state whenever the content changes.
type ScreenSource struct {
	publisher Publisher
	file      string
	logger    general.Logger
}

func NewScreenSource(publisher Publisher, file string) *ScreenSource {
	return &ScreenSource{publisher: publisher, file: file, logger: general.LoggerWithPrefix("screen")}
}

func (s *ScreenSource) Name() string { return "screen" }

func (s *ScreenSource) Run(ctx context.Context) error {
	changes, err := general.RegisterFileEventWatcher(ctx.Done(), general.FileWatcherInfo{
		Filename: filepath.Base(s.file),
		Path:     []string{filepath.Dir(s.file)},
		Op:       fsnotify.Create | fsnotify.Write,
	})
	if err != nil {
		return errors.Wrapf(err, "watch screen state %s", s.file)
	}

	last := ""
	publish := func() {
		content, err := general.ReadStringFromFile(s.file)
		if err != nil {
			s.logger.Warningf("read screen state %s: %v", s.file, err)
			return
		}

		var eventType EventType
		switch strings.ToLower(strings.TrimSpace(content)) {
		case consts.ControlKnobON:
			eventType = EventScreenOn
		case consts.ControlKnobOFF:
			eventType = EventScreenOff
		default:
			s.logger.Warningf("unknown screen state %q in %s", content, s.file)
			return
		}
		if string(eventType) == last {
			return
		}
		last = string(eventType)

		if err := s.publisher.Publish(eventType, ""); err != nil {
			s.logger.Errorf("publish %s failed: %v", eventType, err)
		}
	}

	if general.IsPathExists(s.file) {
		publish()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			publish()
		}
	}
}
