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

package common

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/eventbus"
)

// InstrumentedWriteFileIfChange writes data to the sysfs attribute joined by
// dir and file when it differs from the current content, and publishes a
// RawSysfsEvent for every applied write.
func InstrumentedWriteFileIfChange(dir, file, data string) (applied bool, oldData string, err error) {
	startTime := time.Now()
	defer func() {
		if applied {
			_ = eventbus.GetDefaultEventBus().Publish(consts.TopicNameApplySysFS, eventbus.RawSysfsEvent{
				BaseEventImpl: eventbus.BaseEventImpl{
					Time: startTime,
				},
				Cost:      time.Since(startTime),
				SysfsPath: dir,
				SysfsFile: file,
				Data:      data,
				OldData:   oldData,
			})
		}
	}()

	applied, oldData, err = writeFileIfChange(dir, file, data)
	return
}

// writeFileIfChange compares trimmed contents, sysfs attributes are read
// back with a trailing newline.
func writeFileIfChange(dir, file, data string) (bool, string, error) {
	path := filepath.Join(dir, file)
	oldData, err := os.ReadFile(path)
	if err != nil {
		return false, "", errors.Wrapf(err, "read %s", path)
	}
	oldDataStr := strings.TrimSpace(string(oldData))

	if strings.TrimSpace(data) == oldDataStr {
		return false, oldDataStr, nil
	}
	if err = os.WriteFile(path, []byte(data), 0o644); err != nil {
		return false, oldDataStr, errors.Wrapf(err, "write %q to %s", data, path)
	}
	return true, oldDataStr, nil
}
