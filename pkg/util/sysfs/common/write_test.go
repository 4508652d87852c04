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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/eventbus"
)

func TestInstrumentedWriteFileIfChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "online"), []byte("1\n"), 0o644))

	events := make(chan eventbus.RawSysfsEvent, 4)
	subscriber := "write-test-" + filepath.Base(dir)
	bus := eventbus.GetDefaultEventBus()
	require.NoError(t, bus.Subscribe(consts.TopicNameApplySysFS, subscriber, 4, func(e interface{}) error {
		if raw, ok := e.(eventbus.RawSysfsEvent); ok && raw.SysfsPath == dir {
			events <- raw
		}
		return nil
	}))
	defer bus.Unsubscribe(consts.TopicNameApplySysFS, subscriber)

	applied, oldData, err := InstrumentedWriteFileIfChange(dir, "online", "1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "1", oldData)

	applied, oldData, err = InstrumentedWriteFileIfChange(dir, "online", "0")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "1", oldData)

	data, err := os.ReadFile(filepath.Join(dir, "online"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))

	select {
	case e := <-events:
		assert.Equal(t, "online", e.SysfsFile)
		assert.Equal(t, "0", e.Data)
		assert.Equal(t, "1", e.OldData)
	case <-time.After(5 * time.Second):
		t.Fatal("no sysfs event published")
	}

	_, _, err = InstrumentedWriteFileIfChange(dir, "missing", "1")
	assert.Error(t, err)
}
