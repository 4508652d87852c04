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

package eventbus

import (
	"time"
)

type BaseEvent interface {
	GetTime() time.Time
}

type BaseEventImpl struct {
	Time time.Time
}

func (b *BaseEventImpl) GetTime() time.Time {
	return b.Time
}

// RawSysfsEvent is published after a sysfs attribute has been rewritten.
type RawSysfsEvent struct {
	BaseEventImpl
	Cost      time.Duration
	SysfsPath string
	SysfsFile string
	Data      string
	OldData   string
}
