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

package consts

const (
	ControlKnobON  = "on"
	ControlKnobOFF = "off"
)

// KatalystComponent defines the component name that current process is running as.
type KatalystComponent string

const (
	KatalystComponentHotplug KatalystComponent = "hotplug"
)

// event bus topics
const (
	TopicNameApplySysFS = "ApplySysFS"
	// TopicNameLifecycle carries host power and display events to the governor.
	TopicNameLifecycle = "HotplugLifecycle"
)

const (
	SystemCpuDir = "devices/system/cpu"

	// DefaultLockFileName is held while a governor is running on the host.
	DefaultLockFileName = "/var/run/katalyst-hotplug.lock"
	// DefaultGenericEndpoint serves metrics, healthz and the control plane.
	DefaultGenericEndpoint = "127.0.0.1:9316"
)

// identity reported through the read-only tunables
const (
	GovernorVersion = "2.1.0"
	GovernorAuthor  = "The Katalyst Authors"
)
