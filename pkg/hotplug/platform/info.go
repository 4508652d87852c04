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

package platform

import (
	"github.com/klauspost/cpuid/v2"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

// Info describes the host cpu as far as cpuid can tell; on cores without
// cpuid the brand and vendor stay empty.
func Info(profile string, dryRun bool) types.PlatformInfo {
	return types.PlatformInfo{
		Profile:       profile,
		CPUBrand:      cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		LogicalCores:  cpuid.CPU.LogicalCores,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		DryRun:        dryRun,
	}
}
