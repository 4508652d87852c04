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

package generic

import (
	"time"
)

// GenericConfiguration stores the configurations shared by the daemon and its tools.
type GenericConfiguration struct {
	EnableHealthzCheck bool

	// GenericEndpoint serves metrics, healthz, profiling and the control plane.
	GenericEndpoint             string
	GenericEndpointHandleChains []string
	// per-visitor token bucket of the rateLimiter handler chain
	HTTPRateLimitQPS   float64
	HTTPRateLimitBurst int

	// LockFileName guards against two governors acting on the same host.
	LockFileName       string
	LockWaitingEnabled bool

	*MetricsConfiguration
	*LogConfiguration
}

// NewGenericConfiguration creates a new generic configuration.
func NewGenericConfiguration() *GenericConfiguration {
	return &GenericConfiguration{
		MetricsConfiguration: NewMetricsConfiguration(),
		LogConfiguration:     NewLogConfiguration(),
	}
}

type MetricsConfiguration struct {
	EmitterPrometheusGCTimeout time.Duration
}

func NewMetricsConfiguration() *MetricsConfiguration {
	return &MetricsConfiguration{
		EmitterPrometheusGCTimeout: 5 * time.Minute,
	}
}

type LogConfiguration struct {
	// TickLogVerbosity is the klog level used for per-tick decisions.
	TickLogVerbosity int
}

func NewLogConfiguration() *LogConfiguration {
	return &LogConfiguration{
		TickLogVerbosity: 4,
	}
}
