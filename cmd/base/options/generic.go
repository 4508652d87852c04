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

package options

import (
	"flag"
	"os"

	"k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/generic"
	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/process"
)

// GenericOptions holds the configurations shared by the daemon and its tools.
type GenericOptions struct {
	EnableHealthzCheck bool

	GenericEndpoint             string
	GenericEndpointHandleChains []string
	HTTPRateLimitQPS            float64
	HTTPRateLimitBurst          int

	LockFileName       string
	LockWaitingEnabled bool

	metricsOptions *MetricsOptions
	logsOptions    *LogsOptions
}

func NewGenericOptions() *GenericOptions {
	return &GenericOptions{
		EnableHealthzCheck: false,
		GenericEndpoint:    consts.DefaultGenericEndpoint,
		GenericEndpointHandleChains: []string{
			process.HTTPChainRateLimiter, process.HTTPChainMonitor,
		},
		HTTPRateLimitQPS:   10,
		HTTPRateLimitBurst: 20,
		LockFileName:       consts.DefaultLockFileName,
		metricsOptions:     NewMetricsOptions(),
		logsOptions:        NewLogsOptions(),
	}
}

// AddFlags adds flags  to the specified FlagSet.
func (o *GenericOptions) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("generic")

	local := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	klog.InitFlags(local)
	local.VisitAll(func(fl *flag.Flag) {
		fs.AddGoFlag(fl)
	})

	fs.BoolVar(&o.EnableHealthzCheck, "enable-healthz-check", o.EnableHealthzCheck, "A bool to enable and disable healthz check.")

	fs.StringVar(&o.GenericEndpoint, "generic-endpoint", o.GenericEndpoint,
		"the endpoint of generic purpose, which will use as prometheus, health check, profiling and tunables")
	fs.StringSliceVar(&o.GenericEndpointHandleChains, "generic-handler-chains", o.GenericEndpointHandleChains,
		"this flag defines the handler chains that should be enabled")
	fs.Float64Var(&o.HTTPRateLimitQPS, "http-rate-limit-qps", o.HTTPRateLimitQPS,
		"the per-client qps allowed by the rateLimiter handler chain")
	fs.IntVar(&o.HTTPRateLimitBurst, "http-rate-limit-burst", o.HTTPRateLimitBurst,
		"the per-client burst allowed by the rateLimiter handler chain")

	fs.StringVar(&o.LockFileName, "locking-file", o.LockFileName,
		"the file used to prevent two governors from running on the same host")
	fs.BoolVar(&o.LockWaitingEnabled, "locking-waiting", o.LockWaitingEnabled,
		"wait for the lock to be released instead of exiting")

	o.metricsOptions.AddFlags(fs)
	o.logsOptions.AddFlags(fs)
}

// ApplyTo fills up config with options
func (o *GenericOptions) ApplyTo(c *generic.GenericConfiguration) error {
	c.EnableHealthzCheck = o.EnableHealthzCheck

	c.GenericEndpoint = o.GenericEndpoint
	c.GenericEndpointHandleChains = o.GenericEndpointHandleChains
	c.HTTPRateLimitQPS = o.HTTPRateLimitQPS
	c.HTTPRateLimitBurst = o.HTTPRateLimitBurst

	c.LockFileName = o.LockFileName
	c.LockWaitingEnabled = o.LockWaitingEnabled

	errList := make([]error, 0, 2)
	errList = append(errList, o.metricsOptions.ApplyTo(c.MetricsConfiguration))
	errList = append(errList, o.logsOptions.ApplyTo(c.LogConfiguration))

	return errors.NewAggregate(errList)
}
