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
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kubewharf/katalyst-hotplug/cmd/base/options"
	"github.com/kubewharf/katalyst-hotplug/pkg/config"
)

// Options holds the configurations for the hotplug governor.
type Options struct {
	// those are options used by all the katalyst components
	*options.GenericOptions

	*HotplugOptions
	*PlatformOptions
	*LifecycleOptions
}

// NewOptions creates a new Options with a default config.
func NewOptions() *Options {
	return &Options{
		GenericOptions:   options.NewGenericOptions(),
		HotplugOptions:   NewHotplugOptions(),
		PlatformOptions:  NewPlatformOptions(),
		LifecycleOptions: NewLifecycleOptions(),
	}
}

// AddFlags adds flags  to the specified FlagSet.
func (o *Options) AddFlags(fss *cliflag.NamedFlagSets) {
	o.GenericOptions.AddFlags(fss)
	o.HotplugOptions.AddFlags(fss)
	o.PlatformOptions.AddFlags(fss)
	o.LifecycleOptions.AddFlags(fss)
}

// ApplyTo fills up config with options; the hotplug options go first since
// they load the profile and the config file the other flags override.
func (o *Options) ApplyTo(c *config.Configuration) error {
	var errList []error

	errList = append(errList, o.GenericOptions.ApplyTo(c.GenericConfiguration))
	errList = append(errList, o.HotplugOptions.ApplyTo(c.HotplugConfiguration))
	errList = append(errList, o.PlatformOptions.ApplyTo(c.PlatformConfiguration))
	errList = append(errList, o.LifecycleOptions.ApplyTo(c.LifecycleConfiguration))

	return errors.NewAggregate(errList)
}

// Config returns a new configuration instance.
func (o *Options) Config() (*config.Configuration, error) {
	c := config.NewConfiguration()
	if err := o.ApplyTo(c); err != nil {
		return nil, err
	}
	if err := c.HotplugConfiguration.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// changed reports whether the flag was given on the command line.
func changed(fs *pflag.FlagSet, name string) bool {
	return fs != nil && fs.Changed(name)
}
