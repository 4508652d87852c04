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

package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

const StringSeparator = ","

var _ pflag.Value = &ThresholdTableVar{}

// ThresholdTableVar is used for validating a command line option that represents
// a threshold table. It implements the pflag.Value interface
type ThresholdTableVar struct {
	Value *types.ThresholdTable
}

// Set sets the flag value
// The flag configuration is like "--thresholds 0:20,10:35,15:45,20:100", one
// low:high band per online core count
func (v *ThresholdTableVar) Set(s string) error {
	if v.Value == nil {
		return fmt.Errorf("no target (nil pointer to *ThresholdTable)")
	}

	if strings.TrimSpace(s) == "" {
		*v.Value = nil
		return nil
	}

	table, err := types.ParseThresholdTable(s)
	if err != nil {
		return err
	}
	*v.Value = table
	return nil
}

// String returns the flag value
func (v *ThresholdTableVar) String() string {
	if v == nil || v.Value == nil {
		return ""
	}
	return v.Value.String()
}

// Type gets the flag type
func (v *ThresholdTableVar) Type() string {
	return "threshold-table"
}

var _ pflag.Value = &LowerStringSliceVar{}

// LowerStringSliceVar is a comma separated list whose items are trimmed and
// lower-cased, empty items are dropped
type LowerStringSliceVar struct {
	Value *[]string
}

func (v *LowerStringSliceVar) Set(s string) error {
	if v.Value == nil {
		return fmt.Errorf("no target (nil pointer to *[]string)")
	}

	items := make([]string, 0)
	for _, item := range strings.Split(s, StringSeparator) {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	*v.Value = items
	return nil
}

func (v *LowerStringSliceVar) String() string {
	if v == nil || v.Value == nil {
		return ""
	}
	return strings.Join(*v.Value, StringSeparator)
}

func (v *LowerStringSliceVar) Type() string {
	return "strings"
}
