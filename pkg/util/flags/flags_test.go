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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

func TestThresholdTableVar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    types.ThresholdTable
		wantErr bool
	}{
		{name: "quad core", input: "0:20,10:35,15:45,20:100",
			want: types.ThresholdTable{{Low: 0, High: 20}, {Low: 10, High: 35}, {Low: 15, High: 45}, {Low: 20, High: 100}}},
		{name: "spaces", input: " 0:30 , 20:100 ", want: types.ThresholdTable{{Low: 0, High: 30}, {Low: 20, High: 100}}},
		{name: "empty", input: "", want: nil},
		{name: "missing high", input: "0:20,10", wantErr: true},
		{name: "inverted", input: "40:20", wantErr: true},
		{name: "over 100", input: "0:120", wantErr: true},
		{name: "not a number", input: "a:b", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			table := types.ThresholdTable{{Low: 1, High: 2}}
			v := &ThresholdTableVar{Value: &table}
			err := v.Set(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, types.ThresholdTable{{Low: 1, High: 2}}, table)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, table)
			assert.Equal(t, tt.want.String(), v.String())
		})
	}

	assert.Error(t, (&ThresholdTableVar{}).Set("0:100"))
	assert.Equal(t, "", (&ThresholdTableVar{}).String())
}

func TestLowerStringSliceVar(t *testing.T) {
	t.Parallel()

	var governors []string
	v := &LowerStringSliceVar{Value: &governors}
	require.NoError(t, v.Set(" PegasusQ,,hotplug "))
	assert.Equal(t, []string{"pegasusq", "hotplug"}, governors)
	assert.Equal(t, "pegasusq,hotplug", v.String())

	require.NoError(t, v.Set(""))
	assert.Empty(t, governors)
}
