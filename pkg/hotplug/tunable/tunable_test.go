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

package tunable

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	ints := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "3", want: 3},
		{in: " 42\n", want: 42},
		{in: "-1", want: -1},
		{in: "abc", wantErr: true},
		{in: "1 2", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range ints {
		got, err := ParseInt(tt.in)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidInput), "input %q", tt.in)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	bools := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{in: "on", want: true},
		{in: "OFF", want: false},
		{in: "1", want: true},
		{in: "false", want: false},
		{in: "maybe", wantErr: true},
		{in: "on off", wantErr: true},
	}
	for _, tt := range bools {
		got, err := ParseBool(tt.in)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidInput), "input %q", tt.in)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	var (
		level   = 10
		enabled = true
		rate    = 50 * time.Millisecond
	)
	r := NewRegistry()
	require.NoError(t, r.Register(
		NewInt("level", "an integer", func() int { return level }, func(v int) error {
			if v > 100 {
				v = 100
			}
			level = v
			return nil
		}),
		NewBool("enabled", "a switch", func() bool { return enabled }, func(v bool) error {
			enabled = v
			return nil
		}),
		NewMilliseconds("rate", "a duration", func() time.Duration { return rate }, func(v time.Duration) error {
			rate = v
			return nil
		}),
		NewReadOnly("version", "read-only", func() string { return "1.0" }),
	))
	assert.Error(t, r.Register(NewReadOnly("version", "", func() string { return "" })))
	assert.Error(t, r.Register(&Tunable{Name: "empty"}))

	v, err := r.Get("level")
	require.NoError(t, err)
	assert.Equal(t, "10", v)

	require.NoError(t, r.Set("level", "250"))
	assert.Equal(t, 100, level)

	err = r.Set("level", "x")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, 100, level)

	require.NoError(t, r.Set("enabled", "off"))
	v, _ = r.Get("enabled")
	assert.Equal(t, "off", v)

	require.NoError(t, r.Set("rate", "200"))
	assert.Equal(t, 200*time.Millisecond, rate)
	v, _ = r.Get("rate")
	assert.Equal(t, "200", v)

	assert.True(t, errors.Is(r.Set("version", "2.0"), ErrReadOnly))
	assert.True(t, errors.Is(r.Set("missing", "1"), ErrNotFound))
	_, err = r.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	infos := r.List()
	require.Len(t, infos, 4)
	assert.Equal(t, []string{"enabled", "level", "rate", "version"},
		[]string{infos[0].Name, infos[1].Name, infos[2].Name, infos[3].Name})
	assert.False(t, infos[3].Writable)
	assert.True(t, infos[1].Writable)
	assert.Equal(t, "100", infos[1].Value)
}
