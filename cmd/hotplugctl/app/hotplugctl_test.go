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

package app

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/tunable"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/process"
)

const testEndpoint = "http://127.0.0.1:9316"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	client := process.NewDefaultHTTPClient()
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	out := &bytes.Buffer{}
	cmd := NewHotplugctlCommand(client)
	cmd.SetArgs(append([]string{"--endpoint", testEndpoint}, args...))
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

// gock mocks are process globals, the tests below do not run in parallel

func TestStatusCommand(t *testing.T) {
	defer gock.Off()

	gock.New(testEndpoint).Get("/status").Reply(200).JSON(types.Status{
		LoopState:       types.LoopStateRunning,
		GovernorEnabled: true,
		AutoHotplug:     true,
		PossibleCores:   4,
		OnlineCPUs:      []int{0, 1, 2},
		LastVerdict:     types.VerdictScaleUp,
		Transitions:     []types.Transition{{CPU: 2, Online: true, Reason: "load", Success: true}},
	})

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "0-2 of 4")
	assert.Contains(t, out, "scale_up")
	assert.Contains(t, out, "transitions:")
	assert.True(t, gock.IsDone())
}

func TestListCommand(t *testing.T) {
	defer gock.Off()

	gock.New(testEndpoint).Get("/tunables").Reply(200).JSON([]tunable.Info{
		{Name: "enabled", Value: "on", Writable: true, Description: "governor switch"},
		{Name: "version", Value: "2.1.0"},
	})

	out, err := execute(t, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "enabled")
	assert.Contains(t, lines[1], "rw")
	assert.Contains(t, lines[2], "ro")
}

func TestGetSetCommands(t *testing.T) {
	defer gock.Off()

	gock.New(testEndpoint).Get("/tunables/rate").Reply(200).JSON(tunable.Info{Name: "rate", Value: "500", Writable: true})
	out, err := execute(t, "get", "rate")
	require.NoError(t, err)
	assert.Equal(t, "500\n", out)

	gock.New(testEndpoint).Put("/tunables/rate").JSON(map[string]string{"value": "5"}).
		Reply(200).JSON(tunable.Info{Name: "rate", Value: "10", Writable: true})
	out, err = execute(t, "set", "rate", "5")
	require.NoError(t, err)
	assert.Equal(t, "rate = 10\n", out)

	gock.New(testEndpoint).Put("/tunables/version").Reply(403).BodyString("version: tunable is read-only")
	_, err = execute(t, "set", "version", "3")
	require.Error(t, err)
	statusErr, ok := err.(*process.HTTPStatusError)
	require.True(t, ok)
	assert.Equal(t, 403, statusErr.StatusCode)
	assert.Contains(t, statusErr.Message, "read-only")

	gock.New(testEndpoint).Get("/tunables/speed").Reply(404)
	_, err = execute(t, "get", "speed")
	assert.Error(t, err)

	_, err = execute(t, "get")
	assert.Error(t, err)
	assert.True(t, gock.IsDone())
}

func TestEventCommand(t *testing.T) {
	defer gock.Off()

	gock.New(testEndpoint).Post("/events/suspend-prepare").Reply(200).JSON(map[string]string{"event": "suspend-prepare"})
	out, err := execute(t, "event", "suspend-prepare")
	require.NoError(t, err)
	assert.Equal(t, "suspend-prepare sent\n", out)

	gock.New(testEndpoint).Post("/events/governor-changed").MatchParam("governor", "pegasusq").
		Reply(200).JSON(map[string]string{"event": "governor-changed"})
	_, err = execute(t, "event", "governor-changed", "--governor", "pegasusq")
	require.NoError(t, err)
	assert.True(t, gock.IsDone())

	_, err = execute(t, "event", "governor-changed")
	assert.Error(t, err)
	_, err = execute(t, "event", "hibernate")
	assert.Error(t, err)
}

func TestOutputFormat(t *testing.T) {
	defer gock.Off()

	gock.New(testEndpoint).Get("/tunables/enabled").Reply(200).JSON(tunable.Info{Name: "enabled", Value: "on", Writable: true})
	out, err := execute(t, "get", "enabled", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"writable": true`)

	_, err = execute(t, "status", "-o", "yaml")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://127.0.0.1:9316", NewClient(nil, "127.0.0.1:9316/").endpoint)
	assert.Equal(t, "https://governor:9316", NewClient(nil, " https://governor:9316 ").endpoint)
}
