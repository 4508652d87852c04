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

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/lifecycle"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/tunable"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

type fakeGovernor struct {
	registry *tunable.Registry
	level    int
}

func newFakeGovernor(t *testing.T) *fakeGovernor {
	g := &fakeGovernor{registry: tunable.NewRegistry(), level: 3}
	require.NoError(t, g.registry.Register(
		tunable.NewInt("level", "", func() int { return g.level }, func(v int) error {
			g.level = v
			return nil
		}),
		tunable.NewReadOnly("version", "", func() string { return "2.1.0" }),
	))
	return g
}

func (g *fakeGovernor) Status() types.Status {
	return types.Status{LoopState: types.LoopStateRunning, PossibleCores: 4, OnlineCPUs: []int{0, 1}}
}

func (g *fakeGovernor) Tunables() *tunable.Registry { return g.registry }

type fakePublisher struct {
	mutex  sync.Mutex
	events []lifecycle.Event
	err    error
}

func (p *fakePublisher) Publish(eventType lifecycle.EventType, governor string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, lifecycle.Event{Type: eventType, Governor: governor})
	return nil
}

func newTestMux(t *testing.T) (*http.ServeMux, *fakeGovernor, *fakePublisher) {
	governor := newFakeGovernor(t)
	publisher := &fakePublisher{}
	mux := http.NewServeMux()
	NewServer(governor, publisher).Serve(mux)
	return mux, governor, publisher
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	t.Parallel()

	mux, _, _ := newTestMux(t)
	w := do(mux, http.MethodGet, StatusPath, "")
	require.Equal(t, http.StatusOK, w.Code)

	status := types.Status{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, types.LoopStateRunning, status.LoopState)
	assert.Equal(t, []int{0, 1}, status.OnlineCPUs)

	assert.Equal(t, http.StatusMethodNotAllowed, do(mux, http.MethodPost, StatusPath, "").Code)
}

func TestTunables(t *testing.T) {
	t.Parallel()

	mux, governor, _ := newTestMux(t)

	w := do(mux, http.MethodGet, TunablesPath, "")
	require.Equal(t, http.StatusOK, w.Code)
	var infos []tunable.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "level", infos[0].Name)

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantCode  int
		wantValue string
	}{
		{name: "get", method: http.MethodGet, path: "/tunables/level", wantCode: http.StatusOK, wantValue: "3"},
		{name: "put json", method: http.MethodPut, path: "/tunables/level", body: `{"value": "7"}`, wantCode: http.StatusOK, wantValue: "7"},
		{name: "put json number", method: http.MethodPut, path: "/tunables/level", body: `{"value": 5}`, wantCode: http.StatusOK, wantValue: "5"},
		{name: "put raw", method: http.MethodPut, path: "/tunables/level", body: "9\n", wantCode: http.StatusOK, wantValue: "9"},
		{name: "put garbage", method: http.MethodPut, path: "/tunables/level", body: "nine", wantCode: http.StatusBadRequest, wantValue: "9"},
		{name: "put two values", method: http.MethodPut, path: "/tunables/level", body: "1 2", wantCode: http.StatusBadRequest, wantValue: "9"},
		{name: "put bad json", method: http.MethodPut, path: "/tunables/level", body: "{", wantCode: http.StatusBadRequest, wantValue: "9"},
		{name: "put json list", method: http.MethodPut, path: "/tunables/level", body: `{"value": [1]}`, wantCode: http.StatusBadRequest, wantValue: "9"},
		{name: "put json without value", method: http.MethodPut, path: "/tunables/level", body: `{"level": 1}`, wantCode: http.StatusBadRequest, wantValue: "9"},
		{name: "read-only", method: http.MethodPut, path: "/tunables/version", body: "3", wantCode: http.StatusForbidden, wantValue: "9"},
		{name: "missing", method: http.MethodGet, path: "/tunables/speed", wantCode: http.StatusNotFound, wantValue: "9"},
		{name: "nested", method: http.MethodGet, path: "/tunables/level/x", wantCode: http.StatusNotFound, wantValue: "9"},
		{name: "delete", method: http.MethodDelete, path: "/tunables/level", wantCode: http.StatusMethodNotAllowed, wantValue: "9"},
	}
	// the cases share the governor and run in order
	for _, tt := range tests {
		w := do(mux, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.wantCode, w.Code, tt.name)
		if tt.wantCode == http.StatusOK {
			info := tunable.Info{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info), tt.name)
			assert.Equal(t, tt.wantValue, info.Value, tt.name)
			assert.True(t, info.Writable, tt.name)
		}
		assert.Equal(t, tt.wantValue, fmt.Sprint(governor.level), tt.name)
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()

	mux, _, publisher := newTestMux(t)

	assert.Equal(t, http.StatusOK, do(mux, http.MethodPost, "/events/suspend-prepare", "").Code)
	assert.Equal(t, http.StatusOK, do(mux, http.MethodPost, "/events/governor-changed?governor=pegasusq", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPost, "/events/governor-changed", "").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodPost, "/events/hibernate", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(mux, http.MethodGet, "/events/reboot", "").Code)

	publisher.mutex.Lock()
	require.Len(t, publisher.events, 2)
	assert.Equal(t, lifecycle.EventSuspendPrepare, publisher.events[0].Type)
	assert.Equal(t, "pegasusq", publisher.events[1].Governor)
	publisher.err = fmt.Errorf("buffer full")
	publisher.mutex.Unlock()

	assert.Equal(t, http.StatusServiceUnavailable, do(mux, http.MethodPost, "/events/reboot", "").Code)
}
