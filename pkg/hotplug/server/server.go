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

// Package server exposes the governor status, its tunables and a way to
// inject lifecycle events over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/lifecycle"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/tunable"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	StatusPath   = "/status"
	TunablesPath = "/tunables"
	EventsPath   = "/events"

	maxBodySize = 4096
)

// Governor is what the server reads from and writes to.
type Governor interface {
	Status() types.Status
	Tunables() *tunable.Registry
}

// SetTunableRequest is the body of a tunable write; a plain text body
// holding only the value is accepted as well.
type SetTunableRequest struct {
	Value string `json:"value"`
}

type Server struct {
	governor  Governor
	publisher lifecycle.Publisher
}

func NewServer(governor Governor, publisher lifecycle.Publisher) *Server {
	return &Server{governor: governor, publisher: publisher}
}

// Serve registers the handlers on mux.
func (s *Server) Serve(mux *http.ServeMux) {
	general.Infof("hotplug server add serve handler")

	mux.HandleFunc(StatusPath, s.handleStatus)
	mux.HandleFunc(TunablesPath, s.handleTunableList)
	mux.HandleFunc(TunablesPath+"/", s.handleTunable)
	mux.HandleFunc(EventsPath+"/", s.handleEvent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "request must be GET")
		return
	}
	writeJSON(w, s.governor.Status())
}

func (s *Server) handleTunableList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "request must be GET")
		return
	}
	writeJSON(w, s.governor.Tunables().List())
}

func (s *Server) handleTunable(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, TunablesPath), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "tunable %q not found", name)
		return
	}

	registry := s.governor.Tunables()
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		value, err := readValue(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: %v", err)
			return
		}
		if err := registry.Set(name, value); err != nil {
			general.Warningf("set tunable %s=%q from %s: %v", name, value, r.RemoteAddr, err)
			writeError(w, statusCode(err), "%v", err)
			return
		}
		general.Infof("tunable %s set to %q by %s", name, value, r.RemoteAddr)
	default:
		writeError(w, http.StatusMethodNotAllowed, "request must be GET or PUT")
		return
	}

	value, err := registry.Get(name)
	if err != nil {
		writeError(w, statusCode(err), "%v", err)
		return
	}
	for _, info := range registry.List() {
		if info.Name == name {
			info.Value = value
			writeJSON(w, info)
			return
		}
	}
	writeError(w, http.StatusNotFound, "tunable %q not found", name)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "request must be POST")
		return
	}

	eventType, err := lifecycle.ParseEventType(strings.TrimPrefix(r.URL.Path, EventsPath+"/"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	governor := strings.TrimSpace(r.URL.Query().Get("governor"))
	if eventType == lifecycle.EventGovernorChanged && governor == "" {
		writeError(w, http.StatusBadRequest, "governor-changed needs a governor parameter")
		return
	}

	if err := s.publisher.Publish(eventType, governor); err != nil {
		writeError(w, http.StatusServiceUnavailable, "publish %s: %v", eventType, err)
		return
	}
	general.Infof("lifecycle event %s(%s) injected by %s", eventType, governor, r.RemoteAddr)
	writeJSON(w, map[string]string{"event": string(eventType), "governor": governor})
}

// readValue accepts a SetTunableRequest, the same object with a number or
// boolean value, or a plain text value.
func readValue(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", errors.New("empty body")
	}
	defer func() {
		_ = r.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		req := struct {
			Value json.RawMessage `json:"value"`
		}{}
		if err := json.Unmarshal(data, &req); err != nil {
			return "", err
		}
		return jsonScalar(req.Value)
	}
	return trimmed, nil
}

func jsonScalar(raw json.RawMessage) (string, error) {
	value := strings.TrimSpace(string(raw))
	switch {
	case value == "" || value == "null":
		return "", errors.New("missing value")
	case strings.HasPrefix(value, `"`):
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return "", err
		}
		return str, nil
	case strings.HasPrefix(value, "{"), strings.HasPrefix(value, "["):
		return "", errors.Errorf("value %s is not a scalar", value)
	}
	return value, nil
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, tunable.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tunable.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, tunable.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		general.Errorf("marshal response err: %v", err)
		writeError(w, http.StatusInternalServerError, "marshal response: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, code int, format string, args ...interface{}) {
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, format, args...)
}
