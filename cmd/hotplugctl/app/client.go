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
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/lifecycle"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/server"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/tunable"
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/process"
)

// Client talks to the control plane of a running governor.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// NewClient accepts the endpoint with or without a scheme.
func NewClient(httpClient *http.Client, endpoint string) *Client {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &Client{httpClient: httpClient, endpoint: endpoint}
}

func (c *Client) Status(ctx context.Context) (*types.Status, error) {
	status := &types.Status{}
	if err := process.GetAndUnmarshal(ctx, c.httpClient, c.endpoint+server.StatusPath, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) ListTunables(ctx context.Context) ([]tunable.Info, error) {
	var infos []tunable.Info
	if err := process.GetAndUnmarshal(ctx, c.httpClient, c.endpoint+server.TunablesPath, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *Client) GetTunable(ctx context.Context, name string) (*tunable.Info, error) {
	info := &tunable.Info{}
	if err := process.GetAndUnmarshal(ctx, c.httpClient, c.tunableURL(name), info); err != nil {
		return nil, err
	}
	return info, nil
}

// SetTunable returns the value the governor kept, which differs from value
// when it was clamped.
func (c *Client) SetTunable(ctx context.Context, name, value string) (*tunable.Info, error) {
	info := &tunable.Info{}
	err := process.DoAndUnmarshal(ctx, c.httpClient, http.MethodPut, c.tunableURL(name),
		server.SetTunableRequest{Value: value}, info)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) SendEvent(ctx context.Context, eventType lifecycle.EventType, governor string) error {
	u := c.endpoint + server.EventsPath + "/" + url.PathEscape(string(eventType))
	if governor != "" {
		u += "?" + url.Values{"governor": []string{governor}}.Encode()
	}
	return process.DoAndUnmarshal(ctx, c.httpClient, http.MethodPost, u, nil, nil)
}

func (c *Client) tunableURL(name string) string {
	return c.endpoint + server.TunablesPath + "/" + url.PathEscape(name)
}
