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

package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
)

const (
	httpDefaultTimeout     = time.Second * 10
	httpDefaultConnTimeout = time.Second * 3

	DefaultHTTPRateLimitQPS   = 0.5
	DefaultHTTPRateLimitBurst = 1
)

const (
	HTTPChainRateLimiter = "rateLimiter"
	HTTPChainMonitor     = "monitor"
)

const (
	HTTPRequestCount = "http_request_count"
	HTTPThrottled    = "http_request_throttled"
)

var (
	httpCleanupVisitorPeriod = time.Minute * 3
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HTTPHandler wraps the endpoints of the generic server with the enabled
// handler chains; the rate limiter keeps one token bucket per remote host.
type HTTPHandler struct {
	mux sync.Mutex

	enabled  sets.String
	visitors map[string]*visitor
	qps      rate.Limit
	burst    int

	emitter metrics.MetricEmitter
}

func NewHTTPHandler(enabled []string, qps float64, burst int, emitter metrics.MetricEmitter) *HTTPHandler {
	if qps <= 0 {
		qps = DefaultHTTPRateLimitQPS
	}
	if burst <= 0 {
		burst = DefaultHTTPRateLimitBurst
	}

	return &HTTPHandler{
		visitors: make(map[string]*visitor),
		enabled:  sets.NewString(enabled...),
		qps:      rate.Limit(qps),
		burst:    burst,
		emitter:  emitter,
	}
}

func (h *HTTPHandler) Run(ctx context.Context) {
	if h.enabled.Has(HTTPChainRateLimiter) {
		go wait.Until(h.cleanupVisitor, httpCleanupVisitorPeriod, ctx.Done())
	}
}

func (h *HTTPHandler) getHTTPVisitor(subject string) *rate.Limiter {
	h.mux.Lock()
	defer h.mux.Unlock()

	v, exists := h.visitors[subject]
	if !exists {
		limiter := rate.NewLimiter(h.qps, h.burst)
		h.visitors[subject] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitor periodically cleanups visitors if they are not called for a long time
func (h *HTTPHandler) cleanupVisitor() {
	h.mux.Lock()
	defer h.mux.Unlock()

	for addr, v := range h.visitors {
		if time.Since(v.lastSeen) > httpCleanupVisitorPeriod {
			delete(h.visitors, addr)
		}
	}
}

// withRateLimiter is used to limit user-requests to protect server
func (h *HTTPHandler) withRateLimiter(f http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r != nil {
			rateLimiterKey := remoteHost(r.RemoteAddr)
			limiter := h.getHTTPVisitor(rateLimiterKey)
			if !limiter.Allow() {
				klog.Warningf("request %+v has too many requests from %v", r.URL, rateLimiterKey)
				w.Header().Set("Katalyst-Limit", `too many requests`)
				w.WriteHeader(http.StatusTooManyRequests)
				_ = h.emitter.StoreInt64(HTTPThrottled, 1, metrics.MetricTypeNameCount,
					metrics.MetricTag{Key: "path", Val: requestPath(r)})
				return
			}
		}

		f(w, r)
	}
}

func (h *HTTPHandler) withMonitor(f http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f(w, r)

		_ = h.emitter.StoreInt64(HTTPRequestCount, 1, metrics.MetricTypeNameCount,
			metrics.MetricTag{Key: "path", Val: requestPath(r)},
			metrics.MetricTag{Key: "method", Val: r.Method})
	}
}

// WithHandleChain builds handler chains for http.Handler
func (h *HTTPHandler) WithHandleChain(f http.Handler) http.Handler {
	// build orders for http chains
	chains := []string{HTTPChainMonitor, HTTPChainRateLimiter}
	funcs := map[string]func(http.HandlerFunc) http.HandlerFunc{
		HTTPChainRateLimiter: h.withRateLimiter,
		HTTPChainMonitor:     h.withMonitor,
	}

	var handler http.Handler = f
	for _, c := range chains {
		if h.enabled.Has(c) {
			tmpHandler := handler
			handler = funcs[c](func(w http.ResponseWriter, r *http.Request) {
				tmpHandler.ServeHTTP(w, r)
			})
		}
	}
	return handler
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func requestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	return r.URL.Path
}

// NewDefaultHTTPClient returns a raw HTTP client.
func NewDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   httpDefaultConnTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   httpDefaultTimeout,
		Transport: transport,
	}
	return client
}

// HTTPStatusError is returned for any response other than 200 OK.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invalid response status code %d, url: %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("invalid response status code %d, url: %s: %s", e.StatusCode, e.URL, e.Message)
}

// GetAndUnmarshal gets data from the given url and unmarshal it into the given struct.
func GetAndUnmarshal(ctx context.Context, client *http.Client, url string, v interface{}) error {
	return DoAndUnmarshal(ctx, client, http.MethodGet, url, nil, v)
}

// DoAndUnmarshal sends body as JSON when it is not nil, and unmarshals the
// response into v when v is not nil.
func DoAndUnmarshal(ctx context.Context, client *http.Client, method, url string, body, v interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{StatusCode: resp.StatusCode, URL: url, Message: strings.TrimSpace(string(respBody))}
	}

	if v == nil {
		return nil
	}
	return json.Unmarshal(respBody, v)
}
