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

package katalyst_base

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/pkg/errors"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/generic"
	"github.com/kubewharf/katalyst-hotplug/pkg/consts"
	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/process"
)

const (
	healthZPath = "/healthz"
	metricsPath = "/metrics"

	shutdownTimeout = 5 * time.Second
)

// GenericContext holds the components shared by every part of the daemon:
// the generic http endpoint, the metrics emitter and the health checker.
type GenericContext struct {
	*http.Server
	httpHandler   *process.HTTPHandler
	healthChecker *HealthzChecker
	emitter       *metrics.PrometheusMetricsEmitter

	// Mux is the router behind the generic endpoint; components add their
	// handlers before Run.
	Mux *http.ServeMux
}

func NewGenericContext(genericConf *generic.GenericConfiguration, component consts.KatalystComponent) (*GenericContext, error) {
	mux := http.NewServeMux()
	emitter, err := metrics.NewPrometheusMetricsEmitter(genericConf.MetricsConfiguration, metricsPath, mux)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics emitter")
	}
	defaultEmitter := emitter.WithTags(string(component))

	httpHandler := process.NewHTTPHandler(genericConf.GenericEndpointHandleChains, genericConf.HTTPRateLimitQPS,
		genericConf.HTTPRateLimitBurst, defaultEmitter)

	c := &GenericContext{
		httpHandler: httpHandler,
		Server: &http.Server{
			Handler:           httpHandler.WithHandleChain(mux),
			Addr:              genericConf.GenericEndpoint,
			ReadHeaderTimeout: 10 * time.Second,
		},
		healthChecker: NewHealthzChecker(defaultEmitter),
		emitter:       emitter,
		Mux:           mux,
	}

	// add profiling and health check http paths listening on generic endpoint
	serveProfilingHTTP(mux)
	c.serveHealthZHTTP(mux, genericConf.EnableHealthzCheck)

	return c, nil
}

// Emitter returns the metrics emitter of the daemon.
func (c *GenericContext) Emitter() metrics.MetricEmitter {
	return c.emitter
}

// Run starts the generic components and serves the generic endpoint until
// ctx is done.
func (c *GenericContext) Run(ctx context.Context) error {
	c.httpHandler.Run(ctx)
	c.healthChecker.Run(ctx)
	c.emitter.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		general.Infof("generic endpoint listening on %s", c.Addr)
		errCh <- c.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "serve generic endpoint %s", c.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		general.Warningf("shutdown generic endpoint: %v", err)
	}
	return nil
}

// serveHealthZHTTP is used to provide health check for current running components.
func (c *GenericContext) serveHealthZHTTP(mux *http.ServeMux, enableHealthzCheck bool) {
	mux.HandleFunc(healthZPath, func(w http.ResponseWriter, r *http.Request) {
		ok, content := c.healthChecker.CheckHealthy()
		if ok || !enableHealthzCheck {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(content))
		} else {
			w.WriteHeader(500)
			_, _ = w.Write([]byte(content))
		}
	})
}

// serveProfilingHTTP is used to provide pprof metrics for current running components.
func serveProfilingHTTP(mux *http.ServeMux) {
	mux.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
}
