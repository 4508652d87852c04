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

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/generic"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const seriesKeySeparator = "\x00"

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

type prometheusSeries struct {
	labelValues []string
	lastUpdate  time.Time
}

type prometheusMetric struct {
	emitType  MetricTypeName
	labelKeys []string
	gauge     *prometheus.GaugeVec
	counter   *prometheus.CounterVec
	series    map[string]*prometheusSeries
}

func (m *prometheusMetric) delete(labelValues []string) {
	if m.gauge != nil {
		m.gauge.DeleteLabelValues(labelValues...)
	}
	if m.counter != nil {
		m.counter.DeleteLabelValues(labelValues...)
	}
}

// PrometheusMetricsEmitter stores metrics into a private prometheus registry;
// series not updated for gcTimeout are dropped by the gc loop started in Run.
type PrometheusMetricsEmitter struct {
	mux       sync.Mutex
	registry  *prometheus.Registry
	metrics   map[string]*prometheusMetric
	gcTimeout time.Duration
	now       func() time.Time
}

var _ MetricEmitter = &PrometheusMetricsEmitter{}

// NewPrometheusMetricsEmitter creates an emitter and serves its registry at path on mux.
func NewPrometheusMetricsEmitter(conf *generic.MetricsConfiguration, path string, mux *http.ServeMux) (*PrometheusMetricsEmitter, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.Wrap(err, "register go collector")
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, errors.Wrap(err, "register process collector")
	}

	if mux != nil {
		mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return &PrometheusMetricsEmitter{
		registry:  registry,
		metrics:   make(map[string]*prometheusMetric),
		gcTimeout: conf.EmitterPrometheusGCTimeout,
		now:       time.Now,
	}, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PrometheusMetricsEmitter) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetricsEmitter) StoreInt64(key string, val int64, emitType MetricTypeName, tags ...MetricTag) error {
	return p.store(key, float64(val), emitType, tags)
}

func (p *PrometheusMetricsEmitter) StoreFloat64(key string, val float64, emitType MetricTypeName, tags ...MetricTag) error {
	return p.store(key, val, emitType, tags)
}

func (p *PrometheusMetricsEmitter) WithTags(unit string, commonTags ...MetricTag) MetricEmitter {
	newMetricTagWrapper := &MetricTagWrapper{MetricEmitter: p}
	return newMetricTagWrapper.WithTags(unit, commonTags...)
}

func (p *PrometheusMetricsEmitter) Run(ctx context.Context) {
	if p.gcTimeout <= 0 {
		return
	}
	go wait.Until(p.gc, p.gcTimeout, ctx.Done())
}

func (p *PrometheusMetricsEmitter) store(key string, val float64, emitType MetricTypeName, tags []MetricTag) error {
	name := sanitizeMetricName(key)
	labelKeys, labelValues := normalizeTags(tags)

	p.mux.Lock()
	defer p.mux.Unlock()

	m, ok := p.metrics[name]
	if !ok {
		var err error
		if m, err = p.register(name, emitType, labelKeys); err != nil {
			return err
		}
		p.metrics[name] = m
	} else if m.emitType != emitType {
		return fmt.Errorf("metric %s already registered as %s", name, m.emitType)
	} else if strings.Join(m.labelKeys, ",") != strings.Join(labelKeys, ",") {
		return fmt.Errorf("metric %s already registered with labels %v, got %v", name, m.labelKeys, labelKeys)
	}

	switch emitType {
	case MetricTypeNameRaw:
		m.gauge.WithLabelValues(labelValues...).Set(val)
	case MetricTypeNameUpDownCount:
		m.gauge.WithLabelValues(labelValues...).Add(val)
	case MetricTypeNameCount:
		if val < 0 {
			return fmt.Errorf("counter %s cannot decrease by %v", name, val)
		}
		m.counter.WithLabelValues(labelValues...).Add(val)
	}

	seriesKey := strings.Join(labelValues, seriesKeySeparator)
	if s, exist := m.series[seriesKey]; exist {
		s.lastUpdate = p.now()
	} else {
		m.series[seriesKey] = &prometheusSeries{labelValues: labelValues, lastUpdate: p.now()}
	}
	return nil
}

func (p *PrometheusMetricsEmitter) register(name string, emitType MetricTypeName, labelKeys []string) (*prometheusMetric, error) {
	m := &prometheusMetric{
		emitType:  emitType,
		labelKeys: labelKeys,
		series:    make(map[string]*prometheusSeries),
	}

	var collector prometheus.Collector
	switch emitType {
	case MetricTypeNameRaw, MetricTypeNameUpDownCount:
		m.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, labelKeys)
		collector = m.gauge
	case MetricTypeNameCount:
		m.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelKeys)
		collector = m.counter
	default:
		return nil, fmt.Errorf("unknown metric type %q for %s", emitType, name)
	}

	if err := p.registry.Register(collector); err != nil {
		return nil, errors.Wrapf(err, "register metric %s", name)
	}
	return m, nil
}

// gc drops series which are not refreshed within gcTimeout.
func (p *PrometheusMetricsEmitter) gc() {
	p.mux.Lock()
	defer p.mux.Unlock()

	expired := 0
	now := p.now()
	for _, m := range p.metrics {
		for key, s := range m.series {
			if now.Sub(s.lastUpdate) > p.gcTimeout {
				m.delete(s.labelValues)
				delete(m.series, key)
				expired++
			}
		}
	}
	if expired > 0 {
		general.InfofV(4, "prometheus emitter dropped %d expired series", expired)
	}
}

func sanitizeMetricName(name string) string {
	name = invalidMetricChars.ReplaceAllString(name, "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// normalizeTags sorts tags by key; for duplicated keys the last one wins.
func normalizeTags(tags []MetricTag) ([]string, []string) {
	merged := make(map[string]string, len(tags))
	for _, tag := range tags {
		merged[sanitizeMetricName(tag.Key)] = tag.Val
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, merged[k])
	}
	return keys, values
}
