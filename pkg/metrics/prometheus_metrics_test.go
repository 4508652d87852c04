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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/katalyst-hotplug/pkg/config/generic"
)

func findMetric(t *testing.T, e *PrometheusMetricsEmitter, name string) *dto.MetricFamily {
	families, err := e.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestPrometheusMetricsEmitter(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	e, err := NewPrometheusMetricsEmitter(generic.NewMetricsConfiguration(), "/metrics", mux)
	require.NoError(t, err)

	w := e.WithTags("hotplug")
	assert.NoError(t, w.StoreInt64("hotplug_online_cores", 2, MetricTypeNameRaw))
	assert.NoError(t, w.StoreInt64("hotplug_online_cores", 3, MetricTypeNameRaw))
	assert.NoError(t, w.StoreInt64("hotplug_tick_count", 1, MetricTypeNameCount))
	assert.NoError(t, w.StoreInt64("hotplug_tick_count", 1, MetricTypeNameCount))
	assert.NoError(t, w.StoreFloat64("hotplug.avg-load", 12.5, MetricTypeNameUpDownCount))
	assert.NoError(t, w.StoreFloat64("hotplug.avg-load", -2.5, MetricTypeNameUpDownCount))

	online := findMetric(t, e, "hotplug_online_cores")
	require.NotNil(t, online)
	assert.Equal(t, 3.0, online.GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, "unit", online.GetMetric()[0].GetLabel()[0].GetName())
	assert.Equal(t, "hotplug", online.GetMetric()[0].GetLabel()[0].GetValue())

	ticks := findMetric(t, e, "hotplug_tick_count")
	require.NotNil(t, ticks)
	assert.Equal(t, 2.0, ticks.GetMetric()[0].GetCounter().GetValue())

	load := findMetric(t, e, "hotplug_avg_load")
	require.NotNil(t, load)
	assert.Equal(t, 10.0, load.GetMetric()[0].GetGauge().GetValue())

	// conflicting usages of an existing metric
	assert.Error(t, w.StoreInt64("hotplug_online_cores", 1, MetricTypeNameCount))
	assert.Error(t, w.StoreInt64("hotplug_online_cores", 1, MetricTypeNameRaw, MetricTag{Key: "cpu", Val: "1"}))
	assert.Error(t, w.StoreInt64("hotplug_tick_count", -1, MetricTypeNameCount))
	assert.Error(t, e.StoreInt64("bad_type", 1, "histogram"))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hotplug_online_cores")
}

func TestPrometheusMetricsEmitterGC(t *testing.T) {
	t.Parallel()

	e, err := NewPrometheusMetricsEmitter(&generic.MetricsConfiguration{EmitterPrometheusGCTimeout: time.Minute}, "", nil)
	require.NoError(t, err)

	now := time.Now()
	e.now = func() time.Time { return now }
	assert.NoError(t, e.StoreInt64("hotplug_core_load", 40, MetricTypeNameRaw, MetricTag{Key: "cpu", Val: "1"}))
	assert.NoError(t, e.StoreInt64("hotplug_core_load", 10, MetricTypeNameRaw, MetricTag{Key: "cpu", Val: "2"}))

	now = now.Add(50 * time.Second)
	assert.NoError(t, e.StoreInt64("hotplug_core_load", 30, MetricTypeNameRaw, MetricTag{Key: "cpu", Val: "2"}))

	now = now.Add(20 * time.Second)
	e.gc()

	family := findMetric(t, e, "hotplug_core_load")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, "2", family.GetMetric()[0].GetLabel()[0].GetValue())
}

func TestMetricTagWrapper(t *testing.T) {
	t.Parallel()

	e, err := NewPrometheusMetricsEmitter(generic.NewMetricsConfiguration(), "", nil)
	require.NoError(t, err)

	w := e.WithTags("controller", MetricTag{Key: "profile", Val: "midas"})
	w2 := w.WithTags("server", MetricTag{Key: "profile", Val: "u1"})
	assert.NoError(t, w.StoreInt64("wrapped", 1, MetricTypeNameRaw))
	assert.NoError(t, w2.StoreInt64("wrapped", 2, MetricTypeNameRaw))

	family := findMetric(t, e, "wrapped")
	require.NotNil(t, family)
	assert.Len(t, family.GetMetric(), 2)

	assert.NoError(t, DummyMetrics{}.WithTags("dummy").StoreInt64("x", 1, MetricTypeNameRaw))
	assert.Len(t, ConvertMapToTags(map[string]string{"a": "b", "c": "d"}), 2)
}
