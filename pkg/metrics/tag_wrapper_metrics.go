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

import "context"

const MetricTagKeyUnit = "unit"

// MetricTagWrapper wraps a MetricEmitter and appends the owner unit tag
// plus a set of common tags to every emitted item.
type MetricTagWrapper struct {
	unitTag    MetricTag
	commonTags []MetricTag

	MetricEmitter
}

var _ MetricEmitter = &MetricTagWrapper{}

func (t *MetricTagWrapper) StoreInt64(key string, val int64, emitType MetricTypeName, tags ...MetricTag) error {
	return t.MetricEmitter.StoreInt64(key, val, emitType, t.mergeTags(tags)...)
}

func (t *MetricTagWrapper) StoreFloat64(key string, val float64, emitType MetricTypeName, tags ...MetricTag) error {
	return t.MetricEmitter.StoreFloat64(key, val, emitType, t.mergeTags(tags)...)
}

// Run is a no-op, the wrapped emitter is started by its owner.
func (t *MetricTagWrapper) Run(_ context.Context) {}

func (t *MetricTagWrapper) WithTags(unit string, commonTags ...MetricTag) MetricEmitter {
	w := &MetricTagWrapper{MetricEmitter: t.MetricEmitter}
	w.commonTags = append(w.commonTags, t.commonTags...)
	w.unitTag = MetricTag{Key: MetricTagKeyUnit, Val: unit}
	w.addOrUpdateCommonTags(commonTags)
	return w
}

func (t *MetricTagWrapper) mergeTags(tags []MetricTag) []MetricTag {
	merged := make([]MetricTag, 0, len(tags)+len(t.commonTags)+1)
	merged = append(merged, tags...)
	merged = append(merged, t.commonTags...)
	if t.unitTag.Key != "" {
		merged = append(merged, t.unitTag)
	}
	return merged
}

// addOrUpdateCommonTags tries to add a tag to common tags list.
func (t *MetricTagWrapper) addOrUpdateCommonTags(tags []MetricTag) {
	for _, tag := range tags {
		exist := false
		for i := range t.commonTags {
			if tag.Key == t.commonTags[i].Key {
				t.commonTags[i].Val = tag.Val
				exist = true
				break
			}
		}
		if !exist {
			t.commonTags = append(t.commonTags, tag)
		}
	}
}
