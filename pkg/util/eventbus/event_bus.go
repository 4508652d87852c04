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

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kubewharf/katalyst-hotplug/pkg/metrics"
	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

const (
	defaultBufferSize     = 1024
	defaultReportInterval = 30 * time.Second

	ErrTypeNoSubscriber = "NoSubscriber"
	ErrTypeBufferFull   = "BufferFull"
	ErrTypeHandlerFull  = "HandlerBufferFull"

	metricsNameEventBusError = "eventbus_error"
)

var defaultEventBus = NewEventBus(defaultBufferSize)

func GetDefaultEventBus() EventBus {
	defaultEventBus.EnableStatistic()
	return defaultEventBus
}

type ConsumeFunc func(interface{}) error

// EventBus delivers events to the subscribers of a topic; each subscriber
// consumes its events in publishing order on its own goroutine.
type EventBus interface {
	Publish(topic string, event interface{}) error
	Subscribe(topic string, subscriber string, bufferSize int, handler ConsumeFunc) error
	// Unsubscribe stops the handler goroutine of the subscriber, pending
	// events of the subscriber are dropped.
	Unsubscribe(topic string, subscriber string)
	SetEmitter(emitter metrics.MetricEmitter)
	EnableStatistic()
}

type eventHandler struct {
	name    string
	buffer  chan interface{}
	handler ConsumeFunc
	stop    context.CancelFunc
}

func (e *eventHandler) Run(ctx context.Context) {
	for {
		select {
		case msg := <-e.buffer:
			if err := e.handler(msg); err != nil {
				general.Errorf("subscriber %v handling event err:%v", e.name, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

type topicContext struct {
	mutex         sync.RWMutex
	topic         string
	buffer        chan interface{}
	eventHandlers map[string]*eventHandler
	errCounter    map[string]*uint64
}

func newTopicContext(topic string, bufferSize int) *topicContext {
	return &topicContext{
		topic:         topic,
		buffer:        make(chan interface{}, bufferSize),
		eventHandlers: make(map[string]*eventHandler),
		errCounter: map[string]*uint64{
			ErrTypeNoSubscriber: new(uint64),
			ErrTypeBufferFull:   new(uint64),
			ErrTypeHandlerFull:  new(uint64),
		},
	}
}

func (t *topicContext) dispatch(event interface{}) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if len(t.eventHandlers) == 0 {
		atomic.AddUint64(t.errCounter[ErrTypeNoSubscriber], 1)
		return
	}

	for subscriber, handler := range t.eventHandlers {
		// non-blocking send
		select {
		case handler.buffer <- event:
		default:
			atomic.AddUint64(t.errCounter[ErrTypeHandlerFull], 1)
			general.Warningf("topic %v subscriber %v buffer full, dropping event: %v", t.topic, subscriber, event)
		}
	}
}

func (t *topicContext) Run() {
	for event := range t.buffer {
		t.dispatch(event)
	}
}

func (t *topicContext) RegisterHandler(subscriber string, bufferSize int, handler ConsumeFunc) error {
	if t == nil {
		return fmt.Errorf("cannot register handler for a nil topic")
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.eventHandlers[subscriber]; exists {
		general.Warningf("subscriber: %v already subscribed topic %v", subscriber, t.topic)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &eventHandler{name: subscriber, handler: handler, buffer: make(chan interface{}, bufferSize), stop: cancel}
	go e.Run(ctx)
	t.eventHandlers[subscriber] = e
	general.Infof("register subscriber: %v for topic: %v", subscriber, t.topic)
	return nil
}

func (t *topicContext) UnregisterHandler(subscriber string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if e, exists := t.eventHandlers[subscriber]; exists {
		e.stop()
		delete(t.eventHandlers, subscriber)
		general.Infof("unregister subscriber: %v for topic: %v", subscriber, t.topic)
	}
}

type eventBus struct {
	mutex         sync.RWMutex
	bufferSize    int
	topicSet      sets.String
	topics        map[string]*topicContext
	errorCounter  map[string]*uint64
	emitter       metrics.MetricEmitter
	statisticOnce sync.Once
}

func NewEventBus(bufferSize int) EventBus {
	return &eventBus{
		topicSet:   sets.NewString(),
		topics:     make(map[string]*topicContext),
		bufferSize: bufferSize,
		errorCounter: map[string]*uint64{
			ErrTypeNoSubscriber: new(uint64),
		},
		emitter: metrics.DummyMetrics{},
	}
}

// SetEmitter makes the statistic report go to the emitter besides the log.
func (e *eventBus) SetEmitter(emitter metrics.MetricEmitter) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.emitter = emitter
}

func (e *eventBus) EnableStatistic() {
	e.statisticOnce.Do(func() {
		go wait.Forever(e.reportStatistic, defaultReportInterval)
	})
}

func (e *eventBus) reportStatistic() {
	e.mutex.RLock()
	emitter := e.emitter
	topics := e.topicSet.List()
	e.mutex.RUnlock()

	for errType, counter := range e.errorCounter {
		count := atomic.SwapUint64(counter, 0)
		general.Infof("eventbus error counter: %v, %v", errType, count)
		_ = emitter.StoreInt64(metricsNameEventBusError, int64(count), metrics.MetricTypeNameCount,
			metrics.MetricTag{Key: "type", Val: errType})
	}

	for _, topic := range topics {
		t := e.getTopicContext(topic)
		for errType, counter := range t.errCounter {
			count := atomic.SwapUint64(counter, 0)
			general.Infof("eventbus topic %v error counter: %v, %v", topic, errType, count)
			_ = emitter.StoreInt64(metricsNameEventBusError, int64(count), metrics.MetricTypeNameCount,
				metrics.MetricTag{Key: "type", Val: errType}, metrics.MetricTag{Key: "topic", Val: topic})
		}
	}
}

func (e *eventBus) GetOrRegisterTopic(topic string) *topicContext {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if ctx, exists := e.topics[topic]; exists {
		return ctx
	}

	ctx := newTopicContext(topic, e.bufferSize)
	e.topics[topic] = ctx
	e.topicSet.Insert(topic)
	go ctx.Run()
	general.Infof("register new topic: %v", topic)
	return ctx
}

func (e *eventBus) getTopicContext(topic string) *topicContext {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.topics[topic]
}

// Publish never blocks; events of a topic nobody subscribed are dropped.
func (e *eventBus) Publish(topic string, event interface{}) error {
	ctx := e.getTopicContext(topic)
	if ctx == nil {
		atomic.AddUint64(e.errorCounter[ErrTypeNoSubscriber], 1)
		return nil
	}

	select {
	case ctx.buffer <- event:
		return nil
	default:
		atomic.AddUint64(ctx.errCounter[ErrTypeBufferFull], 1)
		return fmt.Errorf("topic %v buffer full", topic)
	}
}

func (e *eventBus) Subscribe(topic string, subscriber string, bufferSize int, handler ConsumeFunc) error {
	return e.GetOrRegisterTopic(topic).RegisterHandler(subscriber, bufferSize, handler)
}

func (e *eventBus) Unsubscribe(topic string, subscriber string) {
	if ctx := e.getTopicContext(topic); ctx != nil {
		ctx.UnregisterHandler(subscriber)
	}
}
