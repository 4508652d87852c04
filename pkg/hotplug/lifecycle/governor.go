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

package lifecycle

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kubewharf/katalyst-hotplug/pkg/util/general"
)

// GovernorSource polls the active cpufreq governor and publishes every
// change, the first read included.
type GovernorSource struct {
	publisher Publisher
	read      func() (string, error)
	period    time.Duration
	logger    general.Logger

	last string
}

func NewGovernorSource(publisher Publisher, read func() (string, error), period time.Duration) *GovernorSource {
	return &GovernorSource{publisher: publisher, read: read, period: period, logger: general.LoggerWithPrefix("governor")}
}

func (s *GovernorSource) Name() string { return "governor" }

func (s *GovernorSource) Run(ctx context.Context) error {
	wait.UntilWithContext(ctx, s.poll, s.period)
	return nil
}

func (s *GovernorSource) poll(_ context.Context) {
	governor, err := s.read()
	if err != nil {
		s.logger.Warningf("read cpufreq governor: %v", err)
		return
	}
	if governor == s.last {
		return
	}

	s.logger.Infof("cpufreq governor changed from %q to %q", s.last, governor)
	if err := s.publisher.Publish(EventGovernorChanged, governor); err != nil {
		s.logger.Errorf("publish governor change failed: %v", err)
		return
	}
	s.last = governor
}
