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

package policy

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"

	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

func midasParams() Params {
	return Params{
		Thresholds:         types.ThresholdTable{{Low: 0, High: 20}, {Low: 10, High: 35}, {Low: 15, High: 45}, {Low: 20, High: 100}},
		RunQueueTrip:       2,
		RunQueueLoadTrip:   20,
		Combinator:         types.ShutdownCombinatorAny,
		EnableRunQueueRule: true,
	}
}

var fullSpeed = types.ClockEnvelope{Current: 1400000, Min: 200000, Max: 1400000}

func TestDecideScenarios(t *testing.T) {
	t.Parallel()

	Convey("Given the midas policy parameters", t, func() {
		params := midasParams()

		Convey("one busy core with queued tasks scales up", func() {
			in := Input{AggregateLoad: 90, OnlineCount: 1, PossibleCores: 4, TotalRunnable: 3,
				EvictionCandidate: -1, Clock: fullSpeed}
			d := Decide(in, params)
			So(d.Verdict, ShouldEqual, types.VerdictScaleUp)
			So(d.Rule, ShouldEqual, RuleHighLoad)
			So(d.AverageLoad, ShouldEqual, 22)
		})

		Convey("two cores averaging below the low threshold scale down", func() {
			in := Input{AggregateLoad: 60, OnlineCount: 2, PossibleCores: 4, TotalRunnable: 2,
				EvictionCandidate: 1, MinRunQueue: 3, CandidateLoad: 30, Clock: fullSpeed}
			params.Thresholds[1] = types.Tier{Low: 20, High: 35}
			d := Decide(in, params)
			So(d.AverageLoad, ShouldEqual, 15)
			So(d.Verdict, ShouldEqual, types.VerdictScaleDown)
			So(d.Rule, ShouldEqual, RuleLowLoad)
		})

		Convey("the busy flag wins over everything", func() {
			in := Input{AggregateLoad: 0, OnlineCount: 4, PossibleCores: 4, EvictionCandidate: 1,
				Clock: types.ClockEnvelope{Current: 200000, Min: 200000, Max: 1400000}, Busy: true}
			So(Decide(in, params).Verdict, ShouldEqual, types.VerdictScaleUp)
			So(Decide(in, params).Rule, ShouldEqual, RuleBusy)
		})

		Convey("a clock at its floor scales down with the any combinator", func() {
			in := Input{AggregateLoad: 300, OnlineCount: 2, PossibleCores: 4, TotalRunnable: 5,
				EvictionCandidate: 1, MinRunQueue: 3, CandidateLoad: 90,
				Clock: types.ClockEnvelope{Current: 200000, Min: 200000, Max: 1400000}}
			So(Decide(in, params).Verdict, ShouldEqual, types.VerdictScaleDown)

			Convey("but not with the all combinator while the load is high", func() {
				params.Combinator = types.ShutdownCombinatorAll
				d := Decide(in, params)
				So(d.Verdict, ShouldEqual, types.VerdictNone)
			})
		})

		Convey("the only core online is never scaled down", func() {
			in := Input{AggregateLoad: 0, OnlineCount: 1, PossibleCores: 4,
				EvictionCandidate: -1, Clock: types.ClockEnvelope{Current: 200000, Min: 200000, Max: 1400000}}
			So(Decide(in, params).Verdict, ShouldEqual, types.VerdictNone)
		})

		Convey("high load without queued tasks does not scale up", func() {
			in := Input{AggregateLoad: 100, OnlineCount: 1, PossibleCores: 1, TotalRunnable: 1,
				EvictionCandidate: -1, Clock: fullSpeed}
			So(Decide(in, params).Verdict, ShouldEqual, types.VerdictNone)
		})

		Convey("a shallow run queue on a quiet core scales down", func() {
			in := Input{AggregateLoad: 160, OnlineCount: 2, PossibleCores: 2, TotalRunnable: 2,
				EvictionCandidate: 1, MinRunQueue: 1, CandidateLoad: 10, Clock: fullSpeed}
			d := Decide(in, params)
			So(d.AverageLoad, ShouldEqual, 80)
			So(d.Verdict, ShouldEqual, types.VerdictScaleDown)
			So(d.Rule, ShouldEqual, RuleRunQueue)

			Convey("unless the run queue rule is disabled", func() {
				params.EnableRunQueueRule = false
				So(Decide(in, params).Verdict, ShouldEqual, types.VerdictNone)
			})

			Convey("or the candidate itself is loaded", func() {
				in.CandidateLoad = 20
				So(Decide(in, params).Verdict, ShouldEqual, types.VerdictNone)
			})
		})
	})
}

func TestAverageLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		aggregate int
		clock     types.ClockEnvelope
		possible  int
		want      int
	}{
		{name: "full speed quad", aggregate: 400, clock: fullSpeed, possible: 4, want: 100},
		{name: "half speed", aggregate: 200, clock: types.ClockEnvelope{Current: 700000, Max: 1400000}, possible: 2, want: 50},
		{name: "unknown envelope", aggregate: 150, possible: 3, want: 50},
		{name: "no possible cores", aggregate: 40, possible: 0, want: 40},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AverageLoad(tt.aggregate, tt.clock, tt.possible))
		})
	}
}

func TestDecideTierAlwaysValid(t *testing.T) {
	t.Parallel()

	params := midasParams()
	for online := 1; online <= 8; online++ {
		tier := params.Thresholds.TierIndex(online)
		assert.GreaterOrEqual(t, tier, 0)
		assert.Less(t, tier, len(params.Thresholds))
		assert.NotPanics(t, func() {
			Decide(Input{OnlineCount: online, PossibleCores: 8, Clock: fullSpeed}, params)
		})
	}
}

func TestDecideIsPure(t *testing.T) {
	t.Parallel()

	params := midasParams()
	inputs := []Input{
		{AggregateLoad: 90, OnlineCount: 1, PossibleCores: 4, TotalRunnable: 3, EvictionCandidate: -1, Clock: fullSpeed},
		{AggregateLoad: 20, OnlineCount: 3, PossibleCores: 4, TotalRunnable: 1, EvictionCandidate: 2, Clock: fullSpeed},
		{AggregateLoad: 250, OnlineCount: 3, PossibleCores: 4, TotalRunnable: 9, EvictionCandidate: 1, MinRunQueue: 4, CandidateLoad: 80, Clock: fullSpeed},
	}
	for _, in := range inputs {
		before := params.Thresholds.Clone()
		first := Decide(in, params)
		second := Decide(in, params)
		assert.Equal(t, first, second)
		assert.Equal(t, before, params.Thresholds)
	}
}

func TestNewInput(t *testing.T) {
	t.Parallel()

	snapshot := &types.Snapshot{OnlineCount: 2, AggregateLoad: 120, TotalRunnable: 5,
		EvictionCandidate: 1, MinRunQueue: 2, CandidateLoad: 40}
	in := NewInput(snapshot, 4, fullSpeed, true)
	assert.Equal(t, Input{AggregateLoad: 120, OnlineCount: 2, PossibleCores: 4, TotalRunnable: 5,
		EvictionCandidate: 1, MinRunQueue: 2, CandidateLoad: 40, Clock: fullSpeed, Busy: true}, in)
}
