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

// Package policy decides whether the governor should bring a core online,
// take one offline or leave the topology alone. Decide is a pure function.
package policy

import (
	"github.com/kubewharf/katalyst-hotplug/pkg/hotplug/types"
)

const (
	RuleBusy     = "hardware-busy"
	RuleLowLoad  = "low-load"
	RuleHighLoad = "high-load"
	RuleRunQueue = "run-queue"
	RuleNone     = "none"
)

// Input is what one tick observed.
type Input struct {
	AggregateLoad     int
	OnlineCount       int
	PossibleCores     int
	TotalRunnable     int
	EvictionCandidate int
	MinRunQueue       int
	CandidateLoad     int
	Clock             types.ClockEnvelope
	Busy              bool
}

// Params are the tunable parts of the policy.
type Params struct {
	Thresholds         types.ThresholdTable
	RunQueueTrip       int
	RunQueueLoadTrip   int
	Combinator         types.ShutdownCombinator
	EnableRunQueueRule bool
}

// Decision is the verdict with the figures that led to it.
type Decision struct {
	Verdict     types.Verdict
	Rule        string
	AverageLoad int
	Tier        types.Tier
}

// NewInput combines a snapshot with the clock envelope and busy flag.
func NewInput(snapshot *types.Snapshot, possible int, clock types.ClockEnvelope, busy bool) Input {
	return Input{
		AggregateLoad:     snapshot.AggregateLoad,
		OnlineCount:       snapshot.OnlineCount,
		PossibleCores:     possible,
		TotalRunnable:     snapshot.TotalRunnable,
		EvictionCandidate: snapshot.EvictionCandidate,
		MinRunQueue:       snapshot.MinRunQueue,
		CandidateLoad:     snapshot.CandidateLoad,
		Clock:             clock,
		Busy:              busy,
	}
}

// AverageLoad scales the aggregate load by the clock headroom of the whole
// host: cur * aggregate / (max * possible). With an unknown clock envelope
// it falls back to the plain per-core average.
func AverageLoad(aggregate int, clock types.ClockEnvelope, possible int) int {
	if possible < 1 {
		possible = 1
	}
	denominator := clock.Max * uint64(possible)
	if denominator == 0 {
		return aggregate / possible
	}
	return int(clock.Current * uint64(aggregate) / denominator)
}

// Decide applies the rules in priority order; the first match wins.
func Decide(in Input, p Params) Decision {
	tier := p.Thresholds.Tier(in.OnlineCount)
	d := Decision{
		Verdict:     types.VerdictNone,
		Rule:        RuleNone,
		AverageLoad: AverageLoad(in.AggregateLoad, in.Clock, in.PossibleCores),
		Tier:        tier,
	}

	// an unknown envelope never pins the clock at its floor
	known := in.Clock.Max > 0
	atFloor := known && in.Clock.Current <= in.Clock.Min
	aboveFloor := !known || in.Clock.Current > in.Clock.Min

	switch {
	case in.Busy:
		d.Verdict, d.Rule = types.VerdictScaleUp, RuleBusy
	case in.OnlineCount > 1 && combine(p.Combinator, d.AverageLoad < tier.Low, atFloor):
		d.Verdict, d.Rule = types.VerdictScaleDown, RuleLowLoad
	case in.TotalRunnable > in.OnlineCount && d.AverageLoad > tier.High && aboveFloor:
		d.Verdict, d.Rule = types.VerdictScaleUp, RuleHighLoad
	case p.EnableRunQueueRule && in.OnlineCount > 1 && in.EvictionCandidate > types.PrimaryCPU &&
		in.MinRunQueue < p.RunQueueTrip && in.CandidateLoad < p.RunQueueLoadTrip:
		d.Verdict, d.Rule = types.VerdictScaleDown, RuleRunQueue
	}
	return d
}

func combine(c types.ShutdownCombinator, lowLoad, atFloor bool) bool {
	if c == types.ShutdownCombinatorAll {
		return lowLoad && atFloor
	}
	return lowLoad || atFloor
}
