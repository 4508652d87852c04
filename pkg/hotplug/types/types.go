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

// Package types holds the data shared by the hotplug sampler, policy,
// actuator and controller.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PrimaryCPU is the boot core; it is never taken offline.
const PrimaryCPU = 0

// Verdict is the outcome of one policy evaluation.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictScaleUp
	VerdictScaleDown
)

func (v Verdict) String() string {
	switch v {
	case VerdictScaleUp:
		return "scale_up"
	case VerdictScaleDown:
		return "scale_down"
	default:
		return "none"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	for _, candidate := range []Verdict{VerdictNone, VerdictScaleUp, VerdictScaleDown} {
		if candidate.String() == string(text) {
			*v = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown verdict %q", text)
}

// LoopState is the state of the scheduling loop.
type LoopState int

const (
	// LoopStateIdle covers the boot delay and the screen-off park.
	LoopStateIdle LoopState = iota
	LoopStateRunning
	LoopStateDisabled
	LoopStateSuspended
)

func (s LoopState) String() string {
	switch s {
	case LoopStateIdle:
		return "idle"
	case LoopStateRunning:
		return "running"
	case LoopStateDisabled:
		return "disabled"
	case LoopStateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

func (s LoopState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LoopState) UnmarshalText(text []byte) error {
	for _, candidate := range []LoopState{LoopStateIdle, LoopStateRunning, LoopStateDisabled, LoopStateSuspended} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown loop state %q", text)
}

// Tier holds the load band for one online-core count, in percent.
type Tier struct {
	Low  int `json:"low" yaml:"low"`
	High int `json:"high" yaml:"high"`
}

// ThresholdTable is indexed by online core count minus one.
type ThresholdTable []Tier

// TierIndex maps an online core count onto a valid index of the table.
func (t ThresholdTable) TierIndex(online int) int {
	idx := online - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(t)-1 {
		idx = len(t) - 1
	}
	return idx
}

// Tier returns the band used while online cores are online.
func (t ThresholdTable) Tier(online int) Tier {
	if len(t) == 0 {
		return Tier{Low: 0, High: 100}
	}
	return t[t.TierIndex(online)]
}

// Clone returns a deep copy of the table.
func (t ThresholdTable) Clone() ThresholdTable {
	return append(ThresholdTable(nil), t...)
}

// Resize pads (with the last tier) or truncates the table to n tiers.
func (t ThresholdTable) Resize(n int) ThresholdTable {
	out := make(ThresholdTable, n)
	for i := 0; i < n; i++ {
		switch {
		case i < len(t):
			out[i] = t[i]
		case len(t) > 0:
			out[i] = t[len(t)-1]
		default:
			out[i] = Tier{Low: 0, High: 100}
		}
	}
	return out
}

// Validate checks every tier is within [0, 100] with low <= high.
func (t ThresholdTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("threshold table is empty")
	}
	for i, tier := range t {
		if tier.Low < 0 || tier.High > 100 || tier.Low > tier.High {
			return fmt.Errorf("tier %d has invalid band [%d, %d]", i, tier.Low, tier.High)
		}
	}
	return nil
}

func (t ThresholdTable) String() string {
	parts := make([]string, 0, len(t))
	for _, tier := range t {
		parts = append(parts, fmt.Sprintf("%d:%d", tier.Low, tier.High))
	}
	return strings.Join(parts, ",")
}

// ParseThresholdTable parses the "low:high,low:high" form.
func ParseThresholdTable(s string) (ThresholdTable, error) {
	var table ThresholdTable
	for _, part := range strings.Split(strings.TrimSpace(s), ",") {
		bounds := strings.Split(strings.TrimSpace(part), ":")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid tier %q, expected low:high", part)
		}
		low, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("invalid low bound in tier %q: %v", part, err)
		}
		high, err := strconv.Atoi(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("invalid high bound in tier %q: %v", part, err)
		}
		table = append(table, Tier{Low: low, High: high})
	}
	return table, table.Validate()
}

// ShutdownCombinator joins the two conditions of the load based scale down rule.
type ShutdownCombinator string

const (
	// ShutdownCombinatorAny scales down when load is low or the clock sits at its floor.
	ShutdownCombinatorAny ShutdownCombinator = "any"
	// ShutdownCombinatorAll scales down only when both hold.
	ShutdownCombinatorAll ShutdownCombinator = "all"
)

// ClockEnvelope is the current clock rate and its bounds, in kHz.
type ClockEnvelope struct {
	Current uint64 `json:"current"`
	Min     uint64 `json:"min"`
	Max     uint64 `json:"max"`
}

// CoreSample is what the sampler knows about one core.
type CoreSample struct {
	CPU      int  `json:"cpu"`
	Online   bool `json:"online"`
	Load     int  `json:"load"`
	RunQueue int  `json:"runQueue"`
}

// Snapshot is the outcome of one sampling pass over the online cores.
type Snapshot struct {
	Cores         []CoreSample `json:"cores"`
	OnlineCount   int          `json:"onlineCount"`
	AggregateLoad int          `json:"aggregateLoad"`
	TotalRunnable int          `json:"totalRunnable"`

	// EvictionCandidate is the non-primary online core with the fewest
	// runnable tasks; -1 when only the primary core is online.
	EvictionCandidate int `json:"evictionCandidate"`
	MinRunQueue       int `json:"minRunQueue"`
	CandidateLoad     int `json:"candidateLoad"`

	// Anomaly is set when some core reported more idle than wall time.
	Anomaly bool `json:"anomaly"`
}

// Transition records one attempted core state change.
type Transition struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	CPU     int       `json:"cpu"`
	Online  bool      `json:"online"`
	Reason  string    `json:"reason"`
	Error   string    `json:"error,omitempty"`
	Success bool      `json:"success"`
}

// Status is a point in time view of the governor.
type Status struct {
	LoopState       LoopState      `json:"loopState"`
	GovernorEnabled bool           `json:"governorEnabled"`
	AutoHotplug     bool           `json:"autoHotplug"`
	ManualLock      bool           `json:"manualLock"`
	Rebooting       bool           `json:"rebooting"`
	ScreenOff       bool           `json:"screenOff"`
	PinnedCores     int            `json:"pinnedCores"`
	PossibleCores   int            `json:"possibleCores"`
	OnlineCPUs      []int          `json:"onlineCPUs"`
	Interval        string         `json:"interval"`
	Pending         bool           `json:"pending"`
	LastVerdict     Verdict        `json:"lastVerdict"`
	LastTick        time.Time      `json:"lastTick"`
	AverageLoad     int            `json:"averageLoad"`
	MeanCoreLoad    float64        `json:"meanCoreLoad"`
	MaxCoreLoad     float64        `json:"maxCoreLoad"`
	Clock           ClockEnvelope  `json:"clock"`
	Thresholds      ThresholdTable `json:"thresholds"`
	Snapshot        *Snapshot      `json:"snapshot,omitempty"`
	Transitions     []Transition   `json:"transitions"`
	Platform        PlatformInfo   `json:"platform"`
}

// PlatformInfo describes the host the governor runs on.
type PlatformInfo struct {
	Profile       string `json:"profile"`
	CPUBrand      string `json:"cpuBrand,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	LogicalCores  int    `json:"logicalCores"`
	PhysicalCores int    `json:"physicalCores"`
	DryRun        bool   `json:"dryRun"`
}
