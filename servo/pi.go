/*
Copyright (c) Facebook, Inc. and its affiliates.

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

// Package servo implements the offset/delay filters and the fixed-point PI
// controller that steers the local clock toward the selected master. The
// arithmetic is all integer: shifts instead of float gains (P=1/2, I=1/8),
// so the controller behaves identically on targets without an FPU.
package servo

import (
	"github.com/facebookincubator/ptpd-oc/clock"
	"github.com/facebookincubator/ptpd-oc/ptp"
)

// State is the result of a servo update.
type State uint8

// Servo states.
const (
	StateInit State = iota
	StateJump
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateJump:
		return "JUMP"
	case StateLocked:
		return "LOCKED"
	}
	return "UNKNOWN"
}

// ADJFreqMax is the integral clamp (observedDrift range), in nanoseconds.
const ADJFreqMax int32 = 500000

// hardStepThresholdNs is the offset magnitude above which the servo steps
// the clock instead of slewing it (10ms).
const hardStepThresholdNs = 10_000_000

// PiServo filters offset and path delay and drives clock.Clock with a
// fixed-point PI controller.
type PiServo struct {
	offsetFilter Filter
	delayFilter  Filter

	offsetFromMaster ptp.TimeInternal
	meanPathDelay    ptp.TimeInternal

	// lastSyncT2/lastSyncT1 are the sync-ingress and origin timestamps from
	// the most recently processed Sync/Follow_Up pair. UpdateDelay needs
	// T_ms = T2 - T1 but only ever sees T3/T4 from Delay_Resp, so the pair
	// is cached here at Sync time.
	lastSyncT2 ptp.TimeInternal
	lastSyncT1 ptp.TimeInternal

	observedDrift int32

	WaitingForFollowUp     bool
	LastSyncHeader         ptp.Header
	SentDelayReqSequenceID uint16
}

// NewPiServo returns a freshly initialized servo.
func NewPiServo() *PiServo {
	s := &PiServo{}
	s.Init()
	return s
}

// Init (servo_init) zeroes the filters and the integral term. Entering
// UNCALIBRATED always does this.
func (s *PiServo) Init() {
	s.offsetFilter = NewFilter()
	s.delayFilter = NewFilter()
	s.offsetFromMaster = ptp.TimeInternal{}
	s.meanPathDelay = ptp.TimeInternal{}
	s.lastSyncT2 = ptp.TimeInternal{}
	s.lastSyncT1 = ptp.TimeInternal{}
	s.observedDrift = 0
	s.WaitingForFollowUp = false
	s.LastSyncHeader = ptp.Header{}
	s.SentDelayReqSequenceID = 0
}

// OffsetFromMaster returns the filtered offsetFromMaster.
func (s *PiServo) OffsetFromMaster() ptp.TimeInternal { return s.offsetFromMaster }

// MeanPathDelay returns the filtered meanPathDelay.
func (s *PiServo) MeanPathDelay() ptp.TimeInternal { return s.meanPathDelay }

// ObservedDrift returns the current integral term, always within
// [-ADJFreqMax, ADJFreqMax].
func (s *PiServo) ObservedDrift() int32 { return s.observedDrift }

// UpdateOffset (servo_update_offset) computes offset = (T2-T1) -
// meanPathDelay, filters it unless a clock jump is detected (seconds != 0),
// and returns the resulting offsetFromMaster.
func (s *PiServo) UpdateOffset(t2, t1 ptp.TimeInternal) ptp.TimeInternal {
	s.lastSyncT2, s.lastSyncT1 = t2, t1
	raw := t2.Sub(t1).Sub(s.meanPathDelay)
	if raw.Seconds == 0 {
		s.offsetFromMaster = ptp.TimeInternal{Nanoseconds: int32(s.offsetFilter.Sample(int64(raw.Nanoseconds)))}.Normalize()
	} else {
		s.offsetFilter.Reset()
		s.offsetFromMaster = raw
	}
	return s.offsetFromMaster
}

// UpdateDelay (servo_update_delay) computes T_ms (cached from the last
// Sync), T_sm = T4-T3, meanPathDelay = (T_ms+T_sm)/2, filtering it the same
// way UpdateOffset filters the offset.
func (s *PiServo) UpdateDelay(t3, t4 ptp.TimeInternal) ptp.TimeInternal {
	tms := s.lastSyncT2.Sub(s.lastSyncT1)
	tsm := t4.Sub(t3)
	raw := tms.Add(tsm).Div2()
	if raw.Seconds == 0 {
		s.meanPathDelay = ptp.TimeInternal{Nanoseconds: int32(s.delayFilter.Sample(int64(raw.Nanoseconds)))}.Normalize()
	} else {
		s.delayFilter.Reset()
		s.meanPathDelay = raw
	}
	return s.meanPathDelay
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func clampDrift(v int32) int32 {
	switch {
	case v > ADJFreqMax:
		return ADJFreqMax
	case v < -ADJFreqMax:
		return -ADJFreqMax
	default:
		return v
	}
}

// UpdateClock (the PI controller) either hard-steps the clock and
// reinitializes the servo, or slews it: observedDrift += offset/8 (clamped),
// adj = offset/2 + observedDrift, adj_time(-adj). A hard step is the only
// path that zeroes servo state; slewing is continuous.
func (s *PiServo) UpdateClock(clk clock.Clock) State {
	offset := s.offsetFromMaster
	// Normalized offsets keep Nanoseconds in [0, 1e9), so a negative
	// sub-second offset -x arrives as {-1, 1e9-x}; fold it back to -x ns.
	whole, offNs := offset.Seconds, offset.Nanoseconds
	if whole == -1 {
		whole, offNs = 0, offNs-1_000_000_000
	}
	if whole != 0 || abs32(offNs) > hardStepThresholdNs {
		now := clk.GetTime()
		clk.SetTime(now.Sub(offset))
		s.Init()
		return StateJump
	}

	s.observedDrift = clampDrift(s.observedDrift + offNs/8)
	adj := offNs/2 + s.observedDrift
	clk.AdjTime(-adj)
	return StateLocked
}
