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

package servo

import (
	"testing"

	"github.com/facebookincubator/ptpd-oc/ptp"
	"github.com/stretchr/testify/require"
)

// fakeClock is an in-memory clock.Clock used to observe what the servo
// asks the Clock HAL to do, without any real ticking.
type fakeClock struct {
	now       ptp.TimeInternal
	steppedTo *ptp.TimeInternal
	adjusted  []int32
}

func (f *fakeClock) GetTime() ptp.TimeInternal { return f.now }
func (f *fakeClock) SetTime(t ptp.TimeInternal) {
	f.now = t
	cp := t
	f.steppedTo = &cp
}
func (f *fakeClock) AdjTime(deltaNs int32) {
	f.adjusted = append(f.adjusted, deltaNs)
	f.now = f.now.Add(ptp.TimeInternal{Nanoseconds: deltaNs})
}
func (f *fakeClock) TickInit() {}

func TestUpdateOffsetTwoStepSync(t *testing.T) {
	s := NewPiServo()
	t1 := ptp.TimeInternal{Seconds: 10, Nanoseconds: 100}
	t2 := ptp.TimeInternal{Seconds: 10, Nanoseconds: 500}

	offset := s.UpdateOffset(t2, t1)
	require.Equal(t, ptp.TimeInternal{Seconds: 0, Nanoseconds: 400}, offset)
}

func TestUpdateClockSlewsWithinThreshold(t *testing.T) {
	s := NewPiServo()
	s.UpdateOffset(ptp.TimeInternal{Seconds: 10, Nanoseconds: 500}, ptp.TimeInternal{Seconds: 10, Nanoseconds: 100})

	fc := &fakeClock{now: ptp.TimeInternal{Seconds: 10}}
	state := s.UpdateClock(fc)

	require.Equal(t, StateLocked, state)
	require.Equal(t, int32(50), s.ObservedDrift())
	require.Equal(t, []int32{-250}, fc.adjusted)
	require.Nil(t, fc.steppedTo)
}

func TestUpdateClockHardSteps(t *testing.T) {
	s := NewPiServo()
	s.UpdateOffset(ptp.TimeInternal{Seconds: 12}, ptp.TimeInternal{Seconds: 10})

	fc := &fakeClock{now: ptp.TimeInternal{Seconds: 12}}
	state := s.UpdateClock(fc)

	require.Equal(t, StateJump, state)
	require.NotNil(t, fc.steppedTo)
	require.Zero(t, s.ObservedDrift())
	require.True(t, s.offsetFromMaster.IsZero())
}

func TestObservedDriftClamped(t *testing.T) {
	s := NewPiServo()
	fc := &fakeClock{now: ptp.TimeInternal{Seconds: 1}}
	for i := 0; i < 10_000; i++ {
		s.UpdateOffset(ptp.TimeInternal{Nanoseconds: 9_000_000}, ptp.TimeInternal{})
		s.UpdateClock(fc)
		require.LessOrEqual(t, s.ObservedDrift(), ADJFreqMax)
		require.GreaterOrEqual(t, s.ObservedDrift(), -ADJFreqMax)
	}
}

func TestUpdateDelayUsesCachedSyncPair(t *testing.T) {
	s := NewPiServo()
	s.UpdateOffset(ptp.TimeInternal{Seconds: 10, Nanoseconds: 1000}, ptp.TimeInternal{Seconds: 10, Nanoseconds: 0})

	t3 := ptp.TimeInternal{Seconds: 10, Nanoseconds: 2000}
	t4 := ptp.TimeInternal{Seconds: 10, Nanoseconds: 2800}
	delay := s.UpdateDelay(t3, t4)

	// T_ms = 1000, T_sm = 800, mean = 900
	require.Equal(t, ptp.TimeInternal{Nanoseconds: 900}, delay)
}

func TestInitZeroesEverything(t *testing.T) {
	s := NewPiServo()
	s.UpdateOffset(ptp.TimeInternal{Seconds: 1}, ptp.TimeInternal{})
	s.observedDrift = 12345
	s.WaitingForFollowUp = true

	s.Init()

	require.True(t, s.offsetFromMaster.IsZero())
	require.True(t, s.meanPathDelay.IsZero())
	require.Zero(t, s.ObservedDrift())
	require.False(t, s.WaitingForFollowUp)
}
