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

package clock

import (
	"testing"
	"time"

	"github.com/facebookincubator/ptpd-oc/ptp"
	"github.com/stretchr/testify/require"
)

func TestSoftwareClockMonotonic(t *testing.T) {
	c := NewSoftwareClock(1_000_000)
	c.TickInit()
	defer c.Close()

	t1 := c.GetTime()
	time.Sleep(5 * time.Millisecond)
	t2 := c.GetTime()
	require.True(t, t2.Seconds > t1.Seconds || (t2.Seconds == t1.Seconds && t2.Nanoseconds > t1.Nanoseconds))
}

func TestSoftwareClockSetTime(t *testing.T) {
	c := NewSoftwareClock(1_000_000)
	c.TickInit()
	defer c.Close()

	c.AdjTime(1_000_000) // dirty the offset before stepping
	target := ptp.TimeInternal{Seconds: 100, Nanoseconds: 500}
	c.SetTime(target)

	got := c.GetTime()
	require.Equal(t, target.Seconds, got.Seconds)
	require.InDelta(t, target.Nanoseconds, got.Nanoseconds, float64(time.Millisecond))
	require.Zero(t, c.offsetNs.Load())
}

func TestSoftwareClockAdjTimeSlews(t *testing.T) {
	c := NewSoftwareClock(1_000_000)
	c.TickInit()
	defer c.Close()

	c.SetTime(ptp.TimeInternal{Seconds: 1})
	before := c.GetTime()
	c.AdjTime(50_000_000) // +50ms
	after := c.GetTime()

	deltaNs := (after.Seconds-before.Seconds)*int64(time.Second) + int64(after.Nanoseconds-before.Nanoseconds)
	require.InDelta(t, 50_000_000, deltaNs, float64(2*time.Millisecond))
}
