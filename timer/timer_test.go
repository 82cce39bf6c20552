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

package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartExpiredOnceOnly(t *testing.T) {
	var tm Timer
	tm.Start(300, 10) // 3 ticks at 10Hz
	require.Equal(t, Timer(3), tm)

	tm.Tick()
	require.False(t, tm.Expired())
	tm.Tick()
	require.False(t, tm.Expired())
	tm.Tick()
	require.True(t, tm.Expired())
	require.Equal(t, Inactive, tm)
	require.False(t, tm.Expired())
}

func TestStartClampsToOneTick(t *testing.T) {
	var tm Timer
	tm.Start(1, 10) // would round down to 0 ticks, clamp to 1
	require.Equal(t, Timer(1), tm)
}

func TestStopDeactivates(t *testing.T) {
	var tm Timer
	tm.Start(1000, 10)
	tm.Stop()
	require.Equal(t, Inactive, tm)
	tm.Tick()
	require.Equal(t, Inactive, tm)
	require.False(t, tm.Expired())
}

func TestWheelTicksAllRegistered(t *testing.T) {
	w := NewWheel()
	a := w.Register("announce")
	s := w.Register("sync")
	a.Start(200, 10)
	s.Start(100, 10)

	w.Tick()
	require.False(t, s.Expired())
	w.Tick()
	require.True(t, s.Expired())
	require.False(t, a.Expired())
	w.Tick()
	require.True(t, a.Expired())
}
