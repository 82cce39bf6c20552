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

// Package timer implements the software timer wheel: fixed-rate countdown
// timers decremented by a periodic tick and polled for expiry from the
// super-loop, the way a bare-metal ISR-flag design would.
package timer

// Timer is a countdown counter: >0 running, 0 just-expired, -1 inactive.
type Timer int32

// Inactive is the value of a stopped timer.
const Inactive Timer = -1

// Start arms the timer for interval_ms milliseconds at the given tick rate.
func (t *Timer) Start(intervalMs int64, tickHz int64) {
	ticks := intervalMs * tickHz / 1000
	if ticks < 1 {
		ticks = 1
	}
	*t = Timer(ticks)
}

// Stop disarms the timer.
func (t *Timer) Stop() {
	*t = Inactive
}

// Expired reports whether the timer just reached zero. It returns true at
// most once per expiration: observing the expiry also transitions the
// timer to Inactive, so a second call returns false until Start is called
// again.
func (t *Timer) Expired() bool {
	if *t == 0 {
		*t = Inactive
		return true
	}
	return false
}

// Tick decrements the timer if it is running. A timer at 0 or Inactive is
// left untouched - tick never pushes a timer below 0 on its own.
func (t *Timer) Tick() {
	if *t > 0 {
		*t--
	}
}

// Wheel is a named collection of timers ticked together once per period.
// The protocol engine registers each of its timers (announce, sync,
// delay-req, announce-receipt) under a name so protocol_tick can decrement
// all of them and then test each one's Expired() independently.
type Wheel struct {
	timers map[string]*Timer
}

// NewWheel returns an empty timer wheel.
func NewWheel() *Wheel {
	return &Wheel{timers: make(map[string]*Timer)}
}

// Register adds (or returns, if already present) the named timer, starting
// Inactive.
func (w *Wheel) Register(name string) *Timer {
	if t, ok := w.timers[name]; ok {
		return t
	}
	t := new(Timer)
	*t = Inactive
	w.timers[name] = t
	return t
}

// Tick decrements every registered timer by one tick. The tick caller must
// not hold any lock while later consulting Expired() and invoking handlers
// - this core is single-threaded, so that invariant holds by construction.
func (w *Wheel) Tick() {
	for _, t := range w.timers {
		t.Tick()
	}
}
