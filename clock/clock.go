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

// Package clock implements the clock HAL: a monotonic 64-bit tick source
// plus the get/set/adjust operations the servo and protocol engine steer.
// The counter is modeled on a cascaded hardware timer - a hi/lo word pair
// read with retry - with a software-offset-only slew layered on top that
// never touches the counter itself.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/ptpd-oc/ptp"
)

// Clock is what the servo and protocol engine need from a clock.
type Clock interface {
	GetTime() ptp.TimeInternal
	SetTime(ptp.TimeInternal)
	AdjTime(deltaNs int32)
	TickInit()
}

// SoftwareClock is a free-running counter driven by a goroutine that ticks
// at tickHz, with a software nanosecond offset layered on top for slewing.
// The counter is a 32-bit low word that wraps into a 32-bit high word, read
// with a retry-on-mismatch to get a consistent 64-bit value.
type SoftwareClock struct {
	tickHz uint64

	mu       sync.Mutex // serializes SetTime against the ticking goroutine
	hi       atomic.Uint32
	lo       atomic.Uint32
	offsetNs atomic.Int64

	stop chan struct{}
}

// NewSoftwareClock returns a SoftwareClock ticking at tickHz once TickInit
// is called.
func NewSoftwareClock(tickHz uint64) *SoftwareClock {
	return &SoftwareClock{tickHz: tickHz}
}

// TickInit starts the free-running counter. Safe to call once.
func (c *SoftwareClock) TickInit() {
	c.stop = make(chan struct{})
	period := time.Second / time.Duration(c.tickHz)
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.advance()
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the ticking goroutine.
func (c *SoftwareClock) Close() {
	if c.stop != nil {
		close(c.stop)
	}
}

func (c *SoftwareClock) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lo.Add(1) == 0 {
		c.hi.Add(1)
	}
}

// rawTicks reads the cascaded hi/lo counter consistently: read high, low,
// high again, and retry if the high word changed mid-read.
func (c *SoftwareClock) rawTicks() uint64 {
	for {
		hi1 := c.hi.Load()
		lo := c.lo.Load()
		hi2 := c.hi.Load()
		if hi1 == hi2 {
			return uint64(hi1)<<32 | uint64(lo)
		}
	}
}

// GetTime returns (raw_ticks * 1e9 / tick_hz) + software_offset_ns,
// normalized. Seconds and the sub-second remainder are converted
// separately so the multiplication by 1e9 cannot overflow.
func (c *SoftwareClock) GetTime() ptp.TimeInternal {
	ticks := c.rawTicks()
	base := ptp.TimeInternal{
		Seconds:     int64(ticks / c.tickHz),
		Nanoseconds: int32(ticks % c.tickHz * uint64(time.Second) / c.tickHz),
	}
	off := c.offsetNs.Load()
	return base.Add(ptp.TimeInternal{
		Seconds:     off / int64(time.Second),
		Nanoseconds: int32(off % int64(time.Second)),
	})
}

// SetTime stops the counter, writes the reset value, restarts it, and
// zeroes the software offset. This is a hard step.
func (c *SoftwareClock) SetTime(t ptp.TimeInternal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticks := uint64(t.Seconds)*c.tickHz + uint64(t.Nanoseconds)*c.tickHz/uint64(time.Second)
	c.hi.Store(uint32(ticks >> 32))
	c.lo.Store(uint32(ticks))
	c.offsetNs.Store(0)
}

// AdjTime adds deltaNs to the software offset. This is a slew: subsequent
// GetTime calls incorporate the delta continuously, the counter itself is
// never touched.
func (c *SoftwareClock) AdjTime(deltaNs int32) {
	c.offsetNs.Add(int64(deltaNs))
}
