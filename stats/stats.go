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

// Package stats counts protocol traffic and fault events. Bad messages are
// dropped silently on the wire; the only trace they leave is a counter here.
package stats

import (
	"sync/atomic"

	"github.com/facebookincubator/ptpd-oc/ptp"
)

// counter is a simple atomic counter
type counter struct {
	c int64
}

func (c *counter) inc() {
	atomic.AddInt64(&c.c, 1)
}

func (c *counter) load() int64 {
	return atomic.LoadInt64(&c.c)
}

func (c *counter) reset() {
	atomic.StoreInt64(&c.c, 0)
}

// perMessageType is one counter per PTP message type nibble.
type perMessageType [16]counter

func (p *perMessageType) inc(t ptp.MessageType) {
	p[int(t)&0x0f].inc()
}

func (p *perMessageType) toMap(prefix string, out map[string]int64) {
	for i := range p {
		if v := p[i].load(); v != 0 {
			out[prefix+"."+ptp.MessageType(i).String()] = v
		}
	}
}

// Stats holds the per-message-type traffic counters and the fault counters
// of the error kinds that are dropped rather than surfaced: malformed
// messages, out-of-order messages and foreign-table overflows. Hard steps
// are counted too, they are rare enough that each one is worth seeing.
type Stats struct {
	rx perMessageType
	tx perMessageType

	malformed        counter
	outOfOrder       counter
	foreignTableFull counter
	hardSteps        counter

	portState   atomic.Int64
	offsetNs    atomic.Int64
	pathDelayNs atomic.Int64
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats {
	return &Stats{}
}

// IncRX counts one received message of the given type.
func (s *Stats) IncRX(t ptp.MessageType) { s.rx.inc(t) }

// IncTX counts one sent message of the given type.
func (s *Stats) IncTX(t ptp.MessageType) { s.tx.inc(t) }

// IncMalformed counts one dropped malformed message: truncated, wrong
// version or wrong domain.
func (s *Stats) IncMalformed() { s.malformed.inc() }

// IncOutOfOrder counts one dropped out-of-order message: a Follow_Up
// without a matching Sync, a Delay_Resp with an unknown sequence id, or a
// Sync from a non-parent.
func (s *Stats) IncOutOfOrder() { s.outOfOrder.inc() }

// IncForeignTableFull counts one Announce from a new master that could not
// be recorded because the foreign-master table was full.
func (s *Stats) IncForeignTableFull() { s.foreignTableFull.inc() }

// IncHardStep counts one hard clock step.
func (s *Stats) IncHardStep() { s.hardSteps.inc() }

// SetPortState records the current port state.
func (s *Stats) SetPortState(ps ptp.PortState) { s.portState.Store(int64(ps)) }

// SetOffsetNs records the latest filtered offset from master.
func (s *Stats) SetOffsetNs(v int64) { s.offsetNs.Store(v) }

// SetPathDelayNs records the latest filtered mean path delay.
func (s *Stats) SetPathDelayNs(v int64) { s.pathDelayNs.Store(v) }

// Malformed returns the malformed-message drop count.
func (s *Stats) Malformed() int64 { return s.malformed.load() }

// OutOfOrder returns the out-of-order drop count.
func (s *Stats) OutOfOrder() int64 { return s.outOfOrder.load() }

// ForeignTableFull returns the foreign-table overflow count.
func (s *Stats) ForeignTableFull() int64 { return s.foreignTableFull.load() }

// HardSteps returns the hard-step count.
func (s *Stats) HardSteps() int64 { return s.hardSteps.load() }

// Reset zeroes every traffic and fault counter. Gauges are left alone.
func (s *Stats) Reset() {
	for i := range s.rx {
		s.rx[i].reset()
		s.tx[i].reset()
	}
	s.malformed.reset()
	s.outOfOrder.reset()
	s.foreignTableFull.reset()
	s.hardSteps.reset()
}

// ToMap flattens all counters and gauges into a flat map for reporting.
func (s *Stats) ToMap() map[string]int64 {
	out := map[string]int64{}
	s.rx.toMap("rx", out)
	s.tx.toMap("tx", out)
	out["faults.malformed"] = s.malformed.load()
	out["faults.out_of_order"] = s.outOfOrder.load()
	out["faults.foreign_table_full"] = s.foreignTableFull.load()
	out["servo.hard_steps"] = s.hardSteps.load()
	out["port.state"] = s.portState.Load()
	out["servo.offset_ns"] = s.offsetNs.Load()
	out["servo.path_delay_ns"] = s.pathDelayNs.Load()
	return out
}
