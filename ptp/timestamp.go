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

package ptp

import "fmt"

// PTPSeconds is the 48-bit big-endian seconds field used by wire
// Timestamps: 2-byte MSB followed by 4-byte LSB, as laid out on the wire.
type PTPSeconds [6]uint8

// Seconds returns the 48-bit value as a uint64.
func (s PTPSeconds) Seconds() uint64 {
	return uint64(s[5]) | uint64(s[4])<<8 | uint64(s[3])<<16 |
		uint64(s[2])<<24 | uint64(s[1])<<32 | uint64(s[0])<<40
}

// NewPTPSeconds packs a uint64 second count into the 48-bit wire field.
func NewPTPSeconds(v uint64) PTPSeconds {
	var s PTPSeconds
	s[0] = byte(v >> 40)
	s[1] = byte(v >> 32)
	s[2] = byte(v >> 24)
	s[3] = byte(v >> 16)
	s[4] = byte(v >> 8)
	s[5] = byte(v)
	return s
}

// Timestamp is the 10-byte wire timestamp: 48-bit seconds plus 32-bit
// nanoseconds, both big-endian. Nanoseconds is always < 1e9.
type Timestamp struct {
	Seconds     PTPSeconds
	Nanoseconds uint32
}

// NewTimestampFromInternal converts a TimeInternal to its wire form. A
// negative TimeInternal cannot be represented and is clamped to zero: the
// wire format has no sign bit, matching IEEE 1588-2008 timestamps, which are
// always positive durations since the epoch.
func NewTimestampFromInternal(t TimeInternal) Timestamp {
	if t.Seconds < 0 {
		return Timestamp{}
	}
	return Timestamp{
		Seconds:     NewPTPSeconds(uint64(t.Seconds)),
		Nanoseconds: uint32(t.Nanoseconds),
	}
}

// Internal converts a wire Timestamp to a TimeInternal.
func (t Timestamp) Internal() TimeInternal {
	return TimeInternal{Seconds: int64(t.Seconds.Seconds()), Nanoseconds: int32(t.Nanoseconds)}
}

func (t Timestamp) String() string {
	return fmt.Sprintf("Timestamp(%d.%09d)", t.Seconds.Seconds(), t.Nanoseconds)
}

// TimeInternal is the in-memory signed-seconds / signed-nanoseconds pair
// used everywhere the core does time arithmetic. Normalized values satisfy
// 0 <= Nanoseconds < 1e9; Seconds carries the sign.
type TimeInternal struct {
	Seconds     int64
	Nanoseconds int32
}

const nsPerSecond = int32(1e9)

// Normalize folds an out-of-range Nanoseconds back into [0, 1e9) by
// borrowing from or carrying into Seconds.
func (t TimeInternal) Normalize() TimeInternal {
	for t.Nanoseconds < 0 {
		t.Nanoseconds += nsPerSecond
		t.Seconds--
	}
	for t.Nanoseconds >= nsPerSecond {
		t.Nanoseconds -= nsPerSecond
		t.Seconds++
	}
	return t
}

// Add returns t + o, normalized.
func (t TimeInternal) Add(o TimeInternal) TimeInternal {
	return TimeInternal{Seconds: t.Seconds + o.Seconds, Nanoseconds: t.Nanoseconds + o.Nanoseconds}.Normalize()
}

// Sub returns t - o, normalized.
func (t TimeInternal) Sub(o TimeInternal) TimeInternal {
	return TimeInternal{Seconds: t.Seconds - o.Seconds, Nanoseconds: t.Nanoseconds - o.Nanoseconds}.Normalize()
}

// Div2 returns t / 2, normalized. Used for mean path delay.
func (t TimeInternal) Div2() TimeInternal {
	totalNs := t.Seconds*int64(nsPerSecond) + int64(t.Nanoseconds)
	totalNs /= 2
	return TimeInternal{Seconds: totalNs / int64(nsPerSecond), Nanoseconds: int32(totalNs % int64(nsPerSecond))}.Normalize()
}

// Negate returns -t, normalized.
func (t TimeInternal) Negate() TimeInternal {
	return TimeInternal{Seconds: -t.Seconds, Nanoseconds: -t.Nanoseconds}.Normalize()
}

// IsZero reports whether t is the zero TimeInternal.
func (t TimeInternal) IsZero() bool {
	return t.Seconds == 0 && t.Nanoseconds == 0
}

func (t TimeInternal) String() string {
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanoseconds)
}
