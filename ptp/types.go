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

// Package ptp implements the IEEE 1588-2008 (PTPv2) wire format and the
// ordinary-clock data model: the common header, the message bodies this
// core speaks (Announce, Sync, Delay_Req, Follow_Up, Delay_Resp), and the
// four PTP data sets.
package ptp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Version is the PTP protocol version this core implements.
const Version uint8 = 2

// UDP port numbers for PTP event and general messages.
const (
	PortEvent   = 319
	PortGeneral = 320
)

// MessageType is the low nibble of the first header byte.
type MessageType uint8

// Message types this core recognizes. Peer-delay, signaling and management
// messages exist on the wire but are out of scope; DecodePacket drops them.
const (
	MessageSync       MessageType = 0x0
	MessageDelayReq   MessageType = 0x1
	MessagePDelayReq  MessageType = 0x2
	MessagePDelayResp MessageType = 0x3
	MessageFollowUp   MessageType = 0x8
	MessageDelayResp  MessageType = 0x9
	MessageAnnounce   MessageType = 0xB
	MessageSignaling  MessageType = 0xC
	MessageManagement MessageType = 0xD
)

var messageTypeToString = map[MessageType]string{
	MessageSync:       "SYNC",
	MessageDelayReq:   "DELAY_REQ",
	MessagePDelayReq:  "PDELAY_REQ",
	MessagePDelayResp: "PDELAY_RESP",
	MessageFollowUp:   "FOLLOW_UP",
	MessageDelayResp:  "DELAY_RESP",
	MessageAnnounce:   "ANNOUNCE",
	MessageSignaling:  "SIGNALING",
	MessageManagement: "MANAGEMENT",
}

func (m MessageType) String() string {
	if s, ok := messageTypeToString[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// ClockIdentity is the EUI-64 that names a PTP instance.
type ClockIdentity uint64

// String formats a ClockIdentity the way ptp4l's pmc client does.
func (c ClockIdentity) String() string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(c))
	return fmt.Sprintf("%02x%02x%02x.%02x%02x.%02x%02x%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}

// NewClockIdentity derives an EUI-64 ClockIdentity from a 48-bit MAC address
// by inserting FF FE between byte 3 and byte 4.
func NewClockIdentity(mac net.HardwareAddr) (ClockIdentity, error) {
	if len(mac) != 6 {
		return 0, fmt.Errorf("NewClockIdentity: need a 6-byte MAC, got %d bytes", len(mac))
	}
	var b [8]byte
	b[0], b[1], b[2] = mac[0], mac[1], mac[2]
	b[3], b[4] = 0xFF, 0xFE
	b[5], b[6], b[7] = mac[3], mac[4], mac[5]
	return ClockIdentity(binary.BigEndian.Uint64(b[:])), nil
}

// PortIdentity names a PTP port: the owning clock's identity plus a port
// number. Equality is memberwise.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

func (p PortIdentity) String() string {
	return fmt.Sprintf("%s-%d", p.ClockIdentity, p.PortNumber)
}

// Compare returns -1, 0 or 1 comparing p and q, clock identity first.
func (p PortIdentity) Compare(q PortIdentity) int {
	switch {
	case p.ClockIdentity < q.ClockIdentity:
		return -1
	case p.ClockIdentity > q.ClockIdentity:
		return 1
	}
	switch {
	case p.PortNumber < q.PortNumber:
		return -1
	case p.PortNumber > q.PortNumber:
		return 1
	}
	return 0
}

// ClockClass indicates the traceability and accuracy class of the clock.
type ClockClass uint8

// Well known clock classes (RFC 8173 §7.6.2.4 values reused by profiles).
const (
	ClockClassMasterCapable ClockClass = 248
	ClockClassSlaveOnly     ClockClass = 255
)

// ClockAccuracy is an enumerated estimate of clock accuracy.
type ClockAccuracy uint8

// ClockAccuracyUnknown is used when no better estimate is available.
const ClockAccuracyUnknown ClockAccuracy = 0xFE

// ClockQuality is lexicographically ordered (class, accuracy, variance),
// lower is better.
type ClockQuality struct {
	ClockClass              ClockClass
	ClockAccuracy           ClockAccuracy
	OffsetScaledLogVariance uint16
}

// TimeSource indicates where the grandmaster gets its time from.
type TimeSource uint8

// TimeSource values (Table 6 timeSource enumeration).
const (
	TimeSourceAtomicClock        TimeSource = 0x10
	TimeSourceGNSS               TimeSource = 0x20
	TimeSourceTerrestrialRadio   TimeSource = 0x30
	TimeSourcePTP                TimeSource = 0x40
	TimeSourceNTP                TimeSource = 0x50
	TimeSourceHandSet            TimeSource = 0x60
	TimeSourceOther              TimeSource = 0x90
	TimeSourceInternalOscillator TimeSource = 0xA0
)

// PortState enumerates the port state machine's states (Table 20 PTP state
// enumeration, less the non-standard GRAND_MASTER extension).
type PortState uint8

// Port states.
const (
	PortStateInitializing PortState = iota + 1
	PortStateFaulty
	PortStateDisabled
	PortStateListening
	PortStatePreMaster
	PortStateMaster
	PortStatePassive
	PortStateUncalibrated
	PortStateSlave
)

var portStateToString = map[PortState]string{
	PortStateInitializing: "INITIALIZING",
	PortStateFaulty:       "FAULTY",
	PortStateDisabled:     "DISABLED",
	PortStateListening:    "LISTENING",
	PortStatePreMaster:    "PRE_MASTER",
	PortStateMaster:       "MASTER",
	PortStatePassive:      "PASSIVE",
	PortStateUncalibrated: "UNCALIBRATED",
	PortStateSlave:        "SLAVE",
}

func (ps PortState) String() string {
	if s, ok := portStateToString[ps]; ok {
		return s
	}
	return "UNKNOWN"
}
