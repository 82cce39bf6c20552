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

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wire lengths of the messages this core exchanges: Announce=64,
// Sync/Follow_Up/Delay_Req=44, Delay_Resp=54.
const (
	LenSyncDelayReq = 44
	LenFollowUp     = 44
	LenDelayResp    = 54
	LenAnnounce     = 64
)

// AnnounceBody is the Announce message's body (Table 43).
type AnnounceBody struct {
	OriginTimestamp         Timestamp
	CurrentUTCOffset        int16
	_                       uint8 // reserved
	GrandmasterPriority1    uint8
	GrandmasterClockQuality ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     ClockIdentity
	StepsRemoved            uint16
	TimeSource              TimeSource
}

// Announce is a full Announce packet.
type Announce struct {
	Header
	AnnounceBody
}

// SyncDelayReqBody is the body shared by Sync and Delay_Req (Table 44): a
// single 10-byte origin timestamp. On a two-step clock the Sync carries an
// approximate T1 here and the Follow_Up carries the precise one.
type SyncDelayReqBody struct {
	OriginTimestamp Timestamp
}

// SyncDelayReq is a full Sync or Delay_Req packet; MessageType in the
// embedded Header tells them apart.
type SyncDelayReq struct {
	Header
	SyncDelayReqBody
}

// FollowUpBody is the Follow_Up message's body (Table 45).
type FollowUpBody struct {
	PreciseOriginTimestamp Timestamp
}

// FollowUp is a full Follow_Up packet.
type FollowUp struct {
	Header
	FollowUpBody
}

// DelayRespBody is the Delay_Resp message's body (Table 46).
type DelayRespBody struct {
	ReceiveTimestamp       Timestamp
	RequestingPortIdentity PortIdentity
}

// DelayResp is a full Delay_Resp packet.
type DelayResp struct {
	Header
	DelayRespBody
}

// Packet abstracts over the message types this core sends and receives.
type Packet interface {
	MessageType() MessageType
	SetSequence(uint16)
}

// Bytes serializes a Packet to its wire representation, big-endian.
func Bytes(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, p); err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", p.MessageType(), err)
	}
	return buf.Bytes(), nil
}

// FromBytes parses a wire payload into a Packet whose concrete type the
// caller has already picked based on MessageType.
func FromBytes(raw []byte, p Packet) error {
	return binary.Read(bytes.NewReader(raw), binary.BigEndian, p)
}

// ErrDrop is wrapped by DecodePacket and the message dispatchers for any
// input that must be silently dropped: truncated buffers, wrong version,
// wrong domain, or message types outside this core's scope (peer-delay,
// signaling, management).
var ErrDrop = fmt.Errorf("ptp: message dropped")

// PeekHeader reads just the common header from raw, for dispatch purposes,
// without committing to a concrete body type.
func PeekHeader(raw []byte) (Header, error) {
	var h Header
	if len(raw) < HeaderLen {
		return h, fmt.Errorf("%w: header truncated, got %d bytes", ErrDrop, len(raw))
	}
	if err := binary.Read(bytes.NewReader(raw[:HeaderLen]), binary.BigEndian, &h); err != nil {
		return h, fmt.Errorf("%w: %v", ErrDrop, err)
	}
	return h, nil
}

// DecodePacket decodes raw bytes into the concrete Packet type the header's
// MessageType calls for. Unknown or out-of-scope message types (PDelay*,
// Signaling, Management) return ErrDrop.
func DecodePacket(raw []byte) (Packet, error) {
	h, err := PeekHeader(raw)
	if err != nil {
		return nil, err
	}
	var minLen int
	var p Packet
	switch h.MessageType() {
	case MessageSync, MessageDelayReq:
		p, minLen = &SyncDelayReq{}, LenSyncDelayReq
	case MessageFollowUp:
		p, minLen = &FollowUp{}, LenFollowUp
	case MessageDelayResp:
		p, minLen = &DelayResp{}, LenDelayResp
	case MessageAnnounce:
		p, minLen = &Announce{}, LenAnnounce
	default:
		return nil, fmt.Errorf("%w: out-of-scope message type %s", ErrDrop, h.MessageType())
	}
	if len(raw) < minLen {
		return nil, fmt.Errorf("%w: %s truncated, got %d want %d bytes", ErrDrop, h.MessageType(), len(raw), minLen)
	}
	if err := FromBytes(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDrop, err)
	}
	return p, nil
}
