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

// HeaderLen is the fixed size in bytes of the common PTP header.
const HeaderLen = 34

// Header is the 34-byte common PTP message header (IEEE 1588-2008 §13.3).
// Field sizes and order match the wire layout exactly, so binary.Write and
// binary.Read can (de)serialize it directly without any field-by-field
// shuffling.
type Header struct {
	MsgTypeByte        uint8 // low nibble messageType, high nibble reserved
	VersionByte        uint8 // low nibble versionPTP (=2), high nibble reserved
	MessageLength      uint16
	DomainNumber       uint8
	_                  uint8 // reserved
	FlagField          uint16
	CorrectionField    int64
	_                  uint32 // reserved
	SourcePortIdentity PortIdentity
	SequenceID         uint16
	ControlField       uint8
	LogMessageInterval int8
}

// MessageType extracts the message type from the header's first byte.
func (h *Header) MessageType() MessageType {
	return MessageType(h.MsgTypeByte & 0x0f)
}

// SetMessageType sets the header's message type, leaving the reserved high
// nibble zero.
func (h *Header) SetMessageType(mt MessageType) {
	h.MsgTypeByte = uint8(mt) & 0x0f
}

// SetSequence sets the sequenceId field.
func (h *Header) SetSequence(seq uint16) {
	h.SequenceID = seq
}

// NewHeader returns a Header with versionPTP and message type populated;
// every other field is the caller's to fill in.
func NewHeader(mt MessageType, domain uint8) Header {
	h := Header{VersionByte: Version, DomainNumber: domain}
	h.SetMessageType(mt)
	return h
}

// flagField bits, Table 37 Values of flagField.
const (
	// first octet
	FlagAlternateMaster uint16 = 1 << (8 + 0)
	FlagTwoStep         uint16 = 1 << (8 + 1)
	FlagUnicast         uint16 = 1 << (8 + 2)
	// second octet
	FlagLeap61                uint16 = 1 << 0
	FlagLeap59                uint16 = 1 << 1
	FlagCurrentUtcOffsetValid uint16 = 1 << 2
	FlagPTPTimescale          uint16 = 1 << 3
	FlagTimeTraceable         uint16 = 1 << 4
	FlagFrequencyTraceable    uint16 = 1 << 5
)

// controlField values, Table 23. Kept for compatibility with v1 hardware;
// every message type not listed uses ControlOther.
const (
	ControlSync      uint8 = 0x00
	ControlDelayReq  uint8 = 0x01
	ControlFollowUp  uint8 = 0x02
	ControlDelayResp uint8 = 0x03
	ControlOther     uint8 = 0x05
)

// TwoStep reports whether the two-step flag is set.
func (h *Header) TwoStep() bool {
	return h.FlagField&FlagTwoStep != 0
}
