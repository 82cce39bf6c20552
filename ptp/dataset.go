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

// DefaultDS mirrors the standard's defaultDS (Table 8): this clock's own
// identity, quality and role configuration. Owned by the clock for its
// whole lifetime - no indirection needed.
type DefaultDS struct {
	TwoStepFlag   bool
	ClockIdentity ClockIdentity
	NumberPorts   uint16 // always 1 on this core
	ClockQuality  ClockQuality
	Priority1     uint8
	Priority2     uint8
	DomainNumber  uint8
	SlaveOnly     bool
}

// PortDS mirrors the standard's portDS (Table 9): this port's identity,
// current state and configured log intervals.
type PortDS struct {
	PortIdentity           PortIdentity
	PortState              PortState
	LogAnnounceInterval    int8
	LogSyncInterval        int8
	LogMinDelayReqInterval int8
	AnnounceReceiptTimeout uint8
	VersionNumber          uint8
}

// ParentDS mirrors the standard's parentDS (Table 10): the PortIdentity and
// dataset of whichever clock this port currently takes time from. Exactly
// one ParentDS is authoritative at a time, updated only on a BMC decision
// that changes role (M1 or S1).
type ParentDS struct {
	ParentPortIdentity      PortIdentity
	GrandmasterIdentity     ClockIdentity
	GrandmasterClockQuality ClockQuality
	GrandmasterPriority1    uint8
	GrandmasterPriority2    uint8
}

// IsZero reports whether the ParentDS has never been populated - the state
// before any master has been selected, during which any sender is accepted
// as a parent.
func (p ParentDS) IsZero() bool {
	return p == ParentDS{}
}

// TimePropertiesDS mirrors the standard's timePropertiesDS (Table 11):
// properties of the time scale distributed by the grandmaster, adopted from
// whichever Announce body wins BMC.
type TimePropertiesDS struct {
	CurrentUTCOffset      int16
	CurrentUTCOffsetValid bool
	Leap59                bool
	Leap61                bool
	TimeTraceable         bool
	FrequencyTraceable    bool
	PTPTimescale          bool
	TimeSource            TimeSource
}

// ForeignMasterRecord is one row of the foreign-master table: the most
// recent Announce received from a given sender.
type ForeignMasterRecord struct {
	SenderPortIdentity PortIdentity
	AnnounceHeader     Header
	AnnounceBody       AnnounceBody
}

// Empty reports whether this slot holds no record - portNumber 0 never
// appears as a real port number on the wire.
func (f ForeignMasterRecord) Empty() bool {
	return f.SenderPortIdentity.PortNumber == 0
}
