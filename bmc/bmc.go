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

// Package bmc implements the Best Master Clock algorithm: the
// foreign-master table, the dataset comparison of Figure 27, and the
// recommended-state decision.
package bmc

import (
	"github.com/facebookincubator/ptpd-oc/ptp"
)

// Table is the fixed-capacity foreign-master table (default 5 entries). An
// empty slot is marked by SenderPortIdentity.PortNumber == 0. Rows are never
// evicted except by overwrite of an existing sender's row.
type Table struct {
	records [5]ptp.ForeignMasterRecord
}

// NewTable returns an empty foreign-master table.
func NewTable() *Table {
	return &Table{}
}

// Update records a newly received Announce. If the sender already has a
// row, it is overwritten in place. Otherwise the first empty slot is used.
// If the table is full and the sender is new, the update is dropped and
// Update returns false so the caller can count the loss.
func (t *Table) Update(sender ptp.PortIdentity, header ptp.Header, body ptp.AnnounceBody) bool {
	rec := ptp.ForeignMasterRecord{SenderPortIdentity: sender, AnnounceHeader: header, AnnounceBody: body}
	for i := range t.records {
		if !t.records[i].Empty() && t.records[i].SenderPortIdentity == sender {
			t.records[i] = rec
			return true
		}
	}
	for i := range t.records {
		if t.records[i].Empty() {
			t.records[i] = rec
			return true
		}
	}
	return false
}

// Records returns the non-empty rows of the table.
func (t *Table) Records() []ptp.ForeignMasterRecord {
	out := make([]ptp.ForeignMasterRecord, 0, len(t.records))
	for _, r := range t.records {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

// Best returns the table's highest-ranked foreign record under Compare,
// breaking ties against the given local identity, and whether any record
// exists at all.
func (t *Table) Best(local ptp.ClockIdentity) (ptp.ForeignMasterRecord, bool) {
	var best ptp.ForeignMasterRecord
	found := false
	for _, r := range t.records {
		if r.Empty() {
			continue
		}
		if !found || Compare(r, best, local) > 0 {
			best = r
			found = true
		}
	}
	return best, found
}

func lowerWins(a, b uint64) int {
	switch {
	case a < b:
		return 1
	case a > b:
		return -1
	default:
		return 0
	}
}

// Compare returns >0 if a is better than b, <0 if b is better, 0 if they
// cannot be told apart. Implements the Figure 27 cascade: priority1, clock
// class, clock accuracy, offset-scaled log variance, priority2, grandmaster
// identity, then a stepsRemoved topology tiebreak and finally sender
// PortIdentity.
func Compare(a, b ptp.ForeignMasterRecord, local ptp.ClockIdentity) int {
	if d := lowerWins(uint64(a.AnnounceBody.GrandmasterPriority1), uint64(b.AnnounceBody.GrandmasterPriority1)); d != 0 {
		return d
	}
	if d := lowerWins(uint64(a.AnnounceBody.GrandmasterClockQuality.ClockClass), uint64(b.AnnounceBody.GrandmasterClockQuality.ClockClass)); d != 0 {
		return d
	}
	if d := lowerWins(uint64(a.AnnounceBody.GrandmasterClockQuality.ClockAccuracy), uint64(b.AnnounceBody.GrandmasterClockQuality.ClockAccuracy)); d != 0 {
		return d
	}
	if d := lowerWins(uint64(a.AnnounceBody.GrandmasterClockQuality.OffsetScaledLogVariance), uint64(b.AnnounceBody.GrandmasterClockQuality.OffsetScaledLogVariance)); d != 0 {
		return d
	}
	if d := lowerWins(uint64(a.AnnounceBody.GrandmasterPriority2), uint64(b.AnnounceBody.GrandmasterPriority2)); d != 0 {
		return d
	}
	if d := lowerWins(uint64(a.AnnounceBody.GrandmasterIdentity), uint64(b.AnnounceBody.GrandmasterIdentity)); d != 0 {
		return d
	}

	// Topology tiebreak by stepsRemoved.
	as, bs := int(a.AnnounceBody.StepsRemoved), int(b.AnnounceBody.StepsRemoved)
	diff := as - bs
	switch {
	case diff > 1:
		return -1
	case diff < -1:
		return 1
	case diff == 1:
		// b has one fewer step and would normally win, unless it is
		// our own clock reflected back to us.
		if b.SenderPortIdentity.ClockIdentity == local {
			return 1
		}
		return -1
	case diff == -1:
		if a.SenderPortIdentity.ClockIdentity == local {
			return -1
		}
		return 1
	}

	// Equal stepsRemoved: smaller sender PortIdentity wins.
	return -a.SenderPortIdentity.Compare(b.SenderPortIdentity)
}

// localCandidate builds the pseudo-Announce record for this clock's own
// DefaultDS, steps_removed = 0, used to compare against the best foreign
// record.
func localCandidate(defaultDS ptp.DefaultDS) ptp.ForeignMasterRecord {
	return ptp.ForeignMasterRecord{
		SenderPortIdentity: ptp.PortIdentity{ClockIdentity: defaultDS.ClockIdentity, PortNumber: 1},
		AnnounceBody: ptp.AnnounceBody{
			GrandmasterPriority1:    defaultDS.Priority1,
			GrandmasterClockQuality: defaultDS.ClockQuality,
			GrandmasterPriority2:    defaultDS.Priority2,
			GrandmasterIdentity:     defaultDS.ClockIdentity,
			StepsRemoved:            0,
		},
	}
}

// Decide runs the state-decision step: it compares the local clock
// to the table's best foreign record and returns the recommended port
// state plus the ParentDS/TimePropertiesDS that go with it.
func Decide(defaultDS ptp.DefaultDS, table *Table) (ptp.PortState, ptp.ParentDS, ptp.TimePropertiesDS) {
	best, ok := table.Best(defaultDS.ClockIdentity)
	if !ok {
		if defaultDS.SlaveOnly {
			return ptp.PortStateListening, ptp.ParentDS{}, ptp.TimePropertiesDS{}
		}
		return ptp.PortStateMaster, masterParentDS(defaultDS), masterTimeProperties()
	}

	local := localCandidate(defaultDS)
	if Compare(local, best, defaultDS.ClockIdentity) > 0 && !defaultDS.SlaveOnly {
		return ptp.PortStateMaster, masterParentDS(defaultDS), masterTimeProperties()
	}
	return ptp.PortStateSlave, slaveParentDS(best), slaveTimeProperties(best)
}

// masterParentDS fills ParentDS with our own identity and quality (M1).
func masterParentDS(defaultDS ptp.DefaultDS) ptp.ParentDS {
	return ptp.ParentDS{
		ParentPortIdentity:      ptp.PortIdentity{ClockIdentity: defaultDS.ClockIdentity, PortNumber: 1},
		GrandmasterIdentity:     defaultDS.ClockIdentity,
		GrandmasterClockQuality: defaultDS.ClockQuality,
		GrandmasterPriority1:    defaultDS.Priority1,
		GrandmasterPriority2:    defaultDS.Priority2,
	}
}

// masterTimeProperties flags time-traceable with an internal oscillator,
// the source for a clock that has elected itself grandmaster.
func masterTimeProperties() ptp.TimePropertiesDS {
	return ptp.TimePropertiesDS{
		TimeTraceable: true,
		PTPTimescale:  true,
		TimeSource:    ptp.TimeSourceInternalOscillator,
	}
}

// slaveParentDS adopts the winning record's identity and quality (S1).
func slaveParentDS(best ptp.ForeignMasterRecord) ptp.ParentDS {
	return ptp.ParentDS{
		ParentPortIdentity:      best.SenderPortIdentity,
		GrandmasterIdentity:     best.AnnounceBody.GrandmasterIdentity,
		GrandmasterClockQuality: best.AnnounceBody.GrandmasterClockQuality,
		GrandmasterPriority1:    best.AnnounceBody.GrandmasterPriority1,
		GrandmasterPriority2:    best.AnnounceBody.GrandmasterPriority2,
	}
}

// slaveTimeProperties adopts currentUtcOffset, timeSource and the
// flag bits carried in the winning Announce's header.
func slaveTimeProperties(best ptp.ForeignMasterRecord) ptp.TimePropertiesDS {
	flags := best.AnnounceHeader.FlagField
	return ptp.TimePropertiesDS{
		CurrentUTCOffset:      best.AnnounceBody.CurrentUTCOffset,
		CurrentUTCOffsetValid: flags&ptp.FlagCurrentUtcOffsetValid != 0,
		Leap59:                flags&ptp.FlagLeap59 != 0,
		Leap61:                flags&ptp.FlagLeap61 != 0,
		TimeTraceable:         flags&ptp.FlagTimeTraceable != 0,
		FrequencyTraceable:    flags&ptp.FlagFrequencyTraceable != 0,
		PTPTimescale:          flags&ptp.FlagPTPTimescale != 0,
		TimeSource:            best.AnnounceBody.TimeSource,
	}
}
