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

package bmc

import (
	"testing"

	"github.com/facebookincubator/ptpd-oc/ptp"
	"github.com/stretchr/testify/require"
)

func record(identity ptp.ClockIdentity, prio1 uint8) ptp.ForeignMasterRecord {
	return ptp.ForeignMasterRecord{
		SenderPortIdentity: ptp.PortIdentity{ClockIdentity: identity, PortNumber: 1},
		AnnounceBody: ptp.AnnounceBody{
			GrandmasterPriority1:    prio1,
			GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 248, ClockAccuracy: 0x21, OffsetScaledLogVariance: 0x4e5d},
			GrandmasterPriority2:    128,
			GrandmasterIdentity:     identity,
			StepsRemoved:            0,
		},
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	a := record(1, 128)
	b := record(2, 128)
	require.Equal(t, Compare(a, b, 0), -Compare(b, a, 0))
	require.Greater(t, Compare(a, b, 0), 0) // lower identity wins when everything else ties
}

func TestComparePriority1Dominates(t *testing.T) {
	a := record(2, 100)
	b := record(1, 200)
	require.Greater(t, Compare(a, b, 0), 0)
}

func TestTableUpdateOverwritesSameSender(t *testing.T) {
	tbl := NewTable()
	sender := ptp.PortIdentity{ClockIdentity: 1, PortNumber: 1}
	require.True(t, tbl.Update(sender, ptp.Header{}, ptp.AnnounceBody{GrandmasterPriority1: 200}))
	require.True(t, tbl.Update(sender, ptp.Header{}, ptp.AnnounceBody{GrandmasterPriority1: 100}))
	require.Len(t, tbl.Records(), 1)
	require.EqualValues(t, 100, tbl.Records()[0].AnnounceBody.GrandmasterPriority1)
}

func TestTableFullDropsNewSender(t *testing.T) {
	tbl := NewTable()
	for i := uint16(1); i <= 5; i++ {
		require.True(t, tbl.Update(ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(i), PortNumber: 1}, ptp.Header{}, ptp.AnnounceBody{}))
	}
	ok := tbl.Update(ptp.PortIdentity{ClockIdentity: 6, PortNumber: 1}, ptp.Header{}, ptp.AnnounceBody{})
	require.False(t, ok)
	require.Len(t, tbl.Records(), 5)
}

func TestDecideListeningWhenSlaveOnlyAndNoMaster(t *testing.T) {
	ds := ptp.DefaultDS{ClockIdentity: 1, SlaveOnly: true, Priority1: 255}
	state, _, _ := Decide(ds, NewTable())
	require.Equal(t, ptp.PortStateListening, state)
}

func TestDecideMasterWhenNoCompetitorAndMasterCapable(t *testing.T) {
	ds := ptp.DefaultDS{ClockIdentity: 1, SlaveOnly: false, Priority1: 128, ClockQuality: ptp.ClockQuality{ClockClass: 248}}
	state, parent, _ := Decide(ds, NewTable())
	require.Equal(t, ptp.PortStateMaster, state)
	require.Equal(t, ptp.ClockIdentity(1), parent.GrandmasterIdentity)
}

func TestDecideSlaveWhenBetterMasterPresent(t *testing.T) {
	ds := ptp.DefaultDS{ClockIdentity: 1, SlaveOnly: false, Priority1: 255, ClockQuality: ptp.ClockQuality{ClockClass: 248}}
	tbl := NewTable()
	tbl.Update(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, ptp.Header{}, ptp.AnnounceBody{
		GrandmasterPriority1: 128, GrandmasterClockQuality: ptp.ClockQuality{ClockClass: 248}, GrandmasterIdentity: 2,
	})
	state, parent, _ := Decide(ds, tbl)
	require.Equal(t, ptp.PortStateSlave, state)
	require.Equal(t, ptp.ClockIdentity(2), parent.GrandmasterIdentity)
}

func TestDecideSlaveOnlyNeverReturnsMaster(t *testing.T) {
	ds := ptp.DefaultDS{ClockIdentity: 1, SlaveOnly: true, Priority1: 255}
	tbl := NewTable()
	tbl.Update(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, ptp.Header{}, ptp.AnnounceBody{
		GrandmasterPriority1: 254, GrandmasterIdentity: 2,
	})
	state, _, _ := Decide(ds, tbl)
	require.Equal(t, ptp.PortStateSlave, state)
}
