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

package stats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/ptpd-oc/ptp"
)

func TestTrafficCounters(t *testing.T) {
	s := NewStats()
	s.IncRX(ptp.MessageSync)
	s.IncRX(ptp.MessageSync)
	s.IncRX(ptp.MessageAnnounce)
	s.IncTX(ptp.MessageDelayReq)

	m := s.ToMap()
	require.Equal(t, int64(2), m["rx.SYNC"])
	require.Equal(t, int64(1), m["rx.ANNOUNCE"])
	require.Equal(t, int64(1), m["tx.DELAY_REQ"])
	// never-seen message types don't clutter the map
	require.NotContains(t, m, "rx.DELAY_RESP")
}

func TestFaultCounters(t *testing.T) {
	s := NewStats()
	s.IncMalformed()
	s.IncMalformed()
	s.IncOutOfOrder()
	s.IncForeignTableFull()
	s.IncHardStep()

	require.Equal(t, int64(2), s.Malformed())
	require.Equal(t, int64(1), s.OutOfOrder())
	require.Equal(t, int64(1), s.ForeignTableFull())
	require.Equal(t, int64(1), s.HardSteps())

	m := s.ToMap()
	require.Equal(t, int64(2), m["faults.malformed"])
	require.Equal(t, int64(1), m["faults.out_of_order"])
	require.Equal(t, int64(1), m["faults.foreign_table_full"])
	require.Equal(t, int64(1), m["servo.hard_steps"])
}

func TestGauges(t *testing.T) {
	s := NewStats()
	s.SetPortState(ptp.PortStateSlave)
	s.SetOffsetNs(-125)
	s.SetPathDelayNs(340)

	m := s.ToMap()
	require.Equal(t, int64(ptp.PortStateSlave), m["port.state"])
	require.Equal(t, int64(-125), m["servo.offset_ns"])
	require.Equal(t, int64(340), m["servo.path_delay_ns"])
}

func TestResetClearsCountersKeepsGauges(t *testing.T) {
	s := NewStats()
	s.IncRX(ptp.MessageSync)
	s.IncTX(ptp.MessageAnnounce)
	s.IncMalformed()
	s.IncHardStep()
	s.SetPortState(ptp.PortStateMaster)
	s.SetOffsetNs(42)

	s.Reset()

	m := s.ToMap()
	require.NotContains(t, m, "rx.SYNC")
	require.NotContains(t, m, "tx.ANNOUNCE")
	require.Equal(t, int64(0), m["faults.malformed"])
	require.Equal(t, int64(0), m["servo.hard_steps"])
	require.Equal(t, int64(ptp.PortStateMaster), m["port.state"])
	require.Equal(t, int64(42), m["servo.offset_ns"])
}
