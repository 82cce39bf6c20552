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

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// loopbackConn builds a Conn from two ephemeral loopback sockets, each
// addressed to itself, so whatever we send comes straight back on RX.
func loopbackConn(t *testing.T) *Conn {
	t.Helper()
	eventConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	generalConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	c := newConn(eventConn, generalConn,
		eventConn.LocalAddr().(*net.UDPAddr),
		generalConn.LocalAddr().(*net.UDPAddr),
	)
	t.Cleanup(c.Close)
	return c
}

func receive(t *testing.T, c *Conn) *Packet {
	t.Helper()
	select {
	case pkt := <-c.RX():
		return pkt
	case <-time.After(time.Second):
		t.Fatal("no packet received within a second")
		return nil
	}
}

func TestEventRoundTrip(t *testing.T) {
	c := loopbackConn(t)
	c.Serve()

	payload := []byte{0x00, 0x02, 0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, c.SendEvent(payload))

	pkt := receive(t, c)
	require.True(t, pkt.Event)
	require.Equal(t, payload, pkt.Data)
}

func TestGeneralRoundTrip(t *testing.T) {
	c := loopbackConn(t)
	c.Serve()

	payload := []byte{0x0b, 0x02, 0x01, 0x02, 0x03}
	require.NoError(t, c.SendGeneral(payload))

	pkt := receive(t, c)
	require.False(t, pkt.Event)
	require.Equal(t, payload, pkt.Data)
}

func TestPayloadIsOpaque(t *testing.T) {
	// the transport must not touch payload bytes, valid PTP or not
	c := loopbackConn(t)
	c.Serve()

	garbage := make([]byte, 300)
	for i := range garbage {
		garbage[i] = byte(i)
	}
	require.NoError(t, c.SendEvent(garbage))

	pkt := receive(t, c)
	require.Equal(t, garbage, pkt.Data)
}

func TestSendAfterCloseFails(t *testing.T) {
	c := loopbackConn(t)
	c.Close()
	require.Error(t, c.SendEvent([]byte{0x00}))
	require.Error(t, c.SendGeneral([]byte{0x0b}))
}

func TestCloseStopsReceivers(t *testing.T) {
	c := loopbackConn(t)
	c.Serve()

	require.NoError(t, c.SendEvent([]byte{0x00, 0x02}))
	receive(t, c)

	c.Close()

	select {
	case pkt, ok := <-c.RX():
		if ok {
			t.Fatalf("unexpected packet after close: %v", pkt)
		}
	case <-time.After(50 * time.Millisecond):
		// nothing arrived, receivers are gone
	}
}
