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

// Package transport binds the two PTP UDP sockets, joins the PTP multicast
// groups and moves packets between the wire and the protocol engine. It
// knows nothing about PTP message contents: payload bytes go out as given
// and come in as received, the codec upstairs does the rest.
package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/facebookincubator/ptpd-oc/ptp"
)

// PTP multicast groups: the primary group all non-peer-delay messages use,
// and the peer group, joined for completeness but unused by this core.
var (
	PrimaryMulticastIP = net.IPv4(224, 0, 1, 129)
	PeerMulticastIP    = net.IPv4(224, 0, 0, 107)
)

// Packet is one received UDP payload, tagged with the port it arrived on.
type Packet struct {
	Data  []byte
	Event bool // true if received on the event port (319)
}

// Conn is the pair of PTP sockets: event (319) and general (320), both
// joined to the primary multicast group on one interface.
type Conn struct {
	eventConn   *net.UDPConn
	generalConn *net.UDPConn
	eventDst    *net.UDPAddr
	generalDst  *net.UDPAddr

	rx chan *Packet
}

// reusePort marks the socket SO_REUSEADDR before bind, so a restarting
// daemon does not trip over the previous instance's lingering socket.
func reusePort(_, _ string, c syscall.RawConn) error {
	var soerr error
	if err := c.Control(func(fd uintptr) {
		soerr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return soerr
}

func bindAndJoin(iface *net.Interface, port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reusePort}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("binding PTP port %d: %w", port, err)
	}
	conn := pc.(*net.UDPConn)
	p := ipv4.NewPacketConn(conn)
	for _, group := range []net.IP{PrimaryMulticastIP, PeerMulticastIP} {
		if err := p.JoinGroup(iface, &net.UDPAddr{IP: group}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("joining %s on %s: %w", group, iface.Name, err)
		}
	}
	if err := p.SetMulticastInterface(iface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting multicast interface %s: %w", iface.Name, err)
	}
	// without this we would receive our own multicast transmissions back
	if err := p.SetMulticastLoopback(false); err != nil {
		log.Warningf("disabling multicast loopback on port %d: %v", port, err)
	}
	return conn, nil
}

// Listen binds the event and general ports on the named interface and joins
// both multicast groups. On error no socket is left open; cmd/ptpd treats
// the error as fatal and exits before any port exists, so no port is moved
// to FAULTY.
func Listen(ifaceName string) (*Conn, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %q: %w", ifaceName, err)
	}
	eventConn, err := bindAndJoin(iface, ptp.PortEvent)
	if err != nil {
		return nil, err
	}
	generalConn, err := bindAndJoin(iface, ptp.PortGeneral)
	if err != nil {
		eventConn.Close()
		return nil, err
	}
	log.Infof("listening on %s, joined %s and %s", ifaceName, PrimaryMulticastIP, PeerMulticastIP)
	return newConn(eventConn, generalConn,
		&net.UDPAddr{IP: PrimaryMulticastIP, Port: ptp.PortEvent},
		&net.UDPAddr{IP: PrimaryMulticastIP, Port: ptp.PortGeneral},
	), nil
}

// newConn assembles a Conn from already-bound sockets and explicit
// destinations. Split out from Listen so tests can run over loopback.
func newConn(eventConn, generalConn *net.UDPConn, eventDst, generalDst *net.UDPAddr) *Conn {
	return &Conn{
		eventConn:   eventConn,
		generalConn: generalConn,
		eventDst:    eventDst,
		generalDst:  generalDst,
		rx:          make(chan *Packet, 16),
	}
}

// SendEvent sends payload bytes to the primary multicast group's event port.
func (c *Conn) SendEvent(b []byte) error {
	if _, err := c.eventConn.WriteTo(b, c.eventDst); err != nil {
		return fmt.Errorf("sending to %v: %w", c.eventDst, err)
	}
	log.Debugf("sent packet via port %d to %v", ptp.PortEvent, c.eventDst)
	return nil
}

// SendGeneral sends payload bytes to the primary multicast group's general
// port.
func (c *Conn) SendGeneral(b []byte) error {
	if _, err := c.generalConn.WriteTo(b, c.generalDst); err != nil {
		return fmt.Errorf("sending to %v: %w", c.generalDst, err)
	}
	log.Debugf("sent packet via port %d to %v", ptp.PortGeneral, c.generalDst)
	return nil
}

// RX is the channel of received packets. The super-loop drains it and hands
// each payload to the protocol engine's dispatch; the receive timestamp T2
// is taken there, at dispatch time, not here.
func (c *Conn) RX() <-chan *Packet {
	return c.rx
}

func (c *Conn) readLoop(conn *net.UDPConn, port int, event bool) {
	for {
		buf := make([]byte, 1024)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.Debugf("receiver on port %d closed: %v", port, err)
			return
		}
		log.Debugf("got packet on port %d, n = %v, addr = %v", port, n, addr)
		c.rx <- &Packet{Data: buf[:n], Event: event}
	}
}

// Serve starts the two receiver goroutines. They run until Close.
func (c *Conn) Serve() {
	go c.readLoop(c.eventConn, ptp.PortEvent, true)
	go c.readLoop(c.generalConn, ptp.PortGeneral, false)
}

// Close closes both sockets, stopping the receivers.
func (c *Conn) Close() {
	if c.eventConn != nil {
		c.eventConn.Close()
	}
	if c.generalConn != nil {
		c.generalConn.Close()
	}
}
