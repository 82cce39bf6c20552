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

// Package port implements the protocol engine: the per-port state machine
// with its entry/exit actions, the timer-driven message issuance, the
// inbound message handlers and the servo integration. It is the component
// everything else in this module exists to serve.
package port

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/ptpd-oc/bmc"
	"github.com/facebookincubator/ptpd-oc/clock"
	"github.com/facebookincubator/ptpd-oc/ptp"
	"github.com/facebookincubator/ptpd-oc/servo"
	"github.com/facebookincubator/ptpd-oc/stats"
	"github.com/facebookincubator/ptpd-oc/timer"
)

// Sender is what the protocol engine needs from the transport: a way to
// put event and general payloads on the wire.
type Sender interface {
	SendEvent(b []byte) error
	SendGeneral(b []byte) error
}

// Config carries the port's startup options. Zero values for TickHz and
// AnnounceReceiptTimeout are replaced with the defaults (10 Hz, 3).
type Config struct {
	// MAC is the hardware address the clock identity is derived from.
	MAC net.HardwareAddr
	// SlaveOnly, if true, makes the BMC never decide MASTER.
	SlaveOnly bool

	Priority1    uint8
	Priority2    uint8
	DomainNumber uint8
	ClockQuality ptp.ClockQuality

	// log2 seconds message intervals
	LogAnnounceInterval    int8
	LogSyncInterval        int8
	LogMinDelayReqInterval int8
	// AnnounceReceiptTimeout is the number of announce intervals without an
	// Announce before the port gives up on its master.
	AnnounceReceiptTimeout uint8

	// TwoStep selects two-step operation: Sync carries an approximate T1
	// and a Follow_Up carries the precise one.
	TwoStep bool

	// TickHz is the protocol tick rate driving the timer wheel.
	TickHz int64
}

// decision is a BMC recommendation waiting to be applied on the next tick.
type decision struct {
	state          ptp.PortState
	parentDS       ptp.ParentDS
	timeProperties ptp.TimePropertiesDS
}

// Port is a single PTP ordinary-clock port. All methods must be called
// from one goroutine: the core is single-threaded cooperative, driven by
// the super-loop that pumps received packets and the periodic tick.
type Port struct {
	cfg Config
	clk clock.Clock
	snd Sender
	st  *stats.Stats

	srv     *servo.PiServo
	foreign *bmc.Table

	defaultDS        ptp.DefaultDS
	portDS           ptp.PortDS
	parentDS         ptp.ParentDS
	timePropertiesDS ptp.TimePropertiesDS

	// pending is the BMC recommendation not yet applied; applied and
	// cleared on the next Tick.
	pending *decision

	wheel                *timer.Wheel
	announceTimer        *timer.Timer
	syncTimer            *timer.Timer
	delayReqTimer        *timer.Timer
	announceReceiptTimer *timer.Timer

	announceSeq uint16
	syncSeq     uint16
	delayReqSeq uint16

	// t2 is the ingress timestamp of the last accepted Sync, t3 the egress
	// timestamp of the last sent Delay_Req.
	t2 ptp.TimeInternal
	t3 ptp.TimeInternal
}

// uncalibratedOffsetThresholdNs is the |offset| below which an
// UNCALIBRATED port is considered locked and promoted to SLAVE.
const uncalibratedOffsetThresholdNs = 1000

// NewPort initializes the port: datasets from config, fresh servo and
// foreign-master table, all timers registered and inactive. The port comes
// up in INITIALIZING and immediately transitions to LISTENING, the only
// exit INITIALIZING has.
func NewPort(cfg Config, clk clock.Clock, snd Sender, st *stats.Stats) (*Port, error) {
	cid, err := ptp.NewClockIdentity(cfg.MAC)
	if err != nil {
		return nil, err
	}
	if cfg.TickHz == 0 {
		cfg.TickHz = 10
	}
	if cfg.AnnounceReceiptTimeout == 0 {
		cfg.AnnounceReceiptTimeout = 3
	}
	if st == nil {
		st = stats.NewStats()
	}

	p := &Port{
		cfg:     cfg,
		clk:     clk,
		snd:     snd,
		st:      st,
		srv:     servo.NewPiServo(),
		foreign: bmc.NewTable(),
		wheel:   timer.NewWheel(),
	}
	p.defaultDS = ptp.DefaultDS{
		TwoStepFlag:   cfg.TwoStep,
		ClockIdentity: cid,
		NumberPorts:   1,
		ClockQuality:  cfg.ClockQuality,
		Priority1:     cfg.Priority1,
		Priority2:     cfg.Priority2,
		DomainNumber:  cfg.DomainNumber,
		SlaveOnly:     cfg.SlaveOnly,
	}
	p.portDS = ptp.PortDS{
		PortIdentity:           ptp.PortIdentity{ClockIdentity: cid, PortNumber: 1},
		PortState:              ptp.PortStateInitializing,
		LogAnnounceInterval:    cfg.LogAnnounceInterval,
		LogSyncInterval:        cfg.LogSyncInterval,
		LogMinDelayReqInterval: cfg.LogMinDelayReqInterval,
		AnnounceReceiptTimeout: cfg.AnnounceReceiptTimeout,
		VersionNumber:          ptp.Version,
	}
	p.announceTimer = p.wheel.Register("announce_interval")
	p.syncTimer = p.wheel.Register("sync_interval")
	p.delayReqTimer = p.wheel.Register("delay_req_interval")
	p.announceReceiptTimer = p.wheel.Register("announce_receipt")

	log.Infof("using ClockIdentity %s, domain %d, slaveOnly=%v", cid, cfg.DomainNumber, cfg.SlaveOnly)
	p.toState(ptp.PortStateListening)
	return p, nil
}

// State returns the current port state.
func (p *Port) State() ptp.PortState {
	return p.portDS.PortState
}

// ParentDS returns the current parent dataset.
func (p *Port) ParentDS() ptp.ParentDS {
	return p.parentDS
}

// Servo exposes the servo for observability.
func (p *Port) Servo() *servo.PiServo {
	return p.srv
}

// Fault moves the port to FAULTY. Transport or HAL failures end up here.
func (p *Port) Fault(err error) {
	log.Errorf("port fault: %v", err)
	p.toState(ptp.PortStateFaulty)
}

// logIntervalToMs converts a log2-seconds message interval to milliseconds.
func logIntervalToMs(logInterval int8) int64 {
	if logInterval >= 0 {
		return 1000 << uint(logInterval)
	}
	return 1000 >> uint(-logInterval)
}

func (p *Port) announceIntervalMs() int64 {
	return logIntervalToMs(p.portDS.LogAnnounceInterval)
}

func (p *Port) syncIntervalMs() int64 {
	return logIntervalToMs(p.portDS.LogSyncInterval)
}

func (p *Port) delayReqIntervalMs() int64 {
	return logIntervalToMs(p.portDS.LogMinDelayReqInterval)
}

func (p *Port) receiptTimeoutMs() int64 {
	return int64(p.portDS.AnnounceReceiptTimeout) * p.announceIntervalMs()
}

// toState performs the exit actions of the current state, switches, and
// performs the entry actions of the new one.
func (p *Port) toState(s ptp.PortState) {
	cur := p.portDS.PortState
	if cur == s {
		return
	}

	// SLAVE and UNCALIBRATED are one group for entry/exit purposes: moving
	// between them must not disturb the delay-req cadence.
	slaveGroup := func(st ptp.PortState) bool {
		return st == ptp.PortStateSlave || st == ptp.PortStateUncalibrated
	}

	switch {
	case cur == ptp.PortStateMaster:
		p.syncTimer.Stop()
		p.announceTimer.Stop()
	case slaveGroup(cur) && !slaveGroup(s):
		p.delayReqTimer.Stop()
	}

	log.Infof("state %s -> %s", cur, s)
	p.portDS.PortState = s
	p.st.SetPortState(s)

	switch s {
	case ptp.PortStateMaster:
		p.announceReceiptTimer.Stop()
		p.announceTimer.Start(p.announceIntervalMs(), p.cfg.TickHz)
		p.syncTimer.Start(p.syncIntervalMs(), p.cfg.TickHz)
	case ptp.PortStateUncalibrated:
		if !slaveGroup(cur) {
			p.delayReqTimer.Start(p.delayReqIntervalMs(), p.cfg.TickHz)
		}
		p.srv.Init()
	case ptp.PortStateListening:
		p.announceReceiptTimer.Start(p.receiptTimeoutMs(), p.cfg.TickHz)
		p.syncTimer.Stop()
		p.delayReqTimer.Stop()
	case ptp.PortStateFaulty:
		p.announceTimer.Stop()
		p.syncTimer.Stop()
		p.delayReqTimer.Stop()
		p.announceReceiptTimer.Stop()
	}
}

// applyPending applies a BMC recommendation. Same-state recommendations
// are a no-op; a recommendation of SLAVE enters UNCALIBRATED first and
// only the measured offset promotes it to SLAVE.
func (p *Port) applyPending() {
	d := p.pending
	p.pending = nil
	cur := p.portDS.PortState

	switch d.state {
	case ptp.PortStateMaster:
		if cur == ptp.PortStateMaster {
			return
		}
		p.parentDS = d.parentDS
		p.timePropertiesDS = d.timeProperties
		p.toState(ptp.PortStateMaster)
	case ptp.PortStateSlave:
		newParent := d.parentDS.ParentPortIdentity != p.parentDS.ParentPortIdentity
		p.parentDS = d.parentDS
		p.timePropertiesDS = d.timeProperties
		switch {
		case cur != ptp.PortStateSlave && cur != ptp.PortStateUncalibrated:
			p.toState(ptp.PortStateUncalibrated)
		case newParent && cur == ptp.PortStateSlave:
			p.toState(ptp.PortStateUncalibrated)
		case newParent:
			// already UNCALIBRATED, new parent: fresh servo, timer keeps running
			p.srv.Init()
		}
	case ptp.PortStateListening:
		p.toState(ptp.PortStateListening)
	case ptp.PortStatePassive:
		p.toState(ptp.PortStatePassive)
	}
}

// Tick is protocol_tick: called once per periodic tick, after the
// super-loop observed the tick-pending flag. Timer decrements happen first,
// then any expired-gated action.
func (p *Port) Tick() {
	p.wheel.Tick()

	if p.pending != nil {
		p.applyPending()
	}

	switch p.portDS.PortState {
	case ptp.PortStateMaster:
		if p.announceTimer.Expired() {
			if err := p.sendAnnounce(); err != nil {
				log.Errorf("sending Announce: %v", err)
			}
			p.announceTimer.Start(p.announceIntervalMs(), p.cfg.TickHz)
		}
		if p.syncTimer.Expired() {
			if err := p.sendSync(); err != nil {
				log.Errorf("sending Sync: %v", err)
			}
			p.syncTimer.Start(p.syncIntervalMs(), p.cfg.TickHz)
		}
	case ptp.PortStateSlave, ptp.PortStateUncalibrated:
		if p.delayReqTimer.Expired() {
			if err := p.sendDelayReq(); err != nil {
				log.Errorf("sending Delay_Req: %v", err)
			}
			p.delayReqTimer.Start(p.delayReqIntervalMs(), p.cfg.TickHz)
		}
		if p.announceReceiptTimer.Expired() {
			p.onAnnounceReceiptTimeout()
		}
	case ptp.PortStateListening:
		if p.announceReceiptTimer.Expired() {
			p.onAnnounceReceiptTimeout()
		}
	}
}

// onAnnounceReceiptTimeout handles the loss of all masters: whatever the
// foreign table holds is stale, so it is rebuilt from scratch. A slave
// falls back to LISTENING; a listening port asks the BMC, which recommends
// MASTER unless the clock is slave-only.
func (p *Port) onAnnounceReceiptTimeout() {
	log.Warningf("announce receipt timeout in %s", p.portDS.PortState)
	p.foreign = bmc.NewTable()

	switch p.portDS.PortState {
	case ptp.PortStateSlave, ptp.PortStateUncalibrated:
		p.toState(ptp.PortStateListening)
	case ptp.PortStateListening:
		state, parent, tp := bmc.Decide(p.defaultDS, p.foreign)
		if state == ptp.PortStateListening {
			// slave-only with nobody to follow: stay put and keep waiting
			p.announceReceiptTimer.Start(p.receiptTimeoutMs(), p.cfg.TickHz)
			return
		}
		p.pending = &decision{state: state, parentDS: parent, timeProperties: tp}
	}
}

// offsetNs flattens a TimeInternal to nanoseconds.
func offsetNs(t ptp.TimeInternal) int64 {
	return t.Seconds*1_000_000_000 + int64(t.Nanoseconds)
}

// updateClock runs the PI controller after a servo input and records the
// outcome.
func (p *Port) updateClock() servo.State {
	state := p.srv.UpdateClock(p.clk)
	off := p.srv.OffsetFromMaster()
	delay := p.srv.MeanPathDelay()
	if state == servo.StateJump {
		p.st.IncHardStep()
		log.Warningf("clock stepped by %s", off)
	} else {
		log.Debugf("offset %s, path delay %s, drift %d", off, delay, p.srv.ObservedDrift())
	}
	p.st.SetOffsetNs(offsetNs(off))
	p.st.SetPathDelayNs(offsetNs(delay))
	return state
}

func (p *Port) String() string {
	return fmt.Sprintf("Port(%s, %s)", p.portDS.PortIdentity, p.portDS.PortState)
}
