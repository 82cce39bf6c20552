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

package port

import (
	"fmt"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/ptpd-oc/bmc"
	"github.com/facebookincubator/ptpd-oc/ptp"
	"github.com/facebookincubator/ptpd-oc/servo"
)

// HandleMessage dispatches one received payload. The receive timestamp is
// captured here, at dispatch time, so it serves as T2 for Sync and as the
// receiveTimestamp for Delay_Req without any transport cooperation.
//
// Bad input never propagates: malformed messages are dropped with a
// counter increment and a wrapped ptp.ErrDrop, which callers may log but
// must not act on. Out-of-scope message types and our own reflected
// transmissions are dropped with a nil error and no counter increment.
func (p *Port) HandleMessage(raw []byte) error {
	rxTime := p.clk.GetTime()

	h, err := ptp.PeekHeader(raw)
	if err != nil {
		p.st.IncMalformed()
		return err
	}
	if h.VersionByte&0x0f != ptp.Version {
		p.st.IncMalformed()
		return fmt.Errorf("%w: version %d", ptp.ErrDrop, h.VersionByte&0x0f)
	}
	if h.DomainNumber != p.defaultDS.DomainNumber {
		p.st.IncMalformed()
		return fmt.Errorf("%w: domain %d, ours is %d", ptp.ErrDrop, h.DomainNumber, p.defaultDS.DomainNumber)
	}
	// multicast reflects our own transmissions back at us
	if h.SourcePortIdentity == p.portDS.PortIdentity {
		return nil
	}
	switch h.MessageType() {
	case ptp.MessageSync, ptp.MessageDelayReq, ptp.MessageFollowUp, ptp.MessageDelayResp, ptp.MessageAnnounce:
	default:
		return nil
	}

	pkt, err := ptp.DecodePacket(raw)
	if err != nil {
		p.st.IncMalformed()
		return err
	}
	p.st.IncRX(h.MessageType())

	switch v := pkt.(type) {
	case *ptp.Announce:
		return p.handleAnnounce(v)
	case *ptp.SyncDelayReq:
		if v.MessageType() == ptp.MessageSync {
			return p.handleSync(v, rxTime)
		}
		return p.handleDelayReq(v, rxTime)
	case *ptp.FollowUp:
		return p.handleFollowUp(v)
	case *ptp.DelayResp:
		return p.handleDelayResp(v)
	}
	return nil
}

// handleAnnounce records the sender in the foreign-master table, reruns
// the BMC and stores the recommendation for the next tick.
func (p *Port) handleAnnounce(a *ptp.Announce) error {
	p.logReceive(ptp.MessageAnnounce, "seq=%d, gmIdentity=%s, gmPriority1=%d, stepsRemoved=%d",
		a.SequenceID, a.GrandmasterIdentity, a.GrandmasterPriority1, a.StepsRemoved)

	if !p.foreign.Update(a.SourcePortIdentity, a.Header, a.AnnounceBody) {
		p.st.IncForeignTableFull()
		log.Warningf("foreign master table full, dropping update from %s", a.SourcePortIdentity)
		return nil
	}

	state, parent, tp := bmc.Decide(p.defaultDS, p.foreign)
	p.pending = &decision{state: state, parentDS: parent, timeProperties: tp}
	p.announceReceiptTimer.Start(p.receiptTimeoutMs(), p.cfg.TickHz)
	return nil
}

// isFromParent reports whether the sender is our current parent. Before
// any master is known the ParentDS is zero and every sender is accepted.
func (p *Port) isFromParent(sender ptp.PortIdentity) bool {
	if p.parentDS.IsZero() {
		return true
	}
	return sender == p.parentDS.ParentPortIdentity
}

// handleSync captures T2 and either updates the servo (one-step) or parks
// the header until the matching Follow_Up arrives (two-step).
func (p *Port) handleSync(s *ptp.SyncDelayReq, t2 ptp.TimeInternal) error {
	state := p.portDS.PortState
	if state != ptp.PortStateSlave && state != ptp.PortStateUncalibrated {
		return nil
	}
	if !p.isFromParent(s.SourcePortIdentity) {
		p.st.IncOutOfOrder()
		return fmt.Errorf("%w: Sync from non-parent %s", ptp.ErrDrop, s.SourcePortIdentity)
	}
	p.logReceive(ptp.MessageSync, "seq=%d, T2=%s", s.SequenceID, t2)

	p.t2 = t2
	if s.TwoStep() {
		// a stale unanswered Sync is simply overwritten
		p.srv.WaitingForFollowUp = true
		p.srv.LastSyncHeader = s.Header
		return nil
	}
	p.srv.WaitingForFollowUp = false
	p.srv.UpdateOffset(t2, s.OriginTimestamp.Internal())
	p.updateClock()
	return nil
}

// handleFollowUp completes a two-step Sync with the precise T1.
func (p *Port) handleFollowUp(f *ptp.FollowUp) error {
	state := p.portDS.PortState
	if state != ptp.PortStateSlave && state != ptp.PortStateUncalibrated {
		return nil
	}
	if !p.srv.WaitingForFollowUp || f.SequenceID != p.srv.LastSyncHeader.SequenceID {
		p.st.IncOutOfOrder()
		return fmt.Errorf("%w: Follow_Up seq=%d without matching Sync", ptp.ErrDrop, f.SequenceID)
	}
	p.logReceive(ptp.MessageFollowUp, "seq=%d, preciseOriginTimestamp=%s", f.SequenceID, f.PreciseOriginTimestamp)

	p.srv.WaitingForFollowUp = false
	p.srv.UpdateOffset(p.t2, f.PreciseOriginTimestamp.Internal())
	p.updateClock()
	return nil
}

// handleDelayReq answers a slave's Delay_Req with a Delay_Resp carrying
// the ingress timestamp. Masters only.
func (p *Port) handleDelayReq(d *ptp.SyncDelayReq, t4 ptp.TimeInternal) error {
	if p.portDS.PortState != ptp.PortStateMaster {
		return nil
	}
	p.logReceive(ptp.MessageDelayReq, "seq=%d, from %s, T4=%s", d.SequenceID, d.SourcePortIdentity, t4)
	return p.sendDelayResp(d, t4)
}

// handleDelayResp completes the delay measurement, and promotes an
// UNCALIBRATED port to SLAVE once the offset is small enough.
func (p *Port) handleDelayResp(r *ptp.DelayResp) error {
	state := p.portDS.PortState
	if state != ptp.PortStateSlave && state != ptp.PortStateUncalibrated {
		return nil
	}
	if r.RequestingPortIdentity != p.portDS.PortIdentity || r.SequenceID != p.srv.SentDelayReqSequenceID {
		p.st.IncOutOfOrder()
		return fmt.Errorf("%w: Delay_Resp seq=%d for %s does not match our request", ptp.ErrDrop, r.SequenceID, r.RequestingPortIdentity)
	}
	p.logReceive(ptp.MessageDelayResp, "seq=%d, receiveTimestamp=%s", r.SequenceID, r.ReceiveTimestamp)

	p.srv.UpdateDelay(p.t3, r.ReceiveTimestamp.Internal())
	servoState := p.updateClock()

	// a hard step resets the servo, its zeroed offset says nothing about
	// how well we track the master yet
	if p.portDS.PortState == ptp.PortStateUncalibrated && servoState == servo.StateLocked {
		off := offsetNs(p.srv.OffsetFromMaster())
		if off < 0 {
			off = -off
		}
		if off < uncalibratedOffsetThresholdNs {
			p.toState(ptp.PortStateSlave)
		}
	}
	return nil
}

// couple of helpers to log nice lines about happening communication
func (p *Port) logSent(t ptp.MessageType, msg string, v ...interface{}) {
	log.Debugf(color.GreenString("%s -> %s (%s)", p.portDS.PortState, t, fmt.Sprintf(msg, v...)))
}

func (p *Port) logReceive(t ptp.MessageType, msg string, v ...interface{}) {
	log.Debugf(color.BlueString("%s <- %s (%s)", p.portDS.PortState, t, fmt.Sprintf(msg, v...)))
}
