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
	"github.com/facebookincubator/ptpd-oc/ptp"
)

// newHeader builds the common header for an outbound message of this port.
func (p *Port) newHeader(mt ptp.MessageType, length uint16, control uint8, logInterval int8) ptp.Header {
	h := ptp.NewHeader(mt, p.defaultDS.DomainNumber)
	h.MessageLength = length
	h.SourcePortIdentity = p.portDS.PortIdentity
	h.ControlField = control
	h.LogMessageInterval = logInterval
	return h
}

// timePropertyFlags folds the TimePropertiesDS into Announce header flags.
func (p *Port) timePropertyFlags() uint16 {
	var f uint16
	if p.timePropertiesDS.CurrentUTCOffsetValid {
		f |= ptp.FlagCurrentUtcOffsetValid
	}
	if p.timePropertiesDS.Leap59 {
		f |= ptp.FlagLeap59
	}
	if p.timePropertiesDS.Leap61 {
		f |= ptp.FlagLeap61
	}
	if p.timePropertiesDS.TimeTraceable {
		f |= ptp.FlagTimeTraceable
	}
	if p.timePropertiesDS.FrequencyTraceable {
		f |= ptp.FlagFrequencyTraceable
	}
	if p.timePropertiesDS.PTPTimescale {
		f |= ptp.FlagPTPTimescale
	}
	return f
}

func (p *Port) send(pkt ptp.Packet, event bool) error {
	b, err := ptp.Bytes(pkt)
	if err != nil {
		return err
	}
	if event {
		err = p.snd.SendEvent(b)
	} else {
		err = p.snd.SendGeneral(b)
	}
	if err != nil {
		return err
	}
	p.st.IncTX(pkt.MessageType())
	return nil
}

// sendAnnounce emits the Announce of a master port. The grandmaster fields
// come from the ParentDS, which points at ourselves while we are master,
// and the origin timestamp is zeroed on emit.
func (p *Port) sendAnnounce() error {
	seq := p.announceSeq
	p.announceSeq++

	a := &ptp.Announce{
		Header: p.newHeader(ptp.MessageAnnounce, ptp.LenAnnounce, ptp.ControlOther, p.portDS.LogAnnounceInterval),
		AnnounceBody: ptp.AnnounceBody{
			CurrentUTCOffset:        p.timePropertiesDS.CurrentUTCOffset,
			GrandmasterPriority1:    p.parentDS.GrandmasterPriority1,
			GrandmasterClockQuality: p.parentDS.GrandmasterClockQuality,
			GrandmasterPriority2:    p.parentDS.GrandmasterPriority2,
			GrandmasterIdentity:     p.parentDS.GrandmasterIdentity,
			StepsRemoved:            0,
			TimeSource:              p.timePropertiesDS.TimeSource,
		},
	}
	a.FlagField = p.timePropertyFlags()
	a.SetSequence(seq)
	if err := p.send(a, false); err != nil {
		return err
	}
	p.logSent(ptp.MessageAnnounce, "seq=%d, gmIdentity=%s", seq, a.GrandmasterIdentity)
	return nil
}

// sendSync emits a Sync with T1 captured at send time and, on a two-step
// clock, the Follow_Up carrying the same sequence id and the precise T1.
func (p *Port) sendSync() error {
	seq := p.syncSeq
	p.syncSeq++

	t1 := p.clk.GetTime()
	s := &ptp.SyncDelayReq{
		Header: p.newHeader(ptp.MessageSync, ptp.LenSyncDelayReq, ptp.ControlSync, p.portDS.LogSyncInterval),
		SyncDelayReqBody: ptp.SyncDelayReqBody{
			OriginTimestamp: ptp.NewTimestampFromInternal(t1),
		},
	}
	if p.defaultDS.TwoStepFlag {
		s.FlagField |= ptp.FlagTwoStep
	}
	s.SetSequence(seq)
	if err := p.send(s, true); err != nil {
		return err
	}
	p.logSent(ptp.MessageSync, "seq=%d, T1=%s", seq, t1)

	if !p.defaultDS.TwoStepFlag {
		return nil
	}
	f := &ptp.FollowUp{
		Header: p.newHeader(ptp.MessageFollowUp, ptp.LenFollowUp, ptp.ControlFollowUp, p.portDS.LogSyncInterval),
		FollowUpBody: ptp.FollowUpBody{
			PreciseOriginTimestamp: ptp.NewTimestampFromInternal(t1),
		},
	}
	f.SetSequence(seq)
	if err := p.send(f, false); err != nil {
		return err
	}
	p.logSent(ptp.MessageFollowUp, "seq=%d, preciseOriginTimestamp=%s", seq, t1)
	return nil
}

// sendDelayReq emits a Delay_Req, capturing T3 at send time.
func (p *Port) sendDelayReq() error {
	seq := p.delayReqSeq
	p.delayReqSeq++

	t3 := p.clk.GetTime()
	d := &ptp.SyncDelayReq{
		Header: p.newHeader(ptp.MessageDelayReq, ptp.LenSyncDelayReq, ptp.ControlDelayReq, 0x7f),
		SyncDelayReqBody: ptp.SyncDelayReqBody{
			OriginTimestamp: ptp.NewTimestampFromInternal(t3),
		},
	}
	d.SetSequence(seq)
	if err := p.send(d, true); err != nil {
		return err
	}
	p.t3 = t3
	p.srv.SentDelayReqSequenceID = seq
	p.logSent(ptp.MessageDelayReq, "seq=%d, T3=%s", seq, t3)
	return nil
}

// sendDelayResp answers one Delay_Req, echoing its sequence id and sender
// identity and carrying the ingress timestamp.
func (p *Port) sendDelayResp(req *ptp.SyncDelayReq, t4 ptp.TimeInternal) error {
	r := &ptp.DelayResp{
		Header: p.newHeader(ptp.MessageDelayResp, ptp.LenDelayResp, ptp.ControlDelayResp, p.portDS.LogMinDelayReqInterval),
		DelayRespBody: ptp.DelayRespBody{
			ReceiveTimestamp:       ptp.NewTimestampFromInternal(t4),
			RequestingPortIdentity: req.SourcePortIdentity,
		},
	}
	r.SetSequence(req.SequenceID)
	if err := p.send(r, false); err != nil {
		return err
	}
	p.logSent(ptp.MessageDelayResp, "seq=%d, to %s", req.SequenceID, req.SourcePortIdentity)
	return nil
}
