package session

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

var errNotViewer = errors.New("only a viewer can connect")

// Connect asks for the broadcast. If the host is not available yet the
// viewer connects as soon as it is.
func (c *Coordinator) Connect() error {
	return c.call(func() error {
		if c.role != protocol.RoleViewer {
			return errNotViewer
		}
		c.wantConnect = true
		if !c.maybeConnect() && c.sessions[hostPeer] == nil {
			c.status(Info, "", "Waiting for host", nil)
		}
		return nil
	})
}

// Disconnect drops the session and stops auto-connecting.
func (c *Coordinator) Disconnect() error {
	return c.call(func() error {
		if c.role != protocol.RoleViewer {
			return errNotViewer
		}
		c.wantConnect = false
		if ps := c.sessions[hostPeer]; ps != nil {
			c.removeSession(ps)
			c.status(PeerDisconnected, ps.peerID(), "Disconnected", nil)
		}
		delete(c.pending, hostPeer)
		return nil
	})
}

// maybeConnect starts the single viewer session when everything it needs is
// in place. It reports whether a session was started.
func (c *Coordinator) maybeConnect() bool {
	if c.role != protocol.RoleViewer || !c.wantConnect || !c.joined || !c.hostAvailable {
		return false
	}
	if c.sessions[hostPeer] != nil {
		return false
	}

	ps, err := c.newSession(hostPeer)
	if err != nil {
		c.wantConnect = false
		c.status(Error, "", "Could not create peer connection", err)
		return false
	}

	ps.worker.enqueue(func() {
		var offer webrtc.SessionDescription
		err := ps.media.PrepareReceiveOnly()
		if err == nil {
			offer, err = ps.media.CreateOffer()
		}
		if err == nil {
			err = ps.media.SetLocalDescription(offer)
		}
		c.post(func() { c.offerReady(ps, offer, err) })
	})
	c.status(Info, "", "Connecting to host", nil)
	return true
}

func (c *Coordinator) offerReady(ps *peerSession, offer webrtc.SessionDescription, err error) {
	if !c.current(ps) {
		return
	}
	if err != nil {
		c.failSession(ps, "create offer", err)
		return
	}
	err = c.sendSignal(protocol.SignalData{From: c.clientID, Offer: protocol.DescriptionFromPion(offer)})
	if err != nil {
		c.failSession(ps, "send offer", err)
		return
	}
	ps.awaitingAnswer = true
}

func (c *Coordinator) viewerSignal(data *protocol.SignalData) {
	ps := c.sessions[hostPeer]
	if ps == nil {
		return
	}

	switch {
	case data.Answer != nil:
		if !ps.awaitingAnswer {
			c.logger.Debug("ignoring unexpected answer", "from", data.From)
			return
		}
		desc, err := data.Answer.ToPion()
		if err != nil {
			c.failSession(ps, "parse answer", err)
			return
		}
		ps.awaitingAnswer = false
		ps.remoteID = data.From
		q := c.quality
		ps.worker.enqueue(func() {
			err := ps.media.SetRemoteDescription(desc)
			if err == nil {
				if qerr := ps.media.ApplyQuality(q); qerr != nil {
					c.logger.Debug("apply playout hint failed", "error", qerr)
				}
			}
			c.post(func() { c.remoteApplied(ps, err) })
		})

	case data.Candidate != nil:
		c.queueCandidate(hostPeer, data.Candidate.ToPion())
	}
}
