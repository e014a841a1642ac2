package session

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

var (
	errNotHost        = errors.New("only the host can capture")
	errCaptureActive  = errors.New("capture already active")
	errCaptureStopped = errors.New("capture is not active")
)

// StartCapture makes src the broadcast source. Viewers that offer from now
// on get its tracks.
func (c *Coordinator) StartCapture(src Source) error {
	return c.call(func() error {
		if c.role != protocol.RoleHost {
			return errNotHost
		}
		if c.source != nil {
			return errCaptureActive
		}
		if err := c.startSource(src); err != nil {
			return err
		}
		c.status(Info, "", "Capture started", nil)
		return nil
	})
}

// ReplaceSource swaps the capture source on every live session without
// renegotiating. It never creates sessions.
func (c *Coordinator) ReplaceSource(src Source) error {
	return c.call(func() error {
		if c.role != protocol.RoleHost {
			return errNotHost
		}
		if c.source == nil {
			return errCaptureStopped
		}
		old, oldStop := c.source, c.stopSource
		if err := c.startSource(src); err != nil {
			return err
		}

		tracks, q := src.Tracks(), c.quality
		for _, ps := range c.sessions {
			ps.worker.enqueue(func() {
				for _, track := range tracks {
					if err := ps.media.ReplaceTrack(track); err != nil {
						c.logger.Warn("replace track failed", "peer", ps.id, "kind", track.Kind(), "error", err)
					}
				}
				if err := ps.media.ApplyQuality(q); err != nil {
					c.logger.Warn("apply quality failed", "peer", ps.id, "error", err)
				}
			})
		}

		oldStop()
		if err := old.Close(); err != nil {
			c.logger.Debug("close previous source", "error", err)
		}
		c.status(Info, "", "Capture source replaced", nil)
		return nil
	})
}

// StopCapture stops the source, tears down every session and tells the
// server the broadcast ended.
func (c *Coordinator) StopCapture() error {
	return c.call(func() error {
		if c.role != protocol.RoleHost {
			return errNotHost
		}
		if c.source == nil {
			return errCaptureStopped
		}
		c.closeSource()
		for _, ps := range c.sessions {
			c.removeSession(ps)
		}
		clear(c.pending)

		if err := c.signaler.Send(&protocol.Message{Type: protocol.TypeBroadcastEnd}); err != nil {
			c.logger.Warn("could not announce broadcast end", "error", err)
		}
		c.status(Info, "", "Capture stopped", nil)
		return nil
	})
}

func (c *Coordinator) startSource(src Source) error {
	if cs, ok := src.(Constrainer); ok {
		cs.Constrain(c.quality)
	}
	ctx, cancel := context.WithCancel(c.ctx)
	if err := src.Start(ctx); err != nil {
		cancel()
		return protocol.NewOpError("start capture", err)
	}
	c.source, c.stopSource = src, cancel
	return nil
}

func (c *Coordinator) closeSource() {
	if c.source == nil {
		return
	}
	c.stopSource()
	if err := c.source.Close(); err != nil {
		c.logger.Debug("close source", "error", err)
	}
	c.source, c.stopSource = nil, nil
}

func (c *Coordinator) hostSignal(data *protocol.SignalData) {
	if data.From == "" {
		c.logger.Debug("ignoring signal without sender")
		return
	}

	switch {
	case data.Offer != nil:
		desc, err := data.Offer.ToPion()
		if err != nil {
			c.status(Warning, data.From, "Invalid offer", err)
			return
		}
		c.acceptOffer(data.From, desc)

	case data.Candidate != nil:
		if c.source == nil && c.sessions[data.From] == nil {
			return
		}
		c.queueCandidate(data.From, data.Candidate.ToPion())
	}
}

// acceptOffer answers a viewer's offer with a fresh session, replacing any
// session that viewer already had.
func (c *Coordinator) acceptOffer(peer string, offer webrtc.SessionDescription) {
	if c.source == nil {
		delete(c.pending, peer)
		c.status(Warning, peer, "Viewer tried to connect but capture is not running", nil)
		return
	}
	if old := c.sessions[peer]; old != nil {
		c.removeSession(old)
		c.logger.Info("replacing session for renegotiating viewer", "peer", peer)
	}

	ps, err := c.newSession(peer)
	if err != nil {
		c.status(Error, peer, "Could not create peer connection", err)
		return
	}

	tracks, q := c.source.Tracks(), c.quality
	ps.worker.enqueue(func() {
		for _, track := range tracks {
			if err := ps.media.AddTrack(track); err != nil {
				c.post(func() { c.failSession(ps, "add track", err) })
				return
			}
		}
		if err := ps.media.ApplyQuality(q); err != nil {
			c.logger.Warn("apply quality failed", "peer", peer, "error", err)
		}
		err := ps.media.SetRemoteDescription(offer)
		c.post(func() { c.remoteApplied(ps, err) })
	})
}

func (c *Coordinator) createAnswer(ps *peerSession) {
	ps.worker.enqueue(func() {
		answer, err := ps.media.CreateAnswer()
		if err == nil {
			err = ps.media.SetLocalDescription(answer)
		}
		c.post(func() { c.answerReady(ps, answer, err) })
	})
}

func (c *Coordinator) answerReady(ps *peerSession, answer webrtc.SessionDescription, err error) {
	if !c.current(ps) {
		return
	}
	if err != nil {
		c.failSession(ps, "create answer", err)
		return
	}
	err = c.sendSignal(protocol.SignalData{
		From:   c.clientID,
		To:     ps.id,
		Answer: protocol.DescriptionFromPion(answer),
	})
	if err != nil {
		c.status(Warning, ps.id, "Could not send answer", err)
	}
}
