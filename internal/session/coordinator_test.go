package session

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
)

func startCapture(t *testing.T, f *fixture) *fakeSource {
	t.Helper()
	src := newFakeSource(t, "screen")
	if err := f.coord.StartCapture(src); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	return src
}

func TestNewValidatesConfig(t *testing.T) {
	base := Config{Role: "host", RoomID: "r", Media: &fakeFactory{}, Signaler: &fakeSignaler{}}

	bad := base
	bad.Role = "admin"
	if _, err := New(bad); err == nil {
		t.Error("accepted invalid role")
	}
	bad = base
	bad.RoomID = ""
	if _, err := New(bad); err == nil {
		t.Error("accepted empty room")
	}

	c, err := New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(c.ClientID()) != len("host-")+8 || c.ClientID()[:5] != "host-" {
		t.Errorf("generated client id = %q", c.ClientID())
	}
	if c.quality.Profile.Name != quality.ProfileUltra {
		t.Errorf("default quality = %+v", c.quality)
	}
}

func TestHostAnswersOfferAfterBufferedCandidates(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	f.factory.configure = func(m *fakeMedia) { m.gates["remote"] = make(chan struct{}) }
	startCapture(t, f)

	// Candidates that overtake the offer are held for the peer.
	f.candidateFrom("v1", "", "c1")
	f.candidateFrom("v1", "", "c2")
	f.offerFrom("v1")

	eventually(t, "SetRemoteDescription", func() bool {
		return f.factory.created() == 1 && f.factory.session(0).count("remote") == 1
	})
	m := f.factory.session(0)

	// More candidates while the remote description is still being applied.
	f.candidateFrom("v1", "", "c3")
	f.candidateFrom("v1", "", "c4")
	f.sync()
	close(m.gates["remote"])

	eventually(t, "answer sent", func() bool { return len(f.signaler.signals(t)) == 1 })
	want := []string{
		"add-track:video", "add-track:audio", "quality:ultra", "remote:offer",
		"candidate:c1", "candidate:c2", "candidate:c3", "candidate:c4",
		"answer", "local:answer",
	}
	if err := sameCalls(m.Calls(), want); err != nil {
		t.Fatal(err)
	}

	answer := f.signaler.signals(t)[0]
	if answer.From != "host-self" || answer.To != "v1" || answer.Answer == nil || answer.Answer.Type != "answer" {
		t.Fatalf("answer = %+v", answer)
	}

	// Later candidates go straight to the session.
	f.candidateFrom("v1", "", "c5")
	eventually(t, "late candidate", func() bool { return m.count("candidate") == 5 })
}

func TestHostDiscardsOfferWithoutCapture(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)

	f.candidateFrom("v1", "", "early")
	f.offerFrom("v1")
	f.sync()

	if n := f.factory.created(); n != 0 {
		t.Fatalf("created %d sessions without capture", n)
	}
	if !f.log.has(Warning, "capture is not running") {
		t.Fatalf("no warning raised: %+v", f.log.statuses)
	}
	if len(f.signaler.messages()) != 0 {
		t.Fatalf("sent %v", f.signaler.messages())
	}

	// The early candidate was dropped with the offer.
	startCapture(t, f)
	f.offerFrom("v1")
	eventually(t, "answer", func() bool { return len(f.signaler.signals(t)) == 1 })
	if n := f.factory.session(0).count("candidate"); n != 0 {
		t.Fatalf("stale candidate applied %d times", n)
	}
}

func TestHostViewersAreIndependent(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	startCapture(t, f)

	f.offerFrom("v1")
	f.offerFrom("v2")
	eventually(t, "two answers", func() bool { return len(f.signaler.signals(t)) == 2 })

	first := f.factory.session(0)
	first.setState(webrtc.PeerConnectionStateFailed)
	eventually(t, "failed session closed", func() bool { return first.count("close") == 1 })

	peers := f.coord.Peers()
	if len(peers) != 1 || peers[0].ID != "v2" {
		t.Fatalf("peers = %+v", peers)
	}
	if f.factory.session(1).count("close") != 0 {
		t.Fatal("healthy session was closed")
	}
	if !f.log.has(PeerDisconnected, "failed") {
		t.Fatal("no disconnect status")
	}

	f.factory.session(1).setState(webrtc.PeerConnectionStateConnected)
	f.sync()
	if !f.log.has(PeerConnected, "connected") {
		t.Fatal("no connected status")
	}
	if peers := f.coord.Peers(); peers[0].State != "connected" {
		t.Fatalf("state = %q", peers[0].State)
	}
}

func TestHostReofferReplacesSession(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	startCapture(t, f)

	f.offerFrom("v1")
	eventually(t, "first answer", func() bool { return len(f.signaler.signals(t)) == 1 })
	f.offerFrom("v1")
	eventually(t, "second answer", func() bool { return len(f.signaler.signals(t)) == 2 })

	if f.factory.created() != 2 {
		t.Fatalf("created = %d", f.factory.created())
	}
	eventually(t, "old session closed", func() bool { return f.factory.session(0).count("close") == 1 })
	if len(f.coord.Peers()) != 1 {
		t.Fatalf("peers = %+v", f.coord.Peers())
	}
}

func TestHostDisconnectedOnlyWarns(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	startCapture(t, f)
	f.offerFrom("v1")
	eventually(t, "answer", func() bool { return len(f.signaler.signals(t)) == 1 })

	f.factory.session(0).setState(webrtc.PeerConnectionStateDisconnected)
	f.sync()
	if len(f.coord.Peers()) != 1 {
		t.Fatal("disconnected session was removed")
	}
	if !f.log.has(Warning, "interrupted") {
		t.Fatal("no warning for disconnected state")
	}
}

func TestReplaceSourceDoesNotRenegotiate(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	old := startCapture(t, f)
	f.offerFrom("v1")
	eventually(t, "answer", func() bool { return len(f.signaler.signals(t)) == 1 })
	m := f.factory.session(0)
	before := len(m.Calls())

	next := newFakeSource(t, "camera")
	if err := f.coord.ReplaceSource(next); err != nil {
		t.Fatalf("ReplaceSource: %v", err)
	}
	eventually(t, "tracks replaced", func() bool { return len(m.Calls()) == before+3 })

	want := []string{"replace-track:video", "replace-track:audio", "quality:ultra"}
	if err := sameCalls(m.Calls()[before:], want); err != nil {
		t.Fatal(err)
	}
	if f.factory.created() != 1 || len(f.signaler.signals(t)) != 1 {
		t.Fatal("replace source renegotiated")
	}
	if !old.isClosed() || !next.isStarted() {
		t.Fatalf("old closed = %v, new started = %v", old.isClosed(), next.isStarted())
	}
}

func TestCaptureLifecycleErrors(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)

	if err := f.coord.StopCapture(); err == nil {
		t.Error("StopCapture without capture succeeded")
	}
	if err := f.coord.ReplaceSource(newFakeSource(t, "x")); err == nil {
		t.Error("ReplaceSource without capture succeeded")
	}
	startCapture(t, f)
	if err := f.coord.StartCapture(newFakeSource(t, "y")); err == nil {
		t.Error("second StartCapture succeeded")
	}
	if err := f.coord.Connect(); err == nil {
		t.Error("host Connect succeeded")
	}
}

func TestStopCaptureTearsDownAndAnnounces(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	src := startCapture(t, f)
	f.offerFrom("v1")
	f.offerFrom("v2")
	eventually(t, "answers", func() bool { return len(f.signaler.signals(t)) == 2 })

	if err := f.coord.StopCapture(); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	eventually(t, "sessions closed", func() bool {
		return f.factory.session(0).count("close") == 1 && f.factory.session(1).count("close") == 1
	})
	if !src.isClosed() || len(f.coord.Peers()) != 0 {
		t.Fatal("capture not torn down")
	}

	msgs := f.signaler.messages()
	if last := msgs[len(msgs)-1]; last.Type != protocol.TypeBroadcastEnd {
		t.Fatalf("last message = %+v", last)
	}
}

func TestLocalCandidatesAreAddressed(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	startCapture(t, f)
	f.offerFrom("v1")
	eventually(t, "answer", func() bool { return len(f.signaler.signals(t)) == 1 })

	f.factory.session(0).emitCandidate("local-1")
	eventually(t, "candidate sent", func() bool { return len(f.signaler.signals(t)) == 2 })
	sent := f.signaler.signals(t)[1]
	if sent.To != "v1" || sent.From != "host-self" || sent.Candidate.Candidate != "local-1" {
		t.Fatalf("candidate signal = %+v", sent)
	}
}

func TestSetQualityReachesSessionsAndSource(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	src := startCapture(t, f)
	f.offerFrom("v1")
	eventually(t, "answer", func() bool { return len(f.signaler.signals(t)) == 1 })

	q, err := f.coord.SetQuality("low", 10_000_000)
	if err != nil {
		t.Fatalf("SetQuality: %v", err)
	}
	if q.EffectiveBitrate() != 3_000_000 {
		t.Fatalf("effective bitrate = %d", q.EffectiveBitrate())
	}
	eventually(t, "quality applied", func() bool {
		calls := f.factory.session(0).Calls()
		return calls[len(calls)-1] == "quality:low"
	})
	src.mu.Lock()
	defer src.mu.Unlock()
	if got := src.constrained[len(src.constrained)-1]; got != "low" {
		t.Fatalf("source constrained to %q", got)
	}
}

func TestSignalingReconnectRejoinsWithSameID(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)

	f.coord.SignalingConnected()
	f.coord.SignalingLost(errors.New("socket closed"))
	f.coord.SignalingConnected()
	f.sync()

	msgs := f.signaler.messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	for _, msg := range msgs {
		if msg.Type != protocol.TypeJoin || msg.ClientID != "viewer-self" || msg.Role != protocol.RoleViewer || msg.RoomID != "room1" {
			t.Fatalf("join = %+v", msg)
		}
	}
	if !f.log.has(Warning, "reconnecting") {
		t.Fatal("no status for lost signaling")
	}
}

func joinAsViewer(f *fixture, hostAvailable bool) {
	f.coord.SignalingConnected()
	f.coord.HandleJoined(protocol.RoleViewer, "room1", hostAvailable)
}

func TestViewerWaitsForHost(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)

	if err := f.coord.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	joinAsViewer(f, false)
	f.sync()
	if f.factory.created() != 0 {
		t.Fatal("connected before host was available")
	}
	if !f.log.has(Info, "Waiting for host") {
		t.Fatal("no waiting status")
	}

	f.coord.HandleHostAvailable()
	eventually(t, "offer sent", func() bool { return len(f.signaler.signals(t)) == 1 })

	offer := f.signaler.signals(t)[0]
	if offer.From != "viewer-self" || offer.To != "" || offer.Offer == nil || offer.Offer.SDP != "offer-sdp" {
		t.Fatalf("offer = %+v", offer)
	}
	want := []string{"prepare", "offer", "local:offer"}
	if err := sameCalls(f.factory.session(0).Calls(), want); err != nil {
		t.Fatal(err)
	}

	// A second availability notice does not create a second session.
	f.coord.HandleHostAvailable()
	f.sync()
	if f.factory.created() != 1 {
		t.Fatalf("created = %d", f.factory.created())
	}
}

func TestViewerAppliesAnswerOnce(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)
	joinAsViewer(f, true)
	f.coord.Connect()
	eventually(t, "offer", func() bool { return len(f.signaler.signals(t)) == 1 })
	m := f.factory.session(0)

	f.candidateFrom("host-1", "viewer-self", "h1")
	f.answerFrom("host-1", "viewer-self")
	f.answerFrom("host-1", "viewer-self")
	f.candidateFrom("host-1", "viewer-self", "h2")

	eventually(t, "candidates applied", func() bool { return m.count("candidate") == 2 })
	want := []string{"prepare", "offer", "local:offer", "remote:answer", "quality:ultra", "candidate:h1", "candidate:h2"}
	if err := sameCalls(m.Calls(), want); err != nil {
		t.Fatal(err)
	}
	if peers := f.coord.Peers(); len(peers) != 1 || peers[0].ID != "host-1" {
		t.Fatalf("peers = %+v", peers)
	}
}

func TestViewerIgnoresStraySignals(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)
	joinAsViewer(f, true)

	// Nothing exists yet: answers and candidates are ignored.
	f.answerFrom("host-1", "")
	f.candidateFrom("host-1", "", "x")
	f.offerFrom("host-1")
	f.sync()
	if f.factory.created() != 0 {
		t.Fatal("stray signal created a session")
	}

	f.coord.Connect()
	eventually(t, "offer", func() bool { return len(f.signaler.signals(t)) == 1 })
	m := f.factory.session(0)

	f.answerFrom("host-1", "viewer-other")
	f.offerFrom("host-1")
	f.sync()
	if m.count("remote") != 0 {
		t.Fatalf("applied a signal meant for someone else: %v", m.Calls())
	}
}

func TestViewerReconnectsAfterBroadcastEnded(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)
	joinAsViewer(f, true)
	f.coord.Connect()
	eventually(t, "offer", func() bool { return len(f.signaler.signals(t)) == 1 })

	f.coord.HandleBroadcastEnded()
	eventually(t, "session closed", func() bool { return f.factory.session(0).count("close") == 1 })
	if !f.log.has(Warning, "Broadcast ended") {
		t.Fatal("no broadcast ended status")
	}

	f.coord.HandleHostAvailable()
	eventually(t, "second offer", func() bool { return len(f.signaler.signals(t)) == 2 })
	if f.factory.created() != 2 {
		t.Fatalf("created = %d", f.factory.created())
	}
}

func TestViewerFailureStopsAutoConnect(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)
	joinAsViewer(f, true)
	f.coord.Connect()
	eventually(t, "offer", func() bool { return len(f.signaler.signals(t)) == 1 })

	f.factory.session(0).setState(webrtc.PeerConnectionStateFailed)
	eventually(t, "session closed", func() bool { return f.factory.session(0).count("close") == 1 })

	f.coord.HandleHostAvailable()
	f.sync()
	if f.factory.created() != 1 {
		t.Fatal("auto-connected after a failure")
	}

	f.coord.Connect()
	eventually(t, "retry offer", func() bool { return len(f.signaler.signals(t)) == 2 })
}

func TestViewerOfferSendFailure(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)
	joinAsViewer(f, true)
	f.sync()
	f.signaler.mu.Lock()
	f.signaler.err = protocol.WrapError("send signal", protocol.ErrTransport, "not connected")
	f.signaler.mu.Unlock()

	f.coord.Connect()
	eventually(t, "session closed", func() bool {
		return f.factory.created() == 1 && f.factory.session(0).count("close") == 1
	})
	if !f.log.has(Error, "send offer failed") {
		t.Fatalf("statuses = %+v", f.log.statuses)
	}
}

func TestStaleCompletionAfterDisconnect(t *testing.T) {
	f := newFixture(t, protocol.RoleViewer)
	gate := make(chan struct{})
	f.factory.configure = func(m *fakeMedia) { m.gates["offer"] = gate }
	joinAsViewer(f, true)
	f.coord.Connect()
	eventually(t, "offer started", func() bool {
		return f.factory.created() == 1 && f.factory.session(0).count("offer") == 1
	})

	if err := f.coord.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	close(gate)

	m := f.factory.session(0)
	eventually(t, "session closed", func() bool { return m.count("close") == 1 })
	f.sync()
	if len(f.signaler.signals(t)) != 0 {
		t.Fatalf("stale offer was sent: %+v", f.signaler.signals(t))
	}
	if calls := m.Calls(); calls[len(calls)-1] != "close" {
		t.Fatalf("close did not run last: %v", calls)
	}
}

func TestCallsAfterStopFail(t *testing.T) {
	c, err := New(Config{Role: "viewer", RoomID: "r", Media: &fakeFactory{}, Signaler: &fakeSignaler{}, Logger: quiet})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}

	if err := c.Connect(); !errors.Is(err, ErrStopped) {
		t.Fatalf("Connect after stop = %v", err)
	}
	if peers := c.Peers(); len(peers) != 0 {
		t.Fatalf("Peers after stop = %v", peers)
	}
}
