package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeMedia records every call. Calls named in gates block until the gate
// channel is closed.
type fakeMedia struct {
	mu    sync.Mutex
	calls []string
	gates map[string]chan struct{}
	fail  map[string]error

	onCandidate func(webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
	onTrack     func(*webrtc.TrackRemote)
}

func (m *fakeMedia) record(call string) error {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	name, _, _ := strings.Cut(call, ":")
	gate := m.gates[name]
	err := m.fail[name]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (m *fakeMedia) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *fakeMedia) count(name string) int {
	n := 0
	for _, call := range m.Calls() {
		if call == name || strings.HasPrefix(call, name+":") {
			n++
		}
	}
	return n
}

func (m *fakeMedia) PrepareReceiveOnly() error { return m.record("prepare") }
func (m *fakeMedia) AddTrack(t webrtc.TrackLocal) error {
	return m.record("add-track:" + t.Kind().String())
}
func (m *fakeMedia) ReplaceTrack(t webrtc.TrackLocal) error {
	return m.record("replace-track:" + t.Kind().String())
}
func (m *fakeMedia) ApplyQuality(q quality.Quality) error {
	return m.record("quality:" + q.Profile.Name)
}
func (m *fakeMedia) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, m.record("offer")
}
func (m *fakeMedia) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, m.record("answer")
}
func (m *fakeMedia) SetLocalDescription(d webrtc.SessionDescription) error {
	return m.record("local:" + d.Type.String())
}
func (m *fakeMedia) SetRemoteDescription(d webrtc.SessionDescription) error {
	return m.record("remote:" + d.Type.String())
}
func (m *fakeMedia) AddICECandidate(c webrtc.ICECandidateInit) error {
	return m.record("candidate:" + c.Candidate)
}
func (m *fakeMedia) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	m.mu.Lock()
	m.onCandidate = fn
	m.mu.Unlock()
}
func (m *fakeMedia) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}
func (m *fakeMedia) OnTrack(fn func(*webrtc.TrackRemote)) {
	m.mu.Lock()
	m.onTrack = fn
	m.mu.Unlock()
}
func (m *fakeMedia) Close() error { return m.record("close") }

func (m *fakeMedia) setState(s webrtc.PeerConnectionState) {
	m.mu.Lock()
	fn := m.onState
	m.mu.Unlock()
	fn(s)
}

func (m *fakeMedia) emitCandidate(c string) {
	m.mu.Lock()
	fn := m.onCandidate
	m.mu.Unlock()
	fn(webrtc.ICECandidateInit{Candidate: c})
}

type fakeFactory struct {
	mu        sync.Mutex
	sessions  []*fakeMedia
	configure func(*fakeMedia)
}

func (f *fakeFactory) NewSession() (MediaSession, error) {
	m := &fakeMedia{gates: map[string]chan struct{}{}, fail: map[string]error{}}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configure != nil {
		f.configure(m)
	}
	f.sessions = append(f.sessions, m)
	return m, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) session(i int) *fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []*protocol.Message
	err  error
}

func (s *fakeSignaler) Send(msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSignaler) messages() []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.Message(nil), s.sent...)
}

// signals returns the decoded data of every signal sent so far.
func (s *fakeSignaler) signals(t *testing.T) []*protocol.SignalData {
	t.Helper()
	var out []*protocol.SignalData
	for _, msg := range s.messages() {
		if msg.Type != protocol.TypeSignal {
			continue
		}
		data, err := msg.Signal()
		if err != nil {
			t.Fatalf("decode sent signal: %v", err)
		}
		out = append(out, data)
	}
	return out
}

type fakeSource struct {
	mu          sync.Mutex
	tracks      []webrtc.TrackLocal
	started     bool
	closed      bool
	constrained []string
}

func newFakeSource(t *testing.T, id string) *fakeSource {
	t.Helper()
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", id)
	if err != nil {
		t.Fatalf("video track: %v", err)
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", id)
	if err != nil {
		t.Fatalf("audio track: %v", err)
	}
	return &fakeSource{tracks: []webrtc.TrackLocal{video, audio}}
}

func (s *fakeSource) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *fakeSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) Constrain(q quality.Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constrained = append(s.constrained, q.Profile.Name)
}

func (s *fakeSource) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type statusLog struct {
	mu       sync.Mutex
	statuses []Status
}

func (l *statusLog) add(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *statusLog) has(kind Kind, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.statuses {
		if s.Kind == kind && strings.Contains(s.Message, substr) {
			return true
		}
	}
	return false
}

type fixture struct {
	t        *testing.T
	coord    *Coordinator
	factory  *fakeFactory
	signaler *fakeSignaler
	log      *statusLog
}

func newFixture(t *testing.T, role string) *fixture {
	t.Helper()
	f := &fixture{t: t, factory: &fakeFactory{}, signaler: &fakeSignaler{}, log: &statusLog{}}
	coord, err := New(Config{
		Role:     role,
		RoomID:   "room1",
		ClientID: role + "-self",
		Media:    f.factory,
		Signaler: f.signaler,
		OnStatus: f.log.add,
		Logger:   quiet,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.coord = coord

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

// sync waits until the loop has processed everything posted before it.
func (f *fixture) sync() {
	f.coord.call(func() error { return nil })
}

func (f *fixture) offerFrom(peer string) {
	f.coord.HandleSignal(&protocol.SignalData{
		From:  peer,
		Offer: &protocol.SessionDescription{Type: "offer", SDP: "v=0"},
	})
}

func (f *fixture) answerFrom(peer, to string) {
	f.coord.HandleSignal(&protocol.SignalData{
		From:   peer,
		To:     to,
		Answer: &protocol.SessionDescription{Type: "answer", SDP: "v=0"},
	})
}

func (f *fixture) candidateFrom(peer, to, cand string) {
	f.coord.HandleSignal(&protocol.SignalData{
		From:      peer,
		To:        to,
		Candidate: &protocol.Candidate{Candidate: cand},
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sameCalls(got, want []string) error {
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("calls = %v\nwant    %v", got, want)
	}
	return nil
}
