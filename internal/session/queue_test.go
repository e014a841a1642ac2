package session

import (
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

func TestCandidateQueueDropsOldest(t *testing.T) {
	var q candidateQueue
	overflowed := 0
	for i := 0; i < maxPendingCandidates+2; i++ {
		if q.push(webrtc.ICECandidateInit{Candidate: fmt.Sprintf("c%d", i)}) {
			overflowed++
		}
	}
	if overflowed != 2 || q.dropped != 2 {
		t.Fatalf("overflowed = %d, dropped = %d; want 2, 2", overflowed, q.dropped)
	}

	items := q.drain()
	if len(items) != maxPendingCandidates {
		t.Fatalf("drained %d, want %d", len(items), maxPendingCandidates)
	}
	if items[0].Candidate != "c2" || items[len(items)-1].Candidate != fmt.Sprintf("c%d", maxPendingCandidates+1) {
		t.Fatalf("order = %s .. %s", items[0].Candidate, items[len(items)-1].Candidate)
	}
	if len(q.drain()) != 0 {
		t.Fatal("queue not empty after drain")
	}
}

func TestPendingQueuesAreBoundedPerPeer(t *testing.T) {
	f := newFixture(t, protocol.RoleHost)
	startCapture(t, f)

	// Viewers that trickle candidates but never offer.
	for i := 0; i <= maxPendingPeers; i++ {
		f.candidateFrom(fmt.Sprintf("v%d", i), "", "c")
	}

	var (
		queued    int
		hasOldest bool
		hasNewest bool
	)
	f.coord.call(func() error {
		queued = len(f.coord.pending)
		_, hasOldest = f.coord.pending["v0"]
		_, hasNewest = f.coord.pending[fmt.Sprintf("v%d", maxPendingPeers)]
		return nil
	})
	if queued != maxPendingPeers {
		t.Fatalf("pending queues = %d, want %d", queued, maxPendingPeers)
	}
	if hasOldest || !hasNewest {
		t.Fatalf("oldest kept = %v, newest kept = %v", hasOldest, hasNewest)
	}

	// A later offer from the evicted viewer still negotiates, without the
	// evicted candidate.
	f.offerFrom("v0")
	eventually(t, "answer", func() bool { return len(f.signaler.signals(t)) == 1 })
	if n := f.factory.session(0).count("candidate"); n != 0 {
		t.Fatalf("evicted candidate applied %d times", n)
	}
}
