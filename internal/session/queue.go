package session

import "github.com/pion/webrtc/v4"

const (
	// maxPendingCandidates bounds the candidates held for a peer whose
	// remote description has not been applied yet.
	maxPendingCandidates = 128

	// maxPendingPeers bounds how many peers may hold queued candidates at
	// once. Past it the oldest queue is evicted.
	maxPendingPeers = 32
)

// candidateQueue is a bounded FIFO. When full, the oldest entry is dropped.
type candidateQueue struct {
	items   []webrtc.ICECandidateInit
	dropped int
	seq     uint64
}

// push appends c and reports whether an older candidate had to be dropped.
func (q *candidateQueue) push(c webrtc.ICECandidateInit) bool {
	overflow := len(q.items) >= maxPendingCandidates
	if overflow {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, c)
	return overflow
}

// drain returns the queued candidates in arrival order and empties q.
func (q *candidateQueue) drain() []webrtc.ICECandidateInit {
	items := q.items
	q.items = nil
	return items
}
