package session

import "fmt"

// Kind classifies a Status.
type Kind int

const (
	Info Kind = iota
	Warning
	Error
	PeerConnected
	PeerDisconnected
)

func (k Kind) String() string {
	switch k {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case PeerConnected:
		return "peer-connected"
	case PeerDisconnected:
		return "peer-disconnected"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status is a user-facing update from the coordinator.
type Status struct {
	Kind    Kind
	Message string
	PeerID  string
	Err     error
}

// PeerInfo describes one peer session.
type PeerInfo struct {
	ID    string
	State string
}
