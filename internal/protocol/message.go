package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Message is the envelope for every frame exchanged on the signaling channel.
type Message struct {
	Type          string          `json:"type"`
	Role          string          `json:"role,omitempty"`
	RoomID        string          `json:"roomId,omitempty"`
	ClientID      string          `json:"clientId,omitempty"`
	HostAvailable *bool           `json:"hostAvailable,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// Message type constants.
const (
	TypeJoin         = "join"
	TypeSignal       = "signal"
	TypeBroadcastEnd = "broadcast-end"

	TypeJoined         = "joined"
	TypeHostAvailable  = "host-available"
	TypeViewerJoined   = "viewer-joined"
	TypeBroadcastEnded = "broadcast-ended"
	TypeError          = "error"
)

// Wire roles. The broadcaster is called "host" on the wire, subscribers "viewer".
const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

// Error replies sent back to the originating connection.
const (
	ReasonInvalidJSON   = "Invalid JSON"
	ReasonInvalidJoin   = "Invalid join payload"
	ReasonAlreadyJoined = "Connection already joined a different room or role"
	ReasonHostConflict  = "Room already has a host"
	ReasonJoinFirst     = "Join a room first"
	ReasonRoomNotFound  = "Room not found"
	ReasonInvalidSignal = "Invalid signal payload"
	ReasonUnknownType   = "Unknown message type"
)

// ParseRole maps a wire or glossary role name to its canonical wire form.
func ParseRole(role string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleHost, "broadcaster":
		return RoleHost, true
	case RoleViewer, "subscriber":
		return RoleViewer, true
	}
	return "", false
}

// SessionDescription is an SDP offer or answer as browsers serialize it.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func DescriptionFromPion(desc webrtc.SessionDescription) *SessionDescription {
	return &SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func (s SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, WrapError("parse description", ErrProtocol, fmt.Sprintf("unsupported sdp type %q", s.Type))
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

// Candidate is a trickled ICE candidate in RTCIceCandidateInit form.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) *Candidate {
	return &Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// SignalData is the payload of a signal message. The server only reads To;
// everything else is relayed untouched.
type SignalData struct {
	From      string              `json:"from,omitempty"`
	To        string              `json:"to,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *Candidate          `json:"candidate,omitempty"`
}

func NewJoin(role, roomID, clientID string) *Message {
	return &Message{Type: TypeJoin, Role: role, RoomID: roomID, ClientID: clientID}
}

func NewJoined(role, roomID string, hostAvailable *bool) *Message {
	return &Message{Type: TypeJoined, Role: role, RoomID: roomID, HostAvailable: hostAvailable}
}

func NewError(reason string) *Message {
	return &Message{Type: TypeError, Message: reason}
}

func NewSignal(data SignalData) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, NewOpError("encode signal", err)
	}
	return &Message{Type: TypeSignal, Data: raw}, nil
}

// Signal decodes the data field of a signal message.
func (m *Message) Signal() (*SignalData, error) {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return nil, WrapError("decode signal", ErrProtocol, "missing data")
	}
	var data SignalData
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return nil, WrapError("decode signal", ErrProtocol, err.Error())
	}
	return &data, nil
}

// Encode renders a message as a single JSON frame.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Bool returns a pointer for optional boolean fields.
func Bool(v bool) *bool {
	return &v
}
