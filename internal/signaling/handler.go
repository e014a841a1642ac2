package signaling

import (
	"log/slog"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

// Dispatcher receives decoded server messages. Implementations must not
// block for long; the handler delivers messages one at a time in arrival
// order.
type Dispatcher interface {
	HandleJoined(role, roomID string, hostAvailable bool)
	HandleHostAvailable()
	HandleViewerJoined()
	HandleSignal(data *protocol.SignalData)
	HandleBroadcastEnded()
	HandleServerError(message string)
}

// Handler routes incoming signaling messages to a Dispatcher.
type Handler struct {
	incoming   <-chan *protocol.Message
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewHandler creates a handler reading from incoming, usually
// Client.Incoming().
func NewHandler(incoming <-chan *protocol.Message, d Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{incoming: incoming, dispatcher: d, logger: logger}
}

// Start dispatches messages until incoming is closed.
func (h *Handler) Start() {
	for msg := range h.incoming {
		h.Dispatch(msg)
	}
}

// Dispatch routes a single message.
func (h *Handler) Dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoined:
		h.dispatcher.HandleJoined(msg.Role, msg.RoomID, msg.HostAvailable != nil && *msg.HostAvailable)

	case protocol.TypeHostAvailable:
		h.dispatcher.HandleHostAvailable()

	case protocol.TypeViewerJoined:
		h.dispatcher.HandleViewerJoined()

	case protocol.TypeSignal:
		data, err := msg.Signal()
		if err != nil {
			h.logger.Warn("dropping malformed signal", "error", err)
			return
		}
		h.dispatcher.HandleSignal(data)

	case protocol.TypeBroadcastEnded:
		h.dispatcher.HandleBroadcastEnded()

	case protocol.TypeError:
		message := msg.Message
		if message == "" {
			message = "Unknown error from server"
		}
		h.dispatcher.HandleServerError(message)

	default:
		h.logger.Debug("ignoring unknown message type", "type", msg.Type)
	}
}
