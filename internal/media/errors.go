package media

import (
	"fmt"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

// wrap marks err as a transport failure of op.
func wrap(op string, err error) error {
	return protocol.NewOpError(op, fmt.Errorf("%w: %v", protocol.ErrTransport, err))
}
