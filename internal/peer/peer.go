// Package peer defines the minimal recipient interface the Dealer and
// Broker route outbound messages to, keeping them decoupled from the
// concrete session/transport machinery that implements delivery.
package peer

import (
	"context"

	"github.com/tenzoki/wampcore/internal/wampmsg"
)

// Peer is a routable endpoint: a session attached to a realm. The Dealer
// and Broker never hold a transport or serializer directly — only this
// interface — so they can be exercised with fakes in tests and so the
// realm/router layer is the sole owner of real I/O.
type Peer interface {
	SessionID() uint64
	AuthID() string
	AuthRole() string
	// Send delivers msg to this peer. It may block: the server's session
	// adapter writes to the transport on the calling goroutine, so a slow
	// transport delays the caller until the write completes or fails. The
	// Broker therefore sends each EVENT of a fan-out on its own goroutine.
	Send(ctx context.Context, msg wampmsg.Message) error
}
