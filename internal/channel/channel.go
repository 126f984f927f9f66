package channel

import (
	"context"
	"errors"

	"github.com/sketchdash/client/internal/event"
)

// ErrSubscribeFailed means the channel never reached the subscribed state.
// The caller stays disconnected and may retry manually.
var ErrSubscribeFailed = errors.New("channel subscription failed")

// PresenceEventType mirrors the platform's presence callbacks.
type PresenceEventType string

const (
	PresenceSync  PresenceEventType = "sync"
	PresenceJoin  PresenceEventType = "join"
	PresenceLeave PresenceEventType = "leave"
)

// Inbound is one ordered item on a subscription's inbox: either a presence
// event or a broadcast envelope.
type Inbound interface{ inbound() }

// Presence reports connection-tracking changes on the topic. For a sync the
// Keys slice carries the full current member set; join/leave carry Key.
type Presence struct {
	Type PresenceEventType
	Key  string
	Keys []string
}

// Broadcast wraps a fire-and-forget message from some subscriber.
type Broadcast struct {
	Env event.Envelope
}

func (*Presence) inbound()  {}
func (*Broadcast) inbound() {}

// Subscription is one client's attachment to a room topic. All inbound
// traffic is delivered in arrival order on a single channel; the feed closes
// on Unsubscribe or transport loss.
type Subscription interface {
	Recv() <-chan Inbound
	// Track registers the local presence key as connected. Peers observe a
	// presence join.
	Track(ctx context.Context) error
	Send(ctx context.Context, env event.Envelope) error
	Unsubscribe(ctx context.Context) error
}

// Channel opens per-topic subscriptions. Implementations: Redis pub/sub
// (default) and the websocket gateway.
type Channel interface {
	Subscribe(ctx context.Context, topic, presenceKey string) (Subscription, error)
}
