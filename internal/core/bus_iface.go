//go:generate go run go.uber.org/mock/mockgen -source=bus_iface.go -destination=mocks/mock_bus.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/Lobby/internal/domain"
)

// ChannelBus distributes envelopes per channel topic.
// Delivery is at-most-once per subscriber, ordered per topic and not durable.
type ChannelBus interface {
	Publish(topic domain.ChannelID, env domain.Envelope) error
	Subscribe(topic domain.ChannelID) (Subscription, error)
	Close() error
}

// Subscription is one subscriber's view of a topic.
type Subscription interface {
	// Poll returns the next application envelope, skipping subscription
	// control frames. ok is false when ctx ends before one is available.
	Poll(ctx context.Context) (env domain.Envelope, ok bool, err error)
	Close()
}
