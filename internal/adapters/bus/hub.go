// Package bus is an in-process channel bus. A single Hub multiplexes every
// topic; each subscriber gets its own unbounded frame queue.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

var (
	ErrBusClosed          = errors.New("bus closed")
	ErrSubscriptionClosed = errors.New("subscription closed")
)

var _ core.ChannelBus = (*Hub)(nil)

type frameKind int

const (
	frameSubscribe frameKind = iota
	frameUnsubscribe
	frameMessage
)

// frame is what travels through a subscriber queue. Subscribe and
// unsubscribe acknowledgements share the queue with application payloads.
type frame struct {
	kind    frameKind
	payload []byte
}

type Hub struct {
	mu     sync.Mutex
	topics map[domain.ChannelID]map[string]*subscription
	closed bool
}

func NewHub() *Hub {
	return &Hub{topics: make(map[domain.ChannelID]map[string]*subscription)}
}

// Publish encodes once and fans the frame out to the topic's current
// subscribers. The hub lock keeps one publish order for every subscriber.
func (h *Hub) Publish(topic domain.ChannelID, env domain.Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrBusClosed
	}
	subs := h.topics[topic]
	for _, sub := range subs {
		sub.push(frame{kind: frameMessage, payload: payload})
	}
	log.Debug().
		Str("module", "adapters.bus").
		Str("channel", string(topic)).
		Str("type", env.MessageType.String()).
		Int("subscribers", len(subs)).
		Msg("published")
	return nil
}

func (h *Hub) Subscribe(topic domain.ChannelID) (core.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrBusClosed
	}
	sub := &subscription{
		id:     uuid.NewString(),
		topic:  topic,
		hub:    h,
		frames: queue.New(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*subscription)
		h.topics[topic] = subs
	}
	subs[sub.id] = sub
	sub.push(frame{kind: frameSubscribe})
	log.Debug().Str("module", "adapters.bus").Str("channel", string(topic)).Str("sub", sub.id).Msg("subscribed")
	return sub, nil
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	log.Debug().Str("module", "adapters.bus").Str("channel", string(sub.topic)).Str("sub", sub.id).Msg("unsubscribed")
}

// SubscriberCount is the number of live subscriptions on topic.
func (h *Hub) SubscriberCount(topic domain.ChannelID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Close stops the hub; pending Polls return ErrSubscriptionClosed once drained.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for topic, subs := range h.topics {
		for _, sub := range subs {
			sub.terminate()
		}
		delete(h.topics, topic)
	}
	return nil
}

type subscription struct {
	id    string
	topic domain.ChannelID
	hub   *Hub

	mu     sync.Mutex
	frames *queue.Queue

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) push(f frame) {
	s.mu.Lock()
	s.frames.Add(f)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) pop() (frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames.Length() == 0 {
		return frame{}, false
	}
	return s.frames.Remove().(frame), true
}

func (s *subscription) Poll(ctx context.Context) (domain.Envelope, bool, error) {
	for {
		for {
			f, ok := s.pop()
			if !ok {
				break
			}
			if f.kind != frameMessage {
				continue
			}
			env, err := domain.DecodeEnvelope(f.payload)
			if err != nil {
				log.Warn().Err(err).Str("module", "adapters.bus").Str("channel", string(s.topic)).Msg("dropping undecodable frame")
				continue
			}
			return env, true, nil
		}
		select {
		case <-ctx.Done():
			return domain.Envelope{}, false, nil
		case <-s.done:
			return domain.Envelope{}, false, ErrSubscriptionClosed
		case <-s.notify:
		}
	}
}

func (s *subscription) Close() {
	s.hub.unsubscribe(s)
	s.push(frame{kind: frameUnsubscribe})
	s.terminate()
}

func (s *subscription) terminate() {
	s.once.Do(func() { close(s.done) })
}
