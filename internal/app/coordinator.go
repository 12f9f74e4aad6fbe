package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// Coordinator owns the create/join/dispatch protocol. All membership truth
// lives in Store; Bus carries the fan-out.
type Coordinator struct {
	Store  core.MembershipStore
	Bus    core.ChannelBus
	Policy Policy
}

func NewCoordinator(store core.MembershipStore, bus core.ChannelBus, policy Policy) *Coordinator {
	return &Coordinator{Store: store, Bus: bus, Policy: policy}
}

// CreateChannel registers user as the channel owner and subscribes it.
// The caller is responsible for running a Router on the subscription.
func (c *Coordinator) CreateChannel(channel domain.ChannelID, user domain.UserID) (core.Subscription, error) {
	exists, err := c.Store.Exists(channel)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.NewSessionError(domain.KindDuplicateChannel, channel)
	}
	// Two creators may both pass the existence check; only one claim wins.
	claimed, err := c.Store.ClaimChannel(channel, user, domain.NewOwnerState())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domain.NewSessionError(domain.KindDuplicateChannel, channel)
	}
	sub, err := c.Bus.Subscribe(channel)
	if err != nil {
		c.rollback(channel, user)
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.Info().Str("module", "app.coordinator").Str("channel", string(channel)).Str("user", string(user)).Msg("channel created")
	return sub, nil
}

// JoinChannel registers user as an unapproved player, announces the join
// request to the channel and subscribes the caller.
func (c *Coordinator) JoinChannel(channel domain.ChannelID, user domain.UserID) (core.Subscription, error) {
	exists, err := c.Store.Exists(channel)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NewSessionError(domain.KindChannelNotFound, channel)
	}
	inserted, err := c.Store.InsertIfAbsent(channel, user, domain.NewPlayerState())
	if err != nil {
		return nil, err
	}
	if !inserted {
		log.Warn().Str("module", "app.coordinator").Str("channel", string(channel)).Str("user", string(user)).Msg("join: already a member, keeping existing entry")
	}
	if err := c.Bus.Publish(channel, domain.NewJoinRequest(channel, user)); err != nil {
		if inserted {
			c.rollback(channel, user)
		}
		return nil, fmt.Errorf("publish join request %s: %w", channel, err)
	}
	sub, err := c.Bus.Subscribe(channel)
	if err != nil {
		if inserted {
			c.rollback(channel, user)
		}
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.Info().Str("module", "app.coordinator").Str("channel", string(channel)).Str("user", string(user)).Msg("join requested")
	return sub, nil
}

// Dispatch publishes an envelope received from sender's connection.
// Envelopes from users that are no longer members are dropped silently.
func (c *Coordinator) Dispatch(channel domain.ChannelID, sender domain.UserID, env domain.Envelope) error {
	state, ok, err := c.Store.Get(channel, sender)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("module", "app.coordinator").Str("channel", string(channel)).Str("user", string(sender)).Msg("dispatch: sender is not a member, dropped")
		return nil
	}

	// Identity comes from the connection, never from the payload; the rest of
	// the envelope is published as received.
	env.SenderUserID = sender
	env.ChannelID = channel
	env.SenderRole = state.Role
	if env.MessageType == domain.MessageSend {
		env = env.WithApproval(state.Role, state.Approved)
	}

	if env.MessageType == domain.MessageAcceptRequest && state.IsOwner() {
		approved, err := c.approve(channel, sender, env.Recipient())
		if err != nil {
			return err
		}
		if !approved {
			log.Debug().Str("module", "app.coordinator").Str("channel", string(channel)).Str("recipient", string(env.Recipient())).Msg("accept: recipient is not a member, dropped")
			return nil
		}
	}

	if err := c.Bus.Publish(channel, env); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}

	switch env.MessageType {
	case domain.MessageRemoveUser:
		return c.release(channel, removalTarget(sender, state, env))
	case domain.MessageDeclineRequest:
		if state.IsOwner() && c.Policy.DeclineRemovesMember && env.Recipient() != "" {
			return c.release(channel, env.Recipient())
		}
	case domain.MessageRequest, domain.MessageSend, domain.MessageAcceptRequest, domain.MessageExceptionOccurred:
	}
	return nil
}

// removalTarget is the recipient for an owner-initiated removal and the
// sender itself otherwise. Players can only remove themselves.
func removalTarget(sender domain.UserID, state domain.MemberState, env domain.Envelope) domain.UserID {
	if state.IsOwner() && env.Recipient() != "" {
		return env.Recipient()
	}
	return sender
}

func (c *Coordinator) approve(channel domain.ChannelID, sender, recipient domain.UserID) (bool, error) {
	if recipient == "" {
		return false, nil
	}
	target, ok, err := c.Store.Get(channel, recipient)
	if err != nil || !ok {
		return false, err
	}
	key := recipient
	if c.Policy.ApprovalKey == ApproveSender {
		key = sender
	}
	if err := c.Store.Set(channel, key, target.Approve()); err != nil {
		return false, err
	}
	log.Info().Str("module", "app.coordinator").Str("channel", string(channel)).Str("recipient", string(recipient)).Str("key", string(key)).Msg("request accepted")
	return true, nil
}

// Leave announces that user left the channel. Peers' routers forward it.
// Nothing is published when the entry is already gone: the member was
// removed, or removed itself, and that was announced then.
func (c *Coordinator) Leave(channel domain.ChannelID, user domain.UserID) error {
	state, ok, err := c.Store.Get(channel, user)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("module", "app.coordinator").Str("channel", string(channel)).Str("user", string(user)).Msg("leave: already removed, not announced")
		return nil
	}
	env := domain.NewRemoveUser(channel, user, state.Role, fmt.Sprintf("User: %s left the channel", user))
	if err := c.Bus.Publish(channel, env); err != nil {
		return fmt.Errorf("publish leave %s: %w", channel, err)
	}
	return nil
}

// Release deletes the user's member entry, which terminates its router.
// Releasing the owner dissolves the channel: every entry goes, so the
// remaining routers terminate and the channel id can be created again.
func (c *Coordinator) Release(channel domain.ChannelID, user domain.UserID) error {
	return c.release(channel, user)
}

func (c *Coordinator) release(channel domain.ChannelID, user domain.UserID) error {
	owner, ok, err := c.Store.Owner(channel)
	if err != nil {
		return err
	}
	if ok && owner == user {
		if err := c.Store.DeleteChannel(channel); err != nil {
			return err
		}
		log.Info().Str("module", "app.coordinator").Str("channel", string(channel)).Str("owner", string(user)).Msg("owner left, channel dissolved")
		return nil
	}
	if err := c.Store.Delete(channel, user); err != nil {
		return err
	}
	log.Info().Str("module", "app.coordinator").Str("channel", string(channel)).Str("user", string(user)).Msg("member released")
	return nil
}

func (c *Coordinator) rollback(channel domain.ChannelID, user domain.UserID) {
	if err := c.release(channel, user); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("channel", string(channel)).Str("user", string(user)).Msg("rollback failed")
	}
}
