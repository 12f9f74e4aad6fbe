package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// Router is the per-connection filter between the channel bus and one client.
// It stops when its member entry disappears or ctx is cancelled.
type Router struct {
	Channel domain.ChannelID
	User    domain.UserID
	Store   core.MembershipStore
	Sub     core.Subscription
	Conn    core.Connection
	Policy  Policy
	// PollInterval bounds a single Poll so that membership is rechecked on a
	// quiet channel. Zero waits for the next envelope.
	PollInterval time.Duration
}

// Run blocks until the router terminates. It closes the subscription but
// never the connection, except under the CloseConnection backpressure policy.
func (r *Router) Run(ctx context.Context) error {
	defer r.Sub.Close()
	logger := log.With().Str("module", "app.router").Str("channel", string(r.Channel)).Str("user", string(r.User)).Logger()
	logger.Debug().Msg("router started")

	var last domain.MemberState
	member := false
	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("router cancelled")
			return nil
		}
		self, ok, err := r.Store.Get(r.Channel, r.User)
		if err != nil {
			logger.Error().Err(err).Msg("router member lookup")
			return err
		}
		if !ok {
			if member {
				r.drainRemovals(last)
			}
			logger.Info().Msg("member entry gone, router terminated")
			return nil
		}
		last, member = self, true

		env, ok, err := r.poll(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("router poll")
			return err
		}
		if !ok || !ShouldForward(env, r.User, self) {
			continue
		}
		if !r.deliver(env) {
			return nil
		}
	}
}

func (r *Router) poll(ctx context.Context) (domain.Envelope, bool, error) {
	if r.PollInterval <= 0 {
		return r.Sub.Poll(ctx)
	}
	pollCtx, cancel := context.WithTimeout(ctx, r.PollInterval)
	defer cancel()
	return r.Sub.Poll(pollCtx)
}

// drainRemovals forwards RemoveUser envelopes already queued when the entry
// disappeared, so members of a dissolved channel still see the owner leave.
func (r *Router) drainRemovals(last domain.MemberState) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for {
		env, ok, err := r.Sub.Poll(ctx)
		if err != nil || !ok {
			return
		}
		if env.MessageType != domain.MessageRemoveUser || !ShouldForward(env, r.User, last) {
			continue
		}
		if !r.deliver(env) {
			return
		}
	}
}

// deliver reports false when the router must stop.
func (r *Router) deliver(env domain.Envelope) bool {
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode envelope")
		return true
	}
	if err := r.Conn.TrySend(frame); err != nil {
		switch r.Policy.OnBackPressure() {
		case CloseConnection:
			log.Warn().Err(err).Str("module", "app.router").Str("channel", string(r.Channel)).Str("user", string(r.User)).Msg("slow connection, closing")
			r.Conn.Close()
			return false
		case DropEnvelope:
			log.Warn().Err(err).Str("module", "app.router").Str("channel", string(r.Channel)).Str("user", string(r.User)).Str("type", env.MessageType.String()).Msg("envelope dropped")
		}
	}
	return true
}

// ShouldForward decides whether env reaches the connection of self, given
// self's current member state.
func ShouldForward(env domain.Envelope, self domain.UserID, state domain.MemberState) bool {
	switch env.MessageType {
	case domain.MessageRemoveUser:
		return env.SenderUserID != self
	case domain.MessageRequest:
		return state.Role == domain.RoleOwner
	case domain.MessageAcceptRequest, domain.MessageDeclineRequest:
		return env.Recipient() == self
	case domain.MessageSend:
		return env.SenderUserID != self && env.Approved()
	case domain.MessageExceptionOccurred:
		return false
	}
	return false
}
