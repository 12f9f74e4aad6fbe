package signal

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

type opener func(channel domain.ChannelID, user domain.UserID) (core.Subscription, error)

// HandleCreate serves a connection whose user creates and owns channel.
func (ctl *SignalWSController) HandleCreate(ctx context.Context, c *gin.Context, channel domain.ChannelID, user domain.UserID) {
	ctl.serve(ctx, c, channel, user, ctl.Coord.CreateChannel)
}

// HandleJoin serves a connection whose user asks to join channel.
func (ctl *SignalWSController) HandleJoin(ctx context.Context, c *gin.Context, channel domain.ChannelID, user domain.UserID) {
	ctl.serve(ctx, c, channel, user, ctl.Coord.JoinChannel)
}

func (ctl *SignalWSController) serve(parent context.Context, c *gin.Context, channel domain.ChannelID, user domain.UserID, open opener) {
	logger := log.With().
		Str("module", "signal").
		Str("channel", string(channel)).
		Str("user", string(user)).
		Str("client_token", c.GetString("client_token")).
		Logger()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := newWSSignalConn(ws, ctl.Opts.SendBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ctl.writePump(conn)
	}()
	defer func() {
		conn.Close()
		select {
		case <-writerDone:
		case <-time.After(ctl.Opts.WriteWait):
			_ = ws.Close()
		}
	}()

	sub, err := open(channel, user)
	if err != nil {
		if domain.IsSessionError(err) {
			logger.Info().Err(err).Msg("session refused")
			ctl.sendJSON(conn, domain.NewException(channel, user, err))
			return
		}
		logger.Error().Err(err).Msg("session open failed")
		return
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	sid := core.SessionID(uuid.NewString())
	ctl.Registry.Bind(sid, channel, user, cancel)
	defer ctl.Registry.Unbind(sid)

	router := &app.Router{
		Channel:      channel,
		User:         user,
		Store:        ctl.Coord.Store,
		Sub:          sub,
		Conn:         conn,
		Policy:       ctl.Coord.Policy,
		PollInterval: ctl.Opts.PollInterval,
	}
	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		if err := router.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("router stopped")
		}
	}()

	finished := make(chan struct{})
	go ctl.endOnCancel(ctx, finished, conn, channel, user)

	err = ctl.readLoop(conn, channel, user)
	close(finished)
	logger.Info().Err(err).Str("sid", string(sid)).Msg("read loop ended")

	if err := ctl.Coord.Leave(channel, user); err != nil {
		logger.Warn().Err(err).Msg("leave announcement")
	}
	if err := ctl.Coord.Release(channel, user); err != nil {
		logger.Error().Err(err).Msg("member cleanup")
	}
	ctl.Limiter.Forget(channel, user)
	cancel()
	<-routerDone
}

// endOnCancel tells the client its session ended when ctx is cancelled from
// outside (registry or shutdown) and starts the close handshake.
func (ctl *SignalWSController) endOnCancel(ctx context.Context, finished <-chan struct{}, conn *wsSignalConn, channel domain.ChannelID, user domain.UserID) {
	select {
	case <-finished:
	case <-ctx.Done():
		ctl.sendJSON(conn, domain.NewException(channel, user, domain.NewSessionError(domain.KindSessionEnded, channel)))
		conn.Close()
	}
}
