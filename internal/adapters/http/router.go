package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/adapters/signal"
	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/domain"
)

const clientTokenKey = "client_token"

// ClientTokenMiddleware keeps a per-browser token in the cookie session.
// It only tags logs; identity comes from the request path.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type sessionParams struct {
	UserID    string `uri:"user_id" binding:"required,userid"`
	ChannelID string `uri:"channel_id" binding:"required,channelid"`
}

type channelParams struct {
	ChannelID string `uri:"channel_id" binding:"required,channelid"`
}

func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return domain.ValidateUserID(domain.UserID(fl.Field().String())) == nil
	})
	_ = v.RegisterValidation("channelid", func(fl validator.FieldLevel) bool {
		return domain.ValidateChannelID(domain.ChannelID(fl.Field().String())) == nil
	})
}

type Options struct {
	Mode   string
	Secret string
}

func SetupRouter(ctx context.Context, opts Options, ctrl *signal.SignalWSController) *gin.Engine {
	if opts.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidators()

	r := gin.New()
	if opts.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(opts.Secret))
	r.Use(sessions.Sessions("LobbySessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Str("mode", opts.Mode).Msg("router setup")

	ws := r.Group("/ws")
	ws.GET("/create_session/:user_id/:channel_id", func(c *gin.Context) {
		p, ok := bindSession(c)
		if !ok {
			return
		}
		log.Info().Str("module", "adapters.http").Str("channel", p.ChannelID).Str("user", p.UserID).Msg("create session endpoint hit")
		ctrl.HandleCreate(ctx, c, domain.ChannelID(p.ChannelID), domain.UserID(p.UserID))
	})
	ws.GET("/manage_session/:user_id/:channel_id", func(c *gin.Context) {
		p, ok := bindSession(c)
		if !ok {
			return
		}
		log.Info().Str("module", "adapters.http").Str("channel", p.ChannelID).Str("user", p.UserID).Msg("join session endpoint hit")
		ctrl.HandleJoin(ctx, c, domain.ChannelID(p.ChannelID), domain.UserID(p.UserID))
	})

	api := r.Group("/api")

	// GET /api/health
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// GET /api/channels/:channel_id: members and live connection count
	api.GET("/channels/:channel_id", func(c *gin.Context) {
		var p channelParams
		if err := c.ShouldBindUri(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
			return
		}
		channel := domain.ChannelID(p.ChannelID)
		members, err := ctrl.Coord.Store.Members(channel)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("channel", p.ChannelID).Msg("list members")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		if len(members) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrChannelNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, channelView(channel, members, ctrl.Registry))
	})

	return r
}

func bindSession(c *gin.Context) (sessionParams, bool) {
	var p sessionParams
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user or channel id"})
		return p, false
	}
	return p, true
}

type channelResponse struct {
	ChannelID   domain.ChannelID `json:"channel_id"`
	Members     []domain.Member  `json:"members"`
	Connections int              `json:"connections"`
}

func channelView(channel domain.ChannelID, members []domain.Member, reg *app.Registry) channelResponse {
	return channelResponse{
		ChannelID:   channel,
		Members:     members,
		Connections: reg.ConnectionsIn(channel),
	}
}
