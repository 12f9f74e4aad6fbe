package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Lobby/internal/adapters/bus"
	"github.com/dkeye/Lobby/internal/adapters/signal"
	"github.com/dkeye/Lobby/internal/adapters/store"
	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/domain"
)

type testServer struct {
	srv    *httptest.Server
	coord  *app.Coordinator
	reg    *app.Registry
	cancel context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	hub := bus.NewHub()
	coord := app.NewCoordinator(st, hub, app.DefaultPolicy())
	reg := app.NewRegistry()
	ctrl := signal.NewSignalWSController(coord, reg, signal.NewRateLimiter(0, time.Second), signal.Options{
		PingPeriod:   time.Second,
		PongWait:     2 * time.Second,
		WriteWait:    time.Second,
		SendBuffer:   16,
		PollInterval: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, Options{Mode: "release", Secret: "test-secret"}, ctrl))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = hub.Close()
		_ = st.Close()
	})
	return &testServer{srv: srv, coord: coord, reg: reg, cancel: cancel}
}

func (s *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) hasMember(channel domain.ChannelID, user domain.UserID) bool {
	_, ok, err := s.coord.Store.Get(channel, user)
	return err == nil && ok
}

func (s *testServer) waitSessions(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.reg.Len() == n }, time.Second, 5*time.Millisecond)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := domain.DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, env domain.Envelope) {
	t.Helper()
	data, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestLobby_EndToEnd(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	owner := s.dial(t, "/ws/create_session/owner/c1")
	s.waitSessions(t, 1)

	p1 := s.dial(t, "/ws/manage_session/p1/c1")
	s.waitSessions(t, 2)

	env := readEnvelope(t, owner)
	req.Equal(domain.MessageRequest, env.MessageType)
	req.Equal(domain.UserID("p1"), env.SenderUserID)

	writeEnvelope(t, owner, domain.Envelope{
		SenderUserID:    "owner",
		MessageType:     domain.MessageAcceptRequest,
		ChannelID:       "c1",
		RecipientUserID: lo.ToPtr(domain.UserID("p1")),
	})
	env = readEnvelope(t, p1)
	req.Equal(domain.MessageAcceptRequest, env.MessageType)
	req.Eventually(func() bool {
		state, _, _ := s.coord.Store.Get("c1", "p1")
		return state.Approved
	}, time.Second, 5*time.Millisecond)

	writeEnvelope(t, p1, domain.Envelope{
		SenderUserID: "p1",
		SenderRole:   domain.RolePlayer,
		MessageType:  domain.MessageSend,
		ChannelID:    "c1",
		Message:      lo.ToPtr("e4"),
	})
	env = readEnvelope(t, owner)
	req.Equal(domain.MessageSend, env.MessageType)
	req.Equal("e4", env.Text())
	req.True(env.Approved())

	res, err := http.Get(s.srv.URL + "/api/channels/c1")
	req.NoError(err)
	defer res.Body.Close()
	req.Equal(http.StatusOK, res.StatusCode)
	var view channelResponse
	req.NoError(json.NewDecoder(res.Body).Decode(&view))
	req.Len(view.Members, 2)
	req.Equal(2, view.Connections)

	// p1 drops: the owner is told and p1's entry goes away.
	req.NoError(p1.Close())
	env = readEnvelope(t, owner)
	req.Equal(domain.MessageRemoveUser, env.MessageType)
	req.Equal(domain.UserID("p1"), env.SenderUserID)
	req.Eventually(func() bool { return !s.hasMember("c1", "p1") }, time.Second, 5*time.Millisecond)
	req.True(s.hasMember("c1", "owner"))
}

func TestLobby_OwnerLeavingDissolvesChannel(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	owner := s.dial(t, "/ws/create_session/owner/c1")
	s.waitSessions(t, 1)
	p1 := s.dial(t, "/ws/manage_session/p1/c1")
	s.waitSessions(t, 2)
	_ = readEnvelope(t, owner)

	req.NoError(owner.Close())
	env := readEnvelope(t, p1)
	req.Equal(domain.MessageRemoveUser, env.MessageType)
	req.Equal(domain.UserID("owner"), env.SenderUserID)
	req.Eventually(func() bool { return !s.hasMember("c1", "p1") }, time.Second, 5*time.Millisecond)

	s.dial(t, "/ws/create_session/newowner/c1")
	req.Eventually(func() bool { return s.hasMember("c1", "newowner") }, time.Second, 5*time.Millisecond)
}

func TestLobby_DuplicateChannel(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	s.dial(t, "/ws/create_session/owner/c1")
	req.Eventually(func() bool { return s.hasMember("c1", "owner") }, time.Second, 5*time.Millisecond)

	second := s.dial(t, "/ws/create_session/owner/c1")
	env := readEnvelope(t, second)
	req.Equal(domain.MessageExceptionOccurred, env.MessageType)
	req.Equal(domain.ErrDuplicateChannel.Error(), env.Text())

	_, _, err := second.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)

	// The failed attempt leaves the owner in place.
	req.True(s.hasMember("c1", "owner"))
}

func TestLobby_JoinMissingChannel(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	conn := s.dial(t, "/ws/manage_session/p1/nowhere")
	env := readEnvelope(t, conn)
	req.Equal(domain.MessageExceptionOccurred, env.MessageType)
	req.Equal(domain.ErrChannelNotFound.Error(), env.Text())
	req.False(s.hasMember("nowhere", "p1"))
}

func TestLobby_MalformedEnvelopeEndsSession(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	owner := s.dial(t, "/ws/create_session/owner/c1")
	s.waitSessions(t, 1)
	p1 := s.dial(t, "/ws/manage_session/p1/c1")
	s.waitSessions(t, 2)
	_ = readEnvelope(t, owner)

	req.NoError(p1.WriteMessage(websocket.TextMessage, []byte(`{"message_type":99}`)))

	env := readEnvelope(t, owner)
	req.Equal(domain.MessageRemoveUser, env.MessageType)
	req.Equal(domain.UserID("p1"), env.SenderUserID)
	req.Eventually(func() bool { return !s.hasMember("c1", "p1") }, time.Second, 5*time.Millisecond)
}

func TestLobby_ShutdownEndsSessions(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	owner := s.dial(t, "/ws/create_session/owner/c1")
	s.waitSessions(t, 1)

	s.cancel()
	env := readEnvelope(t, owner)
	req.Equal(domain.MessageExceptionOccurred, env.MessageType)
	req.Equal(domain.ErrSessionEnded.Error(), env.Text())
	req.Eventually(func() bool { return !s.hasMember("c1", "owner") }, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return s.reg.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRouter_RejectsBadParams(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	long := strings.Repeat("x", domain.MaxUserIDLen+1)
	res, err := http.Get(s.srv.URL + "/ws/create_session/" + long + "/c1")
	req.NoError(err)
	res.Body.Close()
	req.Equal(http.StatusBadRequest, res.StatusCode)

	res, err = http.Get(s.srv.URL + "/api/channels/unknown")
	req.NoError(err)
	res.Body.Close()
	req.Equal(http.StatusNotFound, res.StatusCode)

	res, err = http.Get(s.srv.URL + "/api/health")
	req.NoError(err)
	res.Body.Close()
	req.Equal(http.StatusOK, res.StatusCode)
}
