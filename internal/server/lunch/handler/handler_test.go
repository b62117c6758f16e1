package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alwanly/lunch-match-sync/internal/client/repository"
	"github.com/Alwanly/lunch-match-sync/internal/config"
	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/internal/server/lunch/dto"
	authentication "github.com/Alwanly/lunch-match-sync/pkg/auth"
	"github.com/Alwanly/lunch-match-sync/pkg/database"
	"github.com/Alwanly/lunch-match-sync/pkg/deps"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/middleware"
	"github.com/Alwanly/lunch-match-sync/pkg/pubsub"
	"github.com/Alwanly/lunch-match-sync/pkg/wrapper"
)

type envelope struct {
	Status int                `json:"status"`
	Data   json.RawMessage    `json:"data"`
	Error  *wrapper.ErrorBody `json:"error"`
}

type testServer struct {
	app    *fiber.App
	events <-chan pubsub.Message
}

func newTestServer(t *testing.T, mutate ...func(*config.ServerConfig)) *testServer {
	t.Helper()

	cfg := &config.ServerConfig{
		AdminUsername: "admin",
		AdminPassword: "secret",
		MessageRate:   time.Millisecond,
		MessageBurst:  100,
	}
	for _, m := range mutate {
		m(cfg)
	}

	db, err := database.NewSQLiteDB("")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	t.Cleanup(func() {
		if conn, err := db.DB(); err == nil {
			_ = conn.Close()
		}
	})

	log := logger.NewNop()
	bus := pubsub.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events, err := bus.Subscribe(ctx, config.EventsChannel)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	NewHandler(deps.App{
		Fiber:    app,
		Database: db,
		Logger:   log,
		Middleware: middleware.NewAuthMiddleware(middleware.SetBasicAuth(&authentication.BasicAuthTConfig{
			AdminUsername: cfg.AdminUsername,
			AdminPassword: cfg.AdminPassword,
		})),
		Pub: bus,
	}, cfg)

	return &testServer{app: app, events: events}
}

func (s *testServer) do(t *testing.T, method, path, auth string, body interface{}) (int, envelope) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) createUser(t *testing.T, name string) dto.CreateUserResponse {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/users", adminAuth(), dto.CreateUserRequest{Name: name})
	require.Equal(t, http.StatusCreated, status)

	var u dto.CreateUserResponse
	require.NoError(t, json.Unmarshal(env.Data, &u))
	require.NotEmpty(t, u.Token)
	return u
}

func (s *testServer) nextEvent(t *testing.T) models.Event {
	t.Helper()
	select {
	case msg := <-s.events:
		var ev models.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return models.Event{}
	}
}

func adminAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
}

func bearer(token string) string { return "Bearer " + token }

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Nil(t, env.Error)
}

func TestCreateUser_RequiresAdmin(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/users", "", dto.CreateUserRequest{Name: "Sari"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthorized", env.Error.Code)

	status, _ = s.do(t, http.MethodPost, "/users", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")), dto.CreateUserRequest{Name: "Sari"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodPost, "/users", adminAuth(), dto.CreateUserRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_failed", env.Error.Code)
}

func TestUserRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/matches/current", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", env.Error.Code)

	status, _ = s.do(t, http.MethodGet, "/matches/current", bearer("nope"), nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMatchLifecycle(t *testing.T) {
	s := newTestServer(t)
	a := s.createUser(t, "Ana")
	b := s.createUser(t, "Budi")
	c := s.createUser(t, "Citra")

	yes := true
	for _, u := range []dto.CreateUserResponse{a, b} {
		status, _ := s.do(t, http.MethodPut, "/users/me/status", bearer(u.Token), dto.UpdateStatusRequest{Recruiting: &yes})
		require.Equal(t, http.StatusOK, status)
	}

	status, env := s.do(t, http.MethodGet, "/users/recruiting", bearer(a.Token), nil)
	require.Equal(t, http.StatusOK, status)
	var recruiting []dto.UserResponse
	require.NoError(t, json.Unmarshal(env.Data, &recruiting))
	require.Len(t, recruiting, 1)
	assert.Equal(t, b.ID, recruiting[0].ID)

	// no match yet
	status, env = s.do(t, http.MethodGet, "/matches/current", bearer(a.Token), nil)
	require.Equal(t, http.StatusOK, status)
	var state models.MatchState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.False(t, state.Matched)
	assert.Nil(t, state.MatchID)

	status, env = s.do(t, http.MethodPost, "/likes", bearer(a.Token), dto.LikeRequest{TargetID: b.ID})
	require.Equal(t, http.StatusOK, status)
	var like dto.LikeResponse
	require.NoError(t, json.Unmarshal(env.Data, &like))
	assert.False(t, like.Matched)

	status, env = s.do(t, http.MethodPost, "/likes", bearer(b.Token), dto.LikeRequest{TargetID: a.ID})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &like))
	require.True(t, like.Matched)
	matchID := *like.MatchID

	notified := map[string]bool{}
	for i := 0; i < 2; i++ {
		ev := s.nextEvent(t)
		assert.Equal(t, models.EventMatchFound, ev.Type)
		assert.Equal(t, matchID, ev.MatchID)
		notified[ev.UserID] = true
	}
	assert.Equal(t, map[string]bool{a.ID: true, b.ID: true}, notified)

	status, env = s.do(t, http.MethodGet, "/matches/current", bearer(a.Token), nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.True(t, state.Matched)
	require.NotNil(t, state.MatchID)
	assert.Equal(t, matchID, *state.MatchID)
	require.NotNil(t, state.Partner)
	assert.Equal(t, "Budi", state.Partner.Name)

	// matched users are no longer recruiting
	status, env = s.do(t, http.MethodGet, "/users/recruiting", bearer(c.Token), nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &recruiting))
	assert.Empty(t, recruiting)

	msgPath := "/matches/" + itoa(matchID) + "/messages"
	status, _ = s.do(t, http.MethodPost, msgPath, bearer(a.Token), dto.SendMessageRequest{Body: "north canteen?"})
	require.Equal(t, http.StatusCreated, status)
	ev := s.nextEvent(t)
	assert.Equal(t, models.EventNewMessage, ev.Type)
	assert.Equal(t, b.ID, ev.UserID)

	status, env = s.do(t, http.MethodGet, msgPath, bearer(b.Token), nil)
	require.Equal(t, http.StatusOK, status)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "north canteen?", msgs[0].Body)
	assert.Equal(t, a.ID, msgs[0].SenderID)

	status, env = s.do(t, http.MethodGet, msgPath, bearer(c.Token), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Error.Code)

	status, _ = s.do(t, http.MethodPut, "/users/me/status", bearer(a.Token), dto.UpdateStatusRequest{Recruiting: &yes})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodDelete, "/matches/current", bearer(b.Token), nil)
	require.Equal(t, http.StatusOK, status)
	for i := 0; i < 2; i++ {
		assert.Equal(t, models.EventMatchCanceled, s.nextEvent(t).Type)
	}

	status, env = s.do(t, http.MethodGet, "/matches/current", bearer(a.Token), nil)
	require.Equal(t, http.StatusOK, status)
	state = models.MatchState{}
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.False(t, state.Matched)

	status, env = s.do(t, http.MethodPost, msgPath, bearer(a.Token), dto.SendMessageRequest{Body: "still there?"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "match_canceled", env.Error.Code)

	// history stays readable after cancel
	status, _ = s.do(t, http.MethodGet, msgPath, bearer(a.Token), nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodDelete, "/matches/current", bearer(a.Token), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLike_Validation(t *testing.T) {
	s := newTestServer(t)
	a := s.createUser(t, "Ana")

	status, env := s.do(t, http.MethodPost, "/likes", bearer(a.Token), dto.LikeRequest{TargetID: a.ID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_target", env.Error.Code)

	status, _ = s.do(t, http.MethodPost, "/likes", bearer(a.Token), dto.LikeRequest{TargetID: "ghost"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodGet, "/matches/abc/messages", bearer(a.Token), nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodGet, "/matches/999/messages", bearer(a.Token), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSendMessage_RateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *config.ServerConfig) {
		cfg.MessageRate = time.Hour
		cfg.MessageBurst = 2
	})
	a := s.createUser(t, "Ana")
	b := s.createUser(t, "Budi")
	s.do(t, http.MethodPost, "/likes", bearer(a.Token), dto.LikeRequest{TargetID: b.ID})
	_, env := s.do(t, http.MethodPost, "/likes", bearer(b.Token), dto.LikeRequest{TargetID: a.ID})
	var like dto.LikeResponse
	require.NoError(t, json.Unmarshal(env.Data, &like))
	require.True(t, like.Matched)

	path := "/matches/" + itoa(*like.MatchID) + "/messages"
	var codes []int
	for i := 0; i < 3; i++ {
		status, _ := s.do(t, http.MethodPost, path, bearer(a.Token), dto.SendMessageRequest{Body: "hi"})
		codes = append(codes, status)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	// the limit is per user
	status, _ := s.do(t, http.MethodPost, path, bearer(b.Token), dto.SendMessageRequest{Body: "hey"})
	assert.Equal(t, http.StatusCreated, status)
}

// The API client used by the pollers decodes this server's envelope.
func TestClientAgainstServer(t *testing.T) {
	s := newTestServer(t)
	a := s.createUser(t, "Ana")
	b := s.createUser(t, "Budi")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.Shutdown() })

	cfg := config.DefaultClientConfig()
	cfg.BaseURL = "http://" + ln.Addr().String()
	cfg.Token = a.Token
	client := repository.NewClient(cfg, logger.NewNop())
	ctx := context.Background()

	state, err := client.GetCurrentMatch(ctx)
	require.NoError(t, err)
	_, ok := state.ID()
	assert.False(t, ok)

	s.do(t, http.MethodPost, "/likes", bearer(a.Token), dto.LikeRequest{TargetID: b.ID})
	s.do(t, http.MethodPost, "/likes", bearer(b.Token), dto.LikeRequest{TargetID: a.ID})

	state, err = client.GetCurrentMatch(ctx)
	require.NoError(t, err)
	id, ok := state.ID()
	require.True(t, ok)

	_, err = client.SendMessage(ctx, id, "hello")
	require.NoError(t, err)
	msgs, err := client.GetMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = client.GetMessages(ctx, id+100)
	assert.True(t, repository.IsNotFound(err))

	require.NoError(t, client.CancelMatch(ctx))
	err = client.CancelMatch(ctx)
	assert.True(t, repository.IsNotFound(err))
	assert.True(t, repository.IsClientError(err))
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
