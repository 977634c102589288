package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"messenger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) *API {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Username == "taken" {
			http.Error(w, "username already exists", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.LoginResponse{
			Token: "token-" + req.Username,
			User:  models.User{ID: 7, Username: req.Username},
		})
	})
	mux.HandleFunc("/online_users", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.OnlineUser{{Username: "alice", Online: true}, {Username: "bob"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewAPI(srv.URL + "/")
}

func TestAPIRegister(t *testing.T) {
	api := newAPIServer(t)
	ctx := context.Background()

	require.NoError(t, api.Register(ctx, "alice", "secret"))
	assert.ErrorIs(t, api.Register(ctx, "taken", "secret"), ErrUsernameTaken)
}

func TestAPILogin(t *testing.T) {
	api := newAPIServer(t)
	ctx := context.Background()

	resp, err := api.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "token-alice", resp.Token)
	assert.Equal(t, 7, resp.User.ID)

	_, err = api.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAPIOnlineUsers(t *testing.T) {
	api := newAPIServer(t)

	users, err := api.OnlineUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.OnlineUser{{Username: "alice", Online: true}, {Username: "bob"}}, users)
}

func TestAPIUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewAPI(srv.URL).OnlineUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database down")
}
