package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"github.com/webprogramming/estate/backend/cache"
	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/store/storetest"
	"github.com/webprogramming/estate/backend/utils"
)

const testSecret = "test-secret-0123456789"

type fixture struct {
	env      *Env
	users    *storetest.Users
	listings *storetest.Listings
	tokens   *utils.TokenManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    storetest.NewUsers(),
		listings: storetest.NewListings(),
		tokens:   utils.NewTokenManager(testSecret),
	}
	f.env = &Env{
		Users:    f.users,
		Listings: f.listings,
		Cache:    cache.Nop{},
		Tokens:   f.tokens,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return f
}

type request struct {
	method string
	target string
	body   interface{}
	userID string
	vars   map[string]string
}

func serve(t *testing.T, h http.HandlerFunc, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader = http.NoBody
	switch b := req.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	r := httptest.NewRequest(req.method, req.target, body)
	r.Header.Set("Content-Type", "application/json")
	if req.userID != "" {
		r = r.WithContext(context.WithValue(r.Context(), UserIDKey, req.userID))
	}
	if req.vars != nil {
		r = mux.SetURLVars(r, req.vars)
	}

	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	decodeBody(t, w, &resp)
	return resp
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == AccessTokenCookie {
			return c
		}
	}
	return nil
}

func (f *fixture) seedUser(t *testing.T, username, email, password string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: email, AuthMethod: models.AuthMethodPassword}
	if password != "" {
		hash, err := utils.HashPassword(password)
		require.NoError(t, err)
		user.Password = hash
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}
