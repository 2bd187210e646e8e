package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRegistration(t *testing.T, env *testEnv) {
	t.Helper()
	require.NoError(t, env.db.SetSetting(context.Background(), "open_registration", "true"))
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	openRegistration(t, env)

	const creds = `{"email": "ana@example.com", "username": "ana", "password": "hunter22"}`

	t.Run("register with open registration is approved immediately", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/register", creds)

		require.Equal(t, http.StatusCreated, rr.Code)
		res := decodeBody(t, rr)
		assert.Equal(t, "Registration successful", res["message"])
		assert.Equal(t, false, res["requires_approval"])
	})

	var token string
	t.Run("login returns a bearer token", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/login", `{"email": "ana@example.com", "password": "hunter22"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		res := decodeBody(t, rr)
		assert.Equal(t, "bearer", res["token_type"])
		token, _ = res["access_token"].(string)
		require.NotEmpty(t, token)
	})

	t.Run("me requires the token", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/auth/me", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("me returns the profile", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/auth/me", "", "Authorization", "Bearer "+token)

		require.Equal(t, http.StatusOK, rr.Code)
		res := decodeBody(t, rr)
		assert.Equal(t, "ana", res["username"])
		assert.Equal(t, "user", res["role"])
		_, leaked := res["password_hash"]
		assert.False(t, leaked)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/login", `{"email": "ana@example.com", "password": "wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRegisterClosedRegistration(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/auth/register", `{"email": "bo@example.com", "username": "bo", "password": "secret1"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	res := decodeBody(t, rr)
	assert.Equal(t, "Registration pending approval", res["message"])
	assert.Equal(t, true, res["requires_approval"])

	t.Run("pending account cannot log in", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/login", `{"email": "bo@example.com", "password": "secret1"}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestGenerateAssignsOwner(t *testing.T) {
	env := newTestEnv(t)
	openRegistration(t, env)

	env.do(t, http.MethodPost, "/api/auth/register", `{"email": "own@example.com", "username": "own", "password": "secret1"}`)
	rr := env.do(t, http.MethodPost, "/api/auth/login", `{"email": "own@example.com", "password": "secret1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	token := decodeBody(t, rr)["access_token"].(string)

	rr = env.do(t, http.MethodPost, "/api/generate",
		`{"content": "#EXTM3U\n#EXTINF:-1,A\nhttp://example.com/a\n"}`,
		"Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, rr.Code)
	playlistToken := decodeBody(t, rr)["token"].(string)

	p, err := env.db.GetByToken(context.Background(), playlistToken)
	require.NoError(t, err)
	assert.NotEmpty(t, p.OwnerID)
}
