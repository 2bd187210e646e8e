package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3uprocessor/m3u-processor/internal/auth"
	"github.com/m3uprocessor/m3u-processor/internal/config"
)

// newBootedServer builds a server from a loaded configuration, the
// same path main() takes, so the config/composition seam stays wired.
func newBootedServer(t *testing.T) *Server {
	t.Helper()

	t.Setenv("M3U_JWT_SECRET", "test-secret-0123456789abcdef")
	t.Setenv("M3U_DB_PATH", ":memory:")
	t.Setenv("M3U_ADMIN_PASSWORD", "bootpass1")

	cfg, err := config.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.db.Close() })
	return s
}

func TestNewFromLoadedConfig(t *testing.T) {
	s := newBootedServer(t)

	t.Run("health endpoint is routed", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("bootstrap admin can log in", func(t *testing.T) {
		body := bytes.NewBufferString(`{"email": "admin@example.com", "password": "bootpass1"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		s.router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var res map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		user, ok := res["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "admin", user["role"])
	})

	t.Run("seeding again is a no-op", func(t *testing.T) {
		require.NoError(t, s.seedAdmin(context.Background(), auth.NewPasswordService()))
	})
}
