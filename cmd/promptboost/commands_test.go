package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	score := 0.72
	now := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/enhance", func(w http.ResponseWriter, r *http.Request) {
		var req domain.EnhanceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(domain.EnhanceResponse{Text: "Enhanced: " + req.Text, SessionID: req.SessionID})
	})
	mux.HandleFunc("POST /api/v1/feedback", func(w http.ResponseWriter, r *http.Request) {
		var req domain.FeedbackRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(domain.FeedbackResponse{Status: domain.FeedbackStatusSuccess, Message: req.UserAction})
	})
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.ActionStats{Total: 5, Accepted: 1, Rejected: 2, Implicit: 2})
	})
	mux.HandleFunc("GET /api/v1/attempts", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]domain.Attempt{
			{SessionID: "s2", Strategy: domain.StrategyReroll, UserAction: domain.ActionRejected, FeedbackAt: &now, QualityScore: &score, CreatedAt: now},
			{SessionID: "s1", Strategy: domain.StrategyInitial, UserAction: domain.ActionAccepted, CreatedAt: now},
		})
	})
	mux.HandleFunc("POST /api/v1/attempts/reject-recent", func(w http.ResponseWriter, r *http.Request) {
		var req domain.RejectRecentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(domain.RejectRecentResponse{Updated: int64(req.Count)})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--api-url", srv.URL}, args...)
	rootCmd.SetArgs(full)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestEnhanceCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "", "enhance", "write", "a", "poem")
	require.NoError(t, err)
	assert.Equal(t, "Enhanced: write a poem\n", out)

	out, err = execute(t, srv, "  from stdin \n", "enhance")
	require.NoError(t, err)
	assert.Equal(t, "Enhanced: from stdin\n", out)

	_, err = execute(t, srv, "   ", "enhance")
	assert.ErrorIs(t, err, domain.ErrEmptyText)
}

func TestFeedbackCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "", "feedback", "s1", "rejected")
	require.NoError(t, err)
	assert.Equal(t, "success: rejected\n", out)

	_, err = execute(t, srv, "", "feedback", "s1", "maybe")
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestAdminCommands(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "5")

	out, err = execute(t, srv, "", "recent", "-n", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "s2")
	assert.Contains(t, lines[1], "0.72")
	assert.Contains(t, lines[2], "accepted (implicit)")

	out, err = execute(t, srv, "", "reject-recent", "3")
	require.NoError(t, err)
	assert.Equal(t, "marked 3 attempt(s) rejected\n", out)

	_, err = execute(t, srv, "", "reject-recent", "zero")
	assert.Error(t, err)
}
