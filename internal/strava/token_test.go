package strava

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/hobbytracker/internal/domain"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestAccessTokenRequiresRefreshToken(t *testing.T) {
	provider := NewTokenProvider(Credentials{ClientID: "188547", ClientSecret: "secret", TokenURL: "http://127.0.0.1:1/oauth/token"}, nil, zap.NewNop())

	_, err := provider.AccessToken(context.Background())
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "STRAVA_REFRESH_TOKEN", cfgErr.Setting)
}

func TestAccessTokenExchangesOnEveryCall(t *testing.T) {
	var calls atomic.Int32
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("grant_type") != "refresh_token" ||
			r.PostForm.Get("refresh_token") != "refresh-1" ||
			r.PostForm.Get("client_id") != "188547" ||
			r.PostForm.Get("client_secret") != "secret" {
			http.Error(w, `{"message":"Bad Request"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  "access-token",
			"refresh_token": "refresh-1",
			"expires_in":    21600,
		})
	})

	provider := NewTokenProvider(Credentials{
		ClientID:     "188547",
		ClientSecret: "secret",
		RefreshToken: "refresh-1",
		TokenURL:     srv.URL + "/oauth/token",
	}, srv.Client(), zap.NewNop())

	for i := 0; i < 2; i++ {
		token, err := provider.AccessToken(context.Background())
		require.NoError(t, err)
		require.Equal(t, "access-token", token)
	}
	require.EqualValues(t, 2, calls.Load())
}

func TestAccessTokenRejected(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Authorization Error","errors":[{"resource":"RefreshToken","code":"invalid"}]}`))
	})

	provider := NewTokenProvider(Credentials{ClientID: "1", ClientSecret: "s", RefreshToken: "expired", TokenURL: srv.URL}, srv.Client(), nil)

	_, err := provider.AccessToken(context.Background())
	var authErr *domain.UpstreamAuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.Status)
	require.Contains(t, authErr.Body, "RefreshToken")
	require.True(t, domain.IsUpstream(err))
}

func TestAccessTokenTimeout(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	client := &http.Client{Timeout: 20 * time.Millisecond}
	provider := NewTokenProvider(Credentials{ClientID: "1", ClientSecret: "s", RefreshToken: "r", TokenURL: srv.URL}, client, nil)

	_, err := provider.AccessToken(context.Background())
	var timeoutErr *domain.UpstreamTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "token exchange", timeoutErr.Op)
}
