// Package strava talks to the remote fitness platform: refresh-token exchange,
// activity fetches and push subscription management.
package strava

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/observability"
)

// Credentials identifies the registered application and the athlete grant.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

// AccessTokenSource yields a bearer token for one API call.
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenProvider exchanges the configured refresh token for an access token on
// every call. Issued tokens are never cached.
type TokenProvider struct {
	config       oauth2.Config
	refreshToken string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewTokenProvider builds a provider. httpClient bounds the exchange; nil
// selects http.DefaultClient.
func NewTokenProvider(creds Credentials, httpClient *http.Client, logger *zap.Logger) *TokenProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenProvider{
		config: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  creds.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: creds.RefreshToken,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// AccessToken performs one refresh-token exchange.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(p.refreshToken) == "" {
		return "", &domain.ConfigurationError{Setting: "STRAVA_REFRESH_TOKEN"}
	}

	defer observability.ObserveUpstream("token_exchange", time.Now())

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken}).Token()
	if err != nil {
		return "", classifyTokenError(p.config.Endpoint.TokenURL, err)
	}
	if token.RefreshToken != "" && token.RefreshToken != p.refreshToken {
		p.logger.Warn("refresh token rotated upstream; update STRAVA_REFRESH_TOKEN")
	}
	return token.AccessToken, nil
}

func classifyTokenError(tokenURL string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &domain.UpstreamAuthError{Status: status, Body: truncate(string(retrieveErr.Body), maxErrorBodySize)}
	}
	if isTimeout(err) {
		return &domain.UpstreamTimeoutError{Op: "token exchange", Err: err}
	}
	return &domain.UpstreamFetchError{URL: tokenURL, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
