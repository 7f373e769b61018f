package strava

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"example.com/hobbytracker/internal/domain"
)

// Subscription is a registered push subscription.
type Subscription struct {
	ID            int64  `json:"id"`
	ApplicationID int64  `json:"application_id,omitempty"`
	CallbackURL   string `json:"callback_url"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// SubscriptionAdmin manages the application's push subscriptions. The
// endpoints authenticate with client credentials rather than an athlete token.
type SubscriptionAdmin struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewSubscriptionAdmin constructs a SubscriptionAdmin.
func NewSubscriptionAdmin(baseURL, clientID, clientSecret string, httpClient *http.Client) *SubscriptionAdmin {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SubscriptionAdmin{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

func (a *SubscriptionAdmin) credentials() (url.Values, error) {
	if strings.TrimSpace(a.clientID) == "" {
		return nil, &domain.ConfigurationError{Setting: "STRAVA_CLIENT_ID"}
	}
	if strings.TrimSpace(a.clientSecret) == "" {
		return nil, &domain.ConfigurationError{Setting: "STRAVA_CLIENT_SECRET"}
	}
	return url.Values{"client_id": {a.clientID}, "client_secret": {a.clientSecret}}, nil
}

// List returns the current subscriptions; the platform allows at most one.
func (a *SubscriptionAdmin) List(ctx context.Context) ([]Subscription, error) {
	values, err := a.credentials()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/push_subscriptions?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	var subs []Subscription
	if err := a.client().do(req, "list_subscriptions", &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Create registers callbackURL. The platform immediately performs the
// handshake against it using verifyToken.
func (a *SubscriptionAdmin) Create(ctx context.Context, callbackURL, verifyToken string) (Subscription, error) {
	values, err := a.credentials()
	if err != nil {
		return Subscription{}, err
	}
	if strings.TrimSpace(callbackURL) == "" {
		return Subscription{}, &domain.ConfigurationError{Setting: "STRAVA_CALLBACK_URL"}
	}
	if strings.TrimSpace(verifyToken) == "" {
		return Subscription{}, &domain.ConfigurationError{Setting: "STRAVA_VERIFY_TOKEN"}
	}
	values.Set("callback_url", callbackURL)
	values.Set("verify_token", verifyToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/push_subscriptions", strings.NewReader(values.Encode()))
	if err != nil {
		return Subscription{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var sub Subscription
	if err := a.client().do(req, "create_subscription", &sub); err != nil {
		return Subscription{}, err
	}
	if sub.CallbackURL == "" {
		sub.CallbackURL = callbackURL
	}
	return sub, nil
}

// Delete removes a subscription.
func (a *SubscriptionAdmin) Delete(ctx context.Context, id int64) error {
	values, err := a.credentials()
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/push_subscriptions/%d?%s", a.baseURL, id, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return a.client().do(req, "delete_subscription", nil)
}

func (a *SubscriptionAdmin) client() *Client {
	return &Client{baseURL: a.baseURL, httpClient: a.httpClient}
}
