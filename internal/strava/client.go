package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/hobbytracker/internal/domain"
	"example.com/hobbytracker/internal/observability"
	"example.com/hobbytracker/internal/runmetrics"
)

const (
	maxErrorBodySize = 500
	defaultName      = "Sem nome"
	defaultSportType = "Run"
	zeroClock        = "00:00"
)

// Client fetches activities from the remote API. It implements
// domain.ActivitySource.
type Client struct {
	baseURL    string
	tokens     AccessTokenSource
	httpClient *http.Client
}

// NewClient constructs a Client. baseURL is the API root, e.g.
// https://www.strava.com/api/v3.
func NewClient(baseURL string, tokens AccessTokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// rawActivity mirrors the upstream summary/detailed activity representation.
// Absent fields decode to their zero values.
type rawActivity struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	Distance           float64 `json:"distance"`
	MovingTime         int     `json:"moving_time"`
	ElapsedTime        int     `json:"elapsed_time"`
	AverageSpeed       float64 `json:"average_speed"`
	MaxSpeed           float64 `json:"max_speed"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
	StartDate          string  `json:"start_date"`
	StartDateLocal     string  `json:"start_date_local"`
	Timezone           string  `json:"timezone"`
	KudosCount         int     `json:"kudos_count"`
	AchievementCount   int     `json:"achievement_count"`
}

// LatestActivity returns the athlete's most recent activity.
func (c *Client) LatestActivity(ctx context.Context) (domain.Activity, error) {
	var page []rawActivity
	query := url.Values{"per_page": {"1"}}
	if err := c.getJSON(ctx, "latest_activity", "/athlete/activities", query, &page); err != nil {
		return domain.Activity{}, err
	}
	if len(page) == 0 {
		return domain.Activity{}, domain.ErrNoActivity
	}
	return normalize(page[0])
}

// ActivityByID returns a single activity.
func (c *Client) ActivityByID(ctx context.Context, externalID int64) (domain.Activity, error) {
	var raw rawActivity
	path := fmt.Sprintf("/activities/%d", externalID)
	if err := c.getJSON(ctx, "activity_by_id", path, nil, &raw); err != nil {
		return domain.Activity{}, err
	}
	return normalize(raw)
}

func (c *Client) getJSON(ctx context.Context, operation, path string, query url.Values, out any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	return c.do(req, operation, out)
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	defer observability.ObserveUpstream(operation, time.Now())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &domain.UpstreamTimeoutError{Op: operation, Err: err}
		}
		return &domain.UpstreamFetchError{URL: redactURL(req.URL), Err: err}
	}
	defer resp.Body.Close()

	if err := parseErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return &domain.UpstreamTimeoutError{Op: operation, Err: err}
		}
		return &domain.UpstreamFetchError{Status: resp.StatusCode, URL: redactURL(req.URL), Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.UpstreamFetchError{
			Status: resp.StatusCode,
			Body:   truncate(string(body), maxErrorBodySize),
			URL:    redactURL(req.URL),
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func normalize(raw rawActivity) (domain.Activity, error) {
	if raw.ID == 0 {
		return domain.Activity{}, domain.ErrMalformedActivity
	}

	activity := domain.Activity{
		ExternalID:          raw.ID,
		Name:                raw.Name,
		SportType:           raw.Type,
		DistanceKm:          runmetrics.MetersToKm(raw.Distance),
		MovingTime:          zeroClock,
		ElapsedTime:         zeroClock,
		Pace:                runmetrics.SpeedToPace(raw.AverageSpeed),
		AverageSpeedKmh:     runmetrics.SpeedToKmh(raw.AverageSpeed),
		MaxSpeedKmh:         runmetrics.SpeedToKmh(raw.MaxSpeed),
		TotalElevationGainM: runmetrics.Round2(raw.TotalElevationGain),
		StartDate:           raw.StartDate,
		StartDateLocal:      raw.StartDateLocal,
		Timezone:            raw.Timezone,
		KudosCount:          raw.KudosCount,
		AchievementCount:    raw.AchievementCount,
	}
	if activity.Name == "" {
		activity.Name = defaultName
	}
	if activity.SportType == "" {
		activity.SportType = defaultSportType
	}
	if raw.MovingTime > 0 {
		activity.MovingTime = runmetrics.FormatClock(raw.MovingTime)
	}
	if raw.ElapsedTime > 0 {
		activity.ElapsedTime = runmetrics.FormatClock(raw.ElapsedTime)
	}
	return activity, nil
}

// parseErrorResponse returns an UpstreamFetchError for 4xx/5xx responses and
// nil otherwise.
func parseErrorResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxErrorBodySize))
	return &domain.UpstreamFetchError{
		Status: resp.StatusCode,
		Body:   truncate(strings.TrimSpace(string(body)), maxErrorBodySize),
		URL:    redactURL(resp.Request.URL),
	}
}

// redactURL drops the query string, which may carry client credentials.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
