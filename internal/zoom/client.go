package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/classroom-lms/backend/config"
)

const (
	// tokenSafetyMargin is how long before expiry a cached token is replaced.
	tokenSafetyMargin = 60 * time.Second
	maxErrorBody      = 2048
)

// ErrUnauthorized is returned when Zoom rejects the app credentials or the bearer token.
var ErrUnauthorized = errors.New("zoom: unauthorized")

// APIError is a non-2xx response from Zoom.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom api status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client calls the Zoom REST API with server-to-server OAuth credentials.
// It owns its token cache; a Client is safe for concurrent use.
type Client struct {
	cfg          config.ZoomConfig
	httpClient   *http.Client
	logger       *zap.Logger
	now          func() time.Time
	maxTries     uint
	retryInitial time.Duration
	retryMax     time.Duration

	mu    sync.Mutex
	token TokenCache
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces time.Now for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRetry sets the retry policy for idempotent calls.
func WithRetry(maxTries uint, initial, max time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.retryInitial = initial
		c.retryMax = max
	}
}

// NewClient creates a Zoom API client.
func NewClient(cfg config.ZoomConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.UserID == "" {
		cfg.UserID = "me"
	}
	c := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		now:          time.Now,
		maxTries:     4,
		retryInitial: 500 * time.Millisecond,
		retryMax:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRecordings returns every meeting with cloud recordings whose start falls in [from, to],
// following pagination until the last page. A window whose from date is after its to date
// is empty and makes no request.
func (c *Client) ListRecordings(ctx context.Context, from, to time.Time) ([]Meeting, error) {
	fromDate, toDate := from.Format(DateLayout), to.Format(DateLayout)
	if fromDate > toDate {
		return nil, nil
	}
	path := "/users/" + url.PathEscape(c.cfg.UserID) + "/recordings"
	q := url.Values{}
	q.Set("from", fromDate)
	q.Set("to", toDate)
	q.Set("page_size", "300")

	var meetings []Meeting
	seen := map[string]bool{}
	for {
		var page recordingsPage
		if err := c.do(ctx, http.MethodGet, path, q, nil, &page); err != nil {
			return nil, fmt.Errorf("list recordings: %w", err)
		}
		meetings = append(meetings, page.Meetings...)
		next := page.NextPageToken
		if next == "" || seen[next] {
			break
		}
		seen[next] = true
		q.Set("next_page_token", next)
	}
	return meetings, nil
}

// CreateMeeting schedules a recurring-free meeting (type 2) with cloud auto-recording.
func (c *Client) CreateMeeting(ctx context.Context, topic, agenda string, startsAt time.Time, durationMin int) (*ScheduledMeeting, error) {
	req := CreateMeetingRequest{
		Topic:     topic,
		Type:      2,
		StartTime: startsAt.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  durationMin,
		Timezone:  "UTC",
		Agenda:    agenda,
		Settings: MeetingSettings{
			AutoRecording:  "cloud",
			JoinBeforeHost: false,
			WaitingRoom:    true,
		},
	}
	path := "/users/" + url.PathEscape(c.cfg.UserID) + "/meetings"
	var out ScheduledMeeting
	if err := c.do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	return &out, nil
}

// Download opens a recording file download URL. The caller must close the body.
func (c *Client) Download(ctx context.Context, downloadURL string) (io.ReadCloser, int64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, 0, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("download: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.invalidateToken()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, 0, apiError(resp)
		}
		return resp.Body, resp.ContentLength, nil
	}
	return nil, 0, ErrUnauthorized
}

// do runs one API call. GETs are retried with exponential backoff on network errors,
// 429 and 5xx; every method gets one token refresh on 401.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}
	idempotent := method == http.MethodGet
	refreshed := false

	op := func() (struct{}, error) {
		err := c.doOnce(ctx, method, path, query, payload, out)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ErrUnauthorized) && !refreshed {
			refreshed = true
			c.invalidateToken()
			return struct{}{}, err
		}
		var apiErr *APIError
		switch {
		case errors.Is(err, ErrUnauthorized):
			return struct{}{}, backoff.Permanent(err)
		case errors.As(err, &apiErr) && !apiErr.Retryable():
			return struct{}{}, backoff.Permanent(err)
		case !idempotent:
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxInterval = c.retryMax
	tries := c.maxTries
	if tries < 2 {
		// always leave room for the 401 refresh
		tries = 2
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Warn("zoom request retry", zap.String("path", path), zap.Duration("backoff", d), zap.Error(err))
		}),
	)
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, payload []byte, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	u := c.cfg.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiError(resp).Body)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// accessToken returns a cached token or exchanges the account credentials for a new one.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.token.Fresh(now, tokenSafetyMargin) {
		return c.token.Token, nil
	}

	tok, err := c.exchangeToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = TokenCache{
		Token:     tok.AccessToken,
		ExpiresAt: now.Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	c.logger.Debug("zoom access token refreshed", zap.Time("expires_at", c.token.ExpiresAt))
	return c.token.Token, nil
}

func (c *Client) exchangeToken(ctx context.Context) (*tokenResponse, error) {
	if !c.cfg.Configured() {
		return nil, fmt.Errorf("%w: credentials not configured", ErrUnauthorized)
	}
	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", c.cfg.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := apiError(resp)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(fmt.Errorf("%w: token exchange: %s", ErrUnauthorized, apiErr.Body))
		}
		return nil, fmt.Errorf("token exchange: %w", apiErr)
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token exchange: empty access_token")
	}
	return &tok, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = TokenCache{}
	c.mu.Unlock()
}

func apiError(resp *http.Response) *APIError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
