package van

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/models"
	"github.com/upb/ak-van-sync/services/ratelimit"
)

const (
	defaultBaseURL = "https://api.securevan.com/v4"

	// databaseModeMyCampaign is appended to the API key to select the MyCampaign database
	databaseModeMyCampaign = "|1"

	// maxPages bounds pagination in case VAN keeps returning a next link
	maxPages = 1000
)

// Config holds one region's client settings
type Config struct {
	BaseURL string
	AppName string
	APIKey  string
	Timeout time.Duration
}

// Client talks to VAN over HTTPS with basic auth
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

// NewClient creates a new VAN client. The limiter may be shared between clients.
func NewClient(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.Config{MaxAttempts: 1}, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// NewFactory returns a Factory producing clients that share one limiter
func NewFactory(cfg config.VANConfig, logger *zap.Logger) Factory {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		BaseDelay:         cfg.RetryDelay,
		MaxAttempts:       cfg.MaxRetries + 1,
	}, logger)

	return func(creds models.RegionCredentials) API {
		appName := creds.AppName
		if appName == "" {
			appName = cfg.AppName
		}
		return NewClient(Config{
			BaseURL: cfg.BaseURL,
			AppName: appName,
			APIKey:  creds.APIKey,
			Timeout: cfg.Timeout,
		}, limiter, logger.With(zap.String("region", creds.Region)))
	}
}

// FindOrCreateLocation returns the id of a location matching loc
func (c *Client) FindOrCreateLocation(ctx context.Context, loc models.Location) (int, error) {
	var id int
	if err := c.do(ctx, http.MethodPost, c.url("/locations/findOrCreate", nil), loc, &id, true); err != nil {
		return 0, err
	}
	return id, nil
}

// GetEventTypes lists the event types visible to the API key
func (c *Client) GetEventTypes(ctx context.Context) ([]models.EventType, error) {
	var types []models.EventType
	if err := c.do(ctx, http.MethodGet, c.url("/events/types", nil), nil, &types, true); err != nil {
		return nil, err
	}
	return types, nil
}

// CreateEvent submits a new event
func (c *Client) CreateEvent(ctx context.Context, req *models.CreateEventRequest) (CreateEventResult, error) {
	var id int
	err := c.do(ctx, http.MethodPost, c.url("/events", nil), req, &id, false)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			return Rejected(apiErr.Details), nil
		}
		return CreateEventResult{}, err
	}
	if id <= 0 {
		return Rejected(nil), nil
	}
	return Created(id), nil
}

// GetEvent fetches one event
func (c *Client) GetEvent(ctx context.Context, eventID int, expand ...string) (*models.RemoteEvent, error) {
	query := url.Values{}
	if len(expand) > 0 {
		query.Set("$expand", strings.Join(expand, ","))
	}

	var ev models.RemoteEvent
	if err := c.do(ctx, http.MethodGet, c.url("/events/"+strconv.Itoa(eventID), query), nil, &ev, true); err != nil {
		return nil, err
	}
	return &ev, nil
}

// eventPage is one page of GET /events
type eventPage struct {
	Items        []models.RemoteEvent `json:"items"`
	Count        int                  `json:"count"`
	NextPageLink string               `json:"nextPageLink"`
}

// ListEvents returns every event matching the filter
func (c *Client) ListEvents(ctx context.Context, filter EventFilter) ([]models.RemoteEvent, error) {
	query := url.Values{}
	if len(filter.EventTypeIDs) > 0 {
		ids := make([]string, len(filter.EventTypeIDs))
		for i, id := range filter.EventTypeIDs {
			ids[i] = strconv.Itoa(id)
		}
		query.Set("eventTypeIds", strings.Join(ids, ","))
	}
	if !filter.StartingAfter.IsZero() {
		query.Set("startingAfter", filter.StartingAfter.Format("2006-01-02"))
	}
	if len(filter.Expand) > 0 {
		query.Set("$expand", strings.Join(filter.Expand, ","))
	}

	var events []models.RemoteEvent
	next := c.url("/events", query)

	for page := 0; next != ""; page++ {
		if page >= maxPages {
			return nil, &APIError{Method: http.MethodGet, Path: "/events", Cause: fmt.Errorf("more than %d pages", maxPages)}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var p eventPage
		if err := c.do(ctx, http.MethodGet, next, nil, &p, true); err != nil {
			return nil, err
		}
		events = append(events, p.Items...)
		next = p.NextPageLink
	}

	c.logger.Debug("events listed", zap.Int("count", len(events)))
	return events, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := c.config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one JSON request through the limiter and decodes a 2xx body into out.
// When retry is false only 429 responses are repeated, since VAN rejected those
// before doing any work.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out interface{}, retry bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &APIError{Method: method, Path: pathOf(rawURL), Cause: fmt.Errorf("failed to marshal request: %w", err)}
		}
	}

	var respBody []byte
	err := c.limiter.ExecuteWithRetry(ctx, method+" "+pathOf(rawURL), func() error {
		var attemptErr error
		respBody, attemptErr = c.send(ctx, method, rawURL, payload)
		var apiErr *APIError
		if !retry && errors.As(attemptErr, &apiErr) && apiErr.StatusCode != http.StatusTooManyRequests {
			apiErr.Retryable = false
		}
		return attemptErr
	})
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Method: method, Path: pathOf(rawURL), Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// send performs a single attempt
func (c *Client) send(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &APIError{Method: method, Path: pathOf(rawURL), Cause: err}
	}
	req.SetBasicAuth(c.config.AppName, c.config.APIKey+databaseModeMyCampaign)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Method: method, Path: pathOf(rawURL), Retryable: ctx.Err() == nil, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Method: method, Path: pathOf(rawURL), StatusCode: resp.StatusCode, Retryable: true, Cause: err}
	}

	c.logger.Debug("van call",
		zap.String("method", method),
		zap.String("path", pathOf(rawURL)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Method:     method,
			Path:       pathOf(rawURL),
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
		}
		var parsed errorResponse
		if json.Unmarshal(respBody, &parsed) == nil {
			apiErr.Details = parsed.Errors
		}
		return nil, apiErr
	}

	return respBody, nil
}

// pathOf strips scheme, host and query for logging
func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
