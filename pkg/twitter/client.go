package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
	"github.com/XinsongDu/Twitter-Tracker/pkg/ratelimit"
)

// Options tune a Client
type Options struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64
}

// Client talks to the platform REST API with an already authorized
// http.Client
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	throttle   ratelimit.Limiter
	window     *ratelimit.Window
	logger     logger.Logger
}

// NewClient creates a client. httpClient must attach authorization.
func NewClient(httpClient *http.Client, opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		throttle:   ratelimit.NewThrottle(opts.RequestsPerSecond),
		window:     ratelimit.NewWindow(),
		logger:     log,
	}
}

// Window exposes the rate limit headers seen so far
func (c *Client) Window() *ratelimit.Window {
	return c.window
}

// UserTimeline fetches one page of a user's posts
func (c *Client) UserTimeline(ctx context.Context, q TimelineQuery) ([]models.Record, error) {
	params := url.Values{}
	params.Set("user_id", strconv.FormatInt(q.UserID, 10))
	params.Set("count", strconv.Itoa(clampCount(q.Count, MaxTimelineCount)))
	setID(params, "since_id", q.SinceID)
	setID(params, "max_id", q.MaxID)

	body, err := c.get(ctx, TimelineEndpoint, params, ResourceStatuses, APIUserTimeline)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, parseError(err)
	}
	return decodeRecords(raws)
}

// Search fetches one page of recent posts matching the query
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]models.Record, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("count", strconv.Itoa(clampCount(q.Count, MaxSearchCount)))
	params.Set("result_type", "recent")
	setID(params, "since_id", q.SinceID)
	setID(params, "max_id", q.MaxID)
	if q.Lang != "" {
		params.Set("lang", q.Lang)
	}
	if q.Geocode != "" {
		params.Set("geocode", q.Geocode)
	}

	body, err := c.get(ctx, SearchEndpoint, params, ResourceSearch, APISearchTweets)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Statuses []json.RawMessage `json:"statuses"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseError(err)
	}
	return decodeRecords(resp.Statuses)
}

// RateLimitStatus reports the current windows for the given resources
func (c *Client) RateLimitStatus(ctx context.Context, resources ...string) (RateLimitStatus, error) {
	params := url.Values{}
	if len(resources) > 0 {
		params.Set("resources", strings.Join(resources, ","))
	}

	var status RateLimitStatus
	body, err := c.get(ctx, RateLimitStatusEndpoint, params, "application", "/application/rate_limit_status")
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return status, parseError(err)
	}
	return status, nil
}

// get performs a throttled GET and maps failures onto the error taxonomy
func (c *Client) get(ctx context.Context, path string, params url.Values, resource, api string) ([]byte, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.NewTransient(errs.ErrorTypeUnknown, 0, "failed to create request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"path":   path,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"path":     path,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.NewTransient(errs.ErrorTypeNetwork, 0, "request failed", err)
	}
	defer resp.Body.Close()

	c.window.Update(resource, resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewTransient(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"path":     path,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if err := c.checkResponseStatus(resp, body, resource, api); err != nil {
		return nil, err
	}
	return body, nil
}

// apiErrors is the platform's error envelope
type apiErrors struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (a apiErrors) has(code int) bool {
	for _, e := range a.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (a apiErrors) message() string {
	if len(a.Errors) == 0 {
		return ""
	}
	return a.Errors[0].Message
}

// checkResponseStatus maps the HTTP status to a typed error
func (c *Client) checkResponseStatus(resp *http.Response, body []byte, resource, api string) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var envelope apiErrors
	_ = json.Unmarshal(body, &envelope)

	fields := map[string]interface{}{
		"status":   resp.StatusCode,
		"resource": resource,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || envelope.has(rateLimitCode):
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return &errs.RateLimitError{
			Resource: resource,
			API:      api,
			Reset:    ratelimit.ResetFromHeader(resp.Header),
		}
	case resp.StatusCode == http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		msg := envelope.message()
		if msg == "" {
			msg = "resource not found"
		}
		return &errs.PermanentError{Code: resp.StatusCode, Message: msg}
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
		msg := envelope.message()
		if msg == "" {
			msg = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		}
		return errs.NewTransient(errs.TypeForStatus(resp.StatusCode), resp.StatusCode, msg, nil)
	}
}

func decodeRecords(raws []json.RawMessage) ([]models.Record, error) {
	records := make([]models.Record, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, parseError(err)
		}
		if head.ID == 0 {
			return nil, parseError(fmt.Errorf("post without id: %s", preview(raw)))
		}
		records = append(records, models.Record{ID: head.ID, Raw: compact(raw)})
	}
	return records, nil
}

// compact strips insignificant whitespace so a record fits on one line
func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func parseError(err error) error {
	return errs.NewTransient(errs.ErrorTypeParsing, 0, "failed to parse JSON", err)
}

func preview(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}

func setID(params url.Values, key string, id int64) {
	if id > 0 {
		params.Set(key, strconv.FormatInt(id, 10))
	}
}
