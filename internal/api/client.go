package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"genqueue/internal/config"
	"genqueue/internal/logging"
)

const (
	userAgent        = "genqueue/1.0"
	sessionCookie    = "sessionid"
	csrfCookie       = "csrftoken"
	maxErrorBodySize = 4096
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	Endpoints     config.Endpoints
	SessionCookie string
	CSRFToken     string
	CSRFHeader    string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to one variant's set of gallery endpoints.
type Client struct {
	baseURL    string
	endpoints  config.Endpoints
	session    string
	csrfToken  string
	csrfHeader string
	http       *http.Client
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewClient builds a client from explicit options.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	header := strings.TrimSpace(opts.CSRFHeader)
	if header == "" {
		header = "X-CSRFToken"
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		endpoints:  opts.Endpoints,
		session:    strings.TrimSpace(opts.SessionCookie),
		csrfToken:  strings.TrimSpace(opts.CSRFToken),
		csrfHeader: header,
		http:       httpClient,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logging.NewComponentLogger(opts.Logger, "api"),
	}
}

// FromConfig builds a client for the endpoints of kind.
func FromConfig(cfg *config.Config, kind MediaKind, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	endpoints := cfg.Server.Image
	if kind == KindVideo {
		endpoints = cfg.Server.Video
	}
	return NewClient(Options{
		BaseURL:       cfg.Server.BaseURL,
		Endpoints:     endpoints,
		SessionCookie: cfg.Server.SessionCookie,
		CSRFToken:     cfg.Server.CSRFToken,
		CSRFHeader:    cfg.Server.CSRFHeader,
		Timeout:       cfg.RequestTimeout(),
		Logger:        logger.With(logging.String(logging.FieldVariant, string(kind))),
	})
}

// Validate checks a submission without sending it.
func (c *Client) Validate(req SubmitRequest) error {
	if err := c.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, describeFieldError(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "url":
		return field + " must be a URL"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Submit posts a generation request as a form.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("prompt", strings.TrimSpace(req.Prompt))
	form.Set("count", strconv.Itoa(req.Count))
	setIfPresent(form, "model", req.Model)
	setIfPresent(form, "aspect_ratio", req.AspectRatio)
	setIfPresent(form, "negative_prompt", req.NegativePrompt)
	setIfPresent(form, "source_image_url", req.SourceImageURL)
	keys := make([]string, 0, len(req.Extra))
	for key := range req.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if form.Has(key) {
			continue
		}
		setIfPresent(form, key, req.Extra[key])
	}

	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, c.endpoints.Submit, form, &resp); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return nil, err
		}
		return nil, fmt.Errorf("submit: %w", err)
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return nil, &ActionError{Action: "submit", Message: msg}
	}
	if len(resp.JobIDs()) == 0 && resp.ResultURL(KindImage) == "" && resp.ResultURL(KindVideo) == "" {
		return nil, &ActionError{Action: "submit", Message: "server returned no job ids"}
	}
	return &resp, nil
}

// Status fetches one job's state.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.do(ctx, http.MethodGet, withJobID(c.endpoints.Status, jobID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Completed lists the user's recently completed jobs.
func (c *Client) Completed(ctx context.Context) (*CompletedListing, error) {
	var listing CompletedListing
	if err := c.do(ctx, http.MethodGet, c.endpoints.Completed, nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Persist saves a finished job to the user's permanent gallery.
func (c *Client) Persist(ctx context.Context, jobID string) error {
	return c.action(ctx, "persist", withJobID(c.endpoints.Persist, jobID), url.Values{})
}

// ClearQueue tells the server to drop the user's queue.
func (c *Client) ClearQueue(ctx context.Context) error {
	return c.action(ctx, "clear", c.endpoints.Clear, url.Values{})
}

// RemoveJob tells the server to drop one job. keepSaved asks the server to
// leave any gallery copy alone.
func (c *Client) RemoveJob(ctx context.Context, jobID string, keepSaved bool) error {
	form := url.Values{}
	form.Set("job_id", jobID)
	if keepSaved {
		form.Set("keep_saved", "1")
	}
	return c.action(ctx, "remove", c.endpoints.Remove, form)
}

func (c *Client) action(ctx context.Context, name, path string, form url.Values) error {
	var resp actionResponse
	if err := c.do(ctx, http.MethodPost, path, form, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return &ActionError{Action: name, Message: resp.Error}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	requestID := uuid.NewString()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.csrfToken != "" {
		req.Header.Set(c.csrfHeader, c.csrfToken)
		req.AddCookie(&http.Cookie{Name: csrfCookie, Value: c.csrfToken})
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: c.session})
	}

	logger := c.logger.With(logging.String(logging.FieldRequestID, requestID))
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug("request failed", logging.String("method", method), logging.String("path", path), logging.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logger.Debug("request complete",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage prefers a JSON {"error": "..."} body over raw text.
func errorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, candidate := range []string{payload.Error, payload.Detail, payload.Message} {
			if strings.TrimSpace(candidate) != "" {
				return strings.TrimSpace(candidate)
			}
		}
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}

func setIfPresent(form url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		form.Set(key, value)
	}
}

// withJobID appends the escaped job id as a final path segment, keeping a
// trailing slash when the route uses one.
func withJobID(path, jobID string) string {
	escaped := url.PathEscape(strings.TrimSpace(jobID))
	if strings.HasSuffix(path, "/") {
		return path + escaped + "/"
	}
	return path + "/" + escaped
}
