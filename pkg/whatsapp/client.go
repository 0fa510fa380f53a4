package whatsapp

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"wabadash/pkg/whatsapp/types"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v23.0"
	maxErrorBodyBytes = 64 * 1024
	maxRedirects      = 10
	tracerName        = "wabadash/whatsapp"
)

var (
	ErrMissingAccessToken   = errors.New("access token not configured")
	ErrMissingBusinessID    = errors.New("business account id not configured")
	ErrMissingPhoneNumberID = errors.New("phone number id not configured")
)

// Credentials are the per-account values every call needs. Timeout bounds
// the whole call including reading the response.
type Credentials struct {
	AccessToken   string
	APIVersion    string
	BusinessID    string
	WABAID        string
	PhoneNumberID string
	Timeout       time.Duration
}

func (c Credentials) version() string {
	if c.APIVersion == "" {
		return defaultAPIVersion
	}
	return c.APIVersion
}

// templateAccountID returns the account that owns templates. Listing uses the
// WABA id when present.
func (c Credentials) templateAccountID() string {
	if c.WABAID != "" {
		return c.WABAID
	}
	return c.BusinessID
}

// APIError is a non-2xx provider response
type APIError struct {
	Operation  string
	Endpoint   string
	StatusCode int
	Body       *types.APIErrorBody
	RawBody    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Message())
}

// Message returns the provider's error message or the raw body
func (e *APIError) Message() string {
	if e.Body != nil && e.Body.Message != "" {
		return e.Body.Message
	}
	return e.RawBody
}

// ObserveFunc receives the outcome of every provider call. Status is 0 when
// no response was received.
type ObserveFunc func(operation string, status int, duration time.Duration)

// Option customizes a Client
type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithObserver(fn ObserveFunc) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// WithDownloadRedirectCheck vets every redirect DownloadMedia follows.
// A non-nil error aborts the download.
func WithDownloadRedirectCheck(check func(*url.URL) error) Option {
	return func(c *Client) {
		c.redirectCheck = check
	}
}

// Client talks to the Graph API. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	downloadClient *http.Client
	redirectCheck  func(*url.URL) error
	observe        ObserveFunc
	tracer         trace.Tracer
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.downloadClient = c.newDownloadClient()
	return c
}

// newDownloadClient shares the transport of httpClient but re-checks each
// redirect target, since media URLs come from callers
func (c *Client) newDownloadClient() *http.Client {
	dc := *c.httpClient
	next := dc.CheckRedirect
	dc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if c.redirectCheck != nil {
			if err := c.redirectCheck(req.URL); err != nil {
				return fmt.Errorf("redirect refused: %w", err)
			}
		}
		if next != nil {
			return next(req, via)
		}
		return nil
	}
	return &dc
}

// CreateTemplate submits a template definition for review
func (c *Client) CreateTemplate(ctx context.Context, creds Credentials, def *types.TemplateDefinition) (*types.CreateTemplateResponse, error) {
	if err := requireToken(creds); err != nil {
		return nil, err
	}
	if creds.BusinessID == "" {
		return nil, ErrMissingBusinessID
	}

	path := fmt.Sprintf(types.EndpointMessageTemplates, creds.version(), url.PathEscape(creds.BusinessID))
	var result types.CreateTemplateResponse
	if err := c.doJSON(ctx, creds, "create_template", http.MethodPost, path, def, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTemplateStatus looks a template up by id
func (c *Client) GetTemplateStatus(ctx context.Context, creds Credentials, templateID string) (*types.TemplateStatusResponse, error) {
	if err := requireToken(creds); err != nil {
		return nil, err
	}

	path := fmt.Sprintf(types.EndpointObject, creds.version(), url.PathEscape(templateID))
	var result types.TemplateStatusResponse
	if err := c.doJSON(ctx, creds, "template_status", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTemplates returns one page of the account's templates
func (c *Client) ListTemplates(ctx context.Context, creds Credentials, limit int, after string) (*types.TemplateListResponse, error) {
	if err := requireToken(creds); err != nil {
		return nil, err
	}
	account := creds.templateAccountID()
	if account == "" {
		return nil, ErrMissingBusinessID
	}

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		query.Set("after", after)
	}
	path := fmt.Sprintf(types.EndpointMessageTemplates, creds.version(), url.PathEscape(account))
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var result types.TemplateListResponse
	if err := c.doJSON(ctx, creds, "list_templates", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendText sends a free-form text message
func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) (*types.SendMessageResponse, error) {
	return c.SendMessage(ctx, creds, &types.SendMessageRequest{
		MessagingProduct: types.MessagingProduct,
		RecipientType:    types.RecipientIndividual,
		To:               to,
		Type:             "text",
		Text:             &types.TextBody{Body: body},
	})
}

// SendTemplate sends an approved template
func (c *Client) SendTemplate(ctx context.Context, creds Credentials, to string, tmpl *types.TemplatePayload) (*types.SendMessageResponse, error) {
	return c.SendMessage(ctx, creds, &types.SendMessageRequest{
		MessagingProduct: types.MessagingProduct,
		RecipientType:    types.RecipientIndividual,
		To:               to,
		Type:             "template",
		Template:         tmpl,
	})
}

// SendMessage posts a prepared message request
func (c *Client) SendMessage(ctx context.Context, creds Credentials, req *types.SendMessageRequest) (*types.SendMessageResponse, error) {
	if err := requireToken(creds); err != nil {
		return nil, err
	}
	if creds.PhoneNumberID == "" {
		return nil, ErrMissingPhoneNumberID
	}

	path := fmt.Sprintf(types.EndpointMessages, creds.version(), url.PathEscape(creds.PhoneNumberID))
	var result types.SendMessageResponse
	if err := c.doJSON(ctx, creds, "send_message", http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetMediaURL resolves a media id to a short-lived download URL
func (c *Client) GetMediaURL(ctx context.Context, creds Credentials, mediaID string) (*types.MediaInfo, error) {
	if err := requireToken(creds); err != nil {
		return nil, err
	}

	path := fmt.Sprintf(types.EndpointObject, creds.version(), url.PathEscape(mediaID))
	var result types.MediaInfo
	if err := c.doJSON(ctx, creds, "media_lookup", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if result.URL == "" {
		return nil, fmt.Errorf("media %s has no url", mediaID)
	}
	return &result, nil
}

// GetPhoneNumber fetches the configured phone number, used to test credentials
func (c *Client) GetPhoneNumber(ctx context.Context, creds Credentials) (*types.PhoneNumberInfo, error) {
	if err := requireToken(creds); err != nil {
		return nil, err
	}
	if creds.PhoneNumberID == "" {
		return nil, ErrMissingPhoneNumberID
	}

	path := fmt.Sprintf(types.EndpointObject, creds.version(), url.PathEscape(creds.PhoneNumberID))
	var result types.PhoneNumberInfo
	if err := c.doJSON(ctx, creds, "phone_number", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadMedia fetches media bytes from an absolute provider URL with bearer
// auth. Bodies larger than maxBytes are rejected.
func (c *Client) DownloadMedia(ctx context.Context, creds Credentials, mediaURL string, maxBytes int64) (*types.DownloadedMedia, error) {
	if err := requireToken(creds); err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, creds.Timeout)
	defer cancel()
	ctx, span := c.startSpan(ctx, "download_media", http.MethodGet)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	start := time.Now()
	resp, err := c.downloadClient.Do(req)
	if err != nil {
		c.finish(span, "download_media", 0, start, err)
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := readAPIError(resp, "download_media", req.URL.Host)
		c.finish(span, "download_media", resp.StatusCode, start, apiErr)
		return nil, apiErr
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		c.finish(span, "download_media", resp.StatusCode, start, err)
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		err := fmt.Errorf("media exceeds %d bytes", maxBytes)
		c.finish(span, "download_media", resp.StatusCode, start, err)
		return nil, err
	}

	c.finish(span, "download_media", resp.StatusCode, start, nil)
	span.SetAttributes(attribute.Int("media.size", len(data)))
	return &types.DownloadedMedia{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, creds Credentials, operation, method, path string, payload, out any) error {
	ctx, cancel := withTimeout(ctx, creds.Timeout)
	defer cancel()
	ctx, span := c.startSpan(ctx, operation, method)
	defer span.End()

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.finish(span, operation, 0, start, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := readAPIError(resp, operation, path)
		c.finish(span, operation, resp.StatusCode, start, apiErr)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.finish(span, operation, resp.StatusCode, start, err)
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	c.finish(span, operation, resp.StatusCode, start, nil)
	return nil
}

func (c *Client) startSpan(ctx context.Context, operation, method string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "whatsapp."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("whatsapp.operation", operation),
		),
	)
}

func (c *Client) finish(span trace.Span, operation string, status int, start time.Time, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if c.observe != nil {
		c.observe(operation, status, time.Since(start))
	}
}

func readAPIError(resp *http.Response, operation, endpoint string) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	apiErr := &APIError{
		Operation:  operation,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		RawBody:    strings.TrimSpace(string(raw)),
	}

	var envelope types.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		apiErr.Body = envelope.Error
	}
	return apiErr
}

func requireToken(creds Credentials) error {
	if creds.AccessToken == "" {
		return ErrMissingAccessToken
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
