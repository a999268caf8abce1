package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the base URL of the Cloud Text-to-Speech REST API.
const DefaultEndpoint = "https://texttospeech.googleapis.com"

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 32 << 20

// Synthesizer turns one payload into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, payload Payload, credential string) (*Audio, error)
}

// ClientConfig holds configuration for the REST client.
type ClientConfig struct {
	// Endpoint is the API base URL - defaults to DefaultEndpoint
	Endpoint string

	// Timeout per request - defaults to 30s
	Timeout time.Duration

	// Rate limit requests per minute, 0 disables limiting
	RequestsPerMinute int

	// RetryAttempts is carried from configuration but only a RetryPolicy
	// decides whether a call is repeated.
	RetryAttempts int
}

// Client calls the text:synthesize REST endpoint, one call per chunk.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retry       RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryPolicy sets the retry policy. The default is NoRetry.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// NewClient creates a REST synthesis client.
func NewClient(config ClientConfig, opts ...ClientOption) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}

	c := &Client{
		endpoint:    strings.TrimRight(config.Endpoint, "/"),
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: rate.NewLimiter(limit, 1),
		retry:       NoRetry{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if config.RetryAttempts > 1 {
		if _, ok := c.retry.(NoRetry); ok {
			log.Debug("Retry attempts configured but no retry policy installed", "attempts", config.RetryAttempts)
		}
	}

	return c
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Synthesize sends one payload and returns the decoded audio bytes.
func (c *Client) Synthesize(ctx context.Context, payload Payload, credential string) (*Audio, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrCredentialMissing
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	var audio *Audio
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		audio, err = c.do(ctx, body, credential)
		return err
	})
	if err != nil {
		return nil, err
	}

	audio.Encoding = payload.AudioConfig.AudioEncoding
	audio.SampleRate = payload.AudioConfig.SampleRateHertz
	return audio, nil
}

func (c *Client) do(ctx context.Context, body []byte, credential string) (*Audio, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	endpoint := c.endpoint + "/v1/text:synthesize?" + url.Values{"key": {credential}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp.StatusCode, data)
	}

	var out synthesizeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.AudioContent == "" {
		return nil, ErrEmptyResponse
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}

	log.Debug("Synthesis completed",
		"took", time.Since(start).Round(time.Millisecond),
		"size", humanize.Bytes(uint64(len(audio))))

	return &Audio{Data: audio}, nil
}

func upstreamError(status int, body []byte) *UpstreamError {
	var parsed errorResponse
	message := unknownErrorMessage
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	return &UpstreamError{Status: status, Message: message}
}
