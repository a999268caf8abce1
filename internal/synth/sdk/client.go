// Package sdk implements synth.Synthesizer on top of the Cloud Text-to-Speech
// gRPC client.
package sdk

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// speechClient is the subset of the generated client that is used.
type speechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type gapicClient struct {
	c *texttospeech.Client
}

func (g gapicClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return g.c.SynthesizeSpeech(ctx, req)
}

func (g gapicClient) Close() error {
	return g.c.Close()
}

// dialer creates a speech client for an API key.
type dialer func(ctx context.Context, credential string) (speechClient, error)

func dialGAPIC(ctx context.Context, credential string) (speechClient, error) {
	c, err := texttospeech.NewClient(ctx, option.WithAPIKey(credential))
	if err != nil {
		return nil, err
	}
	return gapicClient{c: c}, nil
}

// Client synthesizes over gRPC. The underlying connection is created for the
// first credential it sees and replaced when the credential changes.
type Client struct {
	dial        dialer
	timeout     time.Duration
	rateLimiter *rate.Limiter

	mu         sync.Mutex
	conn       speechClient
	credential string
}

// New creates a gRPC synthesis client.
func New(timeout time.Duration, requestsPerMinute int) *Client {
	return newWithDialer(dialGAPIC, timeout, requestsPerMinute)
}

func newWithDialer(dial dialer, timeout time.Duration, requestsPerMinute int) *Client {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		dial:        dial,
		timeout:     timeout,
		rateLimiter: rate.NewLimiter(limit, 1),
	}
}

var _ synth.Synthesizer = (*Client)(nil)

// Synthesize implements synth.Synthesizer.
func (c *Client) Synthesize(ctx context.Context, payload synth.Payload, credential string) (*synth.Audio, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, synth.ErrCredentialMissing
	}

	req, err := toRequest(payload)
	if err != nil {
		return nil, err
	}

	conn, err := c.connection(ctx, credential)
	if err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := conn.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fromStatus(err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, synth.ErrEmptyResponse
	}

	return &synth.Audio{
		Data:       resp.GetAudioContent(),
		Encoding:   payload.AudioConfig.AudioEncoding,
		SampleRate: payload.AudioConfig.SampleRateHertz,
	}, nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.credential = ""
	return err
}

func (c *Client) connection(ctx context.Context, credential string) (speechClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.credential == credential {
		return c.conn, nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Debug("Failed to close previous speech client", "error", err)
		}
		c.conn = nil
	}

	conn, err := c.dial(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	c.conn = conn
	c.credential = credential
	return conn, nil
}

func toRequest(p synth.Payload) (*texttospeechpb.SynthesizeSpeechRequest, error) {
	encoding, ok := texttospeechpb.AudioEncoding_value[strings.ToUpper(p.AudioConfig.AudioEncoding)]
	if !ok {
		return nil, fmt.Errorf("unsupported audio encoding %q", p.AudioConfig.AudioEncoding)
	}

	input := &texttospeechpb.SynthesisInput{
		InputSource: &texttospeechpb.SynthesisInput_Text{Text: p.Input.Text},
	}
	if p.Input.Prompt != "" {
		prompt := p.Input.Prompt
		input.Prompt = &prompt
	}

	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: p.Voice.LanguageCode,
			Name:         p.Voice.Name,
			ModelName:    p.Voice.ModelName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding(encoding),
			SpeakingRate:    p.AudioConfig.SpeakingRate,
			SampleRateHertz: int32(p.AudioConfig.SampleRateHertz), //nolint:gosec
		},
	}, nil
}

// fromStatus maps a gRPC status onto the HTTP status the REST API would
// have returned.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("synthesis request failed: %w", err)
	}

	code := http.StatusInternalServerError
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		code = http.StatusBadRequest
	case codes.Unauthenticated:
		code = http.StatusUnauthorized
	case codes.PermissionDenied:
		code = http.StatusForbidden
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.ResourceExhausted:
		code = http.StatusTooManyRequests
	case codes.Unavailable:
		code = http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		code = http.StatusGatewayTimeout
	case codes.Canceled:
		return fmt.Errorf("synthesis request cancelled: %w", err)
	}

	message := st.Message()
	if message == "" {
		message = "Unknown error"
	}
	return &synth.UpstreamError{Status: code, Message: message}
}
