package sdk

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSpeech struct {
	resp   *texttospeechpb.SynthesizeSpeechResponse
	err    error
	last   *texttospeechpb.SynthesizeSpeechRequest
	closed bool
}

func (f *fakeSpeech) SynthesizeSpeech(_ context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.last = req
	return f.resp, f.err
}

func (f *fakeSpeech) Close() error {
	f.closed = true
	return nil
}

func newFakeClient(fake *fakeSpeech, dials *[]string) *Client {
	return newWithDialer(func(_ context.Context, credential string) (speechClient, error) {
		*dials = append(*dials, credential)
		return fake, nil
	}, 0, 0)
}

func TestClient_GeminiRequest(t *testing.T) {
	fake := &fakeSpeech{resp: &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("RIFF")}}
	var dials []string
	c := newFakeClient(fake, &dials)

	payload, _ := synth.Build("Hi.", synth.ReadRequest{Engine: synth.EngineGemini, Prompt: "whisper softly"}, synth.DefaultEngineConfig())
	audio, err := c.Synthesize(context.Background(), payload, "key-1")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio.Data) != "RIFF" {
		t.Errorf("Unexpected audio %q", audio.Data)
	}
	if audio.SampleRate != synth.GeminiSampleRateHertz {
		t.Errorf("Expected sample rate %d, got %d", synth.GeminiSampleRateHertz, audio.SampleRate)
	}

	req := fake.last
	if req.GetInput().GetText() != "Hi." {
		t.Errorf("Unexpected text %q", req.GetInput().GetText())
	}
	if req.GetInput().GetPrompt() != "whisper softly" {
		t.Errorf("Unexpected prompt %q", req.GetInput().GetPrompt())
	}
	if req.GetVoice().GetModelName() != "gemini-2.5-flash-preview-tts" {
		t.Errorf("Unexpected model %q", req.GetVoice().GetModelName())
	}
	if req.GetAudioConfig().GetAudioEncoding() != texttospeechpb.AudioEncoding_LINEAR16 {
		t.Errorf("Unexpected encoding %v", req.GetAudioConfig().GetAudioEncoding())
	}
}

func TestClient_ReusesConnection(t *testing.T) {
	fake := &fakeSpeech{resp: &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("x")}}
	var dials []string
	c := newFakeClient(fake, &dials)

	payload, _ := synth.Build("Hi.", synth.ReadRequest{}, synth.DefaultEngineConfig())
	for _, key := range []string{"a", "a", "b"} {
		if _, err := c.Synthesize(context.Background(), payload, key); err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
	}
	if len(dials) != 2 {
		t.Errorf("Expected 2 dials, got %d (%v)", len(dials), dials)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !fake.closed {
		t.Error("Expected connection to be closed")
	}
}

func TestClient_Errors(t *testing.T) {
	payload, _ := synth.Build("Hi.", synth.ReadRequest{}, synth.DefaultEngineConfig())

	var dials []string
	c := newFakeClient(&fakeSpeech{}, &dials)
	if _, err := c.Synthesize(context.Background(), payload, ""); !errors.Is(err, synth.ErrCredentialMissing) {
		t.Errorf("Expected ErrCredentialMissing, got %v", err)
	}
	if len(dials) != 0 {
		t.Errorf("Expected no dial without a credential, got %d", len(dials))
	}

	c = newFakeClient(&fakeSpeech{resp: &texttospeechpb.SynthesizeSpeechResponse{}}, &dials)
	if _, err := c.Synthesize(context.Background(), payload, "k"); !errors.Is(err, synth.ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}

	c = newFakeClient(&fakeSpeech{err: status.Error(codes.PermissionDenied, "API key not valid")}, &dials)
	_, err := c.Synthesize(context.Background(), payload, "k")
	var upstream *synth.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusForbidden || upstream.Message != "API key not valid" {
		t.Errorf("Unexpected upstream error %+v", upstream)
	}

	bad := payload
	bad.AudioConfig.AudioEncoding = "FLAC9"
	if _, err := c.Synthesize(context.Background(), bad, "k"); err == nil {
		t.Error("Expected error for unsupported encoding")
	}
}
