// Package transcribe wraps the external speech-to-text/diarization service.
// The engine itself is opaque; this package only owns the request/response
// contract and the fixed channel-role bindings.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/havenline/call-qa/internal/config"
	"github.com/havenline/call-qa/internal/pkg/apperr"
	"github.com/havenline/call-qa/internal/pkg/httpretry"
	"github.com/havenline/call-qa/internal/transcript"
)

// Recordings are stereo: the counselor is always on channel 1 and the
// caller on channel 0. The bindings are part of the collaborator contract.
var channelRoles = []ChannelRole{
	{Channel: 1, Role: "AGENT"},
	{Channel: 0, Role: "CUSTOMER"},
}

// ChannelRole binds one audio channel to a speaker role.
type ChannelRole struct {
	Channel int    `json:"channel"`
	Role    string `json:"role"`
}

// Transcriber produces a diarized raw transcript for an audio object.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURI string) (*transcript.Raw, error)
}

// Client is the HTTP implementation of Transcriber, using the shared
// retrying client for transient upstream failures.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

type transcribeRequest struct {
	AudioURI     string        `json:"audioUri"`
	ChannelRoles []ChannelRole `json:"channelRoles"`
}

// NewClient builds a transcription client from config. The API key is read
// from the environment variable the config names, never from the file itself.
func NewClient(cfg config.TranscribeConfig) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout()}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		http:    httpretry.NewRetryClient(httpClient, cfg.MaxRetries),
	}
}

// Transcribe submits the audio URI with the fixed channel bindings and
// decodes the collaborator's {summary, transcript} reply. The reply is
// untrusted until it passes the normalizer.
func (c *Client) Transcribe(ctx context.Context, audioURI string) (*transcript.Raw, error) {
	body, err := json.Marshal(transcribeRequest{
		AudioURI:     audioURI,
		ChannelRoles: channelRoles,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling transcribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.External, err, "transcription call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, apperr.New(apperr.External, "transcription returned status %d: %s", resp.StatusCode, string(data))
	}

	var raw transcript.Raw
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperr.Wrap(apperr.External, err, "decoding transcription reply")
	}
	return &raw, nil
}
