package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/sillage/internal/extract"
)

// Engine abstracts a vision-capable inference backend (Gemini or a local
// Ollama model). Analysis and consultation use this interface instead of
// depending on a concrete client.
type Engine interface {
	// Infer sends one image plus an instruction and returns the raw response
	// text. When req.Schema is non-nil, structured JSON output is requested.
	Infer(ctx context.Context, req InferRequest) (string, error)

	// Generate sends a text-only prompt.
	Generate(ctx context.Context, prompt string, schema *extract.Schema) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// Name identifies the backend in logs and status output.
	Name() string
}

// InferRequest is a single image inference call.
type InferRequest struct {
	Image       []byte
	MIMEType    string
	Instruction string
	Schema      *extract.Schema
}

var (
	ErrEmptyImage       = errors.New("engine: image is empty")
	ErrEmptyInstruction = errors.New("engine: instruction is empty")
	ErrEmptyResponse    = errors.New("engine: empty response")
)

// Validate rejects requests that must never reach the network.
func (r InferRequest) Validate() error {
	if len(r.Image) == 0 {
		return ErrEmptyImage
	}
	if r.Instruction == "" {
		return ErrEmptyInstruction
	}
	return nil
}

// RateLimitError is returned when the backend answers with HTTP 429.
type RateLimitError struct {
	Backend string
	Body    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited", e.Backend)
}

// StatusError is returned for any other non-success status.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Backend, e.StatusCode, e.Body)
}

// IsRateLimited reports whether err signals throttling by the backend.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// finish maps an empty successful answer to ErrEmptyResponse.
func finish(text string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func classify(backend string, code int, body string) error {
	if code == http.StatusTooManyRequests {
		return &RateLimitError{Backend: backend, Body: body}
	}
	return &StatusError{Backend: backend, StatusCode: code, Body: body}
}
