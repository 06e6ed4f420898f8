package engine

import (
	"context"
	"errors"

	"github.com/kalambet/sillage/internal/extract"
	"github.com/kalambet/sillage/internal/gemini"
)

// GeminiEngine adapts gemini.Client to the Engine interface.
type GeminiEngine struct {
	client *gemini.Client
}

// NewGeminiEngine wraps an existing client.
func NewGeminiEngine(client *gemini.Client) *GeminiEngine {
	return &GeminiEngine{client: client}
}

func (e *GeminiEngine) Name() string { return "gemini" }

func (e *GeminiEngine) Infer(ctx context.Context, req InferRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	parts := []gemini.Part{
		gemini.TextPart(req.Instruction),
		gemini.ImagePart(req.Image, mime),
	}
	text, err := e.client.Generate(ctx, parts, req.Schema)
	return finish(text, e.wrap(err))
}

func (e *GeminiEngine) Generate(ctx context.Context, prompt string, schema *extract.Schema) (string, error) {
	if prompt == "" {
		return "", ErrEmptyInstruction
	}
	text, err := e.client.Generate(ctx, []gemini.Part{gemini.TextPart(prompt)}, schema)
	return finish(text, e.wrap(err))
}

func (e *GeminiEngine) IsRunning(ctx context.Context) bool {
	return e.client.Ping(ctx) == nil
}

func (e *GeminiEngine) wrap(err error) error {
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		return classify(e.Name(), apiErr.StatusCode, apiErr.Body)
	}
	return err
}
