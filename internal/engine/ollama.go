package engine

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/kalambet/sillage/internal/extract"
	"github.com/kalambet/sillage/internal/ollama"
)

// OllamaEngine adapts ollama.Client to the Engine interface using a local
// vision model such as llava.
type OllamaEngine struct {
	client *ollama.Client
	model  string
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL, model string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL), model: model}
}

func (e *OllamaEngine) Name() string { return "ollama" }

// Model returns the vision model this engine runs.
func (e *OllamaEngine) Model() string { return e.model }

func (e *OllamaEngine) Infer(ctx context.Context, req InferRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	msgs := []ollama.Message{{
		Role:    "user",
		Content: req.Instruction,
		Images:  []string{base64.StdEncoding.EncodeToString(req.Image)},
	}}
	text, err := e.client.Chat(ctx, e.model, msgs, req.Schema)
	return finish(text, e.wrap(err))
}

func (e *OllamaEngine) Generate(ctx context.Context, prompt string, schema *extract.Schema) (string, error) {
	if prompt == "" {
		return "", ErrEmptyInstruction
	}
	text, err := e.client.Chat(ctx, e.model, []ollama.Message{{Role: "user", Content: prompt}}, schema)
	return finish(text, e.wrap(err))
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

// HasModel reports whether the given model name is available locally.
func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

// PullModel downloads a model, reporting progress through onProgress.
func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error {
	return e.client.PullModel(ctx, name, onProgress)
}

func (e *OllamaEngine) wrap(err error) error {
	var se *ollama.StatusError
	if errors.As(err, &se) {
		return classify(e.Name(), se.StatusCode, se.Body)
	}
	return err
}
