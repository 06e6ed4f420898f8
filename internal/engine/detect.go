package engine

import (
	"fmt"

	"github.com/kalambet/sillage/internal/gemini"
)

// Backend names accepted by Detect.
const (
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	GeminiBaseURL string
	GeminiModel   string
	GeminiAPIKey  string
	OllamaBaseURL string
	OllamaModel   string
}

// Detect returns the configured backend. An empty Backend picks Gemini when
// an API key is present and falls back to the local Ollama server otherwise.
func Detect(cfg DetectConfig) (Engine, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendOllama
		if cfg.GeminiAPIKey != "" {
			backend = BackendGemini
		}
	}

	switch backend {
	case BackendGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini backend selected but gemini.api_key is not set")
		}
		c := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		if cfg.GeminiBaseURL != "" {
			c = gemini.NewClientWithBaseURL(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
		}
		return NewGeminiEngine(c), nil
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", backend)
	}
}
