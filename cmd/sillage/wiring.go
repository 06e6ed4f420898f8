package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/config"
	"github.com/kalambet/sillage/internal/consult"
	"github.com/kalambet/sillage/internal/engine"
	"github.com/kalambet/sillage/internal/objectstore"
	"github.com/kalambet/sillage/internal/profile"
	"github.com/kalambet/sillage/internal/quota"
	"github.com/kalambet/sillage/internal/scan"
	"github.com/kalambet/sillage/internal/storage"
)

// app is the in-process object graph shared by the server, mcp and watch
// commands.
type app struct {
	cfg        config.Config
	store      *storage.Store
	photos     *objectstore.FS
	engine     engine.Engine
	controller *analysis.Controller
	profiles   *profile.Manager
	gate       *quota.Gate
	scanner    *scan.Service
	consultant *consult.Consultant
}

func setupLogging(cfg config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Log.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func buildApp(cfg config.Config) (*app, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.Engine.Backend,
		GeminiBaseURL: cfg.Gemini.BaseURL,
		GeminiModel:   cfg.Gemini.Model,
		GeminiAPIKey:  cfg.Gemini.APIKey,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OllamaModel:   cfg.Ollama.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	photos, err := objectstore.NewFS(filepath.Join(cfg.Storage.DataDir, "photos"), cfg.Storage.PublicBaseURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening photo store: %w", err)
	}

	controller := analysis.NewController(eng,
		analysis.WithMaxAttempts(cfg.Analysis.MaxAttempts),
		analysis.WithBackoffBase(cfg.Analysis.BackoffBase),
	)
	profiles := profile.NewManager(store)
	gate := quota.NewGate(profiles, store, quota.Limits{
		ScanDaily:    cfg.Quota.ScanDailyLimit,
		ConsultDaily: cfg.Quota.ConsultDailyLimit,
	}, nil)

	return &app{
		cfg:        cfg,
		store:      store,
		photos:     photos,
		engine:     eng,
		controller: controller,
		profiles:   profiles,
		gate:       gate,
		scanner:    scan.NewService(gate, controller, photos, store),
		consultant: consult.NewConsultant(eng, gate),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
