package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/sillage/internal/api"
	"github.com/kalambet/sillage/internal/catalog"
	"github.com/kalambet/sillage/internal/config"
	"github.com/kalambet/sillage/internal/engine"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sillage server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sillage server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sillage system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sillage.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "sillage version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	apiToken, err := config.EnsureAPIToken(&cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice: a healthy server already owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sillage is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sillage is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := engine.EnsureReady(ctx, a.engine, os.Stderr); err != nil {
		return err
	}

	handler := api.NewAppHandler(api.AppDeps{
		Store:    a.store,
		Profiles: a.profiles,
		Scanner:  a.scanner,
		Prober:   a.controller,
		Consult:  a.consultant,
		Quota:    a.gate,
		Photos:   a.photos.Handler(),
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	worker := catalog.NewWorker(a.store, 500*time.Millisecond)
	go worker.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sillage listening", "addr", addr, "engine", a.engine.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("sillage is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sillage (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sillage (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Engine", "%s", cfg.Engine.Backend)
	switch cfg.Engine.Backend {
	case engine.BackendOllama:
		printStatus("Model", "%s at %s", cfg.Ollama.Model, cfg.Ollama.BaseURL)
		if ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running")
		}
	default:
		printStatus("Model", "%s", cfg.Gemini.Model)
		if cfg.Gemini.APIKey == "" {
			printStatus("API key", "missing (set SILLAGE_GEMINI_API_KEY)")
		} else {
			printStatus("API key", "configured")
		}
	}

	if running {
		showStats(ctx, cfg)
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Daily limits", "%d scans, %d consultations (free tier)", cfg.Quota.ScanDailyLimit, cfg.Quota.ConsultDailyLimit)
	return nil
}

func showStats(ctx context.Context, cfg config.Config) {
	if cfg.Server.APIToken == "" {
		return
	}
	c := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.APIToken,
		user:       "status",
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	resp, err := c.get(ctx, "/v1/stats")
	if err != nil {
		return
	}
	var stats struct {
		CatalogPerfumes int            `json:"catalog_perfumes"`
		Jobs            map[string]int `json:"jobs"`
	}
	if err := decodeJSON(resp, &stats); err != nil {
		printStatus("API", "%v", err)
		return
	}
	printStatus("Catalog", "%d perfumes", stats.CatalogPerfumes)
	printStatus("Jobs", "%d pending, %d failed", stats.Jobs["pending"], stats.Jobs["failed"])
}
