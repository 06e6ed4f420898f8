package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/kalambet/sillage/internal/ollama"
)

// puller is implemented by backends that host their own models.
type puller interface {
	Model() string
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error
}

// EnsureReady checks that the Engine is reachable. For local backends the
// vision model is pulled when missing, with progress written to w.
func EnsureReady(ctx context.Context, e Engine, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("%s backend is not reachable", e.Name())
	}

	p, ok := e.(puller)
	if !ok || p.Model() == "" {
		fmt.Fprintf(w, "engine %s: ready\n", e.Name())
		return nil
	}

	model := p.Model()
	if p.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", model)
	err := p.PullModel(ctx, model, func(pp ollama.PullProgress) {
		if pp.Total > 0 {
			pct := float64(pp.Completed) / float64(pp.Total) * 100
			fmt.Fprintf(w, "  %s %.0f%%\n", pp.Status, pct)
		} else {
			fmt.Fprintf(w, "  %s\n", pp.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
