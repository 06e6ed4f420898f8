// Package catalog maintains the shared master perfume catalog from
// identified collection items.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/sillage/internal/collection"
	"github.com/kalambet/sillage/internal/storage"
)

// JobType is the queue type for catalog upserts.
const JobType = "catalog_upsert"

// Payload identifies the collection item to fold into the catalog.
type Payload struct {
	UserID string `json:"user_id"`
	ItemID string `json:"item_id"`
}

// NewJob builds the queue entry for an item.
func NewJob(userID, itemID string) (storage.Job, error) {
	b, err := json.Marshal(Payload{UserID: userID, ItemID: itemID})
	if err != nil {
		return storage.Job{}, err
	}
	return storage.Job{Type: JobType, PayloadJSON: string(b)}, nil
}

// JobStore abstracts the job queue and the rows the worker touches.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetItem(userID, id string) (storage.CollectionItem, error)
	UpsertMasterPerfume(p storage.MasterPerfume) error
}

// Worker processes catalog_upsert jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("catalog worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. Returns true if a job was
// processed, whether or not it succeeded.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.process(ctx, job); err != nil {
		w.logger.Warn("catalog job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	rec, err := w.store.GetItem(payload.UserID, payload.ItemID)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted before the worker got to it.
		w.logger.Debug("catalog item gone, skipping", "item_id", payload.ItemID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading item %s: %w", payload.ItemID, err)
	}

	item, err := collection.FromRecord(rec)
	if err != nil {
		return err
	}
	entry, err := Entry(item)
	if err != nil {
		return err
	}
	if err := w.store.UpsertMasterPerfume(entry); err != nil {
		return fmt.Errorf("upserting %s %s: %w", entry.Brand, entry.Name, err)
	}

	w.logger.Debug("catalog upserted", "brand", entry.Brand, "name", entry.Name)
	return nil
}

// Entry converts a collection item to its master catalog row. The owner's
// review is not shared.
func Entry(item collection.Item) (storage.MasterPerfume, error) {
	id := item.AIData.Identification
	brand := strings.TrimSpace(id.Brand)
	name := strings.TrimSpace(id.Name)
	if brand == "" || name == "" {
		return storage.MasterPerfume{}, fmt.Errorf("item %s lacks brand or name", item.ID)
	}

	notes, err := json.Marshal(id.Notes)
	if err != nil {
		return storage.MasterPerfume{}, err
	}
	usage, err := json.Marshal(id.Usage)
	if err != nil {
		return storage.MasterPerfume{}, err
	}
	full, err := json.Marshal(id)
	if err != nil {
		return storage.MasterPerfume{}, err
	}

	return storage.MasterPerfume{
		Brand:       brand,
		Name:        name,
		Description: id.Description,
		Notes:       string(notes),
		Usage:       string(usage),
		ImageURL:    item.PhotoURL,
		FullAIData:  string(full),
	}, nil
}
