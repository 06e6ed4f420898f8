// Package scan runs a full perfume scan: quota gate, photo upload and
// analysis, then assembly and persistence of the collection item.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/catalog"
	"github.com/kalambet/sillage/internal/collection"
	"github.com/kalambet/sillage/internal/probe"
	"github.com/kalambet/sillage/internal/quota"
	"github.com/kalambet/sillage/internal/storage"
)

var (
	ErrNoUser     = errors.New("scan: user id is required")
	ErrEmptyFrame = errors.New("scan: frame has no image data")
)

// Analyzer runs the full identification.
type Analyzer interface {
	Analyze(ctx context.Context, frame analysis.Frame) analysis.Result
}

// Uploader stores the photo and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Gate is the quota gate.
type Gate interface {
	Require(userID string, action quota.Action) (quota.Decision, error)
	Record(userID string, action quota.Action) error
}

// Store persists collection items and catalog jobs.
type Store interface {
	FindItemByPhoto(userID, photoURL string) (storage.CollectionItem, error)
	SaveItem(it storage.CollectionItem) error
	EnqueueJob(job storage.Job) (string, error)
}

// Request is one scan. When PhotoURL is set the photo is assumed to be
// stored already and no upload happens.
type Request struct {
	UserID   string
	Frame    analysis.Frame
	PhotoURL string
}

// Outcome is the result of a scan. Item is set only for identified perfumes.
type Outcome struct {
	Result    analysis.Result  `json:"result"`
	Item      *collection.Item `json:"item,omitempty"`
	PhotoURL  string           `json:"photo_url,omitempty"`
	Duplicate bool             `json:"duplicate,omitempty"`
}

// Service wires the scan pipeline together.
type Service struct {
	gate     Gate
	analyzer Analyzer
	uploader Uploader
	store    Store
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for photo paths and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(gate Gate, analyzer Analyzer, uploader Uploader, store Store, opts ...Option) *Service {
	s := &Service{
		gate:     gate,
		analyzer: analyzer,
		uploader: uploader,
		store:    store,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan runs req through the pipeline:
//  1. Quota check (fails fast with *quota.DeniedError)
//  2. Upload and analysis, concurrently
//  3. For identified perfumes: dedupe by photo, record usage, save, enqueue catalog job
//
// Not-identified and failed analyses are returned without error and without
// consuming quota.
func (s *Service) Scan(ctx context.Context, req Request) (Outcome, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Outcome{}, ErrNoUser
	}
	if len(req.Frame.Image) == 0 {
		return Outcome{}, ErrEmptyFrame
	}
	if req.Frame.MIMEType == "" {
		req.Frame.MIMEType = "image/jpeg"
	}

	if _, err := s.gate.Require(req.UserID, quota.ActionScan); err != nil {
		return Outcome{}, err
	}

	var (
		out    Outcome
		result analysis.Result
	)
	out.PhotoURL = req.PhotoURL

	g, gCtx := errgroup.WithContext(ctx)
	if out.PhotoURL == "" {
		g.Go(func() error {
			path := fmt.Sprintf("%s/%d.%s", req.UserID, s.now().UnixMilli(), req.Frame.Extension())
			url, err := s.uploader.Upload(gCtx, path, req.Frame.Image, req.Frame.MIMEType)
			if err != nil {
				return fmt.Errorf("uploading photo: %w", err)
			}
			out.PhotoURL = url
			return nil
		})
	}
	g.Go(func() error {
		result = s.analyzer.Analyze(gCtx, req.Frame)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}
	out.Result = result

	s.logger.Info("scan analyzed",
		"user_id", req.UserID,
		"kind", result.Kind,
		"attempts", result.Attempts,
	)

	if result.Kind != analysis.KindIdentified {
		return out, nil
	}

	if existing, err := s.findExisting(req.UserID, out.PhotoURL); err != nil {
		return Outcome{}, err
	} else if existing != nil {
		out.Item = existing
		out.Duplicate = true
		return out, nil
	}

	item, err := collection.Assemble(result.Identified, out.PhotoURL, req.UserID, s.now())
	if err != nil {
		return Outcome{}, err
	}

	if err := s.gate.Record(req.UserID, quota.ActionScan); err != nil {
		return Outcome{}, err
	}

	rec, err := collection.ToRecord(item)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.store.SaveItem(rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			existing, ferr := s.findExisting(req.UserID, out.PhotoURL)
			if ferr == nil && existing != nil {
				out.Item = existing
				out.Duplicate = true
				return out, nil
			}
		}
		return Outcome{}, fmt.Errorf("saving collection item: %w", err)
	}
	out.Item = &item

	s.enqueueCatalog(req.UserID, item.ID)
	return out, nil
}

func (s *Service) findExisting(userID, photoURL string) (*collection.Item, error) {
	rec, err := s.store.FindItemByPhoto(userID, photoURL)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking for existing item: %w", err)
	}
	item, err := collection.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Service) enqueueCatalog(userID, itemID string) {
	job, err := catalog.NewJob(userID, itemID)
	if err == nil {
		_, err = s.store.EnqueueJob(job)
	}
	if err != nil {
		s.logger.Warn("failed to enqueue catalog job", "item_id", itemID, "error", err)
	}
}

// Submitter adapts the service to probe.Submitter for a fixed user. Each
// outcome is passed to onOutcome when it is non-nil.
func (s *Service) Submitter(userID string, onOutcome func(Outcome)) probe.Submitter {
	return &submitter{svc: s, userID: userID, onOutcome: onOutcome}
}

type submitter struct {
	svc       *Service
	userID    string
	onOutcome func(Outcome)
}

func (sub *submitter) Submit(ctx context.Context, frame analysis.Frame) error {
	out, err := sub.svc.Scan(ctx, Request{UserID: sub.userID, Frame: frame})
	if err != nil {
		return err
	}
	if sub.onOutcome != nil {
		sub.onOutcome(out)
	}
	return nil
}
