package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shoplight/attribution/internal/domain"
)

// Service implements event ingestion. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates an ingest service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Ingest validates the draft, applies defaults, and writes it through the
// repository's atomic insert-or-merge.
func (s *Service) Ingest(ctx context.Context, e *domain.TrackingEvent) (Result, error) {
	if e.StoreID == "" {
		return Result{}, ErrMissingStore
	}
	if e.EventName == "" {
		return Result{}, ErrMissingEventName
	}
	if e.OccurredAt.IsZero() {
		return Result{}, ErrMissingTimestamp
	}
	if e.Source == "" {
		e.Source = domain.SourceBrowser
	}
	if !e.Source.Valid() {
		return Result{}, ErrInvalidSource
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	return s.repo.Upsert(ctx, e)
}
