// Package maintenance reclaims resources held by expired uploads.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tablechat/tablechat/internal/storage"
)

const defaultSweepInterval = time.Minute

// Registry evicts expired uploads and reports their names.
type Registry interface {
	Sweep() []string
}

// Archive removes the original document of an upload.
type Archive interface {
	Remove(ctx context.Context, tableName string) error
}

type Config struct {
	SweepInterval time.Duration
}

type Service struct {
	Registry Registry
	// Archive is optional; without it sweeps only evict.
	Archive Archive
	Config  Config
	Logger  *slog.Logger
}

type SweepSummary struct {
	TablesEvicted    int `json:"tables_evicted"`
	DocumentsRemoved int `json:"documents_removed"`
	Failures         int `json:"failures"`
}

// Run sweeps on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunSweepOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "sweep cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil && summary.TablesEvicted > 0 {
				s.Logger.InfoContext(ctx, "sweep cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunSweepOnce evicts expired uploads and deletes their archived documents.
// A failed document removal is counted and the sweep goes on; the document
// is not retried.
func (s *Service) RunSweepOnce(ctx context.Context) (SweepSummary, error) {
	if s.Registry == nil {
		return SweepSummary{}, fmt.Errorf("registry is required")
	}

	names := s.Registry.Sweep()
	summary := SweepSummary{TablesEvicted: len(names)}
	sweepTablesEvictedTotal.Add(float64(len(names)))
	if s.Archive == nil {
		sweepRunsTotal.WithLabelValues("success").Inc()
		return summary, nil
	}

	var firstErr error
	for _, name := range names {
		err := s.Archive.Remove(ctx, name)
		switch {
		case err == nil:
			summary.DocumentsRemoved++
		case errors.Is(err, storage.ErrObjectNotFound):
		default:
			summary.Failures++
			if firstErr == nil {
				firstErr = fmt.Errorf("remove archived document for %s: %w", name, err)
			}
			if s.Logger != nil {
				s.Logger.WarnContext(ctx, "archived document removal failed", slog.String("table", name), slog.Any("error", err))
			}
		}
	}
	sweepDocumentsRemovedTotal.Add(float64(summary.DocumentsRemoved))

	if firstErr != nil {
		sweepRunsTotal.WithLabelValues("failed").Inc()
		return summary, firstErr
	}
	sweepRunsTotal.WithLabelValues("success").Inc()
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Config.SweepInterval <= 0 {
		s.Config.SweepInterval = defaultSweepInterval
	}
}
