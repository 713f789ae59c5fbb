// Package recorder keeps a local history of cycle reports for offline
// analysis.
package recorder

import (
	"context"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// Recorder persists cycle reports.
type Recorder interface {
	RecordCycle(ctx context.Context, rep domain.CycleReport) error
	RecentCycles(ctx context.Context, market string, limit int) ([]domain.CycleReport, error)
	Close() error
}

// NoopRecorder is used when no SQLite path is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordCycle(context.Context, domain.CycleReport) error { return nil }
func (NoopRecorder) RecentCycles(context.Context, string, int) ([]domain.CycleReport, error) {
	return nil, nil
}
func (NoopRecorder) Close() error { return nil }
