package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ParamsStore persists the strategy parameter record.
type ParamsStore interface {
	SaveParams(ctx context.Context, rec ParamsRecord) error
	LoadParams(ctx context.Context, market string) (ParamsRecord, error)
}

// OrderEventStore persists the order-event log.
type OrderEventStore interface {
	AppendEvents(ctx context.Context, events []OrderEvent) error
	RecentEvents(ctx context.Context, market string, limit int) ([]OrderEvent, error)
	ListEvents(ctx context.Context, market string, from, to time.Time) ([]OrderEvent, error)
}

// SnapshotStore persists the latest ladder snapshot.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap LadderSnapshot) error
	LoadSnapshot(ctx context.Context, market string) (LadderSnapshot, error)
}

// StateStore is everything the engine persists between cycles.
type StateStore interface {
	ParamsStore
	OrderEventStore
	SnapshotStore
}

// AuditEntry is a single operator-visible audit record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore records lifecycle events (start, stop, boundary, archive).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
