package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	jsonContentType  = "application/json"

	// multipartThreshold switches event uploads to the transfer manager.
	multipartThreshold = minPartSize
)

// EventArchiveStore is the read side of the state store the archiver needs.
type EventArchiveStore interface {
	ListEvents(ctx context.Context, market string, from, to time.Time) ([]domain.OrderEvent, error)
	LoadSnapshot(ctx context.Context, market string) (domain.LadderSnapshot, error)
}

// ArchiveImpl implements domain.Archiver. Archived records stay in the
// primary store.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	store  EventArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates an ArchiveImpl. reader and audit may be nil; without
// a reader every day is uploaded again.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, store EventArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		store:  store,
		audit:  audit,
	}
}

// EventsPath is the key of one UTC day of order events.
//
//	archive/ETH-BTC/events/2024-03-01.jsonl
func EventsPath(market string, day time.Time) string {
	return fmt.Sprintf("archive/%s/events/%s.jsonl", slug(market), day.UTC().Format("2006-01-02"))
}

// SnapshotPath is the key of the latest snapshot.
//
//	snapshots/ETH-BTC/latest.json
func SnapshotPath(market string) string {
	return fmt.Sprintf("snapshots/%s/latest.json", slug(market))
}

// ArchiveEvents uploads the order events of the UTC day containing day and
// returns how many were written. A day that is already archived, or has no
// events, uploads nothing.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, market string, day time.Time) (int64, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	path := EventsPath(market, from)

	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive events check: %w", err)
		}
		if exists {
			return 0, nil
		}
	}

	events, err := a.store.ListEvents(ctx, market, from, from.Add(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}
	if len(buf) >= int(multipartThreshold) {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(events))
	if err := a.log(ctx, "archive.events", map[string]any{
		"market": market,
		"path":   path,
		"count":  count,
		"day":    from.Format("2006-01-02"),
	}); err != nil {
		return count, err
	}
	return count, nil
}

// UploadSnapshot replaces the latest snapshot object of market. A market
// without a snapshot yet uploads nothing.
func (a *ArchiveImpl) UploadSnapshot(ctx context.Context, market string) error {
	snap, err := a.store.LoadSnapshot(ctx, market)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("s3blob: upload snapshot load: %w", err)
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: upload snapshot marshal: %w", err)
	}
	path := SnapshotPath(market)
	if err := a.writer.Put(ctx, path, bytes.NewReader(body), jsonContentType); err != nil {
		return fmt.Errorf("s3blob: upload snapshot: %w", err)
	}
	return a.log(ctx, "archive.snapshot", map[string]any{
		"market":   market,
		"path":     path,
		"saved_at": snap.SavedAt.Format(time.RFC3339),
	})
}

// FetchSnapshot downloads the latest uploaded snapshot of market.
func (a *ArchiveImpl) FetchSnapshot(ctx context.Context, market string) (domain.LadderSnapshot, error) {
	if a.reader == nil {
		return domain.LadderSnapshot{}, fmt.Errorf("s3blob: fetch snapshot: no reader: %w", domain.ErrNotFound)
	}
	body, err := a.reader.Get(ctx, SnapshotPath(market))
	if err != nil {
		return domain.LadderSnapshot{}, err
	}
	defer body.Close()

	var snap domain.LadderSnapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return domain.LadderSnapshot{}, fmt.Errorf("s3blob: fetch snapshot decode: %w", err)
	}
	return snap, nil
}

func (a *ArchiveImpl) log(ctx context.Context, event string, detail map[string]any) error {
	if a.audit == nil {
		return nil
	}
	if err := a.audit.Log(ctx, event, detail); err != nil {
		return fmt.Errorf("s3blob: %s audit log: %w", event, err)
	}
	return nil
}

func slug(market string) string {
	return string(bytes.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		case ' ':
			return '_'
		}
		return r
	}, []byte(market)))
}

// marshalJSONL writes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
