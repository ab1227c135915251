// Package archive keeps completed conversation items and their audio.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-realtime/core/conversations"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNotFound = errors.New("archive: not found")

// Record is an archived item.
type Record struct {
	ItemID      string
	Role        conversations.Role
	Type        conversations.ItemType
	SpeakerID   string
	Content     string
	CompletedAt time.Time
	HasClip     bool
}

// Store is a sqlite backed archive. It implements conversations.Exporter.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the archive at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Export stores the audio container of itemID, replacing an earlier export.
func (s *Store) Export(ctx context.Context, itemID string, container []byte) error {
	ctx, span := tracer.Start(ctx, "archive clip", trace.WithAttributes(
		attribute.String("item_id", itemID),
		attribute.Int("bytes", len(container)),
	))
	defer span.End()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clips(item_id, container, exported_at) VALUES (?,?,?)
		ON CONFLICT(item_id) DO UPDATE SET container=excluded.container, exported_at=excluded.exported_at`,
		itemID, container, s.now().UnixMilli(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to archive clip %s: %w", itemID, err)
	}
	return nil
}

// SaveItem stores the text side of a completed item.
func (s *Store) SaveItem(ctx context.Context, item conversations.Item) error {
	completedAt := item.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items(item_id, role, item_type, speaker_id, content, completed_at) VALUES (?,?,?,?,?,?)
		ON CONFLICT(item_id) DO UPDATE SET
		  role=excluded.role,
		  item_type=excluded.item_type,
		  speaker_id=excluded.speaker_id,
		  content=excluded.content,
		  completed_at=excluded.completed_at`,
		item.ID, string(item.Role), string(item.Type), item.SpeakerID, item.Content(), completedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive item %s: %w", item.ID, err)
	}
	return nil
}

// Clip returns the stored container for itemID.
func (s *Store) Clip(ctx context.Context, itemID string) ([]byte, error) {
	var container []byte
	err := s.db.QueryRowContext(ctx, `SELECT container FROM clips WHERE item_id = ?`, itemID).Scan(&container)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return container, nil
}

// List returns archived items in completion order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.item_id, i.role, i.item_type, i.speaker_id, i.content, i.completed_at, c.item_id IS NOT NULL
		FROM items i LEFT JOIN clips c ON c.item_id = i.item_id
		ORDER BY i.completed_at, i.rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r           Record
			role, typ   string
			completedAt int64
		)
		if err := rows.Scan(&r.ItemID, &role, &typ, &r.SpeakerID, &r.Content, &completedAt, &r.HasClip); err != nil {
			return nil, err
		}
		r.Role = conversations.Role(role)
		r.Type = conversations.ItemType(typ)
		r.CompletedAt = time.UnixMilli(completedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
