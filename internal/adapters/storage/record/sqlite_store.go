package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursedesk/internal/adapters/storage"
	domain "coursedesk/internal/domain/record"
)

// timeFormat matches the backend's "YYYY-MM-DD HH:MM:SS" timestamps.
const timeFormat = "2006-01-02 15:04:05"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a new record store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// NewID returns a 24-character lowercase hex id derived from a random UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

const selectColumns = "id, created_at, updated_at, fields"

// List returns all records of appID in insertion order.
// PRE: appID is non-empty
// POST: Returns an empty slice for an unknown app
func (s *SQLiteStore) List(ctx context.Context, appID string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM record WHERE app_id = ? ORDER BY seq", appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Record{}
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetByID retrieves one record.
// PRE: appID and id are non-empty
// POST: Returns the record or ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, appID, id string) (domain.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM record WHERE app_id = ? AND id = ?", appID, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("record %s/%s: %w", appID, id, ErrNotFound)
	}
	return rec, err
}

// Insert stores a new record under a fresh id.
// PRE: appID is non-empty
// POST: Record is persisted with created_at set and updated_at null
func (s *SQLiteStore) Insert(ctx context.Context, appID string, fields domain.Fields) (domain.Record, error) {
	if fields == nil {
		fields = domain.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode fields: %w", err)
	}
	now := s.now().Truncate(time.Second)
	id := NewID()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO record (app_id, id, created_at, fields) VALUES (?, ?, ?, ?)",
		appID, id, now.Format(timeFormat), string(data),
	)
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{ID: id, CreatedAt: now, Fields: fields.Clone()}, nil
}

// Merge overwrites the given fields of a record and keeps all others.
// PRE: appID and id are non-empty
// POST: Returns the merged record or ErrNotFound
func (s *SQLiteStore) Merge(ctx context.Context, appID, id string, fields domain.Fields) (domain.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Record{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM record WHERE app_id = ? AND id = ?", appID, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("record %s/%s: %w", appID, id, ErrNotFound)
	}
	if err != nil {
		return domain.Record{}, err
	}

	for k, v := range fields {
		rec.Fields[k] = v
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return domain.Record{}, fmt.Errorf("encode fields: %w", err)
	}
	now := s.now().Truncate(time.Second)
	if _, err := tx.ExecContext(ctx,
		"UPDATE record SET fields = ?, updated_at = ? WHERE app_id = ? AND id = ?",
		string(data), now.Format(timeFormat), appID, id,
	); err != nil {
		return domain.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Record{}, err
	}
	rec.UpdatedAt = &now
	return rec, nil
}

// Delete removes a record.
// PRE: appID and id are non-empty
// POST: Record is gone, or ErrNotFound when it did not exist
func (s *SQLiteStore) Delete(ctx context.Context, appID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM record WHERE app_id = ? AND id = ?", appID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s/%s: %w", appID, id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (domain.Record, error) {
	var (
		rec       domain.Record
		createdAt string
		updatedAt sql.NullString
		fields    string
	)
	if err := row.Scan(&rec.ID, &createdAt, &updatedAt, &fields); err != nil {
		return domain.Record{}, err
	}
	rec.CreatedAt = domain.ParseTimestamp(createdAt)
	if updatedAt.Valid {
		t := domain.ParseTimestamp(updatedAt.String)
		rec.UpdatedAt = &t
	}
	dec := json.NewDecoder(strings.NewReader(fields))
	dec.UseNumber()
	if err := dec.Decode(&rec.Fields); err != nil {
		return domain.Record{}, fmt.Errorf("decode fields of %s: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = domain.Fields{}
	}
	return rec, nil
}
