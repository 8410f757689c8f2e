package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when no dump exists for an id.
var ErrNotFound = errors.New("dump not found")

// Dump is one stored engine dump.
type Dump struct {
	ID        string
	Kind      string
	Data      []byte
	Revision  int64
	UpdatedAt time.Time
}

// DumpInfo describes a stored dump without its data.
type DumpInfo struct {
	ID        string
	Kind      string
	Size      int64
	Revision  int64
	UpdatedAt time.Time
}

// SaveDump inserts or replaces the dump for id and bumps its revision.
// Empty data is rejected; use DeleteDump to drop an instance.
func (s *Store) SaveDump(ctx context.Context, id, kind string, data []byte, at time.Time) error {
	if id == "" || kind == "" {
		return errors.New("save dump: id and kind are required")
	}
	if len(data) == 0 {
		return errors.Newf("save dump %s: empty data", id)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dumps (id, kind, data, revision, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			data = excluded.data,
			revision = dumps.revision + 1,
			updated_at = excluded.updated_at
	`, id, kind, data, at.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "save dump %s", id)
	}
	return nil
}

// LoadDump returns the dump for id, or ErrNotFound.
func (s *Store) LoadDump(ctx context.Context, id string) (Dump, error) {
	var (
		d       Dump
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, data, revision, updated_at FROM dumps WHERE id = ?
	`, id).Scan(&d.ID, &d.Kind, &d.Data, &d.Revision, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Dump{}, errors.Wrapf(ErrNotFound, "load dump %s", id)
	}
	if err != nil {
		return Dump{}, errors.Wrapf(err, "load dump %s", id)
	}
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return d, nil
}

// DeleteDump removes the dump for id. It reports whether a row existed.
func (s *Store) DeleteDump(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dumps WHERE id = ?`, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete dump %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "delete dump %s", id)
	}
	return n > 0, nil
}

// ListDumps returns every stored dump ordered by kind then id. An empty
// kind lists all kinds.
func (s *Store) ListDumps(ctx context.Context, kind string) ([]DumpInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, length(data), revision, updated_at
		FROM dumps
		WHERE ? = '' OR kind = ?
		ORDER BY kind ASC, id COLLATE BINARY ASC
	`, kind, kind)
	if err != nil {
		return nil, errors.Wrap(err, "query dumps")
	}
	defer rows.Close()

	out := []DumpInfo{}
	for rows.Next() {
		var (
			info    DumpInfo
			updated int64
		)
		if err := rows.Scan(&info.ID, &info.Kind, &info.Size, &info.Revision, &updated); err != nil {
			return nil, errors.Wrap(err, "scan dump")
		}
		info.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate dumps")
	}
	return out, nil
}
