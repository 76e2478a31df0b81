package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	errs "github.com/vidyasagar/surfshell/internal/errors"
)

// Visit is the durable form of one completed navigation. ID is the unique key.
type Visit struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Host      string    `json:"host"`
	VisitedAt time.Time `json:"visited_at"`
}

// VisitStore persists visits in the SQLite visits table.
type VisitStore struct {
	db *sql.DB
}

// NewVisitStore creates a visit store using the given database.
func NewVisitStore(db *DB) *VisitStore {
	return &VisitStore{db: db.Conn()}
}

// FetchAll returns every visit in insertion order.
func (vs *VisitStore) FetchAll(ctx context.Context) ([]Visit, error) {
	rows, err := vs.db.QueryContext(ctx,
		`SELECT id, url, title, host, visited_at FROM visits ORDER BY rowid ASC`,
	)
	if err != nil {
		return nil, errs.NewStorageFailure("fetch visits", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var v Visit
		var visitedAt int64
		if err := rows.Scan(&v.ID, &v.URL, &v.Title, &v.Host, &visitedAt); err != nil {
			return nil, errs.NewStorageFailure("scan visit", err)
		}
		v.VisitedAt = time.Unix(0, visitedAt)
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorageFailure("fetch visits", err)
	}
	return visits, nil
}

// Insert stores v. Inserting an ID that already exists is an error.
func (vs *VisitStore) Insert(ctx context.Context, v Visit) error {
	if v.ID == "" {
		return errs.NewStorageFailure("insert visit", errors.New("empty id"))
	}
	if v.VisitedAt.IsZero() {
		v.VisitedAt = time.Now()
	}
	_, err := vs.db.ExecContext(ctx,
		`INSERT INTO visits (id, url, title, host, visited_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.URL, v.Title, v.Host, v.VisitedAt.UnixNano(),
	)
	if err != nil {
		return errs.NewStorageFailure("insert visit", err)
	}
	return nil
}

// Delete removes the visit with the given ID. A missing ID is not an error.
func (vs *VisitStore) Delete(ctx context.Context, id string) error {
	if _, err := vs.db.ExecContext(ctx, `DELETE FROM visits WHERE id = ?`, id); err != nil {
		return errs.NewStorageFailure("delete visit", err)
	}
	return nil
}

// Count returns the number of stored visits.
func (vs *VisitStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := vs.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits`).Scan(&n); err != nil {
		return 0, errs.NewStorageFailure("count visits", err)
	}
	return n, nil
}
