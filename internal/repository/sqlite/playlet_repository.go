package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/repository"
)

// The full definition is stored as a JSON document; the scalar columns exist
// for inspection and ordering.
const createPlayletsTable = `
CREATE TABLE IF NOT EXISTS playlets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	trigger_kind TEXT NOT NULL,
	document TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type PlayletRepository struct {
	db *sql.DB
}

func NewPlayletRepository(db *sql.DB) repository.PlayletRepository {
	return &PlayletRepository{db: db}
}

func (r *PlayletRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createPlayletsTable); err != nil {
		return fmt.Errorf("create playlets table: %w", err)
	}
	return nil
}

func (r *PlayletRepository) Create(ctx context.Context, p *domain.Playlet) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode playlet: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO playlets (id, name, enabled, trigger_kind, document, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Name,
		p.Enabled,
		string(p.Trigger.Kind),
		string(doc),
		p.CreatedAt.UTC(),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert playlet: %w", err)
	}
	return nil
}

func (r *PlayletRepository) Update(ctx context.Context, p *domain.Playlet) error {
	p.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode playlet: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE playlets
SET name=?, enabled=?, trigger_kind=?, document=?, updated_at=?
WHERE id=?`,
		p.Name,
		p.Enabled,
		string(p.Trigger.Kind),
		string(doc),
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update playlet: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PlayletRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM playlets WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete playlet: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PlayletRepository) Get(ctx context.Context, id string) (*domain.Playlet, error) {
	row := r.db.QueryRowContext(ctx, `SELECT document FROM playlets WHERE id=?`, id)
	return scanPlaylet(row)
}

func (r *PlayletRepository) List(ctx context.Context) ([]domain.Playlet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document FROM playlets ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query playlets: %w", err)
	}
	defer rows.Close()

	var playlets []domain.Playlet
	for rows.Next() {
		p, err := scanPlaylet(rows)
		if err != nil {
			return nil, err
		}
		playlets = append(playlets, *p)
	}
	return playlets, rows.Err()
}

func scanPlaylet(scanner interface {
	Scan(dest ...any) error
}) (*domain.Playlet, error) {
	var doc string
	if err := scanner.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan playlet: %w", err)
	}
	var p domain.Playlet
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode playlet: %w", err)
	}
	return &p, nil
}
