package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/controlhq/account-service/internal/domain/repository"
)

// DocumentStore keeps opaque JSON documents in a single jsonb-backed table,
// keyed by (collection, id) and queryable by top-level field. Updates are
// jsonb merge patches; the last writer wins.
type DocumentStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewDocumentStore wraps pool. Every call runs under timeout when it is
// positive; callers still control cancellation through ctx.
func NewDocumentStore(pool *pgxpool.Pool, timeout time.Duration) *DocumentStore {
	return &DocumentStore{pool: pool, timeout: timeout}
}

func (s *DocumentStore) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *DocumentStore) GetByID(ctx context.Context, collection, id string) (json.RawMessage, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	var data []byte
	row := s.pool.QueryRow(ctx, `
		SELECT data FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *DocumentStore) QueryByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT data FROM documents
		WHERE collection = $1 AND data->>$2 = $3
		ORDER BY created_at
	`, collection, field, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

func (s *DocumentStore) Put(ctx context.Context, collection, id string, doc any) (string, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	if id == "" {
		id = uuid.NewString()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, collection, id, data)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	patch, err := json.Marshal(partial)
	if err != nil {
		return err
	}
	res, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
	`, collection, id, patch)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.DocumentStore = (*DocumentStore)(nil)
