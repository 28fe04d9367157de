package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Postgres keeps every document in one jsonb table keyed by
// (collection path, id).
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps db and creates the documents table if needed.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	if err := migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS documents (
		collection  TEXT NOT NULL,
		id          TEXT NOT NULL,
		data        JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data);
	`)
	return err
}

// Get returns the document at path.
func (s *Postgres) Get(ctx context.Context, path string) (Document, error) {
	coll, id, err := Split(path)
	if err != nil {
		return Document{}, err
	}
	var raw []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, coll, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	data, err := decodeJSON(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Path: path, Data: data}, nil
}

// Query returns every document of collection matching all filters, sorted
// by id.
func (s *Postgres) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query, args, err := buildQuery(collection, filters)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		data, err := decodeJSON(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{ID: id, Path: Join(collection, id), Data: data})
	}
	return out, rows.Err()
}

// Add inserts data under a generated id.
func (s *Postgres) Add(ctx context.Context, collection string, data Fields) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(resolve(data, time.Now().UTC()))
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
	`, collection, id, string(raw))
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges data into the document at path.
func (s *Postgres) Update(ctx context.Context, path string, data Fields) error {
	coll, id, err := Split(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(resolve(data, time.Now().UTC()))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, coll, id, string(raw))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// buildQuery renders filters as jsonb predicates. Equality compares jsonb
// values directly; range operators cast by the Go type of the operand.
func buildQuery(collection string, filters []Filter) (string, []any, error) {
	args := []any{collection}
	clauses := []string{"collection = $1"}
	for _, f := range filters {
		if strings.ContainsAny(f.Field, "'\"") {
			return "", nil, fmt.Errorf("docstore: invalid field name %q", f.Field)
		}
		pos := fmt.Sprintf("$%d", len(args)+1)
		if f.Op == Eq {
			if t, ok := f.Value.(time.Time); ok {
				clauses = append(clauses, fmt.Sprintf("(data->>'%s')::timestamptz = %s", f.Field, pos))
				args = append(args, t)
				continue
			}
			raw, err := json.Marshal(f.Value)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, fmt.Sprintf("data->'%s' = %s::jsonb", f.Field, pos))
			args = append(args, string(raw))
			continue
		}
		switch f.Op {
		case Lt, Lte, Gt, Gte:
		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
		switch v := f.Value.(type) {
		case time.Time:
			clauses = append(clauses, fmt.Sprintf("(data->>'%s')::timestamptz %s %s", f.Field, f.Op, pos))
			args = append(args, v)
		case string:
			clauses = append(clauses, fmt.Sprintf(`(data->>'%s') COLLATE "C" %s %s`, f.Field, f.Op, pos))
			args = append(args, v)
		default:
			if _, ok := toFloat(v); !ok {
				return "", nil, fmt.Errorf("docstore: cannot range-compare %T", v)
			}
			clauses = append(clauses, fmt.Sprintf("(data->>'%s')::numeric %s %s", f.Field, f.Op, pos))
			args = append(args, v)
		}
	}
	query := "SELECT id, data FROM documents WHERE " + strings.Join(clauses, " AND ") + " ORDER BY id"
	return query, args, nil
}

func decodeJSON(raw []byte) (Fields, error) {
	var data Fields
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = Fields{}
	}
	return data, nil
}
