package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store keeps each collection in a table of (id, doc JSONB) rows.
type Store struct {
	pool pool
}

// Open connects to Postgres and verifies the connection. Tables come from RunMigrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: p}, nil
}

// New wraps an existing pool.
func New(p pool) *Store {
	return &Store{pool: p}
}

// Collection returns the table-backed collection called name.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{pool: s.pool, table: pgx.Identifier{name}.Sanitize()}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases database resources.
func (s *Store) Close(context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type collection struct {
	pool  pool
	table string
}

func (c *collection) InsertOne(ctx context.Context, doc storage.Document) (string, error) {
	return c.insert(ctx, c.pool, doc)
}

func (c *collection) InsertMany(ctx context.Context, docs []storage.Document) ([]string, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert many: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := c.insert(ctx, tx, doc)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}
	return ids, nil
}

func (c *collection) FindOne(ctx context.Context, filter storage.Filter) (storage.Document, error) {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf(`SELECT id, doc FROM %s WHERE %s ORDER BY created_at, id LIMIT 1`, c.table, where)
	return scanDocument(c.pool.QueryRow(ctx, query, args...))
}

func (c *collection) FindMany(ctx context.Context, filter storage.Filter) ([]storage.Document, error) {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf(`SELECT id, doc FROM %s WHERE %s ORDER BY created_at, id`, c.table, where)
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []storage.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (c *collection) UpdateOne(ctx context.Context, filter storage.Filter, set storage.Document, upsert bool) (storage.UpdateResult, error) {
	body, err := encode(set.Without(models.FieldID))
	if err != nil {
		return storage.UpdateResult{}, err
	}
	where, args := buildWhere(filter, 2)
	query := fmt.Sprintf(`
		WITH target AS (
			SELECT id, doc FROM %[1]s WHERE %[2]s ORDER BY created_at, id LIMIT 1 FOR UPDATE
		)
		UPDATE %[1]s AS t SET doc = t.doc || $1::jsonb
		FROM target
		WHERE t.id = target.id
		RETURNING t.id, target.doc IS DISTINCT FROM t.doc`, c.table, where)

	var (
		id      string
		changed bool
	)
	err = c.pool.QueryRow(ctx, query, append([]any{body}, args...)...).Scan(&id, &changed)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if !upsert {
			return storage.UpdateResult{}, nil
		}
		seed := filter.Equalities()
		for k, v := range set {
			seed[k] = v
		}
		newID, err := c.insert(ctx, c.pool, seed)
		if err != nil {
			return storage.UpdateResult{}, err
		}
		return storage.UpdateResult{UpsertedID: newID}, nil
	case err != nil:
		return storage.UpdateResult{}, mapErr(err)
	}

	res := storage.UpdateResult{Matched: 1}
	if changed {
		res.Modified = 1
	}
	return res, nil
}

func (c *collection) DeleteOne(ctx context.Context, filter storage.Filter) (int64, error) {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf(`DELETE FROM %[1]s WHERE id = (SELECT id FROM %[1]s WHERE %[2]s ORDER BY created_at, id LIMIT 1)`, c.table, where)
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (c *collection) insert(ctx context.Context, db execer, doc storage.Document) (string, error) {
	body, err := encode(doc.Without(models.FieldID))
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`, c.table)
	if _, err := db.Exec(ctx, query, id, body); err != nil {
		return "", mapErr(err)
	}
	return id, nil
}

// buildWhere renders filter as a SQL predicate whose placeholders start at $first.
// Equalities collapse into one containment test so the GIN index on doc applies.
func buildWhere(filter storage.Filter, first int) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", first+len(args)-1)
	}

	if eq := filter.Equalities(); len(eq) > 0 {
		body, _ := json.Marshal(eq)
		clauses = append(clauses, fmt.Sprintf("doc @> %s::jsonb", next(string(body))))
	}
	for _, key := range filter.Keys() {
		value := filter[key]
		ne, isNe := value.(storage.Ne)
		switch {
		case key == models.FieldID && isNe:
			clauses = append(clauses, fmt.Sprintf("id <> %s", next(fmt.Sprint(ne.Value))))
		case key == models.FieldID:
			clauses = append(clauses, fmt.Sprintf("id = %s", next(fmt.Sprint(value))))
		case isNe:
			body, _ := json.Marshal(ne.Value)
			k := next(key)
			clauses = append(clauses, fmt.Sprintf("(doc -> %s) IS DISTINCT FROM %s::jsonb", k, next(string(body))))
		}
	}
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), args
}

func scanDocument(row pgx.Row) (storage.Document, error) {
	var (
		id  string
		raw []byte
	)
	if err := row.Scan(&id, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	doc := storage.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	doc[models.FieldID] = id
	return doc, nil
}

func encode(doc storage.Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(body), nil
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return storage.ErrAlreadyExists
	}
	return err
}
