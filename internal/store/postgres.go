package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	stage        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	template_set TEXT NOT NULL DEFAULT '',
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS renders (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	target_id  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	file_name  TEXT NOT NULL DEFAULT '',
	doc_url    TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_stage ON sessions(stage);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_renders_session_id ON renders(session_id, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.Session) error {
	touch(sess, time.Now().UTC())
	data, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, stage, description, template_set, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			description = EXCLUDED.description,
			template_set = EXCLUDED.template_set,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		sess.ID, string(sess.Stage), sess.Description, sess.TemplateSet, data, sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: decode session")
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error) {
	query := `SELECT id, stage, description, template_set, created_at, updated_at FROM sessions`
	args := []any{}

	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		query += ` WHERE stage = $1`
	}
	args = append(args, listLimit(filter.Limit), filter.Offset)
	query += ` ORDER BY updated_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		var ss SessionSummary
		var stage string
		if err := rows.Scan(&ss.ID, &stage, &ss.Description, &ss.TemplateSet, &ss.CreatedAt, &ss.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		ss.Stage = model.Stage(stage)
		out = append(out, ss)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) RecordRender(ctx context.Context, sessionID string, results []model.RenderResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range results {
		_, err := tx.Exec(ctx,
			`INSERT INTO renders (id, session_id, source, target_id, status, file_name, doc_url, message, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New().String(), sessionID, r.Source, r.TargetID, string(r.Status), r.FileName, r.DocURL, r.Message, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert render for session %s", sessionID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit renders")
}

func (s *PostgresStore) ListRenders(ctx context.Context, sessionID string) ([]RenderRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, source, target_id, status, file_name, doc_url, message, created_at
		 FROM renders WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list renders")
	}
	defer rows.Close()

	out := []RenderRecord{}
	for rows.Next() {
		var r RenderRecord
		var status string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Source, &r.TargetID, &status, &r.FileName, &r.DocURL, &r.Message, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan render")
		}
		r.Status = model.RenderStatus(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list renders iterate")
}
