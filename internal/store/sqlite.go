package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docforge/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	stage        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	template_set TEXT NOT NULL DEFAULT '',
	data         TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS renders (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	target_id  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	file_name  TEXT NOT NULL DEFAULT '',
	doc_url    TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_stage ON sessions(stage);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_renders_session_id ON renders(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	touch(sess, time.Now().UTC())
	data, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, stage, description, template_set, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			description = excluded.description,
			template_set = excluded.template_set,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		sess.ID, string(sess.Stage), sess.Description, sess.TemplateSet, string(data), sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}

	sess, err := decodeSession([]byte(data))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: decode session")
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error) {
	query := `SELECT id, stage, description, template_set, created_at, updated_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	out := []SessionSummary{}
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Stage, &ss.Description, &ss.TemplateSet, &ss.CreatedAt, &ss.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		out = append(out, ss)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *SQLiteStore) RecordRender(ctx context.Context, sessionID string, results []model.RenderResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO renders (id, session_id, source, target_id, status, file_name, doc_url, message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), sessionID, r.Source, r.TargetID, string(r.Status), r.FileName, r.DocURL, r.Message, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert render for session %s", sessionID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit renders")
}

func (s *SQLiteStore) ListRenders(ctx context.Context, sessionID string) ([]RenderRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, source, target_id, status, file_name, doc_url, message, created_at
		 FROM renders WHERE session_id = ? ORDER BY created_at, rowid`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list renders")
	}
	defer rows.Close() //nolint:errcheck

	out := []RenderRecord{}
	for rows.Next() {
		var r RenderRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Source, &r.TargetID, &r.Status, &r.FileName, &r.DocURL, &r.Message, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan render")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list renders iterate")
}
