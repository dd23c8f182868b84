// Package store persists wizard sessions and render results.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/internal/config"
	"github.com/sells-group/docforge/internal/model"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = eris.New("store: not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Stage  model.Stage `json:"stage,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID          string      `json:"id"`
	Stage       model.Stage `json:"stage"`
	Description string      `json:"description"`
	TemplateSet string      `json:"template_set,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// RenderRecord is one persisted render outcome.
type RenderRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	model.RenderResult
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the persistence interface for document generation.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error

	// Render results
	RecordRender(ctx context.Context, sessionID string, results []model.RenderResult) error
	ListRenders(ctx context.Context, sessionID string) ([]RenderRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store selected by cfg.Driver and applies migrations.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "docforge.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "memory":
		st = NewMemory()
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

// touch stamps the session's timestamps before a save.
func touch(s *model.Session, now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// decodeSession reads a session snapshot. Numbers stay json.Number so whole
// values keep displaying without a decimal part after a reload.
func decodeSession(data []byte) (*model.Session, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var sess model.Session
	if err := dec.Decode(&sess); err != nil {
		return nil, err
	}
	sess.RestoreCalculated()
	return &sess, nil
}
