package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/internal/model"
)

// MemoryStore is a process-local Store. Sessions are kept as JSON snapshots
// so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	renders  map[string][]RenderRecord
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		renders:  make(map[string][]RenderRecord),
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) SaveSession(_ context.Context, sess *model.Session) error {
	touch(sess, time.Now().UTC())
	data, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "memory: marshal session")
	}
	m.mu.Lock()
	m.sessions[sess.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	sess, err := decodeSession(data)
	if err != nil {
		return nil, eris.Wrap(err, "memory: decode session")
	}
	return sess, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	all := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		sess, err := m.GetSession(ctx, id)
		if err != nil {
			continue
		}
		if filter.Stage != "" && sess.Stage != filter.Stage {
			continue
		}
		all = append(all, SessionSummary{
			ID:          sess.ID,
			Stage:       sess.Stage,
			Description: sess.Description,
			TemplateSet: sess.TemplateSet,
			CreatedAt:   sess.CreatedAt,
			UpdatedAt:   sess.UpdatedAt,
		})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	if filter.Offset >= len(all) {
		return []SessionSummary{}, nil
	}
	all = all[filter.Offset:]
	if limit := listLimit(filter.Limit); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) RecordRender(_ context.Context, sessionID string, results []model.RenderResult) error {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		m.renders[sessionID] = append(m.renders[sessionID], RenderRecord{
			ID:           uuid.New().String(),
			SessionID:    sessionID,
			RenderResult: r,
			CreatedAt:    now,
		})
	}
	return nil
}

func (m *MemoryStore) ListRenders(_ context.Context, sessionID string) ([]RenderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RenderRecord, len(m.renders[sessionID]))
	copy(out, m.renders[sessionID])
	return out, nil
}
