// Package pagecache keeps rendered pages per user so the home and my-banks
// pages do not hit the vendors on every view. A write that changes what a
// user sees (a new bank, a transfer) revalidates that user's pages.
//
// Cache failures are never fatal: a failed read is a miss and failed writes
// are logged.
package pagecache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/logger"
)

type Cache interface {
	Get(ctx context.Context, userID, page string) ([]byte, bool)
	Set(ctx context.Context, userID, page string, body []byte)
	Revalidate(ctx context.Context, userIDs ...string)
}

type entry struct {
	body    []byte
	expires time.Time
}

// Memory is the in-process Cache used when no redis address is configured.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	pages map[string]map[string]entry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:   ttl,
		now:   time.Now,
		pages: map[string]map[string]entry{},
	}
}

func (m *Memory) Get(_ context.Context, userID, page string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.pages[userID][page]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && !m.now().Before(e.expires) {
		delete(m.pages[userID], page)
		return nil, false
	}

	return e.body, true
}

func (m *Memory) Set(_ context.Context, userID, page string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pages[userID] == nil {
		m.pages[userID] = map[string]entry{}
	}
	m.pages[userID][page] = entry{body: body, expires: m.now().Add(m.ttl)}
}

func (m *Memory) Revalidate(_ context.Context, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, userID := range userIDs {
		delete(m.pages, userID)
	}
	logger.Log.Debugw("pages revalidated", "users", userIDs)
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, string, []byte)        {}
func (Nop) Revalidate(context.Context, ...string)              {}

func logCacheError(msg, userID string, err error) {
	logger.Log.Warnw(msg, "user", userID, zap.Error(err))
}
