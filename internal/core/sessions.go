package core

import (
	"context"
	"sync"

	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/session"
)

// keyedMutex gives each session a single owner at a time.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*sync.Mutex{}}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// WithSession loads a session from the store and runs fn while holding the
// session's lock. Stage functions called from fn save their own snapshots.
func (p *Processor) WithSession(ctx context.Context, id string, fn func(s *session.Session) error) error {
	if p.store == nil {
		return common.ConfigErrorf("no session store configured")
	}
	unlock := p.locks.lock(id)
	defer unlock()
	s, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return fn(s)
}

// ExtractByID runs Extract on a stored session.
func (p *Processor) ExtractByID(ctx context.Context, id string, force bool) error {
	return p.WithSession(ctx, id, func(s *session.Session) error {
		return p.Extract(common.WithSessionID(ctx, id), s, force, func(done, total, page int, err error) {
			p.logger.Info("processor.extract.progress", "session_id", id, "done", done, "total", total, "page", page, "failed", err != nil)
		})
	})
}

// Start uploads a document and confirms every page with the registry's schema
// binding, leaving the session ready for extraction.
func (p *Processor) Start(ctx context.Context, name string, data []byte) (*session.Session, error) {
	s, err := p.Upload(ctx, name, data)
	if err != nil {
		return nil, err
	}
	if err := p.ConfirmPages(ctx, s, nil); err != nil {
		return nil, err
	}
	if err := p.ConfirmSchemas(ctx, s, nil); err != nil {
		return nil, err
	}
	return s, nil
}
