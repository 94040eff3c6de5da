package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/vendasb2b/cart-engine/internal/app/model"
	"github.com/vendasb2b/cart-engine/internal/app/repository"
	"github.com/vendasb2b/cart-engine/internal/storage"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

var ErrInvalidSession = errors.New("invalid cart session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

const evictFlushTimeout = 10 * time.Second

// CatalogSource returns the catalog currently known to the application, or nil.
type CatalogSource interface {
	Current() model.Catalog
}

type cartSession struct {
	store    *CartStore
	writer   *repository.AsyncCartWriter // nil when writes are synchronous
	lastSeen time.Time
}

// CartRegistry keeps one CartStore per buyer session, each persisted under its
// own key prefix. Sessions not used for longer than the idle timeout are
// dropped from memory and reopened from storage on the next request.
type CartRegistry struct {
	kv          storage.KV
	keyPrefix   string
	async       bool
	catalog     CatalogSource
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*cartSession
}

type RegistryOption func(*CartRegistry)

// WithIdleTimeout sets how long an unused session stays in memory. Zero keeps
// sessions until Close.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *CartRegistry) { r.idleTimeout = d }
}

func WithClock(now func() time.Time) RegistryOption {
	return func(r *CartRegistry) { r.now = now }
}

func NewCartRegistry(kv storage.KV, keyPrefix string, async bool, catalog CatalogSource, opts ...RegistryOption) *CartRegistry {
	r := &CartRegistry{
		kv:        kv,
		keyPrefix: keyPrefix,
		async:     async,
		catalog:   catalog,
		now:       time.Now,
		sessions:  make(map[string]*cartSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CartRegistry) expired(sess *cartSession, now time.Time) bool {
	return r.idleTimeout > 0 && now.Sub(sess.lastSeen) > r.idleTimeout
}

// Get returns the cart for sessionID, restoring it from storage on first use
// or after the session went idle.
func (r *CartRegistry) Get(sessionID string) (*CartStore, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return nil, ErrInvalidSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if sess, ok := r.sessions[sessionID]; ok {
		if !r.expired(sess, now) {
			sess.lastSeen = now
			return sess.store, nil
		}
		delete(r.sessions, sessionID)
		r.closeSession(sessionID, sess)
	}

	sess := &cartSession{lastSeen: now}
	var repo repository.CartStateRepository = repository.NewCartStateRepository(r.kv, r.keyPrefix+":"+sessionID)
	if r.async {
		sess.writer = repository.NewAsyncCartWriter(repo)
		repo = sess.writer
	}

	var catalog model.Catalog
	if r.catalog != nil {
		catalog = r.catalog.Current()
	}

	sess.store = NewCartStore(repo, catalog, WithLogger(logger.WithContext(map[string]interface{}{
		"session_id": sessionID,
	})))
	r.sessions[sessionID] = sess

	logger.Debug("Cart session opened", map[string]interface{}{
		"session_id": sessionID,
		"sessions":   len(r.sessions),
	})
	return sess.store, nil
}

// closeSession flushes the session's queued write before it is forgotten.
func (r *CartRegistry) closeSession(sessionID string, sess *cartSession) {
	if sess.writer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), evictFlushTimeout)
	defer cancel()
	if err := sess.writer.Close(ctx); err != nil {
		logger.Error("Failed to flush evicted cart session", err, map[string]interface{}{
			"session_id": sessionID,
		})
	}
}

// EvictIdle drops every session unused for longer than the idle timeout and
// returns how many were removed.
func (r *CartRegistry) EvictIdle() int {
	if r.idleTimeout <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := 0
	for id, sess := range r.sessions {
		if !r.expired(sess, now) {
			continue
		}
		delete(r.sessions, id)
		r.closeSession(id, sess)
		evicted++
	}

	if evicted > 0 {
		logger.Info("Idle cart sessions evicted", map[string]interface{}{
			"evicted":  evicted,
			"sessions": len(r.sessions),
		})
	}
	return evicted
}

// CatalogAvailable runs the price rebuild pass on every open cart.
func (r *CartRegistry) CatalogAvailable(catalog model.Catalog) {
	r.mu.Lock()
	stores := make([]*CartStore, 0, len(r.sessions))
	for _, sess := range r.sessions {
		stores = append(stores, sess.store)
	}
	r.mu.Unlock()

	rebuilt := 0
	for _, s := range stores {
		if s.CatalogAvailable(catalog).Changed() {
			rebuilt++
		}
	}
	logger.Info("Catalog applied to open carts", map[string]interface{}{
		"carts":   len(stores),
		"changed": rebuilt,
	})
}

func (r *CartRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close flushes pending background writes.
func (r *CartRegistry) Close(ctx context.Context) error {
	r.mu.Lock()
	writers := make([]*repository.AsyncCartWriter, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess.writer != nil {
			writers = append(writers, sess.writer)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
