// Package worker runs config and group instances behind per-instance
// mailboxes.
//
// A Registry keeps at most a fixed number of instances live. The least
// recently used one is stopped and dumped to the store when a new one is
// opened, and reopened from its dump on next use.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/swarmsync/internal/command"
	"github.com/roach88/swarmsync/internal/store"
)

// Opener builds the instance for id from its stored dump, which is nil
// for an instance never saved before.
type Opener func(id string, dump []byte) (Instance, error)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNow sets the clock used to stamp saved dumps.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Registry maps instance ids to live mailboxes.
type Registry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *Mailbox]
	store   *store.Store
	open    Opener
	logger  *zap.Logger
	now     func() time.Time
	ctx     context.Context
	group   *errgroup.Group
	evictMu sync.Mutex
	evicted []error
	closed  bool
}

// NewRegistry starts a registry holding at most size live instances.
// Mailbox goroutines stop when ctx ends or Close is called.
func NewRegistry(ctx context.Context, st *store.Store, open Opener, size int, opts ...Option) (*Registry, error) {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	group, gctx := errgroup.WithContext(ctx)
	r := &Registry{
		store:  st,
		open:   open,
		logger: o.logger,
		now:    o.now,
		ctx:    gctx,
		group:  group,
	}
	cache, err := lru.NewWithEvict(size, r.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, "registry cache")
	}
	r.cache = cache
	return r, nil
}

// onEvict stops the mailbox and saves its final state. lru runs it
// outside the cache lock.
func (r *Registry) onEvict(id string, m *Mailbox) {
	m.stop()
	saved, err := save(context.Background(), r.store, id, m.inst, r.now(), false)
	if err != nil {
		r.logger.Error("flush on evict failed", zap.String("instance", id), zap.Error(err))
		r.evictMu.Lock()
		r.evicted = append(r.evicted, err)
		r.evictMu.Unlock()
		return
	}
	r.logger.Debug("evicted", zap.String("instance", id), zap.Bool("saved", saved))
}

func (r *Registry) mailbox(id string) (*Mailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if m, ok := r.cache.Get(id); ok {
		return m, nil
	}

	var dump []byte
	d, err := r.store.LoadDump(r.ctx, id)
	switch {
	case err == nil:
		dump = d.Data
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	inst, err := r.open(id, dump)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", id)
	}
	m := newMailbox(id, inst, r.logger)
	r.group.Go(func() error { return m.run(r.ctx) })
	r.cache.Add(id, m)
	r.logger.Debug("opened", zap.String("instance", id), zap.Bool("from_dump", dump != nil))
	return m, nil
}

// Do runs cmd on the instance id, opening it if needed.
func (r *Registry) Do(ctx context.Context, id string, cmd command.Command) (any, error) {
	for attempt := 0; ; attempt++ {
		m, err := r.mailbox(id)
		if err != nil {
			return nil, err
		}
		res, err := m.Do(ctx, cmd)
		// Evicted between lookup and submit: reopen once from the dump.
		if errors.Is(err, ErrClosed) && attempt == 0 {
			continue
		}
		return res, err
	}
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Flush saves every live instance that changed since its last dump.
func (r *Registry) Flush(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range r.cache.Keys() {
		m, ok := r.cache.Peek(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			_, err := m.call(gctx, func(target any) (any, error) {
				return save(gctx, r.store, m.id, m.inst, r.now(), false)
			})
			if errors.Is(err, ErrClosed) {
				// Evicted meanwhile; onEvict saved it.
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Close stops and saves every instance and waits for the mailboxes.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cache.Purge()
	err := r.group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	r.evictMu.Lock()
	defer r.evictMu.Unlock()
	for _, e := range r.evicted {
		err = errors.CombineErrors(err, e)
	}
	return err
}
