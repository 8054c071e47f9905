// Package topicmap is the public face of the engine: a System owns the
// store and hands out TopicMaps, and every TopicMap operation runs as one
// store transaction with the merge engine's indices kept in step.
package topicmap

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/hashindex"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/identity"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/logger"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/merge"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger handed to every component.
func WithLogger(log *zap.Logger) Option {
	return func(s *System) { s.log = logger.OrNop(log) }
}

// WithAutomerge controls whether identity collisions between topics merge
// them (the default) or fail with *tmerr.IdentityConstraintError.
func WithAutomerge(on bool) Option {
	return func(s *System) { s.automerge = on }
}

// System is the root handle: one store, any number of topic maps.
type System struct {
	store     *store.Store
	log       *zap.Logger
	automerge bool

	mu   sync.Mutex
	maps map[int64]*TopicMap
}

// NewSystem wraps an opened store. The System takes ownership of st and
// closes it in Close.
func NewSystem(st *store.Store, opts ...Option) *System {
	s := &System{
		store:     st,
		log:       zap.NewNop(),
		automerge: true,
		maps:      make(map[int64]*TopicMap),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Automerge reports whether identity collisions merge topics.
func (s *System) Automerge() bool { return s.automerge }

// CreateTopicMap creates a new topic map. An existing locator is a
// *tmerr.ModelConstraintViolation.
func (s *System) CreateTopicMap(ctx context.Context, locator string) (*TopicMap, error) {
	tx, err := s.store.Begin(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := tx.TopicMapByLocator(locator)
	if err != nil {
		return nil, err
	}
	if existing != 0 {
		return nil, tmerr.NewModelConstraintViolation(construct.TopicMap(existing),
			"a topic map with locator "+locator+" already exists")
	}
	id, err := tx.CreateTopicMap(locator)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.log.Info("created topic map", zap.String("locator", locator), zap.Int64("id", id))
	return s.handle(id, locator), nil
}

// TopicMap returns the topic map with the given locator, or an error
// matching tmerr.ErrNotFound.
func (s *System) TopicMap(ctx context.Context, locator string) (*TopicMap, error) {
	tx, err := s.store.Begin(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	id, err := tx.TopicMapByLocator(locator)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, tmerr.NewConstructNotFound(construct.Ref{Kind: construct.KindTopicMap})
	}
	return s.handle(id, locator), nil
}

// OpenTopicMap returns the topic map with the given locator, creating it
// if needed.
func (s *System) OpenTopicMap(ctx context.Context, locator string) (*TopicMap, error) {
	tm, err := s.TopicMap(ctx, locator)
	if err == nil {
		return tm, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return s.CreateTopicMap(ctx, locator)
}

// TopicMapLocators lists the locators of every stored topic map.
func (s *System) TopicMapLocators(ctx context.Context) ([]string, error) {
	tx, err := s.store.Begin(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	return tx.TopicMapLocators()
}

// Close releases the store.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.maps)
	return s.store.Close()
}

// handle returns the single in-process TopicMap for id so that every caller
// shares one mutex and one set of indices.
func (s *System) handle(id int64, locator string) *TopicMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tm, ok := s.maps[id]; ok {
		return tm
	}
	log := s.log.With(zap.String("topic_map", locator))
	tm := &TopicMap{
		sys:     s,
		id:      id,
		locator: locator,
		log:     log,
		engine:  merge.NewEngine(identity.New(), hashindex.New(), log),
	}
	s.maps[id] = tm
	return tm
}
