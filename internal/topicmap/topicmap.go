package topicmap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/merge"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/metrics"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

// TopicMap is one topic map. Its methods are safe for concurrent use; they
// are serialised by a per-map mutex and, across processes, by the store lock.
type TopicMap struct {
	sys     *System
	id      int64
	locator string
	log     *zap.Logger

	mu     sync.Mutex
	engine *merge.Engine
}

// ID returns the store id of the topic map.
func (m *TopicMap) ID() int64 { return m.id }

// Locator returns the base locator of the topic map.
func (m *TopicMap) Locator() string { return m.locator }

// op is the state of one running operation.
type op struct {
	m    *TopicMap
	tx   *store.Tx
	sess *merge.Session
}

// update runs fn in a write transaction. Any error rolls the transaction back
// and drops the index caches, so nothing of the failed operation survives.
func (m *TopicMap) update(ctx context.Context, name string, fn func(o *op) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.sys.store.Begin(ctx, m.id)
	if err != nil {
		return err
	}
	o := &op{m: m, tx: tx, sess: m.engine.Begin(tx)}
	if err := fn(o); err != nil {
		_ = tx.Rollback()
		m.engine.Reset()
		m.log.Debug("operation rolled back", zap.String("op", name), zap.Error(err))
		return err
	}
	if err := tx.Commit(); err != nil {
		m.engine.Reset()
		return err
	}
	if st := o.sess.Stats(); st.TopicsMerged > 0 || st.DuplicatesRemoved > 0 {
		m.log.Info("operation committed",
			zap.String("op", name),
			zap.Int("topics_merged", st.TopicsMerged),
			zap.Int("duplicates_removed", st.DuplicatesRemoved))
	}
	return nil
}

// view runs fn in a transaction that is always rolled back.
func (m *TopicMap) view(ctx context.Context, fn func(o *op) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.sys.store.Begin(ctx, m.id)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&op{m: m, tx: tx, sess: m.engine.Begin(tx)})
}

// require resolves ref through the session's redirects and checks that it
// names a live construct of the expected kind in this topic map.
func (o *op) require(ref construct.Ref, kinds ...construct.Kind) (*store.Row, error) {
	if ref.IsZero() {
		return nil, tmerr.NewModelConstraintViolation(ref, "reference is empty")
	}
	r, err := o.tx.Construct(o.sess.Resolve(ref.ID))
	if err != nil {
		return nil, err
	}
	if ref.Kind != 0 && r.Kind != ref.Kind {
		return nil, tmerr.NewConstructNotFound(ref)
	}
	if len(kinds) == 0 {
		return r, nil
	}
	for _, k := range kinds {
		if r.Kind == k {
			return r, nil
		}
	}
	return nil, tmerr.NewModelConstraintViolation(r.Ref(), fmt.Sprintf("expected %v", kinds))
}

func (o *op) requireTopic(ref construct.Ref) (int64, error) {
	r, err := o.require(ref, construct.KindTopic)
	if err != nil {
		return 0, err
	}
	return r.ID, nil
}

func (o *op) requireTopics(refs []construct.Ref) ([]int64, error) {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		id, err := o.requireTopic(ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Topics and identities
// ---------------------------------------------------------------------------

// CreateTopic creates a topic with a generated item identifier.
func (m *TopicMap) CreateTopic(ctx context.Context) (construct.Ref, error) {
	var ref construct.Ref
	err := m.update(ctx, "create_topic", func(o *op) error {
		var err error
		ref, err = o.createTopic()
		if err != nil {
			return err
		}
		return o.m.engine.Identities().Bind(o.tx, "urn:uuid:"+uuid.NewString(), construct.ItemIdentifier, ref)
	})
	return ref, err
}

func (o *op) createTopic() (construct.Ref, error) {
	id, err := o.tx.CreateConstruct(store.Row{Kind: construct.KindTopic, Parent: o.m.id})
	if err != nil {
		return construct.Ref{}, err
	}
	return construct.Topic(id), nil
}

// CreateOrGetTopicByIdentity returns the topic identified by value, creating
// it when no construct carries that identity. A subject identifier also
// matches a topic's item identifier and vice versa. An item identifier owned
// by a statement is a *tmerr.IdentityConstraintError.
func (m *TopicMap) CreateOrGetTopicByIdentity(ctx context.Context, value string, kind construct.IdentityKind) (construct.Ref, error) {
	var ref construct.Ref
	err := m.update(ctx, "create_or_get_topic", func(o *op) error {
		var err error
		ref, err = o.topicByIdentity(value, kind)
		return err
	})
	return ref, err
}

func (o *op) topicByIdentity(value string, kind construct.IdentityKind) (construct.Ref, error) {
	if !kind.Valid() || value == "" {
		return construct.Ref{}, tmerr.NewModelConstraintViolation(construct.Ref{}, "invalid identity "+kind.String())
	}
	ids := o.m.engine.Identities()
	owner, err := ids.Collision(o.tx, kind, value)
	if err != nil {
		return construct.Ref{}, err
	}
	if owner.IsZero() {
		ref, err := o.createTopic()
		if err != nil {
			return construct.Ref{}, err
		}
		return ref, ids.Bind(o.tx, value, kind, ref)
	}
	if owner.Kind != construct.KindTopic {
		metrics.IdentityConflicts.WithLabelValues("rejected").Inc()
		return construct.Ref{}, tmerr.NewIdentityConstraintError(
			tmerr.NewIdentityConflict(value, kind, owner, construct.Ref{Kind: construct.KindTopic}))
	}
	// Found through the other kind: record the requested one too.
	return owner, ids.Bind(o.tx, value, kind, owner)
}

// AddIdentity adds value as an identity of ref. Subject identifiers and
// locators are only valid on topics. When value already identifies another
// topic the two topics are merged (automerge) or the call fails with
// *tmerr.IdentityConstraintError (strict mode) and nothing changes.
func (m *TopicMap) AddIdentity(ctx context.Context, ref construct.Ref, value string, kind construct.IdentityKind) error {
	return m.update(ctx, "add_identity", func(o *op) error {
		return o.addIdentity(ref, value, kind)
	})
}

func (o *op) addIdentity(ref construct.Ref, value string, kind construct.IdentityKind) error {
	if !kind.Valid() || value == "" {
		return tmerr.NewModelConstraintViolation(ref, "invalid identity "+kind.String())
	}
	r, err := o.require(ref)
	if err != nil {
		return err
	}
	if kind != construct.ItemIdentifier && r.Kind != construct.KindTopic {
		return tmerr.NewModelConstraintViolation(r.Ref(), kind.String()+" can only be added to a topic")
	}
	self := r.Ref()

	ids := o.m.engine.Identities()
	other, err := ids.Collision(o.tx, kind, value)
	if err != nil {
		return err
	}
	if other.IsZero() || other == self {
		return ids.Bind(o.tx, value, kind, self)
	}

	conflict := tmerr.NewIdentityConflict(value, kind, other, self)
	if !conflict.Mergeable() || !o.m.sys.automerge {
		metrics.IdentityConflicts.WithLabelValues("rejected").Inc()
		return tmerr.NewIdentityConstraintError(conflict)
	}
	metrics.IdentityConflicts.WithLabelValues("merged").Inc()
	o.m.log.Debug("identity collision, merging",
		zap.String("value", value), zap.Stringer("kind", kind),
		zap.Int64("target", self.ID), zap.Int64("source", other.ID))
	if err := o.sess.MergeTopic(self.ID, other.ID); err != nil {
		return err
	}
	return ids.Bind(o.tx, value, kind, construct.Topic(o.sess.Resolve(self.ID)))
}

// RemoveIdentity removes value from the identities of ref. Removing an
// identity ref does not carry is a no-op.
func (m *TopicMap) RemoveIdentity(ctx context.Context, ref construct.Ref, value string, kind construct.IdentityKind) error {
	return m.update(ctx, "remove_identity", func(o *op) error {
		r, err := o.require(ref)
		if err != nil {
			return err
		}
		ids := o.m.engine.Identities()
		owner, err := ids.Lookup(o.tx, kind, value)
		if err != nil {
			return err
		}
		if owner.ID != r.ID {
			return nil
		}
		return ids.Unbind(o.tx, value, kind)
	})
}

// MergeTopic merges source into target. Afterwards source no longer exists.
func (m *TopicMap) MergeTopic(ctx context.Context, target, source construct.Ref) error {
	return m.update(ctx, "merge_topic", func(o *op) error {
		t, err := o.requireTopic(target)
		if err != nil {
			return err
		}
		s, err := o.requireTopic(source)
		if err != nil {
			return err
		}
		return o.sess.MergeTopic(t, s)
	})
}

// AddType adds typ to the types of topic.
func (m *TopicMap) AddType(ctx context.Context, topic, typ construct.Ref) error {
	return m.update(ctx, "add_type", func(o *op) error {
		t, err := o.requireTopic(topic)
		if err != nil {
			return err
		}
		ty, err := o.requireTopic(typ)
		if err != nil {
			return err
		}
		return o.tx.AddTopicType(t, ty)
	})
}

// RemoveType removes typ from the types of topic.
func (m *TopicMap) RemoveType(ctx context.Context, topic, typ construct.Ref) error {
	return m.update(ctx, "remove_type", func(o *op) error {
		t, err := o.requireTopic(topic)
		if err != nil {
			return err
		}
		return o.tx.RemoveTopicType(t, typ.ID)
	})
}

// TopicBySubjectIdentifier looks a topic up by subject identifier. The zero
// Ref means there is none.
func (m *TopicMap) TopicBySubjectIdentifier(ctx context.Context, uri string) (construct.Ref, error) {
	return m.lookup(ctx, construct.SubjectIdentifier, uri)
}

// TopicBySubjectLocator looks a topic up by subject locator.
func (m *TopicMap) TopicBySubjectLocator(ctx context.Context, uri string) (construct.Ref, error) {
	return m.lookup(ctx, construct.SubjectLocator, uri)
}

// ConstructByItemIdentifier looks any construct up by item identifier.
func (m *TopicMap) ConstructByItemIdentifier(ctx context.Context, uri string) (construct.Ref, error) {
	return m.lookup(ctx, construct.ItemIdentifier, uri)
}

func (m *TopicMap) lookup(ctx context.Context, kind construct.IdentityKind, value string) (construct.Ref, error) {
	var ref construct.Ref
	err := m.view(ctx, func(o *op) error {
		var err error
		ref, err = o.m.engine.Identities().Lookup(o.tx, kind, value)
		return err
	})
	return ref, err
}

func isNotFound(err error) bool {
	return errors.Is(err, tmerr.ErrNotFound)
}
