// Package merge implements topic merging and duplicate suppression.
//
// An Engine belongs to one topic map and owns that map's identity and hash
// indices. Every top-level operation opens a Session over the operation's
// store transaction; the session carries the redirect table that maps each
// construct merged away during the operation to its survivor, so nested
// merges never act on a dead id.
//
// Ordering inside MergeTopic:
//
//	identities → types → reference rewrite → reifier → characteristics →
//	roles → associations → names → occurrences → variants → delete source
//
// Each rewritten statement is re-hashed and, if it now equals a sibling,
// merged into that sibling (the older construct wins). Merging two duplicate
// statements may in turn merge their reifiers; that recursion ends because
// merging a topic into itself is a no-op.
package merge

import (
	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/hashindex"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/identity"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/logger"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
)

// ConstructStore is what the engine needs from the storage layer.
type ConstructStore interface {
	identity.Backend
	hashindex.Backend

	TopicMap() int64
	Construct(id int64) (*store.Row, error)
	Exists(id int64) (bool, error)
	Children(parent int64, kind construct.Kind) ([]int64, error)
	UpdateParent(id, parent int64) error
	UpdateReifier(id, reifier int64) error
	DeleteConstruct(id int64) ([]int64, error)
	ReifiedBy(topic int64) (construct.Ref, error)
	Scope(id int64) ([]int64, error)
	TopicTypes(topic int64) ([]int64, error)
	AddTopicType(topic, typ int64) error
	RolesPlayed(topic int64) ([]int64, error)
	ReferencesTo(topic int64) ([]int64, error)
	ReplaceTopicRefs(old, repl int64) error
}

var _ ConstructStore = (*store.Tx)(nil)

// Engine holds the per-topic-map indices shared by all sessions.
type Engine struct {
	ids    *identity.Index
	hashes *hashindex.Index
	log    *zap.Logger
}

// NewEngine returns an engine over the given indices. A nil logger disables logging.
func NewEngine(ids *identity.Index, hashes *hashindex.Index, log *zap.Logger) *Engine {
	return &Engine{ids: ids, hashes: hashes, log: logger.OrNop(log)}
}

// Identities returns the identity index.
func (e *Engine) Identities() *identity.Index { return e.ids }

// Hashes returns the hash index.
func (e *Engine) Hashes() *hashindex.Index { return e.hashes }

// Reset drops both index caches. Called after a rolled back transaction.
func (e *Engine) Reset() {
	e.ids.Reset()
	e.hashes.Reset()
}

// Begin opens a session over tx.
func (e *Engine) Begin(tx ConstructStore) *Session {
	return &Session{
		e:        e,
		tx:       tx,
		log:      e.log,
		redirect: make(map[int64]int64),
	}
}

// Stats summarises what a session did.
type Stats struct {
	TopicsMerged      int
	DuplicatesRemoved int
}
