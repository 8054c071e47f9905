package hashindex

import (
	"sync"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
)

// Backend is the slice of the construct store behind the index.
// *store.Tx satisfies it.
type Backend interface {
	FindByHash(parent int64, kind construct.Kind, digest string, exclude int64) (int64, error)
	SetHash(id int64, digest string) error
}

type key struct {
	parent int64
	kind   construct.Kind
	digest string
}

// Index caches digest ownership for one topic map. Like the identity index
// it is write-through: Register persists the digest before caching it.
type Index struct {
	mu   sync.Mutex
	ids  map[key]int64
	byID map[int64]key
}

// New returns an empty index.
func New() *Index {
	return &Index{
		ids:  make(map[key]int64),
		byID: make(map[int64]key),
	}
}

// Find returns a statement other than exclude that has digest under parent,
// or 0.
func (x *Index) Find(b Backend, parent int64, kind construct.Kind, digest string, exclude int64) (int64, error) {
	k := key{parent, kind, digest}
	x.mu.Lock()
	id, ok := x.ids[k]
	x.mu.Unlock()
	if ok && id != exclude {
		return id, nil
	}
	id, err := b.FindByHash(parent, kind, digest, exclude)
	if err != nil || id == 0 {
		return 0, err
	}
	x.mu.Lock()
	x.put(k, id)
	x.mu.Unlock()
	return id, nil
}

// Register records digest as the digest of id under parent.
func (x *Index) Register(b Backend, parent int64, kind construct.Kind, digest string, id int64) error {
	if err := b.SetHash(id, digest); err != nil {
		return err
	}
	x.mu.Lock()
	x.put(key{parent, kind, digest}, id)
	x.mu.Unlock()
	return nil
}

func (x *Index) put(k key, id int64) {
	if old, ok := x.byID[id]; ok {
		delete(x.ids, old)
	}
	if prev, ok := x.ids[k]; ok && prev != id {
		delete(x.byID, prev)
	}
	x.ids[k] = id
	x.byID[id] = k
}

// Forget drops the cached digest of id. Called before a statement is
// re-hashed or deleted; the persisted column is overwritten by the next
// Register or removed with the row.
func (x *Index) Forget(id int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if k, ok := x.byID[id]; ok {
		delete(x.ids, k)
		delete(x.byID, id)
	}
}

// Unregister removes id's digest from the index and clears the persisted column.
func (x *Index) Unregister(b Backend, id int64) error {
	if err := b.SetHash(id, ""); err != nil {
		return err
	}
	x.Forget(id)
	return nil
}

// Reset drops the whole cache.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	clear(x.ids)
	clear(x.byID)
}

// Len returns the number of cached digests.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.ids)
}
