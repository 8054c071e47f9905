// Package identity maps identity values (subject identifiers, subject
// locators, item identifiers) to the construct that owns them.
//
// The Index is a read-through, write-through cache over the identities
// table. Every mutation goes to the Backend first and only touches the cache
// once the row write succeeded; after a rolled back transaction the owner
// calls Reset so that nothing written by the aborted transaction survives.
package identity

import (
	"sync"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

// Backend is the slice of the construct store the index reads and writes.
// *store.Tx satisfies it.
type Backend interface {
	IdentityOwner(kind construct.IdentityKind, value string) (construct.Ref, error)
	BindIdentity(kind construct.IdentityKind, value string, ref construct.Ref) error
	UnbindIdentity(kind construct.IdentityKind, value string) error
	Identities(id int64) (construct.Identities, error)
	MoveIdentities(from, to int64) error
}

type entry struct {
	kind  construct.IdentityKind
	value string
}

// Index caches identity ownership for one topic map. Only positive lookups
// are cached; a miss always goes to the backend.
type Index struct {
	mu     sync.Mutex
	owners map[entry]construct.Ref
	byID   map[int64]map[entry]struct{}
}

// New returns an empty index.
func New() *Index {
	return &Index{
		owners: make(map[entry]construct.Ref),
		byID:   make(map[int64]map[entry]struct{}),
	}
}

func (x *Index) cache(e entry, ref construct.Ref) {
	if old, ok := x.owners[e]; ok {
		delete(x.byID[old.ID], e)
	}
	x.owners[e] = ref
	set := x.byID[ref.ID]
	if set == nil {
		set = make(map[entry]struct{})
		x.byID[ref.ID] = set
	}
	set[e] = struct{}{}
}

func (x *Index) evict(e entry) {
	if old, ok := x.owners[e]; ok {
		delete(x.byID[old.ID], e)
		delete(x.owners, e)
	}
}

// Lookup returns the owner of value as kind, or the zero Ref.
func (x *Index) Lookup(b Backend, kind construct.IdentityKind, value string) (construct.Ref, error) {
	e := entry{kind, value}
	x.mu.Lock()
	ref, ok := x.owners[e]
	x.mu.Unlock()
	if ok {
		return ref, nil
	}

	ref, err := b.IdentityOwner(kind, value)
	if err != nil || ref.IsZero() {
		return ref, err
	}
	x.mu.Lock()
	x.cache(e, ref)
	x.mu.Unlock()
	return ref, nil
}

// LookupBySubjectIdentifier returns the topic with the given subject identifier.
func (x *Index) LookupBySubjectIdentifier(b Backend, uri string) (construct.Ref, error) {
	return x.Lookup(b, construct.SubjectIdentifier, uri)
}

// LookupBySubjectLocator returns the topic with the given subject locator.
func (x *Index) LookupBySubjectLocator(b Backend, uri string) (construct.Ref, error) {
	return x.Lookup(b, construct.SubjectLocator, uri)
}

// LookupByItemIdentifier returns the construct with the given item identifier.
func (x *Index) LookupByItemIdentifier(b Backend, uri string) (construct.Ref, error) {
	return x.Lookup(b, construct.ItemIdentifier, uri)
}

// Collision returns the construct that would make binding value as kind an
// identity collision. Besides the owner of the same kind, TMDM treats a
// subject identifier equal to a topic's item identifier (and the reverse) as
// the same identity.
func (x *Index) Collision(b Backend, kind construct.IdentityKind, value string) (construct.Ref, error) {
	ref, err := x.Lookup(b, kind, value)
	if err != nil || !ref.IsZero() {
		return ref, err
	}
	var other construct.IdentityKind
	switch kind {
	case construct.SubjectIdentifier:
		other = construct.ItemIdentifier
	case construct.ItemIdentifier:
		other = construct.SubjectIdentifier
	default:
		return construct.Ref{}, nil
	}
	ref, err = x.Lookup(b, other, value)
	if err != nil {
		return construct.Ref{}, err
	}
	if ref.Kind != construct.KindTopic {
		return construct.Ref{}, nil
	}
	return ref, nil
}

// Bind makes ref the owner of value as kind. Binding a value to its current
// owner is a no-op; binding it to anyone else returns *tmerr.IdentityConflict.
func (x *Index) Bind(b Backend, value string, kind construct.IdentityKind, ref construct.Ref) error {
	owner, err := x.Lookup(b, kind, value)
	if err != nil {
		return err
	}
	if owner == ref {
		return nil
	}
	if !owner.IsZero() {
		return tmerr.NewIdentityConflict(value, kind, owner, ref)
	}
	if err := b.BindIdentity(kind, value, ref); err != nil {
		return err
	}
	x.mu.Lock()
	x.cache(entry{kind, value}, ref)
	x.mu.Unlock()
	return nil
}

// Unbind removes value from the index.
func (x *Index) Unbind(b Backend, value string, kind construct.IdentityKind) error {
	if err := b.UnbindIdentity(kind, value); err != nil {
		return err
	}
	x.mu.Lock()
	x.evict(entry{kind, value})
	x.mu.Unlock()
	return nil
}

// Rebind moves every identity of from to to and returns what was moved. The
// two identity sets are disjoint by construction, so no conflict can arise.
func (x *Index) Rebind(b Backend, from, to construct.Ref) (construct.Identities, error) {
	ids, err := b.Identities(from.ID)
	if err != nil {
		return ids, err
	}
	if ids.Len() == 0 {
		return ids, nil
	}
	if err := b.MoveIdentities(from.ID, to.ID); err != nil {
		return ids, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	_ = ids.Each(func(kind construct.IdentityKind, value string) error {
		x.cache(entry{kind, value}, to)
		return nil
	})
	return ids, nil
}

// Forget drops every cached entry owned by id. Called for deleted constructs.
func (x *Index) Forget(id int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for e := range x.byID[id] {
		delete(x.owners, e)
	}
	delete(x.byID, id)
}

// Reset drops the whole cache.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	clear(x.owners)
	clear(x.byID)
}

// Len returns the number of cached entries.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.owners)
}
