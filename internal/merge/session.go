package merge

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/hashindex"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/metrics"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/scope"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

// Session runs merges inside one store transaction. It is not safe for
// concurrent use and must not outlive the transaction.
type Session struct {
	e     *Engine
	tx    ConstructStore
	log   *zap.Logger
	depth int
	stats Stats

	// redirect maps a merged-away construct to the construct it was merged into.
	redirect map[int64]int64
}

// Stats returns the counters accumulated so far.
func (s *Session) Stats() Stats { return s.stats }

// Resolve follows the redirect table to the surviving construct.
func (s *Session) Resolve(id int64) int64 {
	for {
		next, ok := s.redirect[id]
		if !ok {
			return id
		}
		id = next
	}
}

func (s *Session) topic(id int64) (*store.Row, error) {
	r, err := s.tx.Construct(id)
	if err != nil {
		return nil, err
	}
	if r.Kind != construct.KindTopic {
		return nil, tmerr.NewModelConstraintViolation(r.Ref(), "not a topic")
	}
	return r, nil
}

// MergeTopic merges source into target. Afterwards source no longer exists
// and target carries the identities, types, characteristics, roles and
// reification of both. Merging a topic into itself is a no-op.
func (s *Session) MergeTopic(target, source int64) error {
	target, source = s.Resolve(target), s.Resolve(source)
	if target == source {
		metrics.MergesTotal.WithLabelValues("noop").Inc()
		return nil
	}
	if s.depth == 0 {
		start := time.Now()
		defer func() { metrics.MergeDuration.Observe(time.Since(start).Seconds()) }()
	}
	s.depth++
	defer func() { s.depth-- }()

	if err := s.mergeTopic(target, source); err != nil {
		metrics.MergesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.MergesTotal.WithLabelValues("merged").Inc()
	s.stats.TopicsMerged++
	return nil
}

func (s *Session) mergeTopic(target, source int64) error {
	if _, err := s.topic(target); err != nil {
		return err
	}
	if _, err := s.topic(source); err != nil {
		return err
	}

	targetReified, err := s.tx.ReifiedBy(target)
	if err != nil {
		return err
	}
	sourceReified, err := s.tx.ReifiedBy(source)
	if err != nil {
		return err
	}
	if !targetReified.IsZero() && !sourceReified.IsZero() && targetReified != sourceReified {
		return tmerr.NewReifierConflict(construct.Topic(target), construct.Topic(source), targetReified, sourceReified)
	}

	s.log.Debug("merging topics", zap.Int64("target", target), zap.Int64("source", source), zap.Int("depth", s.depth))

	// Identity union.
	if _, err := s.e.ids.Rebind(s.tx, construct.Topic(source), construct.Topic(target)); err != nil {
		return err
	}

	// Type union.
	types, err := s.tx.TopicTypes(source)
	if err != nil {
		return err
	}
	for _, typ := range types {
		if err := s.tx.AddTopicType(target, typ); err != nil {
			return err
		}
	}

	// Every statement that mentions source as type, theme or player changes
	// content. Its stale digest is dropped before the rewrite.
	affected, err := s.tx.ReferencesTo(source)
	if err != nil {
		return err
	}
	for _, id := range affected {
		s.e.hashes.Forget(id)
	}
	if err := s.tx.ReplaceTopicRefs(source, target); err != nil {
		return err
	}
	if !sourceReified.IsZero() {
		if err := s.tx.UpdateReifier(sourceReified.ID, target); err != nil {
			return err
		}
	}
	s.redirect[source] = target

	// Characteristics move to target one by one, each checked against what
	// target already owns.
	for _, kind := range []construct.Kind{construct.KindName, construct.KindOccurrence} {
		children, err := s.tx.Children(source, kind)
		if err != nil {
			return err
		}
		for _, id := range children {
			s.e.hashes.Forget(id)
			if err := s.tx.UpdateParent(id, s.Resolve(target)); err != nil {
				return err
			}
			if _, err := s.Reconcile(id); err != nil {
				return err
			}
		}
	}

	if err := s.reconcileAffected(affected); err != nil {
		return err
	}

	deleted, err := s.tx.DeleteConstruct(source)
	if err != nil {
		return err
	}
	s.forget(deleted)
	return nil
}

// reconcileAffected re-hashes rewritten statements in dependency order:
// roles before their associations, names before their variants.
func (s *Session) reconcileAffected(affected []int64) error {
	buckets := make(map[construct.Kind][]int64)
	seen := make(map[int64]bool)
	add := func(kind construct.Kind, id int64) {
		if !seen[id] {
			seen[id] = true
			buckets[kind] = append(buckets[kind], id)
		}
	}

	for _, id := range affected {
		r, err := s.tx.Construct(id)
		if errors.Is(err, tmerr.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		add(r.Kind, id)
		switch r.Kind {
		case construct.KindRole:
			add(construct.KindAssociation, r.Parent)
		case construct.KindName:
			variants, err := s.tx.Children(id, construct.KindVariant)
			if err != nil {
				return err
			}
			for _, v := range variants {
				add(construct.KindVariant, v)
			}
		}
	}

	for _, kind := range []construct.Kind{
		construct.KindRole,
		construct.KindAssociation,
		construct.KindName,
		construct.KindOccurrence,
		construct.KindVariant,
	} {
		for _, id := range buckets[kind] {
			s.e.hashes.Forget(id)
			if _, err := s.Reconcile(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reconcile hashes a statement under its current parent. If a sibling with
// the same digest exists the statement is merged into it and the sibling's
// id is returned; otherwise the digest is registered and id is returned.
// Constructs that are gone (merged away earlier in the session) resolve to
// their survivor.
func (s *Session) Reconcile(id int64) (int64, error) {
	if resolved := s.Resolve(id); resolved != id {
		return resolved, nil
	}
	ok, err := s.tx.Exists(id)
	if err != nil || !ok {
		return 0, err
	}
	r, err := s.tx.Construct(id)
	if err != nil {
		return 0, err
	}
	if !r.Kind.IsStatement() {
		return id, nil
	}

	desc, err := s.Describe(r)
	if err != nil {
		return 0, err
	}
	if r.Kind == construct.KindVariant {
		if err := s.checkVariantScope(r, desc.Scope); err != nil {
			return 0, err
		}
	}
	digest := hashindex.Digest(desc)
	s.e.hashes.Forget(id)

	dup, err := s.e.hashes.Find(s.tx, r.Parent, r.Kind, digest, id)
	if err != nil {
		return 0, err
	}
	if dup == 0 {
		return id, s.e.hashes.Register(s.tx, r.Parent, r.Kind, digest, id)
	}
	if err := s.mergeDuplicate(dup, id); err != nil {
		return 0, err
	}
	return s.Resolve(dup), nil
}

// checkVariantScope fails when a variant's effective scope no longer adds a
// theme to its name's scope, which a theme rewrite during a merge can cause.
func (s *Session) checkVariantScope(r *store.Row, effective scope.Set) error {
	nameThemes, err := s.tx.Scope(r.Parent)
	if err != nil {
		return err
	}
	if !scope.IsTrueSuperset(effective, scope.Of(nameThemes...)) {
		return tmerr.NewModelConstraintViolation(r.Ref(),
			"variant scope adds no theme to the scope of "+construct.Name(r.Parent).String())
	}
	return nil
}

// Describe builds the digest input of a statement from its stored row.
func (s *Session) Describe(r *store.Row) (hashindex.Descriptor, error) {
	d := hashindex.Descriptor{
		Kind:     r.Kind,
		Type:     r.Type,
		Value:    r.Value,
		Datatype: r.Datatype,
		Player:   r.Player,
	}
	themes, err := s.tx.Scope(r.ID)
	if err != nil {
		return d, err
	}
	d.Scope = scope.Of(themes...)

	switch r.Kind {
	case construct.KindVariant:
		nameThemes, err := s.tx.Scope(r.Parent)
		if err != nil {
			return d, err
		}
		d.Scope = d.Scope.Union(scope.Of(nameThemes...))
	case construct.KindAssociation:
		roles, err := s.tx.Children(r.ID, construct.KindRole)
		if err != nil {
			return d, err
		}
		for _, id := range roles {
			role, err := s.tx.Construct(id)
			if err != nil {
				return d, err
			}
			d.Roles = append(d.Roles, hashindex.RolePair{Type: role.Type, Player: role.Player})
		}
	}
	return d, nil
}

// mergeDuplicate folds loser into winner: item identifiers are unioned,
// reifiers reconciled, owned variants or roles moved over, and loser deleted.
func (s *Session) mergeDuplicate(winner, loser int64) error {
	w, err := s.tx.Construct(winner)
	if err != nil {
		return err
	}
	l, err := s.tx.Construct(loser)
	if err != nil {
		return err
	}

	s.log.Debug("suppressing duplicate",
		zap.Stringer("kind", l.Kind), zap.Int64("winner", winner), zap.Int64("loser", loser))

	if _, err := s.e.ids.Rebind(s.tx, l.Ref(), w.Ref()); err != nil {
		return err
	}

	if l.Reifier != 0 {
		// Detach first: a topic reifies at most one construct.
		if err := s.tx.UpdateReifier(loser, 0); err != nil {
			return err
		}
		switch {
		case w.Reifier == 0:
			if err := s.tx.UpdateReifier(winner, l.Reifier); err != nil {
				return err
			}
		case s.Resolve(w.Reifier) != s.Resolve(l.Reifier):
			if err := s.MergeTopic(w.Reifier, l.Reifier); err != nil {
				return err
			}
		}
		// The reifier merge may already have rewritten and folded loser.
		if s.Resolve(loser) != loser {
			return nil
		}
		winner = s.Resolve(winner)
	}

	var owned construct.Kind
	switch l.Kind {
	case construct.KindName:
		owned = construct.KindVariant
	case construct.KindAssociation:
		owned = construct.KindRole
	}
	if owned != 0 {
		children, err := s.tx.Children(loser, owned)
		if err != nil {
			return err
		}
		for _, id := range children {
			s.e.hashes.Forget(id)
			if err := s.tx.UpdateParent(id, winner); err != nil {
				return err
			}
			if _, err := s.Reconcile(id); err != nil {
				return err
			}
		}
	}

	deleted, err := s.tx.DeleteConstruct(loser)
	if err != nil {
		return err
	}
	s.forget(deleted)
	s.redirect[loser] = winner
	s.stats.DuplicatesRemoved++
	metrics.DuplicatesSuppressed.WithLabelValues(l.Kind.String()).Inc()
	return nil
}

// Remove deletes a construct and everything it owns, keeping the indices in
// step with the store.
func (s *Session) Remove(id int64) error {
	deleted, err := s.tx.DeleteConstruct(id)
	if err != nil {
		return err
	}
	s.forget(deleted)
	return nil
}

func (s *Session) forget(ids []int64) {
	for _, id := range ids {
		s.e.ids.Forget(id)
		s.e.hashes.Forget(id)
	}
}
