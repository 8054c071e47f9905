package topicmap

import (
	"context"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/hashindex"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/scope"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

// RoleSpec describes one role of an association to create.
type RoleSpec struct {
	Type   construct.Ref
	Player construct.Ref
}

// createStatement stores a statement with its themes and runs the
// creation-time duplicate check. It returns the surviving id: either the new
// construct or the existing sibling it turned out to duplicate.
func (o *op) createStatement(r store.Row, themes []int64) (int64, error) {
	if r.Kind == construct.KindName || r.Kind == construct.KindOccurrence || r.Kind == construct.KindVariant {
		r.Value, r.Datatype = hashindex.CanonicalValue(r.Value, r.Datatype)
	}
	id, err := o.tx.CreateConstruct(r)
	if err != nil {
		return 0, err
	}
	for _, th := range themes {
		if err := o.tx.AddTheme(id, th); err != nil {
			return 0, err
		}
	}
	return o.sess.Reconcile(id)
}

// CreateName adds a name to topic. A zero typ uses the default name type.
// Creating a name equal to one the topic already has returns the existing name.
func (m *TopicMap) CreateName(ctx context.Context, topic, typ construct.Ref, value string, themes ...construct.Ref) (construct.Ref, error) {
	var ref construct.Ref
	err := m.update(ctx, "create_name", func(o *op) error {
		parent, err := o.requireTopic(topic)
		if err != nil {
			return err
		}
		var typeID int64
		if typ.IsZero() {
			def, err := o.topicByIdentity(construct.DefaultNameType, construct.SubjectIdentifier)
			if err != nil {
				return err
			}
			typeID = def.ID
		} else if typeID, err = o.requireTopic(typ); err != nil {
			return err
		}
		th, err := o.requireTopics(themes)
		if err != nil {
			return err
		}
		id, err := o.createStatement(store.Row{
			Kind: construct.KindName, Parent: parent, Type: typeID,
			Value: value, Datatype: construct.XSDString,
		}, th)
		ref = construct.Name(id)
		return err
	})
	return ref, err
}

// CreateOccurrence adds an occurrence to topic. An empty datatype means xsd:string.
func (m *TopicMap) CreateOccurrence(ctx context.Context, topic, typ construct.Ref, value, datatype string, themes ...construct.Ref) (construct.Ref, error) {
	var ref construct.Ref
	err := m.update(ctx, "create_occurrence", func(o *op) error {
		parent, err := o.requireTopic(topic)
		if err != nil {
			return err
		}
		typeID, err := o.requireTopic(typ)
		if err != nil {
			return err
		}
		th, err := o.requireTopics(themes)
		if err != nil {
			return err
		}
		id, err := o.createStatement(store.Row{
			Kind: construct.KindOccurrence, Parent: parent, Type: typeID,
			Value: value, Datatype: datatype,
		}, th)
		ref = construct.Occurrence(id)
		return err
	})
	return ref, err
}

// CreateVariant adds a variant to name. The variant's scope together with the
// name's scope must add at least one theme to the name's scope; otherwise the
// call fails with *tmerr.ScopeConstraintViolation.
func (m *TopicMap) CreateVariant(ctx context.Context, name construct.Ref, value, datatype string, themes ...construct.Ref) (construct.Ref, error) {
	var ref construct.Ref
	err := m.update(ctx, "create_variant", func(o *op) error {
		n, err := o.require(name, construct.KindName)
		if err != nil {
			return err
		}
		th, err := o.requireTopics(themes)
		if err != nil {
			return err
		}
		nameThemes, err := o.tx.Scope(n.ID)
		if err != nil {
			return err
		}
		nameScope := scope.Of(nameThemes...)
		if !scope.IsTrueSuperset(scope.Of(th...).Union(nameScope), nameScope) {
			return tmerr.NewScopeConstraintViolation(n.Ref(), th)
		}
		id, err := o.createStatement(store.Row{
			Kind: construct.KindVariant, Parent: n.ID, Value: value, Datatype: datatype,
		}, th)
		ref = construct.Variant(id)
		return err
	})
	return ref, err
}

// CreateAssociation creates an association with its roles. If an association
// with the same type, scope and role set already exists, that association is
// returned and nothing new is kept.
func (m *TopicMap) CreateAssociation(ctx context.Context, typ construct.Ref, themes []construct.Ref, roles ...RoleSpec) (construct.Ref, error) {
	var ref construct.Ref
	err := m.update(ctx, "create_association", func(o *op) error {
		typeID, err := o.requireTopic(typ)
		if err != nil {
			return err
		}
		th, err := o.requireTopics(themes)
		if err != nil {
			return err
		}
		type pair struct{ typ, player int64 }
		pairs := make([]pair, 0, len(roles))
		for _, rs := range roles {
			rt, err := o.requireTopic(rs.Type)
			if err != nil {
				return err
			}
			rp, err := o.requireTopic(rs.Player)
			if err != nil {
				return err
			}
			pairs = append(pairs, pair{rt, rp})
		}

		assoc, err := o.tx.CreateConstruct(store.Row{Kind: construct.KindAssociation, Parent: o.m.id, Type: typeID})
		if err != nil {
			return err
		}
		for _, t := range th {
			if err := o.tx.AddTheme(assoc, t); err != nil {
				return err
			}
		}
		for _, p := range pairs {
			if _, err := o.createStatement(store.Row{
				Kind: construct.KindRole, Parent: assoc, Type: p.typ, Player: p.player,
			}, nil); err != nil {
				return err
			}
		}
		id, err := o.sess.Reconcile(assoc)
		ref = construct.Association(id)
		return err
	})
	return ref, err
}

// CreateRole adds a role to an existing association. The association is
// re-checked for duplicates, so the returned role may belong to a different
// (older) association than the one passed in.
func (m *TopicMap) CreateRole(ctx context.Context, assoc, typ, player construct.Ref) (construct.Ref, error) {
	var ref construct.Ref
	err := m.update(ctx, "create_role", func(o *op) error {
		a, err := o.require(assoc, construct.KindAssociation)
		if err != nil {
			return err
		}
		rt, err := o.requireTopic(typ)
		if err != nil {
			return err
		}
		rp, err := o.requireTopic(player)
		if err != nil {
			return err
		}
		role, err := o.createStatement(store.Row{Kind: construct.KindRole, Parent: a.ID, Type: rt, Player: rp}, nil)
		if err != nil {
			return err
		}
		if _, err := o.sess.Reconcile(a.ID); err != nil {
			return err
		}
		ref = construct.Role(o.sess.Resolve(role))
		return nil
	})
	return ref, err
}

// SetReifier makes reifier the reifier of ref, or clears it when reifier is
// the zero Ref. A topic that already reifies another construct is rejected
// with *tmerr.ModelConstraintViolation.
func (m *TopicMap) SetReifier(ctx context.Context, ref, reifier construct.Ref) error {
	return m.update(ctx, "set_reifier", func(o *op) error {
		r, err := o.require(ref)
		if err != nil {
			return err
		}
		if r.Kind == construct.KindTopic {
			return tmerr.NewModelConstraintViolation(r.Ref(), "topics cannot be reified")
		}
		if reifier.IsZero() {
			return o.tx.UpdateReifier(r.ID, 0)
		}
		topic, err := o.requireTopic(reifier)
		if err != nil {
			return err
		}
		reified, err := o.tx.ReifiedBy(topic)
		if err != nil {
			return err
		}
		if !reified.IsZero() && reified.ID != r.ID {
			return tmerr.NewModelConstraintViolation(construct.Topic(topic), "already reifies "+reified.String())
		}
		return o.tx.UpdateReifier(r.ID, topic)
	})
}

// Remove deletes a construct and everything it owns. A topic that is still
// used as a type, theme, player or reifier is rejected with *tmerr.TopicInUse.
func (m *TopicMap) Remove(ctx context.Context, ref construct.Ref) error {
	return m.update(ctx, "remove", func(o *op) error {
		r, err := o.require(ref)
		if err != nil {
			return err
		}
		switch r.Kind {
		case construct.KindTopicMap:
			return tmerr.NewModelConstraintViolation(r.Ref(), "topic maps are not removed through a topic map")
		case construct.KindTopic:
			uses, err := o.tx.TopicUses(r.ID)
			if err != nil {
				return err
			}
			if len(uses) > 0 {
				return tmerr.NewTopicInUse(r.Ref(), uses)
			}
		}
		if err := o.sess.Remove(r.ID); err != nil {
			return err
		}
		// Dropping a role changes its association's role set.
		if r.Kind == construct.KindRole {
			_, err = o.sess.Reconcile(r.Parent)
		}
		return err
	})
}
