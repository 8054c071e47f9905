package topicmap

import (
	"context"

	"github.com/stribert/striberts-quaaxtm-sub002/api"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/scope"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
)

// Topic returns the read model of a topic.
func (m *TopicMap) Topic(ctx context.Context, ref construct.Ref) (*api.TopicView, error) {
	var v *api.TopicView
	err := m.view(ctx, func(o *op) error {
		id, err := o.requireTopic(ref)
		if err != nil {
			return err
		}
		v, err = o.topicView(id)
		return err
	})
	return v, err
}

// Name returns the read model of a name with its variants.
func (m *TopicMap) Name(ctx context.Context, ref construct.Ref) (*api.NameView, error) {
	var v *api.NameView
	err := m.view(ctx, func(o *op) error {
		r, err := o.require(ref, construct.KindName)
		if err != nil {
			return err
		}
		nv, err := o.nameView(r)
		v = &nv
		return err
	})
	return v, err
}

// Association returns the read model of an association with its roles.
func (m *TopicMap) Association(ctx context.Context, ref construct.Ref) (*api.AssociationView, error) {
	var v *api.AssociationView
	err := m.view(ctx, func(o *op) error {
		r, err := o.require(ref, construct.KindAssociation)
		if err != nil {
			return err
		}
		v, err = o.associationView(r)
		return err
	})
	return v, err
}

// Topics lists the ids of every topic in the map.
func (m *TopicMap) Topics(ctx context.Context) ([]int64, error) {
	return m.list(ctx, construct.KindTopic)
}

// Associations lists the ids of every association in the map.
func (m *TopicMap) Associations(ctx context.Context) ([]int64, error) {
	return m.list(ctx, construct.KindAssociation)
}

// Constructs lists the ids of every construct of kind in the map.
func (m *TopicMap) Constructs(ctx context.Context, kind construct.Kind) ([]int64, error) {
	return m.list(ctx, kind)
}

func (m *TopicMap) list(ctx context.Context, kind construct.Kind) ([]int64, error) {
	var ids []int64
	err := m.view(ctx, func(o *op) error {
		var err error
		ids, err = o.tx.ConstructsOfKind(kind)
		return err
	})
	return ids, err
}

// Kind returns the kind of the construct with the given id.
func (m *TopicMap) Kind(ctx context.Context, id int64) (construct.Kind, error) {
	var kind construct.Kind
	err := m.view(ctx, func(o *op) error {
		r, err := o.tx.Construct(id)
		if err != nil {
			return err
		}
		kind = r.Kind
		return nil
	})
	return kind, err
}

func (o *op) topicView(id int64) (*api.TopicView, error) {
	ids, err := o.tx.Identities(id)
	if err != nil {
		return nil, err
	}
	v := &api.TopicView{
		ID:                 id,
		SubjectIdentifiers: ids.SubjectIdentifiers,
		SubjectLocators:    ids.SubjectLocators,
		ItemIdentifiers:    ids.ItemIdentifiers,
	}
	if v.Types, err = o.tx.TopicTypes(id); err != nil {
		return nil, err
	}
	reified, err := o.tx.ReifiedBy(id)
	if err != nil {
		return nil, err
	}
	if !reified.IsZero() {
		v.Reified = reified.String()
	}
	if v.RolesPlayed, err = o.tx.RolesPlayed(id); err != nil {
		return nil, err
	}

	names, err := o.tx.Children(id, construct.KindName)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		r, err := o.tx.Construct(n)
		if err != nil {
			return nil, err
		}
		nv, err := o.nameView(r)
		if err != nil {
			return nil, err
		}
		v.Names = append(v.Names, nv)
	}

	occs, err := o.tx.Children(id, construct.KindOccurrence)
	if err != nil {
		return nil, err
	}
	for _, oc := range occs {
		r, err := o.tx.Construct(oc)
		if err != nil {
			return nil, err
		}
		themes, iids, err := o.scopeAndIIDs(r.ID)
		if err != nil {
			return nil, err
		}
		v.Occurrences = append(v.Occurrences, api.OccurrenceView{
			ID: r.ID, Type: r.Type, Value: r.Value, Datatype: r.Datatype,
			Scope: themes, Reifier: r.Reifier, ItemIdentifiers: iids,
		})
	}
	return v, nil
}

func (o *op) nameView(r *store.Row) (api.NameView, error) {
	themes, iids, err := o.scopeAndIIDs(r.ID)
	if err != nil {
		return api.NameView{}, err
	}
	nv := api.NameView{
		ID: r.ID, Type: r.Type, Value: r.Value,
		Scope: themes, Reifier: r.Reifier, ItemIdentifiers: iids,
	}
	variants, err := o.tx.Children(r.ID, construct.KindVariant)
	if err != nil {
		return nv, err
	}
	for _, id := range variants {
		vr, err := o.tx.Construct(id)
		if err != nil {
			return nv, err
		}
		own, viids, err := o.scopeAndIIDs(id)
		if err != nil {
			return nv, err
		}
		nv.Variants = append(nv.Variants, api.VariantView{
			ID:              id,
			Value:           vr.Value,
			Datatype:        vr.Datatype,
			Scope:           scope.Of(own...).Union(scope.Of(themes...)).Themes(),
			Reifier:         vr.Reifier,
			ItemIdentifiers: viids,
		})
	}
	return nv, nil
}

func (o *op) associationView(r *store.Row) (*api.AssociationView, error) {
	themes, iids, err := o.scopeAndIIDs(r.ID)
	if err != nil {
		return nil, err
	}
	v := &api.AssociationView{
		ID:              r.ID,
		Type:            r.Type,
		Scope:           themes,
		Reifier:         r.Reifier,
		ItemIdentifiers: iids,
		Roles:           []api.RoleView{},
	}
	roles, err := o.tx.Children(r.ID, construct.KindRole)
	if err != nil {
		return nil, err
	}
	for _, id := range roles {
		rr, err := o.tx.Construct(id)
		if err != nil {
			return nil, err
		}
		ids, err := o.tx.Identities(id)
		if err != nil {
			return nil, err
		}
		v.Roles = append(v.Roles, api.RoleView{
			ID: id, Type: rr.Type, Player: rr.Player,
			Reifier: rr.Reifier, ItemIdentifiers: ids.ItemIdentifiers,
		})
	}
	return v, nil
}

func (o *op) scopeAndIIDs(id int64) ([]int64, []string, error) {
	themes, err := o.tx.Scope(id)
	if err != nil {
		return nil, nil, err
	}
	ids, err := o.tx.Identities(id)
	if err != nil {
		return nil, nil, err
	}
	return themes, ids.ItemIdentifiers, nil
}
