package topicmap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

const base = "http://example.org/opera/"

func newTestMap(t *testing.T, opts ...Option) *TopicMap {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tm.db"), store.Options{LockFile: true})
	require.NoError(t, err)
	sys := NewSystem(st, opts...)
	t.Cleanup(func() { _ = sys.Close() })

	tm, err := sys.CreateTopicMap(context.Background(), base+"map")
	require.NoError(t, err)
	return tm
}

func topic(t *testing.T, tm *TopicMap, sid string) construct.Ref {
	t.Helper()
	ref, err := tm.CreateOrGetTopicByIdentity(context.Background(), base+sid, construct.SubjectIdentifier)
	require.NoError(t, err)
	return ref
}

func nameValues(t *testing.T, tm *TopicMap, ref construct.Ref) []string {
	t.Helper()
	v, err := tm.Topic(context.Background(), ref)
	require.NoError(t, err)
	var out []string
	for _, n := range v.Names {
		out = append(out, n.Value)
	}
	return out
}

func TestSystem_TopicMaps(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "tm.db"), store.Options{})
	require.NoError(t, err)
	sys := NewSystem(st)
	defer func() { _ = sys.Close() }()

	a, err := sys.CreateTopicMap(ctx, base+"a")
	require.NoError(t, err)

	_, err = sys.CreateTopicMap(ctx, base+"a")
	var mcv *tmerr.ModelConstraintViolation
	assert.ErrorAs(t, err, &mcv)

	got, err := sys.TopicMap(ctx, base+"a")
	require.NoError(t, err)
	assert.Same(t, a, got, "one handle per topic map")

	_, err = sys.TopicMap(ctx, base+"missing")
	assert.ErrorIs(t, err, tmerr.ErrNotFound)

	b, err := sys.OpenTopicMap(ctx, base+"b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	locs, err := sys.TopicMapLocators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{base + "a", base + "b"}, locs)
}

func TestTopicMaps_AreIsolated(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "tm.db"), store.Options{})
	require.NoError(t, err)
	sys := NewSystem(st)
	defer func() { _ = sys.Close() }()

	a, err := sys.CreateTopicMap(ctx, base+"a")
	require.NoError(t, err)
	b, err := sys.CreateTopicMap(ctx, base+"b")
	require.NoError(t, err)

	ta := topic(t, a, "puccini")
	tb := topic(t, b, "puccini")
	assert.NotEqual(t, ta, tb, "identities are scoped to their topic map")

	_, err = b.Topic(ctx, ta)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)
	err = b.MergeTopic(ctx, tb, ta)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)
}

func TestCreateTopic_HasGeneratedItemIdentifier(t *testing.T) {
	tm := newTestMap(t)
	ref, err := tm.CreateTopic(context.Background())
	require.NoError(t, err)

	v, err := tm.Topic(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, v.ItemIdentifiers, 1)
	assert.Contains(t, v.ItemIdentifiers[0], "urn:uuid:")
}

func TestCreateOrGetTopicByIdentity_Idempotent(t *testing.T) {
	tm := newTestMap(t)
	a := topic(t, tm, "puccini")
	b := topic(t, tm, "puccini")
	assert.Equal(t, a, b)

	topics, err := tm.Topics(context.Background())
	require.NoError(t, err)
	assert.Len(t, topics, 1)
}

func TestCreateOrGetTopicByIdentity_CrossKind(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)

	a, err := tm.CreateOrGetTopicByIdentity(ctx, base+"tosca", construct.ItemIdentifier)
	require.NoError(t, err)
	b, err := tm.CreateOrGetTopicByIdentity(ctx, base+"tosca", construct.SubjectIdentifier)
	require.NoError(t, err)
	assert.Equal(t, a, b, "a subject identifier matches an item identifier of a topic")

	v, err := tm.Topic(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{base + "tosca"}, v.SubjectIdentifiers)
	assert.Equal(t, []string{base + "tosca"}, v.ItemIdentifiers)
}

func TestCreateOrGetTopicByIdentity_ItemIdentifierOfStatement(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")
	n, err := tm.CreateName(ctx, p, construct.Ref{}, "Puccini")
	require.NoError(t, err)
	require.NoError(t, tm.AddIdentity(ctx, n, base+"name-1", construct.ItemIdentifier))

	_, err = tm.CreateOrGetTopicByIdentity(ctx, base+"name-1", construct.ItemIdentifier)
	var ice *tmerr.IdentityConstraintError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, n, ice.Conflict.Existing)
}

// Scenario 1: equal names collapse when their topics merge.
func TestMerge_DuplicateNamesCollapse(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	t1 := topic(t, tm, "t1")
	t2 := topic(t, tm, "t2")

	_, err := tm.CreateName(ctx, t1, construct.Ref{}, "PHPTMAPI")
	require.NoError(t, err)
	_, err = tm.CreateName(ctx, t2, construct.Ref{}, "PHPTMAPI")
	require.NoError(t, err)

	require.NoError(t, tm.MergeTopic(ctx, t1, t2))
	assert.Equal(t, []string{"PHPTMAPI"}, nameValues(t, tm, t1))

	names, err := tm.Constructs(ctx, construct.KindName)
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

// Scenario 2: collapsing two reified associations merges their reifiers.
func TestMerge_DuplicateAssociationsMergeReifiers(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	assocType := topic(t, tm, "composed-by")
	roleType := topic(t, tm, "composer")
	p1 := topic(t, tm, "puccini")
	p2 := topic(t, tm, "giacomo-puccini")

	a1, err := tm.CreateAssociation(ctx, assocType, nil, RoleSpec{Type: roleType, Player: p1})
	require.NoError(t, err)
	a2, err := tm.CreateAssociation(ctx, assocType, nil, RoleSpec{Type: roleType, Player: p2})
	require.NoError(t, err)
	require.NotEqual(t, a1, a2)

	r1, err := tm.CreateTopic(ctx)
	require.NoError(t, err)
	_, err = tm.CreateName(ctx, r1, construct.Ref{}, "Reifier1")
	require.NoError(t, err)
	require.NoError(t, tm.SetReifier(ctx, a1, r1))

	r2, err := tm.CreateTopic(ctx)
	require.NoError(t, err)
	_, err = tm.CreateName(ctx, r2, construct.Ref{}, "Reifier2")
	require.NoError(t, err)
	require.NoError(t, tm.SetReifier(ctx, a2, r2))

	require.NoError(t, tm.MergeTopic(ctx, p1, p2))

	assocs, err := tm.Associations(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{a1.ID}, assocs)

	av, err := tm.Association(ctx, a1)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, av.Reifier)
	require.Len(t, av.Roles, 1)
	assert.Equal(t, p1.ID, av.Roles[0].Player)

	assert.ElementsMatch(t, []string{"Reifier1", "Reifier2"}, nameValues(t, tm, r1))
	_, err = tm.Topic(ctx, r2)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)

	rv, err := tm.Topic(ctx, r1)
	require.NoError(t, err)
	assert.Equal(t, a1.String(), rv.Reified)
	assert.Len(t, rv.ItemIdentifiers, 2, "both generated item identifiers survive")
}

// Scenario 3: a variant must add a theme to its name's scope.
func TestCreateVariant_ScopeMustBeTrueSuperset(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")
	italian := topic(t, tm, "italian")
	sortTheme := topic(t, tm, "sort")

	n, err := tm.CreateName(ctx, p, construct.Ref{}, "Giacomo Puccini", italian)
	require.NoError(t, err)

	var scv *tmerr.ScopeConstraintViolation
	_, err = tm.CreateVariant(ctx, n, "puccini, giacomo", "")
	assert.ErrorAs(t, err, &scv, "empty delta")
	_, err = tm.CreateVariant(ctx, n, "puccini, giacomo", "", italian)
	assert.ErrorAs(t, err, &scv, "theme already in the name scope")

	v, err := tm.CreateVariant(ctx, n, "puccini, giacomo", "", sortTheme)
	require.NoError(t, err)

	nv, err := tm.Name(ctx, n)
	require.NoError(t, err)
	require.Len(t, nv.Variants, 1)
	assert.Equal(t, v.ID, nv.Variants[0].ID)
	assert.ElementsMatch(t, []int64{italian.ID, sortTheme.ID}, nv.Variants[0].Scope)
	assert.Equal(t, construct.XSDString, nv.Variants[0].Datatype)
}

// Scenario 4: disjoint identities are unioned and the source disappears.
func TestMerge_IdentityUnion(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	a := topic(t, tm, "sid1")
	b := topic(t, tm, "sid2")
	require.NoError(t, tm.AddIdentity(ctx, b, base+"page", construct.SubjectLocator))

	require.NoError(t, tm.MergeTopic(ctx, a, b))

	v, err := tm.Topic(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{base + "sid1", base + "sid2"}, v.SubjectIdentifiers)
	assert.Equal(t, []string{base + "page"}, v.SubjectLocators)

	_, err = tm.Topic(ctx, b)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)

	got, err := tm.TopicBySubjectIdentifier(ctx, base+"sid2")
	require.NoError(t, err)
	assert.Equal(t, a, got)
	got, err = tm.TopicBySubjectLocator(ctx, base+"page")
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

// Scenario 5: duplicate associations are caught at creation time.
func TestCreateAssociation_ReturnsExistingDuplicate(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	x := topic(t, tm, "x")
	r := topic(t, tm, "r")
	p1 := topic(t, tm, "p1")

	a1, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{Type: r, Player: p1})
	require.NoError(t, err)
	a2, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{Type: r, Player: p1})
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	assocs, err := tm.Associations(ctx)
	require.NoError(t, err)
	assert.Len(t, assocs, 1)
	roles, err := tm.Constructs(ctx, construct.KindRole)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestCreateAssociation_RoleOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	x := topic(t, tm, "x")
	r1, r2 := topic(t, tm, "r1"), topic(t, tm, "r2")
	p1, p2 := topic(t, tm, "p1"), topic(t, tm, "p2")

	a1, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r1, p1}, RoleSpec{r2, p2})
	require.NoError(t, err)
	a2, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r2, p2}, RoleSpec{r1, p1})
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	scoped, err := tm.CreateAssociation(ctx, x, []construct.Ref{p1}, RoleSpec{r1, p1}, RoleSpec{r2, p2})
	require.NoError(t, err)
	assert.NotEqual(t, a1, scoped, "scope is part of the identity")
}

func TestCreateRole_CanTurnAssociationIntoDuplicate(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	x := topic(t, tm, "x")
	r1, r2 := topic(t, tm, "r1"), topic(t, tm, "r2")
	p1, p2 := topic(t, tm, "p1"), topic(t, tm, "p2")

	full, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r1, p1}, RoleSpec{r2, p2})
	require.NoError(t, err)
	partial, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r1, p1})
	require.NoError(t, err)
	require.NotEqual(t, full, partial)

	role, err := tm.CreateRole(ctx, partial, r2, p2)
	require.NoError(t, err)

	assocs, err := tm.Associations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{full.ID}, assocs)

	av, err := tm.Association(ctx, full)
	require.NoError(t, err)
	assert.Len(t, av.Roles, 2)
	var ids []int64
	for _, r := range av.Roles {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, role.ID)
}

func TestCreateName_DuplicateReturnsExisting(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")

	n1, err := tm.CreateName(ctx, p, construct.Ref{}, "Puccini")
	require.NoError(t, err)
	n2, err := tm.CreateName(ctx, p, construct.Ref{}, "  Puccini ")
	require.NoError(t, err)
	assert.Equal(t, n1, n2, "values are canonicalised before comparison")

	def, err := tm.TopicBySubjectIdentifier(ctx, construct.DefaultNameType)
	require.NoError(t, err)
	nv, err := tm.Name(ctx, n1)
	require.NoError(t, err)
	assert.Equal(t, def.ID, nv.Type)
}

func TestMerge_SelfIsNoop(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	a := topic(t, tm, "a")
	_, err := tm.CreateName(ctx, a, construct.Ref{}, "A")
	require.NoError(t, err)

	require.NoError(t, tm.MergeTopic(ctx, a, a))
	assert.Equal(t, []string{"A"}, nameValues(t, tm, a))
}

func TestMerge_SecondMergeRejectsDeadSource(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	a := topic(t, tm, "a")
	b := topic(t, tm, "b")

	require.NoError(t, tm.MergeTopic(ctx, a, b))
	err := tm.MergeTopic(ctx, a, b)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)
}

func TestMerge_RoleTransfer(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	x := topic(t, tm, "x")
	r := topic(t, tm, "r")
	other := topic(t, tm, "other")
	a := topic(t, tm, "a")
	b := topic(t, tm, "b")

	assoc, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r, b}, RoleSpec{r, other})
	require.NoError(t, err)
	before, err := tm.Association(ctx, assoc)
	require.NoError(t, err)

	require.NoError(t, tm.MergeTopic(ctx, a, b))

	av, err := tm.Association(ctx, assoc)
	require.NoError(t, err)
	require.Len(t, av.Roles, 2)
	players := map[int64]int64{}
	for _, role := range av.Roles {
		players[role.ID] = role.Player
	}
	for _, role := range before.Roles {
		if role.Player == b.ID {
			assert.Equal(t, a.ID, players[role.ID], "role id is preserved, player rewritten")
		}
	}

	v, err := tm.Topic(ctx, a)
	require.NoError(t, err)
	assert.Len(t, v.RolesPlayed, 1)
}

func TestMerge_RolesCollapseInsideAssociation(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	x := topic(t, tm, "x")
	r := topic(t, tm, "r")
	a := topic(t, tm, "a")
	b := topic(t, tm, "b")

	assoc, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r, a}, RoleSpec{r, b})
	require.NoError(t, err)
	require.NoError(t, tm.MergeTopic(ctx, a, b))

	av, err := tm.Association(ctx, assoc)
	require.NoError(t, err)
	assert.Len(t, av.Roles, 1)
}

func TestMerge_TypeRewriteCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")
	t1 := topic(t, tm, "birth-date")
	t2 := topic(t, tm, "date-of-birth")

	_, err := tm.CreateOccurrence(ctx, p, t1, "1858-12-22", construct.XSDString)
	require.NoError(t, err)
	o2, err := tm.CreateOccurrence(ctx, p, t2, "1858-12-22", "")
	require.NoError(t, err)
	require.NoError(t, tm.AddIdentity(ctx, o2, base+"occ-2", construct.ItemIdentifier))

	require.NoError(t, tm.MergeTopic(ctx, t1, t2))

	v, err := tm.Topic(ctx, p)
	require.NoError(t, err)
	require.Len(t, v.Occurrences, 1)
	assert.Equal(t, t1.ID, v.Occurrences[0].Type)
	assert.Equal(t, []string{base + "occ-2"}, v.Occurrences[0].ItemIdentifiers, "loser item identifiers move to the winner")
}

func TestMerge_ThemeRewriteCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")
	s1 := topic(t, tm, "italian")
	s2 := topic(t, tm, "italiano")

	_, err := tm.CreateName(ctx, p, construct.Ref{}, "Giacomo", s1)
	require.NoError(t, err)
	_, err = tm.CreateName(ctx, p, construct.Ref{}, "Giacomo", s2)
	require.NoError(t, err)
	require.Len(t, nameValues(t, tm, p), 2)

	require.NoError(t, tm.MergeTopic(ctx, s1, s2))

	v, err := tm.Topic(ctx, p)
	require.NoError(t, err)
	require.Len(t, v.Names, 1)
	assert.Equal(t, []int64{s1.ID}, v.Names[0].Scope)
}

func TestMerge_DuplicateVariantsCollapse(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	t1 := topic(t, tm, "t1")
	t2 := topic(t, tm, "t2")
	sortTheme := topic(t, tm, "sort")

	n1, err := tm.CreateName(ctx, t1, construct.Ref{}, "Puccini")
	require.NoError(t, err)
	_, err = tm.CreateVariant(ctx, n1, "puccini", "", sortTheme)
	require.NoError(t, err)

	n2, err := tm.CreateName(ctx, t2, construct.Ref{}, "Puccini")
	require.NoError(t, err)
	v2, err := tm.CreateVariant(ctx, n2, "puccini", "", sortTheme)
	require.NoError(t, err)
	require.NoError(t, tm.AddIdentity(ctx, v2, base+"variant-2", construct.ItemIdentifier))

	require.NoError(t, tm.MergeTopic(ctx, t1, t2))

	v, err := tm.Topic(ctx, t1)
	require.NoError(t, err)
	require.Len(t, v.Names, 1)
	require.Len(t, v.Names[0].Variants, 1)
	assert.Equal(t, []string{base + "variant-2"}, v.Names[0].Variants[0].ItemIdentifiers)
}

func TestMerge_WinnerAdoptsLoserReifier(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	t1 := topic(t, tm, "t1")
	t2 := topic(t, tm, "t2")
	reifier := topic(t, tm, "reifier")

	n1, err := tm.CreateName(ctx, t1, construct.Ref{}, "Tosca")
	require.NoError(t, err)
	n2, err := tm.CreateName(ctx, t2, construct.Ref{}, "Tosca")
	require.NoError(t, err)
	require.NoError(t, tm.SetReifier(ctx, n2, reifier))

	require.NoError(t, tm.MergeTopic(ctx, t1, t2))

	nv, err := tm.Name(ctx, n1)
	require.NoError(t, err)
	assert.Equal(t, reifier.ID, nv.Reifier)
	_, err = tm.Name(ctx, n2)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)
}

func TestMerge_VariantScopeViolationChangesNothing(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")
	italian := topic(t, tm, "italian")
	sortTheme := topic(t, tm, "sort")

	n, err := tm.CreateName(ctx, p, construct.Ref{}, "Puccini", italian)
	require.NoError(t, err)
	v, err := tm.CreateVariant(ctx, n, "puccini", "", sortTheme)
	require.NoError(t, err)

	err = tm.MergeTopic(ctx, italian, sortTheme)
	var mcv *tmerr.ModelConstraintViolation
	require.ErrorAs(t, err, &mcv)

	vs, err := tm.Topic(ctx, sortTheme)
	require.NoError(t, err)
	assert.Equal(t, []string{base + "sort"}, vs.SubjectIdentifiers)

	nv, err := tm.Name(ctx, n)
	require.NoError(t, err)
	require.Len(t, nv.Variants, 1)
	assert.Equal(t, v.ID, nv.Variants[0].ID)
	assert.ElementsMatch(t, []int64{italian.ID, sortTheme.ID}, nv.Variants[0].Scope)
}

func TestMerge_ReifierConflictChangesNothing(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")
	occType := topic(t, tm, "homepage")
	a := topic(t, tm, "a")
	b := topic(t, tm, "b")

	n, err := tm.CreateName(ctx, p, construct.Ref{}, "Puccini")
	require.NoError(t, err)
	o, err := tm.CreateOccurrence(ctx, p, occType, base+"puccini.html", construct.XSDAnyURI)
	require.NoError(t, err)
	require.NoError(t, tm.SetReifier(ctx, n, a))
	require.NoError(t, tm.SetReifier(ctx, o, b))

	err = tm.MergeTopic(ctx, a, b)
	var mcv *tmerr.ModelConstraintViolation
	require.ErrorAs(t, err, &mcv)

	vb, err := tm.Topic(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, o.String(), vb.Reified)
	assert.Equal(t, []string{base + "b"}, vb.SubjectIdentifiers)
}

func TestMerge_SourceReificationMovesToTarget(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "puccini")
	a := topic(t, tm, "a")
	b := topic(t, tm, "b")

	n, err := tm.CreateName(ctx, p, construct.Ref{}, "Puccini")
	require.NoError(t, err)
	require.NoError(t, tm.SetReifier(ctx, n, b))

	require.NoError(t, tm.MergeTopic(ctx, a, b))

	nv, err := tm.Name(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, a.ID, nv.Reifier)
}

func TestMerge_TypesAreUnioned(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	composer := topic(t, tm, "composer")
	person := topic(t, tm, "person")
	a := topic(t, tm, "a")
	b := topic(t, tm, "b")
	require.NoError(t, tm.AddType(ctx, a, person))
	require.NoError(t, tm.AddType(ctx, b, person))
	require.NoError(t, tm.AddType(ctx, b, composer))

	require.NoError(t, tm.MergeTopic(ctx, a, b))

	v, err := tm.Topic(ctx, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{person.ID, composer.ID}, v.Types)
}

func TestAddIdentity_Automerge(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	a := topic(t, tm, "sid1")
	b := topic(t, tm, "sid2")
	_, err := tm.CreateName(ctx, b, construct.Ref{}, "B")
	require.NoError(t, err)

	require.NoError(t, tm.AddIdentity(ctx, a, base+"sid2", construct.SubjectIdentifier))

	v, err := tm.Topic(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{base + "sid1", base + "sid2"}, v.SubjectIdentifiers)
	assert.Equal(t, []string{"B"}, nameValues(t, tm, a))
	_, err = tm.Topic(ctx, b)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)
}

func TestAddIdentity_ItemIdentifierCollidesWithSubjectIdentifier(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	a := topic(t, tm, "a")
	b := topic(t, tm, "b")

	require.NoError(t, tm.AddIdentity(ctx, b, base+"a", construct.ItemIdentifier))

	got, err := tm.ConstructByItemIdentifier(ctx, base+"a")
	require.NoError(t, err)
	assert.Equal(t, b, got)
	_, err = tm.Topic(ctx, a)
	assert.ErrorIs(t, err, tmerr.ErrNotFound, "a was merged into b")
}

func TestAddIdentity_StrictModeChangesNothing(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t, WithAutomerge(false))
	a := topic(t, tm, "sid1")
	b := topic(t, tm, "sid2")

	err := tm.AddIdentity(ctx, b, base+"sid1", construct.SubjectIdentifier)
	var ice *tmerr.IdentityConstraintError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, a, ice.Conflict.Existing)
	assert.Equal(t, b, ice.Conflict.Requested)

	vb, err := tm.Topic(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{base + "sid2"}, vb.SubjectIdentifiers)
	va, err := tm.Topic(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{base + "sid1"}, va.SubjectIdentifiers)
}

func TestAddIdentity_SubjectIdentifierOnStatementRejected(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "p")
	n, err := tm.CreateName(ctx, p, construct.Ref{}, "P")
	require.NoError(t, err)

	err = tm.AddIdentity(ctx, n, base+"n", construct.SubjectIdentifier)
	var mcv *tmerr.ModelConstraintViolation
	assert.ErrorAs(t, err, &mcv)
}

func TestAddIdentity_ItemIdentifierOfStatementNeverMerges(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "p")
	q := topic(t, tm, "q")
	n, err := tm.CreateName(ctx, p, construct.Ref{}, "P")
	require.NoError(t, err)
	require.NoError(t, tm.AddIdentity(ctx, n, base+"shared", construct.ItemIdentifier))

	err = tm.AddIdentity(ctx, q, base+"shared", construct.ItemIdentifier)
	var ice *tmerr.IdentityConstraintError
	assert.ErrorAs(t, err, &ice)
}

func TestRemoveIdentity(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	a := topic(t, tm, "a")
	require.NoError(t, tm.RemoveIdentity(ctx, a, base+"a", construct.SubjectIdentifier))

	got, err := tm.TopicBySubjectIdentifier(ctx, base+"a")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRemove_TopicInUse(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "p")
	typ := topic(t, tm, "homepage")
	o, err := tm.CreateOccurrence(ctx, p, typ, base+"p.html", construct.XSDAnyURI)
	require.NoError(t, err)

	err = tm.Remove(ctx, typ)
	var inUse *tmerr.TopicInUse
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, []string{"type"}, inUse.Uses)

	require.NoError(t, tm.Remove(ctx, o))
	require.NoError(t, tm.Remove(ctx, typ))
	_, err = tm.Topic(ctx, typ)
	assert.ErrorIs(t, err, tmerr.ErrNotFound)
}

func TestRemove_RoleRecomputesAssociation(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	x := topic(t, tm, "x")
	r1, r2 := topic(t, tm, "r1"), topic(t, tm, "r2")
	p1, p2 := topic(t, tm, "p1"), topic(t, tm, "p2")

	small, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r1, p1})
	require.NoError(t, err)
	big, err := tm.CreateAssociation(ctx, x, nil, RoleSpec{r1, p1}, RoleSpec{r2, p2})
	require.NoError(t, err)

	av, err := tm.Association(ctx, big)
	require.NoError(t, err)
	for _, role := range av.Roles {
		if role.Player == p2.ID {
			require.NoError(t, tm.Remove(ctx, construct.Role(role.ID)))
		}
	}

	assocs, err := tm.Associations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{small.ID}, assocs)
}

func TestSetReifier_TopicAlreadyReifies(t *testing.T) {
	ctx := context.Background()
	tm := newTestMap(t)
	p := topic(t, tm, "p")
	r := topic(t, tm, "r")
	n1, err := tm.CreateName(ctx, p, construct.Ref{}, "one")
	require.NoError(t, err)
	n2, err := tm.CreateName(ctx, p, construct.Ref{}, "two")
	require.NoError(t, err)

	require.NoError(t, tm.SetReifier(ctx, n1, r))
	require.NoError(t, tm.SetReifier(ctx, n1, r), "same pair is fine")

	err = tm.SetReifier(ctx, n2, r)
	var mcv *tmerr.ModelConstraintViolation
	assert.ErrorAs(t, err, &mcv)

	require.NoError(t, tm.SetReifier(ctx, n1, construct.Ref{}))
	require.NoError(t, tm.SetReifier(ctx, n2, r))
}
