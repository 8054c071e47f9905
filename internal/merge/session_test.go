package merge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/hashindex"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/identity"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/store"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

type fixture struct {
	tx   *store.Tx
	sess *Session
	tm   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tm.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tx, err := st.Begin(context.Background(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	tm, err := tx.CreateTopicMap("http://example.org/map")
	require.NoError(t, err)
	tx.Bind(tm)

	e := NewEngine(identity.New(), hashindex.New(), nil)
	return &fixture{tx: tx, sess: e.Begin(tx), tm: tm}
}

func (f *fixture) topic(t *testing.T) int64 {
	t.Helper()
	id, err := f.tx.CreateConstruct(store.Row{Kind: construct.KindTopic, Parent: f.tm})
	require.NoError(t, err)
	return id
}

func (f *fixture) name(t *testing.T, parent, typ int64, value string) int64 {
	t.Helper()
	id, err := f.tx.CreateConstruct(store.Row{
		Kind: construct.KindName, Parent: parent, Type: typ, Value: value, Datatype: construct.XSDString,
	})
	require.NoError(t, err)
	got, err := f.sess.Reconcile(id)
	require.NoError(t, err)
	return got
}

func TestReconcile_ReturnsOlderDuplicate(t *testing.T) {
	f := newFixture(t)
	p, typ := f.topic(t), f.topic(t)

	first := f.name(t, p, typ, "Tosca")
	second := f.name(t, p, typ, "Tosca")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.sess.Stats().DuplicatesRemoved)

	other := f.name(t, p, typ, "La bohème")
	assert.NotEqual(t, first, other)
}

func TestReconcile_TopicIsUntouched(t *testing.T) {
	f := newFixture(t)
	p := f.topic(t)
	got, err := f.sess.Reconcile(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestMergeTopic_RedirectChain(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.topic(t), f.topic(t), f.topic(t)

	require.NoError(t, f.sess.MergeTopic(b, c))
	require.NoError(t, f.sess.MergeTopic(a, b))
	assert.Equal(t, a, f.sess.Resolve(c))
	assert.Equal(t, 2, f.sess.Stats().TopicsMerged)

	// c resolves to a, so this is a self-merge.
	require.NoError(t, f.sess.MergeTopic(a, c))
	assert.Equal(t, 2, f.sess.Stats().TopicsMerged)

	for _, id := range []int64{b, c} {
		ok, err := f.tx.Exists(id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestMergeTopic_RejectsNonTopics(t *testing.T) {
	f := newFixture(t)
	p, typ := f.topic(t), f.topic(t)
	n := f.name(t, p, typ, "Tosca")

	err := f.sess.MergeTopic(p, n)
	var mcv *tmerr.ModelConstraintViolation
	assert.ErrorAs(t, err, &mcv)
}

func TestDescribe_VariantIncludesNameScope(t *testing.T) {
	f := newFixture(t)
	p, typ, italian, sortTheme := f.topic(t), f.topic(t), f.topic(t), f.topic(t)
	n := f.name(t, p, typ, "Puccini")
	require.NoError(t, f.tx.AddTheme(n, italian))

	v, err := f.tx.CreateConstruct(store.Row{Kind: construct.KindVariant, Parent: n, Value: "puccini"})
	require.NoError(t, err)
	require.NoError(t, f.tx.AddTheme(v, sortTheme))

	r, err := f.tx.Construct(v)
	require.NoError(t, err)
	d, err := f.sess.Describe(r)
	require.NoError(t, err)
	assert.Equal(t, []int64{italian, sortTheme}, d.Scope.Themes())
}

func TestMergeTopic_CrossReifiedTopicsConflict(t *testing.T) {
	f := newFixture(t)
	t1, t2, typ := f.topic(t), f.topic(t), f.topic(t)
	n1 := f.name(t, t1, typ, "Tosca")
	n2 := f.name(t, t2, typ, "Tosca")

	// Each name is reified by the other's owner.
	require.NoError(t, f.tx.UpdateReifier(n1, t2))
	require.NoError(t, f.tx.UpdateReifier(n2, t1))

	err := f.sess.MergeTopic(t1, t2)
	var mcv *tmerr.ModelConstraintViolation
	require.ErrorAs(t, err, &mcv, "t1 and t2 reify different names")
}

func TestMerge_ThemeRewriteKeepsVariantScopeInvariant(t *testing.T) {
	f := newFixture(t)
	p, typ, a, b := f.topic(t), f.topic(t), f.topic(t), f.topic(t)
	n := f.name(t, p, typ, "Puccini")
	require.NoError(t, f.tx.AddTheme(n, a))

	v, err := f.tx.CreateConstruct(store.Row{Kind: construct.KindVariant, Parent: n, Value: "puccini"})
	require.NoError(t, err)
	require.NoError(t, f.tx.AddTheme(v, b))
	_, err = f.sess.Reconcile(v)
	require.NoError(t, err)

	// b becomes a, so the variant's own scope collapses onto the name's.
	err = f.sess.MergeTopic(a, b)
	var mcv *tmerr.ModelConstraintViolation
	require.ErrorAs(t, err, &mcv)
	assert.Contains(t, mcv.Error(), "variant")
}

func TestMerge_ThemeRewriteKeepsVariantWithExtraTheme(t *testing.T) {
	f := newFixture(t)
	p, typ, a, b, c := f.topic(t), f.topic(t), f.topic(t), f.topic(t), f.topic(t)
	n := f.name(t, p, typ, "Puccini")
	require.NoError(t, f.tx.AddTheme(n, a))

	v, err := f.tx.CreateConstruct(store.Row{Kind: construct.KindVariant, Parent: n, Value: "puccini"})
	require.NoError(t, err)
	require.NoError(t, f.tx.AddTheme(v, b))
	require.NoError(t, f.tx.AddTheme(v, c))
	_, err = f.sess.Reconcile(v)
	require.NoError(t, err)

	require.NoError(t, f.sess.MergeTopic(a, b))
	themes, err := f.tx.Scope(v)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a, c}, themes)
}
