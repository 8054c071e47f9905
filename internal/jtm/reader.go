// Package jtm reads JTM 1.0 (JSON Topic Maps) documents into a topic map.
//
// The reader streams a parsed document through a Builder one statement at a
// time, so every identity collision inside the document (or against what the
// topic map already holds) goes through the regular merge path.
package jtm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/stribert/striberts-quaaxtm-sub002/api"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/logger"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/topicmap"
)

// Builder receives the statements of a document. *topicmap.TopicMap satisfies it.
type Builder interface {
	ID() int64
	CreateTopic(ctx context.Context) (construct.Ref, error)
	CreateOrGetTopicByIdentity(ctx context.Context, value string, kind construct.IdentityKind) (construct.Ref, error)
	AddIdentity(ctx context.Context, ref construct.Ref, value string, kind construct.IdentityKind) error
	AddType(ctx context.Context, topic, typ construct.Ref) error
	CreateName(ctx context.Context, topic, typ construct.Ref, value string, themes ...construct.Ref) (construct.Ref, error)
	CreateVariant(ctx context.Context, name construct.Ref, value, datatype string, themes ...construct.Ref) (construct.Ref, error)
	CreateOccurrence(ctx context.Context, topic, typ construct.Ref, value, datatype string, themes ...construct.Ref) (construct.Ref, error)
	CreateAssociation(ctx context.Context, typ construct.Ref, themes []construct.Ref, roles ...topicmap.RoleSpec) (construct.Ref, error)
	Association(ctx context.Context, ref construct.Ref) (*api.AssociationView, error)
	SetReifier(ctx context.Context, ref, reifier construct.Ref) error
}

var _ Builder = (*topicmap.TopicMap)(nil)

var (
	topicsPath       = jp.MustParseString("$.topics[*]")
	associationsPath = jp.MustParseString("$.associations[*]")
)

// Result counts what a Read produced. Statements that turned out to be
// duplicates are still counted.
type Result struct {
	Topics       int
	Names        int
	Variants     int
	Occurrences  int
	Associations int
}

// Reader reads JTM documents. Base, when set, resolves relative item
// identifiers ("#puccini").
type Reader struct {
	Base string
	Log  *zap.Logger
}

// NewReader returns a reader resolving relative references against base.
func NewReader(base string, log *zap.Logger) *Reader {
	return &Reader{Base: base, Log: logger.OrNop(log)}
}

// ReadFile reads the document at path on fsys.
func (r *Reader) ReadFile(ctx context.Context, fsys billy.Filesystem, path string, b Builder) (Result, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	res, err := r.Read(ctx, data, b)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// Read parses data and feeds it to b.
func (r *Reader) Read(ctx context.Context, data []byte, b Builder) (Result, error) {
	var res Result
	doc, err := oj.Parse(data)
	if err != nil {
		return res, fmt.Errorf("invalid JSON: %w", err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return res, fmt.Errorf("JTM document must be an object")
	}
	if v := str(root, "version"); v != "" && v != "1.0" {
		return res, fmt.Errorf("unsupported JTM version %q", v)
	}
	if t := str(root, "item_type"); t != "topicmap" {
		return res, fmt.Errorf("unsupported item_type %q, expected \"topicmap\"", t)
	}

	rd := &run{r: r, b: b, ctx: ctx, res: &res}

	for _, node := range topicsPath.Get(root) {
		t, ok := node.(map[string]any)
		if !ok {
			return res, fmt.Errorf("topic must be an object")
		}
		if err := rd.topic(t); err != nil {
			return res, err
		}
	}
	for _, node := range associationsPath.Get(root) {
		a, ok := node.(map[string]any)
		if !ok {
			return res, fmt.Errorf("association must be an object")
		}
		if err := rd.association(a); err != nil {
			return res, err
		}
	}
	if err := rd.reifiable(construct.TopicMap(b.ID()), root); err != nil {
		return res, err
	}

	r.Log.Info("read JTM document",
		zap.Int("topics", res.Topics),
		zap.Int("names", res.Names),
		zap.Int("occurrences", res.Occurrences),
		zap.Int("associations", res.Associations))
	return res, nil
}

// run is the state of one Read.
type run struct {
	r   *Reader
	b   Builder
	ctx context.Context
	res *Result
}

func (rd *run) resolve(iri string) string {
	if rd.r.Base == "" {
		return iri
	}
	base, err := url.Parse(rd.r.Base)
	if err != nil {
		return iri
	}
	ref, err := url.Parse(iri)
	if err != nil {
		return iri
	}
	return base.ResolveReference(ref).String()
}

// topicRef resolves a JTM topic reference ("si:…", "sl:…", "ii:…").
func (rd *run) topicRef(s string) (construct.Ref, error) {
	prefix, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return construct.Ref{}, fmt.Errorf("invalid topic reference %q", s)
	}
	kind, err := construct.ParseIdentityKind(prefix)
	if err != nil || prefix != kind.Prefix() {
		return construct.Ref{}, fmt.Errorf("invalid topic reference %q", s)
	}
	if kind == construct.ItemIdentifier {
		value = rd.resolve(value)
	}
	return rd.b.CreateOrGetTopicByIdentity(rd.ctx, value, kind)
}

func (rd *run) topicRefs(m map[string]any, key string) ([]construct.Ref, error) {
	var refs []construct.Ref
	for _, s := range strs(m, key) {
		ref, err := rd.topicRef(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (rd *run) optionalTopicRef(m map[string]any, key string) (construct.Ref, error) {
	s := str(m, key)
	if s == "" {
		return construct.Ref{}, nil
	}
	return rd.topicRef(s)
}

// reifiable attaches item identifiers and the reifier of m to ref.
func (rd *run) reifiable(ref construct.Ref, m map[string]any) error {
	for _, iid := range strs(m, "item_identifiers") {
		if err := rd.b.AddIdentity(rd.ctx, ref, rd.resolve(iid), construct.ItemIdentifier); err != nil {
			return err
		}
	}
	reifier, err := rd.optionalTopicRef(m, "reifier")
	if err != nil || reifier.IsZero() {
		return err
	}
	return rd.b.SetReifier(rd.ctx, ref, reifier)
}

func (rd *run) topic(m map[string]any) error {
	type ident struct {
		kind  construct.IdentityKind
		value string
	}
	var idents []ident
	for _, v := range strs(m, "subject_identifiers") {
		idents = append(idents, ident{construct.SubjectIdentifier, v})
	}
	for _, v := range strs(m, "subject_locators") {
		idents = append(idents, ident{construct.SubjectLocator, v})
	}
	for _, v := range strs(m, "item_identifiers") {
		idents = append(idents, ident{construct.ItemIdentifier, rd.resolve(v)})
	}

	var (
		ref construct.Ref
		err error
	)
	if len(idents) == 0 {
		ref, err = rd.b.CreateTopic(rd.ctx)
	} else {
		ref, err = rd.b.CreateOrGetTopicByIdentity(rd.ctx, idents[0].value, idents[0].kind)
	}
	if err != nil {
		return err
	}
	for _, id := range idents[min(1, len(idents)):] {
		if err := rd.b.AddIdentity(rd.ctx, ref, id.value, id.kind); err != nil {
			return err
		}
	}
	rd.res.Topics++

	types, err := rd.topicRefs(m, "instance_of")
	if err != nil {
		return err
	}
	for _, typ := range types {
		if err := rd.b.AddType(rd.ctx, ref, typ); err != nil {
			return err
		}
	}

	for _, n := range objects(m, "names") {
		if err := rd.name(ref, n); err != nil {
			return err
		}
	}
	for _, o := range objects(m, "occurrences") {
		if err := rd.occurrence(ref, o); err != nil {
			return err
		}
	}
	return nil
}

func (rd *run) name(topic construct.Ref, m map[string]any) error {
	typ, err := rd.optionalTopicRef(m, "type")
	if err != nil {
		return err
	}
	themes, err := rd.topicRefs(m, "scope")
	if err != nil {
		return err
	}
	name, err := rd.b.CreateName(rd.ctx, topic, typ, str(m, "value"), themes...)
	if err != nil {
		return err
	}
	rd.res.Names++
	if err := rd.reifiable(name, m); err != nil {
		return err
	}

	for _, v := range objects(m, "variants") {
		vthemes, err := rd.topicRefs(v, "scope")
		if err != nil {
			return err
		}
		variant, err := rd.b.CreateVariant(rd.ctx, name, str(v, "value"), str(v, "datatype"), vthemes...)
		if err != nil {
			return err
		}
		rd.res.Variants++
		if err := rd.reifiable(variant, v); err != nil {
			return err
		}
	}
	return nil
}

func (rd *run) occurrence(topic construct.Ref, m map[string]any) error {
	typ, err := rd.optionalTopicRef(m, "type")
	if err != nil {
		return err
	}
	if typ.IsZero() {
		return fmt.Errorf("occurrence of %s has no type", topic)
	}
	themes, err := rd.topicRefs(m, "scope")
	if err != nil {
		return err
	}
	occ, err := rd.b.CreateOccurrence(rd.ctx, topic, typ, str(m, "value"), str(m, "datatype"), themes...)
	if err != nil {
		return err
	}
	rd.res.Occurrences++
	return rd.reifiable(occ, m)
}

func (rd *run) association(m map[string]any) error {
	typ, err := rd.optionalTopicRef(m, "type")
	if err != nil {
		return err
	}
	if typ.IsZero() {
		return fmt.Errorf("association has no type")
	}
	themes, err := rd.topicRefs(m, "scope")
	if err != nil {
		return err
	}

	roleNodes := objects(m, "roles")
	specs := make([]topicmap.RoleSpec, 0, len(roleNodes))
	for _, rn := range roleNodes {
		rt, err := rd.optionalTopicRef(rn, "type")
		if err != nil {
			return err
		}
		player, err := rd.optionalTopicRef(rn, "player")
		if err != nil {
			return err
		}
		if rt.IsZero() || player.IsZero() {
			return fmt.Errorf("role needs a type and a player")
		}
		specs = append(specs, topicmap.RoleSpec{Type: rt, Player: player})
	}

	assoc, err := rd.b.CreateAssociation(rd.ctx, typ, themes, specs...)
	if err != nil {
		return err
	}
	rd.res.Associations++
	if err := rd.reifiable(assoc, m); err != nil {
		return err
	}

	// Roles carry their own item identifiers and reifiers; find the stored
	// role for each (type, player) pair.
	var view *api.AssociationView
	for i, rn := range roleNodes {
		if len(strs(rn, "item_identifiers")) == 0 && str(rn, "reifier") == "" {
			continue
		}
		if view == nil {
			if view, err = rd.b.Association(rd.ctx, assoc); err != nil {
				return err
			}
		}
		for _, role := range view.Roles {
			if role.Type == specs[i].Type.ID && role.Player == specs[i].Player.ID {
				if err := rd.reifiable(construct.Role(role.ID), rn); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strs(m map[string]any, key string) []string {
	list, _ := m[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func objects(m map[string]any, key string) []map[string]any {
	list, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if o, ok := v.(map[string]any); ok {
			out = append(out, o)
		}
	}
	return out
}
