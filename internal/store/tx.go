package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

// Row is one record of the constructs table. Zero ids mean "none".
type Row struct {
	ID       int64
	TopicMap int64
	Kind     construct.Kind
	Parent   int64
	Type     int64
	Value    string
	Datatype string
	Player   int64
	Reifier  int64
	Hash     string
}

// Ref returns the typed reference of the row.
func (r *Row) Ref() construct.Ref {
	return construct.Ref{Kind: r.Kind, ID: r.ID}
}

// Tx is one ConstructStore transaction. It is not safe for concurrent use.
//
// Rows read through Construct are kept in a request-scoped cache that lives
// exactly as long as the transaction; every write evicts what it touches.
type Tx struct {
	tx    *sql.Tx
	ctx   context.Context
	tm    int64
	store *Store
	done  bool

	rows map[int64]*Row
}

// TopicMap returns the topic map the transaction is bound to.
func (t *Tx) TopicMap() int64 { return t.tm }

// Bind rebinds the transaction to a topic map. Used right after creating one.
func (t *Tx) Bind(tm int64) { t.tm = tm }

// Commit commits the transaction and releases the store lock.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.store.unlock()
	t.rows = nil
	if err := t.tx.Commit(); err != nil {
		return tmerr.NewStorageError("commit", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.store.unlock()
	t.rows = nil
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return tmerr.NewStorageError("rollback", err)
	}
	return nil
}

func (t *Tx) exec(op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return nil, tmerr.NewStorageError(op, err)
	}
	return res, nil
}

func (t *Tx) queryIDs(op, query string, args ...any) ([]int64, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, tmerr.NewStorageError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, tmerr.NewStorageError(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, tmerr.NewStorageError(op, err)
	}
	return ids, nil
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// ---------------------------------------------------------------------------
// Topic maps
// ---------------------------------------------------------------------------

// CreateTopicMap inserts a topic map row with the given locator.
func (t *Tx) CreateTopicMap(locator string) (int64, error) {
	res, err := t.exec("create topic map",
		"INSERT INTO constructs (topicmap_id, kind, value) VALUES (0, ?, ?)",
		construct.KindTopicMap, locator)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, tmerr.NewStorageError("create topic map", err)
	}
	if _, err := t.exec("create topic map", "UPDATE constructs SET topicmap_id = ? WHERE id = ?", id, id); err != nil {
		return 0, err
	}
	return id, nil
}

// TopicMapByLocator returns the id of the topic map with the given locator,
// or 0 if there is none.
func (t *Tx) TopicMapByLocator(locator string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT id FROM constructs WHERE kind = ? AND value = ?", construct.KindTopicMap, locator).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, tmerr.NewStorageError("lookup topic map", err)
	}
	return id, nil
}

// TopicMapLocators lists the locators of all topic maps.
func (t *Tx) TopicMapLocators() ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT value FROM constructs WHERE kind = ? ORDER BY id", construct.KindTopicMap)
	if err != nil {
		return nil, tmerr.NewStorageError("list topic maps", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, tmerr.NewStorageError("list topic maps", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Constructs
// ---------------------------------------------------------------------------

// CreateConstruct inserts r into the bound topic map and returns its id.
// r.ID and r.TopicMap are ignored.
func (t *Tx) CreateConstruct(r Row) (int64, error) {
	op := fmt.Sprintf("create %s", r.Kind)
	var value, datatype any
	if r.Kind == construct.KindName || r.Kind == construct.KindOccurrence || r.Kind == construct.KindVariant {
		value, datatype = r.Value, r.Datatype
	}
	res, err := t.exec(op, `
		INSERT INTO constructs (topicmap_id, kind, parent_id, type_id, value, datatype, player_id, reifier_id, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.tm, r.Kind, nullID(r.Parent), nullID(r.Type), value, datatype,
		nullID(r.Player), nullID(r.Reifier), nullString(r.Hash))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, tmerr.NewStorageError(op, err)
	}
	return id, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Construct reads one construct of the bound topic map. Missing rows yield
// *tmerr.ConstructNotFound.
func (t *Tx) Construct(id int64) (*Row, error) {
	if r, ok := t.rows[id]; ok {
		cp := *r
		return &cp, nil
	}

	var (
		r                            Row
		kind                         int
		parent, typ, player, reifier sql.NullInt64
		value, datatype, hash        sql.NullString
	)
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, topicmap_id, kind, parent_id, type_id, value, datatype, player_id, reifier_id, hash
		FROM constructs WHERE id = ?`, id).Scan(
		&r.ID, &r.TopicMap, &kind, &parent, &typ, &value, &datatype, &player, &reifier, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tmerr.NewConstructNotFound(construct.Ref{ID: id})
	}
	if err != nil {
		return nil, tmerr.NewStorageError("read construct", err)
	}
	if t.tm != 0 && r.TopicMap != t.tm {
		return nil, tmerr.NewConstructNotFound(construct.Ref{Kind: construct.Kind(kind), ID: id})
	}
	r.Kind = construct.Kind(kind)
	r.Parent, r.Type, r.Player, r.Reifier = parent.Int64, typ.Int64, player.Int64, reifier.Int64
	r.Value, r.Datatype, r.Hash = value.String, datatype.String, hash.String

	cp := r
	t.rows[id] = &cp
	return &r, nil
}

// Exists reports whether id names a construct of the bound topic map.
func (t *Tx) Exists(id int64) (bool, error) {
	_, err := t.Construct(id)
	if errors.Is(err, tmerr.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Children returns the ids of constructs of the given kind whose parent is parent.
func (t *Tx) Children(parent int64, kind construct.Kind) ([]int64, error) {
	return t.queryIDs("list children",
		"SELECT id FROM constructs WHERE parent_id = ? AND kind = ? ORDER BY id", parent, kind)
}

// ConstructsOfKind lists every construct of kind in the bound topic map.
func (t *Tx) ConstructsOfKind(kind construct.Kind) ([]int64, error) {
	return t.queryIDs("list constructs",
		"SELECT id FROM constructs WHERE topicmap_id = ? AND kind = ? ORDER BY id", t.tm, kind)
}

// UpdateParent moves a statement to a new parent.
func (t *Tx) UpdateParent(id, parent int64) error {
	delete(t.rows, id)
	_, err := t.exec("update parent", "UPDATE constructs SET parent_id = ? WHERE id = ?", parent, id)
	return err
}

// UpdatePlayer changes the player of a role in place.
func (t *Tx) UpdatePlayer(roleID, player int64) error {
	delete(t.rows, roleID)
	_, err := t.exec("update player", "UPDATE constructs SET player_id = ? WHERE id = ? AND kind = ?",
		player, roleID, construct.KindRole)
	return err
}

// UpdateReifier sets (or with 0 clears) the reifier of a construct.
func (t *Tx) UpdateReifier(id, reifier int64) error {
	delete(t.rows, id)
	_, err := t.exec("update reifier", "UPDATE constructs SET reifier_id = ? WHERE id = ?", nullID(reifier), id)
	return err
}

// Hash returns the persisted duplicate digest of a statement.
func (t *Tx) Hash(id int64) (string, error) {
	r, err := t.Construct(id)
	if err != nil {
		return "", err
	}
	return r.Hash, nil
}

// SetHash persists the duplicate digest of a statement.
func (t *Tx) SetHash(id int64, digest string) error {
	delete(t.rows, id)
	_, err := t.exec("set hash", "UPDATE constructs SET hash = ? WHERE id = ?", nullString(digest), id)
	return err
}

// FindByHash returns a construct other than exclude with the given parent,
// kind and digest, or 0.
func (t *Tx) FindByHash(parent int64, kind construct.Kind, digest string, exclude int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id FROM constructs WHERE parent_id = ? AND kind = ? AND hash = ? AND id != ?
		ORDER BY id LIMIT 1`, parent, kind, digest, exclude).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, tmerr.NewStorageError("find by hash", err)
	}
	return id, nil
}

// ReifiedBy returns the construct reified by topic, or the zero Ref.
func (t *Tx) ReifiedBy(topic int64) (construct.Ref, error) {
	var id int64
	var kind int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT id, kind FROM constructs WHERE reifier_id = ? ORDER BY id LIMIT 1", topic).Scan(&id, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return construct.Ref{}, nil
	}
	if err != nil {
		return construct.Ref{}, tmerr.NewStorageError("lookup reified", err)
	}
	return construct.Ref{Kind: construct.Kind(kind), ID: id}, nil
}

// DeleteConstruct removes a construct and everything it owns (names,
// occurrences, variants, roles) together with their identities, scopes and
// topic types. It returns the ids of every removed row, the construct itself
// last.
func (t *Tx) DeleteConstruct(id int64) ([]int64, error) {
	var deleted []int64
	var walk func(id int64) error
	walk = func(id int64) error {
		children, err := t.queryIDs("list owned", "SELECT id FROM constructs WHERE parent_id = ? AND id != ?", id, id)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		deleted = append(deleted, id)
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}

	placeholders := make([]string, len(deleted))
	args := make([]any, len(deleted))
	for i, d := range deleted {
		placeholders[i] = "?"
		args[i] = d
		delete(t.rows, d)
	}
	in := strings.Join(placeholders, ",")
	for _, q := range []string{
		"DELETE FROM identities WHERE construct_id IN (" + in + ")",
		"DELETE FROM scopes WHERE construct_id IN (" + in + ")",
		"DELETE FROM topic_types WHERE topic_id IN (" + in + ")",
		"DELETE FROM constructs WHERE id IN (" + in + ")",
	} {
		if _, err := t.exec("delete construct", q, args...); err != nil {
			return nil, err
		}
	}
	return deleted, nil
}

// ---------------------------------------------------------------------------
// Scope and topic types
// ---------------------------------------------------------------------------

// Scope returns the theme ids stored for a construct, ascending.
func (t *Tx) Scope(id int64) ([]int64, error) {
	return t.queryIDs("read scope", "SELECT theme_id FROM scopes WHERE construct_id = ? ORDER BY theme_id", id)
}

// AddTheme adds a theme to the scope of a construct. Adding an existing theme is a no-op.
func (t *Tx) AddTheme(id, theme int64) error {
	_, err := t.exec("add theme",
		"INSERT INTO scopes (construct_id, theme_id) VALUES (?, ?) ON CONFLICT DO NOTHING", id, theme)
	return err
}

// TopicTypes returns the types of a topic, ascending.
func (t *Tx) TopicTypes(topic int64) ([]int64, error) {
	return t.queryIDs("read topic types", "SELECT type_id FROM topic_types WHERE topic_id = ? ORDER BY type_id", topic)
}

// AddTopicType adds typ to the types of topic. Adding an existing type is a no-op.
func (t *Tx) AddTopicType(topic, typ int64) error {
	_, err := t.exec("add topic type",
		"INSERT INTO topic_types (topic_id, type_id) VALUES (?, ?) ON CONFLICT DO NOTHING", topic, typ)
	return err
}

// RemoveTopicType removes typ from the types of topic.
func (t *Tx) RemoveTopicType(topic, typ int64) error {
	_, err := t.exec("remove topic type", "DELETE FROM topic_types WHERE topic_id = ? AND type_id = ?", topic, typ)
	return err
}

// RolesPlayed returns the roles played by topic.
func (t *Tx) RolesPlayed(topic int64) ([]int64, error) {
	return t.queryIDs("read roles played",
		"SELECT id FROM constructs WHERE player_id = ? AND kind = ? ORDER BY id", topic, construct.KindRole)
}
