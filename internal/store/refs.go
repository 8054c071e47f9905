package store

import (
	"database/sql"
	"errors"
	"sort"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

// Identities returns every locator bound to id, grouped by kind and sorted.
func (t *Tx) Identities(id int64) (construct.Identities, error) {
	var ids construct.Identities
	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT kind, value FROM identities WHERE construct_id = ? ORDER BY kind, value", id)
	if err != nil {
		return ids, tmerr.NewStorageError("read identities", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind int
		var value string
		if err := rows.Scan(&kind, &value); err != nil {
			return ids, tmerr.NewStorageError("read identities", err)
		}
		switch construct.IdentityKind(kind) {
		case construct.SubjectIdentifier:
			ids.SubjectIdentifiers = append(ids.SubjectIdentifiers, value)
		case construct.SubjectLocator:
			ids.SubjectLocators = append(ids.SubjectLocators, value)
		case construct.ItemIdentifier:
			ids.ItemIdentifiers = append(ids.ItemIdentifiers, value)
		}
	}
	if err := rows.Err(); err != nil {
		return ids, tmerr.NewStorageError("read identities", err)
	}
	return ids, nil
}

// IdentityOwner returns the construct that value is bound to as kind in the
// bound topic map, or the zero Ref.
func (t *Tx) IdentityOwner(kind construct.IdentityKind, value string) (construct.Ref, error) {
	var id int64
	var ck int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT c.id, c.kind FROM identities i JOIN constructs c ON c.id = i.construct_id
		WHERE i.topicmap_id = ? AND i.kind = ? AND i.value = ?`, t.tm, kind, value).Scan(&id, &ck)
	if errors.Is(err, sql.ErrNoRows) {
		return construct.Ref{}, nil
	}
	if err != nil {
		return construct.Ref{}, tmerr.NewStorageError("lookup identity", err)
	}
	return construct.Ref{Kind: construct.Kind(ck), ID: id}, nil
}

// BindIdentity records value as an identity of ref. The caller is expected to
// have checked for conflicts; a duplicate key surfaces as a StorageError.
func (t *Tx) BindIdentity(kind construct.IdentityKind, value string, ref construct.Ref) error {
	_, err := t.exec("bind identity",
		"INSERT INTO identities (topicmap_id, kind, value, construct_id) VALUES (?, ?, ?, ?)",
		t.tm, kind, value, ref.ID)
	return err
}

// UnbindIdentity removes value from the identities of the bound topic map.
func (t *Tx) UnbindIdentity(kind construct.IdentityKind, value string) error {
	_, err := t.exec("unbind identity",
		"DELETE FROM identities WHERE topicmap_id = ? AND kind = ? AND value = ?", t.tm, kind, value)
	return err
}

// MoveIdentities rebinds every identity of from to to.
func (t *Tx) MoveIdentities(from, to int64) error {
	_, err := t.exec("move identities",
		"UPDATE identities SET construct_id = ? WHERE construct_id = ?", to, from)
	return err
}

// ReferencesTo returns the statements that mention topic as their type, as a
// scope theme, or (for roles) as their player. Topic types and reification
// are not included; see TopicsTypedBy and ReifiedBy.
func (t *Tx) ReferencesTo(topic int64) ([]int64, error) {
	ids, err := t.queryIDs("read references", `
		SELECT id FROM constructs WHERE topicmap_id = ? AND kind != ? AND (type_id = ? OR player_id = ?)
		UNION
		SELECT construct_id FROM scopes WHERE theme_id = ?`,
		t.tm, construct.KindTopic, topic, topic, topic)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// TopicsTypedBy returns the topics that have typ among their types.
func (t *Tx) TopicsTypedBy(typ int64) ([]int64, error) {
	return t.queryIDs("read typed topics", "SELECT topic_id FROM topic_types WHERE type_id = ? ORDER BY topic_id", typ)
}

// ReplaceTopicRefs rewrites every reference to old (statement type, scope
// theme, role player, topic type) so that it points to repl. Theme and topic
// type sets are deduplicated.
func (t *Tx) ReplaceTopicRefs(old, repl int64) error {
	clear(t.rows)
	for _, q := range []struct {
		op    string
		query string
	}{
		{"replace type", "UPDATE constructs SET type_id = ?2 WHERE type_id = ?1"},
		{"replace player", "UPDATE constructs SET player_id = ?2 WHERE player_id = ?1"},
		{"replace theme", "INSERT OR IGNORE INTO scopes (construct_id, theme_id) SELECT construct_id, ?2 FROM scopes WHERE theme_id = ?1"},
		{"replace theme", "DELETE FROM scopes WHERE theme_id = ?1 AND ?1 != ?2"},
		{"replace topic type", "INSERT OR IGNORE INTO topic_types (topic_id, type_id) SELECT topic_id, ?2 FROM topic_types WHERE type_id = ?1"},
		{"replace topic type", "DELETE FROM topic_types WHERE type_id = ?1 AND ?1 != ?2"},
	} {
		if _, err := t.exec(q.op, q.query, old, repl); err != nil {
			return err
		}
	}
	return nil
}

// TopicUses lists the roles topic plays in the bound topic map: "type",
// "theme", "player" and "reifier". An empty result means topic may be removed.
func (t *Tx) TopicUses(topic int64) ([]string, error) {
	checks := []struct {
		use   string
		query string
	}{
		{"type", "SELECT EXISTS (SELECT 1 FROM constructs WHERE type_id = ?1) OR EXISTS (SELECT 1 FROM topic_types WHERE type_id = ?1)"},
		{"theme", "SELECT EXISTS (SELECT 1 FROM scopes WHERE theme_id = ?)"},
		{"player", "SELECT EXISTS (SELECT 1 FROM constructs WHERE player_id = ?)"},
		{"reifier", "SELECT EXISTS (SELECT 1 FROM constructs WHERE reifier_id = ?)"},
	}
	var uses []string
	for _, c := range checks {
		var used bool
		if err := t.tx.QueryRowContext(t.ctx, c.query, topic).Scan(&used); err != nil {
			return nil, tmerr.NewStorageError("check topic use", err)
		}
		if used {
			uses = append(uses, c.use)
		}
	}
	return uses, nil
}
