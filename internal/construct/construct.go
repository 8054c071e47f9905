// Package construct defines the kinds and references shared by every layer of
// the topic map engine. A Ref is the polymorphic handle used wherever a
// construct of any kind may appear (reifier targets, identity owners, merge
// redirects); dispatch is done by switching on Ref.Kind.
package construct

import "fmt"

// Kind identifies the TMDM construct type of a row.
type Kind uint8

const (
	KindTopicMap Kind = iota + 1
	KindTopic
	KindAssociation
	KindRole
	KindName
	KindOccurrence
	KindVariant
)

var kindNames = map[Kind]string{
	KindTopicMap:    "topicmap",
	KindTopic:       "topic",
	KindAssociation: "association",
	KindRole:        "role",
	KindName:        "name",
	KindOccurrence:  "occurrence",
	KindVariant:     "variant",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsStatement reports whether constructs of this kind take part in duplicate
// suppression. Topics and topic maps are identified by identity, not content.
func (k Kind) IsStatement() bool {
	switch k {
	case KindAssociation, KindRole, KindName, KindOccurrence, KindVariant:
		return true
	}
	return false
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown construct kind %q", s)
}

// Ref is a typed reference to a stored construct.
type Ref struct {
	Kind Kind
	ID   int64
}

// IsZero reports whether r references nothing.
func (r Ref) IsZero() bool { return r.ID == 0 }

func (r Ref) String() string {
	if r.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

func TopicMap(id int64) Ref    { return Ref{Kind: KindTopicMap, ID: id} }
func Topic(id int64) Ref       { return Ref{Kind: KindTopic, ID: id} }
func Association(id int64) Ref { return Ref{Kind: KindAssociation, ID: id} }
func Role(id int64) Ref        { return Ref{Kind: KindRole, ID: id} }
func Name(id int64) Ref        { return Ref{Kind: KindName, ID: id} }
func Occurrence(id int64) Ref  { return Ref{Kind: KindOccurrence, ID: id} }
func Variant(id int64) Ref     { return Ref{Kind: KindVariant, ID: id} }
