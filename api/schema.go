package api

// TopicView is the read model of a topic with everything it owns.
type TopicView struct {
	// ID of the topic within its topic map.
	ID int64 `json:"id"`
	// SubjectIdentifiers, SubjectLocators and ItemIdentifiers are sorted.
	SubjectIdentifiers []string `json:"subject_identifiers,omitempty"`
	SubjectLocators    []string `json:"subject_locators,omitempty"`
	ItemIdentifiers    []string `json:"item_identifiers,omitempty"`
	// Types are topic ids.
	Types []int64 `json:"types,omitempty"`
	// Reified is the construct this topic reifies ("association:4"), if any.
	Reified     string           `json:"reified,omitempty"`
	Names       []NameView       `json:"names,omitempty"`
	Occurrences []OccurrenceView `json:"occurrences,omitempty"`
	// RolesPlayed are role ids.
	RolesPlayed []int64 `json:"roles_played,omitempty"`
}

// NameView is the read model of a topic name.
type NameView struct {
	ID              int64         `json:"id"`
	Type            int64         `json:"type"`
	Value           string        `json:"value"`
	Scope           []int64       `json:"scope,omitempty"`
	Reifier         int64         `json:"reifier,omitempty"`
	ItemIdentifiers []string      `json:"item_identifiers,omitempty"`
	Variants        []VariantView `json:"variants,omitempty"`
}

// VariantView is the read model of a variant. Scope is the effective scope:
// the variant's own themes plus those of its name.
type VariantView struct {
	ID              int64    `json:"id"`
	Value           string   `json:"value"`
	Datatype        string   `json:"datatype"`
	Scope           []int64  `json:"scope"`
	Reifier         int64    `json:"reifier,omitempty"`
	ItemIdentifiers []string `json:"item_identifiers,omitempty"`
}

// OccurrenceView is the read model of an occurrence.
type OccurrenceView struct {
	ID              int64    `json:"id"`
	Type            int64    `json:"type"`
	Value           string   `json:"value"`
	Datatype        string   `json:"datatype"`
	Scope           []int64  `json:"scope,omitempty"`
	Reifier         int64    `json:"reifier,omitempty"`
	ItemIdentifiers []string `json:"item_identifiers,omitempty"`
}

// AssociationView is the read model of an association and its roles.
type AssociationView struct {
	ID              int64      `json:"id"`
	Type            int64      `json:"type"`
	Scope           []int64    `json:"scope,omitempty"`
	Reifier         int64      `json:"reifier,omitempty"`
	ItemIdentifiers []string   `json:"item_identifiers,omitempty"`
	Roles           []RoleView `json:"roles"`
}

// RoleView is the read model of an association role.
type RoleView struct {
	ID              int64    `json:"id"`
	Type            int64    `json:"type"`
	Player          int64    `json:"player"`
	Reifier         int64    `json:"reifier,omitempty"`
	ItemIdentifiers []string `json:"item_identifiers,omitempty"`
}
