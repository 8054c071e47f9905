package construct

import "fmt"

// IdentityKind names one of the three TMDM identity mechanisms.
type IdentityKind uint8

const (
	SubjectIdentifier IdentityKind = iota + 1
	SubjectLocator
	ItemIdentifier
)

func (k IdentityKind) String() string {
	switch k {
	case SubjectIdentifier:
		return "subject-identifier"
	case SubjectLocator:
		return "subject-locator"
	case ItemIdentifier:
		return "item-identifier"
	}
	return fmt.Sprintf("identity(%d)", uint8(k))
}

// Prefix returns the JTM topic reference prefix for the kind ("si", "sl", "ii").
func (k IdentityKind) Prefix() string {
	switch k {
	case SubjectIdentifier:
		return "si"
	case SubjectLocator:
		return "sl"
	case ItemIdentifier:
		return "ii"
	}
	return ""
}

// ParseIdentityKind accepts a prefix ("si") or a full name ("subject-identifier").
func ParseIdentityKind(s string) (IdentityKind, error) {
	for k := SubjectIdentifier; k <= ItemIdentifier; k++ {
		if s == k.Prefix() || s == k.String() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown identity kind %q", s)
}

// Valid reports whether k is one of the defined identity kinds.
func (k IdentityKind) Valid() bool {
	return k >= SubjectIdentifier && k <= ItemIdentifier
}

// Identities is the identity set of one construct. Only topics carry
// subject identifiers and subject locators.
type Identities struct {
	SubjectIdentifiers []string
	SubjectLocators    []string
	ItemIdentifiers    []string
}

// Len returns the total number of identity values.
func (ids Identities) Len() int {
	return len(ids.SubjectIdentifiers) + len(ids.SubjectLocators) + len(ids.ItemIdentifiers)
}

// Each calls fn for every identity value in sid, slo, iid order.
func (ids Identities) Each(fn func(kind IdentityKind, value string) error) error {
	for _, v := range ids.SubjectIdentifiers {
		if err := fn(SubjectIdentifier, v); err != nil {
			return err
		}
	}
	for _, v := range ids.SubjectLocators {
		if err := fn(SubjectLocator, v); err != nil {
			return err
		}
	}
	for _, v := range ids.ItemIdentifiers {
		if err := fn(ItemIdentifier, v); err != nil {
			return err
		}
	}
	return nil
}
