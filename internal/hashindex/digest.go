// Package hashindex computes the duplicate digests of statements and keeps a
// cache of (parent, kind, digest) → construct id over the persisted hash
// column. Two sibling statements with the same digest are duplicates.
package hashindex

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/scope"
)

// RolePair is the (type, player) signature of one role.
type RolePair struct {
	Type   int64
	Player int64
}

// Descriptor carries everything a statement's identity depends on. The
// parent is not part of the digest; it is part of the index key.
type Descriptor struct {
	Kind     construct.Kind
	Type     int64
	Value    string
	Datatype string
	Scope    scope.Set
	// Roles is only used for associations.
	Roles []RolePair
	// Player is only used for roles.
	Player int64
}

// Digest returns the hex SHA-256 of the canonical form of d. Scope themes
// and role pairs are sorted so that insertion order never matters, and
// repeated role pairs collapse.
func Digest(d Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(d.Type, 10))

	switch d.Kind {
	case construct.KindName, construct.KindOccurrence, construct.KindVariant:
		value, datatype := CanonicalValue(d.Value, d.Datatype)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(value)))
		b.WriteByte(':')
		b.WriteString(value)
		b.WriteByte('|')
		b.WriteString(datatype)
	case construct.KindRole:
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(d.Player, 10))
	case construct.KindAssociation:
		b.WriteByte('|')
		for i, p := range sortedPairs(d.Roles) {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatInt(p.Type, 10))
			b.WriteByte(':')
			b.WriteString(strconv.FormatInt(p.Player, 10))
		}
	}

	if d.Kind != construct.KindRole {
		b.WriteByte('|')
		b.WriteString(d.Scope.Key())
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func sortedPairs(in []RolePair) []RolePair {
	pairs := make([]RolePair, len(in))
	copy(pairs, in)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Type != pairs[j].Type {
			return pairs[i].Type < pairs[j].Type
		}
		return pairs[i].Player < pairs[j].Player
	})
	out := pairs[:0]
	for i, p := range pairs {
		if i > 0 && p == pairs[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CanonicalValue normalises a literal so that equal values stored in
// different lexical forms hash (and are stored) identically. Strings are NFC
// normalised and trimmed; xsd integers, decimals and booleans get their
// canonical lexical form. An empty datatype means xsd:string.
func CanonicalValue(value, datatype string) (string, string) {
	if datatype == "" {
		datatype = construct.XSDString
	}
	value = strings.TrimSpace(norm.NFC.String(value))

	switch datatype {
	case construct.XSDInteger, construct.XSDInt, construct.XSDLong:
		if n, ok := new(big.Int).SetString(strings.TrimPrefix(value, "+"), 10); ok {
			value = n.String()
		}
	case construct.XSDDecimal:
		value = canonicalDecimal(value)
	case construct.XSDBoolean:
		switch value {
		case "1", "true":
			value = "true"
		case "0", "false":
			value = "false"
		}
	}
	return value, datatype
}

var decimalLexical = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// canonicalDecimal rewrites an xsd:decimal lexical form without leading or
// trailing zeros, always keeping one digit on each side of the point
// ("1.0", "-0.5"). Digits are never dropped, so precision is the input's.
// Anything that is not a decimal lexical form is returned unchanged.
func canonicalDecimal(s string) string {
	if !decimalLexical.MatchString(s) {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	intPart, frac, _ := strings.Cut(strings.TrimLeft(s, "+-"), ".")
	intPart = strings.TrimLeft(intPart, "0")
	frac = strings.TrimRight(frac, "0")
	if intPart == "" {
		intPart = "0"
	}
	if frac == "" {
		frac = "0"
	}
	out := intPart + "." + frac
	if neg && out != "0.0" {
		out = "-" + out
	}
	return out
}
