package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentityKind classifies a topic reference identifier.
type IdentityKind int

const (
	IdentityInvalid IdentityKind = iota
	// IdentityExisting is a bare integer: the database id of an existing topic.
	IdentityExisting
	// IdentityNew is N or N<k>: a topic that does not exist yet.
	IdentityNew
	// IdentityCloned is C<id>: a new topic cloned from database id <id>.
	IdentityCloned
	// IdentityDuplicate is X<k>: the same topic as the one tagged N<k>.
	IdentityDuplicate
	// IdentityDuplicateOfCloned is XC<k>: the same topic as the one tagged C<k>.
	IdentityDuplicateOfCloned
)

func (k IdentityKind) String() string {
	switch k {
	case IdentityExisting:
		return "existing"
	case IdentityNew:
		return "new"
	case IdentityCloned:
		return "cloned"
	case IdentityDuplicate:
		return "duplicate"
	case IdentityDuplicateOfCloned:
		return "duplicate-of-cloned"
	default:
		return "invalid"
	}
}

// Identity is the typed form of a topic identifier. It is derived once, at the
// parser boundary, and never re-derived from strings downstream.
type Identity struct {
	Kind IdentityKind
	// Raw is the identifier exactly as written.
	Raw string
	// Number is the database id (existing), the source id (cloned), the
	// disambiguator (new with suffix) or the referenced family number (duplicates).
	Number int64
	// HasNumber is false only for a bare N.
	HasNumber bool
}

// ParseIdentity classifies raw using the case-insensitive prefix grammar:
// <int>, N, N<int>, C<int>, X<int>, XC<int>.
func ParseIdentity(raw string) Identity {
	id := Identity{Raw: raw}
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return id
	}

	var prefix string
	switch {
	case strings.HasPrefix(s, "XC"):
		prefix, id.Kind = "XC", IdentityDuplicateOfCloned
	case s[0] == 'X':
		prefix, id.Kind = "X", IdentityDuplicate
	case s[0] == 'C':
		prefix, id.Kind = "C", IdentityCloned
	case s[0] == 'N':
		prefix, id.Kind = "N", IdentityNew
	default:
		id.Kind = IdentityExisting
	}

	digits := s[len(prefix):]
	if digits == "" {
		if id.Kind == IdentityNew {
			return id
		}
		return Identity{Raw: raw}
	}
	n, ok := parseUnsigned(digits)
	if !ok {
		return Identity{Raw: raw}
	}
	id.Number = n
	id.HasNumber = true
	return id
}

func parseUnsigned(s string) (int64, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Valid reports whether the identifier matched the grammar.
func (i Identity) Valid() bool { return i.Kind != IdentityInvalid }

// Placeholder reports whether the identifier must be replaced once resolved.
func (i Identity) Placeholder() bool {
	return i.Kind != IdentityExisting && i.Kind != IdentityInvalid
}

// Tag returns the canonical identity tag: upper-case prefix plus number.
func (i Identity) Tag() string {
	switch i.Kind {
	case IdentityExisting:
		return strconv.FormatInt(i.Number, 10)
	case IdentityNew:
		if !i.HasNumber {
			return "N"
		}
		return fmt.Sprintf("N%d", i.Number)
	case IdentityCloned:
		return fmt.Sprintf("C%d", i.Number)
	case IdentityDuplicate:
		return fmt.Sprintf("X%d", i.Number)
	case IdentityDuplicateOfCloned:
		return fmt.Sprintf("XC%d", i.Number)
	default:
		return i.Raw
	}
}

// FamilyTag returns the tag of the topic a duplicate copies its id from:
// N<k> for X<k>, C<k> for XC<k>. Other kinds return their own tag.
func (i Identity) FamilyTag() string {
	switch i.Kind {
	case IdentityDuplicate:
		return fmt.Sprintf("N%d", i.Number)
	case IdentityDuplicateOfCloned:
		return fmt.Sprintf("C%d", i.Number)
	default:
		return i.Tag()
	}
}
