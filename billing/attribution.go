/*
attribution.go - Deterministic mapping of calendar titles to practitioners

PURPOSE:
  Bookings carry the practitioner as a slash-delimited token in the title
  ("Patient A /eli/"). Resolve extracts the first such token, normalizes it
  (lower-case, diacritics stripped, trimmed) and looks it up in an alias
  table built from the practitioner registry.

RULES:
  - Explicit aliases take precedence over the first-name fallback.
  - Only the first slash-delimited token in a title is honored.
  - Two practitioners claiming the same alias is a configuration error
    detected when the table is built, whether the claim is explicit or a
    first-name fallback.
  - No match leaves the session unassigned; it is still recorded so
    operators can fix orphan bookings.
*/
package billing

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AliasTable maps normalized calendar aliases to practitioners. It is
// immutable after construction; build a fresh one per sync run so alias
// edits never race an in-flight run.
type AliasTable struct {
	explicit map[string]PractitionerID
	fallback map[string]PractitionerID
}

// NewAliasTable builds the lookup table from the practitioner registry.
// Returns an AliasCollisionError when one alias is claimed twice within the
// same tier. A fallback token shadowed by another practitioner's explicit
// alias is allowed: explicit wins at lookup time.
func NewAliasTable(practitioners []Practitioner) (*AliasTable, error) {
	t := &AliasTable{
		explicit: make(map[string]PractitionerID),
		fallback: make(map[string]PractitionerID),
	}

	for _, p := range practitioners {
		if len(p.Aliases) > 0 {
			for _, a := range p.Aliases {
				alias := NormalizeAlias(a)
				if alias == "" {
					continue
				}
				if owner, ok := t.explicit[alias]; ok && owner != p.ID {
					return nil, &AliasCollisionError{Alias: alias, First: owner, Second: p.ID}
				}
				t.explicit[alias] = p.ID
			}
			continue
		}

		alias := firstNameToken(p.Name)
		if alias == "" {
			continue
		}
		if owner, ok := t.fallback[alias]; ok && owner != p.ID {
			return nil, &AliasCollisionError{Alias: alias, First: owner, Second: p.ID}
		}
		t.fallback[alias] = p.ID
	}

	return t, nil
}

// Resolve maps a booking title to a practitioner. The second return value
// is false when the title has no slash-delimited token or the token matches
// no practitioner.
func (t *AliasTable) Resolve(title string) (PractitionerID, bool) {
	token, ok := slashToken(title)
	if !ok {
		return "", false
	}
	alias := NormalizeAlias(token)
	if alias == "" {
		return "", false
	}
	if id, ok := t.explicit[alias]; ok {
		return id, true
	}
	if id, ok := t.fallback[alias]; ok {
		return id, true
	}
	return "", false
}

// slashToken extracts the first /token/ from a title. Later tokens are a
// documented ambiguity and are ignored.
func slashToken(title string) (string, bool) {
	open := strings.IndexByte(title, '/')
	if open < 0 {
		return "", false
	}
	rest := title[open+1:]
	close := strings.IndexByte(rest, '/')
	if close < 0 {
		return "", false
	}
	return rest[:close], true
}

// NormalizeAlias lower-cases, trims and strips combining marks so that
// "Éli " and "eli" compare equal.
func NormalizeAlias(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	stripped, _, err := transform.String(transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), s)
	if err != nil {
		return s
	}
	return stripped
}

func firstNameToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return NormalizeAlias(fields[0])
}
