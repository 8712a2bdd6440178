package methodcache

import (
	"strings"
	"unicode"

	"github.com/tmthrgd/go-hex"
)

// NamespaceSeparator ends the cache name segment of a store key.
const NamespaceSeparator = "::"

// namespaceFor builds the store key prefix of a named cache:
// prefix + normalized name + "::". The unnamed cache only carries prefix.
func namespaceFor(prefix, name string) string {
	if name == "" {
		return prefix
	}
	return prefix + name + NamespaceSeparator
}

// normalizeName converts a cache name to snake_case and strips punctuation,
// so "UserProfiles", "user-profiles" and "user profiles" share a namespace
// and never inject glob characters into prefix deletes. Only the empty name
// normalizes to "".
func normalizeName(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pendingUnderscore := false
	flush := func() {
		if pendingUnderscore && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingUnderscore = false
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					pendingUnderscore = true
				}
			}
			flush()
			b.WriteRune(unicode.ToLower(r))

		case unicode.IsDigit(r):
			if i > 0 && unicode.IsLetter(runes[i-1]) {
				pendingUnderscore = true
			}
			flush()
			b.WriteRune(r)

		case unicode.IsLower(r), unicode.IsLetter(r):
			// caseless scripts are kept as written
			flush()
			b.WriteRune(r)

		default:
			// separators and punctuation collapse into one underscore
			pendingUnderscore = true
		}
	}

	if b.Len() == 0 && s != "" {
		return symbolName(s)
	}
	return b.String()
}

// symbolName names a cache whose name has no letters or digits, keeping it
// apart from the unnamed cache and from other symbol-only names.
func symbolName(s string) string {
	return "x" + hex.EncodeToString([]byte(s))
}
