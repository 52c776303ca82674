// Package manifest loads the declared team definitions that drive a sync
// run: a YAML mapping from group display name to description, parent,
// members, and the ignored flag.
package manifest

import (
	"strings"
	"unicode"
)

// Team is one declared group after prefixing and key derivation.
type Team struct {
	Name        string
	Key         string
	Description string
	Parent      string
	Members     []string
	Ignored     bool
}

// Member is the wire shape of a single membership entry.
type Member struct {
	Username string `yaml:"username"`
}

// ApplyPrefix prepends the configured name prefix to a display name.
func ApplyPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + " " + name
}

// Slug derives the stable lookup key for a display name: lowercased,
// whitespace and hyphen runs collapsed to a single hyphen, everything else
// outside [a-z0-9_] dropped, leading and trailing hyphens trimmed. The key
// stays the same as long as the name does, which is what lets remote groups
// be addressed independently of display-name formatting.
func Slug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '-' || unicode.IsSpace(r):
			pending = true
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
