// Package template substitutes @@-prefixed placeholders in script text.
package template

import (
	"regexp"
)

// Delimiter introduces a placeholder
const Delimiter = "@@"

// placeholder matches an escaped delimiter, @@name or @@{name}
var placeholder = regexp.MustCompile(`@@(?:(@@)|([_A-Za-z][_A-Za-z0-9]*)|\{([_A-Za-z][_A-Za-z0-9]*)\})`)

// Render replaces each placeholder in text with its value from extra or,
// failing that, mapping. Unknown names and malformed placeholders are left
// untouched and @@@@ renders as @@.
func Render(text string, mapping, extra map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)
		if groups[1] != "" {
			return Delimiter
		}

		name := groups[2]
		if name == "" {
			name = groups[3]
		}
		if v, ok := extra[name]; ok {
			return v
		}
		if v, ok := mapping[name]; ok {
			return v
		}
		return match
	})
}
