// Package personalize substitutes {{name}} placeholders in campaign content
// with per-recipient values.
package personalize

import (
	"regexp"

	"github.com/sungwon/campaign-dispatch/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}\}`)

// Data is everything a placeholder may resolve against.
type Data struct {
	Recipient domain.Recipient
	// UnsubscribeURL is the recipient-specific unsubscribe link.
	UnsubscribeURL string
	// Vars holds resolved custom variable values. Recipient metadata takes
	// precedence over these.
	Vars map[string]string
}

// Lookup resolves one placeholder name. Recipient fields come first, then
// the unsubscribe link, then recipient metadata, then Vars.
func Lookup(name string, d Data) (string, bool) {
	switch name {
	case "firstName", "first_name":
		return d.Recipient.FirstName, true
	case "lastName", "last_name":
		return d.Recipient.LastName, true
	case "fullName", "full_name":
		return d.Recipient.FullName(), true
	case "email":
		return d.Recipient.Email, true
	case "unsubscribeUrl", "unsubscribe_url":
		return d.UnsubscribeURL, true
	}
	if v, ok := d.Recipient.Metadata[name]; ok {
		return v, true
	}
	if v, ok := d.Vars[name]; ok {
		return v, true
	}
	return "", false
}

// Render replaces every resolvable placeholder in text. Unknown placeholders
// are left as written. Render never fails.
func Render(text string, d Data) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := Lookup(name, d); ok {
			return v
		}
		return m
	})
}

// Placeholders lists the distinct placeholder names in text in order of
// first appearance.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Unresolved lists the placeholders in text that Render would leave as
// literal text for d.
func Unresolved(text string, d Data) []string {
	var out []string
	for _, name := range Placeholders(text) {
		if _, ok := Lookup(name, d); !ok {
			out = append(out, name)
		}
	}
	return out
}
