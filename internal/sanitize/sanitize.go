// Package sanitize strips disallowed markup from chat message text.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
)

// DefaultAllowedTags is used when no allow-list is configured.
var DefaultAllowedTags = []string{"b", "i", "u", "s", "em", "strong", "br", "code", "pre"}

// Sanitizer keeps an allow-list of tags and removes everything else. Allowed
// tags lose all attributes. Text is returned as an HTML fragment, so applying
// Sanitize to its own output is a no-op.
type Sanitizer struct {
	policy  *bluemonday.Policy
	allowed []string
}

// New builds a Sanitizer for the given tag names. Names are matched
// case-insensitively; a nil slice selects DefaultAllowedTags and an empty,
// non-nil slice allows no tags at all.
func New(allowedTags []string) *Sanitizer {
	if allowedTags == nil {
		allowedTags = DefaultAllowedTags
	}
	tags := lo.Uniq(lo.FilterMap(allowedTags, func(tag string, _ int) (string, bool) {
		tag = strings.ToLower(strings.Trim(strings.TrimSpace(tag), "<>/"))
		return tag, tag != ""
	}))

	p := bluemonday.NewPolicy()
	if len(tags) > 0 {
		p.AllowElements(tags...)
	}
	return &Sanitizer{policy: p, allowed: tags}
}

// Sanitize returns text with disallowed markup removed and surrounding
// whitespace trimmed.
func (s *Sanitizer) Sanitize(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

// AllowedTags returns the normalized allow-list.
func (s *Sanitizer) AllowedTags() []string {
	return append([]string(nil), s.allowed...)
}
