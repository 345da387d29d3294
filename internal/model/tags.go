package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TagSeparator delimits tags in their stored form.
const TagSeparator = ","

// SplitTags parses a delimited tag string into its normalized tags.
//
// Each tag is trimmed and NFC-normalized. Empty tags are dropped and
// duplicates keep their first position.
func SplitTags(csv string) []string {
	parts := strings.Split(csv, TagSeparator)
	tags := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		tag := norm.NFC.String(strings.TrimSpace(p))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// JoinTags renders tags in their stored form.
func JoinTags(tags []string) string {
	return strings.Join(tags, TagSeparator)
}

// NormalizeTags re-renders a delimited tag string in canonical form.
func NormalizeTags(csv string) string {
	return JoinTags(SplitTags(csv))
}
