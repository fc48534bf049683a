package httpx

import "strings"

// FormatETag renders a fingerprint as a strong entity tag.
func FormatETag(fingerprint string) string {
	return `"` + fingerprint + `"`
}

// ETagSet is a parsed If-Match / If-None-Match header.
type ETagSet struct {
	Any  bool
	Tags []string
}

// ParseETags accepts a comma separated list of entity tags. Tags may be
// quoted or bare, strong or weak; weakness is ignored for comparison.
func ParseETags(header string) ETagSet {
	var set ETagSet
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if tag == "*" {
			set.Any = true
			continue
		}
		tag = strings.TrimPrefix(tag, "W/")
		tag = strings.TrimSuffix(strings.TrimPrefix(tag, `"`), `"`)
		if tag != "" {
			set.Tags = append(set.Tags, tag)
		}
	}
	return set
}

func (s ETagSet) Empty() bool { return !s.Any && len(s.Tags) == 0 }

// Matches reports whether fingerprint is one of the tags, or the set is "*".
func (s ETagSet) Matches(fingerprint string) bool {
	if s.Any {
		return true
	}
	for _, t := range s.Tags {
		if t == fingerprint {
			return true
		}
	}
	return false
}
