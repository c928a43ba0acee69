package models

import (
	"regexp"
	"strings"
)

type Tag struct {
	ID       int    `db:"id"`
	Name     string `db:"name"`
	Language string `db:"language"`

	UsedCount int  `db:"used_count"`
	Deleted   bool `db:"deleted"`
}

var REValidTag = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func ValidateTagName(name string) bool {
	if name == "" {
		return false
	}
	if len(name) > 60 {
		return false
	}
	return REValidTag.MatchString(name)
}

// Why a user marked a tag.
type TagMarkReason string

const (
	TagMarkInteresting TagMarkReason = "good"
	TagMarkIgnored     TagMarkReason = "bad"
	TagMarkSubscribed  TagMarkReason = "subscribed"
)

type TagMark struct {
	ID     int           `db:"id"`
	UserID int           `db:"user_id"`
	TagID  int           `db:"tag_id"`
	Reason TagMarkReason `db:"reason"`
}

// Reports whether any of the given wildcard patterns matches any of the tag
// names. Patterns end in "*" and match by prefix; a bare "*" matches
// everything. This is a linear scan over patterns times tags, which is fine
// at the sizes users actually mark.
func MatchesWildcards(wildcards []string, tagNames []string) bool {
	for _, w := range wildcards {
		prefix := strings.TrimSuffix(w, "*")
		if prefix == w {
			// Not actually a wildcard; require an exact match.
			for _, name := range tagNames {
				if name == w {
					return true
				}
			}
			continue
		}
		for _, name := range tagNames {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		}
	}
	return false
}
