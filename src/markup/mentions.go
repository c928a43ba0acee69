package markup

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"git.quorum.forum/qf/qf/src/models"
)

// Longest prefix of text after an "@" that we will use to look up usernames.
const mentionSeedLength = 10

// Pulls out the name seeds following each "@" in the source text. A seed is
// the run of characters after the "@" up to whitespace or another "@", capped
// at mentionSeedLength runes. Callers use seeds to prefetch candidate users
// before the real tokenizing pass.
func ExtractMentionSeeds(text string) []string {
	var seeds []string
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' || !mentionBoundary(runes, i) {
			continue
		}
		var seed []rune
		for j := i + 1; j < len(runes) && len(seed) < mentionSeedLength; j++ {
			if unicode.IsSpace(runes[j]) || runes[j] == '@' {
				break
			}
			seed = append(seed, runes[j])
		}
		if len(seed) > 0 {
			seeds = append(seeds, string(seed))
		}
	}
	return seeds
}

// An "@" only starts a mention at the beginning of the text, after
// whitespace, or right after a tag close. The scan runs over rendered
// HTML, so a post that opens with a mention sees "<p>@name"; the ">"
// case catches it. Email addresses are left alone.
func mentionBoundary(runes []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := runes[i-1]
	return unicode.IsSpace(prev) || prev == '>'
}

// Rewrites "@username" occurrences into links and reports which users got
// mentioned, in text order and possibly with repeats. Candidates are tried
// longest username first so "@annabelle" never resolves to "anna". makeLink
// returns the href for a user's profile.
func Mentionize(text string, candidates []*models.User, makeLink func(u *models.User) string) ([]*models.User, string) {
	var mentioned []*models.User
	var out strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); {
		if runes[i] != '@' || !mentionBoundary(runes, i) {
			out.WriteRune(runes[i])
			i++
			continue
		}

		rest := string(runes[i+1:])
		user := longestUsernameMatch(rest, candidates)
		if user == nil {
			out.WriteRune(runes[i])
			i++
			continue
		}

		fmt.Fprintf(&out, `<a href="%s">@%s</a>`,
			html.EscapeString(makeLink(user)),
			html.EscapeString(user.Username),
		)
		mentioned = append(mentioned, user)
		i += 1 + len([]rune(user.Username))
	}

	return mentioned, out.String()
}

func longestUsernameMatch(rest string, candidates []*models.User) *models.User {
	var best *models.User
	restLower := strings.ToLower(rest)
	for _, c := range candidates {
		if !strings.HasPrefix(restLower, strings.ToLower(c.Username)) {
			continue
		}
		if best == nil || len(c.Username) > len(best.Username) {
			best = c
		}
	}
	return best
}
