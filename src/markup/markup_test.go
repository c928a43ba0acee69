package markup

import (
	"strings"
	"testing"

	"git.quorum.forum/qf/qf/src/models"
	"github.com/stretchr/testify/assert"
)

func TestRenderPost(t *testing.T) {
	t.Run("markdown basics", func(t *testing.T) {
		html := RenderPost("Some *emphasized* text")
		t.Log(html)
		assert.Contains(t, html, "<em>emphasized</em>")
	})
	t.Run("scripts are stripped", func(t *testing.T) {
		html := RenderPost("hello <script>alert(1)</script> world")
		t.Log(html)
		assert.NotContains(t, html, "<script>")
		assert.Contains(t, html, "hello")
	})
	t.Run("sanitize is idempotent", func(t *testing.T) {
		once := SanitizeHTML(`<p onclick="x()">hi</p><iframe src="evil"></iframe>`)
		assert.Equal(t, once, SanitizeHTML(once))
	})
}

func TestRenderPlaintext(t *testing.T) {
	text := RenderPlaintext("Some *emphasized* text\nwith a soft break")
	assert.NotContains(t, text, "<")
	assert.Contains(t, text, "emphasized")
	assert.Contains(t, text, "text with a soft break")
}

func TestMentions(t *testing.T) {
	alice := &models.User{ID: 1, Username: "alice"}
	alicia := &models.User{ID: 2, Username: "alicia"}
	candidates := []*models.User{alice, alicia}
	link := func(u *models.User) string { return "/users/" + u.Username }

	t.Run("seeds", func(t *testing.T) {
		seeds := ExtractMentionSeeds("hey @alice, also @bob")
		assert.Equal(t, []string{"alice,", "bob"}, seeds)
	})
	t.Run("seeds are capped", func(t *testing.T) {
		seeds := ExtractMentionSeeds("@abcdefghijklmnop")
		assert.Equal(t, []string{"abcdefghij"}, seeds)
	})
	t.Run("emails are not mentions", func(t *testing.T) {
		assert.Empty(t, ExtractMentionSeeds("mail me at bob@alice.example"))

		mentioned, html := Mentionize("bob@alice.example", candidates, link)
		assert.Empty(t, mentioned)
		assert.Equal(t, "bob@alice.example", html)
	})
	t.Run("longest username wins", func(t *testing.T) {
		mentioned, html := Mentionize("ping @alicia about this", candidates, link)
		assert.Equal(t, []*models.User{alicia}, mentioned)
		assert.Contains(t, html, `<a href="/users/alicia">@alicia</a>`)
		assert.NotContains(t, html, "@alice<")
	})
	t.Run("case insensitive match keeps canonical name", func(t *testing.T) {
		mentioned, html := Mentionize("thanks @Alice!", candidates, link)
		assert.Equal(t, []*models.User{alice}, mentioned)
		assert.Contains(t, html, ">@alice</a>")
	})
	t.Run("unknown names pass through", func(t *testing.T) {
		mentioned, html := Mentionize("hi @nobody", candidates, link)
		assert.Empty(t, mentioned)
		assert.Equal(t, "hi @nobody", html)
	})
	t.Run("repeats are reported in order", func(t *testing.T) {
		mentioned, _ := Mentionize("@alice @alicia @alice", candidates, link)
		assert.Equal(t, []*models.User{alice, alicia, alice}, mentioned)
	})
	t.Run("mention opening a rendered body", func(t *testing.T) {
		html := RenderPost("@alice check this")
		mentioned, linkified := Mentionize(html, candidates, link)
		assert.Equal(t, []*models.User{alice}, mentioned)
		assert.Contains(t, linkified, `<a href="/users/alice">@alice</a>`)

		seeds := ExtractMentionSeeds(html)
		assert.Contains(t, seeds, "alice")
	})
}

func TestSnippet(t *testing.T) {
	t.Run("short posts come back whole", func(t *testing.T) {
		assert.Equal(t, "a short post", Snippet("<p>a short post</p>", 120))
	})
	t.Run("long posts break on a word", func(t *testing.T) {
		s := Snippet("<p>the quick brown fox jumps over the lazy dog</p>", 20)
		assert.Equal(t, "the quick brown fox...", s)
	})
	t.Run("short bodies come back unchanged", func(t *testing.T) {
		html := RenderPost("some **bold** text")
		assert.Equal(t, html, SnippetWithExpander(html, 100))
		assert.Contains(t, SnippetWithExpander(html, 100), "<strong>bold</strong>")
	})
	t.Run("expander only on truncation", func(t *testing.T) {
		long := SnippetWithExpander("<p>one two three four five</p>", 3)
		assert.True(t, strings.HasPrefix(long, "<p>one two three "))
		assert.Contains(t, long, `<span class="js-expander">`)
		assert.True(t, strings.HasSuffix(long, "</span></p>"))
	})
	t.Run("truncation closes open elements", func(t *testing.T) {
		long := SnippetWithExpander("<p>one <strong>two three</strong> four</p>", 2)
		assert.True(t, strings.HasPrefix(long, "<p>one <strong>two "))
		assert.True(t, strings.HasSuffix(long, "</strong></p>"))
		assert.NotContains(t, long, "three")
	})
}

func TestWordDiff(t *testing.T) {
	d := WordDiffer{}

	t.Run("no change", func(t *testing.T) {
		assert.Equal(t, "same text", d.Diff("same text", "same text"))
	})
	t.Run("replacement", func(t *testing.T) {
		diff := d.Diff("the quick fox", "the slow fox")
		assert.Equal(t, "the <del>quick</del> <ins>slow</ins> fox", diff)
	})
	t.Run("append", func(t *testing.T) {
		diff := d.Diff("hello", "hello world")
		assert.Equal(t, "hello <ins>world</ins>", diff)
	})
	t.Run("delete everything", func(t *testing.T) {
		diff := d.Diff("all gone", "")
		assert.Equal(t, "<del>all gone</del>", diff)
	})
}

func TestFindLinks(t *testing.T) {
	links := FindLinks("see https://example.com/a and also example.org")
	assert.Contains(t, links, "https://example.com/a")
	assert.Contains(t, links, "example.org")
	assert.Empty(t, FindLinks("no links here"))
}
