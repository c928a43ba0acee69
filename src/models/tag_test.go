package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTagName(t *testing.T) {
	assert.True(t, ValidateTagName("linux"))
	assert.True(t, ValidateTagName("linux-kernel-2"))
	assert.False(t, ValidateTagName(""))
	assert.False(t, ValidateTagName("Linux"))
	assert.False(t, ValidateTagName("linux--kernel"))
	assert.False(t, ValidateTagName("-linux"))
}

func TestMatchesWildcards(t *testing.T) {
	tags := []string{"linux-kernel", "networking"}

	assert.True(t, MatchesWildcards([]string{"linux-*"}, tags))
	assert.True(t, MatchesWildcards([]string{"*"}, tags))
	assert.True(t, MatchesWildcards([]string{"windows-*", "networking"}, tags))
	assert.False(t, MatchesWildcards([]string{"windows-*"}, tags))
	assert.False(t, MatchesWildcards([]string{"linux"}, tags), "non-wildcard patterns must match exactly")
	assert.False(t, MatchesWildcards(nil, tags))
	assert.False(t, MatchesWildcards([]string{"linux-*"}, nil))
}

func TestThreadTagList(t *testing.T) {
	thread := Thread{Tagnames: "linux-kernel  networking "}
	assert.Equal(t, []string{"linux-kernel", "networking"}, thread.TagList())

	empty := Thread{}
	assert.Len(t, empty.TagList(), 0)
}
