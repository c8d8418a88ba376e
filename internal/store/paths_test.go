package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"//", ""},
		{"/music/", "music"},
		{"music", "music"},
		{"/a//b///c/", "a/b/c"},
		{`\games\c64\`, "games/c64"},
		{"/a/b.sid", "a/b.sid"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CleanPath(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanPath(got), "idempotent")
		})
	}
}

func TestParentPath(t *testing.T) {
	assert.Equal(t, "", ParentPath(""))
	assert.Equal(t, "", ParentPath("/music"))
	assert.Equal(t, "music", ParentPath("/music/a.sid"))
	assert.Equal(t, "a/b", ParentPath("a/b/c/"))
}

func TestBaseNameAndJoin(t *testing.T) {
	assert.Equal(t, "c.sid", BaseName("/a/b/c.sid"))
	assert.Equal(t, "a", BaseName("a"))
	assert.Equal(t, "", BaseName("/"))
	assert.Equal(t, "/sync/sid/x.sid", Join("/sync/", "/sid", "x.sid"))
	assert.Equal(t, "/", Join(""))
}
