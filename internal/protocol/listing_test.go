package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/teensyrom/internal/domain"
)

func TestDecodeListing(t *testing.T) {
	text := `[Dir]{"Name":"games","Path":"/games"}[/Dir]` +
		`[File]{"Name":"a.sid","Path":"/music//a.sid","Size":1234}[/File]`

	listing, err := DecodeListing("/music", text)
	require.NoError(t, err)

	assert.Equal(t, "/music", listing.Path)
	assert.Equal(t, []domain.DirectoryEntry{{Name: "games", Path: "/games"}}, listing.Directories)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, domain.FileEntry{Name: "a.sid", Path: "/music/a.sid", Size: 1234, Kind: domain.KindSid}, listing.Files[0])
}

func TestDecodeListingEmpty(t *testing.T) {
	listing, err := DecodeListing("/", "")
	require.NoError(t, err)
	assert.Empty(t, listing.Directories)
	assert.Empty(t, listing.Files)
}

func TestDecodeListingIgnoresUnknownChunks(t *testing.T) {
	text := `noise[/Dir][File]{"Name":"x.prg","Path":"/x.prg","Size":1}[/File]`
	listing, err := DecodeListing("/", text)
	require.NoError(t, err)
	assert.Empty(t, listing.Directories)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, domain.KindPrg, listing.Files[0].Kind)
}

func TestDecodeListingMalformedChunk(t *testing.T) {
	text := `[Dir]{"Name":"ok","Path":"/ok"}[/Dir][File]{"Name":broken}[/File]`
	_, err := DecodeListing("/", text)

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, `[File]{"Name":broken}`, malformed.Chunk)
}

func TestCollapseSlashes(t *testing.T) {
	assert.Equal(t, "/a/b", collapseSlashes("/a//b"))
	assert.Equal(t, "/a/b", collapseSlashes("/a/b"))
}
