package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mmcdole/teensyrom/internal/domain"
)

const (
	dirOpen   = "[Dir]"
	dirClose  = "[/Dir]"
	fileOpen  = "[File]"
	fileClose = "[/File]"
)

// listingItem is the JSON object the firmware emits per entry.
type listingItem struct {
	Name string `json:"Name"`
	Path string `json:"Path"`
	Size int64  `json:"Size"`
}

// DecodeListing parses the text between the start marker and the end
// sentinel into directory and file entries. Chunks that are neither a [Dir]
// nor a [File] record are ignored.
func DecodeListing(path, text string) (domain.DirectoryListing, error) {
	listing := domain.DirectoryListing{
		Path:        path,
		Directories: []domain.DirectoryEntry{},
		Files:       []domain.FileEntry{},
	}

	text = strings.ReplaceAll(text, fileClose, dirClose)
	for _, chunk := range strings.Split(text, dirClose) {
		switch {
		case chunk == "":
			continue
		case strings.HasPrefix(chunk, dirOpen):
			var item listingItem
			if err := json.Unmarshal([]byte(chunk[len(dirOpen):]), &item); err != nil {
				return domain.DirectoryListing{}, &MalformedResponseError{Chunk: chunk, Err: err}
			}
			listing.Directories = append(listing.Directories, domain.DirectoryEntry{
				Name: item.Name,
				Path: collapseSlashes(item.Path),
			})
		case strings.HasPrefix(chunk, fileOpen):
			var item listingItem
			if err := json.Unmarshal([]byte(chunk[len(fileOpen):]), &item); err != nil {
				return domain.DirectoryListing{}, &MalformedResponseError{Chunk: chunk, Err: err}
			}
			listing.Files = append(listing.Files, domain.FileEntry{
				Name: item.Name,
				Path: collapseSlashes(item.Path),
				Size: item.Size,
				Kind: domain.KindFromName(item.Name),
			})
		}
	}
	return listing, nil
}

// The firmware joins parent and name without checking for a trailing slash.
func collapseSlashes(p string) string {
	return strings.ReplaceAll(p, "//", "/")
}

// trailingToken reports the token formed by the last two buffered bytes.
func trailingToken(buf []byte) Token {
	if len(buf) < 2 {
		return TokenUnknown
	}
	return IdentifyBytes(buf[len(buf)-2:])
}

// awaitListStart reads the two-byte marker that opens a listing stream.
func (c *Client) awaitListStart() error {
	const stage = "list directory start"
	buf := make([]byte, 2)
	n, err := c.t.Read(buf, c.opts.AckTimeout)
	if err != nil {
		return err
	}
	raw := buf[:n]
	if n < 2 {
		return &HandshakeTimeoutError{Stage: stage, Timeout: c.opts.AckTimeout, Received: raw}
	}
	switch IdentifyBytes(raw) {
	case TokenStartDirectoryList:
		return nil
	case TokenFail:
		return &HandshakeRejectedError{Stage: stage, Diagnostic: string(c.t.Drain(c.opts.DrainWindow))}
	default:
		return &ProtocolFramingError{Stage: stage, Raw: raw, Diagnostic: string(c.t.Drain(c.opts.DrainWindow))}
	}
}

// readListing accumulates bytes until the buffer ends with the EndDirectoryList
// or Fail sentinel, or the overall deadline passes. The sentinel check only
// looks at the tail, so a payload whose bytes happen to end in a sentinel
// value mid-stream terminates the read early.
func (c *Client) readListing() ([]byte, Token, error) {
	var received []byte
	deadline := time.Now().Add(c.opts.ListTimeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return received, TokenUnknown, &HandshakeTimeoutError{
				Stage:    "list directory content",
				Timeout:  c.opts.ListTimeout,
				Received: received,
			}
		}
		wait := c.opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		ok, err := c.t.WaitForData(1, wait)
		if err != nil {
			return received, TokenUnknown, err
		}
		if !ok {
			continue
		}
		received = append(received, c.t.ReadAvailable()...)
		if tok := trailingToken(received); tok == TokenEndDirectoryList || tok == TokenFail {
			return received, tok, nil
		}
	}
}
