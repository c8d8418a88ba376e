package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/teensyrom/internal/adapter"
	"github.com/mmcdole/teensyrom/internal/domain"
)

var (
	_ domain.DirectoryRepository = (*Client)(nil)
	_ domain.FileRepository      = (*Client)(nil)
	_ domain.PlaybackClient      = (*Client)(nil)
)

func newTestClient(f *fakeTransport) *Client {
	return NewClient(f, testOptions(), nil, adapter.NullLogger())
}

func TestAwaitAckClassifies(t *testing.T) {
	tests := []struct {
		name   string
		rx     []byte
		status AckStatus
	}{
		{"ack", ack(), AckOK},
		{"fail", fail(), AckFail},
		{"other", []byte{0x12, 0x34}, AckUnexpected},
		{"partial", []byte{0x64}, AckTimeout},
		{"nothing", nil, AckTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeTransport{rx: tt.rx}
			res, err := awaitAck(f, testOptions().AckTimeout)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, len(tt.rx), len(res.Raw))
		})
	}
}

func TestLaunchFileSuccess(t *testing.T) {
	f := newFake(ack(), join(ack(), []byte("loading...\n")))
	c := newTestClient(f)

	res, err := c.LaunchFile(context.Background(), domain.StorageSD, "/games/a.prg")
	require.NoError(t, err)
	assert.Equal(t, domain.LaunchSuccess, res)

	require.Len(t, f.written, 2)
	assert.Equal(t, []byte{0x64, 0x44}, f.written[0])
	assert.Equal(t, append([]byte{0x01}, []byte("/games/a.prg\x00")...), f.written[1])
	assert.Equal(t, 1, f.acquired)
	assert.Equal(t, 1, f.released)
}

func TestLaunchFileSidError(t *testing.T) {
	for _, marker := range sidErrorMarkers {
		f := newFake(ack(), join(ack(), []byte("error: "+marker+"\n")))
		res, err := newTestClient(f).LaunchFile(context.Background(), domain.StorageUSB, "/m/x.sid")
		require.NoError(t, err)
		assert.Equal(t, domain.LaunchSidError, res, marker)
		assert.Equal(t, byte(0x00), f.written[1][0], "usb selector")
	}
}

func TestLaunchFileRejected(t *testing.T) {
	f := newFake(join(fail(), []byte("busy")))
	_, err := newTestClient(f).LaunchFile(context.Background(), domain.StorageSD, "/x.prg")

	var rejected *HandshakeRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "launch token", rejected.Stage)
	assert.Equal(t, "busy", rejected.Diagnostic)
	assert.Len(t, f.written, 1, "path must not be sent after a failed ack")
}

func TestLaunchFilePathTimeout(t *testing.T) {
	f := newFake(ack(), []byte{0x64})
	_, err := newTestClient(f).LaunchFile(context.Background(), domain.StorageSD, "/x.prg")

	var timeout *HandshakeTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, "launch path", timeout.Stage)
	assert.Equal(t, []byte{0x64}, timeout.Received)
}

func TestUnexpectedResponseKeepsRawBytes(t *testing.T) {
	f := newFake(join([]byte{0xDE, 0xAD}, []byte("garbage")))
	_, err := newTestClient(f).LaunchFile(context.Background(), domain.StorageSD, "/x.prg")

	var unexpected *UnexpectedResponseError
	require.True(t, errors.As(err, &unexpected))
	assert.Equal(t, []byte{0xDE, 0xAD}, unexpected.Raw)
	assert.Equal(t, "garbage", unexpected.Diagnostic)
}

func TestCopyFileFraming(t *testing.T) {
	f := newFake(ack())
	err := newTestClient(f).CopyFile(context.Background(), domain.StorageSD, "/a.sid", "/favorites/music")
	require.NoError(t, err)

	require.Len(t, f.written, 1)
	want := join([]byte{0x64, 0xFF, 0x01}, []byte("/a.sid\x00/favorites/music\x00"))
	assert.Equal(t, want, f.written[0])
}

func TestCopyFileFailure(t *testing.T) {
	f := newFake(fail())
	err := newTestClient(f).CopyFile(context.Background(), domain.StorageSD, "/a.sid", "/b")
	var rejected *HandshakeRejectedError
	assert.True(t, errors.As(err, &rejected))
}

func TestPlaySubtune(t *testing.T) {
	f := newFake(ack())
	require.NoError(t, newTestClient(f).PlaySubtune(context.Background(), 3))
	assert.Equal(t, []byte{0x64, 0x88, 0x02}, f.written[0])

	assert.Error(t, newTestClient(newFake()).PlaySubtune(context.Background(), 0))
	assert.Error(t, newTestClient(newFake()).PlaySubtune(context.Background(), 257))
}

func TestListDirectory(t *testing.T) {
	body := `[Dir]{"Name":"sub","Path":"/music//sub"}[/Dir][File]{"Name":"a.sid","Path":"/music/a.sid","Size":10}[/File]`
	f := newFake(ack(), join(TokenStartDirectoryList.Bytes(), []byte(body), TokenEndDirectoryList.Bytes()))

	listing, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/music", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "/music", listing.Path)
	assert.Equal(t, []domain.DirectoryEntry{{Name: "sub", Path: "/music/sub"}}, listing.Directories)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, int64(10), listing.Files[0].Size)

	require.Len(t, f.written, 2)
	assert.Equal(t, []byte{0x64, 0xDD}, f.written[0])
	want := join([]byte{0x01, 0x00, 0x00, 0x27, 0x0F}, []byte("/music\x00"))
	assert.Equal(t, want, f.written[1], "selector, offset 0, count 9999, path")
}

func TestListDirectoryEmpty(t *testing.T) {
	f := newFake(ack(), join(TokenStartDirectoryList.Bytes(), TokenEndDirectoryList.Bytes()))
	listing, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, listing.Directories)
	assert.Empty(t, listing.Files)
}

func TestListDirectoryStartFail(t *testing.T) {
	f := newFake(ack(), join(fail(), []byte("no such dir")))
	_, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/nope", 0, 0)

	var rejected *HandshakeRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "no such dir", rejected.Diagnostic)
}

func TestListDirectoryBadStartToken(t *testing.T) {
	f := newFake(ack(), []byte{0x01, 0x02})
	_, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/", 0, 0)

	var framing *ProtocolFramingError
	require.True(t, errors.As(err, &framing))
	assert.Equal(t, []byte{0x01, 0x02}, framing.Raw)
}

func TestListDirectoryStreamTimeout(t *testing.T) {
	partial := []byte(`[Dir]{"Name":"a"`)
	f := newFake(ack(), join(TokenStartDirectoryList.Bytes(), partial))
	_, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/", 0, 0)

	var timeout *HandshakeTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, partial, timeout.Received)
}

func TestListDirectoryFailSentinel(t *testing.T) {
	f := newFake(ack(), join(TokenStartDirectoryList.Bytes(), []byte("read error"), fail()))
	_, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/", 0, 0)

	var rejected *HandshakeRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "read error", rejected.Diagnostic)
}

func TestListDirectoryStopsAtSentinelBytesInPayload(t *testing.T) {
	head := join([]byte(`[File]{"Name":"a`), TokenEndDirectoryList.Bytes())
	tail := join([]byte(`b.sid","Path":"/a.sid","Size":1}[/File]`), TokenEndDirectoryList.Bytes())
	f := newFake(ack(), join(TokenStartDirectoryList.Bytes(), head, tail))
	f.reads = []int{len(head)}

	_, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/", 0, 0)

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, `[File]{"Name":"a`, malformed.Chunk)
	assert.Equal(t, tail, f.pending(), "bytes after the early sentinel are not read")
}

func TestListDirectoryStopsAtFailBytesInPayload(t *testing.T) {
	head := join([]byte(`[Dir]{"Name":"x`), fail())
	f := newFake(ack(), join(TokenStartDirectoryList.Bytes(), head, []byte(`"}[/Dir]`), TokenEndDirectoryList.Bytes()))
	f.reads = []int{len(head)}

	_, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/", 0, 0)

	var rejected *HandshakeRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, `[Dir]{"Name":"x`, rejected.Diagnostic)
}

func TestListDirectoryMalformed(t *testing.T) {
	f := newFake(ack(), join(TokenStartDirectoryList.Bytes(), []byte(`[File]{bad}[/File]`), TokenEndDirectoryList.Bytes()))
	_, err := newTestClient(f).ListDirectory(context.Background(), domain.StorageSD, "/", 0, 0)

	var malformed *MalformedResponseError
	assert.True(t, errors.As(err, &malformed))
}

func TestListDirectoryWindowBounds(t *testing.T) {
	_, err := newTestClient(newFake()).ListDirectory(context.Background(), domain.StorageSD, "/", 70000, 1)
	assert.Error(t, err)
}

func TestSendFile(t *testing.T) {
	data := []byte{1, 2, 3, 250}
	f := newFake(ack(), ack(), ack())
	obs := &recordingObserver{}
	c := NewClient(f, testOptions(), obs, adapter.NullLogger())

	require.NoError(t, c.SendFile(context.Background(), domain.StorageSD, "/sync/sid/a.sid", data))

	require.Len(t, f.written, 3)
	assert.Equal(t, []byte{0x64, 0xBB}, f.written[0])
	header := join([]byte{0, 0, 0, 4, 0x01, 0x00, 0x01}, []byte("/sync/sid/a.sid\x00"))
	assert.Equal(t, header, f.written[1])
	assert.Equal(t, data, f.written[2])
	assert.Equal(t, []string{"send"}, obs.commands)
	assert.NoError(t, obs.errs[0])
}

func TestSendFileDataRejected(t *testing.T) {
	f := newFake(ack(), ack(), join(fail(), []byte("checksum mismatch")))
	err := newTestClient(f).SendFile(context.Background(), domain.StorageSD, "/a.prg", []byte("x"))

	var rejected *HandshakeRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "send file data", rejected.Stage)
}

func TestPing(t *testing.T) {
	f := newFake(join(ack(), []byte("TeensyROM v0.5.12 is on-line\n")))
	banner, err := newTestClient(f).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TeensyROM v0.5.12 is on-line", banner)
	require.Len(t, f.written, 1)
	assert.Equal(t, TokenPing.Bytes(), f.written[0])

	_, err = newTestClient(newFake()).Ping(context.Background())
	var timeout *HandshakeTimeoutError
	assert.True(t, errors.As(err, &timeout))

	_, err = newTestClient(newFake(fail())).Ping(context.Background())
	var rejected *HandshakeRejectedError
	assert.True(t, errors.As(err, &rejected))
}

func TestReset(t *testing.T) {
	f := newFake(ack())
	out, err := newTestClient(f).Reset(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, f.written, 1)
	assert.Equal(t, TokenReset.Bytes(), f.written[0])

	_, err = newTestClient(newFake([]byte{0x12, 0x34})).Reset(context.Background())
	var unexpected *UnexpectedResponseError
	assert.True(t, errors.As(err, &unexpected))
}

func TestCancelledContextSendsNothing(t *testing.T) {
	f := newFake(ack())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestClient(f).CopyFile(ctx, domain.StorageSD, "/a", "/b")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.written)
}

func TestAcquireErrorPropagates(t *testing.T) {
	f := newFake()
	f.acquireErr = domain.ErrNotConnected
	err := newTestClient(f).PauseMusic(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Equal(t, 0, f.released)
}

func TestWriteErrorPropagates(t *testing.T) {
	f := newFake()
	f.writeErr = errUnplugged
	err := newTestClient(f).PauseMusic(context.Background())
	assert.ErrorIs(t, err, errUnplugged)
	assert.Equal(t, 1, f.released)
}

func TestStaleInputDiscarded(t *testing.T) {
	f := newFake(ack())
	f.rx = []byte{0xDE, 0xAD}
	assert.NoError(t, newTestClient(f).PlaySubtune(context.Background(), 1))
}

func TestPathWithNulRejected(t *testing.T) {
	_, err := newTestClient(newFake()).LaunchFile(context.Background(), domain.StorageSD, "/a\x00b")
	assert.Error(t, err)
}
