package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/teensyrom/internal/domain"
)

// Transport is the byte pipe a Client drives. serial.Port implements it.
type Transport interface {
	Write(p []byte) error
	// Read waits up to timeout for len(p) bytes and copies whatever arrived.
	Read(p []byte, timeout time.Duration) (int, error)
	// ReadAvailable returns every buffered byte without blocking.
	ReadAvailable() []byte
	// WaitForData reports whether at least min bytes are buffered before timeout.
	WaitForData(min int, timeout time.Duration) (bool, error)
	// Drain collects whatever arrives within window.
	Drain(window time.Duration) []byte
	// Discard drops any stale buffered input.
	Discard()
	// Acquire marks the link busy for one handshake; Release undoes it.
	Acquire() error
	Release()
}

// Observer receives one call per completed handshake.
type Observer interface {
	ObserveHandshake(command string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveHandshake(string, time.Duration, error) {}

// Options holds the handshake timing windows.
type Options struct {
	AckTimeout      time.Duration // wait for an Ack/Fail token
	DrainWindow     time.Duration // diagnostic text collected after a failure
	ResponseWindow  time.Duration // trailing text read after launch, ping, reset
	ListTimeout     time.Duration // whole directory stream
	TransferTimeout time.Duration // final ack after a file upload
	PollInterval    time.Duration
	ListCount       int // max entries requested per listing
}

func DefaultOptions() Options {
	return Options{
		AckTimeout:      500 * time.Millisecond,
		DrainWindow:     100 * time.Millisecond,
		ResponseWindow:  100 * time.Millisecond,
		ListTimeout:     10 * time.Second,
		TransferTimeout: 5 * time.Second,
		PollInterval:    20 * time.Millisecond,
		ListCount:       9999,
	}
}

// Text the firmware prints when it accepts a launch but cannot play a SID.
var sidErrorMarkers = []string{"PSID not found", "Mem conflict w/ TR app"}

// Client performs TeensyROM handshakes over a Transport. Handshakes are
// serialized: one runs at a time, in lock acquisition order.
type Client struct {
	t        Transport
	opts     Options
	observer Observer
	logger   *slog.Logger

	mu sync.Mutex
}

// NewClient creates a handshake client. A nil observer disables metrics.
func NewClient(t Transport, opts Options, observer Observer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	def := DefaultOptions()
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = def.AckTimeout
	}
	if opts.DrainWindow <= 0 {
		opts.DrainWindow = def.DrainWindow
	}
	if opts.ResponseWindow <= 0 {
		opts.ResponseWindow = def.ResponseWindow
	}
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = def.ListTimeout
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = def.TransferTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.ListCount <= 0 || opts.ListCount > 0xFFFF {
		opts.ListCount = def.ListCount
	}
	return &Client{t: t, opts: opts, observer: observer, logger: logger}
}

// run executes one handshake under the client lock. ctx is only consulted
// before the exchange starts; waits inside a handshake are bounded by their
// own timeouts.
func (c *Client) run(ctx context.Context, command string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.t.Acquire(); err != nil {
		return err
	}
	defer c.t.Release()

	c.t.Discard()
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	c.observer.ObserveHandshake(command, elapsed, err)

	if err != nil {
		c.logger.Warn("handshake failed", "command", command, "elapsed", elapsed, "error", err)
	} else {
		c.logger.Debug("handshake complete", "command", command, "elapsed", elapsed)
	}
	return err
}

func (c *Client) send(f *Frame) error {
	return c.t.Write(f.Bytes())
}

// expectAck reads the acknowledgement for stage and converts anything other
// than Ack into a typed error carrying the device's diagnostic text.
func (c *Client) expectAck(stage string, timeout time.Duration) error {
	res, err := awaitAck(c.t, timeout)
	if err != nil {
		return err
	}
	if res.Status == AckOK {
		return nil
	}
	return ackError(stage, res, timeout, c.t.Drain(c.opts.DrainWindow))
}

// Ping checks that the firmware is listening. Any text printed after the
// Ack (the firmware banner on most versions) is returned.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var banner string
	err := c.run(ctx, "ping", func() error {
		if err := c.send(NewFrame(2).Token(TokenPing)); err != nil {
			return err
		}
		if err := c.expectAck("ping", c.opts.AckTimeout); err != nil {
			return err
		}
		banner = strings.TrimSpace(string(c.t.Drain(c.opts.ResponseWindow)))
		return nil
	})
	return banner, err
}

// Reset resets the C64 and returns whatever the firmware printed after the Ack.
func (c *Client) Reset(ctx context.Context) (string, error) {
	var out string
	err := c.run(ctx, "reset", func() error {
		if err := c.send(NewFrame(2).Token(TokenReset)); err != nil {
			return err
		}
		if err := c.expectAck("reset", c.opts.AckTimeout); err != nil {
			return err
		}
		out = strings.TrimSpace(string(c.t.Drain(c.opts.ResponseWindow)))
		return nil
	})
	return out, err
}

// PauseMusic toggles SID playback.
func (c *Client) PauseMusic(ctx context.Context) error {
	return c.run(ctx, "pause", func() error {
		if err := c.send(NewFrame(2).Token(TokenPauseMusic)); err != nil {
			return err
		}
		return c.expectAck("pause music", c.opts.AckTimeout)
	})
}

// LaunchFile runs a file on the C64. The device acknowledges the path before
// loading it, so a SID it cannot play is reported as LaunchSidError rather
// than as a failed handshake.
func (c *Client) LaunchFile(ctx context.Context, storage domain.StorageType, path string) (domain.LaunchResult, error) {
	if err := validateWirePath(path); err != nil {
		return domain.LaunchSuccess, err
	}
	result := domain.LaunchSuccess
	err := c.run(ctx, "launch", func() error {
		if err := c.send(NewFrame(2).Token(TokenLaunchFile)); err != nil {
			return err
		}
		if err := c.expectAck("launch token", c.opts.AckTimeout); err != nil {
			return err
		}
		if err := c.send(NewFrame(len(path) + 2).U8(storage.Selector()).CString(path)); err != nil {
			return err
		}
		if err := c.expectAck("launch path", c.opts.AckTimeout); err != nil {
			return err
		}
		text := string(c.t.Drain(c.opts.ResponseWindow))
		for _, marker := range sidErrorMarkers {
			if strings.Contains(text, marker) {
				c.logger.Info("device could not play file", "path", path, "response", strings.TrimSpace(text))
				result = domain.LaunchSidError
				break
			}
		}
		return nil
	})
	return result, err
}

// CopyFile copies the file at src to the full path dst on the device. The firmware
// sends a single acknowledgement after the whole request.
func (c *Client) CopyFile(ctx context.Context, storage domain.StorageType, src, dst string) error {
	if err := validateWirePath(src); err != nil {
		return err
	}
	if err := validateWirePath(dst); err != nil {
		return err
	}
	return c.run(ctx, "copy", func() error {
		f := NewFrame(len(src)+len(dst)+5).
			Token(TokenCopyFile).
			U8(storage.Selector()).
			CString(src).
			CString(dst)
		if err := c.send(f); err != nil {
			return err
		}
		return c.expectAck("copy file", c.opts.AckTimeout)
	})
}

// PlaySubtune switches the playing SID to the 1-based subtune index.
func (c *Client) PlaySubtune(ctx context.Context, index int) error {
	if index < 1 || index > 256 {
		return fmt.Errorf("subtune index %d out of range 1-256", index)
	}
	return c.run(ctx, "subtune", func() error {
		if err := c.send(NewFrame(3).Token(TokenPlaySubtune).U8(byte(index - 1))); err != nil {
			return err
		}
		return c.expectAck("play subtune", c.opts.AckTimeout)
	})
}

// ListDirectory requests up to count entries of path starting at offset.
// A count of zero uses the configured default.
func (c *Client) ListDirectory(ctx context.Context, storage domain.StorageType, path string, offset, count int) (domain.DirectoryListing, error) {
	if err := validateWirePath(path); err != nil {
		return domain.DirectoryListing{}, err
	}
	if count <= 0 {
		count = c.opts.ListCount
	}
	if offset < 0 || offset > 0xFFFF || count > 0xFFFF {
		return domain.DirectoryListing{}, fmt.Errorf("listing window %d+%d exceeds 16 bits", offset, count)
	}

	var listing domain.DirectoryListing
	err := c.run(ctx, "list", func() error {
		if err := c.send(NewFrame(2).Token(TokenListDirectory)); err != nil {
			return err
		}
		if err := c.expectAck("list directory token", c.opts.AckTimeout); err != nil {
			return err
		}
		f := NewFrame(len(path) + 6).
			U8(storage.Selector()).
			U16(uint16(offset)).
			U16(uint16(count)).
			CString(path)
		if err := c.send(f); err != nil {
			return err
		}
		if err := c.awaitListStart(); err != nil {
			return err
		}

		raw, end, err := c.readListing()
		if err != nil {
			return err
		}
		text := string(raw[:len(raw)-2])
		if end == TokenFail {
			return &HandshakeRejectedError{Stage: "list directory content", Diagnostic: text}
		}

		listing, err = DecodeListing(path, text)
		if err != nil {
			return err
		}
		c.logger.Debug("listed directory", "path", path, "dirs", len(listing.Directories), "files", len(listing.Files))
		return nil
	})
	return listing, err
}

// SendFile uploads data to the full device path. The header carries the
// length and a 16-bit byte sum; the firmware acknowledges the header and,
// after writing to media, the payload.
func (c *Client) SendFile(ctx context.Context, storage domain.StorageType, path string, data []byte) error {
	if err := validateWirePath(path); err != nil {
		return err
	}
	if uint64(len(data)) > 0xFFFFFFFF {
		return fmt.Errorf("file %s too large: %d bytes", path, len(data))
	}
	return c.run(ctx, "send", func() error {
		if err := c.send(NewFrame(2).Token(TokenSendFile)); err != nil {
			return err
		}
		if err := c.expectAck("send file token", c.opts.AckTimeout); err != nil {
			return err
		}
		header := NewFrame(len(path) + 8).
			U32(uint32(len(data))).
			U16(Checksum(data)).
			U8(storage.Selector()).
			CString(path)
		if err := c.send(header); err != nil {
			return err
		}
		if err := c.expectAck("send file header", c.opts.AckTimeout); err != nil {
			return err
		}
		if err := c.t.Write(data); err != nil {
			return err
		}
		return c.expectAck("send file data", c.opts.TransferTimeout)
	})
}
