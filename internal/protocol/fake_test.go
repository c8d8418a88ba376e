package protocol

import (
	"errors"
	"sync"
	"time"
)

// fakeTransport replays one scripted reply per Write. When reads is set,
// successive ReadAvailable calls hand out at most that many bytes each, so a
// reply can arrive over several reads.
type fakeTransport struct {
	mu       sync.Mutex
	replies  [][]byte
	rx       []byte
	reads    []int
	written  [][]byte
	acquired int
	released int

	acquireErr error
	writeErr   error
}

func newFake(replies ...[]byte) *fakeTransport {
	return &fakeTransport{replies: replies}
}

func (f *fakeTransport) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte{}, p...))
	if len(f.replies) > 0 {
		f.rx = append(f.rx, f.replies[0]...)
		f.replies = f.replies[1:]
	}
	return nil
}

func (f *fakeTransport) Read(p []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakeTransport) ReadAvailable() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.rx)
	if len(f.reads) > 0 {
		n = min(n, f.reads[0])
		f.reads = f.reads[1:]
	}
	out := append([]byte{}, f.rx[:n]...)
	f.rx = f.rx[n:]
	return out
}

func (f *fakeTransport) pending() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte{}, f.rx...)
}

func (f *fakeTransport) WaitForData(min int, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	ok := len(f.rx) >= min
	f.mu.Unlock()
	if !ok {
		time.Sleep(timeout)
	}
	return ok, nil
}

func (f *fakeTransport) Drain(window time.Duration) []byte {
	return f.ReadAvailable()
}

func (f *fakeTransport) Discard() {
	f.mu.Lock()
	f.rx = nil
	f.mu.Unlock()
}

func (f *fakeTransport) Acquire() error {
	if f.acquireErr != nil {
		return f.acquireErr
	}
	f.acquired++
	return nil
}

func (f *fakeTransport) Release() { f.released++ }

var errUnplugged = errors.New("unplugged")

func ack() []byte  { return TokenAck.Bytes() }
func fail() []byte { return TokenFail.Bytes() }

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func testOptions() Options {
	return Options{
		AckTimeout:      10 * time.Millisecond,
		DrainWindow:     time.Millisecond,
		ResponseWindow:  time.Millisecond,
		ListTimeout:     40 * time.Millisecond,
		TransferTimeout: 10 * time.Millisecond,
		PollInterval:    2 * time.Millisecond,
	}
}

type recordingObserver struct {
	commands []string
	errs     []error
}

func (r *recordingObserver) ObserveHandshake(command string, _ time.Duration, err error) {
	r.commands = append(r.commands, command)
	r.errs = append(r.errs, err)
}
