package serial

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	goserial "go.bug.st/serial"

	"github.com/mmcdole/teensyrom/internal/domain"
)

const (
	DefaultBaudRate = 115200
	readPoll        = 50 * time.Millisecond
	readBufferSize  = 4096
)

// device is the subset of go.bug.st/serial.Port the Port drives.
type device interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

type opener func(name string, baud int) (device, error)

func openSerial(name string, baud int) (device, error) {
	mode := &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
	p, err := goserial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readPoll); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Port is a serial link with a background reader. Incoming bytes accumulate
// in a receive buffer so callers can poll BytesAvailable without blocking.
type Port struct {
	baud   int
	open   opener
	state  *StateMachine
	logger *slog.Logger

	mu      sync.Mutex
	name    string
	dev     device
	rx      []byte
	notify  chan struct{} // closed and replaced on every append or failure
	readErr error
	done    chan struct{}
	wg      sync.WaitGroup

	writeMu sync.Mutex
}

// NewPort creates an unopened port. A zero baud uses DefaultBaudRate.
func NewPort(baud int, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &Port{
		baud:   baud,
		open:   openSerial,
		state:  NewStateMachine(),
		logger: logger,
		notify: make(chan struct{}),
	}
}

// State exposes the connection state machine.
func (p *Port) State() *StateMachine { return p.state }

// Name returns the selected port name.
func (p *Port) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// SetPort selects the device path. Not allowed while the port is open.
func (p *Port) SetPort(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return &ConnectionError{Port: p.name, Op: "select", Err: errors.New("port is open")}
	}
	if err := p.state.Transition(StateConnectable); err != nil {
		return err
	}
	p.name = name
	return nil
}

// Open opens the selected port and starts the reader.
func (p *Port) Open() error {
	p.mu.Lock()
	name := p.name
	p.mu.Unlock()

	if !p.state.TransitionFrom(StateConnectable, StateConnecting) {
		return &ConnectionError{Port: name, Op: "open", Err: errors.New("port not connectable (state " + p.state.Current().String() + ")")}
	}

	dev, err := p.open(name, p.baud)
	if err != nil {
		p.state.TransitionFrom(StateConnecting, StateConnectable)
		p.logger.Error("failed to open serial port", "port", name, "error", err)
		return &ConnectionError{Port: name, Op: "open", Err: err}
	}

	p.mu.Lock()
	p.dev = dev
	p.rx = nil
	p.readErr = nil
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	p.wg.Add(1)
	go p.readLoop(dev, done)

	p.state.TransitionFrom(StateConnecting, StateConnected)
	p.logger.Info("serial port opened", "port", name, "baud", p.baud)
	return nil
}

// Close stops the reader and releases the device. Safe to call when closed.
func (p *Port) Close() error {
	p.mu.Lock()
	dev, done := p.dev, p.done
	p.dev = nil
	p.done = nil
	p.mu.Unlock()

	if dev == nil {
		return nil
	}
	close(done)
	err := dev.Close()
	p.wg.Wait()

	p.mu.Lock()
	p.wake()
	p.mu.Unlock()

	p.state.Transition(StateConnectable)
	p.logger.Info("serial port closed", "port", p.Name())
	if err != nil {
		return &ConnectionError{Port: p.Name(), Op: "close", Err: err}
	}
	return nil
}

func (p *Port) readLoop(dev device, done chan struct{}) {
	defer p.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := dev.Read(buf)
		if n > 0 {
			p.push(buf[:n])
		}
		select {
		case <-done:
			return
		default:
		}
		if err != nil {
			p.fail(dev, err)
			return
		}
	}
}

// wake releases every waiter. Caller holds mu.
func (p *Port) wake() {
	close(p.notify)
	p.notify = make(chan struct{})
}

func (p *Port) push(b []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, b...)
	p.wake()
	p.mu.Unlock()
}

// fail records an I/O error, drops the device and falls back to Connectable.
func (p *Port) fail(dev device, err error) {
	p.mu.Lock()
	if p.dev != dev {
		p.mu.Unlock()
		return
	}
	p.readErr = &ConnectionError{Port: p.name, Op: "read", Err: err}
	p.dev = nil
	close(p.done)
	p.done = nil
	p.wake()
	p.mu.Unlock()

	dev.Close()
	p.state.Transition(StateConnectable)
	p.logger.Error("serial port failed", "port", p.Name(), "error", err)
}

// BytesAvailable returns the number of buffered bytes.
func (p *Port) BytesAvailable() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rx)
}

// WaitForData blocks until min bytes are buffered or timeout passes.
func (p *Port) WaitForData(min int, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		if len(p.rx) >= min {
			p.mu.Unlock()
			return true, nil
		}
		if err := p.connErrLocked(); err != nil {
			p.mu.Unlock()
			return false, err
		}
		ch := p.notify
		p.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return p.BytesAvailable() >= min, nil
		}
	}
}

func (p *Port) connErrLocked() error {
	if p.readErr != nil {
		return p.readErr
	}
	if p.dev == nil {
		return &ConnectionError{Port: p.name, Op: "read", Err: domain.ErrNotConnected}
	}
	return nil
}

// Read waits up to timeout for len(b) bytes and copies what is buffered.
// A short count without error means the window elapsed; a short count with
// an error means the link failed mid-read.
func (p *Port) Read(b []byte, timeout time.Duration) (int, error) {
	_, err := p.WaitForData(len(b), timeout)
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	if n < len(b) && err != nil {
		return n, err
	}
	return n, nil
}

// ReadAvailable returns and clears the receive buffer.
func (p *Port) ReadAvailable() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.rx
	p.rx = nil
	return out
}

// Drain waits out window and returns everything received by then.
func (p *Port) Drain(window time.Duration) []byte {
	timer := time.NewTimer(window)
	<-timer.C
	return p.ReadAvailable()
}

// Discard drops buffered input, both ours and the driver's.
func (p *Port) Discard() {
	p.mu.Lock()
	p.rx = nil
	dev := p.dev
	p.mu.Unlock()
	if dev != nil {
		if err := dev.ResetInputBuffer(); err != nil {
			p.logger.Debug("reset input buffer failed", "error", err)
		}
	}
}

// Write sends all of b.
func (p *Port) Write(b []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	dev := p.dev
	p.mu.Unlock()
	if dev == nil {
		return &ConnectionError{Port: p.Name(), Op: "write", Err: domain.ErrNotConnected}
	}

	for len(b) > 0 {
		n, err := dev.Write(b)
		if err != nil {
			p.fail(dev, err)
			return &ConnectionError{Port: p.Name(), Op: "write", Err: err}
		}
		b = b[n:]
	}
	return nil
}

// Acquire marks the link Busy for one handshake.
func (p *Port) Acquire() error {
	if !p.state.TransitionFrom(StateConnected, StateBusy) {
		return &ConnectionError{Port: p.Name(), Op: "acquire", Err: domain.ErrNotConnected}
	}
	return nil
}

// Release returns a Busy link to Connected. A link that failed mid-handshake
// stays where fail left it.
func (p *Port) Release() {
	p.state.TransitionFrom(StateBusy, StateConnected)
}
