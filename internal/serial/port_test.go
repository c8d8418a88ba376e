package serial

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/teensyrom/internal/domain"
	"github.com/mmcdole/teensyrom/internal/protocol"
)

var _ protocol.Transport = (*Port)(nil)

var errPortGone = errors.New("port gone")

// fakeDevice feeds queued chunks to Read and records writes.
type fakeDevice struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written bytes.Buffer
	resets  int
	failing bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	select {
	case b := <-d.in:
		return copy(p, b), nil
	case <-d.closed:
		return 0, errPortGone
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing {
		return 0, errPortGone
	}
	return d.written.Write(p)
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *fakeDevice) ResetInputBuffer() error {
	d.mu.Lock()
	d.resets++
	d.mu.Unlock()
	return nil
}

func openFakePort(t *testing.T) (*Port, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	p := NewPort(0, nil)
	p.open = func(name string, baud int) (device, error) { return dev, nil }
	require.NoError(t, p.SetPort("/dev/ttyACM0"))
	require.NoError(t, p.Open())
	t.Cleanup(func() { p.Close() })
	return p, dev
}

func TestPortOpenAndClose(t *testing.T) {
	p, _ := openFakePort(t)
	assert.Equal(t, StateConnected, p.State().Current())
	assert.Equal(t, "/dev/ttyACM0", p.Name())

	require.NoError(t, p.Close())
	assert.Equal(t, StateConnectable, p.State().Current())
	require.NoError(t, p.Close())
}

func TestPortOpenRequiresSelection(t *testing.T) {
	p := NewPort(0, nil)
	var connErr *ConnectionError
	assert.True(t, errors.As(p.Open(), &connErr))
	assert.Equal(t, StateDisconnected, p.State().Current())
}

func TestPortOpenFailureReturnsToConnectable(t *testing.T) {
	p := NewPort(0, nil)
	p.open = func(string, int) (device, error) { return nil, errPortGone }
	require.NoError(t, p.SetPort("COM3"))

	err := p.Open()
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "open", connErr.Op)
	assert.ErrorIs(t, err, errPortGone)
	assert.Equal(t, StateConnectable, p.State().Current())
}

func TestPortReadBuffersIncomingBytes(t *testing.T) {
	p, dev := openFakePort(t)
	dev.in <- []byte{0x64}
	dev.in <- []byte{0xCC, 'h', 'i'}

	ok, err := p.WaitForData(4, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, p.BytesAvailable())

	buf := make([]byte, 2)
	n, err := p.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0x64, 0xCC}, buf)
	assert.Equal(t, []byte("hi"), p.ReadAvailable())
	assert.Equal(t, 0, p.BytesAvailable())
}

func TestPortReadTimeoutReturnsPartial(t *testing.T) {
	p, dev := openFakePort(t)
	dev.in <- []byte{0x64}

	buf := make([]byte, 2)
	n, err := p.Read(buf, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPortReadFailureAfterPartial(t *testing.T) {
	p, dev := openFakePort(t)
	dev.in <- []byte{0x64}
	ok, err := p.WaitForData(1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	dev.Close()
	require.Eventually(t, func() bool {
		return p.State().Current() == StateConnectable
	}, time.Second, 5*time.Millisecond)

	buf := make([]byte, 2)
	n, err := p.Read(buf, 50*time.Millisecond)
	assert.Equal(t, 1, n)
	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr))
}

func TestPortDiscard(t *testing.T) {
	p, dev := openFakePort(t)
	dev.in <- []byte("stale")
	ok, _ := p.WaitForData(5, time.Second)
	require.True(t, ok)

	p.Discard()
	assert.Equal(t, 0, p.BytesAvailable())
	dev.mu.Lock()
	assert.Equal(t, 1, dev.resets)
	dev.mu.Unlock()
}

func TestPortWrite(t *testing.T) {
	p, dev := openFakePort(t)
	require.NoError(t, p.Write([]byte{0x64, 0xDD}))
	dev.mu.Lock()
	assert.Equal(t, []byte{0x64, 0xDD}, dev.written.Bytes())
	dev.mu.Unlock()
}

func TestPortWriteWhenClosed(t *testing.T) {
	p := NewPort(0, nil)
	err := p.Write([]byte{1})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestPortWriteFailureDisconnects(t *testing.T) {
	p, dev := openFakePort(t)
	dev.mu.Lock()
	dev.failing = true
	dev.mu.Unlock()

	err := p.Write([]byte{1})
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, StateConnectable, p.State().Current())

	_, err = p.WaitForData(1, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestPortReadFailureDisconnects(t *testing.T) {
	p, dev := openFakePort(t)
	states, cancel := p.State().Subscribe()
	defer cancel()
	assert.Equal(t, StateConnected, <-states)

	dev.Close()
	select {
	case s := <-states:
		assert.Equal(t, StateConnectable, s)
	case <-time.After(time.Second):
		t.Fatal("port did not report failure")
	}
}

func TestAcquireRelease(t *testing.T) {
	idle := NewPort(0, nil)
	assert.ErrorIs(t, idle.Acquire(), domain.ErrNotConnected)

	p, _ := openFakePort(t)
	require.NoError(t, p.Acquire())
	assert.Equal(t, StateBusy, p.State().Current())
	assert.Error(t, p.Acquire())
	p.Release()
	assert.Equal(t, StateConnected, p.State().Current())
}

func TestSetPortWhileOpen(t *testing.T) {
	p, _ := openFakePort(t)
	assert.Error(t, p.SetPort("/dev/other"))
}

func TestSortPortsTeensyFirst(t *testing.T) {
	ports := sortPorts([]PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM1", IsUSB: true, VID: "16c0"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341"},
	})
	assert.Equal(t, "/dev/ttyACM1", ports[0].Name)
	assert.True(t, ports[0].IsTeensy())
	assert.Equal(t, "/dev/ttyACM0", ports[1].Name)
}
