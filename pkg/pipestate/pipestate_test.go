package pipestate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/pipestate"
	"github.com/crashvault/minidump/pkg/winreg"
)

// fakeTransport drives pipestate.PipeState entirely in-process: a test
// feeds it connections and request frames through channels instead of
// real named pipes.
type fakeTransport struct {
	mu sync.Mutex

	connects  chan struct{}
	requests  chan []byte
	responses chan []byte
	closes    chan struct{}
	resets    int
	pid       uint32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connects:  make(chan struct{}, 8),
		requests:  make(chan []byte, 8),
		responses: make(chan []byte, 8),
		closes:    make(chan struct{}, 8),
		pid:       4242,
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	select {
	case <-f.connects:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) ClientProcessID() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pid, nil
}

func (f *fakeTransport) ReadRequest(ctx context.Context) ([]byte, error) {
	select {
	case r := <-f.requests:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) WriteResponse(ctx context.Context, resp []byte) error {
	select {
	case f.responses <- resp:
		return nil
	default:
		return errors.New("fakeTransport: responses channel full")
	}
}

func (f *fakeTransport) WaitForClose(ctx context.Context) error {
	select {
	case <-f.closes:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Reset() error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return nil
}

type fakeDelegate struct {
	started bool
	calls   []uint64
}

func (d *fakeDelegate) OnStarted() { d.started = true }

func (d *fakeDelegate) RegisterClient(clientPID uint32, crashpadInfoAddress uint64) (uint32, uint32, error) {
	d.calls = append(d.calls, crashpadInfoAddress)
	return 0x10, 0x20, nil
}

func Test_PipeState_HappyPath_ReturnsToListening(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	delegate := &fakeDelegate{}
	ps := pipestate.New(transport, delegate, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ps.Run(ctx) }()

	req := winreg.Request{ClientProcessID: transport.pid, CrashpadInfoAddress: 0xabc}
	transport.connects <- struct{}{}
	transport.requests <- req.Encode()
	transport.closes <- struct{}{}

	var resp []byte
	select {
	case resp = <-transport.responses:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	got, err := winreg.DecodeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10), got.RequestReportEvent)
	assert.Equal(t, uint32(0x20), got.ReportCompleteEvent)

	assert.Eventually(t, func() bool { return ps.State() == pipestate.Listening }, time.Second, time.Millisecond)
	assert.True(t, delegate.started)
	assert.Equal(t, []uint64{0xabc}, delegate.calls)

	cancel()
	err = <-done
	assert.ErrorIs(t, err, pipestate.ErrStopped)
}

func Test_PipeState_MalformedRequest_ResetsAndRecovers(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	delegate := &fakeDelegate{}
	ps := pipestate.New(transport, delegate, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ps.Run(ctx) }()

	transport.connects <- struct{}{}
	transport.requests <- []byte("too short")

	transport.connects <- struct{}{}
	goodReq := winreg.Request{ClientProcessID: transport.pid, CrashpadInfoAddress: 0x1}
	transport.requests <- goodReq.Encode()
	transport.closes <- struct{}{}

	select {
	case <-transport.responses:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response after recovery")
	}

	transport.mu.Lock()
	resets := transport.resets
	transport.mu.Unlock()
	assert.GreaterOrEqual(t, resets, 1)

	cancel()
	<-done
}

func Test_PipeState_ClientPIDMismatch_ResetsAndRecovers(t *testing.T) {
	t.Parallel()

	transport := newFakeTransport()
	delegate := &fakeDelegate{}
	ps := pipestate.New(transport, delegate, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ps.Run(ctx) }()

	// claimed pid (99) does not match the transport's verified peer pid
	// (transport.pid, 4242): the request must be rejected without ever
	// reaching the delegate.
	transport.connects <- struct{}{}
	badReq := winreg.Request{ClientProcessID: 99, CrashpadInfoAddress: 0xdead}
	transport.requests <- badReq.Encode()

	transport.connects <- struct{}{}
	goodReq := winreg.Request{ClientProcessID: transport.pid, CrashpadInfoAddress: 0xbeef}
	transport.requests <- goodReq.Encode()
	transport.closes <- struct{}{}

	select {
	case <-transport.responses:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response after recovery")
	}

	transport.mu.Lock()
	resets := transport.resets
	transport.mu.Unlock()
	assert.GreaterOrEqual(t, resets, 1)

	assert.Equal(t, []uint64{0xbeef}, delegate.calls)

	cancel()
	<-done
}
