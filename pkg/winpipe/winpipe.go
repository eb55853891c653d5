//go:build windows

// Package winpipe implements pipestate.PipeTransport over a real Windows
// named pipe, using overlapped I/O so a pending operation can be
// canceled when the caller's context is done.
//
// This is the one piece of the registration protocol that cannot be
// exercised on a non-Windows build; pipestate and winreg carry the
// portable logic and are fully tested without this package.
package winpipe

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/crashvault/minidump/pkg/pipestate"
	"github.com/crashvault/minidump/pkg/winreg"
)

var _ pipestate.PipeTransport = (*Transport)(nil)

const (
	outBufferSize = 4096
	inBufferSize  = 4096
)

// Transport is one named-pipe instance, created with FILE_FLAG_OVERLAPPED
// so every blocking operation below can be canceled via CancelIoEx when
// the caller's context is done.
type Transport struct {
	pipeName  string
	handle    windows.Handle
	clientPID uint32
}

// New creates a pipe instance listening on pipeName. The pipe is not yet
// connected to any client; call Connect to accept one.
func New(pipeName string) (*Transport, error) {
	name, err := windows.UTF16PtrFromString(pipeName)
	if err != nil {
		return nil, fmt.Errorf("winpipe: encode pipe name: %w", err)
	}

	var sa windows.SecurityAttributes
	sa.Length = uint32(unsafeSizeofSA)

	handle, err := windows.CreateNamedPipe(
		name,
		windows.PIPE_ACCESS_DUPLEX|windows.FILE_FLAG_OVERLAPPED,
		windows.PIPE_TYPE_MESSAGE|windows.PIPE_READMODE_MESSAGE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES,
		outBufferSize,
		inBufferSize,
		0,
		&sa,
	)
	if err != nil {
		return nil, fmt.Errorf("winpipe: CreateNamedPipe %q: %w", pipeName, err)
	}

	return &Transport{pipeName: pipeName, handle: handle}, nil
}

// unsafeSizeofSA is the size of windows.SecurityAttributes on the target
// architecture (Length uint32 + SecurityDescriptor pointer + InheritHandle
// uint32, padded to pointer size): 12 bytes on 32-bit, 24 on 64-bit.
const unsafeSizeofSA = unsafe.Sizeof(windows.SecurityAttributes{})

// runOverlapped issues one overlapped operation (supplied by issue) and
// waits for it to complete or ctx to be done, canceling the operation
// with CancelIoEx in the latter case.
func runOverlapped(ctx context.Context, handle windows.Handle, issue func(ov *windows.Overlapped) error) (uint32, error) {
	event, err := windows.CreateEvent(nil, 1 /* manual reset */, 0, nil)
	if err != nil {
		return 0, fmt.Errorf("winpipe: CreateEvent: %w", err)
	}
	defer windows.CloseHandle(event)

	ov := &windows.Overlapped{HEvent: event}

	issueErr := issue(ov)
	if issueErr != nil && !errors.Is(issueErr, windows.ERROR_IO_PENDING) {
		return 0, issueErr
	}

	done := make(chan struct{})
	var waitErr error
	var bytes uint32

	go func() {
		defer close(done)
		waitErr = windows.GetOverlappedResult(handle, ov, &bytes, true)
	}()

	select {
	case <-done:
		return bytes, waitErr
	case <-ctx.Done():
		_ = windows.CancelIoEx(handle, ov)
		<-done
		return bytes, ctx.Err()
	}
}

// Connect blocks until a client connects to the pipe.
func (t *Transport) Connect(ctx context.Context) error {
	_, err := runOverlapped(ctx, t.handle, func(ov *windows.Overlapped) error {
		return windows.ConnectNamedPipe(t.handle, ov)
	})
	if err != nil && errors.Is(err, windows.ERROR_PIPE_CONNECTED) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("winpipe: connect: %w", err)
	}

	pid, pidErr := windows.GetNamedPipeClientProcessId(t.handle)
	if pidErr != nil {
		return fmt.Errorf("winpipe: get client pid: %w", pidErr)
	}
	t.clientPID = uint32(pid)

	return nil
}

// ClientProcessID returns the connected client's verified process id.
func (t *Transport) ClientProcessID() (uint32, error) {
	return t.clientPID, nil
}

// ReadRequest reads exactly one wire-format registration request. A
// short or long read is reported as a protocol error (scenario F), not
// a transport failure.
func (t *Transport) ReadRequest(ctx context.Context) ([]byte, error) {
	buf := make([]byte, winreg.RequestSize+1)

	n, err := runOverlapped(ctx, t.handle, func(ov *windows.Overlapped) error {
		return windows.ReadFile(t.handle, buf, nil, ov)
	})
	if err != nil && !errors.Is(err, windows.ERROR_MORE_DATA) {
		return nil, fmt.Errorf("winpipe: read: %w", err)
	}

	return buf[:n], nil
}

// WriteResponse writes one wire-format registration response.
func (t *Transport) WriteResponse(ctx context.Context, resp []byte) error {
	_, err := runOverlapped(ctx, t.handle, func(ov *windows.Overlapped) error {
		return windows.WriteFile(t.handle, resp, nil, ov)
	})
	if err != nil {
		return fmt.Errorf("winpipe: write: %w", err)
	}
	return nil
}

// WaitForClose blocks until the connected client disconnects, which
// Windows surfaces as a zero-byte read completing with ERROR_BROKEN_PIPE.
func (t *Transport) WaitForClose(ctx context.Context) error {
	buf := make([]byte, 1)
	_, err := runOverlapped(ctx, t.handle, func(ov *windows.Overlapped) error {
		return windows.ReadFile(t.handle, buf, nil, ov)
	})
	if err != nil && errors.Is(err, windows.ERROR_BROKEN_PIPE) {
		return nil
	}
	return err
}

// Reset disconnects the current client and prepares the instance to
// accept a new connection via Connect.
func (t *Transport) Reset() error {
	if err := windows.DisconnectNamedPipe(t.handle); err != nil {
		return fmt.Errorf("winpipe: disconnect: %w", err)
	}
	t.clientPID = 0
	return nil
}

// Close releases the pipe instance's handle.
func (t *Transport) Close() error {
	return windows.CloseHandle(t.handle)
}
