// Package pipestate implements the portable per-pipe state machine behind
// the Windows client registration protocol: Listening, Reading, Writing,
// and WaitingForClose, with explicit transitions driven by a completion
// loop rather than by chained callbacks.
//
// The state machine itself has no Windows dependency; it is driven
// through the [PipeTransport] interface so it can be exercised with a
// fake transport in tests. The real named-pipe/overlapped-I/O transport
// lives in pkg/winpipe, built only on windows.
package pipestate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crashvault/minidump/pkg/winreg"
)

// ErrProtocol is returned when a request frame fails to decode.
var ErrProtocol = winreg.ErrProtocol

// ErrStopped is returned by Run when its context was canceled (or its
// deadline passed) and the run loop exited cleanly rather than due to a
// transport failure. There is no separate Stop method: canceling the
// context is how a pipe instance is stopped.
var ErrStopped = errors.New("pipestate: stopped")

// ErrPIDMismatch is logged (not returned from Run) when a request's
// self-reported ClientProcessID does not match the pipe's verified peer
// process id. The pipe instance resets rather than honoring the request.
var ErrPIDMismatch = errors.New("pipestate: client process id mismatch")

// State names one position in the per-pipe lifecycle. A pipe instance
// only ever moves Listening -> Reading -> Writing -> WaitingForClose ->
// Listening (a successful round trip) or Listening -> Reading ->
// Listening (a malformed request, scenario F) until Run returns, which
// moves it to Terminal.
type State int

const (
	Listening State = iota
	Reading
	Writing
	WaitingForClose
	Terminal
)

func (s State) String() string {
	switch s {
	case Listening:
		return "Listening"
	case Reading:
		return "Reading"
	case Writing:
		return "Writing"
	case WaitingForClose:
		return "WaitingForClose"
	case Terminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// PipeTransport is the I/O surface one pipe instance is driven through.
// Every method blocks until its operation completes or ctx is canceled;
// there is no overlapped/completion-port detail visible here, since that
// machinery belongs to the concrete transport (pkg/winpipe on Windows).
type PipeTransport interface {
	// Connect blocks until a client connects.
	Connect(ctx context.Context) error

	// ClientProcessID returns the connected client's process id. Valid
	// only after Connect has returned successfully.
	ClientProcessID() (uint32, error)

	// ReadRequest reads one request frame. A frame of the wrong length may
	// be returned as is (PipeState's decode then rejects it) or as an error
	// wrapping ErrProtocol; either way it is not a transport failure, and
	// the pipe instance recovers via Reset rather than ending Run.
	ReadRequest(ctx context.Context) ([]byte, error)

	// WriteResponse writes one wire-format response frame.
	WriteResponse(ctx context.Context, resp []byte) error

	// WaitForClose blocks until the connected client disconnects.
	WaitForClose(ctx context.Context) error

	// Reset disconnects any connected client and prepares the pipe
	// instance to accept a new connection via Connect.
	Reset() error
}

// Delegate handles registration requests once a request has been
// successfully decoded.
type Delegate interface {
	// OnStarted is called once, before the first Connect.
	OnStarted()

	// RegisterClient responds to one registration request. clientPID is
	// the pipe-verified process id of the connecting client (not the
	// client_process_id field from the request itself, which a malicious
	// or confused client could misreport).
	RegisterClient(clientPID uint32, crashpadInfoAddress uint64) (requestReportEvent, reportCompleteEvent uint32, err error)
}

// PipeState drives one pipe instance through its state machine until the
// context passed to Run is canceled or the transport reports a permanent
// failure.
type PipeState struct {
	transport PipeTransport
	delegate  Delegate
	log       *slog.Logger

	state           State
	pendingResponse []byte
}

// New returns a PipeState ready to Run. log may be nil, in which case
// slog.Default() is used.
func New(transport PipeTransport, delegate Delegate, log *slog.Logger) *PipeState {
	if log == nil {
		log = slog.Default()
	}
	return &PipeState{transport: transport, delegate: delegate, log: log, state: Listening}
}

// State returns the instance's current state.
func (p *PipeState) State() State { return p.state }

// Run drives the state machine until ctx is canceled or the transport
// reports an error that is not a protocol error. Protocol errors (a
// malformed request) are logged and recovered from by returning to
// Listening, per scenario F; they never stop the loop.
func (p *PipeState) Run(ctx context.Context) error {
	p.delegate.OnStarted()

	for {
		select {
		case <-ctx.Done():
			p.state = Terminal
			return ErrStopped
		default:
		}

		if err := p.step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.state = Terminal
				return ErrStopped
			}
			p.state = Terminal
			return err
		}
	}
}

// step executes exactly one state transition.
func (p *PipeState) step(ctx context.Context) error {
	switch p.state {
	case Listening:
		if err := p.transport.Connect(ctx); err != nil {
			return fmt.Errorf("pipestate: connect: %w", err)
		}
		p.state = Reading
		return nil

	case Reading:
		raw, err := p.transport.ReadRequest(ctx)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				p.log.Warn("malformed registration request", "error", err)
				return p.resetToListening()
			}
			return fmt.Errorf("pipestate: read: %w", err)
		}

		req, err := winreg.DecodeRequest(raw)
		if err != nil {
			p.log.Warn("malformed registration request", "error", err)
			return p.resetToListening()
		}

		clientPID, err := p.transport.ClientProcessID()
		if err != nil {
			return fmt.Errorf("pipestate: client process id: %w", err)
		}

		if req.ClientProcessID != clientPID {
			p.log.Warn("registration request PID mismatch",
				"error", ErrPIDMismatch, "claimed_pid", req.ClientProcessID, "verified_pid", clientPID)
			return p.resetToListening()
		}

		reportEvent, completeEvent, err := p.delegate.RegisterClient(clientPID, req.CrashpadInfoAddress)
		if err != nil {
			p.log.Warn("registration request rejected by delegate", "error", err, "client_pid", clientPID)
			return p.resetToListening()
		}

		resp := winreg.Response{RequestReportEvent: reportEvent, ReportCompleteEvent: completeEvent}
		p.pendingResponse = resp.Encode()
		p.state = Writing
		return nil

	case Writing:
		if err := p.transport.WriteResponse(ctx, p.pendingResponse); err != nil {
			return fmt.Errorf("pipestate: write: %w", err)
		}
		p.pendingResponse = nil
		p.state = WaitingForClose
		return nil

	case WaitingForClose:
		if err := p.transport.WaitForClose(ctx); err != nil {
			p.log.Debug("wait for client close ended", "error", err)
		}
		return p.resetToListening()

	default:
		return fmt.Errorf("pipestate: step called in terminal state %s", p.state)
	}
}

func (p *PipeState) resetToListening() error {
	if err := p.transport.Reset(); err != nil {
		return fmt.Errorf("pipestate: reset: %w", err)
	}
	p.state = Listening
	return nil
}
