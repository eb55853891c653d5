// Package winreg implements the wire format for the Windows client
// registration protocol: a client sends a fixed-size Request naming its
// process id and the address of its info structure, and the server
// replies with a fixed-size Response carrying two event handle values.
//
// Both structures are packed with no implicit padding, mirroring the
// `#pragma pack(1)` layout of the structures this protocol is modeled on.
package winreg

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrProtocol is returned for any malformed request or response frame:
// wrong length, or (for future extension) an unrecognized field value.
var ErrProtocol = errors.New("winreg: protocol error")

// RequestSize and ResponseSize are the exact wire sizes of Request and
// Response; any frame read that is shorter or longer is rejected.
const (
	RequestSize  = 4 + 8 // client_process_id(u32) + crashpad_info_address(u64)
	ResponseSize = 4 + 4 // request_report_event(u32) + report_complete_event(u32)
)

// Request is a client registration request.
type Request struct {
	ClientProcessID     uint32
	CrashpadInfoAddress uint64
}

// Encode returns the RequestSize-byte wire form of r.
func (r Request) Encode() []byte {
	buf := make([]byte, RequestSize)
	binary.LittleEndian.PutUint32(buf[0:], r.ClientProcessID)
	binary.LittleEndian.PutUint64(buf[4:], r.CrashpadInfoAddress)
	return buf
}

// DecodeRequest parses a wire-format Request. An input of any length other
// than RequestSize is rejected (scenario F: a malformed request is too
// short or too long).
func DecodeRequest(b []byte) (Request, error) {
	if len(b) != RequestSize {
		return Request{}, fmt.Errorf("%w: request is %d bytes, want %d", ErrProtocol, len(b), RequestSize)
	}
	return Request{
		ClientProcessID:     binary.LittleEndian.Uint32(b[0:]),
		CrashpadInfoAddress: binary.LittleEndian.Uint64(b[4:]),
	}, nil
}

// Response is a client registration response. Both handle fields are
// 32-bit HANDLE values as seen by the client process; a 64-bit client is
// expected to sign-extend them when converting back to a HANDLE (an
// Open Question this protocol leaves to the handle's producer, recorded
// in DESIGN.md rather than guessed at here).
type Response struct {
	RequestReportEvent  uint32
	ReportCompleteEvent uint32
}

// Encode returns the ResponseSize-byte wire form of r.
func (r Response) Encode() []byte {
	buf := make([]byte, ResponseSize)
	binary.LittleEndian.PutUint32(buf[0:], r.RequestReportEvent)
	binary.LittleEndian.PutUint32(buf[4:], r.ReportCompleteEvent)
	return buf
}

// DecodeResponse parses a wire-format Response.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) != ResponseSize {
		return Response{}, fmt.Errorf("%w: response is %d bytes, want %d", ErrProtocol, len(b), ResponseSize)
	}
	return Response{
		RequestReportEvent:  binary.LittleEndian.Uint32(b[0:]),
		ReportCompleteEvent: binary.LittleEndian.Uint32(b[4:]),
	}, nil
}
