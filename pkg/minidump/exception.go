package minidump

import (
	"encoding/binary"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

// MaxExceptionParameters is the platform-defined maximum number of
// exception parameters a MINIDUMP_EXCEPTION can carry (§3.1, ≥15; this
// writer uses the documented Windows value of 15).
const MaxExceptionParameters = 15

const exceptionStreamSize = 8 + exceptionRecordSize + 8 // ThreadId+align(8), record, ThreadContext(loc, 8)

// exceptionRecordSize is sizeof(MINIDUMP_EXCEPTION): ExceptionCode,
// ExceptionFlags, ExceptionRecord(u64), ExceptionAddress(u64),
// NumberParameters(u32), __alignment(u32), ExceptionInformation[15](u64).
const exceptionRecordSize = 4 + 4 + 8 + 8 + 4 + 4 + MaxExceptionParameters*8

// ExceptionStreamWriter writes the Exception stream: the faulting thread id,
// a MINIDUMP_EXCEPTION record, and a context descriptor.
type ExceptionStreamWriter struct {
	node

	threadID  uint32
	code      uint32
	flags     uint32
	address   uint64
	params    []uint64
	numParams int // true parameter count, recorded before params is padded

	context    *contextWriter
	contextLoc LocationDescriptor
}

// NewExceptionStreamWriter builds the Exception stream from a
// snapshot.Exception. Parameters beyond MaxExceptionParameters are
// truncated; fewer are zero-padded, matching scenario D in §8. numParams
// is recorded from the unpadded input so NumberParameters reflects the
// caller's actual count, not the padded slice length.
func NewExceptionStreamWriter(e snapshot.Exception) *ExceptionStreamWriter {
	numParams := len(e.Parameters)
	if numParams > MaxExceptionParameters {
		numParams = MaxExceptionParameters
	}

	params := make([]uint64, MaxExceptionParameters)
	copy(params, e.Parameters)

	return &ExceptionStreamWriter{
		threadID:  e.ThreadID,
		code:      e.ExceptionCode,
		flags:     e.ExceptionFlags,
		address:   e.ExceptionAddress,
		params:    params,
		numParams: numParams,
		context:   newContextWriter(e.Context),
	}
}

func (e *ExceptionStreamWriter) StreamType() StreamType { return StreamException }

func (e *ExceptionStreamWriter) freeze() error {
	if !e.freezeOnce() {
		return nil
	}
	e.context.registerLocationDescriptor(func(loc LocationDescriptor) { e.contextLoc = loc })
	return nil
}

func (e *ExceptionStreamWriter) children() []writable { return []writable{e.context} }

func (e *ExceptionStreamWriter) sizeOfObject() uint32 { return exceptionStreamSize }

func (e *ExceptionStreamWriter) writeObject(w dumpio.Writer) error {
	buf := make([]byte, exceptionStreamSize)
	binary.LittleEndian.PutUint32(buf[0:], e.threadID)
	// 4 bytes of alignment padding between ThreadId and ExceptionRecord.
	o := 8
	binary.LittleEndian.PutUint32(buf[o:], e.code)
	binary.LittleEndian.PutUint32(buf[o+4:], e.flags)
	binary.LittleEndian.PutUint64(buf[o+8:], 0) // ExceptionRecord (chained record address), unused
	binary.LittleEndian.PutUint64(buf[o+16:], e.address)
	binary.LittleEndian.PutUint32(buf[o+24:], uint32(e.numParams))
	// o+28..o+32 is the alignment field, left zero.
	for i := 0; i < MaxExceptionParameters; i++ {
		if i < len(e.params) {
			binary.LittleEndian.PutUint64(buf[o+32+i*8:], e.params[i])
		}
	}
	o += exceptionRecordSize
	binary.LittleEndian.PutUint32(buf[o:], e.contextLoc.DataSize)
	binary.LittleEndian.PutUint32(buf[o+4:], e.contextLoc.RVA)
	return w.Write(buf)
}

var _ streamWriter = (*ExceptionStreamWriter)(nil)
