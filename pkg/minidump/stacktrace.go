package minidump

import (
	"encoding/binary"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

// stackTraceHeaderSize, rawThreadSize, rawFrameSize describe the custom
// stacktrace stream's fixed-size records: a 16-byte header, followed by
// one 16-byte RawThread per captured thread, one 16-byte RawFrame per
// captured frame, and a trailing pool of raw symbol-name bytes referenced
// by offset/length from each RawFrame.
const (
	stackTraceHeaderSize = 16
	rawThreadSize        = 16
	rawFrameSize         = 16
	stackTraceVersion    = 1
)

// Frame is one stack frame: an instruction address and an optional resolved
// symbol name (empty if unresolved).
type Frame struct {
	InstructionAddr uint64
	Symbol          string
}

// StackTraceListWriter writes the StackTraceList stream: a compact,
// non-Microsoft layout carrying one or more threads' unwound stack traces
// plus a shared pool of symbol-name bytes.
type StackTraceListWriter struct {
	node

	threads     []rawThread
	frames      []rawFrame
	symbolBytes []byte
}

type rawThread struct {
	threadID   uint64
	startFrame uint32
	numFrames  uint32
}

type rawFrame struct {
	instructionAddr uint64
	symbolOffset    uint32
	symbolLen       uint32
}

// NewStackTraceListWriter returns an empty StackTraceList stream.
func NewStackTraceListWriter() *StackTraceListWriter {
	return &StackTraceListWriter{}
}

// AddThread appends one thread's stack trace. frames is copied; threads
// and frames are recorded in insertion order, matching the order passed
// here.
func (s *StackTraceListWriter) AddThread(threadID uint64, frames []Frame) {
	t := rawThread{threadID: threadID, startFrame: uint32(len(s.frames))}
	for _, f := range frames {
		rf := rawFrame{
			instructionAddr: f.InstructionAddr,
			symbolOffset:    uint32(len(s.symbolBytes)),
			symbolLen:       uint32(len(f.Symbol)),
		}
		s.symbolBytes = append(s.symbolBytes, f.Symbol...)
		s.frames = append(s.frames, rf)
	}
	t.numFrames = uint32(len(s.frames)) - t.startFrame
	s.threads = append(s.threads, t)
}

// AddThreadFromSnapshot is a convenience wrapper over AddThread taking a
// snapshot.Thread directly; frames must be supplied separately since
// snapshot.Thread does not itself carry unwound stack frames.
func (s *StackTraceListWriter) AddThreadFromSnapshot(t snapshot.Thread, frames []Frame) {
	s.AddThread(uint64(t.ThreadID), frames)
}

func (s *StackTraceListWriter) StreamType() StreamType { return StreamStackTraceList }

func (s *StackTraceListWriter) freeze() error { s.freezeOnce(); return nil }

func (s *StackTraceListWriter) children() []writable { return nil }

// alignment is 8: every record in this stream is built from 64-bit fields.
func (s *StackTraceListWriter) alignment() uint32 { return 8 }

func (s *StackTraceListWriter) sizeOfObject() uint32 {
	return stackTraceHeaderSize +
		uint32(len(s.threads))*rawThreadSize +
		uint32(len(s.frames))*rawFrameSize +
		uint32(len(s.symbolBytes))
}

func (s *StackTraceListWriter) writeObject(w dumpio.Writer) error {
	buf := make([]byte, 0, s.sizeOfObject())

	buf = binary.LittleEndian.AppendUint32(buf, stackTraceVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.threads)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.frames)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.symbolBytes)))

	for _, t := range s.threads {
		buf = binary.LittleEndian.AppendUint64(buf, t.threadID)
		buf = binary.LittleEndian.AppendUint32(buf, t.startFrame)
		buf = binary.LittleEndian.AppendUint32(buf, t.numFrames)
	}
	for _, f := range s.frames {
		buf = binary.LittleEndian.AppendUint64(buf, f.instructionAddr)
		buf = binary.LittleEndian.AppendUint32(buf, f.symbolOffset)
		buf = binary.LittleEndian.AppendUint32(buf, f.symbolLen)
	}
	buf = append(buf, s.symbolBytes...)

	return w.Write(buf)
}

var _ streamWriter = (*StackTraceListWriter)(nil)
