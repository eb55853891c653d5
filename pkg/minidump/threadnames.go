package minidump

import (
	"encoding/binary"

	"github.com/crashvault/minidump/pkg/dumpio"
)

const threadNameEntrySize = 12 // ThreadId(u32) + RvaOfThreadName(u64)

// threadNameEntry pairs a thread id with its name string, whose RVA is
// resolved once the name blob has been laid out.
type threadNameEntry struct {
	threadID uint32
	name     *utf16String
	nameRVA  uint32
}

// ThreadNameListWriter writes the ThreadNameList stream: a count followed
// by {thread_id, name_rva} entries, with the UTF-16 name blobs themselves
// as children.
type ThreadNameListWriter struct {
	node
	entries []*threadNameEntry
}

// NewThreadNameListWriter returns an empty ThreadNameList stream.
func NewThreadNameListWriter() *ThreadNameListWriter {
	return &ThreadNameListWriter{}
}

// AddThreadName records a thread id -> name association.
func (tn *ThreadNameListWriter) AddThreadName(threadID uint32, name string) {
	tn.entries = append(tn.entries, &threadNameEntry{threadID: threadID, name: newUTF16String(name)})
}

func (tn *ThreadNameListWriter) StreamType() StreamType { return StreamThreadNameList }

func (tn *ThreadNameListWriter) freeze() error {
	if !tn.freezeOnce() {
		return nil
	}
	for _, e := range tn.entries {
		e := e
		e.name.registerRVA(func(rva uint32) { e.nameRVA = rva })
	}
	return nil
}

func (tn *ThreadNameListWriter) children() []writable {
	out := make([]writable, len(tn.entries))
	for i, e := range tn.entries {
		out[i] = e.name
	}
	return out
}

func (tn *ThreadNameListWriter) sizeOfObject() uint32 {
	return 4 + uint32(len(tn.entries))*threadNameEntrySize
}

func (tn *ThreadNameListWriter) writeObject(w dumpio.Writer) error {
	buf := make([]byte, 4, 4+len(tn.entries)*threadNameEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(tn.entries)))
	for _, e := range tn.entries {
		off := len(buf)
		buf = append(buf, make([]byte, threadNameEntrySize)...)
		binary.LittleEndian.PutUint32(buf[off:], e.threadID)
		binary.LittleEndian.PutUint64(buf[off+4:], uint64(e.nameRVA))
	}
	return w.Write(buf)
}

var _ streamWriter = (*ThreadNameListWriter)(nil)
