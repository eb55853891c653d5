package minidump

import (
	"encoding/binary"
	"fmt"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

const threadEntrySize = 48 // see encode() below for field-by-field layout

// ThreadWriter is the writer for one MINIDUMP_THREAD entry. It does not
// write any bytes of its own beyond what ThreadListWriter copies into the
// list; its job is to own (or reference) its CPU context and stack memory
// children and make its final entry bytes available to its parent.
type ThreadWriter struct {
	node

	threadID      uint32
	suspendCount  uint32
	priorityClass uint32
	priority      uint32
	teb           uint64

	context *contextWriter
	stack   *memoryRegionWriter // nil if the thread has no captured stack

	contextLoc LocationDescriptor
	stackLoc   LocationDescriptor
}

// NewThreadWriter builds a ThreadWriter from a snapshot.Thread. The thread
// must have a CpuContext; §3.2 requires every Thread to carry one.
func NewThreadWriter(t snapshot.Thread) *ThreadWriter {
	tw := &ThreadWriter{
		threadID:      t.ThreadID,
		suspendCount:  t.SuspendCount,
		priorityClass: t.PriorityClass,
		priority:      t.Priority,
		teb:           t.TEBAddress,
		context:       newContextWriter(t.Context),
	}
	return tw
}

// setStackWriter attaches a (possibly shared) memory region writer as this
// thread's stack. Used by assembly helpers that build ThreadWriter and
// MemoryListWriter together from a snapshot.Process.
func (tw *ThreadWriter) setStackWriter(mw *memoryRegionWriter) {
	tw.stack = mw
}

func (tw *ThreadWriter) freeze() error {
	if !tw.freezeOnce() {
		return nil
	}
	tw.context.registerLocationDescriptor(func(loc LocationDescriptor) {
		tw.contextLoc = loc
	})
	if tw.stack != nil {
		tw.stack.registerLocationDescriptor(func(loc LocationDescriptor) {
			tw.stackLoc = loc
		})
	}
	return nil
}

func (tw *ThreadWriter) children() []writable {
	children := []writable{tw.context}
	if tw.stack != nil && !tw.stack.ownedByMemoryList {
		children = append(children, tw.stack)
	}
	return children
}

// sizeOfObject is 0: a ThreadWriter contributes no bytes of its own. Its
// encoded entry is pulled by ThreadListWriter once offsets are resolved.
func (tw *ThreadWriter) sizeOfObject() uint32 { return 0 }

func (tw *ThreadWriter) writeObject(dumpio.Writer) error { return nil }

// encode produces this thread's 48-byte MINIDUMP_THREAD entry. Valid only
// after layout has resolved contextLoc (and stackLoc, if present).
func (tw *ThreadWriter) encode() []byte {
	buf := make([]byte, threadEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], tw.threadID)
	binary.LittleEndian.PutUint32(buf[4:], tw.suspendCount)
	binary.LittleEndian.PutUint32(buf[8:], tw.priorityClass)
	binary.LittleEndian.PutUint32(buf[12:], tw.priority)
	binary.LittleEndian.PutUint64(buf[16:], tw.teb)
	// Stack: MINIDUMP_MEMORY_DESCRIPTOR {StartOfMemoryRange u64, Memory loc}
	if tw.stack != nil {
		binary.LittleEndian.PutUint64(buf[24:], tw.stack.region.BaseAddress)
		binary.LittleEndian.PutUint32(buf[32:], tw.stackLoc.DataSize)
		binary.LittleEndian.PutUint32(buf[36:], tw.stackLoc.RVA)
	}
	binary.LittleEndian.PutUint32(buf[40:], tw.contextLoc.DataSize)
	binary.LittleEndian.PutUint32(buf[44:], tw.contextLoc.RVA)
	return buf
}

// ThreadListWriter writes the ThreadList stream: a count followed by
// fixed-size MINIDUMP_THREAD entries.
type ThreadListWriter struct {
	node

	threads         []*ThreadWriter
	memoryListWriter *MemoryListWriter
}

// NewThreadListWriter returns an empty ThreadList stream.
func NewThreadListWriter() *ThreadListWriter {
	return &ThreadListWriter{}
}

// SetMemoryListWriter arranges for every thread's stack (added from this
// point forward) to also be referenced from ml's MemoryList entries,
// without duplicating the underlying bytes (§4.3.4). Must be called before
// AddThread for the threads it should apply to.
func (tl *ThreadListWriter) SetMemoryListWriter(ml *MemoryListWriter) {
	tl.memoryListWriter = ml
}

// AddThread appends tw to the list. If a MemoryListWriter was configured
// via SetMemoryListWriter and tw has a stack, the stack becomes a shared
// reference: MemoryListWriter takes ownership for tree-placement purposes,
// tw keeps only a back-patch registration on the same node.
func (tl *ThreadListWriter) AddThread(tw *ThreadWriter) {
	if tl.memoryListWriter != nil && tw.stack != nil {
		tl.memoryListWriter.addExtraMemory(tw.stack)
	}
	tl.threads = append(tl.threads, tw)
}

func (tl *ThreadListWriter) StreamType() StreamType { return StreamThreadList }

func (tl *ThreadListWriter) freeze() error { tl.freezeOnce(); return nil }

func (tl *ThreadListWriter) children() []writable {
	out := make([]writable, len(tl.threads))
	for i, t := range tl.threads {
		out[i] = t
	}
	return out
}

func (tl *ThreadListWriter) sizeOfObject() uint32 {
	return 4 + uint32(len(tl.threads))*threadEntrySize
}

func (tl *ThreadListWriter) writeObject(w dumpio.Writer) error {
	buf := make([]byte, 4, 4+len(tl.threads)*threadEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(tl.threads)))
	for _, t := range tl.threads {
		if t.context == nil {
			return fmt.Errorf("%w: thread %d has no CPU context", ErrFormat, t.threadID)
		}
		buf = append(buf, t.encode()...)
	}
	return w.Write(buf)
}

var (
	_ writable     = (*ThreadWriter)(nil)
	_ streamWriter = (*ThreadListWriter)(nil)
)
