package minidump

import (
	"encoding/binary"
	"fmt"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

const memoryDescriptorSize = 16 // StartOfMemoryRange(u64) + LocationDescriptor(u32+u32)

// memoryRegionWriter is a leaf Writable for one captured memory blob. Its
// bytes come from invoking region.Reader during pass 2; a reader failure
// fails the entire dump write (§4.3.7).
//
// A single memoryRegionWriter may be referenced from more than one place
// (a thread's stack descriptor and a MemoryList entry): whichever parent
// adds it to its own children() owns it; every other referrer only calls
// registerLocationDescriptor on the same instance. ownedByMemoryList
// records which case applies so ThreadWriter knows whether to still list
// it among its own children.
type memoryRegionWriter struct {
	node
	region            snapshot.MemoryRegion
	ownedByMemoryList bool
}

func newMemoryRegionWriter(region snapshot.MemoryRegion) *memoryRegionWriter {
	return &memoryRegionWriter{region: region}
}

func (m *memoryRegionWriter) freeze() error { m.freezeOnce(); return nil }

func (m *memoryRegionWriter) children() []writable { return nil }

func (m *memoryRegionWriter) sizeOfObject() uint32 { return m.region.Size }

func (m *memoryRegionWriter) writeObject(w dumpio.Writer) error {
	data, err := m.region.Reader()
	if err != nil {
		return fmt.Errorf("read memory region at %#x: %w", m.region.BaseAddress, err)
	}
	if uint32(len(data)) != m.region.Size {
		return fmt.Errorf("%w: memory region at %#x: reader returned %d bytes, expected %d",
			ErrFormat, m.region.BaseAddress, len(data), m.region.Size)
	}
	return w.Write(data)
}

// memoryRegistry interns memoryRegionWriters by (address, size) so the same
// underlying range referenced from more than one place in the snapshot
// (e.g. a thread's stack and the process's extra-memory set) is written
// exactly once, per the deduplication invariant in §3.2.
type memoryRegistry struct {
	byIdentity map[[2]uint64]*memoryRegionWriter
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{byIdentity: make(map[[2]uint64]*memoryRegionWriter)}
}

func (r *memoryRegistry) get(region snapshot.MemoryRegion) *memoryRegionWriter {
	addr, size := region.Identity()
	key := [2]uint64{addr, uint64(size)}
	if existing, ok := r.byIdentity[key]; ok {
		return existing
	}
	w := newMemoryRegionWriter(region)
	r.byIdentity[key] = w
	return w
}

// MemoryListWriter writes the MemoryList stream: a MINIDUMP_MEMORY_LIST
// header (count) followed by count MINIDUMP_MEMORY_DESCRIPTOR entries, one
// per explicitly preserved memory region.
type MemoryListWriter struct {
	node

	owned  []*memoryRegionWriter // regions this list itself owns as children
	shared []*memoryRegionWriter // regions owned elsewhere, referenced only
	added  map[*memoryRegionWriter]bool // dedup guard shared by AddMemory/addExtraMemory

	descriptors []memoryDescriptorEntry
}

type memoryDescriptorEntry struct {
	startOfRange uint64
	loc          LocationDescriptor
}

// NewMemoryListWriter returns an empty MemoryList stream.
func NewMemoryListWriter() *MemoryListWriter {
	return &MemoryListWriter{}
}

// AddMemory adds a region this MemoryListWriter owns outright (e.g. a
// process-level extra memory region not shared with any thread's stack).
// A no-op if w was already added (by identity) via AddMemory or
// addExtraMemory, so a caller-supplied region that happens to coincide
// with an already-registered thread stack is still written exactly once.
func (ml *MemoryListWriter) AddMemory(w *memoryRegionWriter) {
	if ml.added == nil {
		ml.added = make(map[*memoryRegionWriter]bool)
	}
	if ml.added[w] {
		return
	}
	ml.added[w] = true
	ml.owned = append(ml.owned, w)
}

// addExtraMemory references a region owned by some other node (typically a
// ThreadWriter's stack), adding an entry to this list without taking
// ownership of the child. If w was already added, no second entry is made.
func (ml *MemoryListWriter) addExtraMemory(w *memoryRegionWriter) {
	if ml.added == nil {
		ml.added = make(map[*memoryRegionWriter]bool)
	}
	// Set even when w is already listed (e.g. via AddMemory): this list
	// places w in the tree either way, so the thread must not place it too.
	w.ownedByMemoryList = true
	if ml.added[w] {
		return
	}
	ml.added[w] = true
	ml.shared = append(ml.shared, w)
}

func (ml *MemoryListWriter) StreamType() StreamType { return StreamMemoryList }

func (ml *MemoryListWriter) freeze() error {
	if !ml.freezeOnce() {
		return nil
	}

	all := append(append([]*memoryRegionWriter{}, ml.owned...), ml.shared...)
	ml.descriptors = make([]memoryDescriptorEntry, len(all))

	for i, region := range all {
		i, region := i, region
		startAddr := region.region.BaseAddress
		region.registerLocationDescriptor(func(loc LocationDescriptor) {
			ml.descriptors[i] = memoryDescriptorEntry{startOfRange: startAddr, loc: loc}
		})
	}

	return nil
}

// children places both regions this list owns outright and regions shared
// with some other node (e.g. a thread's stack): once addExtraMemory has
// marked a region ownedByMemoryList, the originating node no longer lists
// it among its own children, so this list must carry it in the tree or it
// would never be laid out or written at all.
func (ml *MemoryListWriter) children() []writable {
	out := make([]writable, 0, len(ml.owned)+len(ml.shared))
	for _, w := range ml.owned {
		out = append(out, w)
	}
	for _, w := range ml.shared {
		out = append(out, w)
	}
	return out
}

func (ml *MemoryListWriter) sizeOfObject() uint32 {
	all := len(ml.owned) + len(ml.shared)
	return 4 + uint32(all)*memoryDescriptorSize
}

func (ml *MemoryListWriter) writeObject(w dumpio.Writer) error {
	count := len(ml.owned) + len(ml.shared)
	buf := make([]byte, 4+count*memoryDescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(count))
	for i, d := range ml.descriptors {
		off := 4 + i*memoryDescriptorSize
		binary.LittleEndian.PutUint64(buf[off:], d.startOfRange)
		binary.LittleEndian.PutUint32(buf[off+8:], d.loc.DataSize)
		binary.LittleEndian.PutUint32(buf[off+12:], d.loc.RVA)
	}
	return w.Write(buf)
}

var (
	_ writable     = (*memoryRegionWriter)(nil)
	_ streamWriter = (*MemoryListWriter)(nil)
)
