package minidump

import "github.com/crashvault/minidump/pkg/dumpio"

// writableState tracks a node's position in the forward-only lifecycle
// described by the Writable tree: a node only ever moves from mutable
// toward written, never back.
type writableState int

const (
	stateMutable writableState = iota
	stateFrozen
	stateWillWriteAtOffset
	stateWritable
	stateWritten
)

// LocationDescriptor is a forward reference to a child's final {offset,
// size} in the output file, mirroring MINIDUMP_LOCATION_DESCRIPTOR.
type LocationDescriptor struct {
	DataSize uint32
	RVA      uint32
}

// writable is the minimum interface every node in the output tree
// implements. There are no parent back-pointers anywhere in this package:
// traversal is entirely walker-driven (see layout.go), with the walker
// holding parent context on its own call stack.
type writable interface {
	// freeze locks the node against further mutation and lets it resolve
	// any internal cross-references (e.g. building a directory slice sized
	// to the number of streams). Calling freeze more than once is a no-op
	// after the first call.
	freeze() error

	// children returns this node's owned descendants, in the exact order
	// they will be laid out and emitted. Valid only from Frozen onward.
	children() []writable

	// sizeOfObject returns the node's own contribution in bytes, excluding
	// children. Valid only from Frozen onward.
	sizeOfObject() uint32

	// alignment is the byte alignment this node requires when placed as a
	// child; the walker pads with zero bytes before it to satisfy this.
	// Default is 4.
	alignment() uint32

	// writeObject emits exactly sizeOfObject() bytes: this node's own
	// contribution only. Children are emitted by the walker, not by this
	// method.
	writeObject(w dumpio.Writer) error

	// registerLocationDescriptor asks the node to invoke fn with its own
	// final {offset, size} once pass 1 has computed them, and before the
	// registering parent emits its own bytes in pass 2.
	registerLocationDescriptor(fn func(LocationDescriptor))

	// registerRVA is the RVA-only counterpart of registerLocationDescriptor,
	// used by references that only need an offset (e.g. a string pointed to
	// by an RVA field).
	registerRVA(fn func(rva uint32))

	// resolve invokes every callback registered through
	// registerLocationDescriptor and registerRVA with the node's final layout.
	resolve(loc LocationDescriptor)
}

// offsetNotifiable is implemented by nodes that need to know their own
// final offset before computing sizeOfObject (only the root [Minidump]
// needs this, to size its directory against the stream count and record
// where the directory itself begins).
type offsetNotifiable interface {
	willWriteAtOffset(offset uint32) error
}

// node is embedded by every concrete Writable to provide the shared state
// machine and back-patch bookkeeping. It is not itself a complete Writable:
// embedders must still implement children/sizeOfObject/writeObject.
type node struct {
	state writableState

	locationSetters []func(LocationDescriptor)
	rvaSetters      []func(uint32)
}

// freezeOnce transitions Mutable -> Frozen exactly once; embedders call this
// at the top of their own freeze() before doing node-specific work, and
// check the returned bool to skip re-freezing.
func (n *node) freezeOnce() (first bool) {
	if n.state >= stateFrozen {
		return false
	}
	n.state = stateFrozen
	return true
}

func (n *node) alignment() uint32 { return 4 }

func (n *node) registerLocationDescriptor(fn func(LocationDescriptor)) {
	n.locationSetters = append(n.locationSetters, fn)
}

func (n *node) registerRVA(fn func(uint32)) {
	n.rvaSetters = append(n.rvaSetters, fn)
}

// resolve invokes every callback registered on this node with its final
// layout. Called exactly once per node, by the pass-1 walker, strictly
// after the node's own subtree has been laid out and strictly before its
// registering parent emits bytes.
func (n *node) resolve(loc LocationDescriptor) {
	for _, fn := range n.locationSetters {
		fn(loc)
	}
	for _, fn := range n.rvaSetters {
		fn(loc.RVA)
	}
}
