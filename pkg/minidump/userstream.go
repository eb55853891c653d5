package minidump

import (
	"fmt"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

// UserStreamWriter writes one caller-defined blob as a top-level stream.
// Its bytes come from either a fixed in-memory buffer or a deferred
// snapshot.MemoryRegion read, exactly like any other stream's contents;
// uniqueness of its StreamType tag is enforced by Minidump.AddStream.
type UserStreamWriter struct {
	node

	streamType StreamType
	fixed      []byte
	region     *memoryRegionWriter
}

// NewUserStream wraps a fixed byte buffer as a user stream with the given
// tag. tag must be >= StreamUserStreamBase.
func NewUserStream(tag StreamType, data []byte) (*UserStreamWriter, error) {
	if tag < StreamUserStreamBase {
		return nil, fmt.Errorf("%w: user stream tag %#x below StreamUserStreamBase", ErrFormat, uint32(tag))
	}
	return &UserStreamWriter{streamType: tag, fixed: data}, nil
}

// NewUserStreamFromMemory wraps a snapshot.MemoryRegion as a user stream,
// deferring the actual read until pass 2 like any other memory-backed
// blob. tag must be >= StreamUserStreamBase.
func NewUserStreamFromMemory(tag StreamType, region snapshot.MemoryRegion) (*UserStreamWriter, error) {
	if tag < StreamUserStreamBase {
		return nil, fmt.Errorf("%w: user stream tag %#x below StreamUserStreamBase", ErrFormat, uint32(tag))
	}
	return &UserStreamWriter{streamType: tag, region: newMemoryRegionWriter(region)}, nil
}

func (u *UserStreamWriter) StreamType() StreamType { return u.streamType }

func (u *UserStreamWriter) freeze() error { u.freezeOnce(); return nil }

func (u *UserStreamWriter) children() []writable { return nil }

func (u *UserStreamWriter) sizeOfObject() uint32 {
	if u.region != nil {
		return u.region.sizeOfObject()
	}
	return uint32(len(u.fixed))
}

func (u *UserStreamWriter) writeObject(w dumpio.Writer) error {
	if u.region != nil {
		return u.region.writeObject(w)
	}
	return w.Write(u.fixed)
}

var _ streamWriter = (*UserStreamWriter)(nil)
