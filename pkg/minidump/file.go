package minidump

import (
	"fmt"
	"time"

	"github.com/crashvault/minidump/pkg/dumpio"
)

// streamWriter is a writable that additionally knows its own stream type
// tag, i.e. a direct child of the root [Minidump].
type streamWriter interface {
	writable
	StreamType() StreamType
}

// Minidump is the root of the Writable tree: the minidump file itself.
// Streams are added with AddStream in the order they should appear in the
// directory, then the whole tree is serialized with WriteEverything.
type Minidump struct {
	node

	header  header
	streams []streamWriter
	seen    map[StreamType]bool

	directory []directoryEntry
}

// New returns an empty Minidump with zero streams, CheckSum 0, and the
// placeholder zero signature.
func New() *Minidump {
	return &Minidump{
		header: header{
			// Signature stays 0 until WriteEverything succeeds, so a
			// truncated file is never mistaken for a valid minidump.
			Signature: 0,
			Version:   headerVersion,
			CheckSum:  0,
			Flags:     miniDumpNormal,
		},
		seen: make(map[StreamType]bool),
	}
}

// SetTimestamp sets the header's TimeDateStamp (seconds since the epoch).
func (m *Minidump) SetTimestamp(t time.Time) {
	m.header.TimeDateStamp = uint32(t.Unix())
}

// AddStream appends a stream to the directory. Adding two streams with the
// same StreamType fails: stream types must be unique in one file.
//
// Directory entries preserve insertion order, not numeric StreamType order
// (property: "Deterministic directory order").
func (m *Minidump) AddStream(s streamWriter) error {
	if m.state >= stateFrozen {
		return fmt.Errorf("%w: AddStream called after the dump was frozen", ErrFormat)
	}

	st := s.StreamType()
	if m.seen[st] {
		return fmt.Errorf("%w: stream type %#x already present", ErrFormat, uint32(st))
	}
	m.seen[st] = true
	m.streams = append(m.streams, s)
	return nil
}

func (m *Minidump) willWriteAtOffset(offset uint32) error {
	if len(m.streams) == 0 {
		m.header.StreamDirectoryRVA = 0
		return nil
	}
	dirOffset := uint64(offset) + uint64(headerSize)
	if dirOffset > maxUint32 {
		return fmt.Errorf("%w: stream directory offset %d out of range", ErrFormat, dirOffset)
	}
	m.header.StreamDirectoryRVA = uint32(dirOffset)
	return nil
}

func (m *Minidump) freeze() error {
	if !m.freezeOnce() {
		return nil
	}

	streamCount := uint64(len(m.streams))
	if streamCount > maxUint32 {
		return fmt.Errorf("%w: stream count %d out of range", ErrFormat, streamCount)
	}
	m.header.NumberOfStreams = uint32(streamCount)

	m.directory = make([]directoryEntry, len(m.streams))
	for i, s := range m.streams {
		i := i
		s.registerLocationDescriptor(func(loc LocationDescriptor) {
			m.directory[i] = directoryEntry{
				StreamType: s.StreamType(),
				DataSize:   loc.DataSize,
				RVA:        loc.RVA,
			}
		})
	}

	return nil
}

func (m *Minidump) children() []writable {
	out := make([]writable, len(m.streams))
	for i, s := range m.streams {
		out[i] = s
	}
	return out
}

func (m *Minidump) sizeOfObject() uint32 {
	return headerSize + uint32(len(m.streams))*directoryEntrySize
}

func (m *Minidump) writeObject(w dumpio.Writer) error {
	if err := w.Write(m.header.encode()); err != nil {
		return err
	}
	for _, d := range m.directory {
		if err := w.Write(d.encode()); err != nil {
			return err
		}
	}
	return nil
}

// WriteEverything lays out and emits the entire minidump to w, then
// back-patches the header's signature over the zero placeholder.
//
// On any error, the bytes already written (if any) keep the zero
// signature; the caller is responsible for discarding or unlinking a
// partial file.
func (m *Minidump) WriteEverything(w dumpio.Writer) error {
	startOffset, err := w.CurrentOffset()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	placed, err := buildLayout(m, uint64(startOffset))
	if err != nil {
		return err
	}

	if err := writeLayout(&placed, w); err != nil {
		return err
	}

	endOffset, err := w.CurrentOffset()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	m.header.Signature = headerMagic
	if _, err := w.Seek(startOffset, dumpio.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := w.Write(m.header.encode()); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if _, err := w.Seek(endOffset, dumpio.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	return nil
}

// Compile-time interface check.
var _ writable = (*Minidump)(nil)
