// Package dumpio provides the scatter/gather file-writing abstraction the
// minidump writer uses to emit bytes.
//
// The main types are:
//   - [Writer]: the interface the minidump writer depends on
//   - [File]: production implementation backed by an *os.File
//   - [Buffer]: in-memory implementation used by tests
//
// write and write_vectored calls must complete fully: short writes from the
// underlying OS call are retried until every byte is written or an error
// occurs. No partial write is ever reported as success.
package dumpio

import (
	"fmt"
	"io"
	"os"
)

// Whence values for Seek, mirroring io.Seeker / lseek(2).
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// Writer is the file-writing surface the minidump writer depends on.
//
// Implementations must be used from a single goroutine; there is no internal
// synchronization.
type Writer interface {
	// Write writes all of p, retrying on short writes. An error means no
	// guarantee is made about how many bytes landed.
	Write(p []byte) error

	// WriteVectored writes the concatenation of slices as a single logical
	// write, retrying on short writes.
	WriteVectored(slices [][]byte) error

	// Seek repositions the write cursor and returns the new absolute offset.
	// whence is one of SeekStart, SeekCurrent, SeekEnd. Seeking with
	// (0, SeekCurrent) is the supported way to query the current position
	// without moving it.
	Seek(offset int64, whence int) (int64, error)

	// CurrentOffset returns the current absolute write offset.
	CurrentOffset() (int64, error)
}

// writeFull retries w until all of p has been written or an error occurs.
// File's Write and WriteVectored both go through it so the
// retry-until-complete policy lives in one place; Buffer has no short
// writes and copies directly.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("dumpio: write returned 0 bytes with %d remaining", len(p))
		}
		p = p[n:]
	}
	return nil
}

// File is a [Writer] backed by a real file on disk, opened
// O_WRONLY|O_CREAT|O_TRUNC.
type File struct {
	f *os.File
}

// Create opens path for writing, truncating any existing content.
func Create(path string, mode os.FileMode) (*File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, fmt.Errorf("dumpio: create %s: %w", path, err)
	}
	return &File{f: f}, nil
}

// NewFile wraps an already-open file handle. The caller retains ownership of
// closing it.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

func (w *File) Write(p []byte) error {
	return writeFull(w.f, p)
}

func (w *File) WriteVectored(slices [][]byte) error {
	for _, s := range slices {
		if err := writeFull(w.f, s); err != nil {
			return err
		}
	}
	return nil
}

func (w *File) Seek(offset int64, whence int) (int64, error) {
	abs, err := w.f.Seek(offset, whence)
	if err != nil {
		return 0, fmt.Errorf("dumpio: seek: %w", err)
	}
	return abs, nil
}

func (w *File) CurrentOffset() (int64, error) {
	return w.Seek(0, SeekCurrent)
}

// Close closes the underlying file.
func (w *File) Close() error {
	return w.f.Close()
}

// Sync commits the file's contents to stable storage.
func (w *File) Sync() error {
	return w.f.Sync()
}

// Buffer is an in-memory, growable [Writer] used by tests. Seeking past the
// current length and then writing zero-extends the gap, matching the
// semantics of a real file.
type Buffer struct {
	buf    []byte
	cursor int64
}

// NewBuffer returns an empty in-memory writer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Bytes returns the buffer's current contents. The returned slice aliases
// the Buffer's storage and must not be mutated by the caller.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) growTo(n int64) {
	if n <= int64(len(b.buf)) {
		return
	}
	grown := make([]byte, n)
	copy(grown, b.buf)
	b.buf = grown
}

// Write appends p at the cursor, zero-extending the buffer first if the
// cursor is past the current length. A Buffer write always succeeds in full;
// there is no notion of a short write against memory.
func (b *Buffer) Write(p []byte) error {
	end := b.cursor + int64(len(p))
	b.growTo(end)
	copy(b.buf[b.cursor:end], p)
	b.cursor = end
	return nil
}

func (b *Buffer) WriteVectored(slices [][]byte) error {
	for _, s := range slices {
		if err := b.Write(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case SeekStart:
		target = offset
	case SeekCurrent:
		target = b.cursor + offset
	case SeekEnd:
		target = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("dumpio: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("dumpio: negative seek target %d", target)
	}
	b.cursor = target
	return target, nil
}

func (b *Buffer) CurrentOffset() (int64, error) {
	return b.Seek(0, SeekCurrent)
}

// Compile-time interface checks.
var (
	_ Writer = (*File)(nil)
	_ Writer = (*Buffer)(nil)
)
