package minidump

import (
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/crashvault/minidump/pkg/dumpio"
)

// replacementChar is substituted for each ill-formed UTF-8 sequence when
// converting to UTF-16, per §4.3.5.
const replacementChar = '�'

// utf16String is a leaf Writable for a NUL-terminated UTF-16LE string blob:
// {length_bytes_without_terminator: u32, u16[]..., u16 0}.
type utf16String struct {
	node
	units []uint16 // does not include the terminator
}

// newUTF16String converts s to UTF-16, substituting U+FFFD for each
// ill-formed UTF-8 sequence.
func newUTF16String(s string) *utf16String {
	units := make([]uint16, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			units = append(units, replacementChar)
			i++
			continue
		}
		units = append(units, utf16.Encode([]rune{r})...)
		i += size
	}
	return &utf16String{units: units}
}

func (s *utf16String) freeze() error { s.freezeOnce(); return nil }

func (s *utf16String) children() []writable { return nil }

func (s *utf16String) sizeOfObject() uint32 {
	// length field + data + NUL terminator.
	return 4 + uint32(len(s.units))*2 + 2
}

func (s *utf16String) writeObject(w dumpio.Writer) error {
	lengthBytes := uint32(len(s.units)) * 2
	buf := make([]byte, 4+len(s.units)*2+2)
	binary.LittleEndian.PutUint32(buf[0:], lengthBytes)
	for i, u := range s.units {
		binary.LittleEndian.PutUint16(buf[4+i*2:], u)
	}
	// Trailing u16 zero is already zero in the freshly allocated buffer.
	return w.Write(buf)
}

// utf8String is a leaf Writable for a NUL-terminated UTF-8 string blob:
// {length_bytes_without_terminator: u32, u8[]..., u8 0}.
type utf8String struct {
	node
	data []byte
}

func newUTF8String(s string) *utf8String {
	return &utf8String{data: []byte(s)}
}

func (s *utf8String) freeze() error { s.freezeOnce(); return nil }

func (s *utf8String) children() []writable { return nil }

func (s *utf8String) sizeOfObject() uint32 {
	return 4 + uint32(len(s.data)) + 1
}

func (s *utf8String) writeObject(w dumpio.Writer) error {
	buf := make([]byte, 4+len(s.data)+1)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(s.data)))
	copy(buf[4:], s.data)
	// Trailing NUL already zero.
	return w.Write(buf)
}

var (
	_ writable = (*utf16String)(nil)
	_ writable = (*utf8String)(nil)
)
