package minidump

import (
	"encoding/binary"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

const moduleEntrySize = 108

// CVFormat selects which CodeView record shape a ModuleWriter emits.
type CVFormat int

const (
	CVFormatPDB70 CVFormat = iota
	CVFormatPDB20
)

// cvSignaturePDB70 / cvSignaturePDB20 are the 4-byte magic values at the
// start of a CodeView record, per the documented CV_INFO_PDB70/PDB20
// structures.
const (
	cvSignaturePDB70 uint32 = 0x53445352 // "RSDS"
	cvSignaturePDB20 uint32 = 0x3031424e // "NB10"
)

// cvRecordWriter is a leaf Writable for a module's CodeView debug record.
// Unlike the generic string blobs elsewhere in this package, the embedded
// PDB file name here is a bare NUL-terminated byte string with no length
// prefix, matching CV_INFO_PDB70/PDB20 exactly.
type cvRecordWriter struct {
	node
	format  CVFormat
	uuid    [16]byte
	age     uint32
	pdbName string
	encoded []byte
}

func newCVRecordWriter(format CVFormat, uuid [16]byte, age uint32, pdbName string) *cvRecordWriter {
	return &cvRecordWriter{format: format, uuid: uuid, age: age, pdbName: pdbName}
}

func (c *cvRecordWriter) freeze() error {
	if !c.freezeOnce() {
		return nil
	}
	nameBytes := append([]byte(c.pdbName), 0)
	switch c.format {
	case CVFormatPDB20:
		buf := make([]byte, 16+len(nameBytes))
		binary.LittleEndian.PutUint32(buf[0:], cvSignaturePDB20)
		binary.LittleEndian.PutUint32(buf[4:], 0) // Offset, always 0
		binary.LittleEndian.PutUint32(buf[8:], uint32(binary.LittleEndian.Uint32(c.uuid[0:4])))
		binary.LittleEndian.PutUint32(buf[12:], c.age)
		copy(buf[16:], nameBytes)
		c.encoded = buf
	default: // CVFormatPDB70
		buf := make([]byte, 4+16+4+len(nameBytes))
		binary.LittleEndian.PutUint32(buf[0:], cvSignaturePDB70)
		copy(buf[4:20], c.uuid[:])
		binary.LittleEndian.PutUint32(buf[20:], c.age)
		copy(buf[24:], nameBytes)
		c.encoded = buf
	}
	return nil
}

func (c *cvRecordWriter) children() []writable { return nil }

func (c *cvRecordWriter) sizeOfObject() uint32 { return uint32(len(c.encoded)) }

func (c *cvRecordWriter) writeObject(w dumpio.Writer) error { return w.Write(c.encoded) }

// imageDebugTypeMisc is the DataType value IMAGE_DEBUG_MISC records use.
const imageDebugTypeMisc uint32 = 4

// miscDebugRecordWriter is a leaf Writable for an IMAGE_DEBUG_MISC-shaped
// record: {DataType: u32, Length: u32, Unicode: u8, Reserved: [3]u8,
// Data: NUL-terminated bytes}. Data is UTF-8 or UTF-16LE depending on
// Unicode; Length is the record's total size, including this header.
type miscDebugRecordWriter struct {
	node
	text    string
	unicode bool
	encoded []byte
}

func newMiscDebugRecordWriter(text string, unicode bool) *miscDebugRecordWriter {
	return &miscDebugRecordWriter{text: text, unicode: unicode}
}

func (m *miscDebugRecordWriter) freeze() error {
	if !m.freezeOnce() {
		return nil
	}
	var data []byte
	if m.unicode {
		s := newUTF16String(m.text)
		for _, u := range s.units {
			data = binary.LittleEndian.AppendUint16(data, u)
		}
		data = append(data, 0, 0) // NUL terminator
	} else {
		data = append([]byte(m.text), 0)
	}

	const headerSize = 12
	buf := make([]byte, headerSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:], imageDebugTypeMisc)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(buf)))
	if m.unicode {
		buf[8] = 1
	}
	copy(buf[headerSize:], data)
	m.encoded = buf
	return nil
}

func (m *miscDebugRecordWriter) children() []writable { return nil }

func (m *miscDebugRecordWriter) sizeOfObject() uint32 { return uint32(len(m.encoded)) }

func (m *miscDebugRecordWriter) writeObject(w dumpio.Writer) error { return w.Write(m.encoded) }

// ModuleWriter is the writer for one MINIDUMP_MODULE entry.
type ModuleWriter struct {
	node

	m snapshot.Module

	name       *utf16String
	cvRecord   *cvRecordWriter
	miscRecord *miscDebugRecordWriter // nil if not set

	nameRVA uint32
	cvLoc   LocationDescriptor
	miscLoc LocationDescriptor
}

// NewModuleWriter builds a ModuleWriter from a snapshot.Module, emitting a
// CodeView record in the given format.
func NewModuleWriter(m snapshot.Module, cv CVFormat) *ModuleWriter {
	mw := &ModuleWriter{
		m:    m,
		name: newUTF16String(m.Name),
		cvRecord: newCVRecordWriter(cv, m.BuildID.UUID, m.BuildID.Age, m.DebugFileName),
	}
	return mw
}

// SetMiscDebugRecord attaches an optional IMAGE_DEBUG_MISC-style record.
// unicode selects UTF-16LE encoding; otherwise the text is emitted as UTF-8.
func (mw *ModuleWriter) SetMiscDebugRecord(text string, unicode bool) {
	mw.miscRecord = newMiscDebugRecordWriter(text, unicode)
}

func (mw *ModuleWriter) freeze() error {
	if !mw.freezeOnce() {
		return nil
	}
	mw.name.registerRVA(func(rva uint32) { mw.nameRVA = rva })
	mw.cvRecord.registerLocationDescriptor(func(loc LocationDescriptor) { mw.cvLoc = loc })
	if mw.miscRecord != nil {
		mw.miscRecord.registerLocationDescriptor(func(loc LocationDescriptor) { mw.miscLoc = loc })
	}
	return nil
}

func (mw *ModuleWriter) children() []writable {
	children := []writable{mw.name, mw.cvRecord}
	if mw.miscRecord != nil {
		children = append(children, mw.miscRecord)
	}
	return children
}

func (mw *ModuleWriter) sizeOfObject() uint32 { return 0 }

func (mw *ModuleWriter) writeObject(dumpio.Writer) error { return nil }

// encode produces this module's 108-byte MINIDUMP_MODULE entry.
func (mw *ModuleWriter) encode() []byte {
	buf := make([]byte, moduleEntrySize)
	binary.LittleEndian.PutUint64(buf[0:], mw.m.BaseAddress)
	binary.LittleEndian.PutUint32(buf[8:], mw.m.Size)
	binary.LittleEndian.PutUint32(buf[12:], 0) // CheckSum: not computed by this writer
	binary.LittleEndian.PutUint32(buf[16:], mw.m.Timestamp)
	binary.LittleEndian.PutUint32(buf[20:], mw.nameRVA)

	// VS_FIXEDFILEINFO, 52 bytes starting at offset 24.
	vi := buf[24:76]
	binary.LittleEndian.PutUint32(vi[0:], 0xFEEF04BD) // VS_FFI_SIGNATURE
	binary.LittleEndian.PutUint32(vi[4:], 0x00010000) // VS_FFI_STRUCVERSION
	binary.LittleEndian.PutUint16(vi[8:], mw.m.FileVersion[1])
	binary.LittleEndian.PutUint16(vi[10:], mw.m.FileVersion[0])
	binary.LittleEndian.PutUint16(vi[12:], mw.m.FileVersion[3])
	binary.LittleEndian.PutUint16(vi[14:], mw.m.FileVersion[2])
	binary.LittleEndian.PutUint16(vi[16:], mw.m.ProductVersion[1])
	binary.LittleEndian.PutUint16(vi[18:], mw.m.ProductVersion[0])
	binary.LittleEndian.PutUint16(vi[20:], mw.m.ProductVersion[3])
	binary.LittleEndian.PutUint16(vi[22:], mw.m.ProductVersion[2])
	binary.LittleEndian.PutUint32(vi[24:], 0x3F) // FileFlagsMask
	binary.LittleEndian.PutUint32(vi[28:], mw.m.FileFlags)
	binary.LittleEndian.PutUint32(vi[32:], mw.m.FileOS)
	binary.LittleEndian.PutUint32(vi[36:], mw.m.FileType)
	binary.LittleEndian.PutUint32(vi[40:], mw.m.FileSubtype)
	// FileDateMS/LS left zero.

	binary.LittleEndian.PutUint32(buf[76:], mw.cvLoc.DataSize)
	binary.LittleEndian.PutUint32(buf[80:], mw.cvLoc.RVA)
	binary.LittleEndian.PutUint32(buf[84:], mw.miscLoc.DataSize)
	binary.LittleEndian.PutUint32(buf[88:], mw.miscLoc.RVA)
	// Reserved0/Reserved1 (buf[92:108]) stay zero.
	return buf
}

// ModuleListWriter writes the ModuleList stream.
type ModuleListWriter struct {
	node
	modules []*ModuleWriter
}

// NewModuleListWriter returns an empty ModuleList stream.
func NewModuleListWriter() *ModuleListWriter {
	return &ModuleListWriter{}
}

// AddModule appends mw to the list.
func (ml *ModuleListWriter) AddModule(mw *ModuleWriter) {
	ml.modules = append(ml.modules, mw)
}

func (ml *ModuleListWriter) StreamType() StreamType { return StreamModuleList }

func (ml *ModuleListWriter) freeze() error { ml.freezeOnce(); return nil }

func (ml *ModuleListWriter) children() []writable {
	out := make([]writable, len(ml.modules))
	for i, m := range ml.modules {
		out[i] = m
	}
	return out
}

func (ml *ModuleListWriter) sizeOfObject() uint32 {
	return 4 + uint32(len(ml.modules))*moduleEntrySize
}

func (ml *ModuleListWriter) writeObject(w dumpio.Writer) error {
	buf := make([]byte, 4, 4+len(ml.modules)*moduleEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(ml.modules)))
	for _, m := range ml.modules {
		buf = append(buf, m.encode()...)
	}
	return w.Write(buf)
}

var (
	_ writable     = (*ModuleWriter)(nil)
	_ streamWriter = (*ModuleListWriter)(nil)
)
