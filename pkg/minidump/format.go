package minidump

import "encoding/binary"

// Wire constants for the Microsoft minidump header. Field widths and
// offsets below must match the documented MINIDUMP_HEADER layout bit for
// bit; there is no implicit padding in any of these structures.
const (
	// headerMagic is written over the placeholder zero signature only after
	// the entire file has been emitted successfully.
	headerMagic uint32 = 0x504d444d // "MDMP" little-endian

	headerVersion uint32 = 0xa793

	// miniDumpNormal is the only dump-type flag value this writer produces.
	miniDumpNormal uint64 = 0

	headerSize = 32 // signature,version,streamCount,directoryRVA,checksum,timestamp,flags(u64)

	directoryEntrySize = 12 // streamType(u32) + dataSize(u32) + rva(u32)
)

// Stream type tags (MINIDUMP_STREAM_TYPE subset this writer produces).
type StreamType uint32

const (
	StreamUnused          StreamType = 0
	StreamThreadList      StreamType = 3
	StreamModuleList      StreamType = 4
	StreamMemoryList      StreamType = 5
	StreamException       StreamType = 6
	StreamSystemInfo      StreamType = 7
	StreamThreadNameList  StreamType = 24
	StreamUserStreamBase  StreamType = 0x1000_0000 // caller-assigned user streams start here
	StreamStackTraceList  StreamType = 0x4b530001  // "sentry" custom stream, see §6.1
)

// header is the in-memory form of MINIDUMP_HEADER.
type header struct {
	Signature          uint32
	Version            uint32
	NumberOfStreams    uint32
	StreamDirectoryRVA uint32
	CheckSum           uint32
	TimeDateStamp      uint32
	Flags              uint64
}

func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Signature)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.NumberOfStreams)
	binary.LittleEndian.PutUint32(buf[12:], h.StreamDirectoryRVA)
	binary.LittleEndian.PutUint32(buf[16:], h.CheckSum)
	binary.LittleEndian.PutUint32(buf[20:], h.TimeDateStamp)
	binary.LittleEndian.PutUint64(buf[24:], h.Flags)
	return buf
}

// directoryEntry is the in-memory form of MINIDUMP_DIRECTORY.
type directoryEntry struct {
	StreamType StreamType
	DataSize   uint32
	RVA        uint32
}

func (d directoryEntry) encode() []byte {
	buf := make([]byte, directoryEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(d.StreamType))
	binary.LittleEndian.PutUint32(buf[4:], d.DataSize)
	binary.LittleEndian.PutUint32(buf[8:], d.RVA)
	return buf
}
