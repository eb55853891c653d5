package minidump

import (
	"encoding/binary"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

const systemInfoSize = 56 // see encode() for field-by-field layout

// SystemInfoWriter writes the SystemInfo stream: a MINIDUMP_SYSTEM_INFO
// body plus a trailing CSDVersion string referenced by RVA.
type SystemInfoWriter struct {
	node

	sys snapshot.System

	csdVersion *utf16String
	csdRVA     uint32
}

// NewSystemInfoWriter builds the SystemInfo stream from a snapshot.System.
// csdVersion is the service-pack-style string (e.g. "Service Pack 1", or a
// kernel version string on non-Windows platforms); it is always present,
// empty if there is nothing to report.
func NewSystemInfoWriter(sys snapshot.System, csdVersion string) *SystemInfoWriter {
	return &SystemInfoWriter{sys: sys, csdVersion: newUTF16String(csdVersion)}
}

func (s *SystemInfoWriter) StreamType() StreamType { return StreamSystemInfo }

func (s *SystemInfoWriter) freeze() error {
	if !s.freezeOnce() {
		return nil
	}
	s.csdVersion.registerRVA(func(rva uint32) { s.csdRVA = rva })
	return nil
}

func (s *SystemInfoWriter) children() []writable { return []writable{s.csdVersion} }

func (s *SystemInfoWriter) sizeOfObject() uint32 { return systemInfoSize }

func (s *SystemInfoWriter) writeObject(w dumpio.Writer) error {
	buf := make([]byte, systemInfoSize)
	binary.LittleEndian.PutUint16(buf[0:], uint16(s.sys.CPUArchitecture))
	binary.LittleEndian.PutUint16(buf[2:], 0) // ProcessorLevel: acquisition-layer detail, not modeled
	binary.LittleEndian.PutUint16(buf[4:], 0) // ProcessorRevision
	buf[6] = s.sys.CPUInfo.NumberOfPhysicalProcessors
	buf[7] = uint8(s.sys.OS)
	binary.LittleEndian.PutUint32(buf[8:], s.sys.OSVersionMajor)
	binary.LittleEndian.PutUint32(buf[12:], s.sys.OSVersionMinor)
	binary.LittleEndian.PutUint32(buf[16:], s.sys.OSBuild)
	binary.LittleEndian.PutUint32(buf[20:], 0) // ProductType
	binary.LittleEndian.PutUint32(buf[24:], s.csdRVA)
	binary.LittleEndian.PutUint16(buf[28:], 0) // SuiteMask
	binary.LittleEndian.PutUint16(buf[30:], 0) // Reserved2

	cpu := buf[32:56]
	binary.LittleEndian.PutUint32(cpu[0:], s.sys.CPUInfo.VendorID[0])
	binary.LittleEndian.PutUint32(cpu[4:], s.sys.CPUInfo.VendorID[1])
	binary.LittleEndian.PutUint32(cpu[8:], s.sys.CPUInfo.VendorID[2])
	binary.LittleEndian.PutUint32(cpu[12:], s.sys.CPUInfo.VersionInfo)
	binary.LittleEndian.PutUint32(cpu[16:], s.sys.CPUInfo.FeatureInfo)
	// AMDExtendedCpuFeatures (cpu[20:24]) left zero: not modeled in snapshot.CPUInfo.

	return w.Write(buf)
}

var _ streamWriter = (*SystemInfoWriter)(nil)
