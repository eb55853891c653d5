package minidump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

func Test_SystemInfoWriter_EncodesFixedFields(t *testing.T) {
	t.Parallel()

	si := NewSystemInfoWriter(snapshot.System{
		OS:              snapshot.OSLinux,
		OSVersionMajor:  6,
		OSVersionMinor:  1,
		OSBuild:         42,
		CPUArchitecture: snapshot.ArchAMD64,
		CPUInfo:         snapshot.CPUInfo{NumberOfPhysicalProcessors: 4},
	}, "Ubuntu 22.04")

	md := New()
	require.NoError(t, md.AddStream(si))

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	streamStart := headerSize + directoryEntrySize
	body := buf.Bytes()[streamStart : streamStart+systemInfoSize]

	assert.Equal(t, uint16(snapshot.ArchAMD64), uint16(leU32(body)))
	assert.Equal(t, byte(4), body[6])
	assert.Equal(t, byte(snapshot.OSLinux), body[7])
	assert.Equal(t, uint32(6), leU32(body[8:]))
	assert.Equal(t, uint32(1), leU32(body[12:]))
	assert.Equal(t, uint32(42), leU32(body[16:]))

	csdRVA := leU32(body[24:])
	full := buf.Bytes()
	csd := full[csdRVA:]
	length := leU32(csd)
	assert.Equal(t, uint32(len("Ubuntu 22.04"))*2, length)
}

func Test_SystemInfoWriter_EmptyCSDVersion(t *testing.T) {
	t.Parallel()

	si := NewSystemInfoWriter(snapshot.System{CPUArchitecture: snapshot.ArchX86}, "")

	md := New()
	require.NoError(t, md.AddStream(si))

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))
	assert.Greater(t, len(buf.Bytes()), 0)
}
