package minidump

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

func Test_MemoryRegistry_DedupesByIdentity(t *testing.T) {
	t.Parallel()

	region := snapshot.MemoryRegion{BaseAddress: 0x2000, Size: 8, Reader: func() ([]byte, error) { return make([]byte, 8), nil }}

	reg := newMemoryRegistry()
	a := reg.get(region)
	b := reg.get(region)

	assert.Same(t, a, b)
}

func Test_MemoryListWriter_OwnedRegions(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0x11}, 4)
	region := newMemoryRegionWriter(snapshot.MemoryRegion{
		BaseAddress: 0x3000, Size: 4, Reader: func() ([]byte, error) { return data, nil },
	})

	ml := NewMemoryListWriter()
	ml.AddMemory(region)

	md := New()
	require.NoError(t, md.AddStream(ml))

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	streamStart := headerSize + directoryEntrySize
	got := buf.Bytes()[streamStart:]

	count := leU32(got)
	require.Equal(t, uint32(1), count)

	startAddr := leU64(got[4:])
	assert.Equal(t, uint64(0x3000), startAddr)

	dataSize := leU32(got[12:])
	assert.Equal(t, uint32(4), dataSize)
}

func Test_MemoryListWriter_AddMemory_DeduplicatesAlreadySharedRegion(t *testing.T) {
	t.Parallel()

	region := snapshot.MemoryRegion{BaseAddress: 0x4000, Size: 4, Reader: func() ([]byte, error) { return []byte{1, 2, 3, 4}, nil }}
	registry := newMemoryRegistry()

	ml := NewMemoryListWriter()
	w := registry.get(region)
	ml.addExtraMemory(w)
	// A caller that separately enumerates the same region as process-level
	// extra memory must not cause it to be counted (and written) twice.
	ml.AddMemory(registry.get(region))

	md := New()
	require.NoError(t, md.AddStream(ml))

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	streamStart := headerSize + directoryEntrySize
	count := leU32(buf.Bytes()[streamStart:])
	assert.Equal(t, uint32(1), count)
}
