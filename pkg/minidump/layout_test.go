package minidump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/dumpio"
)

func Test_BuildLayout_PadsToChildAlignment(t *testing.T) {
	t.Parallel()

	md := New()
	// Two 1-byte streams: the second must land on a 4-byte boundary since
	// Minidump's children (streams) default to alignment 4.
	require.NoError(t, md.AddStream(newTestLeaf(0x1, []byte{0xaa})))
	require.NoError(t, md.AddStream(newTestLeaf(0x2, []byte{0xbb})))

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	got := buf.Bytes()
	for i := headerSize + 2*directoryEntrySize; i < len(got); i++ {
		if got[i] != 0xaa && got[i] != 0xbb {
			assert.Equal(t, byte(0), got[i], "unexpected non-zero padding byte at %d", i)
		}
	}
}

func Test_BuildLayout_ReferenceConsistency_NoOverlap(t *testing.T) {
	t.Parallel()

	md := New()
	l1 := newTestLeaf(0x1, []byte{1, 2, 3})
	l2 := newTestLeaf(0x2, []byte{4, 5})
	require.NoError(t, md.AddStream(l1))
	require.NoError(t, md.AddStream(l2))

	var loc1, loc2 LocationDescriptor
	l1.registerLocationDescriptor(func(l LocationDescriptor) { loc1 = l })
	l2.registerLocationDescriptor(func(l LocationDescriptor) { loc2 = l })

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	got := buf.Bytes()
	assert.Equal(t, []byte{1, 2, 3}, got[loc1.RVA:loc1.RVA+loc1.DataSize])
	assert.Equal(t, []byte{4, 5}, got[loc2.RVA:loc2.RVA+loc2.DataSize])

	end1 := loc1.RVA + loc1.DataSize
	assert.LessOrEqual(t, end1, loc2.RVA, "streams must not overlap")
}

func Test_BuildLayout_OffsetOverflow_FailsFreeze(t *testing.T) {
	t.Parallel()

	md := New()
	// Starting the root at the u32 limit makes even the header's own
	// size push the cursor out of range, exercising the same boundary
	// check a real oversized stream would hit.
	_, err := buildLayout(md, uint64(maxUint32))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
}
