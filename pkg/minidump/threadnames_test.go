package minidump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/dumpio"
)

func Test_ThreadNameListWriter_ResolvesNameRVAs(t *testing.T) {
	t.Parallel()

	tn := NewThreadNameListWriter()
	tn.AddThreadName(1, "main")
	tn.AddThreadName(2, "worker-0")

	md := New()
	require.NoError(t, md.AddStream(tn))

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	streamStart := headerSize + directoryEntrySize
	got := buf.Bytes()
	body := got[streamStart:]

	count := leU32(body)
	require.Equal(t, uint32(2), count)

	for i, want := range []struct {
		id   uint32
		name string
	}{{1, "main"}, {2, "worker-0"}} {
		off := 4 + i*threadNameEntrySize
		assert.Equal(t, want.id, leU32(body[off:]))
		rva := leU64(body[off+4:])
		nameBlob := got[rva:]
		assert.Equal(t, want.name, decodeUTF16Blob(t, nameBlob))
	}
}
