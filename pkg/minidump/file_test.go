package minidump

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/dumpio"
)

func Test_EmptyDump_ProducesHeaderOnlyFile(t *testing.T) {
	t.Parallel()

	md := New()
	ts := time.Unix(0x155d2fb8, 0)
	md.SetTimestamp(ts)

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	assert.Equal(t, headerSize, len(buf.Bytes()))
	assert.Equal(t, uint32(0), md.header.NumberOfStreams)
	assert.Equal(t, uint32(0), md.header.StreamDirectoryRVA)
	assert.Equal(t, uint32(0), md.header.CheckSum)
	assert.Equal(t, headerMagic, md.header.Signature)

	got := buf.Bytes()
	assert.Equal(t, headerMagic, leU32(got[0:4]))
	assert.Equal(t, uint32(0x155d2fb8), leU32(got[20:24]))
}

func Test_AddStream_RejectsDuplicateStreamType(t *testing.T) {
	t.Parallel()

	md := New()
	require.NoError(t, md.AddStream(newTestLeaf(StreamThreadList, []byte{1})))

	err := md.AddStream(newTestLeaf(StreamThreadList, []byte{2}))
	assert.ErrorIs(t, err, ErrFormat)
	assert.Len(t, md.streams, 1)
}

func Test_AddStream_AfterFreeze_Fails(t *testing.T) {
	t.Parallel()

	md := New()
	require.NoError(t, md.freeze())

	err := md.AddStream(newTestLeaf(StreamThreadList, []byte{1}))
	assert.ErrorIs(t, err, ErrFormat)
}

func Test_ThreeStreamDump_MatchesScenarioA(t *testing.T) {
	t.Parallel()

	md := New()
	md.SetTimestamp(time.Unix(0x155d2fb8, 0))

	require.NoError(t, md.AddStream(newTestLeaf(0x6d, bytes.Repeat([]byte{0x5a}, 5))))
	require.NoError(t, md.AddStream(newTestLeaf(0x4d, bytes.Repeat([]byte{0xa5}, 3))))
	require.NoError(t, md.AddStream(newTestLeaf(0x7e, bytes.Repeat([]byte{0x36}, 1))))

	buf := dumpio.NewBuffer()
	require.NoError(t, md.WriteEverything(buf))

	wantSize := headerSize + 3*directoryEntrySize + 5 + 3 + 1 + 3 + 1
	assert.Equal(t, wantSize, len(buf.Bytes()))

	got := buf.Bytes()
	dirOff := headerSize
	assert.Equal(t, uint32(0x6d), leU32(got[dirOff:]))
	assert.Equal(t, uint32(0x4d), leU32(got[dirOff+directoryEntrySize:]))
	assert.Equal(t, uint32(0x7e), leU32(got[dirOff+2*directoryEntrySize:]))
}

func Test_WriteEverything_SignatureZeroOnFailure(t *testing.T) {
	t.Parallel()

	md := New()
	require.NoError(t, md.AddStream(newTestLeaf(StreamThreadList, []byte{1})))
	require.NoError(t, md.AddStream(newTestLeaf(StreamModuleList, []byte{2})))

	buf := dumpio.NewBuffer()
	w := &failAfterWriter{Writer: buf, failAfter: 1}

	err := md.WriteEverything(w)
	require.Error(t, err)

	written := buf.Bytes()
	if len(written) >= 4 {
		assert.Equal(t, []byte{0, 0, 0, 0}, written[0:4])
	}
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// failAfterWriter wraps a dumpio.Writer and fails every Write call after the
// first n have succeeded, simulating a mid-write I/O failure.
type failAfterWriter struct {
	dumpio.Writer
	failAfter int
	calls     int
}

func (f *failAfterWriter) Write(p []byte) error {
	f.calls++
	if f.calls > f.failAfter {
		return assert.AnError
	}
	return f.Writer.Write(p)
}
