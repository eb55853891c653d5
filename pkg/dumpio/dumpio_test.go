package dumpio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/dumpio"
)

func Test_Buffer_Write_Appends_At_Cursor(t *testing.T) {
	t.Parallel()

	b := dumpio.NewBuffer()
	require.NoError(t, b.Write([]byte("hello")))
	require.NoError(t, b.Write([]byte(" world")))

	assert.Equal(t, "hello world", string(b.Bytes()))
}

func Test_Buffer_Seek_Past_End_Then_Write_Zero_Extends(t *testing.T) {
	t.Parallel()

	b := dumpio.NewBuffer()
	require.NoError(t, b.Write([]byte("ab")))

	abs, err := b.Seek(5, dumpio.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(5), abs)

	require.NoError(t, b.Write([]byte("Z")))

	assert.Equal(t, []byte{'a', 'b', 0, 0, 0, 'Z'}, b.Bytes())
}

func Test_Buffer_Seek_Current_With_Zero_Offset_Queries_Position(t *testing.T) {
	t.Parallel()

	b := dumpio.NewBuffer()
	require.NoError(t, b.Write([]byte("abcdef")))

	_, err := b.Seek(2, dumpio.SeekStart)
	require.NoError(t, err)

	pos, err := b.Seek(0, dumpio.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	pos, err = b.CurrentOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)
}

func Test_Buffer_Seek_Negative_Target_Fails(t *testing.T) {
	t.Parallel()

	b := dumpio.NewBuffer()
	_, err := b.Seek(-1, dumpio.SeekStart)
	assert.Error(t, err)
}

func Test_Buffer_WriteVectored_Concatenates_Slices(t *testing.T) {
	t.Parallel()

	b := dumpio.NewBuffer()
	require.NoError(t, b.WriteVectored([][]byte{
		[]byte("foo"),
		[]byte("bar"),
		[]byte("baz"),
	}))

	assert.Equal(t, "foobarbaz", string(b.Bytes()))
}

func Test_File_Write_And_Seek_Round_Trip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.bin")

	w, err := dumpio.Create(path, 0o644)
	require.NoError(t, err)

	require.NoError(t, w.Write([]byte("0123456789")))

	pos, err := w.CurrentOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	abs, err := w.Seek(0, dumpio.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), abs)

	require.NoError(t, w.Write([]byte("X")))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "X123456789", string(got))
}

func Test_File_Create_Truncates_Existing_Content(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.bin")
	require.NoError(t, os.WriteFile(path, []byte("stale content here"), 0o644))

	w, err := dumpio.Create(path, 0o644)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("new")))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}
