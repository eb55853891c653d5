package minidump

import "github.com/crashvault/minidump/pkg/dumpio"

// testLeaf is a minimal streamWriter fixture for exercising layout and file
// behavior with payloads and stream-type tags the public constructors
// (UserStream, etc.) would reject, e.g. tags below StreamUserStreamBase.
type testLeaf struct {
	node
	streamType StreamType
	payload    []byte
	align      uint32
}

func newTestLeaf(streamType StreamType, payload []byte) *testLeaf {
	return &testLeaf{streamType: streamType, payload: payload, align: 4}
}

func (t *testLeaf) StreamType() StreamType { return t.streamType }
func (t *testLeaf) freeze() error          { t.freezeOnce(); return nil }
func (t *testLeaf) children() []writable   { return nil }
func (t *testLeaf) sizeOfObject() uint32   { return uint32(len(t.payload)) }
func (t *testLeaf) alignment() uint32 {
	if t.align == 0 {
		return 4
	}
	return t.align
}
func (t *testLeaf) writeObject(w dumpio.Writer) error { return w.Write(t.payload) }

var _ streamWriter = (*testLeaf)(nil)
