package minidump

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crashvault/minidump/pkg/snapshot"
)

func Test_ContextAlignment_AMD64Is16_ARM64Is8_OthersAre4(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(4), contextAlignment(snapshot.CpuContextX86))
	assert.Equal(t, uint32(16), contextAlignment(snapshot.CpuContextAMD64))
	assert.Equal(t, uint32(4), contextAlignment(snapshot.CpuContextARM))
	assert.Equal(t, uint32(8), contextAlignment(snapshot.CpuContextARM64))
}

func Test_EncodeContext_CopiesRegistersVerbatim(t *testing.T) {
	t.Parallel()

	c := &snapshot.CPUContextX86_64{RAX: 0xdeadbeef, RIP: 0x401000, ContextFlags: 0x10000f}
	buf := encodeContextAMD64(c)

	// ContextFlags sits right after the six P*Home u64 fields (48 bytes in).
	assert.Equal(t, uint32(0x10000f), leU32(buf[48:]))
}

func Test_EncodeContext_PanicsOnUnknownArch(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		encodeContext(snapshot.CpuContext{Arch: snapshot.CpuContextArch(99)})
	})
}
