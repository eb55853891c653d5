package minidump

import (
	"encoding/binary"
	"fmt"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/snapshot"
)

// contextAlignment returns the file alignment §4.3.6 requires for a context
// blob of the given architecture. AMD64 requires 16-byte alignment and
// ARM64 uses 8; x86 and ARM use the default of 4. ARM64 is
// given 8-byte alignment since its register file is entirely 64-bit words
// and no alignment is specified for it (an Open Question left to this
// implementation; recorded in DESIGN.md).
func contextAlignment(arch snapshot.CpuContextArch) uint32 {
	switch arch {
	case snapshot.CpuContextAMD64:
		return 16
	case snapshot.CpuContextARM64:
		return 8
	default:
		return 4
	}
}

// contextWriter is a leaf Writable wrapping one CPU register dump. The
// writer never synthesizes register values, only copies them from the
// snapshot (§4.3.6).
type contextWriter struct {
	node
	ctx     snapshot.CpuContext
	encoded []byte
}

func newContextWriter(ctx snapshot.CpuContext) *contextWriter {
	return &contextWriter{ctx: ctx}
}

func (c *contextWriter) freeze() error {
	if !c.freezeOnce() {
		return nil
	}
	var missing bool
	switch c.ctx.Arch {
	case snapshot.CpuContextX86:
		missing = c.ctx.X86 == nil
	case snapshot.CpuContextAMD64:
		missing = c.ctx.AMD64 == nil
	case snapshot.CpuContextARM:
		missing = c.ctx.ARM == nil
	case snapshot.CpuContextARM64:
		missing = c.ctx.ARM64 == nil
	}
	if missing {
		return fmt.Errorf("%w: CPU context for arch %d has no register set", ErrFormat, c.ctx.Arch)
	}
	c.encoded = encodeContext(c.ctx)
	return nil
}

func (c *contextWriter) children() []writable { return nil }

func (c *contextWriter) sizeOfObject() uint32 { return uint32(len(c.encoded)) }

func (c *contextWriter) alignment() uint32 { return contextAlignment(c.ctx.Arch) }

func (c *contextWriter) writeObject(w dumpio.Writer) error {
	return w.Write(c.encoded)
}

// encodeContext packs a CpuContext into its architecture's fixed minidump
// layout. Every struct here is serialized manually with
// encoding/binary.LittleEndian rather than via reflection, since the wire
// format forbids the implicit padding Go's struct layout could introduce.
func encodeContext(ctx snapshot.CpuContext) []byte {
	switch ctx.Arch {
	case snapshot.CpuContextX86:
		return encodeContextX86(ctx.X86)
	case snapshot.CpuContextAMD64:
		return encodeContextAMD64(ctx.AMD64)
	case snapshot.CpuContextARM:
		return encodeContextARM(ctx.ARM)
	case snapshot.CpuContextARM64:
		return encodeContextARM64(ctx.ARM64)
	default:
		panic(fmt.Sprintf("minidump: unknown CpuContextArch %d", ctx.Arch))
	}
}

func encodeContextX86(c *snapshot.CPUContextX86) []byte {
	const size = 4 + 4*6 + 112 + 4*4 + 4*6 + 4 + 4 + 4 + 4 + 4 + 4 + 512
	buf := make([]byte, size)
	o := 0
	le32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[o:], v); o += 4 }

	le32(c.ContextFlags)
	le32(c.DR0)
	le32(c.DR1)
	le32(c.DR2)
	le32(c.DR3)
	le32(c.DR6)
	le32(c.DR7)
	copy(buf[o:], c.FloatSave[:])
	o += len(c.FloatSave)
	le32(c.GS)
	le32(c.FS)
	le32(c.ES)
	le32(c.DS)
	le32(c.EDI)
	le32(c.ESI)
	le32(c.EBX)
	le32(c.EDX)
	le32(c.ECX)
	le32(c.EAX)
	le32(c.EBP)
	le32(c.EIP)
	le32(c.CS)
	le32(c.EFlags)
	le32(c.ESP)
	le32(c.SS)
	copy(buf[o:], c.ExtendedRegisters[:])
	o += len(c.ExtendedRegisters)

	return buf[:o]
}

func encodeContextAMD64(c *snapshot.CPUContextX86_64) []byte {
	buf := make([]byte, 0, 640)
	le64 := func(v uint64) { buf = binary.LittleEndian.AppendUint64(buf, v) }
	le32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }
	le16 := func(v uint16) { buf = binary.LittleEndian.AppendUint16(buf, v) }

	le64(c.P1Home)
	le64(c.P2Home)
	le64(c.P3Home)
	le64(c.P4Home)
	le64(c.P5Home)
	le64(c.P6Home)

	le32(c.ContextFlags)
	le32(c.MxCsr)

	le16(c.CS)
	le16(c.DS)
	le16(c.ES)
	le16(c.FS)
	le16(c.GS)
	le16(c.SS)
	le32(c.EFlags)

	le64(c.DR0)
	le64(c.DR1)
	le64(c.DR2)
	le64(c.DR3)
	le64(c.DR6)
	le64(c.DR7)

	le64(c.RAX)
	le64(c.RCX)
	le64(c.RDX)
	le64(c.RBX)
	le64(c.RSP)
	le64(c.RBP)
	le64(c.RSI)
	le64(c.RDI)
	le64(c.R8)
	le64(c.R9)
	le64(c.R10)
	le64(c.R11)
	le64(c.R12)
	le64(c.R13)
	le64(c.R14)
	le64(c.R15)
	le64(c.RIP)

	buf = append(buf, c.FXSave[:]...)
	for _, v := range c.VectorRegister {
		buf = append(buf, v[:]...)
	}
	le64(c.VectorControl)
	le64(c.DebugControl)
	le64(c.LastBranchToRip)
	le64(c.LastBranchFromRip)
	le64(c.LastExceptionToRip)
	le64(c.LastExceptionFromRip)

	return buf
}

func encodeContextARM(c *snapshot.CPUContextARM) []byte {
	buf := make([]byte, 0, 4+16*4+4+8+32*8)
	le32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }
	le64 := func(v uint64) { buf = binary.LittleEndian.AppendUint64(buf, v) }

	le32(c.ContextFlags)
	for _, r := range c.Regs {
		le32(r)
	}
	le32(c.CPSR)
	le64(c.FPSCR)
	for _, r := range c.FPRegs {
		le64(r)
	}
	return buf
}

func encodeContextARM64(c *snapshot.CPUContextARM64) []byte {
	buf := make([]byte, 0, 8+32*8+8+4+4+4+32*16)
	le32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }
	le64 := func(v uint64) { buf = binary.LittleEndian.AppendUint64(buf, v) }

	le64(c.ContextFlags)
	for _, r := range c.Regs {
		le64(r)
	}
	le64(c.PC)
	le32(c.CPSR)
	le32(c.FPSR)
	le32(c.FPCR)
	for _, r := range c.FPRegs {
		buf = append(buf, r[:]...)
	}
	return buf
}

var _ writable = (*contextWriter)(nil)
