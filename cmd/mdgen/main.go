// Command mdgen builds a synthetic process snapshot and writes it out
// as a minidump file, for exercising the writer and inspecting its
// output without a real crash.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/crashvault/minidump/pkg/dumpio"
	"github.com/crashvault/minidump/pkg/dumpstore"
	"github.com/crashvault/minidump/pkg/minidump"
	"github.com/crashvault/minidump/pkg/snapshot"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mdgen:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("mdgen", flag.ContinueOnError)

	out := fs.StringP("out", "o", "", "output path for the .dmp file (required unless --store is set)")
	storeDir := fs.String("store", "", "finalize into this report directory via dumpstore.Finalize instead of --out")
	threads := fs.IntP("threads", "t", 2, "number of synthetic threads")
	modules := fs.IntP("modules", "m", 3, "number of synthetic modules")
	withException := fs.Bool("exception", true, "include an exception stream")
	withStacks := fs.Bool("stacks", true, "give each thread a synthetic stack memory region")
	arch := fs.String("arch", "amd64", "CPU architecture: x86, amd64, arm, arm64")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: mdgen [flags]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if *out == "" && *storeDir == "" {
		fs.Usage()
		return errors.New("one of --out or --store is required")
	}

	cpuArch, cpuTag, err := parseArch(*arch)
	if err != nil {
		return err
	}

	proc := buildSyntheticProcess(*threads, *modules, *withException, *withStacks, cpuArch, cpuTag)

	md, err := minidump.AssembleFromProcess(proc, minidump.Options{CVFormat: minidump.CVFormatPDB70})
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}

	destPath := *out
	tmpWrite := *storeDir != ""
	if tmpWrite {
		f, err := os.CreateTemp("", "mdgen-*.tmp")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		destPath = f.Name()
		f.Close()
	}

	if err := writeDump(md, destPath); err != nil {
		return err
	}

	if tmpWrite {
		id, err := dumpstore.Finalize(destPath, *storeDir)
		if err != nil {
			return err
		}
		fmt.Printf("wrote report %s into %s\n", id, *storeDir)
		return nil
	}

	fmt.Printf("wrote %s\n", destPath)
	return nil
}

func writeDump(md *minidump.Minidump, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := dumpio.NewFile(f)
	if err := md.WriteEverything(w); err != nil {
		return fmt.Errorf("write minidump: %w", err)
	}

	return f.Sync()
}

func parseArch(s string) (snapshot.CPUArchitecture, snapshot.CpuContextArch, error) {
	switch s {
	case "x86":
		return snapshot.ArchX86, snapshot.CpuContextX86, nil
	case "amd64":
		return snapshot.ArchAMD64, snapshot.CpuContextAMD64, nil
	case "arm":
		return snapshot.ArchARM, snapshot.CpuContextARM, nil
	case "arm64":
		return snapshot.ArchARM64, snapshot.CpuContextARM64, nil
	default:
		return 0, 0, fmt.Errorf("unknown --arch %q (want x86, amd64, arm, or arm64)", s)
	}
}

func buildSyntheticProcess(
	numThreads, numModules int,
	withException, withStacks bool,
	cpuArch snapshot.CPUArchitecture,
	ctxArch snapshot.CpuContextArch,
) snapshot.Process {
	now := time.Now()

	proc := snapshot.Process{
		ProcessID:    4242,
		SnapshotTime: now,
		StartTime:    now.Add(-time.Minute),
		System: snapshot.System{
			OS:                 snapshot.OSLinux,
			OSVersionMajor:     6,
			OSVersionMinor:     1,
			CPUArchitecture:    cpuArch,
			MachineDescription: "mdgen synthetic host",
		},
	}
	proc.Annotations.SetSimple("generator", "mdgen")

	for i := 0; i < numThreads; i++ {
		threadID := uint32(1000 + i)
		th := snapshot.Thread{
			ThreadID: threadID,
			Priority: 8,
			Context:  syntheticContext(ctxArch, uint64(i)),
		}
		if withStacks {
			base := uint64(0x7f0000000000 + i*0x10000)
			data := make([]byte, 256)
			region := snapshot.MemoryRegion{
				BaseAddress: base,
				Size:        uint32(len(data)),
				Reader:      func() ([]byte, error) { return data, nil },
			}
			th.Stack = &region
		}
		proc.Threads = append(proc.Threads, th)
	}

	for i := 0; i < numModules; i++ {
		proc.Modules = append(proc.Modules, snapshot.Module{
			Name:        fmt.Sprintf("libsynthetic%d.so", i),
			BaseAddress: uint64(0x555000000000 + i*0x100000),
			Size:        0x10000,
			Timestamp:   uint32(now.Unix()),
			BuildID:     snapshot.BuildID{Age: 1},
		})
	}

	if withException && len(proc.Threads) > 0 {
		proc.Exception = &snapshot.Exception{
			ThreadID:         proc.Threads[0].ThreadID,
			ExceptionCode:    0xc0000005,
			ExceptionAddress: programCounter(proc.Threads[0].Context),
			Parameters:       []uint64{0, 0},
			Context:          proc.Threads[0].Context,
		}
	}

	return proc
}

func programCounter(ctx snapshot.CpuContext) uint64 {
	switch ctx.Arch {
	case snapshot.CpuContextX86:
		return uint64(ctx.X86.EIP)
	case snapshot.CpuContextARM:
		return uint64(ctx.ARM.Regs[15])
	case snapshot.CpuContextARM64:
		return ctx.ARM64.PC
	default:
		return ctx.AMD64.RIP
	}
}

func syntheticContext(arch snapshot.CpuContextArch, seed uint64) snapshot.CpuContext {
	switch arch {
	case snapshot.CpuContextX86:
		return snapshot.CpuContext{Arch: arch, X86: &snapshot.CPUContextX86{EIP: uint32(0x08040000 + seed)}}
	case snapshot.CpuContextARM:
		ctx := &snapshot.CPUContextARM{}
		ctx.Regs[15] = uint32(0x00010000 + seed)
		return snapshot.CpuContext{Arch: arch, ARM: ctx}
	case snapshot.CpuContextARM64:
		ctx := &snapshot.CPUContextARM64{PC: 0x0000000000400000 + seed}
		return snapshot.CpuContext{Arch: arch, ARM64: ctx}
	default:
		return snapshot.CpuContext{Arch: snapshot.CpuContextAMD64, AMD64: &snapshot.CPUContextX86_64{RIP: 0x0000555555554000 + seed}}
	}
}
