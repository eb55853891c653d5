package minidump

import (
	"time"

	"github.com/crashvault/minidump/pkg/snapshot"
)

// Options configures AssembleFromProcess.
type Options struct {
	// CVFormat selects the CodeView record shape for every module (§4.3.4).
	// Defaults to CVFormatPDB70 if left zero.
	CVFormat CVFormat

	// CSDVersion is copied into the SystemInfo stream's trailing string
	// (§4.3.4); typically a service-pack or kernel-version string.
	CSDVersion string
}

// AssembleFromProcess builds a complete Minidump from a snapshot.Process:
// a ThreadList, ModuleList, MemoryList, SystemInfo, and (if the process
// has one) an Exception stream, wired together so that a memory region
// reachable from both a thread's stack and the process's extra-memory set
// is written exactly once (§3.2).
//
// Threads and modules are consumed through the snapshot package's
// capability accessors (ThreadList, ModuleList, StackMemory) rather than
// by reaching into Process's fields directly, so a caller assembling a
// dump from a synthetic fixture only needs to satisfy the capability it
// actually has data for.
//
// The returned Minidump is otherwise unfrozen; callers may still add
// UserStream or ThreadNameList/StackTraceList entries before calling
// WriteEverything.
func AssembleFromProcess(p snapshot.Process, opts Options) (*Minidump, error) {
	return Assemble(snapshot.ThreadSlice(p.Threads), snapshot.ModuleSlice(p.Modules),
		p.System, p.Exception, p.ExtraMemory, p.SnapshotTime, opts)
}

// Assemble is the capability-oriented counterpart to AssembleFromProcess:
// it takes a ThreadList and ModuleList directly, for callers that have
// something other than a fully populated snapshot.Process (e.g. a test
// fixture or a partial reconstruction).
func Assemble(
	threads snapshot.ThreadList,
	modules snapshot.ModuleList,
	sys snapshot.System,
	exception *snapshot.Exception,
	extraMemory []snapshot.MemoryRegion,
	snapshotTime time.Time,
	opts Options,
) (*Minidump, error) {
	md := New()
	md.SetTimestamp(snapshotTime)

	registry := newMemoryRegistry()

	memList := NewMemoryListWriter()
	threadList := NewThreadListWriter()
	threadList.SetMemoryListWriter(memList)

	for _, t := range threads.Threads() {
		tw := NewThreadWriter(t)
		if region, ok := snapshot.NewStackMemory(t).Stack(); ok {
			tw.setStackWriter(registry.get(region))
		}
		threadList.AddThread(tw)
	}

	for _, region := range extraMemory {
		memList.AddMemory(registry.get(region))
	}

	moduleList := NewModuleListWriter()
	for _, m := range modules.Modules() {
		moduleList.AddModule(NewModuleWriter(m, opts.CVFormat))
	}

	if err := md.AddStream(threadList); err != nil {
		return nil, err
	}
	if err := md.AddStream(moduleList); err != nil {
		return nil, err
	}
	if err := md.AddStream(memList); err != nil {
		return nil, err
	}
	if err := md.AddStream(NewSystemInfoWriter(sys, opts.CSDVersion)); err != nil {
		return nil, err
	}
	if exception != nil {
		if err := md.AddStream(NewExceptionStreamWriter(*exception)); err != nil {
			return nil, err
		}
	}

	return md, nil
}
