package snapshot

// The writer consumes a process through small capability interfaces rather
// than depending on the concrete [Process] struct directly, so a caller
// assembling a dump from a synthetic fixture only needs to satisfy the
// capability it actually exercises.

// StackMemory exposes a thread's captured stack, if any.
type StackMemory interface {
	// Stack returns the thread's stack memory region, or ok=false if the
	// thread has none (unreadable, or the acquisition layer chose not to
	// capture it).
	Stack() (region MemoryRegion, ok bool)
}

// ThreadList yields a process's threads in a stable order.
type ThreadList interface {
	Threads() []Thread
}

// ModuleList yields a process's modules in load order, main executable
// first where the OS exposes that ordering.
type ModuleList interface {
	Modules() []Module
}

// ThreadSlice adapts a plain []Thread to [ThreadList].
type ThreadSlice []Thread

func (s ThreadSlice) Threads() []Thread { return s }

// ModuleSlice adapts a plain []Module to [ModuleList].
type ModuleSlice []Module

func (s ModuleSlice) Modules() []Module { return s }

// threadStack adapts a [Thread] to [StackMemory].
type threadStack struct{ t Thread }

// NewStackMemory wraps a Thread so the writer can query its stack through
// the StackMemory capability.
func NewStackMemory(t Thread) StackMemory { return threadStack{t: t} }

func (s threadStack) Stack() (MemoryRegion, bool) {
	if s.t.Stack == nil {
		return MemoryRegion{}, false
	}
	return *s.t.Stack, true
}

// Compile-time interface checks.
var (
	_ ThreadList   = ThreadSlice(nil)
	_ ModuleList   = ModuleSlice(nil)
	_ StackMemory  = threadStack{}
)
