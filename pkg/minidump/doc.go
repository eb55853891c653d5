// Package minidump implements a hierarchical, two-pass streaming serializer
// for the Microsoft minidump file format.
//
// # Basic usage
//
//	w := minidump.New()
//	w.SetTimestamp(time.Now())
//
//	sysInfo := minidump.NewSystemInfoWriter(system, "")
//	if err := w.AddStream(sysInfo); err != nil {
//	    return err
//	}
//
//	out, err := dumpio.Create("/tmp/crash.dmp", 0o644)
//	if err != nil {
//	    return err
//	}
//	defer out.Close()
//
//	if err := w.WriteEverything(out); err != nil {
//	    return err
//	}
//
// # Two-pass serialization
//
// The output is a tree of writable nodes rooted at the [Minidump] itself.
// WriteEverything lays out the entire tree once, assigning every node an
// absolute file offset and resolving cross-references (pass 1), then walks
// the same laid-out tree a second time to emit bytes (pass 2). The only
// field ever patched after the fact is the header's signature, which is
// left zero until the whole file has been written successfully, so a
// truncated file is never mistaken for a valid minidump.
//
// # Error handling
//
// Errors fall into two kinds: [ErrIO] (the underlying [dumpio.Writer]
// failed) and [ErrFormat] (a layout invariant was violated — a duplicate
// stream type, a field that overflowed its wire width, or a required child
// that was never set). Both abort the write; no partial dump is ever
// reported as valid.
package minidump
