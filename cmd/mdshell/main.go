// Command mdshell is an interactive inspector for a minidump file
// written by this module: it lists the stream directory and lets you
// dump the raw bytes of one stream.
package main

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/crashvault/minidump/pkg/minidump"
)

// Wire offsets mirrored from the writer's format.go: this tool reads
// files this module produced, it does not implement a general-purpose
// minidump reader.
const (
	headerSignature = 0x504d444d
	headerSize      = 32
	directoryEntry  = 12
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: mdshell <dump-file>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "mdshell:", err)
		os.Exit(1)
	}
}

type streamEntry struct {
	Type minidump.StreamType
	Size uint32
	RVA  uint32
}

type dump struct {
	path    string
	raw     []byte
	streams []streamEntry
}

func loadDump(path string) (*dump, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%s: too small to be a minidump (%d bytes)", path, len(raw))
	}
	if sig := binary.LittleEndian.Uint32(raw[0:4]); sig != headerSignature {
		return nil, fmt.Errorf("%s: bad signature %#x (file may be truncated or not a minidump)", path, sig)
	}

	numStreams := binary.LittleEndian.Uint32(raw[8:12])
	dirRVA := binary.LittleEndian.Uint32(raw[12:16])

	streams := make([]streamEntry, 0, numStreams)
	for i := uint32(0); i < numStreams; i++ {
		off := dirRVA + i*directoryEntry
		if int(off+directoryEntry) > len(raw) {
			return nil, fmt.Errorf("%s: directory entry %d out of range", path, i)
		}
		streams = append(streams, streamEntry{
			Type: minidump.StreamType(binary.LittleEndian.Uint32(raw[off:])),
			Size: binary.LittleEndian.Uint32(raw[off+4:]),
			RVA:  binary.LittleEndian.Uint32(raw[off+8:]),
		})
	}

	return &dump{path: path, raw: raw, streams: streams}, nil
}

func streamTypeName(t minidump.StreamType) string {
	switch t {
	case minidump.StreamThreadList:
		return "ThreadList"
	case minidump.StreamModuleList:
		return "ModuleList"
	case minidump.StreamMemoryList:
		return "MemoryList"
	case minidump.StreamException:
		return "Exception"
	case minidump.StreamSystemInfo:
		return "SystemInfo"
	case minidump.StreamThreadNameList:
		return "ThreadNameList"
	case minidump.StreamStackTraceList:
		return "StackTraceList"
	default:
		if t >= minidump.StreamUserStreamBase {
			return fmt.Sprintf("UserStream(%#x)", uint32(t))
		}
		return fmt.Sprintf("Unknown(%#x)", uint32(t))
	}
}

func run(path string) error {
	d, err := loadDump(path)
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("mdshell - inspecting %s (%d streams)\n", d.path, len(d.streams))
	fmt.Println("Type 'help' for available commands.")

	for {
		input, err := line.Prompt("mdshell> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				break
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		fields := strings.Fields(input)
		switch fields[0] {
		case "exit", "quit", "q":
			saveHistory(line, histPath)
			return nil
		case "help", "?":
			printHelp()
		case "list", "ls":
			d.printList()
		case "show":
			d.cmdShow(fields[1:])
		case "hex":
			d.cmdHex(fields[1:])
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", fields[0])
		}
	}

	saveHistory(line, histPath)
	return nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  list              List the stream directory")
	fmt.Println("  show <index>      Show one stream's type, size and offset")
	fmt.Println("  hex <index> [n]   Hex-dump the first n bytes of a stream (default 64)")
	fmt.Println("  help              Show this help")
	fmt.Println("  exit / quit / q   Exit")
}

func (d *dump) printList() {
	for i, s := range d.streams {
		fmt.Printf("%3d. %-24s size=%-8d rva=%#08x\n", i, streamTypeName(s.Type), s.Size, s.RVA)
	}
}

func (d *dump) cmdShow(args []string) {
	s, ok := d.resolve(args)
	if !ok {
		return
	}
	fmt.Printf("type: %s (%#x)\nsize: %d\nrva:  %#x\n", streamTypeName(s.Type), uint32(s.Type), s.Size, s.RVA)
}

func (d *dump) cmdHex(args []string) {
	s, ok := d.resolve(args)
	if !ok {
		return
	}

	n := 64
	if len(args) >= 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil || parsed < 0 {
			fmt.Println("n must be a non-negative integer")
			return
		}
		n = parsed
	}
	if uint32(n) > s.Size {
		n = int(s.Size)
	}

	start := int(s.RVA)
	end := start + n
	if end > len(d.raw) {
		fmt.Println("stream extends past end of file (truncated dump?)")
		return
	}

	fmt.Print(hex.Dump(d.raw[start:end]))
}

func (d *dump) resolve(args []string) (streamEntry, bool) {
	if len(args) < 1 {
		fmt.Println("usage: show|hex <index>")
		return streamEntry{}, false
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil || idx < 0 || idx >= len(d.streams) {
		fmt.Printf("invalid stream index %q (use 'list' to see valid indices)\n", args[0])
		return streamEntry{}, false
	}
	return d.streams[idx], true
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mdshell_history")
}

func saveHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}
