// indexctl is a REPL for inspecting and operating on a sparse offset
// index file directly, outside of a running log.
//
// Usage:
//
//	indexctl <index-file>              Open an existing index file
//	indexctl new [opts] <index-file>   Create a new index file
//
// Options for 'new':
//
//	-b, --base-offset   Base offset encoded by the index (default: 0)
//	-s, --max-size       Pre-allocated size in bytes (default: 1MiB)
//
// Commands (in REPL):
//
//	append <offset> <position>         Append an entry
//	lookup <offset>                     Find the lower-bound entry for offset
//	upper <offset> <pos> <fetchSize>    Find the fetch upper bound
//	entry <n>                           Show the raw nth entry
//	truncate                            Drop all entries
//	truncateto <offset>                 Drop entries at/after offset
//	grow <bytes>                        Extend the file's pre-allocated capacity
//	sanity                              Run the corruption check
//	seal                                Make the index read-only
//	flush                               Force dirty pages to disk
//	repair <store-file>                 Rebuild from a paired store file
//	info                                Show index info
//	help                                Show this help
//	exit / quit / q                     Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/huihuang-chen/kafka3.3/internal/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing command or index file path")
	}

	if os.Args[1] == "new" {
		return runNew(os.Args[2:])
	}

	return runOpen(os.Args[1:])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  indexctl <index-file>              Open an existing index file")
	fmt.Fprintln(os.Stderr, "  indexctl new [opts] <index-file>   Create a new index file")
	fmt.Fprintln(os.Stderr, "\nRun 'indexctl new --help' for options when creating a new index.")
}

func runNew(args []string) error {
	fs := pflag.NewFlagSet("new", pflag.ExitOnError)
	baseOffset := fs.Int64P("base-offset", "b", 0, "base offset encoded by the index")
	maxSize := fs.Int64P("max-size", "s", 1<<20, "pre-allocated size in bytes")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: indexctl new [options] <index-file>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing index file path")
	}

	path := fs.Arg(0)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("index file already exists: %s (use 'indexctl %s' to open it)", path, path)
	}

	idx, err := log.OpenOffsetIndex(path, *baseOffset, *maxSize, true)
	if err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	defer idx.Close()

	fmt.Printf("Created %s (baseOffset=%d, maxSize=%d)\n", path, *baseOffset, *maxSize)

	repl := &REPL{idx: idx, path: path}
	return repl.Run()
}

func runOpen(args []string) error {
	fs := pflag.NewFlagSet("open", pflag.ExitOnError)
	baseOffset := fs.Int64P("base-offset", "b", -1, "base offset (default: parsed from the filename)")
	readOnly := fs.BoolP("readonly", "r", false, "open read-only without inferring growth")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: indexctl <index-file>")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing index file path")
	}

	path := fs.Arg(0)
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("index file does not exist: %s (use 'indexctl new %s' to create it)", path, path)
	}
	if err != nil {
		return err
	}

	base := *baseOffset
	if base < 0 {
		base = baseOffsetFromName(path)
	}

	idx, err := log.OpenOffsetIndex(path, base, fi.Size(), !*readOnly)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close()

	repl := &REPL{idx: idx, path: path}
	return repl.Run()
}

// baseOffsetFromName parses the 20-digit base offset segment.go encodes
// into index file names; it falls back to 0 for anything else.
func baseOffsetFromName(path string) int64 {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	n, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// REPL is the interactive command loop over one open index.
type REPL struct {
	idx   *log.OffsetIndex
	path  string
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".indexctl_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("indexctl - %s (baseOffset=%d, entries=%d)\n", r.path, r.idx.BaseOffset(), r.idx.Entries())
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("indexctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "append":
			r.cmdAppend(args)
		case "lookup":
			r.cmdLookup(args)
		case "upper":
			r.cmdUpper(args)
		case "entry":
			r.cmdEntry(args)
		case "truncate":
			r.cmdTruncate()
		case "truncateto":
			r.cmdTruncateTo(args)
		case "dump":
			r.cmdDump(args)
		case "grow":
			r.cmdGrow(args)
		case "sanity":
			r.cmdSanity()
		case "seal":
			r.cmdSeal()
		case "flush":
			r.cmdFlush()
		case "repair":
			r.cmdRepair(args)
		case "info":
			r.cmdInfo()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"append", "lookup", "upper", "entry",
		"truncate", "truncateto", "dump", "grow", "sanity", "seal",
		"flush", "repair", "info", "help", "exit", "quit", "q",
	}
	var completions []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			completions = append(completions, c)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  append <offset> <position>       Append an entry")
	fmt.Println("  lookup <offset>                   Find the lower-bound entry for offset")
	fmt.Println("  upper <offset> <pos> <fetchSize>  Find the fetch upper bound")
	fmt.Println("  entry <n>                         Show the raw nth entry")
	fmt.Println("  truncate                          Drop all entries")
	fmt.Println("  truncateto <offset>                Drop entries at/after offset")
	fmt.Println("  dump [limit]                      Dump entries as YAML")
	fmt.Println("  grow <bytes>                       Extend the file's pre-allocated capacity")
	fmt.Println("  sanity                            Run the corruption check")
	fmt.Println("  seal                              Make the index read-only")
	fmt.Println("  flush                             Force dirty pages to disk")
	fmt.Println("  repair <store-file>               Rebuild from a paired store file")
	fmt.Println("  info                              Show index info")
	fmt.Println("  help                              Show this help")
	fmt.Println("  exit / quit / q                   Exit")
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func (r *REPL) cmdAppend(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: append <offset> <position>")
		return
	}
	offset, err := parseInt64(args[0])
	if err != nil {
		fmt.Printf("Error parsing offset: %v\n", err)
		return
	}
	position, err := parseInt64(args[1])
	if err != nil {
		fmt.Printf("Error parsing position: %v\n", err)
		return
	}
	if err := r.idx.Append(offset, position); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK: appended (offset=%d, position=%d)\n", offset, position)
}

func (r *REPL) cmdLookup(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: lookup <offset>")
		return
	}
	target, err := parseInt64(args[0])
	if err != nil {
		fmt.Printf("Error parsing offset: %v\n", err)
		return
	}
	offset, position, err := r.idx.Lookup(target)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("offset=%d position=%d\n", offset, position)
}

// dumpEntry is the YAML-serializable shape of one index slot, used by
// the dump command for a machine-readable snapshot of the live index.
type dumpEntry struct {
	Slot     int64 `yaml:"slot"`
	Offset   int64 `yaml:"offset"`
	Position int64 `yaml:"position"`
}

func (r *REPL) cmdDump(args []string) {
	limit := r.idx.Entries()
	if len(args) >= 1 {
		n, err := parseInt64(args[0])
		if err != nil {
			fmt.Printf("Error parsing limit: %v\n", err)
			return
		}
		if n < limit {
			limit = n
		}
	}

	entries := make([]dumpEntry, 0, limit)
	for n := int64(0); n < limit; n++ {
		offset, position, err := r.idx.Entry(n)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		entries = append(entries, dumpEntry{Slot: n, Offset: offset, Position: position})
	}

	out, err := yaml.Marshal(entries)
	if err != nil {
		fmt.Printf("Error marshaling: %v\n", err)
		return
	}
	fmt.Print(string(out))
}

func (r *REPL) cmdUpper(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: upper <offset> <position> <fetchSize>")
		return
	}
	startOffset, err := parseInt64(args[0])
	if err != nil {
		fmt.Printf("Error parsing offset: %v\n", err)
		return
	}
	startPosition, err := parseInt64(args[1])
	if err != nil {
		fmt.Printf("Error parsing position: %v\n", err)
		return
	}
	fetchSize, err := parseInt64(args[2])
	if err != nil {
		fmt.Printf("Error parsing fetchSize: %v\n", err)
		return
	}
	offset, position, ok, err := r.idx.FetchUpperBoundOffset(startOffset, startPosition, fetchSize)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("(no entry within fetchSize)")
		return
	}
	fmt.Printf("offset=%d position=%d\n", offset, position)
}

func (r *REPL) cmdEntry(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: entry <n>")
		return
	}
	n, err := parseInt64(args[0])
	if err != nil {
		fmt.Printf("Error parsing n: %v\n", err)
		return
	}
	offset, position, err := r.idx.Entry(n)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("entry[%d]: offset=%d position=%d\n", n, offset, position)
}

func (r *REPL) cmdTruncate() {
	if err := r.idx.Truncate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK: truncated to empty")
}

func (r *REPL) cmdTruncateTo(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: truncateto <offset>")
		return
	}
	offset, err := parseInt64(args[0])
	if err != nil {
		fmt.Printf("Error parsing offset: %v\n", err)
		return
	}
	if err := r.idx.TruncateTo(offset); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK: truncated to offset < %d, entries=%d\n", offset, r.idx.Entries())
}

func (r *REPL) cmdGrow(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: grow <bytes>")
		return
	}
	newMaxBytes, err := parseInt64(args[0])
	if err != nil {
		fmt.Printf("Error parsing bytes: %v\n", err)
		return
	}
	if err := r.idx.Grow(newMaxBytes); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK: grown to %d bytes rounded down to whole entries\n", newMaxBytes)
}

func (r *REPL) cmdSanity() {
	if err := r.idx.SanityCheck(); err != nil {
		fmt.Printf("FAIL: %v\n", err)
		return
	}
	fmt.Println("OK: index passes sanity check")
}

func (r *REPL) cmdSeal() {
	if err := r.idx.MakeReadOnly(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK: index sealed read-only")
}

func (r *REPL) cmdFlush() {
	if err := r.idx.Flush(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK: flushed")
}

func (r *REPL) cmdRepair(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: repair <store-file>")
		return
	}
	storePath := args[0]

	answer, err := r.liner.Prompt(fmt.Sprintf("Rebuild %s from %s? (yes/no): ", r.path, storePath))
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer != "yes" && answer != "y" {
		fmt.Println("Cancelled.")
		return
	}

	baseOffset := r.idx.BaseOffset()
	var maxSize int64
	if fi, statErr := os.Stat(r.path); statErr == nil {
		maxSize = fi.Size()
	}

	if err := r.idx.Close(); err != nil {
		fmt.Printf("Error closing current index: %v\n", err)
		return
	}

	rebuilt, err := log.RebuildOffsetIndex(storePath, r.path, baseOffset, maxSize, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	r.idx = rebuilt
	fmt.Printf("OK: rebuilt %s, entries=%d\n", r.path, r.idx.Entries())
}

func (r *REPL) cmdInfo() {
	fmt.Printf("Index Info:\n")
	fmt.Printf("  Path:         %s\n", r.path)
	fmt.Printf("  Base offset:  %d\n", r.idx.BaseOffset())
	fmt.Printf("  Last offset:  %d\n", r.idx.LastOffset())
	fmt.Printf("  Entries:      %d\n", r.idx.Entries())
}
