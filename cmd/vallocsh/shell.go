package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/valloc"
	"github.com/hupe1980/valloc/internal/fs"
)

const prompt = ">>> "

var errUsage = errors.New("usage")

type variable struct {
	name string
	ptr  valloc.Ptr[int32]
}

// session evaluates shell commands against a single allocator. Variables keep
// their declaration order so "vars" prints them the way they were defined.
type session struct {
	a           *valloc.Allocator
	out         io.Writer
	vars        []variable
	fsys        fs.FileSystem
	compression valloc.Compression
}

func newSession(a *valloc.Allocator, out io.Writer) *session {
	return &session{a: a, out: out, fsys: fs.Default, compression: valloc.CompressionLZ4}
}

// run reads commands from in until "exit", EOF or context cancellation.
// Command errors are reported and do not end the session.
func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, prompt)

		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		quit, err := s.exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintln(s.out, "error:", err)
		}
		if quit {
			return nil
		}
	}
}

func (s *session) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "exit", "quit":
		return true, nil
	case "help":
		s.help()
		return false, nil
	case "let":
		return false, s.let(args)
	case "print":
		return false, s.print(args)
	case "free":
		return false, s.free(args)
	case "vars":
		return false, s.listVars()
	case "stats":
		s.stats()
		return false, nil
	case "chunks":
		printChunks(s.out, s.a.Chunks())
		return false, nil
	case "dump":
		return false, s.dump(ctx, args)
	default:
		if i := s.lookup(cmd); i >= 0 {
			return false, s.assign(i, args)
		}
		return false, fmt.Errorf("unknown command or variable %q, try \"help\"", cmd)
	}
}

func (s *session) lookup(name string) int {
	return slices.IndexFunc(s.vars, func(v variable) bool { return v.name == name })
}

func (s *session) mustLookup(name string) (int, error) {
	i := s.lookup(name)
	if i < 0 {
		return -1, fmt.Errorf("undefined variable %q", name)
	}
	return i, nil
}

// parseAssignment accepts "= <value>".
func parseAssignment(args []string) (int32, error) {
	if len(args) != 2 || args[0] != "=" {
		return 0, errUsage
	}
	v, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid int32 %q: %w", args[1], err)
	}
	return int32(v), nil
}

// let <name> = <value>
func (s *session) let(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: let <name> = <int32>", errUsage)
	}
	name := args[0]
	value, err := parseAssignment(args[1:])
	if err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w: let <name> = <int32>", errUsage)
		}
		return err
	}
	if _, err := strconv.Atoi(name); err == nil || isKeyword(name) {
		return fmt.Errorf("invalid variable name %q", name)
	}

	// Redefinition reuses the existing allocation.
	if i := s.lookup(name); i >= 0 {
		return valloc.Write(s.a, s.vars[i].ptr, value)
	}

	p, err := valloc.AllocTyped[int32](s.a, 1)
	if err != nil {
		return err
	}
	if err := valloc.Write(s.a, p, value); err != nil {
		_ = valloc.Free(s.a, &p)
		return err
	}
	s.vars = append(s.vars, variable{name: name, ptr: p})
	return nil
}

// <name> = <value>
func (s *session) assign(i int, args []string) error {
	value, err := parseAssignment(args)
	if err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("%w: %s = <int32>", errUsage, s.vars[i].name)
		}
		return err
	}
	if err := valloc.Write(s.a, s.vars[i].ptr, value); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s = %d\n", s.vars[i].name, value)
	return nil
}

func (s *session) print(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: print <name>", errUsage)
	}
	i, err := s.mustLookup(args[0])
	if err != nil {
		return err
	}
	v, err := valloc.Read(s.a, s.vars[i].ptr)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, v)
	return nil
}

func (s *session) free(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: free <name>", errUsage)
	}
	i, err := s.mustLookup(args[0])
	if err != nil {
		return err
	}
	if err := valloc.Free(s.a, &s.vars[i].ptr); err != nil {
		return err
	}
	s.vars = slices.Delete(s.vars, i, i+1)
	return nil
}

func (s *session) listVars() error {
	for _, v := range s.vars {
		value, err := valloc.Read(s.a, v.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
		fmt.Fprintf(s.out, "%s = %d\n", v.name, value)
	}
	return nil
}

func (s *session) stats() {
	st := s.a.Stats()
	fmt.Fprintf(s.out, "capacity %d, available %d, chunks %d (%d live, %d free), largest free %d, fragmentation %.2f\n",
		st.Capacity, st.Available, st.Chunks, st.LiveChunks, st.FreeChunks, st.LargestFree, st.Fragmentation())
}

// dump <file>
func (s *session) dump(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: dump <file>", errUsage)
	}
	var n int64
	err := fs.WriteFileAtomic(s.fsys, args[0], 0o644, func(w io.Writer) error {
		var err error
		n, err = s.a.Dump(ctx, w, valloc.WithCompression(s.compression))
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %d bytes to %s\n", n, args[0])
	return nil
}

func (s *session) help() {
	fmt.Fprint(s.out, `commands:
  let <name> = <int32>   allocate a variable in the arena
  <name> = <int32>       overwrite a variable
  print <name>           print a variable
  free <name>            release a variable
  vars                   list variables
  stats                  print allocator statistics
  chunks                 print the chunk ledger
  dump <file>            write a heap dump
  exit                   leave the shell
`)
}

func isKeyword(name string) bool {
	switch name {
	case "let", "print", "free", "vars", "stats", "chunks", "dump", "help", "exit", "quit", "=":
		return true
	}
	return false
}

func printChunks(out io.Writer, chunks []valloc.ChunkInfo) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "BASE\tSIZE\tEND\tSTATE\t")
	for _, c := range chunks {
		state := "free"
		if c.InUse {
			state = "used"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t\n", c.Base, c.Size, c.End(), state)
	}
	_ = tw.Flush()
}
