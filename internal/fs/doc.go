// Package fs provides a small filesystem abstraction for writing heap dumps,
// plus a fault-injecting implementation for tests.
//
// Production code uses fs.Default:
//
//	err := fs.WriteFileAtomic(fs.Default, path, 0o644, func(w io.Writer) error {
//		_, err := a.Dump(ctx, w)
//		return err
//	})
//
// Tests wrap it to simulate I/O errors:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: 1024})
//
// Operations take no context.Context. Local file operations cannot be
// interrupted at the syscall level; cancellation is handled by the writer
// passed to WriteFileAtomic.
package fs
