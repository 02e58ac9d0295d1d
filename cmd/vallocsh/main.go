// Command vallocsh is an interactive shell for experimenting with the valloc
// allocator. Variables hold int32 values that live in the arena:
//
//	>>> let a = 10
//	>>> a = 20
//	a = 20
//	>>> print a
//	20
//	>>> free a
//
// Run "vallocsh --help" for flags and "help" inside the shell for commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
