//go:build unix

// Command actorloop runs demonstrations and benchmarks of the actorloop
// runtime and its engines.
package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/KimMachineGun/automemlimit"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "actorloop:", err)
		os.Exit(1)
	}
}
