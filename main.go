package main

import (
	"context"
	"fmt"
	"os"

	"collector/internal/cli"
)

func main() {
	rc := cli.NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rc.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
