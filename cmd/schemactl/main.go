package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storekeeper/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "schemactl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
