package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"redfish-mockup-creator/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cli.CommandName, err)
		cancel()
		os.Exit(1)
	}
}
