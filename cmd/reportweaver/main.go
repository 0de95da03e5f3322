package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"reportweaver/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	res, _ := cli.Run(ctx, os.Args[1:])
	stop()
	os.Exit(res.ExitCode)
}
