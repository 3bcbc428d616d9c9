package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/medinsight/medinsight/internal/cli/medinsight"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := medinsight.Execute(ctx, os.Args[1:], medinsight.Options{})
	stop()
	os.Exit(code)
}
