package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulkyeet/flasharb/internal/logging"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the exit code so deferred cleanup happens before os.Exit.
func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer logging.CleanupLogger()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		logging.GetLogger().Warn("command failed", zap.Error(err))
		return 1
	}
	return 0
}
