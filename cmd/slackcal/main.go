package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// Повторный сигнал завершает процесс сразу.
	go func() {
		<-ctx.Done()
		stop()
	}()

	cmd, cleanup := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	cleanup()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
