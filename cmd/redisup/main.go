package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/redisup/internal/core/domain"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitUsageError    = 2
	ExitDockerError   = 3
	ExitRegistryError = 4
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewCommand().Run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInstanceNotFound):
		return ExitUsageError
	case errors.Is(err, domain.ErrRuntimeUnavailable):
		return ExitDockerError
	case errors.Is(err, domain.ErrRegistryCorrupt), errors.Is(err, domain.ErrRegistryIO):
		return ExitRegistryError
	}
	return ExitError
}
