package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	outboxUseCase "github.com/allisson/identity/internal/outbox/usecase"
)

// RelayRunner drains the outbox either once or on a schedule.
type RelayRunner interface {
	Start(ctx context.Context) error
	RunCycle(ctx context.Context) (outboxUseCase.CycleResult, error)
}

// MetricsRunner serves the metrics endpoint until ctx is done.
type MetricsRunner interface {
	Run(ctx context.Context) error
}

// RunRelay runs the outbox relay. With once it runs a single cycle and prints the result,
// otherwise it blocks until ctx is canceled, serving metrics alongside when metricsServer
// is not nil.
func RunRelay(
	ctx context.Context,
	relay RelayRunner,
	metricsServer MetricsRunner,
	logger *slog.Logger,
	out io.Writer,
	once bool,
	format string,
) error {
	if !once {
		return runRelayLoop(ctx, relay, metricsServer)
	}

	result, err := relay.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("failed to run relay cycle: %w", err)
	}

	logger.Info("relay cycle completed",
		slog.Int("fetched", result.Fetched),
		slog.Int("published", result.Published),
		slog.Int("failed", result.Failed),
	)

	if format == "json" {
		return writeJSON(out, map[string]int{
			"fetched":   result.Fetched,
			"published": result.Published,
			"failed":    result.Failed,
		})
	}

	_, err = fmt.Fprintf(out, "Relay cycle: fetched=%d published=%d failed=%d\n",
		result.Fetched, result.Published, result.Failed)
	return err
}

func runRelayLoop(ctx context.Context, relay RelayRunner, metricsServer MetricsRunner) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Stop the metrics server once the relay returns.
		defer cancel()
		err := relay.Start(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay stopped: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Run(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
