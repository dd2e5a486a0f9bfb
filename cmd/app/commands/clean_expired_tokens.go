package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// TokenCleaner deletes expired and consumed secure tokens.
type TokenCleaner interface {
	CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error)
}

// RunCleanExpiredTokens deletes password reset and email verification tokens that expired
// or were consumed more than days ago. With dryRun it only reports the count.
func RunCleanExpiredTokens(
	ctx context.Context,
	cleaner TokenCleaner,
	logger *slog.Logger,
	out io.Writer,
	days int,
	dryRun bool,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}

	logger.Info("cleaning expired tokens",
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	count, err := cleaner.CleanupExpired(ctx, days, dryRun)
	if err != nil {
		return fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	if format == "json" {
		if err := writeJSON(out, map[string]interface{}{
			"count":   count,
			"days":    days,
			"dry_run": dryRun,
		}); err != nil {
			return err
		}
	} else if dryRun {
		_, _ = fmt.Fprintf(out, "Dry-run mode: Would delete %d expired token(s) older than %d day(s)\n", count, days)
	} else {
		_, _ = fmt.Fprintf(out, "Successfully deleted %d expired token(s) older than %d day(s)\n", count, days)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	return nil
}
