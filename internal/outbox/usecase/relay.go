package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/allisson/identity/internal/database"
	apperrors "github.com/allisson/identity/internal/errors"
	"github.com/allisson/identity/internal/metrics"
	"github.com/allisson/identity/internal/outbox/domain"
)

var (
	// ErrNoHandler indicates the router resolved no handler and no fallback is configured.
	ErrNoHandler = apperrors.New("no handler for outbox topic")

	// ErrHandlerPanic indicates a handler panicked while processing a message.
	ErrHandlerPanic = apperrors.New("outbox handler panicked")
)

// RelayConfig holds relay scheduling configuration.
type RelayConfig struct {
	InitialDelay    time.Duration
	Interval        time.Duration
	BatchSize       int
	DispatchTimeout time.Duration
}

// DefaultRelayConfig returns a 5s initial delay, a 10s interval, batches of 50 and a 5s
// dispatch timeout.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		InitialDelay:    5 * time.Second,
		Interval:        10 * time.Second,
		BatchSize:       50,
		DispatchTimeout: 5 * time.Second,
	}
}

// CycleResult summarizes one relay cycle.
type CycleResult struct {
	Fetched   int
	Published int
	Failed    int
}

// Relay drains unpublished outbox messages, routes each one to its handler and marks
// successes published. Failed messages stay pending for the next cycle.
type Relay struct {
	config    RelayConfig
	txManager database.TxManager
	repo      MessageRepository
	router    *Router
	clock     clockwork.Clock
	metrics   metrics.BusinessMetrics
	logger    *slog.Logger
}

// NewRelay creates a new Relay.
func NewRelay(
	config RelayConfig,
	txManager database.TxManager,
	repo MessageRepository,
	router *Router,
	clock clockwork.Clock,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Relay {
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Relay{
		config:    config,
		txManager: txManager,
		repo:      repo,
		router:    router,
		clock:     clock,
		metrics:   businessMetrics,
		logger:    logger,
	}
}

// Start waits InitialDelay, then runs a cycle every Interval until ctx is done. Cycle errors
// are logged; Start only returns ctx.Err().
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting outbox relay",
		slog.Duration("initial_delay", r.config.InitialDelay),
		slog.Duration("interval", r.config.Interval),
		slog.Int("batch_size", r.config.BatchSize),
		slog.Duration("dispatch_timeout", r.config.DispatchTimeout),
	)

	select {
	case <-ctx.Done():
		r.logger.Info("stopping outbox relay")
		return ctx.Err()
	case <-r.clock.After(r.config.InitialDelay):
	}

	r.runAndLog(ctx)

	ticker := r.clock.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping outbox relay")
			return ctx.Err()
		case <-ticker.Chan():
			r.runAndLog(ctx)
		}
	}
}

func (r *Relay) runAndLog(ctx context.Context) {
	result, err := r.RunCycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("outbox relay cycle failed", slog.Any("error", err))
		}
		return
	}
	if result.Fetched > 0 {
		r.logger.Info("outbox relay cycle completed",
			slog.Int("fetched", result.Fetched),
			slog.Int("published", result.Published),
			slog.Int("failed", result.Failed),
		)
	}
}

// RunCycle processes one batch inside a single transaction that holds the row locks taken
// by ListUnpublished. Each mark runs in its own savepoint, so a failing message never
// stops or undoes the messages around it.
func (r *Relay) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	var result CycleResult

	err := r.txManager.WithTx(ctx, func(ctx context.Context) error {
		messages, err := r.repo.ListUnpublished(ctx, r.config.BatchSize)
		if err != nil {
			return err
		}
		result.Fetched = len(messages)

		for _, message := range messages {
			if err := r.dispatch(ctx, message); err != nil {
				result.Failed++
				r.recordDispatch(ctx, metrics.StatusError)
				r.logger.Error("failed to dispatch outbox message",
					slog.Int64("message_id", message.ID),
					slog.String("topic", message.Topic),
					slog.Bool("transient", apperrors.Transient(err)),
					slog.Any("error", err),
				)
				continue
			}

			err = database.WithSavepoint(ctx, "outbox_mark_published", func(ctx context.Context) error {
				return r.repo.MarkPublished(ctx, message.ID, r.publishedAt(message))
			})
			if err != nil {
				result.Failed++
				r.recordDispatch(ctx, metrics.StatusError)
				r.logger.Error("failed to mark outbox message as published",
					slog.Int64("message_id", message.ID),
					slog.String("topic", message.Topic),
					slog.Any("error", err),
				)
				continue
			}

			result.Published++
			r.recordDispatch(ctx, metrics.StatusSuccess)
		}

		return nil
	})

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	r.metrics.RecordDuration(ctx, "outbox", "relay_cycle", time.Since(start), status)
	if err == nil {
		r.metrics.RecordRelayCycle(ctx, result.Fetched, result.Published, result.Failed)
	}

	return result, err
}

// dispatch runs the routed handler under DispatchTimeout and converts panics to errors.
func (r *Relay) dispatch(ctx context.Context, message *domain.Message) (err error) {
	handler := r.router.Route(message.Topic)
	if handler == nil {
		return ErrNoHandler
	}

	if r.config.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.DispatchTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()

	return handler.Handle(ctx, message)
}

func (r *Relay) publishedAt(message *domain.Message) time.Time {
	now := r.clock.Now().UTC()
	if now.Before(message.CreatedAt) {
		return message.CreatedAt
	}
	return now
}

func (r *Relay) recordDispatch(ctx context.Context, status string) {
	r.metrics.RecordOperation(ctx, "outbox", "relay_dispatch", status)
}
