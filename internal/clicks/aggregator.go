// Package clicks accumulates visit counts per short key in memory and
// periodically merges them into durable link records.
package clicks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vadimbarashkov/short-links/internal/entity"
)

// ErrFlushInProgress is returned by Flush when another flush has not finished yet.
var ErrFlushInProgress = errors.New("click flush in progress")

// errLinkReplaced marks a snapshot whose link was deleted and created again
// after the clicks were drained.
var errLinkReplaced = errors.New("link created after snapshot")

const DefaultFlushPeriod = 30 * time.Second

type linkStore interface {
	GetByShortKey(ctx context.Context, shortKey string) (*entity.Link, error)
	Update(ctx context.Context, link *entity.Link) (*entity.Link, error)
}

// FlushResult summarises one flush cycle.
type FlushResult struct {
	Clicks int64 // Clicks is the number of clicks persisted.
	Keys   int   // Keys is the number of distinct short keys persisted.
	Failed int   // Failed is the number of short keys whose clicks were dropped.
}

// Aggregator counts clicks in memory. RecordClick never touches storage;
// Flush moves the pending counts into storage.
type Aggregator struct {
	store  linkStore
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]int64

	flushMu sync.Mutex
}

func NewAggregator(store linkStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]int64),
	}
}

// RecordClick adds one click for shortKey.
func (a *Aggregator) RecordClick(shortKey string) {
	a.mu.Lock()
	a.pending[shortKey]++
	a.mu.Unlock()
}

// CurrentCount returns the clicks recorded for shortKey since the last flush.
func (a *Aggregator) CurrentCount(shortKey string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.pending[shortKey]
}

// Pending returns the number of short keys with unflushed clicks.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}

// Discard drops the unflushed clicks of shortKey.
func (a *Aggregator) Discard(shortKey string) {
	a.mu.Lock()
	delete(a.pending, shortKey)
	a.mu.Unlock()
}

// Reset drops every unflushed click.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.pending = make(map[string]int64)
	a.mu.Unlock()
}

// Flush persists the pending counts. Clicks recorded after the snapshot is
// taken belong to the next cycle. A key that cannot be loaded or updated is
// logged and skipped and its clicks are dropped; the returned error then wraps
// entity.ErrFlushPartialFailure. Only one flush runs at a time: a concurrent
// call returns ErrFlushInProgress without doing anything.
func (a *Aggregator) Flush(ctx context.Context) (FlushResult, error) {
	if !a.flushMu.TryLock() {
		return FlushResult{}, ErrFlushInProgress
	}
	defer a.flushMu.Unlock()

	return a.flush(ctx)
}

func (a *Aggregator) flush(ctx context.Context) (FlushResult, error) {
	const op = "clicks.Aggregator.Flush"

	snapshot, takenAt := a.drain()

	var res FlushResult
	for shortKey, count := range snapshot {
		err := a.persist(ctx, shortKey, count, takenAt)
		if errors.Is(err, errLinkReplaced) {
			a.logger.Debug("dropping clicks of a replaced link",
				slog.String("short_key", shortKey),
				slog.Int64("clicks", count),
			)
			continue
		}
		if err != nil {
			res.Failed++
			a.logger.Error("failed to store clicks",
				slog.String("op", op),
				slog.String("short_key", shortKey),
				slog.Int64("clicks", count),
				slog.Any("err", err),
			)
			continue
		}

		res.Clicks += count
		res.Keys++
	}

	if res.Failed > 0 {
		return res, fmt.Errorf("%s: %d of %d short keys: %w", op, res.Failed, len(snapshot), entity.ErrFlushPartialFailure)
	}

	return res, nil
}

func (a *Aggregator) drain() (map[string]int64, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.pending
	a.pending = make(map[string]int64, len(snapshot))

	return snapshot, a.now()
}

// persist adds count to the stored clicks of shortKey. Clicks drained before
// the stored link was created belong to a link that no longer exists.
func (a *Aggregator) persist(ctx context.Context, shortKey string, count int64, takenAt time.Time) error {
	link, err := a.store.GetByShortKey(ctx, shortKey)
	if err != nil {
		return fmt.Errorf("failed to load link: %w", err)
	}

	if link.CreatedAt.After(takenAt) {
		return errLinkReplaced
	}

	link.Clicks += count

	if _, err := a.store.Update(ctx, link); err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	return nil
}

// Run flushes every period until ctx is done, then performs a final flush.
// A tick that fires while the previous flush is still running is skipped.
// A non-positive period selects DefaultFlushPeriod.
func (a *Aggregator) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultFlushPeriod
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()

			a.flushMu.Lock()
			res, err := a.flush(context.WithoutCancel(ctx))
			a.flushMu.Unlock()

			a.logger.Info("final click flush",
				slog.Int64("clicks", res.Clicks),
				slog.Int("keys", res.Keys),
				slog.Any("err", err),
			)

			return nil
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.scheduledFlush(context.WithoutCancel(ctx))
			}()
		}
	}
}

func (a *Aggregator) scheduledFlush(ctx context.Context) {
	res, err := a.Flush(ctx)

	switch {
	case errors.Is(err, ErrFlushInProgress):
		a.logger.Warn("previous click flush still running, skipping")
		return
	case err != nil:
		a.logger.Error("click flush finished with failures",
			slog.Int("failed", res.Failed),
			slog.Any("err", err),
		)
	}

	a.logger.Debug(fmt.Sprintf("%d clicks for %d short keys stored", res.Clicks, res.Keys))
}
