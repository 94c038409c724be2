package settlement

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/cfs-escrow/internal/logger"
	"github.com/blues/cfs-escrow/internal/metrics"
	"github.com/panjf2000/ants/v2"
)

const (
	defaultRetryBase = 30 * time.Second
	defaultRetryMax  = time.Hour
)

// Summary counts the outcome of one Dispatch run.
type Summary struct {
	Settled int
	Retried int
	Failed  int
}

type outcome int

const (
	outcomeSettled outcome = iota
	outcomeRetried
	outcomeFailed
)

// Dispatcher drains the outbox through a Settler on a bounded worker pool.
// Transient errors keep a record pending with exponential backoff; only
// permanent errors fail it.
type Dispatcher struct {
	queue     Queue
	settler   Settler
	pool      *ants.Pool
	batchSize int
	metrics   *metrics.Collector

	retryBase time.Duration
	retryMax  time.Duration
	now       func() time.Time
}

// NewDispatcher creates a dispatcher with the given number of workers. Each
// Dispatch call takes at most batchSize due records.
func NewDispatcher(queue Queue, settler Settler, workers, batchSize int, m *metrics.Collector) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement pool: %w", err)
	}
	return &Dispatcher{
		queue:     queue,
		settler:   settler,
		pool:      pool,
		batchSize: batchSize,
		metrics:   m,
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
		now:       time.Now,
	}, nil
}

// SetBackoff sets the delay after the first failed attempt and the cap the
// doubling delay never exceeds. Zero values keep the defaults.
func (d *Dispatcher) SetBackoff(base, max time.Duration) {
	if base > 0 {
		d.retryBase = base
	}
	if max > 0 {
		d.retryMax = max
	}
	if d.retryMax < d.retryBase {
		d.retryMax = d.retryBase
	}
}

// SetClock replaces the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// backoff returns the delay before the attempt following the given number of
// failed attempts.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.retryBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.retryMax {
			return d.retryMax
		}
	}
	return delay
}

// Dispatch settles one batch of due records and waits for the batch to finish.
func (d *Dispatcher) Dispatch(ctx context.Context) (Summary, error) {
	records, err := d.queue.Due(ctx, d.now(), d.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to fetch pending settlements: %w", err)
	}
	if len(records) == 0 {
		return Summary{}, nil
	}
	logger.Debug("Dispatching %d pending settlements", len(records))

	var (
		wg                       sync.WaitGroup
		settled, retried, failed atomic.Int64
	)
	for _, record := range records {
		record := record
		wg.Add(1)
		err := d.pool.Submit(func() {
			defer wg.Done()
			switch d.settle(ctx, record) {
			case outcomeSettled:
				settled.Add(1)
			case outcomeRetried:
				retried.Add(1)
			default:
				failed.Add(1)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit settlement %s to pool: %v", record.ID, err)
		}
	}
	wg.Wait()

	return Summary{
		Settled: int(settled.Load()),
		Retried: int(retried.Load()),
		Failed:  int(failed.Load()),
	}, nil
}

func (d *Dispatcher) settle(ctx context.Context, record Record) outcome {
	txHash, err := d.settler.Settle(ctx, record)
	if err != nil {
		if IsPermanent(err) {
			return d.fail(ctx, record, err)
		}
		return d.retry(ctx, record, err)
	}

	d.metrics.ObserveSettlement(string(record.Kind), string(StatusSuccess))
	if err := d.queue.Complete(ctx, record.ID, txHash); err != nil {
		// The transfer is already broadcast; the next run would send it again.
		logger.Error("Settlement %s sent as %s but could not be marked complete: %v", record.ID, txHash, err)
		return outcomeFailed
	}
	logger.Info("Settled %s %s to %s, tx %s", record.Kind, record.Transfer.Amount, record.Transfer.Recipient, txHash)
	return outcomeSettled
}

func (d *Dispatcher) retry(ctx context.Context, record Record, cause error) outcome {
	delay := d.backoff(record.Attempts + 1)
	logger.Warn("Settlement %s (%s %s to %s) attempt %d failed, retrying in %s: %v",
		record.ID, record.Kind, record.Transfer.Amount, record.Transfer.Recipient, record.Attempts+1, delay, cause)
	d.metrics.ObserveSettlement(string(record.Kind), "retry")
	if err := d.queue.Retry(ctx, record.ID, cause.Error(), d.now().Add(delay)); err != nil {
		logger.Error("Failed to reschedule settlement %s: %v", record.ID, err)
	}
	return outcomeRetried
}

func (d *Dispatcher) fail(ctx context.Context, record Record, cause error) outcome {
	logger.Error("Settlement %s (%s %s to %s) failed permanently: %v",
		record.ID, record.Kind, record.Transfer.Amount, record.Transfer.Recipient, cause)
	d.metrics.ObserveSettlement(string(record.Kind), string(StatusFailed))
	if err := d.queue.Fail(ctx, record.ID, cause.Error()); err != nil {
		logger.Error("Failed to mark settlement %s failed: %v", record.ID, err)
	}
	return outcomeFailed
}

// Release stops the worker pool.
func (d *Dispatcher) Release() {
	d.pool.Release()
}
