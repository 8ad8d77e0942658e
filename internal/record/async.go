package record

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async decouples the game loop from persistence. Submit never blocks; a full
// queue drops the record with an error log.
type Async struct {
	next    Recorder
	queue   chan MatchRecord
	timeout time.Duration
	logger  *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewAsync(next Recorder, size int, timeout time.Duration, logger *zap.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Async{next: next, queue: make(chan MatchRecord, size), timeout: timeout, logger: logger}
	a.wg.Add(1)
	go a.run()
	return a
}

// Submit enqueues m and reports whether it was accepted.
func (a *Async) Submit(m MatchRecord) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("record_dropped_closed", zap.String("match", m.ID))
		return false
	}
	select {
	case a.queue <- m:
		return true
	default:
		a.logger.Error("record_dropped_queue_full", zap.String("match", m.ID), zap.String("room", m.RoomID))
		return false
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for m := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Record(ctx, m)
		cancel()
		if err != nil {
			a.logger.Error("record_persist_error",
				zap.String("match", m.ID),
				zap.String("room", m.RoomID),
				zap.Error(err),
			)
			continue
		}
		a.logger.Info("record_persisted",
			zap.String("match", m.ID),
			zap.String("room", m.RoomID),
			zap.String("reason", m.Reason),
			zap.Int("moves", len(m.Moves)),
		)
	}
}

// Close stops accepting records and waits for the queue to drain.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
