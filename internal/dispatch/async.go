package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("side effect queue full")

// Async hands status changes to a fixed pool of workers so callers return as soon
// as the change is queued.
type Async struct {
	next    orders.SideEffects
	log     *zap.Logger
	jobs    chan orders.StatusChange
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

func NewAsync(next orders.SideEffects, workers, buf int, log *zap.Logger) *Async {
	if workers <= 0 {
		workers = 1
	}
	return &Async{next: next, log: log, jobs: make(chan orders.StatusChange, buf), workers: workers}
}

func (a *Async) Start(ctx context.Context) {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for c := range a.jobs {
				a.run(ctx, c)
			}
		}()
	}
}

func (a *Async) run(ctx context.Context, c orders.StatusChange) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("side effect panicked", zap.String("order_id", c.Order.ID), zap.Any("panic", r))
		}
	}()
	if err := a.next.StatusChanged(ctx, c); err != nil {
		a.log.Warn("side effect failed",
			zap.String("order_id", c.Order.ID),
			zap.String("to", string(c.To)),
			zap.Error(err))
	}
}

// StatusChanged queues c without blocking.
func (a *Async) StatusChanged(_ context.Context, c orders.StatusChange) error {
	select {
	case a.jobs <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued changes to finish.
func (a *Async) Close() {
	a.once.Do(func() { close(a.jobs) })
	a.wg.Wait()
}
