package flow

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/ent0n29/docbot/internal/policy"
	"github.com/ent0n29/docbot/internal/protocol"
)

// Queue serializes messages per sender. Each sender with queued messages has
// exactly one goroutine draining them in arrival order; different senders
// proceed in parallel.
type Queue struct {
	ctx     context.Context
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string][]protocol.Inbound
	closed  bool
	wg      sync.WaitGroup
}

// NewQueue runs handler for every enqueued message using ctx.
func NewQueue(ctx context.Context, handler Handler, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ctx:     ctx,
		handler: handler,
		logger:  logger.With("component", "queue"),
		pending: make(map[string][]protocol.Inbound),
	}
}

// Enqueue schedules in behind any earlier messages from the same sender. It
// returns false once the queue is closed.
func (q *Queue) Enqueue(in protocol.Inbound) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	items, draining := q.pending[in.From]
	q.pending[in.From] = append(items, in)
	if !draining {
		q.wg.Add(1)
		go q.drain(in.From)
	}
	return true
}

func (q *Queue) drain(sender string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		items := q.pending[sender]
		if len(items) == 0 {
			delete(q.pending, sender)
			q.mu.Unlock()
			return
		}
		next := items[0]
		q.pending[sender] = items[1:]
		q.mu.Unlock()

		q.run(next)
	}
}

func (q *Queue) run(in protocol.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("message handler panic",
				"sender", policy.MaskSender(in.From),
				"message_id", in.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	q.handler.Handle(q.ctx, in)
}

// Depth is the number of messages waiting, not counting ones being handled.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, items := range q.pending {
		n += len(items)
	}
	return n
}

// Close stops accepting messages and waits for queued ones to finish or for
// ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
