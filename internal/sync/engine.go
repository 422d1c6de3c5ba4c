package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/transport"
	"go.uber.org/zap"
)

// Poller is the transport capability the engine polls against.
type Poller interface {
	PollMessages(ctx context.Context, since int64) ([]*transport.Message, int64, error)
}

// Engine periodically polls the server for messages newer than the
// cursor, classifies them, and publishes them on the bus in server order.
// Poll failures are swallowed: the cursor stays put so the next tick
// re-requests the same range and nothing is skipped.
type Engine struct {
	poller   Poller
	cursor   *Cursor
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	inFlight atomic.Bool
	cancel   context.CancelFunc
}

// NewEngine creates a poll engine over the given cursor.
func NewEngine(p Poller, cursor *Cursor, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		poller:   p,
		cursor:   cursor,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Cursor exposes the engine's watermark.
func (e *Engine) Cursor() *Cursor {
	return e.cursor
}

// Start begins polling: one immediate poll, then one per interval.
// Calling Start again replaces the previous loop instead of stacking a
// second one.
func (e *Engine) Start(ctx context.Context) {
	e.Stop()
	ctx, e.cancel = context.WithCancel(ctx)
	go e.loop(ctx)
}

// Stop stops the poll loop. An in-flight request is not cancelled; its
// response is still applied through the monotonic cursor, which is safe.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) loop(ctx context.Context) {
	e.Tick(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs a single poll round. If a previous round is still in flight
// the tick is skipped rather than overlapped.
func (e *Engine) Tick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.logger.Warn("poll still in flight, skipping tick")
		return
	}
	defer e.inFlight.Store(false)

	since := e.cursor.Value()
	msgs, serverTime, err := e.poller.PollMessages(ctx, since)
	if err != nil {
		e.logger.Warn("poll failed", zap.Int64("since", since), zap.Error(err))
		return
	}

	var batchMax int64
	for _, m := range msgs {
		if m.TsMs > batchMax {
			batchMax = m.TsMs
		}
	}
	// Server time keeps the watermark moving through quiet spans.
	e.cursor.Advance(batchMax, serverTime)

	for _, m := range msgs {
		e.publish(m)
	}
}

func (e *Engine) publish(m *transport.Message) {
	if m.Kind == transport.KindSystem {
		e.bus.Publish(bus.Event{
			Kind:      bus.KindMessageNotice,
			Timestamp: time.Now(),
			Payload:   bus.NoticePayload{Text: m.Content, Timestamp: m.Timestamp},
		})
		return
	}
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageReceived,
		Timestamp: time.Now(),
		Payload:   m,
	})
}
