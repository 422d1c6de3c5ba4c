package presence

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/session"
	"github.com/stegochat/stegochat/internal/transport"
	"go.uber.org/zap"
)

// Beater is the transport capability the pulse beats against.
type Beater interface {
	Heartbeat(ctx context.Context, userID, username string) ([]transport.PresenceEntry, error)
}

// Pulse keeps this session alive server-side and receives the roster.
// Each successful beat publishes the full snapshot; the rendered roster
// is whatever the latest snapshot says, never an accumulation. Failed
// beats are logged and self-heal on the next tick.
type Pulse struct {
	beater   Beater
	sessions *session.Store
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	inFlight atomic.Bool
	cancel   context.CancelFunc
}

// NewPulse creates a heartbeat pulse.
func NewPulse(beater Beater, sessions *session.Store, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Pulse {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pulse{
		beater:   beater,
		sessions: sessions,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start fires an immediate beat, then one per interval. Calling Start
// again replaces the previous loop; timers never stack.
func (p *Pulse) Start(ctx context.Context) {
	p.Stop()
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the pulse. The server will age this session out of the
// roster on its own once beats stop arriving.
func (p *Pulse) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Pulse) loop(ctx context.Context) {
	p.Beat(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Beat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Beat runs a single heartbeat round. A beat is skipped when the prior
// one has not resolved yet.
func (p *Pulse) Beat(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Warn("heartbeat still in flight, skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	sess := p.sessions.Current()
	if sess == nil {
		return
	}

	users, err := p.beater.Heartbeat(ctx, sess.UserID, sess.DisplayName)
	if err != nil {
		p.logger.Warn("heartbeat failed", zap.Error(err))
		return
	}

	p.bus.Publish(bus.Event{
		Kind:      bus.KindRosterUpdated,
		Timestamp: time.Now(),
		Payload:   users,
	})
}
