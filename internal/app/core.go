package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/keyring"
	"github.com/stegochat/stegochat/internal/presence"
	"github.com/stegochat/stegochat/internal/session"
	"github.com/stegochat/stegochat/internal/status"
	"github.com/stegochat/stegochat/internal/stego"
	intsync "github.com/stegochat/stegochat/internal/sync"
	"github.com/stegochat/stegochat/internal/transport"
	"go.uber.org/zap"
)

// Core is the synchronization core behind any presentation layer. It
// exposes the user operations (join, send, encode, decode, regenerate)
// and publishes everything observable on the bus; the UI only renders.
type Core struct {
	Sessions     *session.Store
	Keys         *keyring.Keyring
	Orchestrator *stego.Orchestrator
	Bus          *bus.Bus
	Machine      *status.Machine
	Transport    *transport.Client

	engine *intsync.Engine
	pulse  *presence.Pulse
	logger *zap.Logger

	leaveOnce sync.Once
}

// NewCore assembles the core from its components.
func NewCore(
	sessions *session.Store,
	keys *keyring.Keyring,
	orch *stego.Orchestrator,
	b *bus.Bus,
	machine *status.Machine,
	tc *transport.Client,
	engine *intsync.Engine,
	pulse *presence.Pulse,
	logger *zap.Logger,
) *Core {
	return &Core{
		Sessions:     sessions,
		Keys:         keys,
		Orchestrator: orch,
		Bus:          b,
		Machine:      machine,
		Transport:    tc,
		engine:       engine,
		pulse:        pulse,
		logger:       logger,
	}
}

// Join enters the chat under the given display name: records identity,
// obtains a key (server-assigned or local fallback), then starts the
// heartbeat pulse and the message poll as independent periodic tasks.
// Re-joining keeps the user id and only re-enters the display name;
// Start on the running tasks replaces their loops instead of stacking.
func (c *Core) Join(ctx context.Context, displayName string) (*session.Session, error) {
	if err := c.Machine.Transition(status.Joining); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}

	sess := c.Sessions.Join(displayName)
	c.logger.Info("joined session",
		zap.String("user_id", sess.UserID),
		zap.String("display_name", sess.DisplayName),
	)

	// Never fails: falls back to a locally generated key.
	c.Keys.Initialize(ctx, sess)

	c.pulse.Start(ctx)
	c.engine.Start(ctx)

	if err := c.Machine.Transition(status.Online); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	return sess, nil
}

// Leave stops the periodic tasks and fires the one-shot best-effort
// logout notify. Safe to call more than once; only the first does work.
func (c *Core) Leave() {
	c.leaveOnce.Do(func() {
		_ = c.Machine.Transition(status.Leaving)
		c.pulse.Stop()
		c.engine.Stop()

		if sess := c.Sessions.Current(); sess != nil {
			c.Transport.LogoutNotify(sess.UserID)
		}
		_ = c.Machine.Transition(status.Idle)
		c.logger.Info("left session")
	})
}

// Cursor exposes the message watermark, mainly for status display.
func (c *Core) Cursor() *intsync.Cursor {
	return c.engine.Cursor()
}
