package stego

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/keyring"
	"github.com/stegochat/stegochat/internal/session"
	"github.com/stegochat/stegochat/internal/transport"
	"go.uber.org/zap"
)

// Precondition errors, raised locally before any network call.
var (
	ErrNotJoined  = errors.New("join the chat first")
	ErrEmptyText  = errors.New("message text is empty")
	ErrNoKey      = errors.New("no encryption key available")
	ErrEmptyBatch = errors.New("select images first")
)

// API is the slice of the transport the orchestrator drives.
type API interface {
	EncodeText(ctx context.Context, key, text string) (images []string, initializedNow bool, err error)
	DecodeImages(ctx context.Context, key string, images []transport.ImageFile) (string, error)
	SendText(ctx context.Context, userID, username, content string) error
	SendImage(ctx context.Context, userID, username, imageURL string) error
	UploadImage(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Orchestrator runs the user-initiated message flows: plain sends, the
// encrypt path (text -> ordered image messages) and the decrypt path
// (staged image batch + key -> text). Failures surface once per action
// as a notice and leave all local state untouched, so a retry is always
// safe.
type Orchestrator struct {
	api      API
	sessions *session.Store
	keys     *keyring.Keyring
	batch    *Batch
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewOrchestrator wires the orchestrator over shared session and key state.
func NewOrchestrator(api API, sessions *session.Store, keys *keyring.Keyring, batch *Batch, b *bus.Bus, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		api:      api,
		sessions: sessions,
		keys:     keys,
		batch:    batch,
		bus:      b,
		logger:   logger,
	}
}

// Batch exposes the staged decrypt batch.
func (o *Orchestrator) Batch() *Batch {
	return o.batch
}

// SendText sends one plain text message.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	sess := o.sessions.Current()
	if sess == nil {
		return o.fail(ErrNotJoined)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return o.fail(ErrEmptyText)
	}
	if err := o.api.SendText(ctx, sess.UserID, sess.DisplayName, text); err != nil {
		return o.fail(fmt.Errorf("send message: %w", err))
	}
	return nil
}

// SendImageData uploads one image and sends it as an image message.
func (o *Orchestrator) SendImageData(ctx context.Context, filename string, r io.Reader) error {
	sess := o.sessions.Current()
	if sess == nil {
		return o.fail(ErrNotJoined)
	}
	url, err := o.api.UploadImage(ctx, filename, r)
	if err != nil {
		return o.fail(fmt.Errorf("upload image: %w", err))
	}
	if err := o.api.SendImage(ctx, sess.UserID, sess.DisplayName, url); err != nil {
		return o.fail(fmt.Errorf("send image: %w", err))
	}
	return nil
}

// SendEncoded encodes text under the active key and sends the resulting
// images as individual image messages, strictly in the order the encoder
// returned them. Each send is awaited before the next is issued; the
// image order is the ciphertext, so reordering would corrupt it, not
// just look odd. Any failure aborts the remaining sends.
func (o *Orchestrator) SendEncoded(ctx context.Context, text string) error {
	sess := o.sessions.Current()
	if sess == nil {
		return o.fail(ErrNotJoined)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return o.fail(ErrEmptyText)
	}
	key := o.keys.Active()
	if key == "" {
		return o.fail(ErrNoKey)
	}

	images, initializedNow, err := o.api.EncodeText(ctx, key, text)
	if err != nil {
		// Nothing has been sent yet; the failure leaks no partial text.
		return o.fail(fmt.Errorf("encode text: %w", err))
	}
	if initializedNow {
		o.notify(bus.KindNoticeInfo, fmt.Sprintf("image mapping initialized for key %s", key))
	}

	for i, img := range images {
		if err := o.api.SendImage(ctx, sess.UserID, sess.DisplayName, img); err != nil {
			return o.fail(fmt.Errorf("send encoded image %d/%d: %w", i+1, len(images), err))
		}
	}

	o.logger.Info("encoded message sent", zap.Int("images", len(images)))
	return nil
}

// Decode submits the staged batch for decoding. keyOverride selects a
// key other than the active one for this call only. The batch survives
// the call either way; clearing is the caller's decision.
func (o *Orchestrator) Decode(ctx context.Context, keyOverride string) (string, error) {
	files := o.batch.Files()
	if len(files) == 0 {
		return "", o.fail(ErrEmptyBatch)
	}
	key := strings.TrimSpace(keyOverride)
	if key == "" {
		key = o.keys.Active()
	}
	if key == "" {
		return "", o.fail(ErrNoKey)
	}

	text, err := o.api.DecodeImages(ctx, key, files)
	if err != nil {
		return "", o.fail(fmt.Errorf("decode images: %w", err))
	}
	return text, nil
}

func (o *Orchestrator) fail(err error) error {
	o.logger.Warn("action failed", zap.Error(err))
	o.notify(bus.KindNoticeError, err.Error())
	return err
}

func (o *Orchestrator) notify(kind, text string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: text})
}
