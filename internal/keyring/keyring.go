package keyring

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/session"
	"go.uber.org/zap"
)

// KeyCharset is the alphabet for locally generated keys. 32 symbols,
// with visually confusable characters (0/O, 1/I) excluded so keys can be
// read aloud or retyped from a screenshot.
const KeyCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// KeyLength is the length of locally generated keys.
const KeyLength = 8

// Assigner is the server capability that hands out keys at join time.
type Assigner interface {
	AssignKey(ctx context.Context, userID, username string) (key string, existing bool, err error)
}

// KeyChange is the payload published on key.changed events.
type KeyChange struct {
	Key          string
	ServerSynced bool
}

// Keyring owns the active encryption key. Exactly one key is active at a
// time; the encrypt path uses it directly and the decrypt path defaults
// to it. ServerSynced tracks whether the server still knows this key:
// local regeneration flips it to false and nothing flips it back until
// the next Initialize.
type Keyring struct {
	mu           sync.RWMutex
	active       string
	serverSynced bool

	assigner Assigner
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates an empty keyring.
func New(assigner Assigner, b *bus.Bus, logger *zap.Logger) *Keyring {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keyring{
		assigner: assigner,
		bus:      b,
		logger:   logger,
	}
}

// Initialize obtains the initial key for the session. It asks the server
// first and falls back to local generation on any failure; a key is
// guaranteed to be active when it returns. It never returns an error to
// surface: key absence is the only unacceptable outcome.
func (k *Keyring) Initialize(ctx context.Context, sess *session.Session) string {
	key, existing, err := k.assigner.AssignKey(ctx, sess.UserID, sess.DisplayName)
	synced := true
	if err != nil || key == "" {
		k.logger.Warn("key assignment failed, generating locally", zap.Error(err))
		key = GenerateLocal()
		synced = false
	} else {
		k.logger.Info("key assigned by server", zap.Bool("existing", existing))
	}

	k.set(key, synced)
	return key
}

// RegenerateLocal replaces the active key with a freshly generated one
// without contacting the server. The server-side mapping for the new key
// is initialized lazily on first encode use.
func (k *Keyring) RegenerateLocal() string {
	key := GenerateLocal()
	k.set(key, false)
	return key
}

// Active returns the current key, or empty before Initialize.
func (k *Keyring) Active() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active
}

// ServerSynced reports whether the server assigned the active key.
func (k *Keyring) ServerSynced() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.serverSynced
}

func (k *Keyring) set(key string, synced bool) {
	k.mu.Lock()
	k.active = key
	k.serverSynced = synced
	k.mu.Unlock()

	if k.bus != nil {
		k.bus.Publish(bus.Event{
			Kind:      bus.KindKeyChanged,
			Timestamp: time.Now(),
			Payload:   KeyChange{Key: key, ServerSynced: synced},
		})
	}
}

// GenerateLocal produces a random key from KeyCharset at KeyLength.
func GenerateLocal() string {
	out := make([]byte, KeyLength)
	charsetLen := big.NewInt(int64(len(KeyCharset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// fall back to a fixed index rather than panic mid-join.
			n = big.NewInt(int64(i % len(KeyCharset)))
		}
		out[i] = KeyCharset[n.Int64()]
	}
	return string(out)
}
