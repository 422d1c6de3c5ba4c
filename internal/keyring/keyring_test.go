package keyring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/session"
)

type fakeAssigner struct {
	key      string
	existing bool
	err      error
	calls    int
}

func (f *fakeAssigner) AssignKey(ctx context.Context, userID, username string) (string, bool, error) {
	f.calls++
	return f.key, f.existing, f.err
}

func testSession() *session.Session {
	return session.NewStore().Join("Ann")
}

func TestInitializeUsesServerKey(t *testing.T) {
	a := &fakeAssigner{key: "AB3D9F2K", existing: true}
	k := New(a, nil, nil)

	got := k.Initialize(context.Background(), testSession())
	if got != "AB3D9F2K" {
		t.Errorf("Initialize() = %q, want AB3D9F2K", got)
	}
	if k.Active() != "AB3D9F2K" {
		t.Errorf("Active() = %q, want AB3D9F2K", k.Active())
	}
	if !k.ServerSynced() {
		t.Error("ServerSynced() = false after server assignment")
	}
}

func TestInitializeFallsBackOnError(t *testing.T) {
	a := &fakeAssigner{err: errors.New("network down")}
	k := New(a, nil, nil)

	got := k.Initialize(context.Background(), testSession())
	assertLocalKey(t, got)
	if k.ServerSynced() {
		t.Error("ServerSynced() = true after local fallback")
	}
}

func TestInitializeFallsBackOnEmptyKey(t *testing.T) {
	// Server answered but with a falsy key. Still no user-visible error.
	a := &fakeAssigner{key: ""}
	k := New(a, nil, nil)

	got := k.Initialize(context.Background(), testSession())
	assertLocalKey(t, got)
}

func TestRegenerateLocal(t *testing.T) {
	a := &fakeAssigner{key: "AB3D9F2K"}
	k := New(a, nil, nil)
	k.Initialize(context.Background(), testSession())

	regen := k.RegenerateLocal()
	assertLocalKey(t, regen)
	if regen == "AB3D9F2K" {
		t.Error("RegenerateLocal() kept the old key")
	}
	if k.Active() != regen {
		t.Errorf("Active() = %q, want %q", k.Active(), regen)
	}
	if k.ServerSynced() {
		t.Error("ServerSynced() = true after local regeneration")
	}
	if a.calls != 1 {
		t.Errorf("assigner called %d times, want 1 (regenerate must not contact server)", a.calls)
	}
}

func TestKeyChangePublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("key.", 10)
	defer unsub()

	k := New(&fakeAssigner{key: "AB3D9F2K"}, b, nil)
	k.Initialize(context.Background(), testSession())

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(KeyChange)
		if !ok {
			t.Fatalf("payload type = %T, want KeyChange", evt.Payload)
		}
		if change.Key != "AB3D9F2K" || !change.ServerSynced {
			t.Errorf("payload = %+v, want synced AB3D9F2K", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for key.changed event")
	}
}

func TestGenerateLocalAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		key := GenerateLocal()
		assertLocalKey(t, key)
	}
}

func assertLocalKey(t *testing.T, key string) {
	t.Helper()
	if len(key) != KeyLength {
		t.Fatalf("key %q length = %d, want %d", key, len(key), KeyLength)
	}
	for _, c := range key {
		if !strings.ContainsRune(KeyCharset, c) {
			t.Fatalf("key %q contains %q, outside safe charset", key, c)
		}
	}
}
