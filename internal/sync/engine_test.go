package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/transport"
)

// fakePoller replays a shared message log the way the server does: each
// poll returns messages strictly newer than since, plus a server time.
type fakePoller struct {
	mu         sync.Mutex
	log        []*transport.Message
	serverTime int64
	err        error
	sinces     []int64
	block      chan struct{} // when set, PollMessages waits on it
}

func (f *fakePoller) PollMessages(ctx context.Context, since int64) ([]*transport.Message, int64, error) {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	log, serverTime, err, block := f.log, f.serverTime, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, 0, err
	}
	var out []*transport.Message
	for _, m := range log {
		if m.TsMs > since {
			out = append(out, m)
		}
	}
	return out, serverTime, nil
}

func msg(kind string, tsMs int64, content string) *transport.Message {
	return &transport.Message{
		ID: content, AuthorUserID: "u1", AuthorName: "Ann",
		Kind: kind, Content: content, Timestamp: "2026-01-01T00:00:00+00:00", TsMs: tsMs,
	}
}

func TestTickAdvancesCursorToMaxOfAllSources(t *testing.T) {
	// Two messages at 100 and 200 with serverTime 150: cursor must land
	// on 200, the max of all three sources.
	p := &fakePoller{
		log:        []*transport.Message{msg("text", 100, "one"), msg("text", 200, "two")},
		serverTime: 150,
	}
	e := NewEngine(p, NewCursor(), bus.New(), nil, time.Second)

	e.Tick(context.Background())

	if got := e.Cursor().Value(); got != 200 {
		t.Errorf("cursor = %d, want 200", got)
	}
}

func TestTickAdvancesOnEmptyPoll(t *testing.T) {
	p := &fakePoller{serverTime: 5000}
	e := NewEngine(p, NewCursor(), bus.New(), nil, time.Second)

	e.Tick(context.Background())

	if got := e.Cursor().Value(); got != 5000 {
		t.Errorf("cursor = %d, want 5000 (server time keeps it moving)", got)
	}
}

func TestTickLeavesCursorOnFailure(t *testing.T) {
	p := &fakePoller{err: errors.New("network down")}
	c := NewCursor()
	c.Advance(300)
	e := NewEngine(p, c, bus.New(), nil, time.Second)

	e.Tick(context.Background())

	if got := c.Value(); got != 300 {
		t.Errorf("cursor = %d after failed poll, want 300 unchanged", got)
	}
}

func TestNoDuplicateDelivery(t *testing.T) {
	// Second poll's result set includes the tail of the first; the
	// advanced cursor must exclude it from the request.
	p := &fakePoller{
		log:        []*transport.Message{msg("text", 100, "one"), msg("text", 200, "two")},
		serverTime: 150,
	}
	b := bus.New()
	ch, unsub := b.Subscribe("message.", 32)
	defer unsub()

	e := NewEngine(p, NewCursor(), b, nil, time.Second)
	e.Tick(context.Background())

	p.mu.Lock()
	p.log = append(p.log, msg("text", 250, "three"))
	p.serverTime = 260
	p.mu.Unlock()

	e.Tick(context.Background())

	if len(p.sinces) != 2 || p.sinces[0] != 0 || p.sinces[1] != 200 {
		t.Fatalf("poll sinces = %v, want [0 200]", p.sinces)
	}

	var got []string
	for {
		select {
		case evt := <-ch:
			got = append(got, evt.Payload.(*transport.Message).Content)
			continue
		default:
		}
		break
	}
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSystemMessagesClassifiedAsNotices(t *testing.T) {
	p := &fakePoller{
		log: []*transport.Message{
			msg("system", 100, "Ann joined"),
			msg("text", 200, "hello"),
		},
		serverTime: 250,
	}
	b := bus.New()
	notices, unsubN := b.Subscribe(bus.KindMessageNotice, 10)
	defer unsubN()
	received, unsubR := b.Subscribe(bus.KindMessageReceived, 10)
	defer unsubR()

	e := NewEngine(p, NewCursor(), b, nil, time.Second)
	e.Tick(context.Background())

	select {
	case evt := <-notices:
		payload, ok := evt.Payload.(bus.NoticePayload)
		if !ok {
			t.Fatalf("notice payload type = %T", evt.Payload)
		}
		if payload.Text != "Ann joined" || payload.Timestamp == "" {
			t.Errorf("notice payload = %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notice")
	}

	select {
	case evt := <-received:
		if evt.Payload.(*transport.Message).Content != "hello" {
			t.Errorf("received payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chat message")
	}
}

func TestTickSkipsWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	p := &fakePoller{block: block, serverTime: 100}
	e := NewEngine(p, NewCursor(), bus.New(), nil, time.Second)

	done := make(chan struct{})
	go func() {
		e.Tick(context.Background())
		close(done)
	}()

	// Wait for the first tick to enter the poller.
	deadline := time.After(time.Second)
	for {
		p.mu.Lock()
		entered := len(p.sinces) == 1
		p.mu.Unlock()
		if entered {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first tick never reached the poller")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// This tick must be skipped, not queued behind the blocked one.
	e.Tick(context.Background())

	p.mu.Lock()
	calls := len(p.sinces)
	p.mu.Unlock()
	if calls != 1 {
		t.Errorf("poller called %d times, want 1 (overlapping tick skipped)", calls)
	}

	close(block)
	<-done
}

func TestStartPollsImmediatelyAndStops(t *testing.T) {
	p := &fakePoller{
		log:        []*transport.Message{msg("text", 100, "hi")},
		serverTime: 100,
	}
	b := bus.New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	e := NewEngine(p, NewCursor(), b, nil, time.Hour)
	e.Start(context.Background())
	defer e.Stop()

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageReceived {
			t.Errorf("kind = %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no immediate poll after Start")
	}
}
