package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/identity"
	"github.com/coder/websocket"
)

func TestHub_PublishRoutesByUser(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	a := hub.Subscribe("alice")
	b := hub.Subscribe("bob")

	hub.Publish("alice", domain.LedgerEvent{Type: "attempt", SessionID: "s1"})

	select {
	case ev := <-a.C:
		if ev.SessionID != "s1" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("alice did not receive event")
	}
	select {
	case ev := <-b.C:
		t.Errorf("bob received alice's event: %+v", ev)
	default:
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	sub := hub.Subscribe("alice")
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	if n := hub.Count("alice"); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
	if _, ok := <-sub.C; ok {
		t.Error("channel should be closed")
	}
	// Publishing to nobody must not panic.
	hub.Publish("alice", domain.LedgerEvent{Type: "attempt"})
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	hub.Subscribe("alice")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish("alice", domain.LedgerEvent{Type: "attempt"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestWebSocketHandler_StreamsEvents(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	h := identity.Middleware(true)(NewWebSocketHandler(hub, "*", true))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{identity.UserIDHeaderName: []string{"alice"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count("alice") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish("alice", domain.LedgerEvent{Type: "feedback", SessionID: "s9", Action: domain.ActionRejected})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev domain.LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.SessionID != "s9" || ev.Action != domain.ActionRejected {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestWebSocketHandler_PingsKeepStreamOpen(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	ws := NewWebSocketHandler(hub, "*", true)
	ws.pingInterval = 10 * time.Millisecond
	srv := httptest.NewServer(identity.Middleware(true)(ws))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{identity.UserIDHeaderName: []string{"carol"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Publish only after several ping rounds; Read answers the pings meanwhile.
	go func() {
		time.Sleep(100 * time.Millisecond)
		hub.Publish("carol", domain.LedgerEvent{Type: "attempt", SessionID: "late"})
	}()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("stream closed after pings: %v", err)
	}
	var ev domain.LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.SessionID != "late" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	t.Parallel()
	r := newRing(3)
	if got := r.snapshot(); len(got) != 0 {
		t.Fatalf("empty ring snapshot = %v", got)
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		r.push(domain.LedgerEvent{SessionID: id})
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}
	got := r.snapshot()
	want := []string{"c", "d", "e"}
	for i, ev := range got {
		if ev.SessionID != want[i] {
			t.Errorf("snapshot[%d] = %q, want %q", i, ev.SessionID, want[i])
		}
	}
}

func TestHub_ReplaysHistoryToNewSubscribers(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	for i := 0; i < historySize+4; i++ {
		hub.Publish("alice", domain.LedgerEvent{Type: "attempt", SessionID: fmt.Sprintf("s%d", i)})
	}
	hub.Publish("bob", domain.LedgerEvent{Type: "attempt", SessionID: "bob-1"})

	sub, recent := hub.SubscribeWithHistory("alice")
	defer hub.Unsubscribe(sub)

	if len(recent) != historySize {
		t.Fatalf("replayed %d events, want %d", len(recent), historySize)
	}
	if recent[0].SessionID != "s4" || recent[len(recent)-1].SessionID != fmt.Sprintf("s%d", historySize+3) {
		t.Errorf("unexpected replay window %q..%q", recent[0].SessionID, recent[len(recent)-1].SessionID)
	}
	select {
	case ev := <-sub.C:
		t.Errorf("history must not be delivered on C: %+v", ev)
	default:
	}
}
