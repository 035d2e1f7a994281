package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var errDone = errors.New("done")

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestHub_BroadcastsToWatcher(t *testing.T) {
	hub := NewHub(nil)
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ready := make(chan struct{})
	var got []Event
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, WatchConfig{URL: wsURL(ts), ConnectTimeout: 5 * time.Second}, func(ev Event) error {
			if ev.Type == TypeHello {
				close(ready)
				return nil
			}
			got = append(got, ev)
			if ev.Type == TypeGameEnd {
				return errDone
			}
			return nil
		})
	}()

	select {
	case <-ready:
	case <-ctx.Done():
		t.Fatalf("no hello received")
	}
	if hub.Clients() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.Clients())
	}

	if err := hub.Publish(TypePlacement, Placement{GameID: "g", Placement: 1, Shape: "O", Offset: -4, Weights: [4]float64{-3, -3, -3, -91}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := hub.Publish(TypeGameEnd, GameEnd{GameID: "g", Game: 1, Score: 9, Placements: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := <-errc; !errors.Is(err, errDone) {
		t.Fatalf("watch returned %v", err)
	}
	if len(got) != 2 || got[0].Type != TypePlacement || got[1].Type != TypeGameEnd {
		t.Fatalf("unexpected events: %+v", got)
	}
	var p Placement
	if err := json.Unmarshal(got[0].Data, &p); err != nil {
		t.Fatalf("decode placement: %v", err)
	}
	if p.Shape != "O" || p.Offset != -4 || p.Weights[3] != -91 {
		t.Fatalf("unexpected placement: %+v", p)
	}
}

func TestHub_CloseEndsWatch(t *testing.T) {
	hub := NewHub(nil)
	ts := httptest.NewServer(hub)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ready := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, WatchConfig{URL: wsURL(ts)}, func(ev Event) error {
			if ev.Type == TypeHello {
				close(ready)
			}
			return nil
		})
	}()

	<-ready
	hub.Close()
	if err := <-errc; err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if err := hub.Publish(TypePlacement, Placement{}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
}

func TestHub_UpgradeFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(slog.New(slog.NewJSONHandler(&buf, nil)))
	ts := httptest.NewServer(hub)

	resp, err := http.Get(ts.URL)
	if err != nil {
		ts.Close()
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	// Close waits for the handler to return, so its log line is written.
	ts.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(buf.String(), `"msg":"feed upgrade failed"`) {
		t.Fatalf("upgrade failure not logged: %q", buf.String())
	}
	if hub.Clients() != 0 {
		t.Fatalf("failed upgrade registered a client")
	}
}

func TestPublish_NoClients(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.Publish(TypePlacement, Placement{GameID: "x"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if hub.Dropped() != 0 {
		t.Fatalf("nothing should be dropped without clients")
	}
}
