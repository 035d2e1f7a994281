package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

type WatchConfig struct {
	URL            string
	ConnectTimeout time.Duration
	// ReadTimeout of zero waits forever for the next event.
	ReadTimeout time.Duration
	// Logger reports events that cannot be decoded. Nil uses slog.Default.
	Logger *slog.Logger
}

// Watch connects to a feed and calls fn for every event until the server
// closes the connection, ctx is cancelled or fn returns an error.
func Watch(ctx context.Context, cfg WatchConfig, fn func(Event) error) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read error: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			logger.Warn("failed to parse event", "err", err)
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
