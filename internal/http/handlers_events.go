package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
)

const (
	eventsWriteTimeout = 5 * time.Second
	eventsPingEvery    = 30 * time.Second
)

// SessionEvent is one message on the events stream.
type SessionEvent struct {
	Type    string      `json:"type"`
	TS      time.Time   `json:"ts"`
	Session SessionView `json:"session"`
}

// EventHandlers streams session snapshots over a websocket.
type EventHandlers struct {
	Session        SessionSource
	Logger         *slog.Logger
	OriginPatterns []string
	Now            func() time.Time
}

func (h *EventHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *EventHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Stream handles GET /auth/session/events. The current snapshot is sent
// first, then one message per state change. Slow readers only ever see the
// latest state; intermediate states are coalesced.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		h.logger().Info("ws.accept.fail", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	// The stream is write-only; CloseRead handles pings and the peer's close.
	ctx := conn.CloseRead(r.Context())

	latest := make(chan domainauth.State, 1)
	unsubscribe := h.Session.Subscribe(func(st domainauth.State) {
		for {
			select {
			case latest <- st:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	})
	defer unsubscribe()

	if err = h.send(ctx, conn, "snapshot", h.Session.Snapshot()); err != nil {
		h.logWriteErr(err)
		return
	}

	ping := time.NewTicker(eventsPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-latest:
			if err = h.send(ctx, conn, "change", st); err != nil {
				h.logWriteErr(err)
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
			err = conn.Ping(pctx)
			cancel()
			if err != nil {
				h.logWriteErr(err)
				return
			}
		}
	}
}

func (h *EventHandlers) send(ctx context.Context, conn *websocket.Conn, typ string, st domainauth.State) error {
	wctx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, SessionEvent{Type: typ, TS: h.now().UTC(), Session: NewSessionView(st, h.now())})
}

func (h *EventHandlers) logWriteErr(err error) {
	if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
		return
	}
	h.logger().Info("ws.write.fail", "error", err)
}
