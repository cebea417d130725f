package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"popreveal/internal/round"
	"popreveal/pkg/realtime"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsIn is a message from the shell.
type wsIn struct {
	Type   string  `json:"type"`
	ID     string  `json:"id,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// wsOut is a message to the shell: a tap result for the sender, a broadcast
// event, or an error for a bad request.
type wsOut struct {
	Type  string           `json:"type"`
	Tap   *round.TapResult `json:"tap,omitempty"`
	Event *realtime.Event  `json:"event,omitempty"`
	Error string           `json:"error,omitempty"`
}

// ws carries taps in and session events out over one connection, for
// shells that want lower latency than a POST per tap.
func (h *GameHandler) ws(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hub, ok := h.store.Broadcaster(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade", zap.String("session", id), zap.Error(err))
		return
	}
	defer conn.Close()

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	out := make(chan wsOut, realtime.DefaultBuffer)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return h.wsWrite(ctx, conn, sub, out) })
	g.Go(func() error { return h.wsRead(ctx, conn, id, out) })
	if err := g.Wait(); err != nil && !isClosed(err) {
		h.log.Debug("websocket closed", zap.String("session", id), zap.Error(err))
	}
}

var errSessionGone = errors.New("session gone")

// wsWrite is the connection's only writer.
func (h *GameHandler) wsWrite(ctx context.Context, conn *websocket.Conn, sub chan realtime.Event, out chan wsOut) error {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	// Whatever ends the writer also unblocks the reader.
	defer func() { _ = conn.SetReadDeadline(time.Now()) }()
	write := func(msg wsOut) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(msg)
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return nil
		case e, open := <-sub:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"), time.Now().Add(wsWriteWait))
				return errSessionGone
			}
			if err := write(wsOut{Type: "event", Event: &e}); err != nil {
				return err
			}
		case msg := <-out:
			if err := write(msg); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return err
			}
		}
	}
}

func (h *GameHandler) wsRead(ctx context.Context, conn *websocket.Conn, id string, out chan<- wsOut) error {
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var msg wsIn
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		var reply wsOut
		switch msg.Type {
		case "pop":
			res, err := h.store.Pop(id, msg.ID)
			if err != nil {
				reply = wsOut{Type: "error", Error: err.Error()}
			} else {
				reply = wsOut{Type: "tap", Tap: &res}
			}
		case "viewport":
			if err := h.store.Resize(id, msg.Width, msg.Height); err != nil {
				reply = wsOut{Type: "error", Error: err.Error()}
			}
		default:
			reply = wsOut{Type: "error", Error: "unknown message type " + msg.Type}
		}
		if reply.Type == "" {
			continue
		}
		select {
		case out <- reply:
		case <-ctx.Done():
			return nil
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, errSessionGone) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
