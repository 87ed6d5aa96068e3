package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Client is one live connection of an authenticated user.
type Client struct {
	id   string
	uid  string
	send chan []byte
	// guarded by Hub.mu
	closed bool
}

func NewClient(uid string) *Client {
	return newClient(uid, sendBuffer)
}

func newClient(uid string, buffer int) *Client {
	return &Client{
		id:   uuid.NewString(),
		uid:  uid,
		send: make(chan []byte, buffer),
	}
}

func (c *Client) ID() string  { return c.id }
func (c *Client) UID() string { return c.uid }

// Send yields encoded frames queued for this client. It is closed once the
// client is removed from the hub.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// FrameHandler is called for every frame a client sends.
type FrameHandler func(ctx context.Context, c *Client, f Frame)

// Serve pumps conn until it closes or ctx is done. It owns conn.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, uid string, handle FrameHandler) {
	c := NewClient(uid)
	if !h.Register(c) {
		conn.Close()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// unblocks readPump on shutdown
		<-ctx.Done()
		conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, c)
	}()

	readPump(ctx, conn, h, c, handle)
	h.Remove(c)
	<-done
}

func readPump(ctx context.Context, conn *websocket.Conn, h *Hub, c *Client, handle FrameHandler) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("websocket read")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			h.SendTo(c, EventError, ErrorPayload{Code: "bad_request", Message: "malformed frame"})
			continue
		}
		handle(ctx, c, f)
	}
}

func writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
