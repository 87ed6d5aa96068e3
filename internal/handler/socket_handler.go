package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/realtime"
	"github.com/shinyyama/demart-backend/internal/reqctx"
	"github.com/shinyyama/demart-backend/internal/service"
)

// SocketHandler upgrades authenticated requests and routes client frames to
// the conversation service.
type SocketHandler struct {
	hub      *realtime.Hub
	convs    service.ConversationService
	upgrader websocket.Upgrader
}

// NewSocketHandler uses checkOrigin for the upgrade; nil falls back to
// gorilla's same-host check.
func NewSocketHandler(hub *realtime.Hub, convs service.ConversationService, checkOrigin func(r *http.Request) bool) *SocketHandler {
	return &SocketHandler{
		hub:   hub,
		convs: convs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

type conversationPayload struct {
	ConversationID uint64 `json:"conversationId"`
}

type messagePayload struct {
	ConversationID uint64 `json:"conversationId"`
	Content        string `json:"content"`
	ReceiverID     string `json:"receiverId"`
}

func (h *SocketHandler) Serve(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already replied
		reqctx.Logger(c.Request().Context()).Warn().Err(err).Msg("websocket upgrade")
		return nil
	}
	h.hub.Serve(c.Request().Context(), conn, uid, h.dispatch)
	return nil
}

func (h *SocketHandler) dispatch(ctx context.Context, c *realtime.Client, f realtime.Frame) {
	ctx = reqctx.WithActor(ctx, c.UID())
	switch f.Event {
	case realtime.EventJoinConversation:
		var p conversationPayload
		if !h.decode(c, f, &p) {
			return
		}
		if _, err := h.convs.Get(ctx, p.ConversationID, c.UID()); err != nil {
			h.fail(ctx, c, err)
			return
		}
		h.hub.Join(p.ConversationID, c)
		h.hub.SendTo(c, realtime.EventJoined, p)
	case realtime.EventLeaveConversation:
		var p conversationPayload
		if !h.decode(c, f, &p) {
			return
		}
		h.hub.Leave(p.ConversationID, c)
	case realtime.EventSendMessage, realtime.EventSendSystemMessage:
		var p messagePayload
		if !h.decode(c, f, &p) {
			return
		}
		in := service.SendMessageInput{
			ConversationID: p.ConversationID,
			SenderUID:      c.UID(),
			ReceiverUID:    p.ReceiverID,
			Content:        p.Content,
			Type:           model.MessageTypeText,
			Origin:         c.ID(),
		}
		if f.Event == realtime.EventSendSystemMessage {
			in.Type = model.MessageTypeSystem
		}
		if _, err := h.convs.SendMessage(ctx, in); err != nil {
			h.fail(ctx, c, err)
		}
	default:
		h.hub.SendTo(c, realtime.EventError, realtime.ErrorPayload{Code: "bad_request", Message: "unknown event " + f.Event})
	}
}

func (h *SocketHandler) decode(c *realtime.Client, f realtime.Frame, v interface{}) bool {
	if len(f.Data) == 0 || json.Unmarshal(f.Data, v) != nil {
		h.hub.SendTo(c, realtime.EventError, realtime.ErrorPayload{Code: "bad_request", Message: "invalid payload"})
		return false
	}
	return true
}

func (h *SocketHandler) fail(ctx context.Context, c *realtime.Client, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		reqctx.Logger(ctx).Error().Err(err).Str("client", c.ID()).Msg("websocket frame failed")
		msg = "internal error"
	}
	h.hub.SendTo(c, realtime.EventError, realtime.ErrorPayload{Code: code, Message: msg})
}
