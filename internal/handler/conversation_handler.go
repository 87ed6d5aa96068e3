package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/service"
)

type ConversationHandler struct {
	svc   service.ConversationService
	coord *service.Coordinator
}

func NewConversationHandler(svc service.ConversationService, coord *service.Coordinator) *ConversationHandler {
	return &ConversationHandler{svc: svc, coord: coord}
}

type ConversationResponse struct {
	ID           uint64         `json:"id"`
	Participants []string       `json:"participants"`
	ProductID    *uint64        `json:"productId"`
	LastMessage  *model.Message `json:"lastMessage,omitempty"`
	CreatedAt    string         `json:"createdAt"`
	UpdatedAt    string         `json:"updatedAt"`
}

func toConversationResponse(cv *model.Conversation) ConversationResponse {
	var productID *uint64
	if cv.ProductID != 0 {
		id := cv.ProductID
		productID = &id
	}
	return ConversationResponse{
		ID:           cv.ID,
		Participants: cv.Participants(),
		ProductID:    productID,
		CreatedAt:    cv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    cv.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type CreateConversationRequest struct {
	UserID    string `json:"userId"`
	ProductID uint64 `json:"productId"`
}

type SendMessageRequest struct {
	ConversationID uint64 `json:"conversationId"`
	Content        string `json:"content"`
	ReceiverID     string `json:"receiverId"`
	Type           string `json:"type"`
}

func (h *ConversationHandler) Create(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	cv, err := h.svc.CreateOrGet(c.Request().Context(), uid, req.UserID, req.ProductID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(cv))
}

func (h *ConversationHandler) List(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	list, err := h.svc.ListByUser(c.Request().Context(), uid)
	if err != nil {
		return respondError(c, err)
	}
	resp := make([]ConversationResponse, 0, len(list))
	for i := range list {
		r := toConversationResponse(&list[i].Conversation)
		r.LastMessage = list[i].LastMessage
		resp = append(resp, r)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ConversationHandler) Get(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	cv, err := h.svc.Get(c.Request().Context(), convID, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(cv))
}

// PurchaseIntent lets the buyer announce in the chat that they want the item.
func (h *ConversationHandler) PurchaseIntent(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid conversation id"))
	}
	msg, err := h.coord.PurchaseIntent(c.Request().Context(), convID, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *ConversationHandler) ListMessages(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	convID, err := strconv.ParseUint(c.QueryParam("conversationId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "conversationId is required"))
	}
	msgs, err := h.svc.ListMessages(c.Request().Context(), convID, uid)
	if err != nil {
		return respondError(c, err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *ConversationHandler) SendMessage(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	if req.ConversationID == 0 {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "conversationId is required"))
	}
	msg, err := h.svc.SendMessage(c.Request().Context(), service.SendMessageInput{
		ConversationID: req.ConversationID,
		SenderUID:      uid,
		ReceiverUID:    req.ReceiverID,
		Content:        req.Content,
		Type:           model.MessageType(req.Type),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}
