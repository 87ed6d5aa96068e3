package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/repository"
	"github.com/shinyyama/demart-backend/internal/reqctx"
	"github.com/shinyyama/demart-backend/internal/service"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	svc     service.OrderService
	catalog service.Catalog
	users   service.UserDirectory
}

// NewOrderHandler takes catalog and users for the order detail view; users may
// be nil, in which case names fall back to uids.
func NewOrderHandler(svc service.OrderService, catalog service.Catalog, users service.UserDirectory) *OrderHandler {
	return &OrderHandler{svc: svc, catalog: catalog, users: users}
}

type OrderResponse struct {
	ID             uint64  `json:"id"`
	BuyerID        string  `json:"buyerId"`
	SellerID       string  `json:"sellerId"`
	ProductID      uint64  `json:"productId"`
	AddressID      uint64  `json:"addressId"`
	ConversationID uint64  `json:"conversationId,omitempty"`
	Quantity       int     `json:"quantity"`
	Price          string  `json:"price"`
	TotalAmount    string  `json:"totalAmount"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	TxHash         *string `json:"txHash"`
	Notes          *string `json:"notes"`
	CancelledBy    *string `json:"cancelledBy,omitempty"`
	PaidAt         *string `json:"paidAt,omitempty"`
	ConfirmedAt    *string `json:"confirmedAt,omitempty"`
	ShippedAt      *string `json:"shippedAt,omitempty"`
	CompletedAt    *string `json:"completedAt,omitempty"`
	CancelledAt    *string `json:"cancelledAt,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
}

func toOrderResponse(o *model.Order) OrderResponse {
	return OrderResponse{
		ID:             o.ID,
		BuyerID:        o.BuyerUID,
		SellerID:       o.SellerUID,
		ProductID:      o.ProductID,
		AddressID:      o.AddressID,
		ConversationID: o.ConversationID,
		Quantity:       o.Quantity,
		Price:          o.Price.StringFixed(2),
		TotalAmount:    o.TotalAmount.StringFixed(2),
		Currency:       o.Currency,
		Status:         string(o.Status),
		TxHash:         o.TxHash,
		Notes:          strPtrOrNil(o.Notes),
		CancelledBy:    strPtrOrNil(o.CancelledBy),
		PaidAt:         formatTime(o.PaidAt),
		ConfirmedAt:    formatTime(o.ConfirmedAt),
		ShippedAt:      formatTime(o.ShippedAt),
		CompletedAt:    formatTime(o.CompletedAt),
		CancelledAt:    formatTime(o.CancelledAt),
		CreatedAt:      o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type OrderProduct struct {
	ID       uint64 `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

type OrderAddress struct {
	ID         uint64 `json:"id"`
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// OrderDetailResponse is the single-order view. Product and Address are
// omitted when their rows can no longer be read.
type OrderDetailResponse struct {
	OrderResponse
	Product    *OrderProduct `json:"product,omitempty"`
	Address    *OrderAddress `json:"address,omitempty"`
	BuyerName  string        `json:"buyerName"`
	SellerName string        `json:"sellerName"`
}

type CreateOrderRequest struct {
	ProductID uint64 `json:"productId"`
	AddressID uint64 `json:"addressId"`
	Quantity  *int   `json:"quantity"`
	Notes     string `json:"notes"`
}

// UpdateOrderRequest applies price, then notes, then status; each field is
// optional but at least one is required.
type UpdateOrderRequest struct {
	Status *string          `json:"status"`
	Price  *decimal.Decimal `json:"price"`
	Notes  *string          `json:"notes"`
}

type PayResponse struct {
	Success                     bool   `json:"success"`
	TxHash                      string `json:"txHash"`
	Status                      string `json:"status"`
	EstimatedConfirmationTimeMs int64  `json:"estimatedConfirmationTimeMs"`
}

func parseID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

func (h *OrderHandler) Create(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	if req.ProductID == 0 || req.AddressID == 0 {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "productId and addressId are required"))
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	o, err := h.svc.CreateOrder(c.Request().Context(), service.CreateOrderInput{
		BuyerUID:  uid,
		ProductID: req.ProductID,
		AddressID: req.AddressID,
		Quantity:  qty,
		Notes:     req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) List(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	role := repository.OrderRole(c.QueryParam("type"))
	status := model.OrderStatus(c.QueryParam("status"))
	list, err := h.svc.List(c.Request().Context(), uid, role, status)
	if err != nil {
		return respondError(c, err)
	}
	resp := make([]OrderResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toOrderResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) Get(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid order id"))
	}
	ctx := c.Request().Context()
	o, err := h.svc.Get(ctx, id, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, h.detail(ctx, o))
}

func (h *OrderHandler) detail(ctx context.Context, o *model.Order) OrderDetailResponse {
	resp := OrderDetailResponse{
		OrderResponse: toOrderResponse(o),
		BuyerName:     service.DisplayName(ctx, h.users, o.BuyerUID),
		SellerName:    service.DisplayName(ctx, h.users, o.SellerUID),
	}
	logger := reqctx.Logger(ctx)
	if p, err := h.catalog.Product(ctx, o.ProductID); err != nil {
		logger.Warn().Err(err).Uint64("order_id", o.ID).Uint64("product_id", o.ProductID).Msg("order detail: product lookup")
	} else {
		resp.Product = &OrderProduct{
			ID:       p.ID,
			Title:    p.Title,
			Price:    p.Price.StringFixed(2),
			Currency: p.Currency,
		}
	}
	if a, err := h.catalog.Address(ctx, o.AddressID); err != nil {
		logger.Warn().Err(err).Uint64("order_id", o.ID).Uint64("address_id", o.AddressID).Msg("order detail: address lookup")
	} else {
		resp.Address = &OrderAddress{
			ID:         a.ID,
			Recipient:  a.Recipient,
			Line1:      a.Line1,
			City:       a.City,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
	}
	return resp
}

func (h *OrderHandler) Update(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid order id"))
	}
	var req UpdateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	if req.Status == nil && req.Price == nil && req.Notes == nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "nothing to update"))
	}

	ctx := c.Request().Context()
	var o *model.Order
	if req.Price != nil {
		if o, err = h.svc.UpdatePrice(ctx, id, uid, *req.Price); err != nil {
			return respondError(c, err)
		}
	}
	if req.Notes != nil {
		if o, err = h.svc.UpdateNotes(ctx, id, uid, *req.Notes); err != nil {
			return respondError(c, err)
		}
	}
	if req.Status != nil {
		if o, err = h.svc.ApplyStatus(ctx, id, uid, model.OrderStatus(*req.Status)); err != nil {
			return respondError(c, err)
		}
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) Pay(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid order id"))
	}
	res, err := h.svc.Pay(c.Request().Context(), id, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, PayResponse{
		Success:                     true,
		TxHash:                      res.TxHash,
		Status:                      string(res.Status),
		EstimatedConfirmationTimeMs: res.EstimatedConfirmation.Milliseconds(),
	})
}
