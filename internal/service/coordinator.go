package service

import (
	"context"
	"fmt"

	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/reqctx"
	"github.com/shopspring/decimal"
)

// Coordinator narrates order events as system messages in the order's
// conversation. It only ever reads order state; nothing it posts feeds back
// into an order.
type Coordinator struct {
	convs   ConversationService
	catalog Catalog
	users   UserDirectory
}

func NewCoordinator(convs ConversationService, catalog Catalog, users UserDirectory) *Coordinator {
	return &Coordinator{convs: convs, catalog: catalog, users: users}
}

var _ OrderEvents = (*Coordinator)(nil)

func (c *Coordinator) post(ctx context.Context, o *model.Order, content string) {
	if o.ConversationID == 0 {
		return
	}
	if _, err := c.convs.PostSystemMessage(ctx, o.ConversationID, content); err != nil {
		reqctx.Logger(ctx).Error().Err(err).
			Uint64("order_id", o.ID).
			Uint64("conversation_id", o.ConversationID).
			Msg("post order system message")
	}
}

func (c *Coordinator) OrderCreated(ctx context.Context, o *model.Order) {
	c.post(ctx, o, fmt.Sprintf("order #%d created: quantity %d, total %s %s", o.ID, o.Quantity, o.TotalAmount.StringFixed(2), o.Currency))
}

func (c *Coordinator) PriceChanged(ctx context.Context, o *model.Order, _ decimal.Decimal) {
	c.post(ctx, o, PriceChangedMessage(o.Price))
}

func (c *Coordinator) Paid(ctx context.Context, o *model.Order) {
	hash := ""
	if o.TxHash != nil {
		hash = *o.TxHash
	}
	c.post(ctx, o, fmt.Sprintf("payment submitted, tx %s", hash))
}

func (c *Coordinator) SettlementConfirmed(ctx context.Context, o *model.Order) {
	c.post(ctx, o, "payment confirmed")
}

func (c *Coordinator) Shipped(ctx context.Context, o *model.Order) {
	c.post(ctx, o, "order shipped")
}

func (c *Coordinator) Completed(ctx context.Context, o *model.Order) {
	c.post(ctx, o, "order completed")
}

func (c *Coordinator) Cancelled(ctx context.Context, o *model.Order) {
	by := "buyer"
	if o.CancelledBy == o.SellerUID {
		by = "seller"
	}
	c.post(ctx, o, "order cancelled by "+by)
}

// PurchaseIntent announces that actor wants to buy the product a conversation
// is about. It changes no order.
func (c *Coordinator) PurchaseIntent(ctx context.Context, convID uint64, actor string) (*model.Message, error) {
	cv, err := c.convs.Get(ctx, convID, actor)
	if err != nil {
		return nil, err
	}
	if cv.ProductID == 0 {
		return nil, fmt.Errorf("%w: conversation is not about a product", ErrValidation)
	}
	product, err := c.catalog.Product(ctx, cv.ProductID)
	if err != nil {
		return nil, err
	}
	if product.SellerUID == actor {
		return nil, fmt.Errorf("%w: cannot buy own product", ErrValidation)
	}
	name := DisplayName(ctx, c.users, actor)
	return c.convs.PostSystemMessage(ctx, cv.ID, fmt.Sprintf("%s wants to buy this item", name))
}

// PriceChangedMessage is the narration of a price edit.
func PriceChangedMessage(price decimal.Decimal) string {
	return "price changed to " + price.String()
}
