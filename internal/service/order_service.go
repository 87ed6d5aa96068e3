package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/reqctx"
	"github.com/shinyyama/demart-backend/internal/repository"
	"github.com/shopspring/decimal"
)

const maxNotesLen = 1000

var (
	maxPrice = decimal.New(1, 10) // decimal(12,2)
	maxTotal = decimal.New(1, 12) // decimal(14,2)
)

// SettlementScheduler issues transaction hashes and enqueues the delayed
// confirmation of a paid order.
type SettlementScheduler interface {
	TxHash() string
	Schedule(ctx context.Context, orderID uint64) (time.Duration, error)
}

// ConversationLinker finds or opens the conversation an order's events are
// narrated in.
type ConversationLinker interface {
	Ensure(ctx context.Context, userA, userB string, productID uint64) (*model.Conversation, error)
}

// OrderEvents receives every committed order change. Implementations must not
// fail the caller: order state is already persisted.
type OrderEvents interface {
	OrderCreated(ctx context.Context, o *model.Order)
	PriceChanged(ctx context.Context, o *model.Order, previous decimal.Decimal)
	Paid(ctx context.Context, o *model.Order)
	SettlementConfirmed(ctx context.Context, o *model.Order)
	Shipped(ctx context.Context, o *model.Order)
	Completed(ctx context.Context, o *model.Order)
	Cancelled(ctx context.Context, o *model.Order)
}

type CreateOrderInput struct {
	BuyerUID  string
	ProductID uint64
	AddressID uint64
	Quantity  int
	Notes     string
}

type PayResult struct {
	Order                 *model.Order
	// Status is what the payment wrote. Order is re-read afterwards and may
	// already show a later change.
	Status                model.OrderStatus
	TxHash                string
	EstimatedConfirmation time.Duration
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error)
	Get(ctx context.Context, id uint64, actor string) (*model.Order, error)
	List(ctx context.Context, actor string, role repository.OrderRole, status model.OrderStatus) ([]model.Order, error)
	UpdatePrice(ctx context.Context, id uint64, actor string, price decimal.Decimal) (*model.Order, error)
	UpdateNotes(ctx context.Context, id uint64, actor string, notes string) (*model.Order, error)
	Pay(ctx context.Context, id uint64, actor string) (*PayResult, error)
	ConfirmSettlement(ctx context.Context, id uint64) (bool, error)
	Ship(ctx context.Context, id uint64, actor string) (*model.Order, error)
	ConfirmReceipt(ctx context.Context, id uint64, actor string) (*model.Order, error)
	Cancel(ctx context.Context, id uint64, actor string) (*model.Order, error)
	ApplyStatus(ctx context.Context, id uint64, actor string, target model.OrderStatus) (*model.Order, error)
}

type orderService struct {
	orders     repository.OrderRepository
	catalog    Catalog
	convs      ConversationLinker
	settlement SettlementScheduler
	events     OrderEvents
	tx         db.TxManager
	now        func() time.Time
}

func NewOrderService(
	orders repository.OrderRepository,
	catalog Catalog,
	convs ConversationLinker,
	settlement SettlementScheduler,
	events OrderEvents,
	tx db.TxManager,
) OrderService {
	return &orderService{
		orders:     orders,
		catalog:    catalog,
		convs:      convs,
		settlement: settlement,
		events:     events,
		tx:         tx,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ValidatePrice accepts positive amounts with at most two decimal places.
func ValidatePrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return fmt.Errorf("%w: price must be greater than 0", ErrValidation)
	}
	if !p.Equal(p.Round(2)) {
		return fmt.Errorf("%w: price has more than 2 decimal places", ErrValidation)
	}
	if p.GreaterThanOrEqual(maxPrice) {
		return fmt.Errorf("%w: price is too large", ErrValidation)
	}
	return nil
}

// orderTotal is price times quantity, rejected when it would not fit the
// total_amount column.
func orderTotal(price decimal.Decimal, quantity int) (decimal.Decimal, error) {
	total := model.ComputeTotal(price, quantity)
	if total.GreaterThanOrEqual(maxTotal) {
		return decimal.Zero, fmt.Errorf("%w: order total is too large", ErrValidation)
	}
	return total, nil
}

func validateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > maxNotesLen {
		return fmt.Errorf("%w: notes exceed %d characters", ErrValidation, maxNotesLen)
	}
	return nil
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if in.BuyerUID == "" {
		return nil, ErrUnauthorized
	}
	product, err := s.catalog.Product(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if product.SellerUID == in.BuyerUID {
		return nil, fmt.Errorf("%w: cannot buy own product", ErrValidation)
	}
	if !product.Purchasable() {
		return nil, fmt.Errorf("%w: product is not available", ErrValidation)
	}
	if in.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	total, err := orderTotal(product.Price, in.Quantity)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(in.Notes)
	if err := validateNotes(notes); err != nil {
		return nil, err
	}
	addr, err := s.catalog.Address(ctx, in.AddressID)
	if err != nil {
		return nil, err
	}
	if addr.UserUID != in.BuyerUID {
		return nil, fmt.Errorf("%w: address does not belong to buyer", ErrValidation)
	}

	cv, err := s.convs.Ensure(ctx, in.BuyerUID, product.SellerUID, product.ID)
	if err != nil {
		return nil, err
	}

	o := &model.Order{
		BuyerUID:       in.BuyerUID,
		SellerUID:      product.SellerUID,
		ProductID:      product.ID,
		AddressID:      addr.ID,
		ConversationID: cv.ID,
		Quantity:       in.Quantity,
		Price:          product.Price,
		TotalAmount:    total,
		Currency:       product.Currency,
		Status:         model.OrderStatusAwaitingPayment,
		Notes:          notes,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	reqctx.Logger(ctx).Info().Uint64("order_id", o.ID).Uint64("product_id", o.ProductID).Msg("order created")
	s.events.OrderCreated(ctx, o)
	return o, nil
}

// load returns the order if actor takes part in it. Other users get
// ErrNotFound so that order ids leak nothing.
func (s *orderService) load(ctx context.Context, id uint64, actor string) (*model.Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !o.IsParticipant(actor) {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *orderService) Get(ctx context.Context, id uint64, actor string) (*model.Order, error) {
	if actor == "" {
		return nil, ErrUnauthorized
	}
	return s.load(ctx, id, actor)
}

func (s *orderService) List(ctx context.Context, actor string, role repository.OrderRole, status model.OrderStatus) ([]model.Order, error) {
	if actor == "" {
		return nil, ErrUnauthorized
	}
	switch role {
	case repository.OrderRoleAny, repository.OrderRoleBuyer, repository.OrderRoleSeller:
	default:
		return nil, fmt.Errorf("%w: type must be buy or sell", ErrValidation)
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.orders.List(ctx, repository.OrderFilter{UserUID: actor, Role: role, Status: status})
}

// transition loads the order as actor and applies op.
func (s *orderService) transition(ctx context.Context, id uint64, actor string, op model.Operation, fields func(o *model.Order, now time.Time) map[string]interface{}) (before, after *model.Order, err error) {
	if actor == "" {
		return nil, nil, ErrUnauthorized
	}
	o, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, nil, err
	}
	return s.apply(ctx, o, actor, op, fields)
}

// apply is the single check-then-write path every mutation goes through: the
// guard runs against o and the write only lands if the row is still in
// o.Status. fields may add columns to the update; status is always set.
func (s *orderService) apply(ctx context.Context, o *model.Order, actor string, op model.Operation, fields func(o *model.Order, now time.Time) map[string]interface{}) (before, after *model.Order, err error) {
	if err := Authorize(actor, o, op); err != nil {
		return nil, nil, err
	}
	next, _ := model.NextStatus(o.Status, op)

	now := s.now()
	upd := map[string]interface{}{}
	if fields != nil {
		upd = fields(o, now)
	}
	upd["status"] = next
	ok, err := s.orders.CompareAndSet(ctx, repository.StatusUpdate{ID: o.ID, From: o.Status, Fields: upd})
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: order changed concurrently, no longer %s", ErrInvalidTransition, o.Status)
	}
	updated, err := s.orders.FindByID(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	reqctx.Logger(ctx).Info().
		Uint64("order_id", o.ID).
		Str("op", string(op)).
		Str("from", o.Status.String()).
		Str("to", updated.Status.String()).
		Msg("order transition")
	return o, updated, nil
}

func (s *orderService) UpdatePrice(ctx context.Context, id uint64, actor string, price decimal.Decimal) (*model.Order, error) {
	if err := ValidatePrice(price); err != nil {
		return nil, err
	}
	if actor == "" {
		return nil, ErrUnauthorized
	}
	o, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	// quantity never changes, so the total checked here is the one written
	total, err := orderTotal(price, o.Quantity)
	if err != nil {
		return nil, err
	}
	before, after, err := s.apply(ctx, o, actor, model.OpUpdatePrice, func(*model.Order, time.Time) map[string]interface{} {
		return map[string]interface{}{
			"price":        price,
			"total_amount": total,
		}
	})
	if err != nil {
		return nil, err
	}
	s.events.PriceChanged(ctx, after, before.Price)
	return after, nil
}

func (s *orderService) UpdateNotes(ctx context.Context, id uint64, actor string, notes string) (*model.Order, error) {
	notes = strings.TrimSpace(notes)
	if err := validateNotes(notes); err != nil {
		return nil, err
	}
	_, after, err := s.transition(ctx, id, actor, model.OpUpdateNotes, func(*model.Order, time.Time) map[string]interface{} {
		return map[string]interface{}{"notes": notes}
	})
	return after, err
}

// Pay sets the transaction hash, moves the order to PENDING_CONFIRMATION and
// schedules its confirmation, all in one transaction.
func (s *orderService) Pay(ctx context.Context, id uint64, actor string) (*PayResult, error) {
	if actor == "" {
		return nil, ErrUnauthorized
	}
	o, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, o, model.OpPay); err != nil {
		return nil, err
	}
	next, _ := model.NextStatus(o.Status, model.OpPay)

	hash := s.settlement.TxHash()
	var eta time.Duration
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.orders.CompareAndSet(ctx, repository.StatusUpdate{
			ID:              o.ID,
			From:            o.Status,
			RequireNoTxHash: true,
			Fields: map[string]interface{}{
				"status":  next,
				"tx_hash": hash,
				"paid_at": s.now(),
			},
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order changed concurrently, no longer %s", ErrInvalidTransition, o.Status)
		}
		eta, err = s.settlement.Schedule(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	paid, err := s.orders.FindByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	reqctx.Logger(ctx).Info().Uint64("order_id", o.ID).Str("tx_hash", hash).Dur("eta", eta).Msg("order paid")
	s.events.Paid(ctx, paid)
	return &PayResult{Order: paid, Status: next, TxHash: hash, EstimatedConfirmation: eta}, nil
}

// ConfirmSettlement moves a paid order to PAYMENT_CONFIRMED. It re-reads the
// order and does nothing when it has left PENDING_CONFIRMATION, for example
// because it was cancelled while the confirmation was pending.
func (s *orderService) ConfirmSettlement(ctx context.Context, id uint64) (bool, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return false, notFound(err)
	}
	if o.Status != model.OrderStatusPendingConfirmation {
		return false, nil
	}
	_, after, err := s.apply(ctx, o, SystemActor, model.OpConfirmSettlement, func(_ *model.Order, now time.Time) map[string]interface{} {
		return map[string]interface{}{"confirmed_at": now}
	})
	if errors.Is(err, ErrInvalidTransition) {
		// lost the race to a cancellation
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.events.SettlementConfirmed(ctx, after)
	return true, nil
}

func (s *orderService) Ship(ctx context.Context, id uint64, actor string) (*model.Order, error) {
	_, after, err := s.transition(ctx, id, actor, model.OpShip, func(_ *model.Order, now time.Time) map[string]interface{} {
		return map[string]interface{}{"shipped_at": now}
	})
	if err != nil {
		return nil, err
	}
	s.events.Shipped(ctx, after)
	return after, nil
}

func (s *orderService) ConfirmReceipt(ctx context.Context, id uint64, actor string) (*model.Order, error) {
	_, after, err := s.transition(ctx, id, actor, model.OpConfirmReceipt, func(_ *model.Order, now time.Time) map[string]interface{} {
		return map[string]interface{}{"completed_at": now}
	})
	if err != nil {
		return nil, err
	}
	s.events.Completed(ctx, after)
	return after, nil
}

func (s *orderService) Cancel(ctx context.Context, id uint64, actor string) (*model.Order, error) {
	_, after, err := s.transition(ctx, id, actor, model.OpCancel, func(_ *model.Order, now time.Time) map[string]interface{} {
		return map[string]interface{}{
			"cancelled_at": now,
			"cancelled_by": actor,
		}
	})
	if err != nil {
		return nil, err
	}
	s.events.Cancelled(ctx, after)
	return after, nil
}

// ApplyStatus moves an order to target on behalf of a participant.
func (s *orderService) ApplyStatus(ctx context.Context, id uint64, actor string, target model.OrderStatus) (*model.Order, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}
	op, ok := model.OperationForTarget(target)
	if !ok {
		if _, err := s.load(ctx, id, actor); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status %s cannot be set directly", ErrInvalidTransition, target)
	}
	switch op {
	case model.OpShip:
		return s.Ship(ctx, id, actor)
	case model.OpConfirmReceipt:
		return s.ConfirmReceipt(ctx, id, actor)
	default:
		return s.Cancel(ctx, id, actor)
	}
}
