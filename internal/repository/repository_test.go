package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func newOrder(buyer, seller string) *model.Order {
	price := decimal.NewFromInt(100)
	return &model.Order{
		BuyerUID:    buyer,
		SellerUID:   seller,
		ProductID:   1,
		AddressID:   1,
		Quantity:    2,
		Price:       price,
		TotalAmount: model.ComputeTotal(price, 2),
		Currency:    "CNY",
		Status:      model.OrderStatusAwaitingPayment,
	}
}

func TestOrderRepositoryCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(newTestDB(t))

	o := newOrder("buyer", "seller")
	require.NoError(t, repo.Create(ctx, o))

	hash := "0x" + "ab"
	ok, err := repo.CompareAndSet(ctx, StatusUpdate{
		ID:              o.ID,
		From:            model.OrderStatusAwaitingPayment,
		RequireNoTxHash: true,
		Fields:          map[string]interface{}{"status": model.OrderStatusPendingConfirmation, "tx_hash": hash},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// stale expectation loses
	ok, err = repo.CompareAndSet(ctx, StatusUpdate{
		ID:     o.ID,
		From:   model.OrderStatusAwaitingPayment,
		Fields: map[string]interface{}{"status": model.OrderStatusCancelled},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingConfirmation, got.Status)
	require.NotNil(t, got.TxHash)
	assert.Equal(t, hash, *got.TxHash)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(200)))
}

func TestOrderRepositoryCompareAndSetIdenticalValues(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(newTestDB(t))
	o := newOrder("buyer", "seller")
	require.NoError(t, repo.Create(ctx, o))

	// the same edit twice still matches the row both times
	for i := 0; i < 2; i++ {
		ok, err := repo.CompareAndSet(ctx, StatusUpdate{
			ID:     o.ID,
			From:   model.OrderStatusAwaitingPayment,
			Fields: map[string]interface{}{"status": model.OrderStatusAwaitingPayment, "notes": "leave at door"},
		})
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i)
	}
}

func TestOrderRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(newTestDB(t))

	bought := newOrder("alice", "bob")
	sold := newOrder("carol", "alice")
	other := newOrder("carol", "bob")
	for _, o := range []*model.Order{bought, sold, other} {
		require.NoError(t, repo.Create(ctx, o))
	}
	_, err := repo.CompareAndSet(ctx, StatusUpdate{
		ID:     sold.ID,
		From:   model.OrderStatusAwaitingPayment,
		Fields: map[string]interface{}{"status": model.OrderStatusCancelled},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter OrderFilter
		want   []uint64
	}{
		{"both roles newest first", OrderFilter{UserUID: "alice"}, []uint64{sold.ID, bought.ID}},
		{"buy", OrderFilter{UserUID: "alice", Role: OrderRoleBuyer}, []uint64{bought.ID}},
		{"sell", OrderFilter{UserUID: "alice", Role: OrderRoleSeller}, []uint64{sold.ID}},
		{"status", OrderFilter{UserUID: "alice", Status: model.OrderStatusCancelled}, []uint64{sold.ID}},
		{"stranger", OrderFilter{UserUID: "dave"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			var ids []uint64
			for _, o := range list {
				ids = append(ids, o.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestConversationFindOrCreateIsCanonical(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))

	cv, created, err := repo.FindOrCreate(ctx, "zed", "amy", 7)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "amy", cv.UserA)
	assert.Equal(t, "zed", cv.UserB)

	again, created, err := repo.FindOrCreate(ctx, "amy", "zed", 7)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cv.ID, again.ID)

	noProduct, created, err := repo.FindOrCreate(ctx, "amy", "zed", 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, cv.ID, noProduct.ID)
}

func TestConversationMessages(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(newTestDB(t))

	cv, _, err := repo.FindOrCreate(ctx, "amy", "zed", 1)
	require.NoError(t, err)
	before := cv.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	first := &model.Message{ConversationID: cv.ID, SenderUID: "amy", ReceiverUID: "zed", Content: "hi", Type: model.MessageTypeText}
	second := &model.Message{ConversationID: cv.ID, SenderUID: "zed", ReceiverUID: "amy", Content: "hello", Type: model.MessageTypeText}
	require.NoError(t, repo.CreateMessage(ctx, first))
	require.NoError(t, repo.CreateMessage(ctx, second))

	reloaded, err := repo.FindByID(ctx, cv.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.UpdatedAt.After(before))

	msgs, err := repo.ListMessages(ctx, cv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)

	n, err := repo.MarkRead(ctx, cv.ID, "zed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.MarkRead(ctx, cv.ID, "zed")
	require.NoError(t, err)
	assert.Zero(t, n)

	last, err := repo.LastMessages(ctx, []uint64{cv.ID, cv.ID + 100})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "hello", last[cv.ID].Content)
}

func TestCreateMessageUnknownConversation(t *testing.T) {
	conn := newTestDB(t)
	repo := NewConversationRepository(conn)
	ctx := context.Background()

	err := repo.CreateMessage(ctx, &model.Message{ConversationID: 99, SenderUID: "a", ReceiverUID: "b", Content: "x", Type: model.MessageTypeText})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var count int64
	require.NoError(t, conn.Model(&model.Message{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSettlementJobClaimAndFinish(t *testing.T) {
	ctx := context.Background()
	repo := NewSettlementJobRepository(newTestDB(t))
	now := time.Now().UTC()

	due := &model.SettlementJob{OrderID: 1, DueAt: now.Add(-time.Second), State: model.SettlementJobPending}
	later := &model.SettlementJob{OrderID: 2, DueAt: now.Add(time.Hour), State: model.SettlementJobPending}
	require.NoError(t, repo.Create(ctx, due))
	require.NoError(t, repo.Create(ctx, later))

	jobs, err := repo.ClaimDue(ctx, "w1", now, 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, due.ID, jobs[0].ID)
	assert.Equal(t, "w1", jobs[0].LeaseOwner)

	// leased jobs are invisible to other workers until the lease runs out
	jobs, err = repo.ClaimDue(ctx, "w2", now, 30*time.Second, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = repo.ClaimDue(ctx, "w2", now.Add(time.Minute), 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "w2", jobs[0].LeaseOwner)

	// the first worker lost its lease and cannot finish the job
	ok, err := repo.Finish(ctx, due.ID, "w1", model.SettlementJobDone, "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Finish(ctx, due.ID, "w2", model.SettlementJobDone, "", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementJobDone, got.State)
	assert.NotNil(t, got.FinishedAt)
	assert.Nil(t, got.LeasedUntil)
}

func TestCatalogRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(newTestDB(t))

	p := &model.Product{SellerUID: "s", Title: "lamp", Price: decimal.RequireFromString("12.50"), Currency: "CNY", Status: model.ProductStatusActive}
	require.NoError(t, repo.CreateProduct(ctx, p))
	got, err := repo.FindProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, got.Purchasable())
	n, err := repo.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindAddress(ctx, 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	nilRepo := NewCatalogRepository(nil)
	_, err = nilRepo.FindProduct(ctx, 1)
	assert.ErrorIs(t, err, ErrDBNotReady)
}
