package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/demart-backend/internal/db"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shinyyama/demart-backend/internal/realtime"
	"github.com/shinyyama/demart-backend/internal/repository"
	"github.com/shinyyama/demart-backend/internal/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type broadcast struct {
	ConversationID uint64
	Event          realtime.Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []broadcast
}

func (n *recordingNotifier) Broadcast(conversationID uint64, ev realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, broadcast{ConversationID: conversationID, Event: ev})
}

func (n *recordingNotifier) all() []broadcast {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]broadcast, len(n.events))
	copy(out, n.events)
	return out
}

type fakeDirectory map[string]string

func (d fakeDirectory) Lookup(_ context.Context, uid string) (*UserProfile, error) {
	name, ok := d[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return &UserProfile{UID: uid, DisplayName: name}, nil
}

type fixture struct {
	conn     *gorm.DB
	catalog  repository.CatalogRepository
	convRepo repository.ConversationRepository
	jobs     repository.SettlementJobRepository
	notifier *recordingNotifier
	orders   OrderService
	convs    ConversationService
	coord    *Coordinator
	worker   *settlement.Worker
}

const (
	buyer    = "buyer-1"
	seller   = "seller-1"
	stranger = "stranger-1"
)

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	conn, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		conn:     conn,
		catalog:  repository.NewCatalogRepository(conn),
		convRepo: repository.NewConversationRepository(conn),
		jobs:     repository.NewSettlementJobRepository(conn),
		notifier: &recordingNotifier{},
	}
	users := fakeDirectory{buyer: "Test Buyer", seller: "Test Seller", stranger: "Someone"}
	catalog := NewCatalogService(f.catalog)
	f.convs = NewConversationService(f.convRepo, catalog, users, f.notifier)
	f.coord = NewCoordinator(f.convs, catalog, users)
	sim := settlement.NewSimulator(f.jobs, settlement.FixedDelay(delay))
	f.orders = NewOrderService(repository.NewOrderRepository(conn), catalog, f.convs, sim, f.coord, db.NewTxManager(conn))
	f.worker = settlement.NewWorker(f.jobs, f.orders, settlement.WorkerConfig{
		PollInterval: 10 * time.Millisecond,
		Lease:        time.Minute,
		BatchSize:    10,
	})
	return f
}

func (f *fixture) product(t *testing.T, sellerUID, price string, status model.ProductStatus) *model.Product {
	t.Helper()
	p := &model.Product{
		SellerUID: sellerUID,
		Title:     "camera",
		Price:     decimal.RequireFromString(price),
		Currency:  "CNY",
		Status:    status,
	}
	require.NoError(t, f.catalog.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) address(t *testing.T, owner string) *model.Address {
	t.Helper()
	a := &model.Address{UserUID: owner, Recipient: owner, Line1: "1 Main St", City: "Shanghai", Country: "CN"}
	require.NoError(t, f.catalog.CreateAddress(context.Background(), a))
	return a
}

// order creates a product priced 100 and an AWAITING_PAYMENT order of 2.
func (f *fixture) order(t *testing.T) *model.Order {
	t.Helper()
	p := f.product(t, seller, "100", model.ProductStatusActive)
	a := f.address(t, buyer)
	o, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		BuyerUID:  buyer,
		ProductID: p.ID,
		AddressID: a.ID,
		Quantity:  2,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) systemMessages(t *testing.T, convID uint64) []string {
	t.Helper()
	msgs, err := f.convRepo.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	var out []string
	for _, m := range msgs {
		if m.IsSystem() {
			out = append(out, m.Content)
		}
	}
	return out
}
