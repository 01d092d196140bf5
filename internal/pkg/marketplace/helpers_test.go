package marketplace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/database/databasetest"
	"github.com/ManuelReschke/MarketFox/internal/pkg/emitter"
	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
)

const (
	testClient = "client-1"
	testVendor = "vendor-1"
	testSecret = "whsec_test"
)

type testEnv struct {
	db    *gorm.DB
	repos *repository.Repositories
	svc   *Service
	chat  *emitter.ChatEmitter
	seen  *eventLog
}

// eventLog records every published event before it is dispatched.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Type, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func (l *eventLog) last(t events.Type) (events.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == t {
			return l.events[i], true
		}
	}
	return events.Event{}, false
}

type failingNotifications struct{}

func (failingNotifications) Emit(context.Context, string, string, string, string, models.NotificationMetadata) (*models.Notification, error) {
	return nil, errors.New("notification store unavailable")
}

// newTestEnv wires the service to store-backed sinks on a private database.
// A non-nil notifications sink replaces the store-backed one.
func newTestEnv(t *testing.T, notifications events.NotificationSink, opts ...Option) *testEnv {
	t.Helper()
	db := databasetest.New(t)
	repos := repository.NewRepositories(db)
	chat := emitter.NewChatEmitter(repos.Conversation)
	if notifications == nil {
		notifications = emitter.NewNotificationEmitter(repos.Notification, nil)
	}
	dispatcher := events.NewDispatcher(notifications, emitter.NewActivityEmitter(repos.Activity), chat, nil)

	seen := &eventLog{}
	inline := events.NewSyncPublisher(dispatcher)
	publisher := events.PublisherFunc(func(ctx context.Context, ev events.Event) error {
		seen.mu.Lock()
		seen.events = append(seen.events, ev)
		seen.mu.Unlock()
		return inline.Publish(ctx, ev)
	})

	base := []Option{
		WithPublisher(publisher),
		WithConversations(chat),
		WithSettings(models.DefaultMarketSettings),
		WithWebhookSecret(testSecret),
	}
	svc := NewService(repos, append(base, opts...)...)
	return &testEnv{db: db, repos: repos, svc: svc, chat: chat, seen: seen}
}

func (e *testEnv) createOrder(t *testing.T, total int64) *models.Order {
	t.Helper()
	order, err := e.svc.CreateOrder(context.Background(), CreateOrderInput{
		ClientID:    testClient,
		VendorID:    testVendor,
		ServiceID:   "svc-logo",
		ServiceName: "Logo Design",
		TotalAmount: decimal.NewFromInt(total),
	})
	require.NoError(t, err)
	return order
}

func (e *testEnv) createProposal(t *testing.T, price decimal.Decimal, orderID string) *models.Proposal {
	t.Helper()
	proposal, err := e.svc.CreateProposal(context.Background(), CreateProposalInput{
		VendorID:     testVendor,
		ClientID:     testClient,
		ServiceID:    "svc-logo",
		ServiceName:  "Logo Design",
		OrderID:      orderID,
		Title:        "Logo package",
		Description:  "Three concepts, two revisions",
		Price:        price,
		DeliveryTime: 5,
	})
	require.NoError(t, err)
	return proposal
}

// acceptedOrder accepts a fresh proposal and returns the staged order with
// its pending advance payment.
func (e *testEnv) acceptedOrder(t *testing.T, price int64) (*models.Order, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	proposal := e.createProposal(t, decimal.NewFromInt(price), "")
	order, err := e.svc.AcceptProposal(ctx, proposal.ID)
	require.NoError(t, err)
	payment, err := e.svc.GetPaymentByOrderID(ctx, order.ID, models.PaymentStageAdvance)
	require.NoError(t, err)
	return order, payment
}

// deliveredOrder returns a staged order whose advance is paid and whose work
// has been delivered.
func (e *testEnv) deliveredOrder(t *testing.T, price int64) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, advance := e.acceptedOrder(t, price)
	_, err := e.svc.ProcessSuccessfulPayment(ctx, order.ID, advance.ID, nil, models.PaymentStageAdvance)
	require.NoError(t, err)
	order, err = e.svc.DeliverOrder(ctx, order.ID, DeliveryInput{Message: "Final files", FileURL: "https://files.example.com/logo.zip"})
	require.NoError(t, err)
	return order
}

func (e *testEnv) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := e.repos.Notification.ListByUser(context.Background(), userID, false, 0)
	require.NoError(t, err)
	return list
}

func (e *testEnv) earningsOf(t *testing.T, orderID string) []models.Earning {
	t.Helper()
	list, err := e.repos.Earning.List(context.Background(), repository.EarningFilter{OrderID: orderID})
	require.NoError(t, err)
	return list
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
