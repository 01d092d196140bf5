package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifications struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (f *fakeNotifications) Emit(_ context.Context, userID, kind, title, message string, meta models.NotificationMetadata) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := models.Notification{UserID: userID, Type: kind, Title: title, Message: message, Metadata: meta}
	f.sent = append(f.sent, n)
	return &n, nil
}

type fakeActivities struct {
	entries []models.Activity
	err     error
}

func (f *fakeActivities) Record(_ context.Context, entries ...models.Activity) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entries...)
	return nil
}

type fakeChat struct {
	messages []models.Message
	previews []string
	err      error
	panics   bool
}

func (f *fakeChat) EnsureConversation(_ context.Context, clientID, vendorID, orderID string) (*models.Conversation, error) {
	return &models.Conversation{ID: "conv-1", ClientID: clientID, VendorID: vendorID, OrderID: orderID}, nil
}

func (f *fakeChat) PostMessage(_ context.Context, msg *models.Message, preview string) error {
	if f.panics {
		panic("chat exploded")
	}
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, *msg)
	f.previews = append(f.previews, preview)
	return nil
}

type recordedStep struct {
	step string
	ok   bool
}

type fakeRecorder struct {
	steps []recordedStep
}

func (f *fakeRecorder) RecordStep(_ context.Context, _ Type, step string, err error) {
	f.steps = append(f.steps, recordedStep{step: step, ok: err == nil})
}

func newTestDispatcher() (*Dispatcher, *fakeNotifications, *fakeActivities, *fakeChat, *fakeRecorder) {
	n, a, c, r := &fakeNotifications{}, &fakeActivities{}, &fakeChat{}, &fakeRecorder{}
	return NewDispatcher(n, a, c, r), n, a, c, r
}

func TestDispatcher_ProposalRejected(t *testing.T) {
	d, n, a, c, _ := newTestDispatcher()
	ev := New(ProposalRejected)
	ev.ProposalID = "p-1"
	ev.ConversationID = "conv-1"
	ev.ClientID = "client-1"
	ev.VendorID = "vendor-1"
	ev.Title = "Logo design"

	require.NoError(t, d.Handle(context.Background(), ev))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "vendor-1", n.sent[0].UserID)
	assert.Equal(t, models.NotificationProposalRejected, n.sent[0].Type)
	assert.Equal(t, "/messages/conv-1?focus=proposal_p-1", n.sent[0].Metadata.Link)

	require.Len(t, c.messages, 1)
	assert.Equal(t, "❌ Client rejected the proposal", c.messages[0].Text)
	assert.Equal(t, models.SystemSenderID, c.messages[0].SenderID)

	require.Len(t, a.entries, 2)
	assert.Equal(t, models.ActivityRoleClient, a.entries[0].Role)
	assert.Equal(t, models.ActivityRoleVendor, a.entries[1].Role)
}

func TestDispatcher_OrderDeliveredPostsWorkDeliveredMessage(t *testing.T) {
	d, n, _, c, _ := newTestDispatcher()
	ev := New(OrderDelivered)
	ev.OrderID = "o-1"
	ev.ConversationID = "conv-1"
	ev.ClientID = "client-1"
	ev.VendorID = "vendor-1"
	ev.Message = "Here you go"
	ev.Attachments = []models.Attachment{{Name: "final.zip", URL: "https://cdn/final.zip", Type: "application/zip"}}

	require.NoError(t, d.Handle(context.Background(), ev))

	require.Len(t, c.messages, 1)
	assert.Equal(t, models.MessageTypeWorkDelivered, c.messages[0].Type)
	assert.Equal(t, "vendor-1", c.messages[0].SenderID)
	assert.Equal(t, "o-1", c.messages[0].OrderID)
	assert.Equal(t, ev.Attachments, c.messages[0].Attachments)
	assert.Equal(t, WorkDeliveredPreview, c.previews[0])

	require.Len(t, n.sent, 1)
	assert.Equal(t, "client-1", n.sent[0].UserID)
	assert.Equal(t, "/messages/conv-1?focus=delivery", n.sent[0].Metadata.Link)
}

func TestDispatcher_SkipsChatWithoutConversation(t *testing.T) {
	d, n, _, c, r := newTestDispatcher()
	ev := New(OrderCreated)
	ev.OrderID = "o-1"
	ev.ClientID = "client-1"
	ev.VendorID = "vendor-1"

	require.NoError(t, d.Handle(context.Background(), ev))
	assert.Empty(t, c.messages)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "/orders/o-1", n.sent[0].Metadata.Link)
	assert.Equal(t, []recordedStep{{"notify:new_order", true}, {"activity", true}}, r.steps)
}

func TestDispatcher_PaymentFinalizedPerStage(t *testing.T) {
	cases := map[models.PaymentStage]string{
		models.PaymentStageAdvance:   models.NotificationAdvancePaid,
		models.PaymentStageRemaining: models.NotificationPaymentCompleted,
		models.PaymentStageFull:      models.NotificationPaymentReceived,
	}
	for stage, vendorKind := range cases {
		d, n, _, _, _ := newTestDispatcher()
		ev := New(PaymentFinalized)
		ev.OrderID = "o-1"
		ev.PaymentID = "pay-1"
		ev.ClientID = "client-1"
		ev.VendorID = "vendor-1"
		ev.Stage = stage
		ev.Amount = decimal.NewFromInt(60)
		ev.Currency = "USD"

		require.NoError(t, d.Handle(context.Background(), ev))
		require.Len(t, n.sent, 2, "stage %s", stage)
		assert.Equal(t, vendorKind, n.sent[0].Type)
		assert.Equal(t, "vendor-1", n.sent[0].UserID)
		assert.Equal(t, models.NotificationPaymentSuccess, n.sent[1].Type)
		assert.Equal(t, "client-1", n.sent[1].UserID)
		assert.Equal(t, "60.00", n.sent[1].Metadata.Amount)
		assert.Equal(t, string(stage), n.sent[1].Metadata.Stage)
	}
}

func TestDispatcher_PartialFailureIsSwallowed(t *testing.T) {
	d, n, a, c, r := newTestDispatcher()
	n.err = errors.New("inbox down")

	ev := New(ProposalAccepted)
	ev.ProposalID = "p-1"
	ev.ConversationID = "conv-1"
	ev.ClientID = "client-1"
	ev.VendorID = "vendor-1"

	require.NoError(t, d.Handle(context.Background(), ev))
	assert.Len(t, c.messages, 1)
	assert.Len(t, a.entries, 2)
	assert.Contains(t, r.steps, recordedStep{"notify:proposal_accepted", false})
}

func TestDispatcher_AllStepsFailingReturnsError(t *testing.T) {
	d, n, a, c, _ := newTestDispatcher()
	n.err = errors.New("inbox down")
	a.err = errors.New("feed down")
	c.panics = true

	ev := New(ProposalRejected)
	ev.ProposalID = "p-1"
	ev.ConversationID = "conv-1"
	ev.ClientID = "client-1"
	ev.VendorID = "vendor-1"

	err := d.Handle(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: chat exploded")
	assert.ErrorIs(t, err, n.err)
}

func TestDispatcher_UnknownTypeIsIgnored(t *testing.T) {
	d, n, _, _, _ := newTestDispatcher()
	require.NoError(t, d.Handle(context.Background(), New(Type("order.archived"))))
	assert.Empty(t, n.sent)
}

func TestFanoutPublisher_MirrorErrorsDoNotFail(t *testing.T) {
	var primary, mirror int
	p := NewFanoutPublisher(
		PublisherFunc(func(context.Context, Event) error { primary++; return nil }),
		PublisherFunc(func(context.Context, Event) error { mirror++; return errors.New("kafka down") }),
	)
	require.NoError(t, p.Publish(context.Background(), New(OrderCreated)))
	assert.Equal(t, 1, primary)
	assert.Equal(t, 1, mirror)

	failing := NewFanoutPublisher(PublisherFunc(func(context.Context, Event) error { return assert.AnError }))
	assert.ErrorIs(t, failing.Publish(context.Background(), New(OrderCreated)), assert.AnError)
}

func TestEventMarshalRoundTripAndTopics(t *testing.T) {
	ev := New(PaymentFinalized)
	ev.OrderID = "o-1"
	ev.Amount = decimal.RequireFromString("140.50")
	ev.Stage = models.PaymentStageRemaining

	data, err := ev.Marshal()
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, ev.Amount.Equal(got.Amount))
	assert.Equal(t, "o-1", got.PartitionKey())

	assert.Equal(t, "marketfox.payment.finalized", topicFor("marketfox.", PaymentFinalized))
	assert.Equal(t, "order.created", topicFor("", OrderCreated))
}
