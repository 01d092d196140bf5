package marketplace

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
)

// ConversationOpener finds or opens the conversation between a client and a
// vendor. events.ChatSink implementations satisfy it.
type ConversationOpener interface {
	EnsureConversation(ctx context.Context, clientID, vendorID, orderID string) (*models.Conversation, error)
}

// Service runs the order, proposal and payment workflows. Each operation
// commits its primary write first and then publishes a domain event for the
// notification, activity and chat fan-out.
type Service struct {
	repos         *repository.Repositories
	publisher     events.Publisher
	conversations ConversationOpener
	gateway       Gateway
	settings      func() *models.MarketSettings
	now           func() time.Time
	webhookSecret string
	validate      *validator.Validate
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where domain events go. Without it events are dropped.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithConversations lets workflows open conversations for new orders and proposals.
func WithConversations(c ConversationOpener) Option {
	return func(s *Service) { s.conversations = c }
}

// WithGateway sets the payment gateway used by PayStage.
func WithGateway(g Gateway) Option {
	return func(s *Service) { s.gateway = g }
}

// WithSettings overrides the source of business settings.
func WithSettings(fn func() *models.MarketSettings) Option {
	return func(s *Service) { s.settings = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWebhookSecret sets the shared secret for gateway webhook signatures.
func WithWebhookSecret(secret string) Option {
	return func(s *Service) { s.webhookSecret = secret }
}

// NewService creates the marketplace service from injected repositories.
func NewService(repos *repository.Repositories, opts ...Option) *Service {
	s := &Service{
		repos:     repos,
		publisher: events.NopPublisher,
		gateway:   NewSimulatedGateway(),
		settings:  models.GetMarketSettings,
		now:       func() time.Time { return time.Now().UTC() },
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates the marketplace service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(repository.NewRepositories(db), opts...)
}

// publish hands ev to the publisher. Failures are logged and never returned:
// the primary write has already committed.
func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Errorf("[Marketplace] Failed to publish %s (event=%s order=%s proposal=%s payment=%s): %v",
			ev.Type, ev.ID, ev.OrderID, ev.ProposalID, ev.PaymentID, err)
	}
}

// openConversation returns the conversation id for the participants, or ""
// when no opener is configured or opening fails.
func (s *Service) openConversation(ctx context.Context, clientID, vendorID, orderID string) string {
	if s.conversations == nil {
		return ""
	}
	conv, err := s.conversations.EnsureConversation(ctx, clientID, vendorID, orderID)
	if err != nil {
		log.Warnf("[Marketplace] Could not open conversation for client=%s vendor=%s order=%s: %v", clientID, vendorID, orderID, err)
		return ""
	}
	return conv.ID
}

func (s *Service) validateStruct(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		return invalidInput("%v", err)
	}
	return nil
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
