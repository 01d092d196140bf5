package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

// OrderFilter narrows an order listing. Empty fields are ignored.
type OrderFilter struct {
	ClientID string
	VendorID string
	Status   models.OrderStatus
	Limit    int
}

// ProposalFilter narrows a proposal listing. Empty fields are ignored.
type ProposalFilter struct {
	ClientID       string
	VendorID       string
	ConversationID string
	OrderID        string
	Status         models.ProposalStatus
	Limit          int
}

// EarningFilter narrows an earnings listing. Empty fields are ignored.
type EarningFilter struct {
	VendorID string
	OrderID  string
	Status   string
	Limit    int
}

// OrderRepository defines the interface for order-related database operations
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// Update writes the named columns of changes to the order with the given id.
	Update(ctx context.Context, id string, changes *models.Order, columns ...string) error
	// UpdateIfStatus is Update guarded by the current status being one of from.
	// It reports false when no row matched.
	UpdateIfStatus(ctx context.Context, id string, from []models.OrderStatus, changes *models.Order, columns ...string) (bool, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
}

// ProposalRepository defines the interface for proposal-related database operations
type ProposalRepository interface {
	Create(ctx context.Context, proposal *models.Proposal) error
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	UpdateIfStatus(ctx context.Context, id string, from []models.ProposalStatus, changes *models.Proposal, columns ...string) (bool, error)
	List(ctx context.Context, filter ProposalFilter) ([]models.Proposal, error)
}

// PaymentRepository defines the interface for payment-related database operations
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	// GetByOrderID returns the first payment of the order, restricted to stage
	// when stage is not empty.
	GetByOrderID(ctx context.Context, orderID string, stage models.PaymentStage) (*models.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]models.Payment, error)
	UpdateIfStatus(ctx context.Context, id string, from []models.PaymentStatus, changes *models.Payment, columns ...string) (bool, error)
}

// EarningRepository defines the interface for earning-related database operations
type EarningRepository interface {
	Create(ctx context.Context, earning *models.Earning) error
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Earning, error)
	List(ctx context.Context, filter EarningFilter) ([]models.Earning, error)
}

// DeliveryRepository defines the interface for delivery records
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *models.Delivery) error
	ListByOrder(ctx context.Context, orderID string) ([]models.Delivery, error)
}

// NotificationRepository defines the interface for the notification inbox
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// ActivityRepository defines the interface for the activity feed
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Activity, error)
}

// ConversationRepository defines the interface for conversations and their messages
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	FindByParticipants(ctx context.Context, clientID, vendorID, orderID string) (*models.Conversation, error)
	// AppendMessage stores msg and refreshes the conversation preview in one transaction.
	AppendMessage(ctx context.Context, msg *models.Message, preview string) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

// WebhookEventRepository defines the interface for gateway webhook deduplication
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
	// ClaimUnverified replaces a stored event whose signature failed with a
	// verified payload. It reports false when the event was already verified.
	ClaimUnverified(ctx context.Context, id uint, payload string) (bool, error)
	// MarkRetryable stores a processing error and leaves the event unprocessed.
	MarkRetryable(ctx context.Context, id uint, processingError string) error
	// ClaimRetry takes a verified event left unprocessed by MarkRetryable. It
	// reports false when another delivery got there first or nothing failed.
	ClaimRetry(ctx context.Context, id uint) (bool, error)
}

// SettingRepository defines the interface for marketplace settings
type SettingRepository interface {
	// Current returns the settings the workflows read right now.
	Current() *models.MarketSettings
	// Reload reads the settings table and makes the result current.
	Reload(ctx context.Context) (*models.MarketSettings, error)
	// Save validates and stores settings and makes them current.
	Save(ctx context.Context, settings *models.MarketSettings) error
}

// QueueRepository defines the interface for inspecting Redis-backed queues and counters
type QueueRepository interface {
	GetListLength(ctx context.Context, key string) (int64, error)
	GetSortedSetSize(ctx context.Context, key string) (int64, error)
	GetHash(ctx context.Context, key string) (map[string]string, error)
	GetTTL(ctx context.Context, key string) (time.Duration, error)
	FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Order        OrderRepository
	Proposal     ProposalRepository
	Payment      PaymentRepository
	Earning      EarningRepository
	Delivery     DeliveryRepository
	Notification NotificationRepository
	Activity     ActivityRepository
	Conversation ConversationRepository
	WebhookEvent WebhookEventRepository
	Setting      SettingRepository
	Queue        QueueRepository

	db     *gorm.DB
	lister *sortedLister
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB, opts ...Option) *Repositories {
	cfg := options{serverSort: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	repos := newRepositories(db, &sortedLister{serverSort: cfg.serverSort})
	repos.Queue = NewQueueRepository(cfg.redis)
	return repos
}

func newRepositories(db *gorm.DB, lister *sortedLister) *Repositories {
	return &Repositories{
		Order:        &orderRepository{db: db, lister: lister},
		Proposal:     &proposalRepository{db: db, lister: lister},
		Payment:      &paymentRepository{db: db, lister: lister},
		Earning:      &earningRepository{db: db, lister: lister},
		Delivery:     &deliveryRepository{db: db},
		Notification: &notificationRepository{db: db, lister: lister},
		Activity:     &activityRepository{db: db, lister: lister},
		Conversation: &conversationRepository{db: db},
		WebhookEvent: &webhookEventRepository{db: db},
		Setting:      NewSettingRepository(db),
		db:           db,
		lister:       lister,
	}
}

// Transaction runs fn against repositories bound to a single database
// transaction. Returning an error from fn rolls every write back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepos := newRepositories(tx, r.lister)
		txRepos.Queue = r.Queue
		return fn(txRepos)
	})
}

// DB returns the underlying connection.
func (r *Repositories) DB() *gorm.DB {
	return r.db
}
