package events

import (
	"context"

	"github.com/ManuelReschke/MarketFox/app/models"
)

// NotificationSink writes one inbox notification for a user.
type NotificationSink interface {
	Emit(ctx context.Context, userID, kind, title, message string, meta models.NotificationMetadata) (*models.Notification, error)
}

// ActivitySink appends activity feed entries.
type ActivitySink interface {
	Record(ctx context.Context, entries ...models.Activity) error
}

// ChatSink owns conversations and their message streams.
type ChatSink interface {
	EnsureConversation(ctx context.Context, clientID, vendorID, orderID string) (*models.Conversation, error)
	// PostMessage appends msg and sets the conversation preview to preview.
	PostMessage(ctx context.Context, msg *models.Message, preview string) error
}

// Recorder observes the outcome of every fan-out step.
type Recorder interface {
	RecordStep(ctx context.Context, t Type, step string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordStep(context.Context, Type, string, error) {}
