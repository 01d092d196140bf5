package emitter

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/live"
	"github.com/gofiber/fiber/v2/log"
)

// Pusher delivers a live update to a connected user.
type Pusher interface {
	Push(ctx context.Context, userID string, u live.Update) error
}

// NotificationEmitter stores inbox notifications and pushes them to the
// recipient's live feed.
type NotificationEmitter struct {
	repo   repository.NotificationRepository
	pusher Pusher
}

// NewNotificationEmitter creates the emitter. pusher may be nil.
func NewNotificationEmitter(repo repository.NotificationRepository, pusher Pusher) *NotificationEmitter {
	return &NotificationEmitter{repo: repo, pusher: pusher}
}

func (e *NotificationEmitter) Emit(ctx context.Context, userID, kind, title, message string, meta models.NotificationMetadata) (*models.Notification, error) {
	if userID == "" {
		return nil, fmt.Errorf("notification %s: empty recipient", kind)
	}
	n := &models.Notification{
		UserID:   userID,
		Type:     kind,
		Title:    title,
		Message:  message,
		Metadata: meta,
	}
	if err := e.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification %s: %w", kind, err)
	}

	if e.pusher != nil {
		update, err := live.NewUpdate("notification", n)
		if err == nil {
			err = e.pusher.Push(ctx, userID, update)
		}
		if err != nil {
			log.Warnf("[Emitter] Live push of notification %s to %s failed: %v", n.ID, userID, err)
		}
	}
	return n, nil
}
