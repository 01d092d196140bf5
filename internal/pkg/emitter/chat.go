package emitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"gorm.io/gorm"
)

// ChatEmitter manages conversations and writes messages into them.
type ChatEmitter struct {
	repo repository.ConversationRepository
}

func NewChatEmitter(repo repository.ConversationRepository) *ChatEmitter {
	return &ChatEmitter{repo: repo}
}

// EnsureConversation reuses the conversation of the client and vendor for
// orderID, or their general conversation, and creates one otherwise.
func (e *ChatEmitter) EnsureConversation(ctx context.Context, clientID, vendorID, orderID string) (*models.Conversation, error) {
	if clientID == "" || vendorID == "" {
		return nil, fmt.Errorf("conversation needs both participants")
	}
	conv, err := e.repo.FindByParticipants(ctx, clientID, vendorID, orderID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv = &models.Conversation{ClientID: clientID, VendorID: vendorID, OrderID: orderID}
	if err := e.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// PostMessage appends msg and updates the conversation preview.
func (e *ChatEmitter) PostMessage(ctx context.Context, msg *models.Message, preview string) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("message without conversation")
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	if preview == "" {
		preview = msg.Text
	}
	if err := e.repo.AppendMessage(ctx, msg, preview); err != nil {
		return fmt.Errorf("append message to %s: %w", msg.ConversationID, err)
	}
	return nil
}
