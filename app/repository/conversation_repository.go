package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindByParticipants returns the conversation between client and vendor for
// orderID, falling back to their general conversation without an order.
func (r *conversationRepository) FindByParticipants(ctx context.Context, clientID, vendorID, orderID string) (*models.Conversation, error) {
	var conversation models.Conversation
	base := r.db.WithContext(ctx).Where("client_id = ? AND vendor_id = ?", clientID, vendorID)
	if orderID != "" {
		err := base.Session(&gorm.Session{}).Where("order_id = ?", orderID).First(&conversation).Error
		if err == nil {
			return &conversation, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if err := base.Where("order_id = ?", "").Order("created_at ASC").First(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *models.Message, preview string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message":      preview,
				"last_message_type": msg.Type,
				"last_sender_id":    msg.SenderID,
				"last_message_at":   msg.CreatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListMessages returns the most recent messages of a conversation, oldest first.
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
