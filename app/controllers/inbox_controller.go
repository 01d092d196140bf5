package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

// HandleListNotifications returns the caller's notifications with the unread
// count. ?unread=true hides read ones.
func (mc *MarketController) HandleListNotifications(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	notifications, err := mc.repos.Notification.ListByUser(c.UserContext(), userID, c.QueryBool("unread", false), listLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	unread, err := mc.repos.Notification.CountUnread(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notifications": notifications, "unread_count": unread})
}

func (mc *MarketController) HandleMarkNotificationRead(c *fiber.Ctx) error {
	err := mc.repos.Notification.MarkRead(c.UserContext(), c.Params("id"), usercontext.GetUserID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Notification not found"})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (mc *MarketController) HandleMarkAllNotificationsRead(c *fiber.Ctx) error {
	updated, err := mc.repos.Notification.MarkAllRead(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "updated": updated})
}

// HandleListActivities returns the caller's activity feed
func (mc *MarketController) HandleListActivities(c *fiber.Ctx) error {
	activities, err := mc.repos.Activity.ListByUser(c.UserContext(), usercontext.GetUserID(c), listLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"activities": activities})
}

// HandleListConversationMessages returns a conversation's messages to its
// participants.
func (mc *MarketController) HandleListConversationMessages(c *fiber.Ctx) error {
	conversation, err := mc.repos.Conversation.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Conversation not found"})
		}
		return respondError(c, err)
	}
	if err := authorize(usercontext.GetUserContext(c), conversation.ClientID, conversation.VendorID); err != nil {
		return respondError(c, err)
	}
	messages, err := mc.repos.Conversation.ListMessages(c.UserContext(), conversation.ID, listLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"conversation": conversation, "messages": messages})
}
