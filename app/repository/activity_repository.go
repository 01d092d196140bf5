package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"gorm.io/gorm"
)

type activityRepository struct {
	db     *gorm.DB
	lister *sortedLister
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *activityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	return listNewestFirst(ctx, r.lister, r.db, equality("user_id", userID), limit, func(a *models.Activity) time.Time {
		return a.CreatedAt
	})
}
