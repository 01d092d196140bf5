package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
)

type settingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Current() *models.MarketSettings {
	return models.GetMarketSettings()
}

func (r *settingRepository) Reload(ctx context.Context) (*models.MarketSettings, error) {
	if err := models.LoadSettings(r.db.WithContext(ctx)); err != nil {
		return nil, err
	}
	return models.GetMarketSettings(), nil
}

func (r *settingRepository) Save(ctx context.Context, settings *models.MarketSettings) error {
	return models.SaveSettings(r.db.WithContext(ctx), settings)
}
