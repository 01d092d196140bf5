package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer, decimal
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	settingPlatformName      = "platform_name"
	settingCommissionRate    = "commission_rate"
	settingAdvanceRate       = "advance_rate"
	settingDefaultCurrency   = "default_currency"
	settingDeliveryGraceDays = "delivery_grace_days"
)

// MarketSettings holds the business rules of the marketplace.
// Rates are percentages (20 means 20%).
type MarketSettings struct {
	PlatformName      string          `json:"platform_name" validate:"required,min=1,max=255"`
	CommissionRate    decimal.Decimal `json:"commission_rate"`
	AdvanceRate       decimal.Decimal `json:"advance_rate"`
	DefaultCurrency   string          `json:"default_currency" validate:"required,len=3,uppercase"`
	DeliveryGraceDays int             `json:"delivery_grace_days" validate:"gte=0,lte=365"`
	mu                sync.RWMutex
}

// Global settings instance
var (
	marketSettings *MarketSettings
	settingsMu     sync.RWMutex
)

// DefaultMarketSettings returns the built-in business rules.
func DefaultMarketSettings() *MarketSettings {
	return &MarketSettings{
		PlatformName:      "MarketFox",
		CommissionRate:    decimal.NewFromInt(20),
		AdvanceRate:       decimal.NewFromInt(30),
		DefaultCurrency:   "USD",
		DeliveryGraceDays: 0,
	}
}

// GetMarketSettings returns the current settings, falling back to defaults
// when LoadSettings has not run yet.
func GetMarketSettings() *MarketSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if marketSettings == nil {
		return DefaultMarketSettings()
	}
	return marketSettings
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	loaded := DefaultMarketSettings()

	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	for _, setting := range settings {
		switch setting.Key {
		case settingPlatformName:
			loaded.PlatformName = setting.Value
		case settingCommissionRate:
			if v, err := decimal.NewFromString(setting.Value); err == nil {
				loaded.CommissionRate = v
			}
		case settingAdvanceRate:
			if v, err := decimal.NewFromString(setting.Value); err == nil {
				loaded.AdvanceRate = v
			}
		case settingDefaultCurrency:
			loaded.DefaultCurrency = strings.ToUpper(strings.TrimSpace(setting.Value))
		case settingDeliveryGraceDays:
			var days int
			if _, err := fmt.Sscanf(setting.Value, "%d", &days); err == nil {
				loaded.DeliveryGraceDays = days
			}
		}
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid stored settings: %w", err)
	}
	marketSettings = loaded
	return nil
}

// SaveSettings saves current settings to database
func SaveSettings(db *gorm.DB, settings *MarketSettings) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	settingsMap := map[string]string{
		settingPlatformName:      settings.PlatformName,
		settingCommissionRate:    settings.CommissionRate.String(),
		settingAdvanceRate:       settings.AdvanceRate.String(),
		settingDefaultCurrency:   settings.DefaultCurrency,
		settingDeliveryGraceDays: fmt.Sprintf("%d", settings.DeliveryGraceDays),
	}

	for key, value := range settingsMap {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)

		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				setting = Setting{
					Key:   key,
					Value: value,
					Type:  getSettingType(key),
				}
				if err := db.Create(&setting).Error; err != nil {
					return fmt.Errorf("failed to create setting %s: %w", key, err)
				}
			} else {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
		} else {
			setting.Value = value
			if err := db.Save(&setting).Error; err != nil {
				return fmt.Errorf("failed to update setting %s: %w", key, err)
			}
		}
	}

	marketSettings = settings
	return nil
}

// getSettingType returns the type of a setting based on its key
func getSettingType(key string) string {
	switch key {
	case settingCommissionRate, settingAdvanceRate:
		return "decimal"
	case settingDeliveryGraceDays:
		return "integer"
	default:
		return "string"
	}
}

// Validate validates the settings
func (s *MarketSettings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	hundred := decimal.NewFromInt(100)
	if s.CommissionRate.IsNegative() || s.CommissionRate.GreaterThan(hundred) {
		return fmt.Errorf("commission_rate must be between 0 and 100, got %s", s.CommissionRate)
	}
	if s.AdvanceRate.IsNegative() || s.AdvanceRate.GreaterThan(hundred) {
		return fmt.Errorf("advance_rate must be between 0 and 100, got %s", s.AdvanceRate)
	}
	return nil
}

// Clone returns an unshared copy of the settings.
func (s *MarketSettings) Clone() *MarketSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &MarketSettings{
		PlatformName:      s.PlatformName,
		CommissionRate:    s.CommissionRate,
		AdvanceRate:       s.AdvanceRate,
		DefaultCurrency:   s.DefaultCurrency,
		DeliveryGraceDays: s.DeliveryGraceDays,
	}
}

// ToJSON converts settings to JSON
func (s *MarketSettings) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}

// GetCommissionRate returns the platform commission percentage.
func (s *MarketSettings) GetCommissionRate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CommissionRate
}

// GetAdvanceRate returns the advance percentage charged before work starts.
func (s *MarketSettings) GetAdvanceRate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AdvanceRate
}

// GetDefaultCurrency returns the currency used when a caller supplies none.
func (s *MarketSettings) GetDefaultCurrency() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DefaultCurrency
}
