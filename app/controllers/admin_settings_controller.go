package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

// settingsPatch lists the settings an admin may change. Nil fields are kept.
type settingsPatch struct {
	PlatformName      *string          `json:"platform_name"`
	CommissionRate    *decimal.Decimal `json:"commission_rate"`
	AdvanceRate       *decimal.Decimal `json:"advance_rate"`
	DefaultCurrency   *string          `json:"default_currency"`
	DeliveryGraceDays *int             `json:"delivery_grace_days"`
}

// HandleAdminGetSettings returns the marketplace settings in effect.
// ?reload=true re-reads the settings table first, which picks up rows an
// operator changed directly in the database.
func (mc *MarketController) HandleAdminGetSettings(c *fiber.Ctx) error {
	settings := mc.repos.Setting.Current()
	if c.QueryBool("reload", false) {
		reloaded, err := mc.repos.Setting.Reload(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		settings = reloaded
	}
	return c.JSON(settings.Clone())
}

// HandleAdminUpdateSettings changes the marketplace settings. New rates
// apply to every payment and proposal decided afterwards.
func (mc *MarketController) HandleAdminUpdateSettings(c *fiber.Ctx) error {
	var patch settingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid settings payload")
	}

	next := mc.repos.Setting.Current().Clone()
	if patch.PlatformName != nil {
		next.PlatformName = strings.TrimSpace(*patch.PlatformName)
	}
	if patch.CommissionRate != nil {
		next.CommissionRate = *patch.CommissionRate
	}
	if patch.AdvanceRate != nil {
		next.AdvanceRate = *patch.AdvanceRate
	}
	if patch.DefaultCurrency != nil {
		next.DefaultCurrency = strings.ToUpper(strings.TrimSpace(*patch.DefaultCurrency))
	}
	if patch.DeliveryGraceDays != nil {
		next.DeliveryGraceDays = *patch.DeliveryGraceDays
	}
	if err := next.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := mc.repos.Setting.Save(c.UserContext(), next); err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] Settings updated by %s: commission %s%%, advance %s%%, currency %s",
		usercontext.GetUserID(c), next.CommissionRate, next.AdvanceRate, next.DefaultCurrency)
	return c.JSON(next.Clone())
}
