package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errForbidden, fiber.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: title is required", marketplace.ErrInvalidInput), fiber.StatusBadRequest, "invalid_input"},
		{marketplace.ErrOrderNotFound, fiber.StatusNotFound, "not_found"},
		{marketplace.ErrPaymentNotFound, fiber.StatusNotFound, "not_found"},
		{gorm.ErrRecordNotFound, fiber.StatusNotFound, "not_found"},
		{&marketplace.TransitionError{Entity: "order", From: "completed", To: "pending"}, fiber.StatusConflict, "conflict"},
		{marketplace.ErrProposalClosed, fiber.StatusConflict, "conflict"},
		{marketplace.ErrAdvanceNotPaid, fiber.StatusConflict, "conflict"},
		{marketplace.ErrOrderNotDelivered, fiber.StatusConflict, "conflict"},
		{fmt.Errorf("%w: card expired", marketplace.ErrPaymentDeclined), fiber.StatusPaymentRequired, "payment_declined"},
		{marketplace.ErrInvalidSignature, fiber.StatusUnauthorized, "invalid_signature"},
		{errors.New("connection reset"), fiber.StatusInternalServerError, "internal_server_error"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return respondError(c, errors.New("dial tcp 10.0.0.3:3306: refused"))
	})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return respondError(c, marketplace.ErrProposalClosed)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "10.0.0.3")

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/conflict", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.JSONEq(t, `{"error":"conflict","message":"proposal is no longer open"}`, string(body))
}

func TestAuthorize(t *testing.T) {
	client := usercontext.UserContext{UserID: "c1", Role: usercontext.RoleClient, IsLoggedIn: true}
	vendor := usercontext.UserContext{UserID: "v1", Role: usercontext.RoleVendor, IsLoggedIn: true}
	admin := usercontext.UserContext{UserID: "root", Role: usercontext.RoleAdmin, IsLoggedIn: true, IsAdmin: true}
	stranger := usercontext.UserContext{UserID: "x", Role: usercontext.RoleClient, IsLoggedIn: true}

	assert.NoError(t, authorize(client, "c1", "v1"))
	assert.NoError(t, authorize(vendor, "c1", "v1"))
	assert.ErrorIs(t, authorize(stranger, "c1", "v1"), errForbidden)

	assert.NoError(t, authorize(client, "c1", "v1", partyClient))
	assert.ErrorIs(t, authorize(vendor, "c1", "v1", partyClient), errForbidden)
	assert.ErrorIs(t, authorize(client, "c1", "v1", partyVendor), errForbidden)
	assert.NoError(t, authorize(admin, "c1", "v1", partyVendor))
}

func TestGetClientIP(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetClientIP(c)) })

	call := func(headers map[string]string) string {
		req := httptest.NewRequest(fiber.MethodGet, "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	assert.Equal(t, "203.0.113.7", call(map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "10.0.0.1"}))
	assert.Equal(t, "198.51.100.2", call(map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}))
	assert.NotEmpty(t, call(nil))
}
