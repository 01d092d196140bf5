package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
)

func webhookBody(t *testing.T, id, typ string, payment *models.Payment, extra map[string]string) []byte {
	t.Helper()
	data := map[string]string{
		"payment_id": payment.ID,
		"order_id":   payment.OrderID,
		"stage":      string(payment.Stage),
	}
	for k, v := range extra {
		data[k] = v
	}
	body, err := json.Marshal(map[string]interface{}{
		"id":       id,
		"type":     typ,
		"provider": "Simulated",
		"data":     data,
	})
	require.NoError(t, err)
	return body
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	sig := SignWebhookPayload(payload, "secret")

	assert.True(t, VerifyWebhookSignature(payload, sig, "secret"))
	assert.True(t, VerifyWebhookSignature(payload, "sha256="+sig, "secret"))
	assert.False(t, VerifyWebhookSignature(payload, sig, "other"))
	assert.False(t, VerifyWebhookSignature([]byte(`{"id":"evt_2"}`), sig, "secret"))
	assert.False(t, VerifyWebhookSignature(payload, "not-hex", "secret"))
	assert.False(t, VerifyWebhookSignature(payload, "", "secret"))
	assert.False(t, VerifyWebhookSignature(payload, sig, ""))
}

func TestHandlePaymentWebhook_SucceededFinalizesOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, advance := env.acceptedOrder(t, 200)

	body := webhookBody(t, "evt_100", WebhookEventPaymentSucceeded, advance, map[string]string{
		"reference": "GW-778", "method": "card",
	})
	sig := "sha256=" + SignWebhookPayload(body, testSecret)

	outcome, err := env.svc.HandlePaymentWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, models.OrderStatusInProgress, outcome.Result.Order.Status)
	assert.Equal(t, "GW-778", outcome.Result.Payment.Metadata["gateway_reference"])
	assert.Equal(t, "simulated", outcome.Result.Payment.Metadata["gateway"])

	again, err := env.svc.HandlePaymentWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, outcome.EventID, again.EventID)
	assert.Len(t, env.earningsOf(t, order.ID), 1)

	var stored models.PaymentWebhookEvent
	require.NoError(t, env.db.First(&stored, outcome.EventID).Error)
	assert.Equal(t, "simulated", stored.Provider)
	assert.Equal(t, "evt_100", stored.ProviderEventID)
	assert.True(t, stored.SignatureValid)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.ProcessingError)
}

func TestHandlePaymentWebhook_InvalidSignature(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, advance := env.acceptedOrder(t, 200)

	body := webhookBody(t, "evt_bad", WebhookEventPaymentSucceeded, advance, nil)
	_, err := env.svc.HandlePaymentWebhook(ctx, body, SignWebhookPayload(body, "wrong"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	payment, err := env.svc.GetPayment(ctx, advance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)

	var stored models.PaymentWebhookEvent
	require.NoError(t, env.db.Where("provider_event_id = ?", "evt_bad").First(&stored).Error)
	assert.False(t, stored.SignatureValid)
	assert.Equal(t, ErrInvalidSignature.Error(), stored.ProcessingError)
}

func TestHandlePaymentWebhook_Failed(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, advance := env.acceptedOrder(t, 200)

	body := webhookBody(t, "evt_f1", WebhookEventPaymentFailed, advance, map[string]string{"reason": "insufficient funds"})
	outcome, err := env.svc.HandlePaymentWebhook(ctx, body, SignWebhookPayload(body, testSecret))
	require.NoError(t, err)
	require.NotNil(t, outcome.Payment)
	assert.Equal(t, models.PaymentStatusFailed, outcome.Payment.Status)
	assert.Equal(t, "insufficient funds", outcome.Payment.FailureReason)
}

func TestHandlePaymentWebhook_ProcessingErrorIsStored(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, advance := env.acceptedOrder(t, 200)

	advance.Stage = models.PaymentStageRemaining
	body := webhookBody(t, "evt_mismatch", WebhookEventPaymentSucceeded, advance, nil)
	_, err := env.svc.HandlePaymentWebhook(ctx, body, SignWebhookPayload(body, testSecret))
	assert.ErrorIs(t, err, ErrPaymentStageMismatch)

	var stored models.PaymentWebhookEvent
	require.NoError(t, env.db.Where("provider_event_id = ?", "evt_mismatch").First(&stored).Error)
	assert.NotEmpty(t, stored.ProcessingError)
}

func TestHandlePaymentWebhook_MalformedAndHashID(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.HandlePaymentWebhook(ctx, []byte("{"), "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	body := []byte(`{"type":"payment.refunded","data":{}}`)
	outcome, err := env.svc.HandlePaymentWebhook(ctx, body, SignWebhookPayload(body, testSecret))
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)

	var stored models.PaymentWebhookEvent
	require.NoError(t, env.db.First(&stored, outcome.EventID).Error)
	assert.Regexp(t, `^hash:[0-9a-f]{64}$`, stored.ProviderEventID)
	assert.Equal(t, "simulated", stored.Provider)
}

func TestHandlePaymentWebhook_ForgeryDoesNotShadowGenuineDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, advance := env.acceptedOrder(t, 200)

	body := webhookBody(t, "evt_race", WebhookEventPaymentSucceeded, advance, nil)
	_, err := env.svc.HandlePaymentWebhook(ctx, body, SignWebhookPayload(body, "attacker"))
	require.ErrorIs(t, err, ErrInvalidSignature)

	outcome, err := env.svc.HandlePaymentWebhook(ctx, body, SignWebhookPayload(body, testSecret))
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	require.NotNil(t, outcome.Result)
	assert.Len(t, env.earningsOf(t, order.ID), 1)

	// a later forgery leaves the processed event untouched
	_, err = env.svc.HandlePaymentWebhook(ctx, body, SignWebhookPayload(body, "attacker"))
	require.ErrorIs(t, err, ErrInvalidSignature)
	var stored models.PaymentWebhookEvent
	require.NoError(t, env.db.First(&stored, outcome.EventID).Error)
	assert.True(t, stored.SignatureValid)
	assert.Empty(t, stored.ProcessingError)
}

func TestHandlePaymentWebhook_StoreFailureIsRetriedOnRedelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, advance := env.acceptedOrder(t, 200)

	injected := errors.New("deadlock found when trying to get lock")
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:fail_earnings", func(tx *gorm.DB) {
		if tx.Statement.Table == "earnings" {
			_ = tx.AddError(injected)
		}
	}))

	body := webhookBody(t, "evt_retry", WebhookEventPaymentSucceeded, advance, map[string]string{"reference": "GW-9"})
	sig := SignWebhookPayload(body, testSecret)
	_, err := env.svc.HandlePaymentWebhook(ctx, body, sig)
	require.ErrorIs(t, err, injected)

	var stored models.PaymentWebhookEvent
	require.NoError(t, env.db.Where("provider_event_id = ?", "evt_retry").First(&stored).Error)
	assert.Nil(t, stored.ProcessedAt)
	assert.Contains(t, stored.ProcessingError, injected.Error())

	require.NoError(t, env.db.Callback().Create().Remove("test:fail_earnings"))
	outcome, err := env.svc.HandlePaymentWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, models.PaymentStatusPaid, outcome.Result.Payment.Status)
	assert.Equal(t, models.OrderStatusInProgress, outcome.Result.Order.Status)

	require.NoError(t, env.db.First(&stored, outcome.EventID).Error)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.ProcessingError)

	again, err := env.svc.HandlePaymentWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Len(t, env.earningsOf(t, order.ID), 1)
}

func TestHandlePaymentWebhook_RejectionIsFinal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, advance := env.acceptedOrder(t, 200)

	advance.Stage = models.PaymentStageRemaining
	body := webhookBody(t, "evt_final", WebhookEventPaymentSucceeded, advance, nil)
	sig := SignWebhookPayload(body, testSecret)
	_, err := env.svc.HandlePaymentWebhook(ctx, body, sig)
	require.ErrorIs(t, err, ErrPaymentStageMismatch)

	var stored models.PaymentWebhookEvent
	require.NoError(t, env.db.Where("provider_event_id = ?", "evt_final").First(&stored).Error)
	assert.NotNil(t, stored.ProcessedAt)

	again, err := env.svc.HandlePaymentWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
}
