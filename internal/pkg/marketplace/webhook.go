package marketplace

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MarketFox/app/models"
)

const (
	WebhookEventPaymentSucceeded = "payment.succeeded"
	WebhookEventPaymentFailed    = "payment.failed"

	defaultWebhookProvider = "simulated"
)

// ErrInvalidSignature is returned for webhooks whose signature does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// PaymentWebhook is the gateway notification body.
type PaymentWebhook struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Type     string `json:"type"`
	Data     struct {
		PaymentID string              `json:"payment_id"`
		OrderID   string              `json:"order_id"`
		Stage     models.PaymentStage `json:"stage"`
		Reference string              `json:"reference"`
		Method    string              `json:"method"`
		Reason    string              `json:"reason"`
	} `json:"data"`
}

// WebhookOutcome reports what a webhook delivery did.
type WebhookOutcome struct {
	EventID   uint            `json:"event_id"`
	Duplicate bool            `json:"duplicate"`
	Result    *FinalizeResult `json:"result,omitempty"`
	Payment   *models.Payment `json:"payment,omitempty"`
}

// VerifyWebhookSignature checks a hex HMAC-SHA256 of payload, optionally
// prefixed with "sha256=".
func VerifyWebhookSignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimPrefix(strings.TrimSpace(signatureHeader), "sha256=")
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	return verifyHMAC(payload, decoded, []byte(secret), sha256.New)
}

// SignWebhookPayload returns the signature VerifyWebhookSignature accepts.
func SignWebhookPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}

// RecordWebhookEvent persists a webhook payload once per provider event id.
// It reports whether the event is new.
func (s *Service) RecordWebhookEvent(ctx context.Context, provider, eventID, eventType, paymentID string, payload []byte, signatureValid bool) (bool, *models.PaymentWebhookEvent, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = defaultWebhookProvider
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	event := &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(eventType),
		PaymentID:       paymentID,
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	}
	return s.repos.WebhookEvent.CreateIfNotExists(ctx, event)
}

// HandlePaymentWebhook verifies, deduplicates and applies a gateway
// notification. A redelivered event is acknowledged without side effects.
func (s *Service) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	var hook PaymentWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, invalidInput("malformed webhook: %v", err)
	}
	valid := VerifyWebhookSignature(payload, signature, s.webhookSecret)

	created, stored, err := s.RecordWebhookEvent(ctx, hook.Provider, hook.ID, hook.Type, hook.Data.PaymentID, payload, valid)
	if err != nil {
		return nil, fmt.Errorf("record webhook: %w", err)
	}
	outcome := &WebhookOutcome{EventID: stored.ID}
	if !valid {
		if created {
			s.markWebhookProcessed(ctx, stored.ID, ErrInvalidSignature)
		}
		return nil, ErrInvalidSignature
	}
	if !created && !stored.SignatureValid {
		// a rejected forgery must not shadow the genuine delivery
		created, err = s.repos.WebhookEvent.ClaimUnverified(ctx, stored.ID, string(payload))
		if err != nil {
			return nil, fmt.Errorf("claim webhook: %w", err)
		}
	}
	if !created && stored.SignatureValid && stored.ProcessedAt == nil && stored.ProcessingError != "" {
		created, err = s.repos.WebhookEvent.ClaimRetry(ctx, stored.ID)
		if err != nil {
			return nil, fmt.Errorf("claim webhook retry: %w", err)
		}
		if created {
			log.Infof("[Marketplace] Retrying webhook %s/%s after: %s", stored.Provider, stored.ProviderEventID, stored.ProcessingError)
		}
	}
	if !created {
		log.Infof("[Marketplace] Webhook %s/%s already received", stored.Provider, stored.ProviderEventID)
		outcome.Duplicate = true
		return outcome, nil
	}

	var procErr error
	switch hook.Type {
	case WebhookEventPaymentSucceeded:
		outcome.Result, procErr = s.ProcessSuccessfulPayment(ctx, hook.Data.OrderID, hook.Data.PaymentID, map[string]interface{}{
			"gateway":           stored.Provider,
			"gateway_reference": hook.Data.Reference,
			"payment_method":    hook.Data.Method,
			"webhook_event_id":  stored.ProviderEventID,
		}, hook.Data.Stage)
	case WebhookEventPaymentFailed:
		reason := hook.Data.Reason
		if reason == "" {
			reason = "declined by gateway"
		}
		outcome.Payment, procErr = s.RecordPaymentFailure(ctx, hook.Data.PaymentID, reason)
	default:
		log.Debugf("[Marketplace] Ignoring webhook type %q", hook.Type)
	}

	if procErr != nil && !isPreconditionError(procErr) {
		// left unprocessed so the gateway's redelivery applies it
		log.Warnf("[Marketplace] Webhook %s/%s failed, awaiting redelivery: %v", stored.Provider, stored.ProviderEventID, procErr)
		if err := s.repos.WebhookEvent.MarkRetryable(ctx, stored.ID, procErr.Error()); err != nil {
			log.Errorf("[Marketplace] Failed to store error of webhook event %d: %v", stored.ID, err)
		}
		return nil, procErr
	}
	s.markWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		return nil, procErr
	}
	return outcome, nil
}

// isPreconditionError reports whether err is a workflow rejection that a
// redelivery of the same event would hit again.
func isPreconditionError(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidInput,
		ErrInvalidTransition,
		ErrPaymentStageMismatch,
		ErrPaymentNotFound,
		ErrOrderNotFound,
		ErrAdvanceNotPaid,
		ErrRemainingAlreadyPaid,
		ErrOrderNotDelivered,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (s *Service) markWebhookProcessed(ctx context.Context, id uint, processingErr error) {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	if err := s.repos.WebhookEvent.MarkProcessed(ctx, id, errMsg); err != nil {
		log.Errorf("[Marketplace] Failed to mark webhook event %d processed: %v", id, err)
	}
}
