package marketplace

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
)

func TestFullPaymentScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.createOrder(t, 100)

	payment, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStageFull, payment.Stage)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.True(t, dec("100").Equal(payment.Amount))

	result, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, payment.ID,
		map[string]interface{}{"gateway_reference": "SIM-ABC"}, models.PaymentStageFull)
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)

	assert.Equal(t, models.PaymentStatusPaid, result.Payment.Status)
	assert.NotNil(t, result.Payment.PaidAt)
	assert.Equal(t, "SIM-ABC", result.Payment.Metadata["gateway_reference"])

	earnings := env.earningsOf(t, order.ID)
	require.Len(t, earnings, 1)
	assert.True(t, dec("20").Equal(earnings[0].AdminShare))
	assert.True(t, dec("80").Equal(earnings[0].VendorShare))
	assert.Equal(t, models.EarningStatusAvailable, earnings[0].Status)

	assert.Equal(t, models.OrderStatusInProgress, result.Order.Status)
	assert.Equal(t, models.OrderPaymentPaid, result.Order.PaymentStatus)
	assert.True(t, result.Order.CommissionCalculated)

	kinds := map[string]bool{}
	for _, n := range env.notificationsFor(t, testVendor) {
		kinds[n.Type] = true
	}
	assert.True(t, kinds[models.NotificationPaymentInitiated])
	assert.True(t, kinds[models.NotificationPaymentReceived])

	var clientSuccess bool
	for _, n := range env.notificationsFor(t, testClient) {
		if n.Type == models.NotificationPaymentSuccess {
			clientSuccess = true
		}
	}
	assert.True(t, clientSuccess)
}

func TestStagedPaymentScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, advance := env.acceptedOrder(t, 200)
	assert.True(t, dec("60").Equal(order.AdvanceAmount))
	assert.True(t, dec("140").Equal(order.RemainingAmount))

	result, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, advance.ID, nil, models.PaymentStageAdvance)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusInProgress, result.Order.Status)
	assert.True(t, result.Order.PaidAdvance)
	assert.Equal(t, models.PaymentPhaseInProgress, result.Order.PaymentPhase)
	assert.Equal(t, models.OrderPaymentAdvancePaid, result.Order.PaymentStatus)

	delivered, err := env.svc.DeliverOrder(ctx, order.ID, DeliveryInput{Message: "done"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)

	remaining, err := env.svc.CreateRemainingPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStageRemaining, remaining.Stage)
	assert.True(t, dec("140").Equal(remaining.Amount))

	result, err = env.svc.ProcessSuccessfulPayment(ctx, order.ID, remaining.ID, nil, models.PaymentStageRemaining)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
	assert.True(t, result.Order.PaidRemaining)
	assert.Equal(t, models.PaymentPhasePaidFull, result.Order.PaymentPhase)
	assert.Equal(t, models.OrderPaymentPaid, result.Order.PaymentStatus)
	assert.NotNil(t, result.Order.CompletedAt)

	earnings := env.earningsOf(t, order.ID)
	require.Len(t, earnings, 2)
	adminTotal := decimal.Zero
	for _, e := range earnings {
		adminTotal = adminTotal.Add(e.AdminShare)
		assert.True(t, e.TotalAmount.Equal(e.AdminShare.Add(e.VendorShare)))
	}
	assert.True(t, dec("40").Equal(adminTotal), "admin total %s", adminTotal)

	summary, err := env.svc.EarningsSummary(ctx, testVendor)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.True(t, dec("160").Equal(summary.Available))
	assert.True(t, dec("40").Equal(summary.TotalCommission))

	kinds := map[string]bool{}
	for _, n := range env.notificationsFor(t, testVendor) {
		kinds[n.Type] = true
	}
	assert.True(t, kinds[models.NotificationAdvancePaid])
	assert.True(t, kinds[models.NotificationPaymentCompleted])
}

func TestCommissionSplitHoldsForOddAmounts(t *testing.T) {
	for _, total := range []string{"0.01", "0.05", "9.99", "33.33", "1234.57"} {
		t.Run(total, func(t *testing.T) {
			env := newTestEnv(t, nil)
			ctx := context.Background()
			order, err := env.svc.CreateOrder(ctx, CreateOrderInput{
				ClientID: testClient, VendorID: testVendor, ServiceID: "svc", TotalAmount: dec(total),
			})
			require.NoError(t, err)
			payment, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID})
			require.NoError(t, err)
			result, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, payment.ID, nil, "")
			require.NoError(t, err)

			e := result.Earning
			amount := dec(total)
			assert.True(t, amount.Equal(e.AdminShare.Add(e.VendorShare)))
			assert.True(t, amount.Mul(dec("0.2")).Round(2).Equal(e.AdminShare))
		})
	}
}

func TestCreateRemainingPayment_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("advance not paid", func(t *testing.T) {
		env := newTestEnv(t, nil)
		order, _ := env.acceptedOrder(t, 200)
		_, err := env.svc.CreateRemainingPayment(ctx, order.ID)
		assert.ErrorIs(t, err, ErrAdvanceNotPaid)
	})

	t.Run("remaining already paid", func(t *testing.T) {
		env := newTestEnv(t, nil)
		order := env.deliveredOrder(t, 200)
		require.NoError(t, env.repos.Order.Update(ctx, order.ID, &models.Order{PaidRemaining: true}, "paid_remaining"))
		_, err := env.svc.CreateRemainingPayment(ctx, order.ID)
		assert.ErrorIs(t, err, ErrRemainingAlreadyPaid)
	})

	t.Run("not delivered", func(t *testing.T) {
		env := newTestEnv(t, nil)
		order, advance := env.acceptedOrder(t, 200)
		_, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, advance.ID, nil, models.PaymentStageAdvance)
		require.NoError(t, err)
		_, err = env.svc.CreateRemainingPayment(ctx, order.ID)
		assert.ErrorIs(t, err, ErrOrderNotDelivered)
	})

	t.Run("delivered succeeds once", func(t *testing.T) {
		env := newTestEnv(t, nil)
		order := env.deliveredOrder(t, 200)
		first, err := env.svc.CreateRemainingPayment(ctx, order.ID)
		require.NoError(t, err)
		again, err := env.svc.CreateRemainingPayment(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID, "pending remaining payment is reused")
	})

	t.Run("missing order", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := env.svc.CreateRemainingPayment(ctx, "missing")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestGetPaymentByOrderID_StageFilterIsExact(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.deliveredOrder(t, 200)

	before, err := env.svc.GetPaymentByOrderID(ctx, order.ID, models.PaymentStageAdvance)
	require.NoError(t, err)

	_, err = env.svc.GetPaymentByOrderID(ctx, order.ID, models.PaymentStageRemaining)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	remaining, err := env.svc.CreateRemainingPayment(ctx, order.ID)
	require.NoError(t, err)

	after, err := env.svc.GetPaymentByOrderID(ctx, order.ID, models.PaymentStageAdvance)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)

	byRemaining, err := env.svc.GetPaymentByOrderID(ctx, order.ID, models.PaymentStageRemaining)
	require.NoError(t, err)
	assert.Equal(t, remaining.ID, byRemaining.ID)
}

func TestProcessSuccessfulPayment_IsAtomic(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.createOrder(t, 100)
	payment, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID})
	require.NoError(t, err)

	injected := errors.New("injected earnings write failure")
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:fail_earnings", func(tx *gorm.DB) {
		if tx.Statement.Table == "earnings" {
			_ = tx.AddError(injected)
		}
	}))

	_, err = env.svc.ProcessSuccessfulPayment(ctx, order.ID, payment.ID, nil, models.PaymentStageFull)
	require.Error(t, err)
	assert.ErrorIs(t, err, injected)

	storedPayment, err := env.svc.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, storedPayment.Status)
	assert.Nil(t, storedPayment.PaidAt)

	storedOrder, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, storedOrder.Status)
	assert.Equal(t, models.OrderPaymentUnpaid, storedOrder.PaymentStatus)
	assert.Empty(t, env.earningsOf(t, order.ID))

	_, finalized := env.seen.last(events.PaymentFinalized)
	assert.False(t, finalized, "no fan-out for a rolled back payment")

	require.NoError(t, env.db.Callback().Create().Remove("test:fail_earnings"))
	result, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, payment.ID, nil, models.PaymentStageFull)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, result.Payment.Status)
}

func TestProcessSuccessfulPayment_SecondCallIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, advance := env.acceptedOrder(t, 200)

	first, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, advance.ID, nil, models.PaymentStageAdvance)
	require.NoError(t, err)
	second, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, advance.ID, nil, models.PaymentStageAdvance)
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	require.NotNil(t, second.Earning)
	assert.Equal(t, first.Earning.ID, second.Earning.ID)
	assert.Len(t, env.earningsOf(t, order.ID), 1)

	var finalized int
	for _, typ := range env.seen.types() {
		if typ == events.PaymentFinalized {
			finalized++
		}
	}
	assert.Equal(t, 1, finalized)
}

func TestProcessSuccessfulPayment_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, advance := env.acceptedOrder(t, 200)

	_, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, advance.ID, nil, models.PaymentStageRemaining)
	assert.ErrorIs(t, err, ErrPaymentStageMismatch)

	_, err = env.svc.ProcessSuccessfulPayment(ctx, "other-order", advance.ID, nil, "")
	assert.ErrorIs(t, err, ErrPaymentStageMismatch)

	_, err = env.svc.ProcessSuccessfulPayment(ctx, order.ID, "missing", nil, "")
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = env.svc.RecordPaymentFailure(ctx, advance.ID, "card expired")
	require.NoError(t, err)
	_, err = env.svc.ProcessSuccessfulPayment(ctx, order.ID, advance.ID, nil, models.PaymentStageAdvance)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCreatePayment_ReusesPendingStage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.createOrder(t, 75)

	first, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID, PaymentMethod: "card"})
	require.NoError(t, err)
	second, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID, Stage: "deposit"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: "missing"})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = env.svc.CancelOrder(ctx, order.ID, testClient, "")
	require.NoError(t, err)
	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPayStage_SimulatedGateway(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, advance := env.acceptedOrder(t, 200)

	_, err := env.svc.PayStage(ctx, order.ID, models.PaymentStageAdvance, DeclinedMethod)
	assert.ErrorIs(t, err, ErrPaymentDeclined)

	failed, err := env.svc.GetPayment(ctx, advance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)

	var failureNotice bool
	for _, n := range env.notificationsFor(t, testClient) {
		if n.Type == models.NotificationPaymentFailed {
			failureNotice = true
		}
	}
	assert.True(t, failureNotice)

	result, err := env.svc.PayStage(ctx, order.ID, models.PaymentStageAdvance, "card")
	require.NoError(t, err)
	assert.Equal(t, advance.ID, result.Payment.ID, "failed attempt is retried, not duplicated")
	assert.Equal(t, models.PaymentStatusPaid, result.Payment.Status)
	assert.Equal(t, "card", result.Payment.PaymentMethod)
	assert.Equal(t, "simulated", result.Payment.Metadata["gateway"])
	ref, _ := result.Payment.Metadata["gateway_reference"].(string)
	assert.True(t, strings.HasPrefix(ref, "SIM-"), ref)
	assert.Len(t, ref, 16)
	assert.Empty(t, result.Payment.FailureReason)

	_, err = env.svc.PayStage(ctx, order.ID, models.PaymentStageAdvance, "card")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.svc.PayStage(ctx, order.ID, models.PaymentStageRemaining, "card")
	assert.ErrorIs(t, err, ErrOrderNotDelivered)
}

func TestPayStage_RemainingAfterAcceptedDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.deliveredOrder(t, 200)

	_, err := env.svc.AcceptDelivery(ctx, order.ID)
	require.NoError(t, err)

	result, err := env.svc.PayStage(ctx, order.ID, models.PaymentStageRemaining, "card")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
	assert.True(t, result.Order.PaidRemaining)

	payments, err := env.svc.ListOrderPayments(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

type brokenGateway struct{}

func (brokenGateway) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, errors.New("gateway timeout")
}

func TestPayStage_GatewayErrorIsReportedAsDecline(t *testing.T) {
	env := newTestEnv(t, nil, WithGateway(brokenGateway{}))
	ctx := context.Background()
	order := env.createOrder(t, 40)

	_, err := env.svc.PayStage(ctx, order.ID, models.PaymentStageFull, "card")
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Contains(t, err.Error(), "gateway timeout")

	payment, err := env.svc.GetPaymentByOrderID(ctx, order.ID, models.PaymentStageFull)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)
}

func TestSimulatedGateway(t *testing.T) {
	g := NewSimulatedGateway()
	res, err := g.Charge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(10), Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, "simulated", res.Gateway)
	assert.Regexp(t, `^SIM-[0-9A-F]{12}$`, res.Reference)

	_, err = g.Charge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(10), Method: "DECLINED_CARD"})
	assert.ErrorIs(t, err, ErrPaymentDeclined)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Charge(ctx, ChargeRequest{Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListingsAndSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.createOrder(t, 50)
	_, err := env.svc.PayStage(ctx, order.ID, models.PaymentStageFull, "card")
	require.NoError(t, err)

	payments, err := env.svc.GetClientPayments(ctx, testClient, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusPaid, payments[0].Status)

	_, err = env.svc.GetClientPayments(ctx, "", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	earnings, err := env.svc.GetEarnings(ctx, repository.EarningFilter{VendorID: testVendor})
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.True(t, dec("40").Equal(earnings[0].VendorShare))

	summary, err := env.svc.EarningsSummary(ctx, testVendor)
	require.NoError(t, err)
	assert.True(t, dec("40").Equal(summary.Available))
	assert.True(t, summary.Withdrawn.IsZero())
	assert.True(t, dec("10").Equal(summary.TotalCommission))

	empty, err := env.svc.EarningsSummary(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)

	_, err = env.svc.EarningsSummary(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFullPayment_SettlesOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.createOrder(t, 100)

	payment, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID})
	require.NoError(t, err)
	_, err = env.svc.ProcessSuccessfulPayment(ctx, order.ID, payment.ID, nil, models.PaymentStageFull)
	require.NoError(t, err)

	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.svc.PayStage(ctx, order.ID, models.PaymentStageFull, "card")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// a second pending row written around the service must not settle either
	stray := &models.Payment{
		OrderID: order.ID, ClientID: testClient, VendorID: testVendor,
		Amount: dec("100"), Stage: models.PaymentStageFull, Status: models.PaymentStatusPending,
	}
	require.NoError(t, env.repos.Payment.Create(ctx, stray))
	_, err = env.svc.ProcessSuccessfulPayment(ctx, order.ID, stray.ID, nil, models.PaymentStageFull)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := env.svc.GetPayment(ctx, stray.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)

	earnings := env.earningsOf(t, order.ID)
	require.Len(t, earnings, 1)
	assert.True(t, dec("100").Equal(earnings[0].TotalAmount))
}

func TestCreatePayment_StageMustMatchOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	staged, _ := env.acceptedOrder(t, 200)
	_, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: staged.ID, Stage: models.PaymentStageFull})
	assert.ErrorIs(t, err, ErrPaymentStageMismatch)

	direct := env.createOrder(t, 100)
	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: direct.ID, Stage: models.PaymentStageAdvance})
	assert.ErrorIs(t, err, ErrPaymentStageMismatch)
	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: direct.ID, Stage: models.PaymentStageRemaining})
	assert.ErrorIs(t, err, ErrPaymentStageMismatch)
}

func TestProcessSuccessfulPayment_FullStageOnStagedOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order, _ := env.acceptedOrder(t, 200)

	full := &models.Payment{
		OrderID: order.ID, ClientID: testClient, VendorID: testVendor,
		Amount: dec("200"), Stage: models.PaymentStageFull, Status: models.PaymentStatusPending,
	}
	require.NoError(t, env.repos.Payment.Create(ctx, full))

	_, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, full.ID, nil, models.PaymentStageFull)
	assert.ErrorIs(t, err, ErrPaymentStageMismatch)

	stored, err := env.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentUnpaid, stored.PaymentStatus)
	assert.Equal(t, models.OrderStatusAwaitingPayment, stored.Status)
	assert.Empty(t, env.earningsOf(t, order.ID))
}

func TestCreatePayment_AmountMustMatchStage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.createOrder(t, 100)

	_, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID, Amount: dec("0.01")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID, Amount: dec("250")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	payment, err := env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID, Amount: dec("100.00")})
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(payment.Amount))

	staged, advance := env.acceptedOrder(t, 200)
	_, err = env.svc.ProcessSuccessfulPayment(ctx, staged.ID, advance.ID, nil, models.PaymentStageAdvance)
	require.NoError(t, err)
	_, err = env.svc.DeliverOrder(ctx, staged.ID, DeliveryInput{Message: "done"})
	require.NoError(t, err)
	_, err = env.svc.CreatePayment(ctx, CreatePaymentInput{OrderID: staged.ID, Stage: models.PaymentStageRemaining, Amount: dec("1")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateRemainingPayment_OnlyWhileDelivered(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	order := env.deliveredOrder(t, 200)

	accepted, err := env.svc.AcceptDelivery(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusAwaitingRemainingPayment, accepted.Status)

	_, err = env.svc.CreateRemainingPayment(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotDelivered)

	remaining, err := env.svc.GetPaymentByOrderID(ctx, order.ID, models.PaymentStageRemaining)
	require.NoError(t, err)
	result, err := env.svc.ProcessSuccessfulPayment(ctx, order.ID, remaining.ID, nil, models.PaymentStageRemaining)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
}
