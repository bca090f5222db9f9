// internal/service/order/infrastructure/adapter/policy_cel_adapter_test.go
package adapter

import (
	"context"
	"testing"
	"time"

	"atlas/internal/service/order/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidOrderAgo(ago time.Duration) *domain.Order {
	paidAt := time.Now().Add(-ago)
	return &domain.Order{
		OrderNo: "ORD001",
		Amount:  99.90,
		Status:  domain.StatusPaid,
		Version: 1,
		PaidAt:  &paidAt,
	}
}

func TestDefaultPolicyWithinWindow(t *testing.T) {
	p, err := NewCELCancelPolicy("")
	require.NoError(t, err)

	allowed, err := p.AllowPostPayCancel(context.Background(), paidOrderAgo(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDefaultPolicyAfterWindow(t *testing.T) {
	p, err := NewCELCancelPolicy("")
	require.NoError(t, err)

	allowed, err := p.AllowPostPayCancel(context.Background(), paidOrderAgo(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, allowed)
}

// 已支付但没有支付时间的订单按窗口已过处理。
func TestPolicyDeniesMissingPaidAt(t *testing.T) {
	p, err := NewCELCancelPolicy("")
	require.NoError(t, err)

	order := paidOrderAgo(time.Minute)
	order.PaidAt = nil
	allowed, err := p.AllowPostPayCancel(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestPolicyCustomExpression(t *testing.T) {
	p, err := NewCELCancelPolicy(`amount < 50.0 && paid_minutes <= 60`)
	require.NoError(t, err)

	order := paidOrderAgo(10 * time.Minute)
	order.Amount = 20
	allowed, err := p.AllowPostPayCancel(context.Background(), order)
	require.NoError(t, err)
	assert.True(t, allowed)

	order.Amount = 200
	allowed, err = p.AllowPostPayCancel(context.Background(), order)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestPolicyRejectsInvalidExpression(t *testing.T) {
	_, err := NewCELCancelPolicy("paid_minutes <=")
	require.Error(t, err)
}

func TestPolicyRejectsNonBoolExpression(t *testing.T) {
	_, err := NewCELCancelPolicy("paid_minutes + 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must evaluate to bool")
}
