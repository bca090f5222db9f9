// internal/service/order/domain/state_test.go
package domain_test

import (
	"errors"
	"testing"

	"atlas/internal/service/order/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionAllowedPairs(t *testing.T) {
	cases := []struct {
		name  string
		from  domain.Status
		event domain.Event
		want  domain.Status
	}{
		{"pay created order", domain.StatusCreated, domain.EventPay, domain.StatusPaid},
		{"cancel before payment", domain.StatusCreated, domain.EventCancel, domain.StatusCancelled},
		{"expire unpaid order", domain.StatusCreated, domain.EventExpire, domain.StatusCancelled},
		{"cancel after payment", domain.StatusPaid, domain.EventCancel, domain.StatusCancelled},
		{"refund paid order", domain.StatusPaid, domain.EventRefund, domain.StatusRefunded},
		{"complete stuck refund", domain.StatusRefunding, domain.EventRefund, domain.StatusRefunded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, domain.CanTransition(tc.from, tc.event))
			next, err := domain.Transition(tc.from, tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.want, next)
		})
	}
}

// 流转表必须是全量语义：除了白名单里的组合，其余一律拒绝，绝不静默跳过。
func TestTransitionTotality(t *testing.T) {
	allowed := map[domain.Status]map[domain.Event]bool{
		domain.StatusCreated:   {domain.EventPay: true, domain.EventCancel: true, domain.EventExpire: true},
		domain.StatusPaid:      {domain.EventCancel: true, domain.EventRefund: true},
		domain.StatusRefunding: {domain.EventRefund: true},
	}

	for _, status := range domain.AllStatuses() {
		for _, event := range domain.AllEvents() {
			want := allowed[status][event]
			assert.Equal(t, want, domain.CanTransition(status, event),
				"CanTransition(%s, %s)", status, event)

			next, err := domain.Transition(status, event)
			if want {
				assert.NoError(t, err)
				assert.NotEmpty(t, next)
			} else {
				var illegal *domain.IllegalTransitionError
				require.ErrorAs(t, err, &illegal, "Transition(%s, %s)", status, event)
				assert.Equal(t, status, illegal.From)
				assert.Equal(t, event, illegal.Event)
			}
		}
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	require.False(t, domain.CanTransition(domain.Status("SHIPPED"), domain.EventCancel))
	_, err := domain.Transition(domain.Status("SHIPPED"), domain.EventCancel)
	var illegal *domain.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, domain.StatusCancelled.IsTerminal())
	assert.True(t, domain.StatusRefunded.IsTerminal())
	assert.False(t, domain.StatusCreated.IsTerminal())
	assert.False(t, domain.StatusPaid.IsTerminal())
	assert.False(t, domain.StatusRefunding.IsTerminal())
	// 不在表里的状态不是"终态"，而是完全未知
	assert.False(t, domain.Status("SHIPPED").IsTerminal())
}
