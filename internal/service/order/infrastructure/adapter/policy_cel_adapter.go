// internal/service/order/infrastructure/adapter/policy_cel_adapter.go
package adapter

import (
	"context"
	"fmt"
	"time"

	"atlas/internal/service/order/domain"

	"github.com/google/cel-go/cel"
)

// DefaultPostPayCancelExpr 是支付后取消的默认策略：支付完成 30 分钟内允许取消。
const DefaultPostPayCancelExpr = "paid_minutes <= 30"

// CELCancelPolicy 是 port.CancelPolicy 的 CEL 实现。
// 策略以表达式形式配置，变量集合固定为订单上的几个事实字段，
// 表达式在构造时编译一次，之后的求值是纯内存操作。
type CELCancelPolicy struct {
	program cel.Program
	expr    string
}

// NewCELCancelPolicy 编译给定的策略表达式。expr 为空时使用默认表达式。
func NewCELCancelPolicy(expr string) (*CELCancelPolicy, error) {
	if expr == "" {
		expr = DefaultPostPayCancelExpr
	}

	env, err := cel.NewEnv(
		cel.Variable("order_no", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("paid_minutes", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid cancel policy expression %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("cancel policy expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build cel program: %w", err)
	}

	return &CELCancelPolicy{program: program, expr: expr}, nil
}

// AllowPostPayCancel 对订单事实求值策略表达式。
func (p *CELCancelPolicy) AllowPostPayCancel(ctx context.Context, order *domain.Order) (bool, error) {
	// 没有支付时间的已支付订单按窗口已过处理，避免策略意外放行
	paidMinutes := int64(1 << 30)
	if order.PaidAt != nil {
		paidMinutes = int64(time.Since(*order.PaidAt) / time.Minute)
	}

	out, _, err := p.program.Eval(map[string]interface{}{
		"order_no":     order.OrderNo,
		"amount":       order.Amount,
		"paid_minutes": paidMinutes,
	})
	if err != nil {
		return false, fmt.Errorf("cancel policy evaluation failed: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cancel policy %q returned non-bool value %T", p.expr, out.Value())
	}
	return allowed, nil
}
