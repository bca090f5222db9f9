// internal/service/order/domain/state.go
package domain

// Status 定义了订单的生命周期状态。
type Status string

const (
	StatusCreated   Status = "CREATED"   // 订单已创建，等待支付
	StatusPaid      Status = "PAID"      // 已支付
	StatusCancelled Status = "CANCELLED" // 已取消（用户主动、管理员操作或支付超时）
	StatusRefunding Status = "REFUNDING" // 退款处理中（网关异步场景下的中间态）
	StatusRefunded  Status = "REFUNDED"  // 已退款
)

// Event 是驱动状态流转的动作。事件是纯输入，不落库。
type Event string

const (
	EventPay    Event = "PAY"
	EventCancel Event = "CANCEL"
	EventRefund Event = "REFUND"
	EventExpire Event = "EXPIRE" // 支付窗口超时，由清理任务触发
)

// EntitlementStatus 是订单关联内容权益的状态，约束比订单状态机宽松，
// 不走同一张流转表。
type EntitlementStatus string

const (
	EntitlementActive  EntitlementStatus = "ACTIVE"
	EntitlementRevoked EntitlementStatus = "REVOKED"
	EntitlementExpired EntitlementStatus = "EXPIRED"
)

// transitions 是显式的状态流转表。表必须是全量语义：
// 不在表里的 (状态, 事件) 组合一律拒绝，绝不静默跳过。
var transitions = map[Status]map[Event]Status{
	StatusCreated: {
		EventPay:    StatusPaid,
		EventCancel: StatusCancelled,
		EventExpire: StatusCancelled,
	},
	StatusPaid: {
		// 支付后取消还要额外通过 CancelPolicy 的业务校验，表只表达"可能合法"
		EventCancel: StatusCancelled,
		EventRefund: StatusRefunded,
	},
	StatusRefunding: {
		// 卡在处理中的退款允许补推到终态
		EventRefund: StatusRefunded,
	},
	// CANCELLED / REFUNDED 是终态，没有出边
	StatusCancelled: {},
	StatusRefunded:  {},
}

// CanTransition 判断 (当前状态, 事件) 是否在流转表中。纯函数，无 I/O。
func CanTransition(current Status, event Event) bool {
	allowed, ok := transitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[event]
	return ok
}

// Transition 返回事件触发后的下一个状态；非法流转返回 *IllegalTransitionError。
func Transition(current Status, event Event) (Status, error) {
	if allowed, ok := transitions[current]; ok {
		if next, ok := allowed[event]; ok {
			return next, nil
		}
	}
	return "", &IllegalTransitionError{From: current, Event: event}
}

// IsTerminal 判断一个状态是否没有任何出边。
func (s Status) IsTerminal() bool {
	allowed, ok := transitions[s]
	return ok && len(allowed) == 0
}

// AllStatuses 返回状态机管理的全部订单状态。
func AllStatuses() []Status {
	return []Status{StatusCreated, StatusPaid, StatusCancelled, StatusRefunding, StatusRefunded}
}

// AllEvents 返回全部事件。
func AllEvents() []Event {
	return []Event{EventPay, EventCancel, EventRefund, EventExpire}
}
