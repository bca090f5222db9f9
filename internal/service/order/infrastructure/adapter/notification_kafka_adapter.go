// internal/service/order/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"atlas/internal/pkg/mq"
	"atlas/internal/service/order/domain"

	"github.com/segmentio/kafka-go"
)

// StatusKafkaNotifier 是 port.StatusNotifier 的 Kafka 实现。
// 消息按订单号作为 Key 写入，保证同一订单的事件有序。
type StatusKafkaNotifier struct {
	writer *kafka.Writer
}

func NewStatusKafkaNotifier(writer *kafka.Writer) *StatusKafkaNotifier {
	return &StatusKafkaNotifier{writer: writer}
}

// OrderStatusChanged 发布一条状态变更事件。
// mq.ProduceMessage 会自动注入追踪上下文。
func (a *StatusKafkaNotifier) OrderStatusChanged(ctx context.Context, evt *domain.OrderStatusChanged) error {
	eventBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal status change event: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(evt.OrderNo), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *StatusKafkaNotifier) Close() error {
	return a.writer.Close()
}
