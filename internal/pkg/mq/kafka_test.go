// internal/pkg/mq/kafka_test.go
package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
)

func TestKafkaHeaderCarrierSetAndGet(t *testing.T) {
	carrier := KafkaHeaderCarrier{}

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("missing"))

	// 同名 header 覆盖，不能重复追加
	carrier.Set("traceparent", "00-abc-def-02")
	assert.Equal(t, "00-abc-def-02", carrier.Get("traceparent"))
	assert.Len(t, carrier, 1)

	carrier.Set("baggage", "k=v")
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, carrier.Keys())
}

func TestKafkaHeaderCarrierFromExistingHeaders(t *testing.T) {
	carrier := KafkaHeaderCarrier{
		{Key: "traceparent", Value: []byte("00-abc-def-01")},
		{Key: "custom", Value: []byte("x")},
	}
	var tm propagation.TextMapCarrier = &carrier
	assert.Equal(t, "00-abc-def-01", tm.Get("traceparent"))
	assert.Equal(t, "x", tm.Get("custom"))
}

func TestNewKafkaWriterKeyedOrdering(t *testing.T) {
	writer := NewKafkaWriter([]string{"localhost:9092"}, "order-status-changed")
	defer writer.Close()

	// 按 Key 哈希分区，同一订单的事件必须落到同一分区保序
	assert.IsType(t, &kafka.Hash{}, writer.Balancer)
	assert.Equal(t, "order-status-changed", writer.Topic)
}
