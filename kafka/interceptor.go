package kafka

import (
	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// NotifyInterceptor 给每条通知消息盖一个事件 ID 头，下游去重用
type NotifyInterceptor struct {
}

func (i *NotifyInterceptor) OnSend(msg *sarama.ProducerMessage) {
	msg.Headers = append(msg.Headers, sarama.RecordHeader{
		Key:   []byte("event-id"),
		Value: []byte(uuid.New().String()),
	})
}

func NewNotifyInterceptor() *NotifyInterceptor {
	return &NotifyInterceptor{}
}
