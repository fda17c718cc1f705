package kafka

import (
	"encoding/json"
	"log"

	"github.com/IBM/sarama"
)

// NotifyEvent 离线推送事件，投给推送分发服务消费
type NotifyEvent struct {
	UserID         string `json:"user_id"` // 接收方
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	MessageID      string `json:"message_id"`
	MessageType    string `json:"message_type"`
	SentAt         int64  `json:"sent_at"` // unix 毫秒
}

// Notifier 把离线用户的消息事件发到 Kafka，推送服务在下游消费。
// 发送失败只记日志：推送是尽力而为，不能拖住消息投递。
type Notifier interface {
	NotifyOffline(event NotifyEvent)
	Close() error
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string, config *sarama.Config) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &Producer{producer: producer, topic: topic}, nil
}

func (p *Producer) NotifyOffline(event NotifyEvent) {
	// 序列化消息
	jsonValue, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal notify event: %v", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.ByteEncoder(jsonValue),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		log.Printf("Failed to send notify event: %v", err)
		return
	}

	log.Printf("Notify event sent to partition %d at offset %d", partition, offset)
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// NopNotifier 没配置 Kafka 时的空实现
type NopNotifier struct{}

func (NopNotifier) NotifyOffline(NotifyEvent) {}
func (NopNotifier) Close() error              { return nil }
