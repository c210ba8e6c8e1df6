package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"devconnect/internal/devtypes"
	"devconnect/internal/realtime"
	"devconnect/internal/storage"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ConnectionAcceptedConsumerLogic 封装了处理"请求已接受"事件的业务逻辑。
// 它负责把接受的请求物化为 connections 表中的两条互指记录，并把
// 变更推送给 realtime hub。
type ConnectionAcceptedConsumerLogic struct {
	connectionRepo storage.ConnectionRepository
	notifier       realtime.Notifier
}

// NewConnectionAcceptedConsumerLogic creates a new instance of ConnectionAcceptedConsumerLogic.
func NewConnectionAcceptedConsumerLogic(connRepo storage.ConnectionRepository, notifier realtime.Notifier) *ConnectionAcceptedConsumerLogic {
	if connRepo == nil {
		log.Panic("ConnectionRepository cannot be nil")
	}
	return &ConnectionAcceptedConsumerLogic{connectionRepo: connRepo, notifier: notifier}
}

// HandleConnectionAccepted is the MessageHandler passed to the Kafka consumer.
// It processes a single message representing an accepted connection request.
// Materialization is idempotent: if the pair is already connected the message
// is treated as a duplicate delivery and committed without changes.
func (h *ConnectionAcceptedConsumerLogic) HandleConnectionAccepted(ctx context.Context, msg *kafka.Message) error {
	log.Printf("Kafka Consumer: Received message for Topic %s, Partition %d, Offset %d, Key: %s\n",
		*msg.TopicPartition.Topic, msg.TopicPartition.Partition, msg.TopicPartition.Offset, string(msg.Key))

	var event devtypes.ConnectionAcceptedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Error unmarshalling connection accepted event (Value: '%s'): %v. This message will be skipped.", string(msg.Value), err)
		// 无法解析的消息重试也不会成功，返回 nil 提交掉。
		return nil
	}

	if event.SenderID == 0 || event.ReceiverID == 0 || event.SenderID == event.ReceiverID {
		log.Printf("Invalid connection accepted event (RequestID: %d, SenderID: %d, ReceiverID: %d). This message will be skipped.",
			event.RequestID, event.SenderID, event.ReceiverID)
		return nil
	}

	connected, err := h.connectionRepo.AreConnected(ctx, event.SenderID, event.ReceiverID)
	if err != nil {
		log.Printf("Error checking existing connection for pair (%d, %d): %v", event.SenderID, event.ReceiverID, err)
		return err
	}
	if connected {
		log.Printf("Pair (%d, %d) already connected, skipping duplicate delivery (RequestID: %d)",
			event.SenderID, event.ReceiverID, event.RequestID)
		return nil
	}

	rows, err := h.connectionRepo.CreatePair(ctx, event.SenderID, event.ReceiverID)
	if err != nil {
		log.Printf("Error materializing connection for pair (%d, %d): %v", event.SenderID, event.ReceiverID, err)
		return err
	}

	if h.notifier != nil {
		for _, row := range rows {
			h.notifier.Publish(devtypes.ChangeEvent{
				Table:    devtypes.TableConnections,
				Action:   devtypes.ChangeActionInsert,
				RecordID: row.ID,
				UserA:    row.OwnerID,
				UserB:    row.CounterpartID,
			})
		}
	}

	log.Printf("Successfully materialized connection for pair (%d, %d) from RequestID %d",
		event.SenderID, event.ReceiverID, event.RequestID)
	return nil
}
