package devtypes

// ConnectionAcceptedEvent 是请求被接受后通过 Kafka 传递的事件载荷。
// 生产者是 ConnectionService.Accept，消费者负责物化 connections 表。
type ConnectionAcceptedEvent struct {
	RequestID  uint `json:"requestId"`
	SenderID   uint `json:"senderId"`
	ReceiverID uint `json:"receiverId"`
}
