package models

// ConnectionRequestStatus 定义连接请求的状态
type ConnectionRequestStatus string

const (
	ConnectionRequestStatusPending   ConnectionRequestStatus = "pending"
	ConnectionRequestStatusAccepted  ConnectionRequestStatus = "accepted"
	ConnectionRequestStatusRejected  ConnectionRequestStatus = "rejected"
	ConnectionRequestStatusWithdrawn ConnectionRequestStatus = "withdrawn" // If sender cancels
)

// ConnectionRequest 代表一个连接请求记录。
// (sender_id, receiver_id) 上的唯一索引让重复插入以 duplicate-key
// 错误失败；工作流依赖这一点来发现残留的旧记录并自愈 (见
// services.ConnectionService.Connect)。
type ConnectionRequest struct {
	BaseModel
	SenderID   uint                    `gorm:"not null;uniqueIndex:idx_connection_request_pair"` // 请求发送者
	ReceiverID uint                    `gorm:"not null;uniqueIndex:idx_connection_request_pair"` // 请求接收者
	Status     ConnectionRequestStatus `gorm:"type:varchar(20);not null;default:'pending'"`      // 请求状态
}

// ConnectionRequestWithSender is a DTO for listing incoming requests,
// with basic information about the profile that sent the request.
type ConnectionRequestWithSender struct {
	ConnectionRequest
	Sender *ProfileBasicInfo `json:"sender"`
}

// ConnectionRequestWithReceiver is a DTO for listing outgoing requests,
// with basic information about the profile the request was sent to.
type ConnectionRequestWithReceiver struct {
	ConnectionRequest
	Receiver *ProfileBasicInfo `json:"receiver"`
}
