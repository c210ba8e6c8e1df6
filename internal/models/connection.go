package models

// Connection represents ONE directed half of a symmetric relationship:
// an established friendship between A and B is stored as two rows,
// (owner=A, counterpart=B) and (owner=B, counterpart=A). Listing a
// user's connections only ever reads their own half; removal must
// delete both halves.
type Connection struct {
	BaseModel
	OwnerID       uint    `gorm:"not null;index:idx_connection_pair"` // 这一半所属的用户
	CounterpartID uint    `gorm:"not null;index:idx_connection_pair"` // 对方用户
	Owner         Profile `gorm:"foreignKey:OwnerID" json:"-"`
	Counterpart   Profile `gorm:"foreignKey:CounterpartID" json:"-"`
}

// ConnectionWithProfile is a DTO for the connections list, embedding
// basic info about the counterpart profile.
type ConnectionWithProfile struct {
	Connection
	Profile *ProfileBasicInfo `json:"profile"`
}

// ConnectionState 是两个用户之间派生出的关系状态。它从不落库：
// 状态总是由当前的 connection_requests / connections 行计算得出。
type ConnectionState string

const (
	ConnectionStateNone        ConnectionState = "none"
	ConnectionStatePendingSent ConnectionState = "pending-sent"
	ConnectionStateConnected   ConnectionState = "connected"
)

// ConnectionStatus is the tagged result of resolving the relationship
// between a viewer and a subject. RequestID is set only for
// pending-sent, so the viewer can withdraw the request it refers to.
type ConnectionStatus struct {
	State     ConnectionState `json:"state"`
	RequestID uint            `json:"requestId,omitempty"`
}
