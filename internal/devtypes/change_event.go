// internal/devtypes/change_event.go
package devtypes

import "encoding/json"

// 变更事件覆盖的逻辑表名。与 GORM 的表名保持一致。
const (
	TableProfiles           = "profiles"
	TableConnectionRequests = "connection_requests"
	TableConnections        = "connections"
)

// ChangeAction 是变更事件的类型。
type ChangeAction string

const (
	ChangeActionInsert ChangeAction = "insert"
	ChangeActionUpdate ChangeAction = "update"
	ChangeActionDelete ChangeAction = "delete"
)

// ChangeEvent describes a single insert/update/delete against one of
// the watched tables. UserA/UserB carry the participants of the row:
// for profiles only UserA is set (the profile id), for requests and
// connections both sides are set. Payload is the affected record,
// serialized for delivery to subscribers; consumers are expected to
// re-fetch rather than patch, so delivery order does not matter.
type ChangeEvent struct {
	Table    string          `json:"table"`
	Action   ChangeAction    `json:"action"`
	RecordID uint            `json:"recordId"`
	UserA    uint            `json:"userA,omitempty"`
	UserB    uint            `json:"userB,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// InvolvesPair reports whether the event touches the unordered pair
// (a, b).
func (e ChangeEvent) InvolvesPair(a, b uint) bool {
	return (e.UserA == a && e.UserB == b) || (e.UserA == b && e.UserB == a)
}

// EventFilter 是订阅的匹配条件。所有已设置的约束必须同时成立：
//   - Table 非空时限定表名；
//   - ProfileID 非零时要求事件是该 profile 自身记录的变更；
//   - PairA/PairB 非零时要求事件涉及该无序对。
type EventFilter struct {
	Table     string `json:"table,omitempty"`
	ProfileID uint   `json:"profileId,omitempty"`
	PairA     uint   `json:"pairA,omitempty"`
	PairB     uint   `json:"pairB,omitempty"`
}

// Matches reports whether the event satisfies the filter.
func (f EventFilter) Matches(e ChangeEvent) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.ProfileID != 0 {
		if e.Table != TableProfiles || e.UserA != f.ProfileID {
			return false
		}
	}
	if f.PairA != 0 || f.PairB != 0 {
		if !e.InvolvesPair(f.PairA, f.PairB) {
			return false
		}
	}
	return true
}
