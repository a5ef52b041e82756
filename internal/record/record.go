// Package record 定义抓取结果的结构化记录，既用于 JSON 归档，也用于写入数据库。
// 可缺失的字段统一使用指针，缺失时序列化为 null。
package record

import "time"

// Target 目标群组或频道
type Target struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Title             string    `json:"title"`
	About             *string   `json:"about"`
	Avatar            *string   `json:"avatar"`
	ParticipantsCount *int      `json:"participants_count"`
	AdminsCount       *int      `json:"admins_count"`
	KickedCount       *int      `json:"kicked_count"`
	BannedCount       *int      `json:"banned_count"`
	OnlineCount       *int      `json:"online_count"`
	RequestedAt       time.Time `json:"requested_at"`
}

// Sender 消息发送者，无法识别发送者时所有字段为 null
type Sender struct {
	UserID    *int64  `json:"user_id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  *string `json:"username"`
	Avatar    *string `json:"avatar"`
	IsBot     *bool   `json:"is_bot"`
	Error     string  `json:"error,omitempty"`
}

// Geo 地理坐标
type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Comment 消息的直接回复
type Comment struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text"`
	Date      time.Time  `json:"date"`
	ChangedAt *time.Time `json:"changed_at"`
	UserID    *int64     `json:"user_id"`
}

// Message 补全后的消息
type Message struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text"`
	Date      time.Time  `json:"date"`
	ChangedAt *time.Time `json:"changed_at"`
	Sender    Sender     `json:"sender"`
	Comments  []Comment  `json:"comments"`
	Media     *string    `json:"media"`
	Geo       *Geo       `json:"geo"`
}

// PinnedMessage 置顶消息
type PinnedMessage struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text"`
	FromID    *int64     `json:"from_id"`
	Date      time.Time  `json:"date"`
	ChangedAt *time.Time `json:"changed_at"`
	Geo       *Geo       `json:"geo"`
}

// PerformedBy 执行管理操作的用户
type PerformedBy struct {
	UserID    int64   `json:"user_id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  *string `json:"username"`
}

// AdminLogEntry 管理日志条目
type AdminLogEntry struct {
	Action      string      `json:"action"`
	PerformedBy PerformedBy `json:"performed_by"`
	Timestamp   time.Time   `json:"timestamp"`
	Error       string      `json:"error,omitempty"`
}

// Participant 群组成员
type Participant struct {
	UserID    int64   `json:"user_id"`
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Avatar    *string `json:"avatar"`
}

// MessagesResult messages.json 的内容
type MessagesResult struct {
	Target   *Target   `json:"target"`
	Messages []Message `json:"messages"`
}

// ParticipantsResult participants.json 的内容
type ParticipantsResult struct {
	Target       string        `json:"target"`
	Participants []Participant `json:"participants"`
}

// ChangedAt 仅当编辑时间存在且不同于创建时间时返回编辑时间
func ChangedAt(date, edited time.Time) *time.Time {
	if edited.IsZero() || edited.Equal(date) {
		return nil
	}
	return &edited
}

// String 空字符串视为缺失
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64 0 视为缺失
func Int64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func Bool(v bool) *bool {
	return &v
}
