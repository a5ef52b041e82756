// Package session 定义远端 Telegram 会话的调用约定，抓取器、信息补全与通知都只依赖这里的接口。
package session

import (
	"context"
	"fmt"
	"time"
)

// EntityKind 远端实体类型
type EntityKind string

const (
	KindMegagroup EntityKind = "megagroup" // 超级群组
	KindBroadcast EntityKind = "broadcast" // 广播频道
	KindChat      EntityKind = "chat"      // 普通群组
	KindUser      EntityKind = "user"
	KindUnknown   EntityKind = "unknown"
)

// MediaKind 消息附件类型
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// PermanentError 不应重试的错误
type PermanentError string

func (e PermanentError) Error() string {
	return string(e)
}

func (e PermanentError) Permanent() bool {
	return true
}

// ErrNotParticipant 当前账号不是目标频道的成员，或没有查看权限
var ErrNotParticipant error = PermanentError("user is not a participant")

// ErrNoFile 附件没有可下载的文件
var ErrNoFile error = PermanentError("media has no downloadable file")

// RateLimitError 服务端限流，Wait 为服务端要求的等待时间
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Wait)
}

// RetryAfter 返回服务端要求的等待时间
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.Wait
}

// Entity 解析后的群组、频道或用户
type Entity struct {
	ID       int64
	Kind     EntityKind
	Title    string
	Username string
	HasPhoto bool
}

// FullInfo 频道完整信息，服务端未提供的计数为 nil
type FullInfo struct {
	About             string
	ParticipantsCount *int
	AdminsCount       *int
	KickedCount       *int
	BannedCount       *int
	OnlineCount       *int
	HasPhoto          bool
}

// Permissions 当前账号在目标中的权限
type Permissions struct {
	IsParticipant bool
	IsAdmin       bool
	IsCreator     bool
}

// GeoPoint 地理坐标
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Media 消息附件引用
type Media struct {
	Kind     MediaKind
	MimeType string
	FileName string
	FileID   int32
	Geo      *GeoPoint
}

// Message 远端消息，SenderID 为 0 表示无法识别的发送者（频道署名等）
type Message struct {
	ID         int64
	Text       string
	Date       time.Time
	EditDate   time.Time
	SenderID   int64
	ReplyCount int
	Media      *Media
}

// User 远端用户
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsBot     bool
	HasPhoto  bool
}

// AdminAction 管理日志条目
type AdminAction struct {
	ID     int64
	Action string
	Date   time.Time
	UserID int64
}

// Session 远端 Telegram 会话
type Session interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Me(ctx context.Context) (*User, error)
	ResolveEntity(ctx context.Context, handle string) (*Entity, error)
	Permissions(ctx context.Context, entity *Entity, userID int64) (*Permissions, error)
	FullInfo(ctx context.Context, entity *Entity) (*FullInfo, error)

	// ListMessages 按从新到旧返回 offsetID 之前（不含）的至多 limit 条消息，offsetID 为 0 时从最新开始
	ListMessages(ctx context.Context, entity *Entity, limit int, offsetID int64) ([]*Message, error)
	ListPinned(ctx context.Context, entity *Entity, limit int) ([]*Message, error)
	ListReplies(ctx context.Context, entity *Entity, parentID int64) ([]*Message, error)
	ListAdminActions(ctx context.Context, entity *Entity) ([]*AdminAction, error)
	ListParticipants(ctx context.Context, entity *Entity) ([]*User, error)
	User(ctx context.Context, userID int64) (*User, error)

	// 下载方法返回实际写入的文件路径
	DownloadProfilePhoto(ctx context.Context, user *User, path string) (string, error)
	DownloadEntityPhoto(ctx context.Context, entity *Entity, path string) (string, error)
	DownloadMedia(ctx context.Context, media *Media, path string) (string, error)

	SendText(ctx context.Context, userID int64, text string) error
}
