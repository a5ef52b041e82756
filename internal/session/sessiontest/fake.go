// Package sessiontest 提供按脚本响应的 session.Session 实现，供各包单元测试使用。
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wzxcff/APIScraperTG/internal/session"
)

// SentText 记录 SendText 调用
type SentText struct {
	UserID int64
	Text   string
}

// Fake 内存中的会话，Messages 按从新到旧排列
// Hook 在每次调用前执行，返回的错误作为该次调用的结果
type Fake struct {
	mu sync.Mutex

	Self         *session.User
	Entity       *session.Entity
	Perms        *session.Permissions
	Info         *session.FullInfo
	Messages     []*session.Message
	Pinned       []*session.Message
	Replies      map[int64][]*session.Message
	Actions      []*session.AdminAction
	Participants []*session.User
	Users        map[int64]*session.User

	Hook func(method string, call int) error

	calls map[string]int
	Sent  []SentText
}

func (f *Fake) enter(method string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
	call := f.calls[method]
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		return hook(method, call)
	}
	return nil
}

// Calls 返回指定方法被调用的次数
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls 返回所有方法的调用总数
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *Fake) Connect(ctx context.Context) error {
	return f.enter("Connect")
}

func (f *Fake) Disconnect(ctx context.Context) error {
	return f.enter("Disconnect")
}

func (f *Fake) Me(ctx context.Context) (*session.User, error) {
	if err := f.enter("Me"); err != nil {
		return nil, err
	}
	if f.Self == nil {
		return &session.User{ID: 1, FirstName: "me"}, nil
	}
	return f.Self, nil
}

func (f *Fake) ResolveEntity(ctx context.Context, handle string) (*session.Entity, error) {
	if err := f.enter("ResolveEntity"); err != nil {
		return nil, err
	}
	if f.Entity == nil {
		return nil, fmt.Errorf("entity %s not found", handle)
	}
	return f.Entity, nil
}

func (f *Fake) Permissions(ctx context.Context, entity *session.Entity, userID int64) (*session.Permissions, error) {
	if err := f.enter("Permissions"); err != nil {
		return nil, err
	}
	if f.Perms == nil {
		return nil, session.ErrNotParticipant
	}
	return f.Perms, nil
}

func (f *Fake) FullInfo(ctx context.Context, entity *session.Entity) (*session.FullInfo, error) {
	if err := f.enter("FullInfo"); err != nil {
		return nil, err
	}
	if f.Info == nil {
		return &session.FullInfo{}, nil
	}
	return f.Info, nil
}

func (f *Fake) ListMessages(ctx context.Context, entity *session.Entity, limit int, offsetID int64) ([]*session.Message, error) {
	if err := f.enter("ListMessages"); err != nil {
		return nil, err
	}

	result := make([]*session.Message, 0)
	for _, msg := range f.Messages {
		if offsetID > 0 && msg.ID >= offsetID {
			continue
		}
		result = append(result, msg)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (f *Fake) ListPinned(ctx context.Context, entity *session.Entity, limit int) ([]*session.Message, error) {
	if err := f.enter("ListPinned"); err != nil {
		return nil, err
	}
	if limit > 0 && len(f.Pinned) > limit {
		return f.Pinned[:limit], nil
	}
	return f.Pinned, nil
}

func (f *Fake) ListReplies(ctx context.Context, entity *session.Entity, parentID int64) ([]*session.Message, error) {
	if err := f.enter("ListReplies"); err != nil {
		return nil, err
	}
	return f.Replies[parentID], nil
}

func (f *Fake) ListAdminActions(ctx context.Context, entity *session.Entity) ([]*session.AdminAction, error) {
	if err := f.enter("ListAdminActions"); err != nil {
		return nil, err
	}
	return f.Actions, nil
}

func (f *Fake) ListParticipants(ctx context.Context, entity *session.Entity) ([]*session.User, error) {
	if err := f.enter("ListParticipants"); err != nil {
		return nil, err
	}
	return f.Participants, nil
}

func (f *Fake) User(ctx context.Context, userID int64) (*session.User, error) {
	if err := f.enter("User"); err != nil {
		return nil, err
	}
	user, ok := f.Users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	return user, nil
}

func (f *Fake) DownloadProfilePhoto(ctx context.Context, user *session.User, path string) (string, error) {
	if err := f.enter("DownloadProfilePhoto"); err != nil {
		return "", err
	}
	if !user.HasPhoto {
		return "", errors.New("user has no photo")
	}
	return writeFile(path)
}

func (f *Fake) DownloadEntityPhoto(ctx context.Context, entity *session.Entity, path string) (string, error) {
	if err := f.enter("DownloadEntityPhoto"); err != nil {
		return "", err
	}
	return writeFile(path)
}

func (f *Fake) DownloadMedia(ctx context.Context, media *session.Media, path string) (string, error) {
	if err := f.enter("DownloadMedia"); err != nil {
		return "", err
	}
	if media == nil || media.FileID == 0 {
		return "", session.ErrNoFile
	}
	return writeFile(path)
}

func (f *Fake) SendText(ctx context.Context, userID int64, text string) error {
	if err := f.enter("SendText"); err != nil {
		return err
	}
	f.mu.Lock()
	f.Sent = append(f.Sent, SentText{UserID: userID, Text: text})
	f.mu.Unlock()
	return nil
}

func writeFile(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// NewMessages 生成 ID 从 newest 递减到 oldest 的消息
func NewMessages(newest, oldest int64, senderID int64) []*session.Message {
	messages := make([]*session.Message, 0, newest-oldest+1)
	for id := newest; id >= oldest; id-- {
		messages = append(messages, &session.Message{ID: id, Text: fmt.Sprintf("message %d", id), SenderID: senderID})
	}
	return messages
}
