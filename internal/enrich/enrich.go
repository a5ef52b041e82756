// Package enrich 将用户引用补全为展示字段，并在本地缓存头像。
package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/record"
	"github.com/wzxcff/APIScraperTG/internal/resilience"
	"github.com/wzxcff/APIScraperTG/internal/session"
)

// UnknownName 用户解析失败时使用的名称
const UnknownName = "Unknown"

type Enricher struct {
	sess   session.Session
	caller *resilience.Caller

	usersMu    sync.RWMutex
	usersCache map[int64]*session.User
}

func NewEnricher(sess session.Session, caller *resilience.Caller) *Enricher {
	return &Enricher{
		sess:       sess,
		caller:     caller,
		usersCache: make(map[int64]*session.User),
	}
}

// AvatarPath 头像文件名由用户ID和名字决定，重复运行时可识别已存在的文件
func AvatarPath(dir string, userID int64, firstName string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_").Replace(firstName)
	return filepath.Join(dir, fmt.Sprintf("%d_%s.jpg", userID, name))
}

// Reset 清空用户缓存，每次运行开始时调用
func (e *Enricher) Reset() {
	e.usersMu.Lock()
	e.usersCache = make(map[int64]*session.User)
	e.usersMu.Unlock()
}

// User 解析用户，本次运行内已解析的用户直接返回缓存
func (e *Enricher) User(ctx context.Context, userID int64) (*session.User, error) {
	e.usersMu.RLock()
	user, ok := e.usersCache[userID]
	e.usersMu.RUnlock()
	if ok {
		return user, nil
	}

	user, err := resilience.Call(ctx, e.caller, "get_entity", func(ctx context.Context) (*session.User, error) {
		return e.sess.User(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	e.usersMu.Lock()
	e.usersCache[userID] = user
	e.usersMu.Unlock()
	return user, nil
}

// Avatar 用户有头像且本地不存在时下载一次，返回本地文件路径；没有头像文件时返回 nil
func (e *Enricher) Avatar(ctx context.Context, user *session.User, dir string) *string {
	path := AvatarPath(dir, user.ID, user.FirstName)
	if user.HasPhoto && !fileExists(path) {
		_, err := resilience.Call(ctx, e.caller, "download_profile_photo", func(ctx context.Context) (string, error) {
			return e.sess.DownloadProfilePhoto(ctx, user, path)
		})
		if err != nil {
			logger.Warnf("[Enrich] 下载用户头像失败, id: %d, %v", user.ID, err)
		}
	}

	if !fileExists(path) {
		return nil
	}
	return &path
}

// Sender 补全消息发送者，userID 为 0 时返回全部为空的记录
// 解析失败时返回名称为 Unknown 的部分记录并附带错误说明
func (e *Enricher) Sender(ctx context.Context, userID int64, avatarDir string) record.Sender {
	if userID == 0 {
		return record.Sender{}
	}

	user, err := e.User(ctx, userID)
	if err != nil {
		logger.Warnf("[Enrich] 解析发送者失败, id: %d, %v", userID, err)
		return record.Sender{
			UserID:    &userID,
			FirstName: record.String(UnknownName),
			Error:     err.Error(),
		}
	}

	return record.Sender{
		UserID:    &userID,
		FirstName: record.String(user.FirstName),
		LastName:  record.String(user.LastName),
		Username:  record.String(user.Username),
		Avatar:    e.Avatar(ctx, user, avatarDir),
		IsBot:     record.Bool(user.IsBot),
	}
}

// Participant 补全群组成员，成员列表中已包含用户资料，无需再次解析
func (e *Enricher) Participant(ctx context.Context, user *session.User, avatarDir string) record.Participant {
	e.usersMu.Lock()
	if _, ok := e.usersCache[user.ID]; !ok {
		e.usersCache[user.ID] = user
	}
	e.usersMu.Unlock()

	return record.Participant{
		UserID:    user.ID,
		Username:  record.String(user.Username),
		FirstName: record.String(user.FirstName),
		LastName:  record.String(user.LastName),
		Avatar:    e.Avatar(ctx, user, avatarDir),
	}
}

// PerformedBy 补全管理日志的执行者
func (e *Enricher) PerformedBy(ctx context.Context, userID int64) (record.PerformedBy, error) {
	user, err := e.User(ctx, userID)
	if err != nil {
		return record.PerformedBy{
			UserID:    userID,
			FirstName: record.String(UnknownName),
		}, err
	}
	return record.PerformedBy{
		UserID:    userID,
		FirstName: record.String(user.FirstName),
		LastName:  record.String(user.LastName),
		Username:  record.String(user.Username),
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
