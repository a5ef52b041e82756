package scraper

import (
	"context"
	"errors"

	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/resilience"
	"github.com/wzxcff/APIScraperTG/internal/session"
)

// ChatType 当前账号相对目标的访问级别
type ChatType string

const (
	ChatMegaGroup      ChatType = "Mega group"
	ChatChannelAdmin   ChatType = "Channel admin"
	ChatChannelUser    ChatType = "Channel user"
	ChatNotParticipant ChatType = "User not participant"
	ChatGroup          ChatType = "Chat group"
	ChatUnknown        ChatType = "Unknown"
)

// RepliesVisible 是否可以读取消息回复
func (c ChatType) RepliesVisible() bool {
	switch c {
	case ChatMegaGroup, ChatGroup, ChatChannelAdmin, ChatChannelUser:
		return true
	}
	return false
}

// CanListParticipants 是否可以读取成员列表
func (c ChatType) CanListParticipants() bool {
	switch c {
	case ChatMegaGroup, ChatChannelAdmin, ChatGroup:
		return true
	}
	return false
}

// CanReadAdminLog 只有频道管理员可以读取管理日志
func (c ChatType) CanReadAdminLog() bool {
	return c == ChatChannelAdmin
}

// ChatType 解析并缓存本次运行的访问级别
func (s *Scraper) ChatType(ctx context.Context) (ChatType, error) {
	if s.chatType != "" {
		return s.chatType, nil
	}

	entity, err := s.resolveEntity(ctx)
	if err != nil {
		return ChatUnknown, err
	}

	chatType, err := s.classify(ctx, entity)
	if err != nil {
		return ChatUnknown, err
	}

	logger.Infof("[Scraper] 目标类型: %s", chatType)
	s.chatType = chatType
	return chatType, nil
}

func (s *Scraper) classify(ctx context.Context, entity *session.Entity) (ChatType, error) {
	switch entity.Kind {
	case session.KindMegagroup:
		return ChatMegaGroup, nil
	case session.KindChat:
		return ChatGroup, nil
	case session.KindBroadcast:
	default:
		return ChatUnknown, nil
	}

	me, err := resilience.Call(ctx, s.caller, "get_me", func(ctx context.Context) (*session.User, error) {
		return s.sess.Me(ctx)
	})
	if err != nil {
		return ChatUnknown, err
	}

	perms, err := resilience.Call(ctx, s.caller, "get_permissions", func(ctx context.Context) (*session.Permissions, error) {
		return s.sess.Permissions(ctx, entity, me.ID)
	})
	if errors.Is(err, session.ErrNotParticipant) || (err == nil && !perms.IsParticipant) {
		logger.Warnf("[Scraper] 当前账号不是 %s 的成员", s.config.Target)
		return ChatNotParticipant, nil
	}
	if err != nil {
		return ChatUnknown, err
	}

	if perms.IsAdmin || perms.IsCreator {
		return ChatChannelAdmin, nil
	}
	return ChatChannelUser, nil
}
