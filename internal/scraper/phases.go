package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/wzxcff/APIScraperTG/internal/archive"
	"github.com/wzxcff/APIScraperTG/internal/enrich"
	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/record"
	"github.com/wzxcff/APIScraperTG/internal/resilience"
	"github.com/wzxcff/APIScraperTG/internal/session"
)

// FetchTargetInfo 获取目标基本信息，full 为 true 时额外获取描述、成员统计和头像
// 目标信息在每次运行中只写入数据库一次
func (s *Scraper) FetchTargetInfo(ctx context.Context, full bool) (*record.Target, error) {
	if s.cancelled("fetch_target_info") {
		return nil, nil
	}
	logger.Infof("[Scraper] 开始获取目标信息")

	entity, err := s.resolveEntity(ctx)
	if err != nil {
		return nil, err
	}

	target := &record.Target{
		ID:          entity.ID,
		Username:    s.config.Target,
		Title:       entity.Title,
		RequestedAt: time.Now(),
	}

	if full && !s.token.Cancelled() {
		start := time.Now()
		info, err := resilience.Call(ctx, s.caller, "fetch_target_info", func(ctx context.Context) (*session.FullInfo, error) {
			return s.sess.FullInfo(ctx, entity)
		})
		if err != nil {
			logger.Warnf("[Scraper] 获取完整目标信息失败: %v", err)
		} else {
			logger.Infof("[Scraper] 完整目标信息耗时 %.2f 秒", time.Since(start).Seconds())
			target.About = record.String(info.About)
			target.ParticipantsCount = info.ParticipantsCount
			target.AdminsCount = info.AdminsCount
			target.KickedCount = info.KickedCount
			target.BannedCount = info.BannedCount
			target.OnlineCount = info.OnlineCount
			if info.HasPhoto || entity.HasPhoto {
				target.Avatar = s.downloadTargetAvatar(ctx, entity)
			}
		}
	}

	first := s.target == nil
	s.target = target
	if first {
		s.saveTarget(ctx, target)
	}
	return target, nil
}

// ensureTarget 返回本次运行已获取的目标信息，没有时获取基本信息
func (s *Scraper) ensureTarget(ctx context.Context) (*record.Target, error) {
	if s.target != nil {
		return s.target, nil
	}
	if _, err := s.resolveEntity(ctx); err != nil {
		return nil, err
	}

	target, err := s.FetchTargetInfo(ctx, false)
	if err != nil {
		return nil, err
	}
	if target == nil {
		// 已取消，仍需要目标ID用于写库
		target = &record.Target{ID: s.entity.ID, Username: s.config.Target, Title: s.entity.Title, RequestedAt: time.Now()}
	}
	return target, nil
}

func (s *Scraper) saveTarget(ctx context.Context, target *record.Target) {
	err := s.groups.Upsert(ctx, target)
	if errors.Is(err, model.ErrNoDatabase) {
		return
	}
	if err != nil {
		logger.Errorf("[Scraper] 写入目标信息失败: %v", err)
	}
}

func (s *Scraper) downloadTargetAvatar(ctx context.Context, entity *session.Entity) *string {
	path := filepath.Join(s.folders.Avatars, archive.DirName(s.config.Target)+"_avatar.jpg")
	_, err := resilience.Call(ctx, s.caller, "fetch_target_info", func(ctx context.Context) (string, error) {
		return s.sess.DownloadEntityPhoto(ctx, entity, path)
	})
	if err != nil {
		logger.Warnf("[Scraper] 下载目标头像失败: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return &path
}

// GetPinnedMessages 获取置顶消息并作为单独的批次写入数据库
func (s *Scraper) GetPinnedMessages(ctx context.Context) ([]record.PinnedMessage, error) {
	if s.cancelled("get_pinned_messages") {
		return nil, nil
	}
	logger.Infof("[Scraper] 开始获取置顶消息")

	target, err := s.ensureTarget(ctx)
	if err != nil {
		return nil, err
	}

	messages, err := resilience.Call(ctx, s.caller, "get_pinned_messages", func(ctx context.Context) ([]*session.Message, error) {
		return s.sess.ListPinned(ctx, s.entity, s.config.PinnedLimit)
	})
	if err != nil {
		return nil, err
	}

	pinned := make([]record.PinnedMessage, 0, len(messages))
	for _, message := range messages {
		entry := record.PinnedMessage{
			ID:        message.ID,
			Text:      message.Text,
			FromID:    record.Int64(message.SenderID),
			Date:      message.Date,
			ChangedAt: record.ChangedAt(message.Date, message.EditDate),
		}
		if message.Media != nil && message.Media.Geo != nil {
			entry.Geo = &record.Geo{Latitude: message.Media.Geo.Latitude, Longitude: message.Media.Geo.Longitude}
		}
		pinned = append(pinned, entry)
	}

	if len(pinned) > 0 {
		inserted, err := s.messages.InsertPinned(ctx, target.ID, pinned)
		switch {
		case errors.Is(err, model.ErrNoDatabase):
		case err != nil:
			logger.Errorf("[Scraper] 写入置顶消息失败: %v", err)
		default:
			logger.Infof("[Scraper] 已写入数据库 %d/%d 条置顶消息", inserted, len(pinned))
		}
	}

	logger.Infof("[Scraper] 置顶消息获取结束, 共 %d 条", len(pinned))
	return pinned, nil
}

// GetMembers 获取成员列表，没有权限时返回空列表且不请求成员接口
func (s *Scraper) GetMembers(ctx context.Context) (*record.ParticipantsResult, error) {
	if s.cancelled("get_members") {
		return nil, nil
	}
	logger.Infof("[Scraper] 开始获取成员")

	result := &record.ParticipantsResult{Target: s.config.Target, Participants: make([]record.Participant, 0)}

	chatType, err := s.ChatType(ctx)
	if err != nil {
		return result, err
	}
	if !chatType.CanListParticipants() {
		if chatType == ChatChannelUser {
			logger.Infof("[Scraper] 不是频道管理员，无法获取成员")
		} else {
			logger.Infof("[Scraper] 目标类型 %s 无法获取成员", chatType)
		}
		return result, nil
	}

	users, err := resilience.Call(ctx, s.caller, "get_members", func(ctx context.Context) ([]*session.User, error) {
		return s.sess.ListParticipants(ctx, s.entity)
	})
	if err != nil {
		return result, err
	}

	for _, user := range users {
		if s.cancelled("get_members") {
			break
		}
		result.Participants = append(result.Participants, s.enricher.Participant(ctx, user, s.folders.ParticipantsAvatars))
	}

	logger.Infof("[Scraper] 成员获取结束, 共 %d 人", len(result.Participants))
	return result, nil
}

// GetAdminLog 获取管理日志，仅频道管理员可用
func (s *Scraper) GetAdminLog(ctx context.Context) ([]record.AdminLogEntry, error) {
	if s.cancelled("get_admin_log") {
		return nil, nil
	}
	logger.Infof("[Scraper] 开始获取管理日志")

	logs := make([]record.AdminLogEntry, 0)
	chatType, err := s.ChatType(ctx)
	if err != nil {
		return logs, err
	}
	if !chatType.CanReadAdminLog() {
		logger.Infof("[Scraper] 目标类型 %s 无法获取管理日志", chatType)
		return logs, nil
	}

	actions, err := resilience.Call(ctx, s.caller, "get_admin_log", func(ctx context.Context) ([]*session.AdminAction, error) {
		return s.sess.ListAdminActions(ctx, s.entity)
	})
	if err != nil {
		return logs, err
	}

	for _, action := range actions {
		if s.cancelled("get_admin_log") {
			break
		}

		entry := record.AdminLogEntry{
			Action:    action.Action,
			Timestamp: action.Date,
		}
		if action.UserID == 0 {
			entry.PerformedBy = record.PerformedBy{FirstName: record.String(enrich.UnknownName)}
			entry.Error = "performer is not a user"
		} else {
			performedBy, err := s.enricher.PerformedBy(ctx, action.UserID)
			entry.PerformedBy = performedBy
			if err != nil {
				logger.Warnf("[Scraper] 解析管理日志执行者 %d 失败: %v", action.UserID, err)
				entry.Error = err.Error()
			}
		}
		logs = append(logs, entry)
	}

	logger.Infof("[Scraper] 管理日志获取结束, 共 %d 条", len(logs))
	return logs, nil
}
