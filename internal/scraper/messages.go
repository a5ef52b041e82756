package scraper

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/record"
	"github.com/wzxcff/APIScraperTG/internal/resilience"
	"github.com/wzxcff/APIScraperTG/internal/session"
)

const (
	historyPageSize = 100

	// mediaTimeLayout 媒体文件名中的时间格式
	mediaTimeLayout = "2006-01-02_15-04-05"

	fallbackExtension = ".file"
)

// errCancelled 消息处理中途被取消，剩余的回复或媒体未获取
var errCancelled = errors.New("message processing cancelled")

// FetchMessages 从 offset（不包含）开始按从新到旧抓取至多 limit 条消息，limit <= 0 表示不限
// 单条消息处理失败时停止抓取，已抓取的消息照常保存并返回
func (s *Scraper) FetchMessages(ctx context.Context, limit int, offset int64) (*record.MessagesResult, error) {
	logger.Infof("[Scraper] 开始抓取消息, limit: %d, offset: %d", limit, offset)

	target, err := s.ensureTarget(ctx)
	if err != nil {
		return nil, err
	}
	chatType, err := s.ChatType(ctx)
	if err != nil {
		logger.Warnf("[Scraper] 解析目标类型失败，不抓取回复: %v", err)
	}

	result := &record.MessagesResult{Target: target, Messages: make([]record.Message, 0)}
	batch := make([]record.Message, 0, s.batchSize()+1)
	var fetchErr error

	fromID := offset
fetch:
	for limit <= 0 || len(result.Messages) < limit {
		if s.cancelled("fetch_messages") {
			break
		}

		pageSize := historyPageSize
		if limit > 0 && limit-len(result.Messages) < pageSize {
			pageSize = limit - len(result.Messages)
		}
		page, err := resilience.Call(ctx, s.caller, "fetch_messages", func(ctx context.Context) ([]*session.Message, error) {
			return s.sess.ListMessages(ctx, s.entity, pageSize, fromID)
		})
		if err != nil {
			fetchErr = err
			break
		}
		if len(page) == 0 {
			break
		}

		for _, message := range page {
			if s.cancelled("fetch_messages") {
				break fetch
			}

			msg, err := s.processMessage(ctx, message, chatType)
			if errors.Is(err, errCancelled) {
				logger.Infof("[Scraper] 处理消息 %d 时被取消, 丢弃未完成的消息", message.ID)
				break fetch
			}
			if err != nil {
				logger.Warnf("[Scraper] 处理消息 %d 失败，停止抓取并保存已有数据: %v", message.ID, err)
				fetchErr = err
				break fetch
			}

			result.Messages = append(result.Messages, msg)
			batch = append(batch, msg)
			logger.Debugf("[Scraper] 消息 #%d (id: %d) 已抓取", len(result.Messages), msg.ID)

			if len(batch) > s.batchSize() {
				s.flushMessages(ctx, batch)
				batch = make([]record.Message, 0, s.batchSize()+1)
			}
		}
		fromID = page[len(page)-1].ID
	}

	if len(batch) > 0 {
		s.flushMessages(ctx, batch)
	}

	logger.Infof("[Scraper] 消息抓取结束, 共 %d 条", len(result.Messages))
	return result, fetchErr
}

func (s *Scraper) batchSize() int {
	if s.config.BatchSize <= 0 {
		return 100
	}
	return s.config.BatchSize
}

// processMessage 补全发送者、回复、媒体和地理位置
// 处理中途被取消且还有回复或媒体未获取时返回 errCancelled
func (s *Scraper) processMessage(ctx context.Context, message *session.Message, chatType ChatType) (record.Message, error) {
	msg := record.Message{
		ID:        message.ID,
		Text:      message.Text,
		Date:      message.Date,
		ChangedAt: record.ChangedAt(message.Date, message.EditDate),
	}
	msg.Sender = s.enricher.Sender(ctx, message.SenderID, s.folders.Avatars)

	if message.ReplyCount > 0 && chatType.RepliesVisible() {
		if s.token.Cancelled() {
			return msg, errCancelled
		}

		replies, err := resilience.Call(ctx, s.caller, "fetch_replies", func(ctx context.Context) ([]*session.Message, error) {
			return s.sess.ListReplies(ctx, s.entity, message.ID)
		})
		if err != nil {
			return msg, fmt.Errorf("获取消息 %d 的回复失败: %w", message.ID, err)
		}
		for _, reply := range replies {
			msg.Comments = append(msg.Comments, record.Comment{
				ID:        reply.ID,
				Text:      reply.Text,
				Date:      reply.Date,
				ChangedAt: record.ChangedAt(reply.Date, reply.EditDate),
				UserID:    record.Int64(reply.SenderID),
			})
		}
	}

	if message.Media == nil {
		return msg, nil
	}

	if message.Media.Kind == session.MediaPhoto || message.Media.Kind == session.MediaDocument {
		if s.token.Cancelled() {
			return msg, errCancelled
		}

		path := s.mediaPath(message)
		saved, err := resilience.Call(ctx, s.caller, "download_media", func(ctx context.Context) (string, error) {
			return s.sess.DownloadMedia(ctx, message.Media, path)
		})
		switch {
		case errors.Is(err, session.ErrNoFile):
			logger.Warnf("[Scraper] 消息 %d 的附件没有可下载的文件, 不保存媒体", message.ID)
		case err != nil:
			return msg, fmt.Errorf("下载消息 %d 的媒体失败: %w", message.ID, err)
		default:
			msg.Media = record.String(saved)
		}
	}

	if geo := message.Media.Geo; geo != nil {
		msg.Geo = &record.Geo{Latitude: geo.Latitude, Longitude: geo.Longitude}
	}
	return msg, nil
}

// mediaPath 媒体文件保存路径：<media>/<时间>_<消息ID><扩展名>
func (s *Scraper) mediaPath(message *session.Message) string {
	ext := ".jpg"
	if message.Media.Kind != session.MediaPhoto {
		ext = MediaExtension(message.Media.MimeType, message.Media.FileName)
	}
	name := fmt.Sprintf("%s_%d%s", message.Date.Format(mediaTimeLayout), message.ID, ext)
	return filepath.Join(s.folders.Media, name)
}

// MediaExtension 根据 MIME 类型推断扩展名，无法推断时使用原文件名的扩展名，最后回退为 .file
func MediaExtension(mimeType, fileName string) string {
	if mimeType != "" {
		if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
			return m.Extension()
		}
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			return exts[0]
		}
		logger.Warnf("[Scraper] 无法根据 MIME 类型 %q 推断扩展名", mimeType)
	}
	if ext := filepath.Ext(fileName); ext != "" {
		return ext
	}
	return fallbackExtension
}

// flushMessages 将批次写入数据库，数据库不可用时丢弃批次
func (s *Scraper) flushMessages(ctx context.Context, batch []record.Message) {
	if s.entity == nil {
		return
	}

	inserted, err := s.messages.InsertBatch(ctx, s.entity.ID, batch)
	if errors.Is(err, model.ErrNoDatabase) {
		logger.Debugf("[Scraper] 数据库不可用, %d 条消息仅保存到 JSON", len(batch))
		return
	}
	if err != nil {
		logger.Errorf("[Scraper] 写入 %d 条消息失败: %v", len(batch), err)
		return
	}
	logger.Infof("[Scraper] 已写入数据库 %d/%d 条消息", inserted, len(batch))
}
