package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/scraper"
	"github.com/wzxcff/APIScraperTG/internal/session"
)

const (
	MaxMessageLength = 4096 // Telegram 消息最大长度
)

// Notifier 将抓取报告私信给配置的用户
type Notifier struct {
	sess   session.Session
	config *config.Notify
}

func NewNotifier(sess session.Session, cfg *config.Notify) *Notifier {
	return &Notifier{
		sess:   sess,
		config: cfg,
	}
}

// Notify 发送通知，未启用时直接返回
// 单个用户发送失败不影响其他用户，返回第一个错误
func (n *Notifier) Notify(ctx context.Context, content string) error {
	if content == "" || n.config == nil || !n.config.Enable {
		return nil
	}
	if len(n.config.UserIds) == 0 {
		logger.Warnf("[Notify] 未配置私信通知用户ID")
		return nil
	}

	messages := splitMessage(content)

	var firstErr error
	for _, userID := range n.config.UserIds {
		if err := n.notifyUser(ctx, userID, messages); err != nil {
			logger.Errorf("[Notify] %v", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Infof("[Notify] 已发送私信给用户 %d", userID)
	}
	return firstErr
}

func (n *Notifier) notifyUser(ctx context.Context, userID int64, messages []string) error {
	for _, msg := range messages {
		if err := n.sess.SendText(ctx, userID, msg); err != nil {
			return fmt.Errorf("发送私信给用户 %d 失败: %w", userID, err)
		}
	}
	return nil
}

// FormatReport 生成运行报告文本
func FormatReport(report *scraper.Report) string {
	if report == nil {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "抓取报告: %s\n", report.Target)
	fmt.Fprintf(&sb, "状态: %s\n", report.Status)
	if report.ChatType != "" {
		fmt.Fprintf(&sb, "类型: %s\n", report.ChatType)
	}
	fmt.Fprintf(&sb, "开始: %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "耗时: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "消息: %d\n", report.Messages)
	fmt.Fprintf(&sb, "置顶: %d\n", report.Pinned)
	fmt.Fprintf(&sb, "成员: %d\n", report.Participants)
	fmt.Fprintf(&sb, "管理日志: %d", report.AdminActions)
	if report.Err != nil {
		fmt.Fprintf(&sb, "\n\n错误: %v", report.Err)
	}
	if previous := report.Previous; previous != nil {
		fmt.Fprintf(&sb, "\n\n上次运行: %s, 状态: %s, 消息: %d",
			previous.StartedAt.Format("2006-01-02 15:04:05"), previous.Status, previous.MessagesCount)
	}
	return sb.String()
}

// splitMessage 将消息按长度拆分为多条
func splitMessage(content string) []string {
	if len(content) <= MaxMessageLength {
		return []string{content}
	}

	// 按段落拆分
	paragraphs := strings.Split(content, "\n\n")
	if len(paragraphs) == 1 {
		// 如果没有段落分隔，按换行拆分
		paragraphs = strings.Split(content, "\n")
	}

	messages := make([]string, 0)
	currentMsg := ""

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		testMsg := currentMsg
		if testMsg != "" {
			testMsg += "\n\n"
		}
		testMsg += para

		if len(testMsg) <= MaxMessageLength {
			currentMsg = testMsg
			continue
		}

		// 当前消息已满，保存并开始新消息
		if currentMsg != "" {
			messages = append(messages, currentMsg)
			currentMsg = ""
		}
		if len(para) <= MaxMessageLength {
			currentMsg = para
			continue
		}

		// 单个段落超过长度，按字符切分
		runes := []rune(para)
		for len(runes) > 0 {
			end := 0
			size := 0
			for end < len(runes) && size+len(string(runes[end])) <= MaxMessageLength {
				size += len(string(runes[end]))
				end++
			}
			messages = append(messages, string(runes[:end]))
			runes = runes[end:]
		}
	}

	if currentMsg != "" {
		messages = append(messages, currentMsg)
	}

	return messages
}
