package teleapp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wzxcff/APIScraperTG/internal/session"
)

var (
	floodWaitRe  = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)
	retryAfterRe = regexp.MustCompile(`(?i)retry after (\d+)`)
)

// defaultFloodWait 服务端返回 429 但未给出等待时间时使用
const defaultFloodWait = 5 * time.Second

// mapError 将 TDLib 错误转换为会话层错误
func mapError(err error) error {
	if err == nil {
		return nil
	}

	text := err.Error()
	if m := floodWaitRe.FindStringSubmatch(text); m != nil {
		return &session.RateLimitError{Wait: seconds(m[1])}
	}
	if m := retryAfterRe.FindStringSubmatch(text); m != nil {
		return &session.RateLimitError{Wait: seconds(m[1])}
	}
	if strings.HasPrefix(text, "429") || strings.Contains(text, "Too Many Requests") {
		return &session.RateLimitError{Wait: defaultFloodWait}
	}
	if strings.Contains(text, "CHANNEL_PRIVATE") || strings.Contains(text, "USER_NOT_PARTICIPANT") ||
		strings.Contains(text, "CHAT_ADMIN_REQUIRED") || strings.Contains(text, "Member not found") {
		return fmt.Errorf("%w: %s", session.ErrNotParticipant, text)
	}
	return err
}

func seconds(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultFloodWait
	}
	return time.Duration(n) * time.Second
}
