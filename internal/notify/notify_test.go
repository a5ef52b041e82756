package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/scraper"
	"github.com/wzxcff/APIScraperTG/internal/session/sessiontest"
)

func TestNotify_Disabled(t *testing.T) {
	fake := &sessiontest.Fake{}
	n := NewNotifier(fake, &config.Notify{Enable: false, UserIds: []int64{1}})

	require.NoError(t, n.Notify(context.Background(), "hello"))
	assert.Equal(t, 0, fake.Calls("SendText"))
}

func TestNotify_SendsToEveryUser(t *testing.T) {
	fake := &sessiontest.Fake{}
	n := NewNotifier(fake, &config.Notify{Enable: true, UserIds: []int64{1, 2}})

	require.NoError(t, n.Notify(context.Background(), "hello"))
	require.Len(t, fake.Sent, 2)
	assert.Equal(t, int64(1), fake.Sent[0].UserID)
	assert.Equal(t, int64(2), fake.Sent[1].UserID)
	assert.Equal(t, "hello", fake.Sent[1].Text)
}

func TestNotify_FailureDoesNotStopOthers(t *testing.T) {
	fake := &sessiontest.Fake{}
	fake.Hook = func(method string, call int) error {
		if method == "SendText" && call == 1 {
			return errors.New("chat not found")
		}
		return nil
	}
	n := NewNotifier(fake, &config.Notify{Enable: true, UserIds: []int64{1, 2}})

	err := n.Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "用户 1")
	require.Len(t, fake.Sent, 1)
	assert.Equal(t, int64(2), fake.Sent[0].UserID)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short"))

	para := strings.Repeat("a", 3000)
	parts := splitMessage(para + "\n\n" + para)
	require.Len(t, parts, 2)
	assert.Equal(t, para, parts[0])

	long := strings.Repeat("消", 3000)
	parts = splitMessage(long)
	require.Len(t, parts, 3)
	for _, part := range parts {
		assert.LessOrEqual(t, len(part), MaxMessageLength)
	}
	assert.Equal(t, long, strings.Join(parts, ""))
}

func TestFormatReport(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	report := &scraper.Report{
		Target:     "@group",
		ChatType:   scraper.ChatMegaGroup,
		Status:     model.RunStatusFailed,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Messages:   12,
		Err:        errors.New("boom"),
		Previous:   &model.ScrapeRun{StartedAt: start.Add(-time.Hour), Status: model.RunStatusCompleted, MessagesCount: 3},
	}

	text := FormatReport(report)
	assert.Contains(t, text, "@group")
	assert.Contains(t, text, "failed")
	assert.Contains(t, text, "消息: 12")
	assert.Contains(t, text, "1m30s")
	assert.Contains(t, text, "错误: boom")
	assert.Contains(t, text, "上次运行: 2024-05-01 09:00:00, 状态: completed, 消息: 3")
	assert.Empty(t, FormatReport(nil))
}
