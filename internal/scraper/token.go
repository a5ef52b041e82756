package scraper

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/wzxcff/APIScraperTG/internal/logger"
)

// Token 协作式取消标志，由监听协程设置，抓取流程在每次远端调用前轮询
type Token struct {
	cancelled atomic.Bool
}

func NewToken() *Token {
	return &Token{}
}

func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

func (t *Token) Reset() {
	t.cancelled.Store(false)
}

// stopCommands 操作员输入这些命令时停止抓取
var stopCommands = map[string]struct{}{
	"stop": {},
	"q":    {},
}

// ListenStdin 逐行读取操作员输入，读到停止命令时设置取消标志
// 输入结束或 ctx 取消时返回
func ListenStdin(ctx context.Context, r io.Reader, token *Token) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			command := strings.ToLower(strings.TrimSpace(line))
			if _, stop := stopCommands[command]; stop {
				logger.Infof("[Scraper] 收到停止命令，当前请求完成后停止抓取")
				token.Cancel()
			}
		}
	}
}
