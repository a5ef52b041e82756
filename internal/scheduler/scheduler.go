package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/notify"
	"github.com/wzxcff/APIScraperTG/internal/scraper"
)

// interruptedMessage 程序退出时未结束的运行在重启后标记为失败
const interruptedMessage = "interrupted before completion"

// Runner 执行一次抓取运行
type Runner interface {
	Run(ctx context.Context) (*scraper.Report, error)
}

// RunLedger 运行记录
type RunLedger interface {
	GetIncompleteRuns(ctx context.Context) ([]*model.ScrapeRun, error)
	Finish(ctx context.Context, id int64, status model.RunStatus, messagesCount int, errorMsg string) error
}

type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	notifier *notify.Notifier
	runs     RunLedger
	token    *scraper.Token
	config   *config.Schedule
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

// cronLogger 将 cron 内部日志转发到 logger
type cronLogger struct{}

func (cronLogger) Printf(format string, args ...any) {
	logger.Debugf("[Scheduler] "+format, args...)
}

func NewScheduler(
	runner Runner,
	notifier *notify.Notifier,
	runs RunLedger,
	token *scraper.Token,
	cfg *config.Schedule,
) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cron.PrintfLogger(cronLogger{})),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(cronLogger{}))),
		),
		runner:   runner,
		notifier: notifier,
		runs:     runs,
		token:    token,
		config:   cfg,
	}
}

// Start 恢复未结束的运行记录并启动定时任务
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.mu.Unlock()

	s.RecoverIncompleteRuns(ctx)

	// 注册抓取任务
	_, err := s.cron.AddFunc(s.config.Cron, s.runScheduled)
	if err != nil {
		return fmt.Errorf("注册抓取任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，抓取任务: %s", s.config.Cron)
	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

// RecoverIncompleteRuns 将上次退出时仍为 in_progress 的运行标记为失败
func (s *Scheduler) RecoverIncompleteRuns(ctx context.Context) {
	runs, err := s.runs.GetIncompleteRuns(ctx)
	if errors.Is(err, model.ErrNoDatabase) {
		return
	}
	if err != nil {
		logger.Errorf("[Scheduler] 查询未完成的运行失败: %v", err)
		return
	}

	for _, run := range runs {
		logger.Warnf("[Scheduler] 运行 %d (%s, 开始于 %s) 未正常结束，标记为失败",
			run.ID, run.Target, run.StartedAt.Format("2006-01-02 15:04:05"))
		if err := s.runs.Finish(ctx, run.ID, model.RunStatusFailed, run.MessagesCount, interruptedMessage); err != nil {
			logger.Errorf("[Scheduler] 更新运行 %d 失败: %v", run.ID, err)
		}
	}
}

// RunOnce 执行一次抓取并发送报告
func (s *Scheduler) RunOnce(ctx context.Context) (*scraper.Report, error) {
	s.token.Reset()

	report, err := s.runner.Run(ctx)
	if report != nil && s.notifier != nil {
		if notifyErr := s.notifier.Notify(ctx, notify.FormatReport(report)); notifyErr != nil {
			logger.Warnf("[Scheduler] 发送抓取报告失败: %v", notifyErr)
		}
	}
	return report, err
}

// runScheduled 定时任务入口（cron 触发）
func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	logger.Infof("[Scheduler] 开始执行定时抓取")
	if _, err := s.RunOnce(ctx); err != nil {
		logger.Errorf("[Scheduler] 定时抓取失败: %v", err)
		return
	}
	logger.Infof("[Scheduler] 定时抓取完成")
}
