// Package scraper 负责一次抓取运行的编排：解析目标、分阶段抓取消息/置顶/成员/管理日志，
// 分批写入数据库并输出 JSON 归档。
package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wzxcff/APIScraperTG/internal/archive"
	"github.com/wzxcff/APIScraperTG/internal/checkpoint"
	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/enrich"
	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/record"
	"github.com/wzxcff/APIScraperTG/internal/resilience"
	"github.com/wzxcff/APIScraperTG/internal/session"
)

// State 运行状态
type State string

const (
	StateIdle           State = "idle"
	StateConnected      State = "connected"
	StateDirectoryReady State = "directory_ready"
	StateFetching       State = "fetching"
	StateDraining       State = "draining"
	StateClosed         State = "closed"
)

type GroupStore interface {
	Upsert(ctx context.Context, target *record.Target) error
}

type MessageStore interface {
	InsertBatch(ctx context.Context, groupID int64, messages []record.Message) (int64, error)
	InsertPinned(ctx context.Context, groupID int64, pinned []record.PinnedMessage) (int64, error)
	LastMessageID(ctx context.Context, groupID int64) (int64, bool, error)
}

type RunStore interface {
	Last(ctx context.Context, target string) (*model.ScrapeRun, error)
	Start(ctx context.Context, target string, startedAt time.Time) (int64, error)
	Finish(ctx context.Context, id int64, status model.RunStatus, messagesCount int, errorMsg string) error
}

// Report 一次运行的结果摘要
type Report struct {
	Target       string
	ChatType     ChatType
	Status       model.RunStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	Messages     int
	Pinned       int
	Participants int
	AdminActions int
	Err          error

	// Previous 同一目标的上一次运行，没有记录时为 nil
	Previous *model.ScrapeRun
}

type Scraper struct {
	sess     session.Session
	caller   *resilience.Caller
	enricher *enrich.Enricher
	groups   GroupStore
	messages MessageStore
	runs     RunStore
	config   *config.Scraper
	folders  archive.Folders
	token    *Token

	// KeepSession 为 true 时运行结束后不断开会话，供定时任务复用
	KeepSession bool

	stateMu  sync.RWMutex
	state    State
	entity   *session.Entity
	target   *record.Target
	chatType ChatType
}

func NewScraper(
	sess session.Session,
	caller *resilience.Caller,
	groups GroupStore,
	messages MessageStore,
	runs RunStore,
	cfg *config.Scraper,
	token *Token,
) *Scraper {
	if token == nil {
		token = NewToken()
	}
	return &Scraper{
		sess:     sess,
		caller:   caller,
		enricher: enrich.NewEnricher(sess, caller),
		groups:   groups,
		messages: messages,
		runs:     runs,
		config:   cfg,
		folders:  archive.NewFolders(cfg.OutputDir, cfg.Target),
		token:    token,
		state:    StateIdle,
	}
}

func (s *Scraper) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Scraper) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
	logger.Debugf("[Scraper] 状态: %s", state)
}

func (s *Scraper) Folders() archive.Folders {
	return s.folders
}

func (s *Scraper) cancelled(phase string) bool {
	if s.token.Cancelled() {
		logger.Infof("[Scraper] %s: 已被用户中断", phase)
		return true
	}
	return false
}

// Initialize 连接会话并创建目录
func (s *Scraper) Initialize(ctx context.Context) error {
	if err := s.caller.Do(ctx, "connect", s.sess.Connect); err != nil {
		return err
	}
	s.setState(StateConnected)

	if err := s.folders.Create(); err != nil {
		return err
	}
	s.setState(StateDirectoryReady)
	return nil
}

// Close 断开会话
func (s *Scraper) Close(ctx context.Context) {
	if !s.KeepSession {
		if err := s.sess.Disconnect(ctx); err != nil {
			logger.Warnf("[Scraper] 断开连接失败: %v", err)
		}
	}
	s.setState(StateClosed)
}

// Run 按配置的阶段顺序执行一次完整抓取
// 只有目标解析失败会使运行失败，其他阶段的错误记录日志后继续
func (s *Scraper) Run(ctx context.Context) (report *Report, err error) {
	s.entity, s.target, s.chatType = nil, nil, ""
	s.enricher.Reset()
	report = &Report{Target: s.config.Target, StartedAt: time.Now()}

	if previous, err := s.runs.Last(ctx, s.config.Target); err == nil && previous != nil {
		report.Previous = previous
		logger.Infof("[Scraper] 上次运行: %s, 状态: %s, 消息: %d",
			previous.StartedAt.Format("2006-01-02 15:04:05"), previous.Status, previous.MessagesCount)
	}

	runID, runErr := s.runs.Start(ctx, s.config.Target, report.StartedAt)
	if runErr != nil && !errors.Is(runErr, model.ErrNoDatabase) {
		logger.Warnf("[Scraper] 创建运行记录失败: %v", runErr)
	}

	defer func() {
		report.FinishedAt = time.Now()
		report.Err = err
		switch {
		case err != nil:
			report.Status = model.RunStatusFailed
		case s.token.Cancelled():
			report.Status = model.RunStatusCancelled
		default:
			report.Status = model.RunStatusCompleted
		}

		if runErr == nil {
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}
			if finishErr := s.runs.Finish(context.WithoutCancel(ctx), runID, report.Status, report.Messages, errMsg); finishErr != nil {
				logger.Warnf("[Scraper] 更新运行记录失败: %v", finishErr)
			}
		}
		logger.Infof("[Scraper] 运行结束: %s, 状态: %s, 消息: %d, 置顶: %d, 成员: %d, 管理日志: %d",
			report.Target, report.Status, report.Messages, report.Pinned, report.Participants, report.AdminActions)
	}()

	if err = s.Initialize(ctx); err != nil {
		return report, err
	}
	defer s.Close(context.WithoutCancel(ctx))

	s.setState(StateFetching)
	if _, err = s.resolveEntity(ctx); err != nil {
		return report, fmt.Errorf("解析目标 %s 失败: %w", s.config.Target, err)
	}
	if chatType, typeErr := s.ChatType(ctx); typeErr != nil {
		logger.Warnf("[Scraper] 解析目标类型失败: %v", typeErr)
	} else {
		report.ChatType = chatType
	}

	if s.config.HasPhase(config.PhaseInfo) && !s.cancelled("fetch_target_info") {
		target, err := s.FetchTargetInfo(ctx, s.config.FullInfo)
		if err != nil {
			logger.Errorf("[Scraper] 获取目标信息失败: %v", err)
		} else if target != nil {
			s.dump(archive.TargetInfoFile, target)
		}
	}

	if s.config.HasPhase(config.PhaseMessages) && !s.cancelled("fetch_messages") {
		offset := s.startOffset(ctx)
		result, err := s.FetchMessages(ctx, s.config.Limit, offset)
		if err != nil {
			logger.Errorf("[Scraper] 获取消息失败: %v", err)
		}
		switch {
		case result == nil:
		case s.config.Resume && len(result.Messages) == 0:
			// 已到达历史末尾，保留上次的断点
			logger.Infof("[Scraper] offset %d 之前没有更多消息, 保留现有的 %s", offset, archive.MessagesFile)
		default:
			report.Messages = len(result.Messages)
			s.dump(archive.MessagesFile, result)
		}
	}

	if s.config.HasPhase(config.PhasePinned) && !s.cancelled("get_pinned_messages") {
		pinned, err := s.GetPinnedMessages(ctx)
		if err != nil {
			logger.Errorf("[Scraper] 获取置顶消息失败: %v", err)
		}
		if pinned != nil {
			report.Pinned = len(pinned)
			s.dump(archive.PinnedMessagesFile, pinned)
		}
	}

	if s.config.HasPhase(config.PhaseMembers) && !s.cancelled("get_members") {
		members, err := s.GetMembers(ctx)
		if err != nil {
			logger.Errorf("[Scraper] 获取成员失败: %v", err)
		}
		if members != nil {
			report.Participants = len(members.Participants)
			s.dump(archive.ParticipantsFile, members)
		}
	}

	if s.config.HasPhase(config.PhaseAdminLog) && !s.cancelled("get_admin_log") {
		logs, err := s.GetAdminLog(ctx)
		if err != nil {
			logger.Errorf("[Scraper] 获取管理日志失败: %v", err)
		}
		if logs != nil {
			report.AdminActions = len(logs)
			s.dump(archive.AdminLogsFile, logs)
		}
	}

	s.setState(StateDraining)
	return report, nil
}

// startOffset 续抓时优先读取上次的 messages.json，其次读取数据库
func (s *Scraper) startOffset(ctx context.Context) int64 {
	if !s.config.Resume {
		return s.config.Offset
	}

	if id, ok := checkpoint.LastMessageID(s.folders.JSONPath(archive.MessagesFile)); ok {
		logger.Infof("[Scraper] 从归档继续抓取, offset: %d", id)
		return id
	}

	if s.entity != nil {
		id, ok, err := s.messages.LastMessageID(ctx, s.entity.ID)
		if err != nil && !errors.Is(err, model.ErrNoDatabase) {
			logger.Warnf("[Scraper] 读取数据库断点失败: %v", err)
		}
		if ok {
			logger.Infof("[Scraper] 从数据库继续抓取, offset: %d", id)
			return id
		}
	}

	logger.Infof("[Scraper] 未找到断点, 使用默认 offset: %d", s.config.Offset)
	return s.config.Offset
}

func (s *Scraper) resolveEntity(ctx context.Context) (*session.Entity, error) {
	if s.entity != nil {
		return s.entity, nil
	}

	entity, err := resilience.Call(ctx, s.caller, "get_entity", func(ctx context.Context) (*session.Entity, error) {
		return s.sess.ResolveEntity(ctx, s.config.Target)
	})
	if err != nil {
		return nil, err
	}
	s.entity = entity
	return entity, nil
}

func (s *Scraper) dump(name string, data any) {
	path, err := archive.Dump(s.folders.Jsons, name, data)
	if err != nil {
		logger.Errorf("[Scraper] 保存 %s 失败: %v", name, err)
		return
	}
	logger.Infof("[Scraper] 已保存 %s", path)
}
