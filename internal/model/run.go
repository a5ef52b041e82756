package model

import (
	"context"
	"database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
)

type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusFailed     RunStatus = "failed"
)

// ScrapeRun 一次抓取运行的记录
type ScrapeRun struct {
	ID            int64          `db:"id"`
	Target        string         `db:"target"`
	StartedAt     time.Time      `db:"started_at"`
	FinishedAt    sql.NullTime   `db:"finished_at"`
	Status        RunStatus      `db:"status"`
	MessagesCount int            `db:"messages_count"`
	ErrorMessage  sql.NullString `db:"error_message"`
}

var runColumns = []string{"id", "target", "started_at", "finished_at", "status", "messages_count", "error_message"}

type RunModel struct {
	db *sqlx.DB
}

func NewRunModel(db *sqlx.DB) *RunModel {
	return &RunModel{db: db}
}

// Start 创建 in_progress 状态的运行记录
func (m *RunModel) Start(ctx context.Context, target string, startedAt time.Time) (int64, error) {
	if m == nil || m.db == nil {
		return 0, ErrNoDatabase
	}

	query, args := builder().Insert("scrape_runs").
		Columns("target", "started_at", "status").
		Values(target, startedAt, string(RunStatusInProgress)).
		Returning("id").
		Query()

	var id int64
	if err := m.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Finish 标记运行结束
func (m *RunModel) Finish(ctx context.Context, id int64, status RunStatus, messagesCount int, errorMsg string) error {
	if m == nil || m.db == nil {
		return ErrNoDatabase
	}

	update := builder().Update("scrape_runs").
		Set("status", string(status)).
		Set("finished_at", time.Now()).
		Set("messages_count", messagesCount).
		Where(entsql.EQ("id", id))
	if errorMsg != "" {
		update.Set("error_message", errorMsg)
	}

	query, args := update.Query()
	_, err := m.db.ExecContext(ctx, query, args...)
	return err
}

// Last 返回目标最近一次运行，不存在时返回 nil
func (m *RunModel) Last(ctx context.Context, target string) (*ScrapeRun, error) {
	if m == nil || m.db == nil {
		return nil, ErrNoDatabase
	}

	query, args := builder().Select(runColumns...).
		From(entsql.Table("scrape_runs")).
		Where(entsql.EQ("target", target)).
		OrderBy(entsql.Desc("id")).
		Limit(1).
		Query()

	var runs []*ScrapeRun
	if err := m.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// GetIncompleteRuns 查询所有仍处于 in_progress 的运行
func (m *RunModel) GetIncompleteRuns(ctx context.Context) ([]*ScrapeRun, error) {
	if m == nil || m.db == nil {
		return nil, ErrNoDatabase
	}

	query, args := builder().Select(runColumns...).
		From(entsql.Table("scrape_runs")).
		Where(entsql.EQ("status", string(RunStatusInProgress))).
		OrderBy("id").
		Query()

	var runs []*ScrapeRun
	if err := m.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, err
	}
	return runs, nil
}
