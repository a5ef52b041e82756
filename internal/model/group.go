package model

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/wzxcff/APIScraperTG/internal/record"
)

type GroupModel struct {
	db *sqlx.DB
}

func NewGroupModel(db *sqlx.DB) *GroupModel {
	return &GroupModel{db: db}
}

// Upsert 写入目标群组，已存在时刷新非主键字段
func (m *GroupModel) Upsert(ctx context.Context, target *record.Target) error {
	if m == nil || m.db == nil {
		return ErrNoDatabase
	}

	query, args := builder().Insert(`groups`).
		Columns("group_id", "title", "username", "about", "avatar",
			"participants_count", "admins_count", "kicked_count", "banned_count", "online_count",
			"requested_at").
		Values(target.ID, target.Title, target.Username, nullable(target.About), nullable(target.Avatar),
			nullable(target.ParticipantsCount), nullable(target.AdminsCount), nullable(target.KickedCount),
			nullable(target.BannedCount), nullable(target.OnlineCount),
			target.RequestedAt).
		OnConflict(
			entsql.ConflictColumns("group_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	_, err := m.db.ExecContext(ctx, query, args...)
	return err
}
