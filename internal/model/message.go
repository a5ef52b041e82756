package model

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/record"
)

const (
	tableMessages       = "messages"
	tablePinnedMessages = "pinned_messages"
)

type MessageModel struct {
	db *sqlx.DB
}

func NewMessageModel(db *sqlx.DB) *MessageModel {
	return &MessageModel{db: db}
}

// userRow 待写入 users 表的发送者
type userRow struct {
	id        int64
	firstName *string
	lastName  *string
	username  *string
	avatar    *string
	isBot     *bool
}

// messageRow messages 与 pinned_messages 共用的行
type messageRow struct {
	id        int64
	text      string
	date      time.Time
	changedAt *time.Time
	sender    *userRow
	media     *string
	geo       *record.Geo
}

type geoKey struct {
	latitude  float64
	longitude float64
}

// InsertBatch 在一个事务中写入一批消息，返回实际新增的消息行数
func (m *MessageModel) InsertBatch(ctx context.Context, groupID int64, messages []record.Message) (int64, error) {
	rows := make([]messageRow, 0, len(messages))
	for _, msg := range messages {
		row := messageRow{
			id:        msg.ID,
			text:      msg.Text,
			date:      msg.Date,
			changedAt: msg.ChangedAt,
			media:     msg.Media,
			geo:       msg.Geo,
		}
		if msg.Sender.UserID != nil {
			sender := &userRow{id: *msg.Sender.UserID}
			// 解析失败的发送者只写入ID，资料留给之后成功的解析
			if msg.Sender.Error == "" {
				sender.firstName = msg.Sender.FirstName
				sender.lastName = msg.Sender.LastName
				sender.username = msg.Sender.Username
				sender.avatar = msg.Sender.Avatar
				sender.isBot = msg.Sender.IsBot
			}
			row.sender = sender
		}
		rows = append(rows, row)
	}
	return m.insert(ctx, tableMessages, groupID, rows)
}

// InsertPinned 在一个事务中写入一批置顶消息
func (m *MessageModel) InsertPinned(ctx context.Context, groupID int64, pinned []record.PinnedMessage) (int64, error) {
	rows := make([]messageRow, 0, len(pinned))
	for _, msg := range pinned {
		row := messageRow{
			id:        msg.ID,
			text:      msg.Text,
			date:      msg.Date,
			changedAt: msg.ChangedAt,
			geo:       msg.Geo,
		}
		if msg.FromID != nil {
			row.sender = &userRow{id: *msg.FromID}
		}
		rows = append(rows, row)
	}
	return m.insert(ctx, tablePinnedMessages, groupID, rows)
}

// insert 依次写入用户、地理位置和消息，任一语句失败则整批回滚
func (m *MessageModel) insert(ctx context.Context, table string, groupID int64, rows []messageRow) (int64, error) {
	if m == nil || m.db == nil {
		return 0, ErrNoDatabase
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer rollback(tx)

	rows, err = freshRows(ctx, tx, table, groupID, rows)
	if err != nil {
		return 0, fmt.Errorf("查询已存在的 %s 失败: %w", table, err)
	}
	if len(rows) == 0 {
		logger.Debugf("[Store] %s 批次已全部存在, group: %d", table, groupID)
		return 0, nil
	}

	if err := insertUsers(ctx, tx, rows); err != nil {
		return 0, fmt.Errorf("写入用户失败: %w", err)
	}

	geoIDs, err := insertGeoLocations(ctx, tx, groupID, rows)
	if err != nil {
		return 0, fmt.Errorf("写入地理位置失败: %w", err)
	}

	insert := builder().Insert(table)
	if table == tableMessages {
		insert.Columns("m_id", "group_id", "text", "date", "changed_at", "sender_id", "media", "geo_id")
	} else {
		insert.Columns("m_id", "group_id", "text", "date", "changed_at", "sender_id", "geo_id")
	}
	for i, row := range rows {
		var senderID, geoID any
		if row.sender != nil {
			senderID = row.sender.id
		}
		if id, ok := geoIDs[i]; ok {
			geoID = id
		}

		if table == tableMessages {
			insert.Values(row.id, groupID, row.text, row.date, nullable(row.changedAt), senderID, nullable(row.media), geoID)
		} else {
			insert.Values(row.id, groupID, row.text, row.date, nullable(row.changedAt), senderID, geoID)
		}
	}
	query, args := insert.OnConflict(entsql.DoNothing()).Query()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("写入 %s 失败: %w", table, err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Debugf("[Store] %s 写入 %d/%d 条, group: %d", table, inserted, len(rows), groupID)
	return inserted, nil
}

// freshRows 过滤掉表中已存在的消息以及批次内重复的消息ID，保留首次出现的行
func freshRows(ctx context.Context, tx *sqlx.Tx, table string, groupID int64, rows []messageRow) ([]messageRow, error) {
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.id)
	}
	query, args := builder().Select("m_id").
		From(entsql.Table(table)).
		Where(entsql.And(entsql.EQ("group_id", groupID), entsql.In("m_id", ids...))).
		Query()

	var existing []int64
	if err := tx.SelectContext(ctx, &existing, query, args...); err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(rows))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	fresh := make([]messageRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.id]; ok {
			continue
		}
		seen[row.id] = struct{}{}
		fresh = append(fresh, row)
	}
	return fresh, nil
}

// insertUsers 写入批次中出现的发送者，已存在的用户保持不变
func insertUsers(ctx context.Context, tx *sqlx.Tx, rows []messageRow) error {
	seen := make(map[int64]struct{})
	insert := builder().Insert("users").
		Columns("user_id", "first_name", "last_name", "username", "avatar", "is_bot")
	for _, row := range rows {
		if row.sender == nil {
			continue
		}
		if _, ok := seen[row.sender.id]; ok {
			continue
		}
		seen[row.sender.id] = struct{}{}

		u := row.sender
		insert.Values(u.id, nullable(u.firstName), nullable(u.lastName), nullable(u.username), nullable(u.avatar), nullable(u.isBot))
	}
	if len(seen) == 0 {
		return nil
	}

	query, args := insert.OnConflict(entsql.DoNothing()).Query()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// insertGeoLocations 按坐标在批次内去重，返回行下标到 geo_locations.id 的映射
func insertGeoLocations(ctx context.Context, tx *sqlx.Tx, groupID int64, rows []messageRow) (map[int]int64, error) {
	cache := make(map[geoKey]int64)
	ids := make(map[int]int64)
	for i, row := range rows {
		if row.geo == nil {
			continue
		}

		key := geoKey{latitude: row.geo.Latitude, longitude: row.geo.Longitude}
		if id, ok := cache[key]; ok {
			ids[i] = id
			continue
		}

		var senderID any
		if row.sender != nil {
			senderID = row.sender.id
		}
		query, args := builder().Insert("geo_locations").
			Columns("m_id", "group_id", "sender_id", "latitude", "longitude").
			Values(row.id, groupID, senderID, key.latitude, key.longitude).
			Returning("id").
			Query()

		var id int64
		if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return nil, err
		}
		cache[key] = id
		ids[i] = id
	}
	return ids, nil
}

// LastMessageID 返回数据库中该群组最新的消息ID
func (m *MessageModel) LastMessageID(ctx context.Context, groupID int64) (int64, bool, error) {
	if m == nil || m.db == nil {
		return 0, false, ErrNoDatabase
	}

	query, args := builder().Select("m_id").
		From(entsql.Table(tableMessages)).
		Where(entsql.EQ("group_id", groupID)).
		OrderBy(entsql.Desc("m_id")).
		Limit(1).
		Query()

	var ids []int64
	if err := m.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}
