package model

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wzxcff/APIScraperTG/internal/record"
)

const testGroupID = int64(-1001)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = NewGroupModel(db).Upsert(context.Background(), &record.Target{
		ID:          testGroupID,
		Username:    "group",
		Title:       "Group",
		RequestedAt: time.Now(),
	})
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sqlx.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, query, args...))
	return n
}

func sender(id int64, name string) record.Sender {
	return record.Sender{UserID: &id, FirstName: &name, IsBot: record.Bool(false)}
}

func TestOpen_MigrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM messages`))
}

func TestInsertBatch_Idempotent(t *testing.T) {
	db := openTestDB(t)
	m := NewMessageModel(db)
	ctx := context.Background()

	batch := []record.Message{
		{ID: 42, Text: "hello", Date: time.Now(), Sender: sender(7, "Alice"), Geo: &record.Geo{Latitude: 1, Longitude: 2}},
	}

	inserted, err := m.InsertBatch(ctx, testGroupID, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	inserted, err = m.InsertBatch(ctx, testGroupID, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)

	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM messages WHERE m_id = 42`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM users WHERE user_id = 7`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM geo_locations`))
}

func TestInsertBatch_PartialOverlap(t *testing.T) {
	db := openTestDB(t)
	m := NewMessageModel(db)
	ctx := context.Background()

	_, err := m.InsertBatch(ctx, testGroupID, []record.Message{
		{ID: 2, Geo: &record.Geo{Latitude: 1, Longitude: 2}},
	})
	require.NoError(t, err)

	inserted, err := m.InsertBatch(ctx, testGroupID, []record.Message{
		{ID: 3, Geo: &record.Geo{Latitude: 3, Longitude: 4}},
		{ID: 2, Geo: &record.Geo{Latitude: 1, Longitude: 2}},
		{ID: 3, Text: "dup", Geo: &record.Geo{Latitude: 5, Longitude: 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM geo_locations`))
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM geo_locations WHERE id NOT IN (SELECT geo_id FROM messages WHERE geo_id IS NOT NULL)`))
}

func TestInsertBatch_KeepsFirstWrite(t *testing.T) {
	db := openTestDB(t)
	m := NewMessageModel(db)
	ctx := context.Background()

	_, err := m.InsertBatch(ctx, testGroupID, []record.Message{{ID: 1, Text: "first", Sender: sender(7, "Alice")}})
	require.NoError(t, err)
	_, err = m.InsertBatch(ctx, testGroupID, []record.Message{{ID: 1, Text: "second", Sender: sender(7, "Changed")}})
	require.NoError(t, err)

	var text, name string
	require.NoError(t, db.Get(&text, `SELECT text FROM messages WHERE m_id = 1`))
	require.NoError(t, db.Get(&name, `SELECT first_name FROM users WHERE user_id = 7`))
	assert.Equal(t, "first", text)
	assert.Equal(t, "Alice", name)
}

func TestInsertBatch_GeoDedupWithinBatch(t *testing.T) {
	db := openTestDB(t)
	m := NewMessageModel(db)

	batch := []record.Message{
		{ID: 3, Text: "A", Geo: &record.Geo{Latitude: 1.0, Longitude: 2.0}},
		{ID: 2, Text: "B", Geo: &record.Geo{Latitude: 3.0, Longitude: 4.0}},
		{ID: 1, Text: "C", Geo: &record.Geo{Latitude: 1.0, Longitude: 2.0}},
	}
	_, err := m.InsertBatch(context.Background(), testGroupID, batch)
	require.NoError(t, err)

	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM geo_locations`))

	geoOf := func(id int64) int64 {
		var geoID int64
		require.NoError(t, db.Get(&geoID, `SELECT geo_id FROM messages WHERE m_id = ?`, id))
		return geoID
	}
	assert.Equal(t, geoOf(3), geoOf(1))
	assert.NotEqual(t, geoOf(3), geoOf(2))
}

func TestInsertBatch_GeoNotDedupedAcrossBatches(t *testing.T) {
	db := openTestDB(t)
	m := NewMessageModel(db)
	ctx := context.Background()

	_, err := m.InsertBatch(ctx, testGroupID, []record.Message{{ID: 1, Geo: &record.Geo{Latitude: 1, Longitude: 2}}})
	require.NoError(t, err)
	_, err = m.InsertBatch(ctx, testGroupID, []record.Message{{ID: 2, Geo: &record.Geo{Latitude: 1, Longitude: 2}}})
	require.NoError(t, err)

	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM geo_locations`))
}

func TestInsertBatch_NullSenderAndMedia(t *testing.T) {
	db := openTestDB(t)
	media := "group/media/x.jpg"
	edited := time.Now()

	_, err := NewMessageModel(db).InsertBatch(context.Background(), testGroupID, []record.Message{
		{ID: 5, Text: "anon", Date: edited.Add(-time.Hour), ChangedAt: &edited, Media: &media},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM messages WHERE sender_id IS NULL AND geo_id IS NULL AND media = ?`, media))
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM users`))
}

func TestInsertBatch_UnresolvedSender(t *testing.T) {
	db := openTestDB(t)
	id := int64(9)
	_, err := NewMessageModel(db).InsertBatch(context.Background(), testGroupID, []record.Message{
		{ID: 1, Sender: record.Sender{UserID: &id, FirstName: record.String("Unknown"), Error: "boom"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM users WHERE user_id = 9 AND first_name IS NULL`))
}

func TestInsertBatch_RollbackOnFailure(t *testing.T) {
	db := openTestDB(t)

	// 未登记的群组违反外键，整批回滚
	_, err := NewMessageModel(db).InsertBatch(context.Background(), 12345, []record.Message{
		{ID: 1, Sender: sender(7, "Alice"), Geo: &record.Geo{Latitude: 1, Longitude: 2}},
	})
	require.Error(t, err)

	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM geo_locations`))
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM messages`))
}

func TestInsertPinned(t *testing.T) {
	db := openTestDB(t)
	m := NewMessageModel(db)
	from := int64(7)

	pinned := []record.PinnedMessage{
		{ID: 10, Text: "rules", FromID: &from, Geo: &record.Geo{Latitude: 5, Longitude: 6}},
		{ID: 11, Text: "more", FromID: &from, Geo: &record.Geo{Latitude: 5, Longitude: 6}},
	}
	inserted, err := m.InsertPinned(context.Background(), testGroupID, pinned)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	inserted, err = m.InsertPinned(context.Background(), testGroupID, pinned)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM geo_locations`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(DISTINCT geo_id) FROM pinned_messages`))
}

func TestLastMessageID(t *testing.T) {
	db := openTestDB(t)
	m := NewMessageModel(db)
	ctx := context.Background()

	_, ok, err := m.LastMessageID(ctx, testGroupID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.InsertBatch(ctx, testGroupID, []record.Message{{ID: 100}, {ID: 99}})
	require.NoError(t, err)

	id, ok, err := m.LastMessageID(ctx, testGroupID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), id)
}

func TestGroupUpsert_Refreshes(t *testing.T) {
	db := openTestDB(t)
	about := "new about"
	err := NewGroupModel(db).Upsert(context.Background(), &record.Target{ID: testGroupID, Title: "Renamed", About: &about})
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM "groups"`))
	var title string
	require.NoError(t, db.Get(&title, `SELECT title FROM "groups" WHERE group_id = ?`, testGroupID))
	assert.Equal(t, "Renamed", title)
}

func TestNoDatabase(t *testing.T) {
	ctx := context.Background()

	_, err := NewMessageModel(nil).InsertBatch(ctx, 1, []record.Message{{ID: 1}})
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.ErrorIs(t, NewGroupModel(nil).Upsert(ctx, &record.Target{ID: 1}), ErrNoDatabase)

	var runs *RunModel
	_, err = runs.Start(ctx, "x", time.Now())
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestRunModel(t *testing.T) {
	db := openTestDB(t)
	m := NewRunModel(db)
	ctx := context.Background()

	last, err := m.Last(ctx, "@group")
	require.NoError(t, err)
	assert.Nil(t, last)

	id, err := m.Start(ctx, "@group", time.Now())
	require.NoError(t, err)

	incomplete, err := m.GetIncompleteRuns(ctx)
	require.NoError(t, err)
	require.Len(t, incomplete, 1)
	assert.Equal(t, id, incomplete[0].ID)

	require.NoError(t, m.Finish(ctx, id, RunStatusFailed, 12, "boom"))

	last, err = m.Last(ctx, "@group")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, RunStatusFailed, last.Status)
	assert.Equal(t, 12, last.MessagesCount)
	assert.True(t, last.FinishedAt.Valid)
	assert.Equal(t, "boom", last.ErrorMessage.String)

	incomplete, err = m.GetIncompleteRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}
