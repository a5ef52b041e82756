package svc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/record"
)

func TestNewServiceContext_DatabaseDisabled(t *testing.T) {
	c := &config.Config{}
	c.Scraper.MaxAttempts = 2

	svcCtx := NewServiceContext(c)
	defer svcCtx.Close()

	assert.Nil(t, svcCtx.DB)
	assert.Equal(t, 2, svcCtx.Caller.MaxAttempts)

	_, err := svcCtx.MessageModel.InsertBatch(context.Background(), 1, []record.Message{{ID: 1}})
	assert.ErrorIs(t, err, model.ErrNoDatabase)
	_, err = svcCtx.RunModel.Start(context.Background(), "@group", time.Now())
	assert.ErrorIs(t, err, model.ErrNoDatabase)
}

func TestNewServiceContext_DatabaseEnabled(t *testing.T) {
	c := &config.Config{}
	c.Database.Enable = true
	c.Database.Path = filepath.Join(t.TempDir(), "db", "archive.db")

	svcCtx := NewServiceContext(c)
	defer svcCtx.Close()
	require.NotNil(t, svcCtx.DB)

	ctx := context.Background()
	require.NoError(t, svcCtx.GroupModel.Upsert(ctx, &record.Target{ID: 1, Title: "Group", RequestedAt: time.Now()}))
	inserted, err := svcCtx.MessageModel.InsertBatch(ctx, 1, []record.Message{{ID: 1, Text: "hi", Date: time.Now()}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
}
