package svc

import (
	"github.com/jmoiron/sqlx"

	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/resilience"
)

type ServiceContext struct {
	Config       *config.Config
	DB           *sqlx.DB
	GroupModel   *model.GroupModel
	MessageModel *model.MessageModel
	RunModel     *model.RunModel
	Caller       *resilience.Caller
}

// NewServiceContext 创建服务上下文
// 数据库未启用或打开失败时 DB 为 nil，各模型返回 model.ErrNoDatabase，抓取结果只保存为 JSON
func NewServiceContext(c *config.Config) *ServiceContext {
	var db *sqlx.DB
	if c.Database.Enable {
		var err error
		db, err = model.Open(c.Database.Path)
		if err != nil {
			logger.Errorf("打开数据库失败，仅保存 JSON 归档, %v", err)
			db = nil
		}
	} else {
		logger.Infof("数据库未启用，仅保存 JSON 归档")
	}

	svcCtx := &ServiceContext{
		Config:       c,
		DB:           db,
		GroupModel:   model.NewGroupModel(db),
		MessageModel: model.NewMessageModel(db),
		RunModel:     model.NewRunModel(db),
		Caller:       resilience.NewCaller(c.Scraper.MaxAttempts),
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if svcCtx.DB == nil {
		return
	}
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
