// Package model 负责抓取结果的关系型存储：建表迁移、群组/用户/地理位置/消息的去重写入以及运行记录。
package model

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wzxcff/APIScraperTG/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoDatabase 数据库连接不可用，批次将不会写入数据库
var ErrNoDatabase = errors.New("database is not available")

// Open 打开 SQLite 数据库并执行迁移
func Open(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// SQLite 只允许单个写连接
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := Migrate(db.DB); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Errorf("[Store] 关闭数据库失败, %v", closeErr)
		}
		return nil, err
	}

	logger.Infof("[Store] 数据库已就绪: %s", path)
	return db, nil
}

// Migrate 使用内嵌的 SQL 文件建表
func Migrate(db *sql.DB) error {
	if db == nil {
		return ErrNoDatabase
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("创建迁移源失败: %w", err)
	}
	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("创建迁移驱动失败: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("创建迁移实例失败: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debugf("[Store] 没有需要执行的迁移")
			return nil
		}
		return fmt.Errorf("执行迁移失败: %w", err)
	}
	logger.Infof("[Store] 数据库迁移完成")
	return nil
}

// builder 返回 SQLite 方言的语句构造器
func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

// nullable 将空指针转换为 SQL NULL
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// rollback 在事务未提交时回滚
func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Errorf("[Store] 回滚事务失败, %v", err)
	}
}
