package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/common/config"

	_ "github.com/lib/pq"
)

// defaultPingTimeout 调用方 ctx 没有截止时间时的连通性检查超时
const defaultPingTimeout = 5 * time.Second

// NewPostgresDB 创建PostgreSQL数据库连接（连接池按配置设置，并检查连通性）
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := prepare(ctx, db, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// prepare 设置连接池参数并 ping
// 报警历史只有单个写入者和偶尔的查询，连接数保持很小。
func prepare(ctx context.Context, db *sql.DB, cfg *config.DatabaseConfig) error {
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if _, ok := ctx.Deadline(); !ok {
		timeout := defaultPingTimeout
		if cfg.ConnectTimeout > 0 {
			timeout = cfg.ConnectTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database %s@%s:%d/%s: %w", cfg.User, cfg.Host, cfg.Port, cfg.Database, err)
	}
	return nil
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
