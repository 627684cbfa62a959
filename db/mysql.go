package db

import (
	"database/sql"
	"time"

	"ai_tips_engine/config"

	_ "github.com/go-sql-driver/mysql"
)

// DB 全局数据库连接池
var DB *sql.DB

// 连接池默认值
// 查询以候选贴士和画像的短读为主，写入只有交互落库这类小事务，
// 空闲连接多留一些减少高峰期的建连开销
const (
	defaultMaxOpenConns    = 30
	defaultMaxIdleConns    = 15
	defaultConnMaxLifeMins = 30
)

// InitMySQLWithConfig 按配置初始化数据库连接池，未配置的参数用默认值
func InitMySQLWithConfig(cfg *config.Config) error {
	var err error
	DB, err = sql.Open("mysql", cfg.DB.DSN)
	if err != nil {
		return err
	}

	maxOpen := cfg.DB.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := cfg.DB.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifeMins := cfg.DB.ConnMaxLifetime
	if lifeMins <= 0 {
		lifeMins = defaultConnMaxLifeMins
	}

	DB.SetMaxOpenConns(maxOpen)
	DB.SetMaxIdleConns(maxIdle)
	DB.SetConnMaxLifetime(time.Duration(lifeMins) * time.Minute)

	return DB.Ping()
}
