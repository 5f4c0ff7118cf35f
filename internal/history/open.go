package history

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/finflow/config"
)

// Open 根据配置打开运行历史存储；driver 为空时返回空实现
func Open(ctx context.Context, cfg config.HistoryConfig, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Driver {
	case "":
		return nopStore{}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("history store connected", zap.String("driver", "redis"), zap.String("addr", cfg.Redis.Addr))
		return NewRedisStore(client, cfg.Redis.KeyPrefix), nil
	default:
		db, err := OpenDatabase(cfg.Driver, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, log)
	}
}

// OpenDatabase 根据驱动打开数据库连接并配置连接池
func OpenDatabase(driver string, dbCfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN(driver))
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN(driver))
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN(driver))
	default:
		return nil, fmt.Errorf("unsupported history driver: %s (supported: sqlite, postgres, mysql, redis)", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if dbCfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
	}
	if dbCfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
	}
	if dbCfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)
	}

	log.Info("history database connected", zap.String("driver", driver))
	return db, nil
}
