package repository

import (
	"context"
	"fmt"

	"github.com/healthwise/companion/internal/config"
)

// Stores groups the repositories backed by one storage driver.
type Stores struct {
	Driver     string
	Chat       ChatRepository
	Reminders  ReminderRepository
	Activities ActivityRepository
	close      func() error
}

// Close 释放底层连接。
func (s *Stores) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// Open 根据配置选择存储实现。
func Open(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	switch cfg.Driver {
	case config.StorageMemory, "":
		mem := NewMemoryStore()
		return &Stores{Driver: config.StorageMemory, Chat: mem, Reminders: mem, Activities: mem}, nil
	case config.StorageSQLite:
		db, err := OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:     config.StorageSQLite,
			Chat:       NewSQLiteChatRepo(db),
			Reminders:  NewSQLiteReminderRepo(db),
			Activities: NewSQLiteActivityRepo(db),
			close:      db.Close,
		}, nil
	case config.StoragePostgres:
		pool, err := ConnectPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:     config.StoragePostgres,
			Chat:       NewPostgresChatRepo(pool),
			Reminders:  NewPostgresReminderRepo(pool),
			Activities: NewPostgresActivityRepo(pool),
			close:      func() error { pool.Close(); return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
