// Package postgres управляет подключением к базе данных PostgreSQL
// и реализует на ней хранилище экономики (ledger.go).
// Используется пул соединений pgxpool: каждый запрос HTTP-сервера и бот
// берут соединение из пула, атомарные блоки держат его до COMMIT.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/config"
)

// NewPool создаёт новый пул соединений к PostgreSQL и проверяет, что база отвечает.
//
// Пример:
//
//	pool, err := postgres.NewPool(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройки пула соединений
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap(err, "подключения к базе", nil)
	}

	log.Info("Подключение к PostgreSQL установлено")
	return pool, nil
}

// Ping проверяет доступность базы (для /health).
func (s *Store) Ping(ctx context.Context) error {
	return wrap(s.db.Ping(ctx), "проверки базы", nil)
}

// Migration — одна SQL-миграция.
type Migration struct {
	Version int
	SQL     string
}

// RunMigrations создаёт таблицу версий и применяет миграции по порядку.
// Уже применённые версии пропускаются.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.Version, m.SQL)
		if err != nil {
			return fmt.Errorf("миграция %d: %w", m.Version, err)
		}
		if applied {
			log.Infof("Миграция %d применена", m.Version)
		}
	}
	return nil
}
