// Package cache — кэш сводной статистики админки в Redis.
// Кэш необязателен: без REDIS_ADDR статистика считается на каждый запрос.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/config"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// StatsKey — ключ сводной статистики.
const StatsKey = "flip:admin:stats"

// Stats хранит статистику в Redis с TTL.
type Stats struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect подключается к Redis и проверяет соединение.
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}

	log.WithField("addr", cfg.RedisAddr).Info("Подключено к Redis")
	return client, nil
}

// NewStats создаёт кэш статистики.
func NewStats(client *redis.Client, ttl time.Duration) *Stats {
	return &Stats{client: client, ttl: ttl}
}

// Get возвращает статистику из кэша. Промах и ошибки Redis — (nil, false).
func (s *Stats) Get(ctx context.Context) (*ledger.Stats, bool) {
	raw, err := s.client.Get(ctx, StatsKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).Warn("Не удалось прочитать статистику из Redis")
		}
		return nil, false
	}
	var st ledger.Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		log.WithError(err).Warn("Повреждённая статистика в Redis")
		return nil, false
	}
	return &st, true
}

// Set кладёт статистику в кэш.
func (s *Stats) Set(ctx context.Context, st *ledger.Stats) {
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, StatsKey, raw, s.ttl).Err(); err != nil {
		log.WithError(err).Warn("Не удалось сохранить статистику в Redis")
	}
}

// Invalidate сбрасывает кэш после правок каталога.
func (s *Stats) Invalidate(ctx context.Context) {
	if err := s.client.Del(ctx, StatsKey).Err(); err != nil {
		log.WithError(err).Warn("Не удалось сбросить статистику в Redis")
	}
}
