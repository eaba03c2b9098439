// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает обслуживание хранилища: удаление старых
// дневных счётчиков игр и очистку ограничителя запросов.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/common"
)

// CounterPruner удаляет дневные счётчики игр старше даты.
type CounterPruner interface {
	PruneDailyCounters(ctx context.Context, before time.Time) (int64, error)
}

// KeyPruner удаляет неактивные ключи ограничителя запросов.
type KeyPruner interface {
	Prune()
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron      *cron.Cron
	schedule  string
	counters  CounterPruner
	keys      KeyPruner
	retention int
	clock     common.Clock
}

// NewScheduler создаёт планировщик. Расписание считается в UTC, как и игровые сутки.
// keys может быть nil.
func NewScheduler(schedule string, retentionDays int, counters CounterPruner, keys KeyPruner, clock common.Clock) *Scheduler {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		schedule:  schedule,
		counters:  counters,
		keys:      keys,
		retention: retentionDays,
		clock:     clock,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		log.Info("[CRON] Очистка дневных счётчиков")
		if _, err := s.Prune(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка очистки")
		}
	})
	if err != nil {
		return fmt.Errorf("некорректное расписание %q: %w", s.schedule, err)
	}

	s.cron.Start()
	log.WithField("schedule", s.schedule).Info("Планировщик задач запущен (UTC)")
	return nil
}

// Prune удаляет счётчики старше срока хранения. Сегодняшние и вчерашние
// счётчики не трогаются при любом сроке хранения.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	days := s.retention
	if days < 1 {
		days = 1
	}
	before := common.UTCDate(s.clock()).AddDate(0, 0, -days)

	n, err := s.counters.PruneDailyCounters(ctx, before)
	if err != nil {
		return 0, err
	}
	if s.keys != nil {
		s.keys.Prune()
	}
	log.WithFields(log.Fields{
		"deleted": n,
		"before":  before.Format(time.DateOnly),
	}).Info("[CRON] Дневные счётчики очищены")
	return n, nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
