// Package ratelimit ограничивает частоту запросов по ключу
// (ID пользователя, IP, чат). Алгоритм — скользящее окно.
package ratelimit

import (
	"sync"
	"time"

	"serotonyl.ru/flip-bot/internal/common"
)

// Limiter ограничивает количество запросов на ключ за окно.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	clock    common.Clock

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New создаёт ограничитель и запускает фоновую очистку.
func New(limit int, window time.Duration, clock common.Clock) *Limiter {
	if clock == nil {
		clock = common.SystemClock
	}
	l := &Limiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		clock:    clock,
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow учитывает запрос и сообщает, укладывается ли он в лимит.
// Второе значение — через сколько освободится место, если нет.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	recent := l.recent(key, now)

	if len(recent) >= l.limit {
		l.requests[key] = recent
		return false, recent[0].Add(l.window).Sub(now)
	}

	l.requests[key] = append(recent, now)
	return true, 0
}

func (l *Limiter) recent(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	times := l.requests[key]
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Prune удаляет ключи без запросов в текущем окне.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	for key := range l.requests {
		recent := l.recent(key, now)
		if len(recent) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = recent
		}
	}
}

// Len — число отслеживаемых ключей.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
