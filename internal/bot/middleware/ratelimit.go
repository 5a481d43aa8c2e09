package middleware

import (
	"sync"
	"time"
)

// RateLimiter ограничивает количество команд от одного Telegram-пользователя.
// Скользящее окно: в любой отрезок длиной window не больше limit команд.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[int64][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter создаёт ограничитель. limit <= 0 отключает ограничение.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		hits:   make(map[int64][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if limit > 0 {
		go rl.cleanupLoop(5 * time.Minute)
	}
	return rl
}

// Close останавливает фоновую очистку. Вызывать на shutdown.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow учитывает запрос и сообщает, укладывается ли он в лимит.
// Отклонённый запрос в окно не записывается.
func (rl *RateLimiter) Allow(tgUserID int64) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := prune(rl.hits[tgUserID], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.hits[tgUserID] = recent
		return false
	}
	rl.hits[tgUserID] = append(recent, now)
	return true
}

// prune отбрасывает отметки не позже cutoff. Отметки идут по возрастанию.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for id, times := range rl.hits {
		recent := prune(times, cutoff)
		if len(recent) == 0 {
			delete(rl.hits, id)
			continue
		}
		rl.hits[id] = recent
	}
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}
