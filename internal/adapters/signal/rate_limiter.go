package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Lobby/internal/domain"
)

type rateKey struct {
	channel domain.ChannelID
	user    domain.UserID
}

// RateLimiter is a sliding-window limit on inbound envelopes per member.
// A non-positive limit disables it.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[rateKey][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[rateKey][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(channel domain.ChannelID, user domain.UserID) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := rateKey{channel: channel, user: user}
	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}
	rl.history[key] = append(fresh, now)
	return true
}

// Forget drops the member's history once its connection is gone.
func (rl *RateLimiter) Forget(channel domain.ChannelID, user domain.UserID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, rateKey{channel: channel, user: user})
}
