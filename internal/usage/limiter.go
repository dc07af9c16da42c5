// Package usage enforces per-user daily quotas.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/finance-capture/internal/store"
	"github.com/rs/zerolog"
)

// DayLayout is the format of the day key.
const DayLayout = "2006-01-02"

// Limiter counts voice notes per user per calendar day.
//
// CheckAndIncrement is serialized within the process. The store read and
// write are not transactional, so two processes sharing a store may still
// admit a user one over the limit.
type Limiter struct {
	mu    sync.Mutex
	store store.UsageStore
	max   int
	loc   *time.Location
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLocation sets the timezone that defines a calendar day. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(l *Limiter) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a Limiter admitting max actions per user per day.
func NewLimiter(s store.UsageStore, max int, log zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store: s,
		max:   max,
		loc:   time.UTC,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the configured daily maximum.
func (l *Limiter) Max() int {
	return l.max
}

// Today returns the current day key.
func (l *Limiter) Today() string {
	return l.now().In(l.loc).Format(DayLayout)
}

// Count returns today's counter for the user.
func (l *Limiter) Count(ctx context.Context, userID string) (int, error) {
	return l.store.GetVoiceCount(ctx, userID, l.Today())
}

// CheckAndIncrement reports whether the user may perform one more action
// today, and records it when admitted. Store errors fail open.
func (l *Limiter) CheckAndIncrement(ctx context.Context, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.Today()
	log := l.log.With().Str("user_id", userID).Str("day", day).Logger()

	count, err := l.store.GetVoiceCount(ctx, userID, day)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read usage counter, assuming zero")
		count = 0
	}

	if count >= l.max {
		log.Info().Int("count", count).Int("max", l.max).Msg("Daily usage limit reached")
		return false
	}

	if err := l.store.UpsertVoiceCount(ctx, userID, day, count+1); err != nil {
		log.Warn().Err(err).Msg("Failed to update usage counter")
	}
	return true
}
