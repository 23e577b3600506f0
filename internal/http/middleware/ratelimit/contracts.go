package ratelimit

import "time"

// Limiter decides whether a client key may spend one more request.
type Limiter interface {
	Allow(key string) bool
}

// RetryAfterer is implemented by limiters that can tell how long a rejected key should wait.
type RetryAfterer interface {
	RetryAfter(key string) time.Duration
}

// Clock is the time source for bucket refills.
type Clock interface {
	Now() time.Time
}

// ClockFunc lets a plain function serve as a Clock, e.g. ClockFunc(time.Now).
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Unlimited admits every key. It stands in when rate limiting is disabled.
type Unlimited struct{}

// Allow always admits.
func (Unlimited) Allow(string) bool { return true }

var (
	_ Limiter = Unlimited{}
	_ Clock   = ClockFunc(nil)
)
