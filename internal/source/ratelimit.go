package source

import (
	"context"
	"sync"
	"time"
)

// Limiter paces explorer calls. One Limiter is shared by every fetch of a
// source, so it must be safe for concurrent use.
type Limiter interface {
	Wait(ctx context.Context) error
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// spacer admits one call per interval. The first call passes immediately;
// later callers reserve the next free slot and sleep until it.
type spacer struct {
	interval time.Duration
	mu       sync.Mutex
	next     time.Time
	now      func() time.Time
}

func (s *spacer) reserve() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.next.Before(now) {
		s.next = now
	}
	delay := s.next.Sub(now)
	s.next = s.next.Add(s.interval)
	return delay
}

func (s *spacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := s.reserve()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewLimiter returns a Limiter admitting perSecond calls per second.
// perSecond <= 0 disables limiting.
func NewLimiter(perSecond int) Limiter {
	if perSecond <= 0 {
		return unlimited{}
	}
	return &spacer{interval: time.Second / time.Duration(perSecond), now: time.Now}
}
