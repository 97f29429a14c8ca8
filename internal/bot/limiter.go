package bot

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/replyclaw/internal/twitter"
)

const maxBackoffMultiplier = 8

// Limiter owns all pacing state: the minimum inter-poll interval, the
// rolling hourly reply quota, and the exponential backoff multiplier.
// It is used only from the poll goroutine.
type Limiter struct {
	poll        *rate.Limiter
	minInterval time.Duration

	maxPerHour int
	replyTimes []time.Time

	backoff int

	now func() time.Time
}

// NewLimiter builds a limiter pacing polls at minInterval and capping
// replies at maxPerHour over a rolling hour.
func NewLimiter(minInterval time.Duration, maxPerHour int) *Limiter {
	return &Limiter{
		poll:        rate.NewLimiter(rate.Every(minInterval), 1),
		minInterval: minInterval,
		maxPerHour:  maxPerHour,
		backoff:     1,
		now:         time.Now,
	}
}

// WaitPoll blocks until the next poll may start.
func (l *Limiter) WaitPoll(ctx context.Context) error {
	return l.poll.Wait(ctx)
}

// CanReply reports whether the rolling hourly quota has room.
func (l *Limiter) CanReply() bool {
	l.prune()
	return len(l.replyTimes) < l.maxPerHour
}

// RecordReply counts one posted reply against the quota.
func (l *Limiter) RecordReply() {
	l.replyTimes = append(l.replyTimes, l.now())
}

// RepliesThisHour returns the current rolling-hour reply count.
func (l *Limiter) RepliesThisHour() int {
	l.prune()
	return len(l.replyTimes)
}

func (l *Limiter) prune() {
	cutoff := l.now().Add(-time.Hour)
	i := 0
	for i < len(l.replyTimes) && l.replyTimes[i].Before(cutoff) {
		i++
	}
	l.replyTimes = l.replyTimes[i:]
}

// ThrottleDelay converts a platform throttle signal into a sleep. A
// fresh signal (reset in the future) yields the advertised wait and
// resets backoff to 1x. A stale signal falls back to exponential
// backoff like any other poll failure.
func (l *Limiter) ThrottleDelay(rle *twitter.RateLimitError) time.Duration {
	if d := rle.Wait(l.now()); d > 0 {
		l.backoff = 1
		return d
	}
	return l.FailureDelay()
}

// FailureDelay returns the backoff sleep for an unexpected poll error
// and doubles the multiplier for next time, capped at 8x.
func (l *Limiter) FailureDelay() time.Duration {
	d := time.Duration(l.backoff) * l.minInterval
	if l.backoff < maxBackoffMultiplier {
		l.backoff *= 2
	}
	return d
}

// NoteCleanPoll resets the backoff multiplier after a full successful
// poll cycle.
func (l *Limiter) NoteCleanPoll() {
	l.backoff = 1
}
