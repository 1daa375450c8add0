package youtube

import (
	"log/slog"
	"sync"
	"time"
)

// Quota costs in units per call, from the Data API quota calculator.
const (
	costList   = 1
	costUpdate = 50

	defaultDailyQuota = 10000
)

// quotaTracker estimates the daily quota spent by this process. The API
// does not report remaining quota, so this is advisory only.
type quotaTracker struct {
	mu        sync.Mutex
	used      int
	daily     int
	resetAt   time.Time
	warnedLow bool
	logger    *slog.Logger
	now       func() time.Time
}

func newQuotaTracker(daily int, logger *slog.Logger) *quotaTracker {
	if daily <= 0 {
		daily = defaultDailyQuota
	}
	q := &quotaTracker{daily: daily, logger: logger, now: time.Now}
	q.resetAt = nextPacificMidnight(q.now())
	return q
}

// add records units spent by op.
func (q *quotaTracker) add(op string, units int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if now := q.now(); !now.Before(q.resetAt) {
		q.used = 0
		q.warnedLow = false
		q.resetAt = nextPacificMidnight(now)
	}

	q.used += units
	q.logger.Debug("youtube quota", "op", op, "units", units, "used", q.used, "daily", q.daily)
	if !q.warnedLow && q.used*10 >= q.daily*9 {
		q.warnedLow = true
		q.logger.Warn("youtube quota nearly exhausted", "used", q.used, "daily", q.daily)
	}
}

func (q *quotaTracker) usage() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// Daily quota resets at midnight Pacific time.
func nextPacificMidnight(now time.Time) time.Time {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.FixedZone("PST", -8*60*60)
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
}
