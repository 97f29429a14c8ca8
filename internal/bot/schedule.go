package bot

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Schedule gates polling to a cron-shaped active window. The zero
// value (empty expression) is always active.
type Schedule struct {
	expr string
	g    *gronx.Gronx
}

// NewSchedule validates and wraps a cron expression. Empty means
// always active.
func NewSchedule(expr string) (*Schedule, error) {
	s := &Schedule{expr: expr, g: gronx.New()}
	if expr != "" && !s.g.IsValid(expr) {
		return nil, fmt.Errorf("invalid schedule expression %q", expr)
	}
	return s, nil
}

// ActiveAt reports whether polling is allowed at t.
func (s *Schedule) ActiveAt(t time.Time) bool {
	if s == nil || s.expr == "" {
		return true
	}
	due, err := s.g.IsDue(s.expr, t)
	if err != nil {
		// a validated expression should not error; fail open so a
		// gronx quirk cannot silence the bot
		return true
	}
	return due
}
