package service

import (
	"errors"
	"fmt"

	"pktracker/internal/model"
	"pktracker/internal/period"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskDisabled       = fmt.Errorf("%w: task disabled", ErrTaskNotFound)
	ErrTaskExists         = errors.New("task already exists")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrNotificationFailed = errors.New("notification failed")
	ErrNoRecords          = errors.New("no records")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrAlreadyAdmin       = errors.New("already an admin")
	ErrNotAdmin           = errors.New("not an admin")
)

// QuotaExceededError is returned when a user has used up a task's check-ins
// for the current period.
type QuotaExceededError struct {
	Frequency model.Frequency
	Max       int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s已达到最大打卡次数 (%d次)", e.Period(), e.Max)
}

// Period names the exhausted period: 今日, 本周 or 本月.
func (e *QuotaExceededError) Period() string {
	return period.Label(e.Frequency)
}

func invalidParam(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
