package scoring

import (
	"fmt"
	"time"

	"github.com/comadj/car-system/pkg/logger"
)

type EventType string

const (
	EventOneTime    EventType = "ONE_TIME"
	EventContinuous EventType = "CONTINUOUS"
)

// Status is derived on every read and never persisted.
type Status string

const (
	StatusClosed     Status = "CLOSED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDelayed    Status = "DELAYED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusClosed, StatusInProgress, StatusDelayed:
		return true
	}
	return false
}

// DeriveStatus computes a CAR's lifecycle status. Dates may arrive in any
// shape ToEpochMillis accepts; values that cannot be read are logged and
// treated as absent. "Overdue" compares calendar dates in now's location.
func DeriveStatus(eventType string, dueDate, completionDate any, now time.Time) Status {
	switch EventType(eventType) {
	case EventOneTime:
		return StatusClosed
	case EventContinuous:
	default:
		return StatusInProgress
	}

	if !isAbsent(completionDate) {
		if _, ok := ToEpochMillis(completionDate); ok {
			return StatusClosed
		}
		logAnomaly("completionDate", completionDate)
	}

	if isAbsent(dueDate) {
		return StatusInProgress
	}
	due, ok := ToEpochMillis(dueDate)
	if !ok {
		logAnomaly("dueDate", dueDate)
		return StatusInProgress
	}

	loc := now.Location()
	if DayStart(time.UnixMilli(due).In(loc)).Before(DayStart(now)) {
		return StatusDelayed
	}
	return StatusInProgress
}

func logAnomaly(field string, v any) {
	logger.Warn().
		Str("field", field).
		Str("value", fmt.Sprintf("%v", v)).
		Msg("[Scoring] unreadable date, treating as absent")
}
