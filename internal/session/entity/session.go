package entity

import (
	"time"

	attendance "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
)

// State of an attendance session. Closed is terminal.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Session is a time-bounded attendance window for one course.
type Session struct {
	ID       int64      `db:"id" json:"id"`
	CourseID int64      `db:"course_id" json:"course_id"`
	OpenedBy *int64     `db:"opened_by" json:"opened_by,omitempty"`
	OpenedAt time.Time  `db:"opened_at" json:"opened_at"`
	ClosedAt *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

// State derives the lifecycle state from ClosedAt.
func (s *Session) State() State {
	if s.ClosedAt == nil {
		return StateOpen
	}
	return StateClosed
}

func (s *Session) IsOpen() bool { return s.ClosedAt == nil }

// ActiveView is one row of the open-session listing. Students see Joined,
// teachers and admins see AttendeeCount.
type ActiveView struct {
	SessionID     int64     `db:"session_id" json:"session_id"`
	CourseID      int64     `db:"course_id" json:"course_id"`
	CourseCode    string    `db:"course_code" json:"course_code"`
	CourseName    string    `db:"course_name" json:"course_name"`
	OpenedAt      time.Time `db:"opened_at" json:"opened_at"`
	Joined        *bool     `db:"joined" json:"joined,omitempty"`
	AttendeeCount *int      `db:"attendee_count" json:"attendee_count,omitempty"`
}

// Details is a session together with its attendance.
type Details struct {
	ID         int64                 `json:"id"`
	CourseID   int64                 `json:"course_id"`
	CourseCode string                `json:"course_code"`
	CourseName string                `json:"course_name"`
	State      State                 `json:"state"`
	OpenedAt   time.Time             `json:"opened_at"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
	Attendees  []attendance.Attendee `json:"attendees"`
}

// Closed is the outcome of ending a session.
type Closed struct {
	Session       *Session `json:"session"`
	AttendeeCount int      `json:"attendee_count"`
}
