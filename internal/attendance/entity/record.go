package entity

import "time"

// Record is one student's presence in one session. Rows are never updated.
type Record struct {
	ID        int64     `db:"id" json:"id"`
	SessionID int64     `db:"session_id" json:"session_id"`
	StudentID int64     `db:"student_id" json:"student_id"`
	Verified  bool      `db:"verified" json:"verified"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// Attendee is a record joined with the student's account for reports.
type Attendee struct {
	Record
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}
