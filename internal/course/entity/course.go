package entity

import "time"

// Course is a class a teacher runs attendance sessions for.
type Course struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	TeacherID *int64    `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OwnedBy reports whether userID is the course's teacher.
func (c *Course) OwnedBy(userID int64) bool {
	return c.TeacherID != nil && *c.TeacherID == userID
}

// Enrollment grants a student the right to join the course's sessions.
type Enrollment struct {
	ID        int64     `db:"id" json:"id"`
	StudentID int64     `db:"student_id" json:"student_id"`
	CourseID  int64     `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EnrolledStudent is a course roster row.
type EnrolledStudent struct {
	EnrollmentID int64     `db:"enrollment_id" json:"enrollment_id"`
	StudentID    int64     `db:"student_id" json:"student_id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	HasFace      bool      `db:"has_face" json:"has_face"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
}
