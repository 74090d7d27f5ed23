// Package platform defines the narrow query interface to the tutoring-domain
// data services. The assistant core treats these services as black boxes:
// every call takes a session-scoped QueryContext and returns a typed result
// or a failed Envelope, never a partial object.
package platform

import (
	"context"
	"time"
)

// Role is a platform user role.
type Role string

const (
	RoleStudent      Role = "student"
	RoleTutor        Role = "tutor"
	RoleParent       Role = "parent"
	RoleOrganisation Role = "organisation"
	RoleAdmin        Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTutor, RoleParent, RoleOrganisation, RoleAdmin:
		return true
	}
	return false
}

// IsPrivileged reports whether the role may read resources it does not own.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin
}

// QueryContext scopes every domain query to the calling actor.
type QueryContext struct {
	ActorID   string
	Role      Role
	OrgID     string
	SessionID string
}

// Envelope is the uniform failure shape returned by domain services.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrorKind classifies domain-service failures for tool results.
type ErrorKind string

const (
	ErrKindUnavailable ErrorKind = "service_unavailable"
	ErrKindNotFound    ErrorKind = "not_found"
	ErrKindForbidden   ErrorKind = "forbidden"
)

// Lesson is one upcoming booked lesson.
type Lesson struct {
	BookingID string    `json:"bookingId"`
	Subject   string    `json:"subject"`
	TutorName string    `json:"tutorName"`
	StartsAt  time.Time `json:"startsAt"`
	Duration  int       `json:"durationMinutes"`
}

// Booking is the status view of one booking.
type Booking struct {
	BookingID string    `json:"bookingId"`
	Status    string    `json:"status"` // confirmed, pending, cancelled, completed
	Subject   string    `json:"subject"`
	StudentID string    `json:"studentId"`
	TutorID   string    `json:"tutorId"`
	StartsAt  time.Time `json:"startsAt"`
}

// ProgressSummary aggregates a student's recent progress.
type ProgressSummary struct {
	StudentID        string  `json:"studentId"`
	LessonsCompleted int     `json:"lessonsCompleted"`
	HomeworkDone     int     `json:"homeworkDone"`
	HomeworkPending  int     `json:"homeworkPending"`
	AverageScore     float64 `json:"averageScore"`
	Trend            string  `json:"trend"` // improving, steady, declining
}

// EarningsSummary aggregates a tutor's earnings.
type EarningsSummary struct {
	TutorID        string  `json:"tutorId"`
	PeriodLabel    string  `json:"period"`
	LessonsTaught  int     `json:"lessonsTaught"`
	GrossAmount    float64 `json:"grossAmount"`
	PendingPayout  float64 `json:"pendingPayout"`
	NextPayoutDate string  `json:"nextPayoutDate"`
}

// ReferralInfo holds the actor's referral programme state.
type ReferralInfo struct {
	Link         string  `json:"link"`
	Referrals    int     `json:"referrals"`
	CreditEarned float64 `json:"creditEarned"`
}

// OrgStats aggregates organisation-level activity.
type OrgStats struct {
	OrgID          string `json:"orgId"`
	ActiveStudents int    `json:"activeStudents"`
	ActiveTutors   int    `json:"activeTutors"`
	LessonsTaught  int    `json:"lessonsThisMonth"`
	OpenTickets    int    `json:"openTickets"`
}

// Ticket is a created support ticket.
type Ticket struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Status  string `json:"status"`
}

// Service is the domain-service query interface consumed by tools and the
// offline engine. Implementations live outside this repo; a deterministic
// in-memory stub ships for tests and local development.
type Service interface {
	UpcomingLessons(ctx context.Context, qc QueryContext, limit int) ([]Lesson, error)
	BookingStatus(ctx context.Context, qc QueryContext, bookingID string) (*Booking, error)
	Progress(ctx context.Context, qc QueryContext, studentID string) (*ProgressSummary, error)
	Earnings(ctx context.Context, qc QueryContext) (*EarningsSummary, error)
	Referral(ctx context.Context, qc QueryContext) (*ReferralInfo, error)
	Stats(ctx context.Context, qc QueryContext, orgID string) (*OrgStats, error)
	CreateTicket(ctx context.Context, qc QueryContext, subject, body string) (*Ticket, error)
}

// ServiceError is returned by implementations for classified failures so
// tools can map them onto structured {error: kind} payloads.
type ServiceError struct {
	Kind    ErrorKind
	Message string
}

func (e *ServiceError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NotFound creates a not_found service error.
func NotFound(message string) *ServiceError {
	return &ServiceError{Kind: ErrKindNotFound, Message: message}
}

// Forbidden creates a forbidden service error.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Kind: ErrKindForbidden, Message: message}
}

// Unavailable creates a service_unavailable service error.
func Unavailable(message string) *ServiceError {
	return &ServiceError{Kind: ErrKindUnavailable, Message: message}
}
