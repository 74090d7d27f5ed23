package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubService is a deterministic in-memory Service used by tests, the demo
// mode, and the offline engine's local development loop. Data is seeded per
// actor on first access so repeated queries stay stable within a process.
type StubService struct {
	mu       sync.Mutex
	bookings map[string]*Booking
	tickets  int

	// Unreachable simulates a dead backing service; every call returns a
	// service_unavailable error.
	Unreachable bool
}

// NewStubService creates a stub with a few seeded bookings.
func NewStubService() *StubService {
	s := &StubService{bookings: make(map[string]*Booking)}
	base := time.Now().Add(26 * time.Hour).Truncate(time.Hour)
	s.bookings["B123"] = &Booking{
		BookingID: "B123", Status: "confirmed", Subject: "maths",
		StudentID: "student-1", TutorID: "tutor-1", StartsAt: base,
	}
	s.bookings["B456"] = &Booking{
		BookingID: "B456", Status: "pending", Subject: "physics",
		StudentID: "student-2", TutorID: "tutor-1", StartsAt: base.Add(48 * time.Hour),
	}
	return s
}

func (s *StubService) check() error {
	if s.Unreachable {
		return Unavailable("tutoring data service unreachable")
	}
	return nil
}

func (s *StubService) UpcomingLessons(_ context.Context, qc QueryContext, limit int) ([]Lesson, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 10 {
		limit = 3
	}
	lessons := make([]Lesson, 0, limit)
	start := time.Now().Add(26 * time.Hour).Truncate(time.Hour)
	subjects := []string{"maths", "english", "physics"}
	for i := 0; i < limit; i++ {
		lessons = append(lessons, Lesson{
			BookingID: fmt.Sprintf("B%03d", 100+i),
			Subject:   subjects[i%len(subjects)],
			TutorName: "Alex Chen",
			StartsAt:  start.Add(time.Duration(i) * 48 * time.Hour),
			Duration:  60,
		})
	}
	return lessons, nil
}

func (s *StubService) BookingStatus(_ context.Context, qc QueryContext, bookingID string) (*Booking, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, NotFound(fmt.Sprintf("booking %s does not exist", bookingID))
	}
	// Ownership check mirrors the real service: only parties to the booking
	// or privileged roles may read it.
	if !qc.Role.IsPrivileged() && qc.ActorID != b.StudentID && qc.ActorID != b.TutorID {
		return nil, Forbidden("caller is not a party to this booking")
	}
	cp := *b
	return &cp, nil
}

func (s *StubService) Progress(_ context.Context, qc QueryContext, studentID string) (*ProgressSummary, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if studentID == "" {
		studentID = qc.ActorID
	}
	return &ProgressSummary{
		StudentID:        studentID,
		LessonsCompleted: 12,
		HomeworkDone:     9,
		HomeworkPending:  2,
		AverageScore:     78.5,
		Trend:            "improving",
	}, nil
}

func (s *StubService) Earnings(_ context.Context, qc QueryContext) (*EarningsSummary, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return &EarningsSummary{
		TutorID:        qc.ActorID,
		PeriodLabel:    "this month",
		LessonsTaught:  24,
		GrossAmount:    1080.00,
		PendingPayout:  360.00,
		NextPayoutDate: time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
	}, nil
}

func (s *StubService) Referral(_ context.Context, qc QueryContext) (*ReferralInfo, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return &ReferralInfo{
		Link:         fmt.Sprintf("https://lessonloop.example/r/%s", qc.ActorID),
		Referrals:    3,
		CreditEarned: 45.00,
	}, nil
}

func (s *StubService) Stats(_ context.Context, qc QueryContext, orgID string) (*OrgStats, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if orgID == "" {
		orgID = qc.OrgID
	}
	if !qc.Role.IsPrivileged() && qc.OrgID != orgID {
		return nil, Forbidden("caller does not belong to this organisation")
	}
	return &OrgStats{
		OrgID:          orgID,
		ActiveStudents: 148,
		ActiveTutors:   19,
		LessonsTaught:  512,
		OpenTickets:    4,
	}, nil
}

func (s *StubService) CreateTicket(_ context.Context, qc QueryContext, subject, body string) (*Ticket, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets++
	return &Ticket{
		ID:      fmt.Sprintf("T-%04d", s.tickets),
		Subject: subject,
		Status:  "open",
	}, nil
}
