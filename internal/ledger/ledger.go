package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"venueattend/internal/model"
)

// ErrInvalidFilter rejects malformed report queries.
var ErrInvalidFilter = errors.New("invalid filter")

// Counts tallies attendance by status and method.
type Counts struct {
	Total    int                  `json:"total_present"`
	OnTime   int                  `json:"on_time"`
	Late     int                  `json:"late"`
	VeryLate int                  `json:"very_late"`
	ByMethod map[model.Method]int `json:"by_method"`
}

func tally(recs []model.Attendance) Counts {
	c := Counts{ByMethod: make(map[model.Method]int)}
	for i := range recs {
		c.Total++
		switch recs[i].Status {
		case model.StatusOnTime:
			c.OnTime++
		case model.StatusLate:
			c.Late++
		case model.StatusVeryLate:
			c.VeryLate++
		}
		c.ByMethod[recs[i].Method]++
	}
	return c
}

func percent(n, of int) float64 {
	if of <= 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

// LocationSummary describes one location's attendance on one date.
type LocationSummary struct {
	LocationID string     `json:"location_id"`
	Date       model.Date `json:"date"`
	Counts
	// AttendanceRate is the share of active members who checked in, in percent.
	AttendanceRate float64  `json:"attendance_rate"`
	Capacity       *int     `json:"capacity,omitempty"`
	Utilisation    *float64 `json:"capacity_utilisation,omitempty"`
}

// MemberSummary describes one member's attendance over a date range.
type MemberSummary struct {
	MemberID string     `json:"member_id"`
	From     model.Date `json:"from"`
	To       model.Date `json:"to"`
	Counts
	CheckedOut      int     `json:"checked_out"`
	PunctualityRate float64 `json:"punctuality_rate"`
}

// Ledger is the reporting and post-check-in side of the attendance store.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides the time source used for check-out.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Get(ctx context.Context, id string) (*model.Attendance, error) {
	return l.store.Get(ctx, id)
}

func (l *Ledger) Query(ctx context.Context, f Filter) ([]model.Attendance, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidFilter)
	}
	return l.store.Query(ctx, f)
}

func (l *Ledger) Count(ctx context.Context, f Filter) (int, error) {
	return l.store.Count(ctx, f)
}

// CheckOut stamps the current time as the record's check-out. A record can be
// checked out once.
func (l *Ledger) CheckOut(ctx context.Context, id string) (*model.Attendance, error) {
	a, err := l.store.CheckOut(ctx, id, l.now().UTC())
	if err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "attendance checked out", "attendance_id", id, "member_id", a.MemberID)
	return a, nil
}

// Annotate records an administrator's verification of a check-in.
func (l *Ledger) Annotate(ctx context.Context, id string, verified bool, adminNotes string) (*model.Attendance, error) {
	a, err := l.store.Annotate(ctx, id, verified, strings.TrimSpace(adminNotes))
	if err != nil {
		return nil, err
	}
	l.logger.InfoContext(ctx, "attendance annotated", "attendance_id", id, "verified", verified)
	return a, nil
}

// History returns a member's records from the last days days up to today,
// newest first.
func (l *Ledger) History(ctx context.Context, memberID string, today model.Date, days int) ([]model.Attendance, error) {
	if days <= 0 {
		days = 30
	}
	return l.store.Query(ctx, Filter{MemberID: memberID, From: today.AddDays(-days), To: today})
}

// MemberSummary tallies a member's attendance between from and to inclusive.
func (l *Ledger) MemberSummary(ctx context.Context, memberID string, from, to model.Date) (*MemberSummary, error) {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}
	recs, err := l.store.Query(ctx, Filter{MemberID: memberID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	s := &MemberSummary{MemberID: memberID, From: from, To: to, Counts: tally(recs)}
	for i := range recs {
		if recs[i].CheckOut != nil {
			s.CheckedOut++
		}
	}
	s.PunctualityRate = percent(s.OnTime, s.Total)
	return s, nil
}

// LocationSummary tallies a location's attendance on a date. activeMembers is
// the denominator of the attendance rate.
func (l *Ledger) LocationSummary(ctx context.Context, loc *model.Location, date model.Date, activeMembers int) (*LocationSummary, error) {
	recs, err := l.store.Query(ctx, Filter{LocationID: loc.ID, From: date, To: date})
	if err != nil {
		return nil, err
	}
	s := &LocationSummary{LocationID: loc.ID, Date: date, Counts: tally(recs)}
	s.AttendanceRate = percent(s.Total, max(activeMembers, 1))
	if loc.Capacity != nil {
		s.Capacity = loc.Capacity
		u := percent(s.Total, *loc.Capacity)
		s.Utilisation = &u
	}
	return s, nil
}
