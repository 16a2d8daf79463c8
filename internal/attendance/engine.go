package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"venueattend/internal/identity"
	"venueattend/internal/ledger"
	"venueattend/internal/model"
)

const (
	// DefaultMinConfidence is the recognition confidence floor.
	DefaultMinConfidence = 0.6
	// DefaultEarlyCheckIn is how long before a schedule's start check-ins
	// are already accepted.
	DefaultEarlyCheckIn = 15 * time.Minute
)

// Identities resolves members and verifies PINs. Satisfied by *identity.Service.
type Identities interface {
	FindActive(ctx context.Context, code string) (*model.Member, error)
	Get(ctx context.Context, id string) (*model.Member, error)
	VerifyPIN(ctx context.Context, m *model.Member, pin string, now time.Time) (model.Lockout, error)
}

// Schedules answers schedule questions. Satisfied by *schedule.Registry.
type Schedules interface {
	Lookup(ctx context.Context, locationID string, at time.Time) (*model.Schedule, bool, error)
	Get(ctx context.Context, id string) (*model.Schedule, error)
	Clock(at time.Time) (model.Date, model.TimeOfDay)
}

// Notifier is told about every stored check-in. Failures never undo the check-in.
type Notifier interface {
	AttendanceMarked(ctx context.Context, m *model.Member, rec *model.Attendance) error
}

// Recorder observes engine results. Satisfied by *metrics.Metrics.
type Recorder interface {
	ObserveCheckIn(outcome, method string, start time.Time)
	NotifyFailed()
}

// Recognition is an external recognizer's verdict: who it saw and how sure it is.
type Recognition struct {
	MemberID   string  `json:"member_id"`
	Confidence float64 `json:"confidence"`
}

// MarkRequest is a kiosk check-in attempt.
type MarkRequest struct {
	Identity    string
	PIN         string
	LocationID  string
	Method      model.Method
	Recognition *Recognition
	Notes       string
}

// Engine decides whether a check-in is allowed and records it.
type Engine struct {
	identities    Identities
	schedules     Schedules
	ledger        ledger.Store
	classifier    *Classifier
	minConfidence float64
	policy        WindowPolicy
	early         time.Duration
	notifier      Notifier
	recorder      Recorder
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClassifier(c *Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

func WithMinConfidence(floor float64) Option {
	return func(e *Engine) { e.minConfidence = floor }
}

// WithEarlyCheckIn sets how long before Start a schedule accepts check-ins.
// Zero makes the window exactly [Start, End].
func WithEarlyCheckIn(d time.Duration) Option {
	return func(e *Engine) { e.early = d }
}

func WithWindowPolicy(p WindowPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the engine. identities, schedules and store are required.
func NewEngine(identities Identities, schedules Schedules, store ledger.Store, opts ...Option) (*Engine, error) {
	if identities == nil || schedules == nil || store == nil {
		return nil, errors.New("attendance engine: identities, schedules and ledger are required")
	}
	e := &Engine{
		identities:    identities,
		schedules:     schedules,
		ledger:        store,
		classifier:    DefaultClassifier(),
		minConfidence: DefaultMinConfidence,
		policy:        WindowEnforced,
		early:         DefaultEarlyCheckIn,
		logger:        slog.Default(),
		tracer:        otel.Tracer("venueattend/attendance"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.minConfidence < 0 || e.minConfidence > 1 {
		return nil, fmt.Errorf("attendance engine: confidence floor %v outside [0,1]", e.minConfidence)
	}
	if e.early < 0 {
		return nil, fmt.Errorf("attendance engine: negative early check-in allowance %s", e.early)
	}
	if _, err := ParseWindowPolicy(string(e.policy)); err != nil {
		return nil, fmt.Errorf("attendance engine: %w", err)
	}
	return e, nil
}

func validateMark(req MarkRequest) string {
	switch {
	case strings.TrimSpace(req.Identity) == "":
		return "member identity is required"
	case strings.TrimSpace(req.LocationID) == "":
		return "location is required"
	case !identity.ValidPIN(req.PIN):
		return identity.ErrMalformedPIN.Error()
	case !req.Method.Valid():
		return fmt.Sprintf("unknown recognition method %q", req.Method)
	}
	return ""
}

// Mark runs a kiosk check-in: identity, PIN, recognition, schedule window,
// duplicate check, classification and the atomic insert, stopping at the
// first rejection.
func (e *Engine) Mark(ctx context.Context, req MarkRequest) (out Outcome) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "attendance.Mark",
		trace.WithAttributes(attribute.String("location_id", req.LocationID), attribute.String("method", string(req.Method))))
	defer func() { e.finish(span, out, req.Method, start) }()

	if msg := validateMark(req); msg != "" {
		return Outcome{Code: CodeInvalidRequest, Message: msg}
	}
	now := e.now()
	log := e.logger.With("identity", req.Identity, "location_id", req.LocationID, "method", req.Method)

	m, err := e.identities.FindActive(ctx, strings.TrimSpace(req.Identity))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Outcome{Code: CodeIdentityError, Message: "Invalid member code or inactive account."}
		}
		return e.systemError(ctx, log, "find member", err)
	}
	base := Outcome{MemberID: m.ID, MemberName: m.FullName}

	lockout, err := e.identities.VerifyPIN(ctx, m, req.PIN, now)
	switch {
	case errors.Is(err, identity.ErrLocked):
		base.Code, base.Message, base.LockedUntil = CodeAccountLocked, "Account is locked. Try again later.", lockout.LockedUntil
		return base
	case errors.Is(err, identity.ErrInvalidPIN):
		if lockout.IsLockedAt(now) {
			base.Code, base.Message, base.LockedUntil = CodeAccountLocked,
				"Invalid PIN. Too many failed attempts; account is locked.", lockout.LockedUntil
			return base
		}
		base.Code, base.Message = CodeIdentityError, "Invalid PIN."
		return base
	case err != nil:
		return e.systemError(ctx, log, "verify pin", err)
	}

	var confidence *float64
	if req.Method.RequiresRecognition() {
		r := req.Recognition
		if r == nil || r.MemberID != m.ID || r.Confidence < e.minConfidence {
			base.Code, base.Message = CodeRecognitionMismatch, "Face not recognized or mismatch. Please try again or contact admin."
			return base
		}
		c := r.Confidence
		confidence = &c
	}

	sched, open, err := e.schedules.Lookup(ctx, req.LocationID, now)
	if err != nil {
		return e.systemError(ctx, log, "schedule lookup", err)
	}
	if sched == nil {
		base.Code, base.Message = CodeNoScheduleToday, "This location is not scheduled for today."
		return base
	}
	base.Schedule = sched
	if _, tod := e.schedules.Clock(now); !open && !e.accepts(sched, tod) {
		base.Code = CodeOutsideScheduleWindow
		base.Message = fmt.Sprintf("Check-in is only accepted between %s and %s.", sched.Start.Clock(), sched.End.Clock())
		return base
	}

	rec := &model.Attendance{
		MemberID:   m.ID,
		LocationID: req.LocationID,
		ScheduleID: &sched.ID,
		Method:     req.Method,
		Confidence: confidence,
		Notes:      strings.TrimSpace(req.Notes),
	}
	return e.record(ctx, log, m, rec, now, base)
}

// MarkBySchedule records attendance against a schedule id for non-biometric
// flows. The schedule must be today's, active and not cancelled; the time
// window is checked unless the policy is WindowScheduleDayOnly.
func (e *Engine) MarkBySchedule(ctx context.Context, memberID, scheduleID string, method model.Method) (out Outcome) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "attendance.MarkBySchedule",
		trace.WithAttributes(attribute.String("schedule_id", scheduleID), attribute.String("method", string(method))))
	defer func() { e.finish(span, out, method, start) }()

	if method == "" {
		method = model.MethodManual
	}
	switch {
	case strings.TrimSpace(memberID) == "":
		return Outcome{Code: CodeInvalidRequest, Message: "member is required"}
	case strings.TrimSpace(scheduleID) == "":
		return Outcome{Code: CodeInvalidRequest, Message: "schedule is required"}
	case !method.Valid():
		return Outcome{Code: CodeInvalidRequest, Message: fmt.Sprintf("unknown recognition method %q", method)}
	}
	now := e.now()
	log := e.logger.With("member_id", memberID, "schedule_id", scheduleID, "method", method)

	m, err := e.identities.Get(ctx, memberID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Outcome{Code: CodeIdentityError, Message: "Member not found."}
		}
		return e.systemError(ctx, log, "get member", err)
	}
	if !m.Active {
		return Outcome{Code: CodeIdentityError, Message: "Member account is inactive.", MemberID: m.ID}
	}
	base := Outcome{MemberID: m.ID, MemberName: m.FullName}

	sched, err := e.schedules.Get(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			base.Code, base.Message = CodeNoScheduleToday, "Schedule not found."
			return base
		}
		return e.systemError(ctx, log, "get schedule", err)
	}
	today, tod := e.schedules.Clock(now)
	if !sched.CanMark(today) {
		base.Code, base.Message = CodeNoScheduleToday, "Cannot mark attendance for this schedule."
		return base
	}
	base.Schedule = sched
	if e.policy.enforcesWindow(true) && !e.accepts(sched, tod) {
		base.Code = CodeOutsideScheduleWindow
		base.Message = fmt.Sprintf("Check-in is only accepted between %s and %s.", sched.Start.Clock(), sched.End.Clock())
		return base
	}

	rec := &model.Attendance{
		MemberID:   m.ID,
		LocationID: sched.LocationID,
		ScheduleID: &sched.ID,
		Method:     method,
	}
	return e.record(ctx, log, m, rec, now, base)
}

// accepts reports whether tod falls in the schedule window widened by the
// early check-in allowance.
func (e *Engine) accepts(s *model.Schedule, tod model.TimeOfDay) bool {
	if s.InWindow(tod) {
		return true
	}
	return tod < s.Start && time.Duration(s.Start-tod)*time.Second <= e.early
}

// record runs the duplicate check, classification and insert shared by both paths.
func (e *Engine) record(ctx context.Context, log *slog.Logger, m *model.Member, rec *model.Attendance, now time.Time, base Outcome) Outcome {
	today, tod := e.schedules.Clock(now)

	existing, err := e.ledger.Existing(ctx, m.ID, rec.LocationID, today)
	if err != nil {
		return e.systemError(ctx, log, "duplicate check", err)
	}
	if existing != nil {
		return e.alreadyMarked(base, existing)
	}

	rec.CheckIn = now.UTC()
	rec.Date = today
	rec.Status = e.classifier.Classify(tod)

	if err := e.ledger.Insert(ctx, rec); err != nil {
		var dup *ledger.DuplicateError
		if errors.As(err, &dup) {
			log.InfoContext(ctx, "concurrent check-in lost the insert race", "member_id", m.ID)
			return e.alreadyMarked(base, dup.Existing)
		}
		return e.systemError(ctx, log, "insert attendance", err)
	}

	log.InfoContext(ctx, "attendance marked",
		"member_id", m.ID, "attendance_id", rec.ID, "status", rec.Status, "date", rec.Date.String())

	if e.notifier != nil {
		if err := e.notifier.AttendanceMarked(ctx, m, rec); err != nil {
			log.WarnContext(ctx, "attendance notification failed", "attendance_id", rec.ID, "error", err)
			if e.recorder != nil {
				e.recorder.NotifyFailed()
			}
		}
	}

	checkIn := rec.CheckIn
	base.Code = CodeSuccess
	base.Message = fmt.Sprintf("Attendance marked successfully for %s", m.FullName)
	base.Record = rec
	base.CheckIn = &checkIn
	return base
}

func (e *Engine) alreadyMarked(base Outcome, existing *model.Attendance) Outcome {
	base.Code = CodeAlreadyMarked
	base.Message = "Attendance already marked today."
	if existing != nil {
		checkIn := existing.CheckIn
		_, tod := e.schedules.Clock(checkIn)
		base.CheckIn = &checkIn
		base.Record = existing
		base.Message = fmt.Sprintf("Attendance already marked today at %s", tod.Clock())
	}
	return base
}

func (e *Engine) systemError(ctx context.Context, log *slog.Logger, op string, err error) Outcome {
	log.ErrorContext(ctx, "check-in failed", "op", op, "error", err)
	return Outcome{Code: CodeSystemError, Message: "System error occurred. Please try again."}
}

func (e *Engine) finish(span trace.Span, out Outcome, method model.Method, start time.Time) {
	span.SetAttributes(attribute.String("outcome", string(out.Code)))
	if out.Code == CodeSystemError {
		span.SetStatus(otelcodes.Error, out.Message)
	}
	span.End()
	if e.recorder != nil {
		e.recorder.ObserveCheckIn(string(out.Code), string(method), start)
	}
}
