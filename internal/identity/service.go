package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"venueattend/internal/model"
)

var (
	// ErrInvalidPIN is returned when a PIN does not match the stored hash.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrLocked is returned while a member's lockout is in force.
	ErrLocked = errors.New("account locked")
	// ErrMalformedPIN is returned for PINs that are not exactly four digits.
	ErrMalformedPIN = errors.New("pin must be exactly 4 digits")
	// ErrInvalidMember is returned when registration input is incomplete.
	ErrInvalidMember = errors.New("invalid member")
)

// Policy holds the lockout and hashing settings.
type Policy struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	BcryptCost       int
}

// DefaultPolicy locks after 5 failures for 30 minutes.
func DefaultPolicy() Policy {
	return Policy{
		LockoutThreshold: 5,
		LockoutDuration:  30 * time.Minute,
		BcryptCost:       bcrypt.DefaultCost,
	}
}

// LockoutRecorder observes lockouts; satisfied by the metrics package.
type LockoutRecorder interface {
	AccountLocked()
}

// Service verifies PINs and manages member credentials.
type Service struct {
	store    Store
	policy   Policy
	logger   *slog.Logger
	lockouts LockoutRecorder
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLockoutRecorder(r LockoutRecorder) Option {
	return func(s *Service) { s.lockouts = r }
}

// New builds a Service over store.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	s := &Service{store: store, policy: DefaultPolicy(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.LockoutThreshold <= 0 {
		return nil, fmt.Errorf("lockout threshold must be positive, got %d", s.policy.LockoutThreshold)
	}
	if s.policy.LockoutDuration <= 0 {
		return nil, fmt.Errorf("lockout duration must be positive, got %s", s.policy.LockoutDuration)
	}
	if s.policy.BcryptCost == 0 {
		s.policy.BcryptCost = bcrypt.DefaultCost
	}
	return s, nil
}

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FindActive resolves a member by external code. Unknown and inactive members
// both yield model.ErrNotFound.
func (s *Service) FindActive(ctx context.Context, code string) (*model.Member, error) {
	m, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, model.ErrNotFound
	}
	return m, nil
}

// Get returns a member by id regardless of state.
func (s *Service) Get(ctx context.Context, id string) (*model.Member, error) {
	return s.store.GetByID(ctx, id)
}

// IsLocked reports whether m is locked at now.
func (s *Service) IsLocked(m *model.Member, now time.Time) bool {
	return m.IsLockedAt(now)
}

// VerifyPIN checks pin against m's stored hash. A locked member fails with
// ErrLocked before the hash is consulted. A wrong PIN records a failed attempt
// and returns ErrInvalidPIN; the returned Lockout tells the caller whether the
// failure triggered a lock. A correct PIN clears any earlier failures.
func (s *Service) VerifyPIN(ctx context.Context, m *model.Member, pin string, now time.Time) (model.Lockout, error) {
	if m.IsLockedAt(now) {
		return model.Lockout{FailedAttempts: m.FailedAttempts, LockedUntil: m.LockedUntil}, ErrLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(m.PINHash), []byte(pin)) != nil {
		lockout, err := s.store.RecordFailedAttempt(ctx, m.ID, s.policy.LockoutThreshold, now.Add(s.policy.LockoutDuration))
		if err != nil {
			return model.Lockout{}, fmt.Errorf("record failed pin attempt: %w", err)
		}
		if lockout.IsLockedAt(now) {
			s.logger.WarnContext(ctx, "account locked after failed pin attempts",
				"member_id", m.ID,
				"locked_until", lockout.LockedUntil,
			)
			if s.lockouts != nil {
				s.lockouts.AccountLocked()
			}
		}
		return lockout, ErrInvalidPIN
	}

	if m.FailedAttempts > 0 || m.LockedUntil != nil {
		if err := s.store.ResetFailedAttempts(ctx, m.ID); err != nil {
			return model.Lockout{}, fmt.Errorf("reset failed attempts: %w", err)
		}
	}
	return model.Lockout{}, nil
}

// Registration is the input for Register.
type Registration struct {
	Code     string
	FullName string
	Email    string
	Phone    string
	Password string
	PIN      string
	IsAdmin  bool
}

// Register creates an active member with hashed password and PIN.
func (s *Service) Register(ctx context.Context, in Registration) (*model.Member, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Code == "" || in.FullName == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: code, full name, email and password are required", ErrInvalidMember)
	}
	if !ValidPIN(in.PIN) {
		return nil, ErrMalformedPIN
	}
	passwordHash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	pinHash, err := s.hash(in.PIN)
	if err != nil {
		return nil, err
	}
	m := &model.Member{
		Code:         in.Code,
		FullName:     in.FullName,
		Email:        in.Email,
		Active:       true,
		IsAdmin:      in.IsAdmin,
		PasswordHash: passwordHash,
		PINHash:      pinHash,
	}
	if in.Phone != "" {
		phone := in.Phone
		m.Phone = &phone
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "member registered", "member_id", m.ID, "code", m.Code)
	return m, nil
}

// ChangePIN replaces a member's PIN and clears any lockout.
func (s *Service) ChangePIN(ctx context.Context, id, pin string) error {
	if !ValidPIN(pin) {
		return ErrMalformedPIN
	}
	hash, err := s.hash(pin)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePIN(ctx, id, hash); err != nil {
		return err
	}
	return s.store.ResetFailedAttempts(ctx, id)
}

// Unlock clears a member's lockout and failure counter.
func (s *Service) Unlock(ctx context.Context, id string) error {
	if err := s.store.ResetFailedAttempts(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "member unlocked", "member_id", id)
	return nil
}

// SetTemplate stores an opaque recognition template for a member.
func (s *Service) SetTemplate(ctx context.Context, id string, template []byte) error {
	if len(template) == 0 {
		return fmt.Errorf("%w: empty recognition template", ErrInvalidMember)
	}
	return s.store.SetTemplate(ctx, id, template)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	return s.store.SetActive(ctx, id, active)
}

func (s *Service) List(ctx context.Context) ([]model.Member, error) {
	return s.store.List(ctx)
}

// Enrolled lists active members that carry a recognition template.
func (s *Service) Enrolled(ctx context.Context) ([]model.Member, error) {
	return s.store.ListWithTemplates(ctx)
}

func (s *Service) CountActive(ctx context.Context) (int, error) {
	return s.store.CountActive(ctx)
}

func (s *Service) hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), s.policy.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(b), nil
}
