package model

import "time"

// Member is a registered cohort member who checks in at scheduled venues.
type Member struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	FullName       string     `json:"full_name"`
	Email          string     `json:"email"`
	Phone          *string    `json:"phone,omitempty"`
	Active         bool       `json:"active"`
	IsAdmin        bool       `json:"is_admin"`
	PasswordHash   string     `json:"-"`
	PINHash        string     `json:"-"`
	Template       []byte     `json:"-"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsLockedAt reports whether the lockout is still in force at now.
func (m *Member) IsLockedAt(now time.Time) bool {
	return m.LockedUntil != nil && now.Before(*m.LockedUntil)
}

func (m *Member) HasTemplate() bool { return len(m.Template) > 0 }

// Lockout is the result of recording a failed PIN attempt.
type Lockout struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

func (l Lockout) IsLockedAt(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}
