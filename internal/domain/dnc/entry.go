package dnc

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outdial/outdial/internal/domain/errors"
)

// Entry represents a phone number on the do-not-call list.
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	PhoneNumber string     `json:"phone_number"`
	Reason      string     `json:"reason"`
	Active      bool       `json:"active"`
	Attempts    int        `json:"attempts"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewEntry creates a DNC entry with the phone number in normalized form.
func NewEntry(phoneNumber, reason string) (*Entry, error) {
	normalized := NormalizePhone(phoneNumber)
	if normalized == "" {
		return nil, errors.NewValidationError("INVALID_PHONE_NUMBER", "phone number has no digits")
	}

	now := time.Now().UTC()
	return &Entry{
		ID:          uuid.New(),
		PhoneNumber: normalized,
		Reason:      reason,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NormalizePhone reduces a phone number to digits with an optional leading +.
// "00" international prefixes are rewritten to "+".
func NormalizePhone(number string) string {
	var b strings.Builder
	for i, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	return s
}

// IsExpired reports whether the entry has passed its expiry.
func (e *Entry) IsExpired() bool {
	if e.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*e.ExpiresAt)
}

// IsActive reports whether the entry currently blocks calls.
func (e *Entry) IsActive() bool {
	return e.Active && !e.IsExpired()
}

// RecordAttempt counts a blocked call attempt against this entry.
func (e *Entry) RecordAttempt() {
	e.Attempts++
	e.UpdatedAt = time.Now().UTC()
}

func (e *Entry) SetExpiration(expiresAt time.Time) error {
	if expiresAt.Before(time.Now()) {
		return errors.NewValidationError("INVALID_EXPIRATION", "expiration date cannot be in the past")
	}
	e.ExpiresAt = &expiresAt
	e.UpdatedAt = time.Now().UTC()
	return nil
}
