package dnc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15550000001", "+15550000001"},
		{"+1 (555) 000-0001", "+15550000001"},
		{"555.000.0001", "5550000001"},
		{"0049 30 1234567", "+49301234567"},
		{"15+550000001", "15550000001"}, // plus only counts in first position
		{"abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNewEntry(t *testing.T) {
	e, err := NewEntry("+1 (555) 000-0001", "consumer request")
	require.NoError(t, err)
	assert.Equal(t, "+15550000001", e.PhoneNumber)
	assert.True(t, e.Active)
	assert.Zero(t, e.Attempts)
	assert.Nil(t, e.ExpiresAt)

	_, err = NewEntry("no digits here", "reason")
	assert.Error(t, err)
}

func TestEntryExpiry(t *testing.T) {
	e, err := NewEntry("+15550000001", "consumer request")
	require.NoError(t, err)
	assert.True(t, e.IsActive())

	require.NoError(t, e.SetExpiration(time.Now().Add(time.Hour)))
	assert.False(t, e.IsExpired())
	assert.True(t, e.IsActive())

	past := time.Now().Add(-time.Minute)
	e.ExpiresAt = &past
	assert.True(t, e.IsExpired())
	assert.False(t, e.IsActive(), "expired entries no longer block calls")

	assert.Error(t, e.SetExpiration(time.Now().Add(-time.Hour)))
}

func TestEntryRecordAttempt(t *testing.T) {
	e, err := NewEntry("+15550000001", "consumer request")
	require.NoError(t, err)

	e.RecordAttempt()
	e.RecordAttempt()
	assert.Equal(t, 2, e.Attempts)
}
