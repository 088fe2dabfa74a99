package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCampaign(t *testing.T) {
	c, err := NewCampaign("September push", "promo.wav", 5, 60)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, c.Status)
	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, 5*time.Minute, c.RetryDelay)
	assert.Equal(t, "UTC", c.Timezone)

	_, err = NewCampaign("", "promo.wav", 5, 60)
	assert.Error(t, err)

	_, err = NewCampaign("September push", "promo.wav", 0, 60)
	assert.Error(t, err)

	_, err = NewCampaign("September push", "promo.wav", 5, 0)
	assert.Error(t, err)
}

func TestCampaignTickInterval(t *testing.T) {
	tests := []struct {
		callsPerMinute int
		want           time.Duration
	}{
		{1, time.Minute},
		{6, 10 * time.Second},
		{60, time.Second},
		{120, time.Second}, // floored at one second
	}
	for _, tt := range tests {
		c := &Campaign{CallsPerMinute: tt.callsPerMinute}
		assert.Equal(t, tt.want, c.TickInterval(), "cpm=%d", tt.callsPerMinute)
	}
}

func TestCampaignCanStart(t *testing.T) {
	c, err := NewCampaign("test", "promo.wav", 5, 60)
	require.NoError(t, err)

	assert.NoError(t, c.CanStart(10))
	assert.Error(t, c.CanStart(0), "no contacts")

	c.AudioRef = ""
	assert.Error(t, c.CanStart(10), "no audio")

	c.AudioRef = "promo.wav"
	c.UpdateStatus(StatusActive)
	assert.Error(t, c.CanStart(10), "already active")
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusActive, StatusPaused, StatusCancelled, StatusCompleted} {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("bogus")
	assert.Error(t, err)
}

func TestContactLifecycle(t *testing.T) {
	c, err := NewCampaign("test", "promo.wav", 5, 60)
	require.NoError(t, err)

	contact, err := NewContact(c.ID, "+15550000001", "Alex", "")
	require.NoError(t, err)
	assert.Equal(t, ContactStatusNew, contact.Status)
	assert.Equal(t, "UTC", contact.Timezone)
	assert.Zero(t, contact.Attempts)

	contact.MarkCalling()
	assert.Equal(t, ContactStatusCalling, contact.Status)
	assert.Equal(t, 1, contact.Attempts)
	assert.NotNil(t, contact.LastCalledAt)
	assert.Nil(t, contact.NextCallAt)

	at := time.Now().Add(10 * time.Minute)
	contact.ScheduleRetry(at)
	assert.Equal(t, ContactStatusRetry, contact.Status)
	require.NotNil(t, contact.NextCallAt)
	assert.True(t, contact.NextCallAt.Equal(at))
}

func TestContactStatusIsTerminal(t *testing.T) {
	terminal := []ContactStatus{
		ContactStatusCompleted, ContactStatusInterested,
		ContactStatusNotInterested, ContactStatusBlacklisted,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s.String())
	}

	open := []ContactStatus{
		ContactStatusNew, ContactStatusCalling, ContactStatusRetry,
		ContactStatusCallback, ContactStatusFailed,
	}
	for _, s := range open {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestParseContactStatus(t *testing.T) {
	for _, s := range []ContactStatus{
		ContactStatusNew, ContactStatusCalling, ContactStatusRetry,
		ContactStatusCallback, ContactStatusCompleted, ContactStatusInterested,
		ContactStatusNotInterested, ContactStatusFailed, ContactStatusBlacklisted,
	} {
		got, err := ParseContactStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseContactStatus("bogus")
	assert.Error(t, err)
}
