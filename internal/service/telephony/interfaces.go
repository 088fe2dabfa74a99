package telephony

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider abstracts one telephony control-plane protocol. An adapter owns
// its connection lifecycle and normalizes provider events into Event values
// on the Events channel.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// PlaceCall originates a call and returns its identifier before the
	// call is answered. Origination rejections surface as
	// *CallOriginationError.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error)

	// Hangup is idempotent: terminating an already-gone call succeeds.
	Hangup(ctx context.Context, callID string) error

	SendCommand(ctx context.Context, command string) (string, error)
	Stats() Stats
	Events() <-chan Event
}

// PlaceCallRequest carries everything an adapter needs to originate a call.
type PlaceCallRequest struct {
	PhoneNumber string
	CampaignID  uuid.UUID
	AudioRef    string
}

// Stats is a snapshot of adapter-level state.
type Stats struct {
	Provider    string        `json:"provider"`
	ActiveCalls int           `json:"active_calls"`
	Uptime      time.Duration `json:"uptime"`
	Connected   bool          `json:"connected"`
}

// EventKind enumerates the canonical call lifecycle events.
type EventKind int

const (
	EventCreated EventKind = iota
	EventAnswered
	EventDTMF
	EventAMDResult
	EventHangup

	// EventProviderDown is emitted once when an adapter exhausts its
	// reconnect budget. CallID is empty; Reason carries the last error.
	EventProviderDown
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventAnswered:
		return "answered"
	case EventDTMF:
		return "dtmf"
	case EventAMDResult:
		return "amd-result"
	case EventHangup:
		return "hangup"
	case EventProviderDown:
		return "provider-down"
	default:
		return "unknown"
	}
}

// AMD classification results.
const (
	AMDHuman    = "human"
	AMDMachine  = "machine"
	AMDNotSure  = "notsure"
)

// Event is the canonical, provider-independent telephony event. Kind-specific
// fields are populated only for the relevant kind.
type Event struct {
	Kind        EventKind
	CallID      string
	PhoneNumber string
	Timestamp   time.Time

	// EventDTMF
	Digit string

	// EventHangup
	HangupCause string
	DurationSec int
	BillSec     int

	// EventAMDResult
	AMDResult     string
	AMDConfidence float64

	// EventProviderDown
	Reason string
}

// CallOriginationError reports that the provider rejected call origination.
type CallOriginationError struct {
	Reason string
}

func (e *CallOriginationError) Error() string {
	return fmt.Sprintf("call origination rejected: %s", e.Reason)
}
