package telephony

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ivahaev/amigo"
	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/errors"
)

// callTokenVar is the channel variable carrying the engine call identifier,
// so AMI events can be correlated back before OriginateResponse arrives.
const callTokenVar = "CALLTOKEN"

// amiIgnoredEvents are emitted by Asterisk as a side effect of channel
// activity and carry nothing the engine needs.
var amiIgnoredEvents = map[string]struct{}{
	"NewCallerid":       {},
	"NewConnectedLine":  {},
	"NewAccountCode":    {},
	"NewExten":          {},
	"LocalBridge":       {},
	"LocalOptimizationBegin": {},
	"LocalOptimizationEnd":   {},
	"HangupRequest":     {},
	"SoftHangupRequest": {},
	"DeviceStateChange": {},
	"ExtensionStatus":   {},
	"SuccessfulAuth":    {},
	"ChallengeSent":     {},
	"DialBegin":         {},
	"DialState":         {},
}

// AMIConfig holds Asterisk manager-interface connection parameters.
type AMIConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Context  string
	CallerID string

	ConnectTimeout       time.Duration
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *AMIConfig) withDefaults() AMIConfig {
	out := *c
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.ReconnectMaxAttempts == 0 {
		out.ReconnectMaxAttempts = 10
	}
	if out.ReconnectBaseDelay == 0 {
		out.ReconnectBaseDelay = 2 * time.Second
	}
	if out.ReconnectMaxDelay == 0 {
		out.ReconnectMaxDelay = 30 * time.Second
	}
	return out
}

// amiCall tracks correlation state for one in-flight call: the engine token,
// the Asterisk Uniqueid/channel once learned, and timing for durations.
type amiCall struct {
	token       string
	uniqueID    string
	channel     string
	number      string
	createdAt   time.Time
	answeredAt  time.Time
	hasAnswered bool
}

// AMIAdapter drives Asterisk through the manager interface.
type AMIAdapter struct {
	cfg    AMIConfig
	logger *zap.Logger

	mu           sync.RWMutex
	ami          *amigo.Amigo
	connected    bool
	closed       bool
	reconnecting bool
	connectedAt  time.Time
	byToken      map[string]*amiCall
	byUnique     map[string]*amiCall

	events chan Event
}

func NewAMIAdapter(cfg AMIConfig, logger *zap.Logger) *AMIAdapter {
	return &AMIAdapter{
		cfg:      cfg.withDefaults(),
		logger:   logger.With(zap.String("provider", "asterisk")),
		byToken:  make(map[string]*amiCall),
		byUnique: make(map[string]*amiCall),
		events:   make(chan Event, 256),
	}
}

// Connect establishes the manager session. amigo reports connection state
// through its listener callbacks, so readiness is awaited by polling.
func (a *AMIAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.closed = false
	if a.ami == nil {
		a.ami = amigo.New(&amigo.Settings{
			Host:     a.cfg.Host,
			Port:     fmt.Sprintf("%d", a.cfg.Port),
			Username: a.cfg.Username,
			Password: a.cfg.Password,
		})
		a.ami.On("error", a.onError)
		a.ami.RegisterDefaultHandler(a.translate)
	}
	ami := a.ami
	a.mu.Unlock()

	ami.Connect()

	deadline := time.Now().Add(a.cfg.ConnectTimeout)
	for time.Now().Before(deadline) {
		if ami.Connected() {
			a.mu.Lock()
			a.connected = true
			a.connectedAt = time.Now()
			a.mu.Unlock()
			a.logger.Info("connected to manager interface",
				zap.String("host", a.cfg.Host), zap.Int("port", a.cfg.Port))
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.NewExternalError("asterisk", "connect cancelled").WithCause(ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
	return errors.NewExternalError("asterisk", "manager interface connect timed out")
}

// Disconnect marks the adapter closed. amigo keeps its own session goroutine
// and exposes no teardown, so we stop tracking the connection and let the
// closed flag suppress any further reconnect attempts.
func (a *AMIAdapter) Disconnect() error {
	a.mu.Lock()
	a.closed = true
	a.connected = false
	a.ami = nil
	a.mu.Unlock()
	return nil
}

func (a *AMIAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *AMIAdapter) Events() <-chan Event {
	return a.events
}

func (a *AMIAdapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var uptime time.Duration
	if a.connected {
		uptime = time.Since(a.connectedAt)
	}
	return Stats{
		Provider:    "asterisk",
		ActiveCalls: len(a.byToken),
		Uptime:      uptime,
		Connected:   a.connected,
	}
}

// PlaceCall issues an asynchronous Originate. The engine token doubles as
// ActionID and is set as a channel variable, and the immediate action
// response decides acceptance; a Failure OriginateResponse later surfaces as
// a canonical hangup.
func (a *AMIAdapter) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	a.mu.RLock()
	ami := a.ami
	connected := a.connected
	a.mu.RUnlock()
	if !connected || ami == nil {
		return "", errors.NewExternalError("asterisk", "not connected")
	}

	token := uuid.NewString()
	action := map[string]string{
		"Action":      "Originate",
		"ActionID":    token,
		"Channel":     fmt.Sprintf("Local/%s@%s", req.PhoneNumber, a.cfg.Context),
		"Application": "Playback",
		"Data":        req.AudioRef,
		"CallerID":    a.cfg.CallerID,
		"Async":       "true",
		"Variable":    fmt.Sprintf("%s=%s,CAMPAIGNID=%s", callTokenVar, token, req.CampaignID),
	}

	_, err := await(ctx, commandTimeout, func() (string, error) {
		res, err := ami.Action(action)
		if err != nil {
			return "", errors.NewExternalError("asterisk", "originate failed").WithCause(err)
		}
		if res["Response"] == "Error" {
			return "", &CallOriginationError{Reason: res["Message"]}
		}
		return res["Message"], nil
	})
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.byToken[token] = &amiCall{
		token:     token,
		number:    req.PhoneNumber,
		createdAt: time.Now(),
	}
	a.mu.Unlock()
	return token, nil
}

func (a *AMIAdapter) Hangup(ctx context.Context, callID string) error {
	a.mu.RLock()
	ami := a.ami
	connected := a.connected
	state := a.byToken[callID]
	a.mu.RUnlock()
	if !connected || ami == nil {
		return errors.NewExternalError("asterisk", "not connected")
	}
	if state == nil || state.channel == "" {
		// Call already gone or never bound to a channel; nothing to kill.
		return nil
	}

	_, err := await(ctx, hangupTimeout, func() (string, error) {
		res, err := ami.Action(map[string]string{
			"Action":  "Hangup",
			"Channel": state.channel,
		})
		if err != nil {
			return "", err
		}
		if res["Response"] == "Error" && !strings.Contains(res["Message"], "No such channel") {
			return "", errors.NewExternalError("asterisk", res["Message"])
		}
		return res["Message"], nil
	})
	if err != nil {
		a.logger.Warn("hangup failed, treating as success",
			zap.String("call_id", callID), zap.Error(err))
	}
	return nil
}

func (a *AMIAdapter) SendCommand(ctx context.Context, command string) (string, error) {
	a.mu.RLock()
	ami := a.ami
	connected := a.connected
	a.mu.RUnlock()
	if !connected || ami == nil {
		return "", errors.NewExternalError("asterisk", "not connected")
	}
	return await(ctx, commandTimeout, func() (string, error) {
		res, err := ami.Action(map[string]string{
			"Action":  "Command",
			"Command": command,
		})
		if err != nil {
			return "", errors.NewExternalError("asterisk", "command failed").WithCause(err)
		}
		if out, ok := res["Output"]; ok {
			return out, nil
		}
		return res["Message"], nil
	})
}

// translate receives every manager event and maps the relevant ones onto the
// canonical model. Events for channels that never bind to a call token are
// dropped.
func (a *AMIAdapter) translate(m map[string]string) {
	name := m["Event"]
	if _, ignored := amiIgnoredEvents[name]; ignored {
		return
	}
	now := time.Now()

	switch name {
	case "VarSet":
		if m["Variable"] != callTokenVar {
			return
		}
		a.bind(m["Value"], m["Uniqueid"], m["Channel"], now)

	case "OriginateResponse":
		token := m["ActionID"]
		if token == "" {
			return
		}
		if m["Response"] == "Failure" {
			a.mu.Lock()
			state := a.byToken[token]
			number := ""
			if state != nil {
				number = state.number
				if state.uniqueID != "" {
					delete(a.byUnique, state.uniqueID)
				}
			}
			delete(a.byToken, token)
			a.mu.Unlock()
			a.emit(Event{
				Kind:        EventHangup,
				CallID:      token,
				PhoneNumber: number,
				Timestamp:   now,
				HangupCause: originateReasonCause(m["Reason"]),
			})
			return
		}
		a.bind(token, m["Uniqueid"], m["Channel"], now)

	case "Newchannel":
		state := a.lookupUnique(m["Uniqueid"])
		if state == nil {
			return
		}
		a.emit(Event{Kind: EventCreated, CallID: state.token, PhoneNumber: state.number, Timestamp: now})

	case "Newstate":
		if m["ChannelStateDesc"] != "Up" {
			return
		}
		state := a.lookupUnique(m["Uniqueid"])
		if state == nil {
			return
		}
		a.mu.Lock()
		if !state.hasAnswered {
			state.hasAnswered = true
			state.answeredAt = now
		}
		a.mu.Unlock()
		a.emit(Event{Kind: EventAnswered, CallID: state.token, PhoneNumber: state.number, Timestamp: now})

	case "DTMFEnd":
		if m["Direction"] == "Sent" {
			return
		}
		state := a.lookupUnique(m["Uniqueid"])
		if state == nil {
			return
		}
		a.emit(Event{Kind: EventDTMF, CallID: state.token, PhoneNumber: state.number, Timestamp: now, Digit: m["Digit"]})

	case "UserEvent":
		if m["UserEvent"] != "AMD" {
			return
		}
		state := a.lookupUnique(m["Uniqueid"])
		if state == nil {
			return
		}
		a.emit(Event{
			Kind:          EventAMDResult,
			CallID:        state.token,
			PhoneNumber:   state.number,
			Timestamp:     now,
			AMDResult:     normalizeAMDResult(m["Status"]),
			AMDConfidence: normalizeConfidence(m["Confidence"]),
		})

	case "Hangup":
		a.mu.Lock()
		state := a.byUnique[m["Uniqueid"]]
		if state == nil {
			a.mu.Unlock()
			return
		}
		delete(a.byUnique, state.uniqueID)
		delete(a.byToken, state.token)
		duration := int(now.Sub(state.createdAt).Seconds())
		billsec := 0
		if state.hasAnswered {
			billsec = int(now.Sub(state.answeredAt).Seconds())
		}
		token, number := state.token, state.number
		a.mu.Unlock()

		a.emit(Event{
			Kind:        EventHangup,
			CallID:      token,
			PhoneNumber: number,
			Timestamp:   now,
			HangupCause: amiCauseName(m["Cause"]),
			DurationSec: duration,
			BillSec:     billsec,
		})

	default:
		a.logger.Debug("dropping unhandled event", zap.String("event", name))
	}
}

func (a *AMIAdapter) bind(token, uniqueID, channel string, now time.Time) {
	if token == "" || uniqueID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	state := a.byToken[token]
	if state == nil {
		return
	}
	if state.uniqueID == "" {
		state.uniqueID = uniqueID
		a.byUnique[uniqueID] = state
	}
	if channel != "" {
		state.channel = channel
	}
}

func (a *AMIAdapter) lookupUnique(uniqueID string) *amiCall {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.byUnique[uniqueID]
}

func (a *AMIAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("event channel full, dropping event",
			zap.String("kind", ev.Kind.String()), zap.String("call_id", ev.CallID))
	}
}

func (a *AMIAdapter) onError(message string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.connected = false
	if a.reconnecting {
		a.mu.Unlock()
		return
	}
	a.reconnecting = true
	a.mu.Unlock()

	a.logger.Error("manager connection lost, reconnecting", zap.String("cause", message))
	go a.reconnectLoop()
}

func (a *AMIAdapter) reconnectLoop() {
	defer func() {
		a.mu.Lock()
		a.reconnecting = false
		a.mu.Unlock()
	}()

	var lastErr error
	for attempt := 1; attempt <= a.cfg.ReconnectMaxAttempts; attempt++ {
		a.mu.RLock()
		closed := a.closed
		a.mu.RUnlock()
		if closed {
			return
		}

		delay := a.cfg.ReconnectBaseDelay * time.Duration(attempt)
		if delay > a.cfg.ReconnectMaxDelay {
			delay = a.cfg.ReconnectMaxDelay
		}
		time.Sleep(delay)

		if err := a.Connect(context.Background()); err != nil {
			lastErr = err
			a.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		a.logger.Info("reconnected to manager interface", zap.Int("attempt", attempt))
		return
	}

	reason := "reconnect attempts exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("reconnect attempts exhausted: %v", lastErr)
	}
	a.emit(Event{Kind: EventProviderDown, Timestamp: time.Now(), Reason: reason})
}

// originateReasonCause maps AMI OriginateResponse reason codes onto the
// canonical hangup cause vocabulary.
func originateReasonCause(reason string) string {
	switch reason {
	case "3":
		return "NO_ANSWER"
	case "5":
		return "USER_BUSY"
	case "8":
		return "CALL_REJECTED"
	default:
		return "ORIGINATE_FAILED"
	}
}

// amiCauseName maps numeric ISDN cause codes to the cause names shared with
// the FreeSWITCH adapter.
func amiCauseName(cause string) string {
	switch cause {
	case "16":
		return "NORMAL_CLEARING"
	case "17":
		return "USER_BUSY"
	case "18":
		return "NO_USER_RESPONSE"
	case "19":
		return "NO_ANSWER"
	case "21":
		return "CALL_REJECTED"
	case "34":
		return "NORMAL_CIRCUIT_CONGESTION"
	case "52", "54":
		return "OUTGOING_CALL_BARRED"
	default:
		return "UNSPECIFIED"
	}
}
