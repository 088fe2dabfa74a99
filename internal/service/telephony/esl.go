package telephony

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fiorix/go-eventsocket/eventsocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/errors"
)

// eslSubscription is the set of provider events the adapter translates.
const eslSubscription = "event plain CHANNEL_CREATE CHANNEL_ANSWER DTMF CHANNEL_HANGUP_COMPLETE CUSTOM amd::info"

// eslIgnoredEvents arrive as a side effect of the subscription but carry
// nothing the engine needs; they are dropped without logging.
var eslIgnoredEvents = map[string]struct{}{
	"HEARTBEAT":                {},
	"RE_SCHEDULE":              {},
	"API":                      {},
	"CHANNEL_STATE":            {},
	"CHANNEL_CALLSTATE":        {},
	"CHANNEL_EXECUTE":          {},
	"CHANNEL_EXECUTE_COMPLETE": {},
	"CHANNEL_PROGRESS":         {},
	"CHANNEL_PROGRESS_MEDIA":   {},
	"CHANNEL_ORIGINATE":        {},
	"CHANNEL_OUTGOING":         {},
	"CALL_UPDATE":              {},
	"CODEC":                    {},
}

// ESLConfig holds FreeSWITCH event-socket connection parameters.
type ESLConfig struct {
	Host     string
	Port     int
	Password string
	Gateway  string
	CallerID string

	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *ESLConfig) withDefaults() ESLConfig {
	out := *c
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

// ESLAdapter drives FreeSWITCH through its event socket.
type ESLAdapter struct {
	cfg    ESLConfig
	logger *zap.Logger

	mu           sync.RWMutex
	conn         *eventsocket.Connection
	connected    bool
	closed       bool
	reconnecting bool
	connectedAt  time.Time
	calls        map[string]string // call ID -> phone number

	events chan Event
}

func NewESLAdapter(cfg ESLConfig, logger *zap.Logger) *ESLAdapter {
	return &ESLAdapter{
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("provider", "freeswitch")),
		calls:  make(map[string]string),
		events: make(chan Event, 256),
	}
}

func (a *ESLAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.closed = false
	a.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	conn, err := eventsocket.Dial(addr, a.cfg.Password)
	if err != nil {
		return errors.NewExternalError("freeswitch", "event socket connect failed").WithCause(err)
	}

	if _, err := conn.Send(eslSubscription); err != nil {
		conn.Close()
		return errors.NewExternalError("freeswitch", "event subscription failed").WithCause(err)
	}

	a.mu.Lock()
	a.conn = conn
	a.connected = true
	a.connectedAt = time.Now()
	a.mu.Unlock()

	a.logger.Info("connected to event socket", zap.String("addr", addr))
	go a.readLoop(conn)
	return nil
}

func (a *ESLAdapter) Disconnect() error {
	a.mu.Lock()
	a.closed = true
	a.connected = false
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return nil
}

func (a *ESLAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *ESLAdapter) Events() <-chan Event {
	return a.events
}

func (a *ESLAdapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var uptime time.Duration
	if a.connected {
		uptime = time.Since(a.connectedAt)
	}
	return Stats{
		Provider:    "freeswitch",
		ActiveCalls: len(a.calls),
		Uptime:      uptime,
		Connected:   a.connected,
	}
}

// PlaceCall originates through the configured gateway. The call identifier is
// generated here and handed to FreeSWITCH as origination_uuid, so every
// subsequent channel event carries it back as Unique-ID.
func (a *ESLAdapter) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	conn, err := a.connection()
	if err != nil {
		return "", err
	}

	callID := uuid.NewString()
	cmd := fmt.Sprintf(
		"api originate {origination_uuid=%s,origination_caller_id_number=%s,ignore_early_media=true,campaign_id=%s}sofia/gateway/%s/%s &playback(%s)",
		callID, a.cfg.CallerID, req.CampaignID, a.cfg.Gateway, req.PhoneNumber, req.AudioRef,
	)

	_, err = await(ctx, commandTimeout, func() (string, error) {
		ev, err := conn.Send(cmd)
		if err != nil {
			return "", errors.NewExternalError("freeswitch", "originate failed").WithCause(err)
		}
		body := strings.TrimSpace(ev.Body)
		if strings.HasPrefix(body, "-ERR") {
			return "", &CallOriginationError{Reason: strings.TrimSpace(strings.TrimPrefix(body, "-ERR"))}
		}
		return body, nil
	})
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.calls[callID] = req.PhoneNumber
	a.mu.Unlock()
	return callID, nil
}

// Hangup kills the channel. "No such channel" means the call already ended,
// which is success for the caller; so is a timeout.
func (a *ESLAdapter) Hangup(ctx context.Context, callID string) error {
	conn, err := a.connection()
	if err != nil {
		return err
	}

	_, err = await(ctx, hangupTimeout, func() (string, error) {
		ev, err := conn.Send("api uuid_kill " + callID)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(ev.Body), nil
	})
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeExternal) {
			a.logger.Warn("hangup timed out, treating as success", zap.String("call_id", callID))
			return nil
		}
		return err
	}
	return nil
}

func (a *ESLAdapter) SendCommand(ctx context.Context, command string) (string, error) {
	conn, err := a.connection()
	if err != nil {
		return "", err
	}
	return await(ctx, commandTimeout, func() (string, error) {
		ev, err := conn.Send("api " + command)
		if err != nil {
			return "", errors.NewExternalError("freeswitch", "command failed").WithCause(err)
		}
		return strings.TrimSpace(ev.Body), nil
	})
}

func (a *ESLAdapter) connection() (*eventsocket.Connection, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected || a.conn == nil {
		return nil, errors.NewExternalError("freeswitch", "not connected")
	}
	return a.conn, nil
}

func (a *ESLAdapter) readLoop(conn *eventsocket.Connection) {
	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			a.handleDisconnect(err)
			return
		}
		a.translate(ev)
	}
}

func (a *ESLAdapter) translate(ev *eventsocket.Event) {
	name := ev.Get("Event-Name")
	if _, ignored := eslIgnoredEvents[name]; ignored {
		return
	}

	callID := ev.Get("Unique-Id")
	if callID == "" {
		callID = ev.Get("Unique-ID")
	}
	number := ev.Get("Caller-Destination-Number")
	now := time.Now()

	switch name {
	case "CHANNEL_CREATE":
		a.emit(Event{Kind: EventCreated, CallID: callID, PhoneNumber: number, Timestamp: now})
	case "CHANNEL_ANSWER":
		a.emit(Event{Kind: EventAnswered, CallID: callID, PhoneNumber: number, Timestamp: now})
	case "DTMF":
		a.emit(Event{Kind: EventDTMF, CallID: callID, PhoneNumber: number, Timestamp: now, Digit: ev.Get("Dtmf-Digit")})
	case "CHANNEL_HANGUP_COMPLETE":
		a.mu.Lock()
		delete(a.calls, callID)
		a.mu.Unlock()
		a.emit(Event{
			Kind:        EventHangup,
			CallID:      callID,
			PhoneNumber: number,
			Timestamp:   now,
			HangupCause: ev.Get("Hangup-Cause"),
			DurationSec: atoi(ev.Get("Variable_duration")),
			BillSec:     atoi(ev.Get("Variable_billsec")),
		})
	case "CUSTOM":
		if ev.Get("Event-Subclass") != "amd::info" {
			return
		}
		a.emit(Event{
			Kind:          EventAMDResult,
			CallID:        callID,
			PhoneNumber:   number,
			Timestamp:     now,
			AMDResult:     normalizeAMDResult(ev.Get("Amd-Result")),
			AMDConfidence: normalizeConfidence(ev.Get("Amd-Confidence")),
		})
	default:
		a.logger.Debug("dropping unhandled event", zap.String("event", name))
	}
}

func (a *ESLAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("event channel full, dropping event",
			zap.String("kind", ev.Kind.String()), zap.String("call_id", ev.CallID))
	}
}

func (a *ESLAdapter) handleDisconnect(cause error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.connected = false
	a.conn = nil
	if a.reconnecting {
		a.mu.Unlock()
		return
	}
	a.reconnecting = true
	a.mu.Unlock()

	a.logger.Error("event socket lost, reconnecting", zap.Error(cause))
	go a.reconnectLoop()
}

func (a *ESLAdapter) reconnectLoop() {
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
		a.logger.Info("reconnected to event socket", zap.Int("attempt", attempt))
		return
	}

	reason := "reconnect attempts exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("reconnect attempts exhausted: %v", lastErr)
	}
	a.emit(Event{Kind: EventProviderDown, Timestamp: time.Now(), Reason: reason})
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func normalizeAMDResult(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HUMAN", "PERSON":
		return AMDHuman
	case "MACHINE":
		return AMDMachine
	default:
		return AMDNotSure
	}
}

// normalizeConfidence accepts either a 0-1 fraction or a 0-100 percentage.
func normalizeConfidence(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	if f > 1 {
		f = f / 100
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f
}
